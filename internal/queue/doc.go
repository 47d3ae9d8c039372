// ABOUTME: Package queue documentation
// ABOUTME: Buffer queue bridge between the decoder, the PCM store and queue devices
// Package queue bridges request-fill-submit queues.
//
// Extraction fills a PCM store from a decode.Extractor with two rotating
// buffers. Playback plays a store through an output.Queue with the same
// two-buffer scheme and implements engine.Player with a real pause.
// Direct skips the store and sends decoded buffers straight to the device.
package queue
