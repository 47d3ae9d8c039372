// ABOUTME: Audio decoder package for multiple codec support
// ABOUTME: Provides Source, the decoder registry and the extraction queue
// Package decode turns audio files into PCM for the engine.
//
// Supports: WAV and AIFF (integer PCM), MP3, Ogg Vorbis, FLAC and
// headerless 16-bit PCM.
//
// Decoders produce a Source of interleaved float samples that knows its
// length in frames, so the PCM store can be sized before extraction. The
// Extractor converts a Source to the engine format (sample rate, channel
// count, sample width) and fills caller-submitted buffers asynchronously.
//
// Example:
//
//	src, err := decode.DefaultRegistry().Open("track.mp3")
//	ex, err := decode.NewExtractor(src, format, logger)
//	ex.RegisterCallback(func(buf []byte, n int, err error) { ... })
//	ex.Enqueue(make([]byte, 4096))
//	ex.Start(ctx)
package decode
