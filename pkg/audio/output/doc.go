// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides stream and buffer-queue backends over malgo, PortAudio and oto
// Package output provides the platform audio backends the engine drives.
//
// Two shapes of device are supported:
//   - Stream: pull-based. The device calls a DataCallback for exactly N
//     frames, or in write mode the caller pushes frames with a blocking
//     Write. Streams report burst size, buffer size and capacity, and an
//     underrun count the engine uses to size its buffer.
//   - Queue: request-fill-submit. The caller enqueues filled buffers and
//     the device hands each one back once consumed.
//
// Failures carry a Result code, so errors.Is(err, ErrorDisconnected) works
// through wrapping.
//
// Example:
//
//	backend := output.NewMalgo(logger)
//	builder, err := backend.NewBuilder()
//	if err != nil {
//	    return err
//	}
//	defer builder.Close()
//
//	stream, err := builder.OpenStream(output.StreamConfig{
//	    Format:       audio.Format{Sample: audio.FormatI16, SampleRate: 48000, Channels: 2},
//	    DataCallback: render,
//	})
package output
