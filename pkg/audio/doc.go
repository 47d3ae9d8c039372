// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, SampleFormat and sample conversion functions
// Package audio provides fundamental audio types shared by the engine.
//
// This package defines:
//   - SampleFormat: interleaved sample encoding (i16 or f32, little-endian)
//   - Format: sample format, sample rate and channel count of a PCM stream
//
// Frame math helpers convert between frames and bytes, and the conversion
// helpers clamp float samples into the int16 range.
//
// Example:
//
//	format := audio.Format{
//	    Sample:     audio.FormatI16,
//	    SampleRate: 48000,
//	    Channels:   2,
//	}
//
//	bytes := format.FramesToBytes(192)
package audio
