// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// Handles both upsampling and downsampling, and keeps state between
// chunks so decoded audio can be converted as it streams in.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := make([]float32, r.MaxOutputSamples(len(in)))
//	n := r.Resample(in, out)
//	n += r.Flush(out[n:])
package resample
