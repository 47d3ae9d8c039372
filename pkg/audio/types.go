// ABOUTME: Audio type definitions
// ABOUTME: Defines sample formats, stream formats and sample conversions
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SampleFormat is the width and encoding of one interleaved sample
type SampleFormat int

const (
	FormatInvalid SampleFormat = iota
	FormatI16                  // signed 16-bit little-endian
	FormatF32                  // 32-bit float little-endian in [-1, 1]
)

// BytesPerSample returns the sample width in bytes
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatI16:
		return 2
	case FormatF32:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatI16:
		return "i16"
	case FormatF32:
		return "f32"
	default:
		return fmt.Sprintf("invalid(%d)", int(f))
	}
}

// ParseSampleFormat parses "i16" or "f32"
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch s {
	case "i16", "s16", "pcm16":
		return FormatI16, nil
	case "f32", "float", "float32":
		return FormatF32, nil
	default:
		return FormatInvalid, fmt.Errorf("unsupported sample format: %q (supported: i16, f32)", s)
	}
}

// Format describes an interleaved PCM stream
type Format struct {
	Sample     SampleFormat
	SampleRate int
	Channels   int
}

// BytesPerFrame returns the size of one frame (one sample per channel)
func (f Format) BytesPerFrame() int {
	return f.Sample.BytesPerSample() * f.Channels
}

// FramesToBytes converts a frame count to a byte count
func (f Format) FramesToBytes(frames int) int {
	return frames * f.BytesPerFrame()
}

// BytesToFrames converts a byte count to whole frames
func (f Format) BytesToFrames(n int) int {
	bpf := f.BytesPerFrame()
	if bpf == 0 {
		return 0
	}
	return n / bpf
}

// Validate reports configuration errors
func (f Format) Validate() error {
	if f.Sample.BytesPerSample() == 0 {
		return fmt.Errorf("unsupported sample format: %v", f.Sample)
	}
	if f.Channels < 1 || f.Channels > 8 {
		return fmt.Errorf("unsupported channel count: %d", f.Channels)
	}
	if f.SampleRate < 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.Sample)
}

// Silence zero-fills p
func Silence(p []byte) {
	clear(p)
}

// FloatToInt16 converts a float sample to int16, clamping to [-1, 1]
func FloatToInt16(sample float32) int16 {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	return int16(sample * math.MaxInt16)
}

// Int16ToFloat converts an int16 sample to float in [-1, 1)
func Int16ToFloat(sample int16) float32 {
	return float32(sample) / 32768.0
}

// PutSample encodes a float sample into p using the given sample format
func PutSample(p []byte, f SampleFormat, sample float32) {
	switch f {
	case FormatI16:
		binary.LittleEndian.PutUint16(p, uint16(FloatToInt16(sample)))
	case FormatF32:
		binary.LittleEndian.PutUint32(p, math.Float32bits(sample))
	}
}

// SampleAt decodes the i-th sample of p as int16
func SampleAt(p []byte, f SampleFormat, i int) int16 {
	switch f {
	case FormatI16:
		return int16(binary.LittleEndian.Uint16(p[i*2:]))
	case FormatF32:
		return FloatToInt16(math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:])))
	default:
		return 0
	}
}
