// ABOUTME: Tests for audio resampler
// ABOUTME: Tests linear interpolation resampling between sample rates
package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampFrames(frames, channels int) []float32 {
	in := make([]float32, frames*channels)
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			in[f*channels+c] = float32(f) / float32(frames)
		}
	}
	return in
}

func resampleAll(r *Resampler, in []float32, chunk int) []float32 {
	var out []float32
	for len(in) > 0 {
		n := min(chunk, len(in))
		buf := make([]float32, r.MaxOutputSamples(n))
		w := r.Resample(in[:n], buf)
		out = append(out, buf[:w]...)
		in = in[n:]
	}
	buf := make([]float32, r.MaxOutputSamples(0))
	w := r.Flush(buf)
	return append(out, buf[:w]...)
}

func TestResampleLength(t *testing.T) {
	tests := []struct {
		name   string
		in     int
		out    int
		chunk  int
		frames int
	}{
		{"upsample", 44100, 48000, 512, 4410},
		{"downsample", 48000, 44100, 300, 4800},
		{"passthrough", 48000, 48000, 256, 1000},
		{"single chunk", 22050, 44100, 1 << 20, 2205},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.in, tt.out, 2)
			out := resampleAll(r, rampFrames(tt.frames, 2), tt.chunk)
			expected := r.OutputFrames(tt.frames)
			assert.InDelta(t, expected, len(out)/2, 1)
		})
	}
}

func TestResamplePassthroughIsIdentity(t *testing.T) {
	r := New(48000, 48000, 1)
	require.True(t, r.Passthrough())

	in := rampFrames(100, 1)
	out := resampleAll(r, in, 7)
	assert.Equal(t, in, out)
}

func TestResampleInterpolates(t *testing.T) {
	r := New(1, 2, 1)
	out := make([]float32, r.MaxOutputSamples(3))
	n := r.Resample([]float32{0, 1, 0}, out)
	n += r.Flush(out[n:])

	assert.Equal(t, []float32{0, 0.5, 1, 0.5, 0, 0}, out[:n])
}

func TestResampleMonotonicAcrossChunks(t *testing.T) {
	r := New(44100, 48000, 2)
	out := resampleAll(r, rampFrames(2000, 2), 33)

	for i := 2; i < len(out); i += 2 {
		assert.GreaterOrEqual(t, out[i], out[i-2], "frame %d", i/2)
	}
}
