// ABOUTME: PCM store tests
// ABOUTME: Covers round trips, bounds, end-of-track silence and int16 export
package pcm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
)

var stereo16 = audio.Format{Sample: audio.FormatI16, SampleRate: 48000, Channels: 2}

func ramp(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i%251 + 1)
	}
	return p
}

func TestStoreRoundTrip(t *testing.T) {
	s, err := NewStore(stereo16, 100)
	require.NoError(t, err)
	assert.Equal(t, 400, s.Capacity())

	tests := []struct {
		name   string
		offset int
		size   int
	}{
		{"start", 0, 40},
		{"middle", 160, 80},
		{"up to capacity", 320, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ramp(tt.size)
			require.NoError(t, s.Write(tt.offset, p))
			got := s.Read(tt.offset/4, tt.size/4)
			assert.Equal(t, p, got)
		})
	}
}

func TestStoreWriteOutOfRange(t *testing.T) {
	s, err := NewStore(stereo16, 10)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Write(36, make([]byte, 8)), ErrOutOfRange)
	assert.ErrorIs(t, s.Write(-4, make([]byte, 4)), ErrOutOfRange)
	assert.NoError(t, s.Write(32, make([]byte, 8)))
}

func TestStoreSilenceAtEnd(t *testing.T) {
	s, err := NewStore(stereo16, 10)
	require.NoError(t, err)
	require.NoError(t, s.Write(0, ramp(40)))
	s.Finish()

	for _, cursor := range []int{10, 11, 500} {
		got := s.Read(cursor, 8)
		assert.Len(t, got, 32)
		assert.Equal(t, make([]byte, 32), got)

		dst := ramp(32)
		assert.Equal(t, 0, s.ReadInto(dst, cursor))
		assert.Equal(t, make([]byte, 32), dst)
	}
}

func TestStoreClipsNearEnd(t *testing.T) {
	s, err := NewStore(stereo16, 10)
	require.NoError(t, err)
	data := ramp(40)
	require.NoError(t, s.Write(0, data))

	assert.Equal(t, data[32:], s.Read(8, 4))

	dst := make([]byte, 16)
	n := s.ReadInto(dst, 8)
	assert.Equal(t, 2, n)
	assert.Equal(t, data[32:], dst[:8])
	assert.Equal(t, make([]byte, 8), dst[8:])
}

func TestStoreNeverReadsPastWritten(t *testing.T) {
	s, err := NewStore(stereo16, 10)
	require.NoError(t, err)
	require.NoError(t, s.Write(0, ramp(16)))
	assert.Equal(t, 4, s.WrittenFrames())

	dst := ramp(32)
	assert.Equal(t, 4, s.ReadInto(dst, 0))
	assert.Equal(t, make([]byte, 16), dst[16:])
	assert.False(t, s.Finished())

	s.Finish()
	assert.True(t, s.Finished())
	assert.Equal(t, 4, s.TotalFrames())
}

func TestStoreSamples(t *testing.T) {
	s, err := NewStore(stereo16, 2)
	require.NoError(t, err)

	p := make([]byte, 8)
	for i, v := range []int16{100, 300, -200, -400} {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(v))
	}
	require.NoError(t, s.Write(0, p))

	assert.Equal(t, []int16{100, 300, -200, -400}, s.Samples())
	assert.Equal(t, []int16{200, -300}, s.MonoSamples())
}

func TestStoreFloatSamplesClamp(t *testing.T) {
	format := audio.Format{Sample: audio.FormatF32, SampleRate: 44100, Channels: 1}
	s, err := NewStore(format, 3)
	require.NoError(t, err)

	p := make([]byte, 12)
	for i, v := range []float32{0.5, 1.5, -2} {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	require.NoError(t, s.Write(0, p))

	assert.Equal(t, []int16{16383, 32767, -32767}, s.Samples())
}

func TestNewStoreRejectsBadFormat(t *testing.T) {
	_, err := NewStore(audio.Format{Channels: 2}, 10)
	assert.Error(t, err)

	_, err = NewStore(stereo16, -1)
	assert.Error(t, err)
}
