// ABOUTME: Decoder tests
// ABOUTME: Covers the registry, raw and WAV decoding, and channel conversion
package decode

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawBytes(samples ...int16) []byte {
	p := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(v))
	}
	return p
}

func readAll(t *testing.T, src Source) []float32 {
	t.Helper()
	var out []float32
	buf := make([]float32, 5*src.Channels())
	for {
		n, err := src.ReadSamples(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	for _, ext := range []string{".wav", ".WAV", ".aiff", ".mp3", ".ogg", ".flac", ".pcm"} {
		_, ok := r.Get(ext)
		assert.True(t, ok, ext)
	}

	_, err := r.Open("track.xyz")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = r.Open(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestRawDecode(t *testing.T) {
	data := rawBytes(0, 16384, -16384, 32767, 1, 2)
	src, err := Raw{SampleRate: 44100, Channels: 2}.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 44100, src.SampleRate())
	assert.Equal(t, 2, src.Channels())
	assert.Equal(t, 3, src.Length())

	got := readAll(t, src)
	require.Len(t, got, 6)
	assert.Equal(t, float32(0.5), got[1])
	assert.Equal(t, float32(-0.5), got[2])
}

func TestRawDecodeNeedsFormat(t *testing.T) {
	_, err := Raw{}.Decode(bytes.NewReader(nil))
	assert.Error(t, err)
}

func writeWav(t *testing.T, path string, rate, channels int, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestWAVDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWav(t, path, 22050, 1, []int{0, 8192, 16384, -16384, 0, 100, 200, 300})

	src, err := DefaultRegistry().Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 22050, src.SampleRate())
	assert.Equal(t, 1, src.Channels())
	assert.Equal(t, 8, src.Length())

	got := readAll(t, src)
	require.Len(t, got, 8)
	assert.Equal(t, float32(0.25), got[1])
	assert.Equal(t, float32(-0.5), got[3])
}

func TestConvertChannels(t *testing.T) {
	tests := []struct {
		name     string
		in       []float32
		src, dst int
		expected []float32
	}{
		{"same", []float32{1, 2, 3, 4}, 2, 2, []float32{1, 2, 3, 4}},
		{"mono to stereo", []float32{1, 2}, 1, 2, []float32{1, 1, 2, 2}},
		{"stereo to mono", []float32{1, 3, -1, 1}, 2, 1, []float32{2, 0}},
		{"surround to stereo", []float32{1, 2, 3, 4, 5, 6}, 3, 2, []float32{1, 2, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, convertChannels(tt.in, tt.src, tt.dst, nil))
		})
	}
}
