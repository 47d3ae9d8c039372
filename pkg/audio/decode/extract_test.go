// ABOUTME: Extraction queue tests
// ABOUTME: Drives an extractor over in-memory sources and checks the delivered PCM
package decode

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
)

// memSource serves fixed samples in small chunks
type memSource struct {
	info
	samples []float32
	chunk   int
	err     error
	closed  bool
}

func newMemSource(rate, channels int, samples []float32) *memSource {
	return &memSource{
		info:    info{sampleRate: rate, channels: channels, length: len(samples) / channels},
		samples: samples,
		chunk:   6,
	}
}

func (s *memSource) ReadSamples(dst []float32) (int, error) {
	if len(s.samples) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	n := copy(dst[:min(len(dst), s.chunk)], s.samples)
	s.samples = s.samples[n:]
	return n, nil
}

func (s *memSource) Close() error {
	s.closed = true
	return nil
}

// collect runs the extractor to completion, resubmitting each buffer
func collect(t *testing.T, ex *Extractor, bufBytes int) ([]byte, error) {
	t.Helper()

	var (
		mu   sync.Mutex
		out  []byte
		last error
	)
	done := make(chan struct{})
	ex.RegisterCallback(func(buf []byte, n int, err error) {
		mu.Lock()
		out = append(out, buf[:n]...)
		mu.Unlock()
		if err != nil {
			last = err
			close(done)
			return
		}
		assert.NoError(t, ex.Enqueue(buf))
	})

	require.NoError(t, ex.Enqueue(make([]byte, bufBytes)))
	require.NoError(t, ex.Enqueue(make([]byte, bufBytes)))
	require.NoError(t, ex.Start(context.Background()))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("extraction did not finish")
	}
	mu.Lock()
	defer mu.Unlock()
	return out, last
}

func TestExtractorPassthrough(t *testing.T) {
	samples := make([]float32, 50*2)
	for i := range samples {
		samples[i] = float32(i%20) / 40
	}
	src := newMemSource(48000, 2, samples)
	format := audio.Format{Sample: audio.FormatI16, SampleRate: 48000, Channels: 2}

	ex, err := NewExtractor(src, format, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 50, ex.TotalFrames())

	out, last := collect(t, ex, format.FramesToBytes(16))
	assert.ErrorIs(t, last, io.EOF)
	require.Len(t, out, format.FramesToBytes(50))
	assert.Equal(t, 50, ex.FramesProduced())

	for i, v := range samples {
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		assert.Equal(t, audio.FloatToInt16(v), got, "sample %d", i)
	}

	require.NoError(t, ex.Close())
	assert.True(t, src.closed)
	assert.ErrorIs(t, ex.Enqueue(make([]byte, 4)), ErrClosed)
}

func TestExtractorResamplesAndUpmixes(t *testing.T) {
	src := newMemSource(22050, 1, make([]float32, 1000))
	format := audio.Format{Sample: audio.FormatF32, SampleRate: 44100, Channels: 2}

	ex, err := NewExtractor(src, format, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2000, ex.TotalFrames())

	out, last := collect(t, ex, format.FramesToBytes(256))
	assert.ErrorIs(t, last, io.EOF)
	assert.InDelta(t, 2000, format.BytesToFrames(len(out)), 1)
	require.NoError(t, ex.Close())
}

func TestExtractorReportsDecodeError(t *testing.T) {
	src := newMemSource(8000, 1, make([]float32, 10))
	src.err = errors.New("corrupt frame")
	format := audio.Format{Sample: audio.FormatI16, SampleRate: 8000, Channels: 1}

	ex, err := NewExtractor(src, format, zerolog.Nop())
	require.NoError(t, err)

	out, last := collect(t, ex, 64)
	assert.EqualError(t, last, "corrupt frame")
	assert.Len(t, out, 20)
	require.NoError(t, ex.Close())
}

func TestExtractorQueueDepth(t *testing.T) {
	ex, err := NewExtractor(newMemSource(8000, 1, nil), audio.Format{Sample: audio.FormatI16, Channels: 1}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, ex.Enqueue(make([]byte, 8)))
	require.NoError(t, ex.Enqueue(make([]byte, 8)))
	assert.ErrorIs(t, ex.Enqueue(make([]byte, 8)), ErrQueueFull)
	require.NoError(t, ex.Close())
}
