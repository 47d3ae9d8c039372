// ABOUTME: Output package tests
// ABOUTME: Covers result codes, buffer sizing, state waits, ring writes and buffer queues
package output

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
)

var stereo16 = audio.Format{Sample: audio.FormatI16, SampleRate: 48000, Channels: 2}

func TestBackendsImplementInterfaces(t *testing.T) {
	var _ Backend = (*Malgo)(nil)
	var _ Backend = (*PortAudio)(nil)
	var _ QueueBackend = (*Oto)(nil)
	var _ Queue = (*BufferQueue)(nil)
	var _ Stream = (*malgoStream)(nil)
}

func TestResultWrapping(t *testing.T) {
	err := fmt.Errorf("open failed: %w", ErrorDisconnected)
	assert.True(t, errors.Is(err, ErrorDisconnected))
	assert.Equal(t, ErrorDisconnected, ResultOf(err))
	assert.Equal(t, ResultOK, ResultOf(nil))
	assert.Equal(t, ErrorInternal, ResultOf(errors.New("plain")))
	assert.Equal(t, "disconnected (-899)", ErrorDisconnected.Error())
	assert.Equal(t, "result -1", Result(-1).Error())
}

func TestClampBufferSize(t *testing.T) {
	tests := []struct {
		name     string
		frames   int
		expected int
	}{
		{"below burst", 10, 192},
		{"one burst", 192, 192},
		{"rounds up", 200, 384},
		{"at capacity", 192 * 16, 192 * 16},
		{"above capacity", 192 * 40, 192 * 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, clampBufferSize(tt.frames, 192, 192*16))
		})
	}
}

func TestStreamCoreSetBufferSize(t *testing.T) {
	c := newStreamCore(StreamConfig{}, stereo16, 192, 192*4)
	assert.Equal(t, 192*4, c.BufferSize())

	granted, err := c.SetBufferSize(300)
	require.NoError(t, err)
	assert.Equal(t, 384, granted)
	assert.LessOrEqual(t, c.BufferSize(), c.BufferCapacity())

	_, err = c.SetBufferSize(0)
	assert.ErrorIs(t, err, ErrorIllegalArgument)

	c.setState(StateClosed)
	_, err = c.SetBufferSize(192)
	assert.ErrorIs(t, err, ErrorInvalidState)
}

func TestStreamCoreWaitForStateChange(t *testing.T) {
	c := newStreamCore(StreamConfig{}, stereo16, 192, 192*4)
	require.NoError(t, c.transition(StateStarting, StateOpen))

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.setState(StateStarted)
	}()

	state, err := c.WaitForStateChange(StateStarting, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateStarted, state)

	state, err = c.WaitForStateChange(StateStarted, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrorTimeout)
	assert.Equal(t, StateStarted, state)

	assert.ErrorIs(t, c.transition(StateStarting, StateOpen, StateStopped), ErrorInvalidState)
}

func TestRingWriterBlocksUntilRendered(t *testing.T) {
	c := newStreamCore(StreamConfig{}, stereo16, 4, 16)
	c.setState(StateStarted)
	_, err := c.SetBufferSize(8)
	require.NoError(t, err)
	w := newRingWriter(c)

	done := make(chan int, 1)
	go func() {
		n, err := w.write(make([]byte, stereo16.FramesToBytes(16)), time.Second)
		assert.NoError(t, err)
		done <- n
	}()

	out := make([]byte, stereo16.FramesToBytes(4))
	require.Eventually(t, func() bool {
		w.render(out)
		select {
		case n := <-done:
			assert.Equal(t, 16, n)
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestRingWriterRejectsPartialFrames(t *testing.T) {
	c := newStreamCore(StreamConfig{}, stereo16, 4, 16)
	c.setState(StateStarted)
	w := newRingWriter(c)

	_, err := w.write(make([]byte, 3), time.Millisecond)
	assert.ErrorIs(t, err, ErrorIllegalArgument)
}

func TestRingWriterTimeout(t *testing.T) {
	c := newStreamCore(StreamConfig{}, stereo16, 4, 16)
	c.setState(StateStarted)
	_, err := c.SetBufferSize(4)
	require.NoError(t, err)
	w := newRingWriter(c)

	n, err := w.write(make([]byte, stereo16.FramesToBytes(8)), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRingWriterUnderrunOnlyWhileWriting(t *testing.T) {
	c := newStreamCore(StreamConfig{}, stereo16, 4, 16)
	c.setState(StateStarted)
	w := newRingWriter(c)

	out := make([]byte, stereo16.FramesToBytes(4))
	w.render(out)
	assert.Equal(t, 0, c.UnderrunCount())

	w.writing.Store(true)
	w.render(out)
	assert.Equal(t, 1, c.UnderrunCount())
}

func TestBufferQueue(t *testing.T) {
	q := NewBufferQueue(stereo16, 2)

	var consumed [][]byte
	q.RegisterCallback(func(buf []byte) {
		consumed = append(consumed, buf)
	})

	a := []byte{1, 1, 1, 1}
	b := []byte{2, 2, 2, 2}
	require.NoError(t, q.Enqueue(a))
	require.NoError(t, q.Enqueue(b))
	assert.ErrorIs(t, q.Enqueue([]byte{3, 3, 3, 3}), ErrorWouldBlock)
	assert.Equal(t, 2, q.Queued())

	t.Run("silence while not playing", func(t *testing.T) {
		p := make([]byte, 4)
		n, err := q.Read(p)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, []byte{0, 0, 0, 0}, p)
		assert.Empty(t, consumed)
	})

	t.Run("consumes in order", func(t *testing.T) {
		require.NoError(t, q.SetPlayState(PlayStatePlaying))
		p := make([]byte, 6)
		_, err := q.Read(p)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 1, 1, 1, 2, 2}, p)
		require.Len(t, consumed, 1)
		assert.Equal(t, a, consumed[0])

		_, err = q.Read(p)
		require.NoError(t, err)
		assert.Equal(t, []byte{2, 2, 0, 0, 0, 0}, p)
		require.Len(t, consumed, 2)
		assert.Equal(t, 0, q.Queued())
	})

	t.Run("stop drops queued buffers", func(t *testing.T) {
		require.NoError(t, q.Enqueue(a))
		require.NoError(t, q.SetPlayState(PlayStateStopped))
		assert.Equal(t, 0, q.Queued())
		assert.Equal(t, PlayStateStopped, q.PlayState())
	})

	t.Run("closed", func(t *testing.T) {
		require.NoError(t, q.Close())
		assert.ErrorIs(t, q.Close(), ErrorInvalidState)
		assert.ErrorIs(t, q.Enqueue(a), ErrorInvalidState)
	})
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "state(99)", StreamState(99).String())
	assert.Equal(t, "paused", PlayStatePaused.String())
}
