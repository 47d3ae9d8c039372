// ABOUTME: Tests for the stream lifecycle
// ABOUTME: Open and start failures, idempotent close and reopen guarding
package engine

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/soundsystem-go/soundsystem/internal/audiotest"
	"github.com/soundsystem-go/soundsystem/internal/metrics"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLifecycle(backend output.Backend) (*Lifecycle, *State) {
	st := NewState()
	cfg := output.StreamConfig{Format: testFormat}
	return NewLifecycle(backend, cfg, st, zerolog.Nop(), metrics.ForEngine("lifecycle-test")), st
}

func TestLifecycleOpenSetsOneBurst(t *testing.T) {
	backend := audiotest.NewBackend(audiotest.StreamOptions{Burst: 240})
	lc, st := newTestLifecycle(backend)

	require.NoError(t, lc.Open())
	s := lc.Stream()
	require.NotNil(t, s)
	assert.Equal(t, 240, s.BufferSize())
	assert.LessOrEqual(t, s.BufferSize(), s.BufferCapacity())
	assert.Equal(t, 240, st.BufferSize())
	assert.Equal(t, 240, st.FramesPerBurst())
	assert.Equal(t, 1, backend.BuildersClosed())

	// a second open keeps the stream
	require.NoError(t, lc.Open())
	assert.Len(t, backend.Streams(), 1)
}

func TestLifecycleOpenFailure(t *testing.T) {
	backend := audiotest.NewBackend(audiotest.StreamOptions{})
	backend.FailOpen(output.ErrorIllegalArgument)
	lc, _ := newTestLifecycle(backend)

	err := lc.Open()
	var openErr *StreamOpenError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, output.ErrorIllegalArgument, openErr.Code)
	assert.ErrorIs(t, err, output.ErrorIllegalArgument)
	assert.Nil(t, lc.Stream())
	assert.Equal(t, 1, backend.BuildersClosed())
}

func TestLifecycleStartFailure(t *testing.T) {
	backend := audiotest.NewBackend(audiotest.StreamOptions{FailStart: output.ErrorInvalidState})
	lc, _ := newTestLifecycle(backend)
	require.NoError(t, lc.Open())

	err := lc.Start()
	var startErr *StreamStartError
	require.True(t, errors.As(err, &startErr))
	assert.Equal(t, output.ErrorInvalidState, startErr.Code)
}

func TestLifecycleStartWithoutStream(t *testing.T) {
	lc, _ := newTestLifecycle(audiotest.NewBackend(audiotest.StreamOptions{}))
	assert.ErrorIs(t, lc.Start(), ErrNoStream)
}

func TestLifecycleStartRecordsUnderrunBaseline(t *testing.T) {
	backend := audiotest.NewBackend(audiotest.StreamOptions{})
	lc, st := newTestLifecycle(backend)
	require.NoError(t, lc.Open())
	backend.Last().AddUnderruns(3)

	require.NoError(t, lc.Start())
	assert.Equal(t, 3, st.UnderrunBaseline())
}

func TestLifecycleCloseIsIdempotent(t *testing.T) {
	backend := audiotest.NewBackend(audiotest.StreamOptions{})
	lc, _ := newTestLifecycle(backend)
	require.NoError(t, lc.Open())
	require.NoError(t, lc.Start())
	s := backend.Last()

	lc.Close()
	lc.Close()
	assert.Nil(t, lc.Stream())
	assert.Equal(t, 1, s.Closes())
	assert.Equal(t, output.StateClosed, s.State())
}

func TestLifecycleReopen(t *testing.T) {
	backend := audiotest.NewBackend(audiotest.StreamOptions{})
	lc, _ := newTestLifecycle(backend)
	require.NoError(t, lc.Open())
	require.NoError(t, lc.Start())
	first := lc.Stream()

	require.True(t, lc.Reopen(first))
	second := lc.Stream()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, output.StateStarted, second.State())
	assert.Equal(t, output.StateClosed, first.State())

	// the first stream is stale now
	assert.False(t, lc.Reopen(first))
	assert.Len(t, backend.Streams(), 2)
}

func TestLifecycleReopenKeepsBufferSize(t *testing.T) {
	backend := audiotest.NewBackend(audiotest.StreamOptions{Burst: 192, Capacity: 960})
	lc, st := newTestLifecycle(backend)
	require.NoError(t, lc.Open())
	require.NoError(t, lc.Start())

	granted, err := lc.Stream().SetBufferSize(576)
	require.NoError(t, err)
	st.SetBufferSize(granted)

	require.True(t, lc.Reopen(lc.Stream()))
	assert.Equal(t, 576, lc.Stream().BufferSize())
	assert.Equal(t, 576, st.BufferSize())

	// a size past the new stream's capacity is clamped
	st.SetBufferSize(2000)
	require.True(t, lc.Reopen(lc.Stream()))
	assert.Equal(t, 960, lc.Stream().BufferSize())
	assert.Equal(t, 960, st.BufferSize())

	// a plain open starts from one burst again
	lc.Close()
	require.NoError(t, lc.Open())
	assert.Equal(t, 192, lc.Stream().BufferSize())
}

func TestLifecycleReopenSkipsWhenBusy(t *testing.T) {
	backend := audiotest.NewBackend(audiotest.StreamOptions{})
	lc, _ := newTestLifecycle(backend)
	require.NoError(t, lc.Open())
	s := lc.Stream()

	lc.mu.Lock()
	assert.False(t, lc.Reopen(s))
	lc.mu.Unlock()

	assert.Len(t, backend.Streams(), 1)
	assert.Equal(t, s, lc.Stream())
}

func TestLifecycleReopenAfterCloseIsSkipped(t *testing.T) {
	backend := audiotest.NewBackend(audiotest.StreamOptions{})
	lc, _ := newTestLifecycle(backend)
	require.NoError(t, lc.Open())
	s := lc.Stream()
	lc.Close()

	assert.False(t, lc.Reopen(s))
	assert.Nil(t, lc.Stream())
}

func TestLifecycleTuneWithoutStream(t *testing.T) {
	lc, _ := newTestLifecycle(audiotest.NewBackend(audiotest.StreamOptions{}))
	_, err := lc.Tune(TuneOptions{})
	assert.ErrorIs(t, err, ErrNoStream)
}

func TestControllerStartRequiresStream(t *testing.T) {
	lc, st := newTestLifecycle(audiotest.NewBackend(audiotest.StreamOptions{}))
	c := &Controller{state: st, lifecycle: lc, requestStop: true}

	_, err := c.Start()
	assert.ErrorIs(t, err, ErrNoStream)
	assert.False(t, st.IsPlaying())

	// stop is safe without a stream
	assert.False(t, c.Stop())
	assert.False(t, c.Stop())
	assert.True(t, st.StopRequested())

	require.NoError(t, lc.Open())
	changed, err := c.Start()
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = c.Start()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, st.IsPlaying())
}
