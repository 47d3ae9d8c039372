// ABOUTME: Stream lifecycle management
// ABOUTME: Opens, starts, closes and reopens the output stream under one lock
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/soundsystem-go/soundsystem/internal/metrics"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

// streamRef lets the audio and control contexts read the current stream
// without taking the lifecycle lock
type streamRef struct {
	stream output.Stream
}

// Lifecycle owns the output stream. Open, Start, Close and Reopen are
// serialised by one mutex; Reopen only tries the lock and skips when a
// control operation already holds it.
type Lifecycle struct {
	mu      sync.Mutex
	backend output.Backend
	cfg     output.StreamConfig
	current atomic.Pointer[streamRef]
	state   *State
	logger  zerolog.Logger
	metrics *metrics.Engine
}

// NewLifecycle creates a lifecycle that opens streams with cfg
func NewLifecycle(backend output.Backend, cfg output.StreamConfig, state *State, logger zerolog.Logger, m *metrics.Engine) *Lifecycle {
	return &Lifecycle{
		backend: backend,
		cfg:     cfg,
		state:   state,
		logger:  logger,
		metrics: m,
	}
}

// Stream returns the open stream or nil
func (l *Lifecycle) Stream() output.Stream {
	if ref := l.current.Load(); ref != nil {
		return ref.stream
	}
	return nil
}

// Open opens a stream if none is open
func (l *Lifecycle) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLocked(0)
}

// openLocked opens a stream sized to one burst, or to keep frames clamped
// to the stream's capacity when keep is larger
func (l *Lifecycle) openLocked(keep int) error {
	if l.Stream() != nil {
		return nil
	}

	builder, err := l.backend.NewBuilder()
	if err != nil {
		return &StreamOpenError{Code: output.ResultOf(err), Err: err}
	}
	defer func() {
		if err := builder.Close(); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to release stream builder")
		}
	}()

	stream, err := builder.OpenStream(l.cfg)
	if err != nil {
		l.logger.Error().Err(err).Str("backend", l.backend.Name()).Msg("Failed to open stream")
		return &StreamOpenError{Code: output.ResultOf(err), Err: err}
	}

	burst := stream.FramesPerBurst()
	l.state.SetFramesPerBurst(burst)
	want := burst
	if keep > burst {
		want = min(keep, stream.BufferCapacity())
	}
	granted, err := stream.SetBufferSize(want)
	if err != nil {
		l.logger.Warn().Err(err).Int("frames", want).Msg("Failed to set initial buffer size")
		granted = stream.BufferSize()
	}
	l.state.SetBufferSize(granted)
	l.metrics.SetBufferSize(granted)

	l.current.Store(&streamRef{stream: stream})
	l.logStreamInfo(stream)
	return nil
}

func (l *Lifecycle) logStreamInfo(s output.Stream) {
	f := s.Format()
	l.logger.Info().
		Str("backend", l.backend.Name()).
		Int("sample_rate", f.SampleRate).
		Int("channels", f.Channels).
		Str("format", f.Sample.String()).
		Int("frames_per_burst", s.FramesPerBurst()).
		Int("buffer_size", s.BufferSize()).
		Int("buffer_capacity", s.BufferCapacity()).
		Str("sharing_mode", s.SharingMode().String()).
		Str("performance_mode", s.PerformanceMode().String()).
		Str("state", s.State().String()).
		Msg("Stream opened")
}

// Start starts the open stream and records the underrun baseline
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startLocked()
}

func (l *Lifecycle) startLocked() error {
	stream := l.Stream()
	if stream == nil {
		return ErrNoStream
	}
	if err := stream.Start(); err != nil {
		l.logger.Error().Err(err).Msg("Failed to start stream")
		return &StreamStartError{Code: output.ResultOf(err), Err: err}
	}
	l.state.SetUnderrunBaseline(stream.UnderrunCount())
	return nil
}

// Close stops and closes the stream. Safe to call with no stream open.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

func (l *Lifecycle) closeLocked() {
	stream := l.Stream()
	if stream == nil {
		return
	}
	if err := stream.Stop(); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to stop stream")
	}
	if err := stream.Close(); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to close stream")
	}
	l.current.Store(nil)
}

// Reopen replaces stale with a fresh started stream that keeps the buffer
// size granted to the old one. It reports false when the lifecycle is busy
// or stale is no longer the current stream.
func (l *Lifecycle) Reopen(stale output.Stream) bool {
	if !l.mu.TryLock() {
		l.logger.Debug().Msg("Lifecycle busy, skipping reopen")
		return false
	}
	defer l.mu.Unlock()

	if l.Stream() != stale {
		l.logger.Debug().Msg("Stream already replaced, skipping reopen")
		return false
	}

	keep := l.state.BufferSize()
	l.closeLocked()
	if err := l.openLocked(keep); err != nil {
		l.logger.Error().Err(err).Msg("Failed to reopen stream")
		return false
	}
	if err := l.startLocked(); err != nil {
		return false
	}
	l.metrics.IncReopens()
	l.logger.Info().Int("buffer_size", l.state.BufferSize()).Msg("Stream reopened")
	return true
}

// Tune runs the low latency tuner against the open stream while holding
// the lifecycle lock
func (l *Lifecycle) Tune(opts TuneOptions) (TuneResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stream := l.Stream()
	if stream == nil {
		return TuneResult{}, ErrNoStream
	}
	res, err := TuneLowLatency(stream, opts)
	l.state.SetBufferSize(stream.BufferSize())
	l.state.SetUnderrunBaseline(stream.UnderrunCount())
	l.metrics.SetBufferSize(stream.BufferSize())
	switch {
	case err != nil:
		l.metrics.TuningRun(metrics.TuningFailed)
	case res.Converged:
		l.metrics.TuningRun(metrics.TuningConverged)
	default:
		l.metrics.TuningRun(metrics.TuningExhausted)
	}
	return res, err
}
