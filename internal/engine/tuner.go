// ABOUTME: Low latency buffer tuning
// ABOUTME: Burst-stepped search for the smallest buffer size that plays without underruns
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

const (
	defaultStateChangeTimeout = 2 * time.Second
	defaultWriteTimeout       = time.Second
)

// TuneOptions configures a tuning pass
type TuneOptions struct {
	// StateChangeTimeout bounds the wait for a starting stream
	StateChangeTimeout time.Duration
	// WriteTimeout bounds each probe write
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

func (o *TuneOptions) applyDefaults() {
	if o.StateChangeTimeout <= 0 {
		o.StateChangeTimeout = defaultStateChangeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
}

// TuneResult describes a finished tuning pass
type TuneResult struct {
	BufferSize int
	Iterations int
	Underruns  int
	Converged  bool
}

// tuningSession holds what a pass needs to probe and roll back
type tuningSession struct {
	stream    output.Stream
	opts      TuneOptions
	entrySize int
	burst     int
	capacity  int
	prevSize  int
	underruns int
	probe     []byte
}

// TuneLowLatency searches for the smallest buffer size, in burst steps,
// at which a probe write of one full buffer adds no underruns. The stream
// must be started, or reach started within the state change timeout. On a
// hard error the buffer size is rolled back to its value at entry. Running
// out of capacity without converging is not an error.
func TuneLowLatency(stream output.Stream, opts TuneOptions) (TuneResult, error) {
	opts.applyDefaults()

	if err := waitStarted(stream, opts.StateChangeTimeout); err != nil {
		return TuneResult{BufferSize: stream.BufferSize()}, err
	}

	sess := &tuningSession{
		stream:    stream,
		opts:      opts,
		entrySize: stream.BufferSize(),
		burst:     stream.FramesPerBurst(),
		capacity:  stream.BufferCapacity(),
		underruns: stream.UnderrunCount(),
	}
	if sess.burst <= 0 {
		return TuneResult{BufferSize: sess.entrySize}, fmt.Errorf("tune: invalid burst %d: %w", sess.burst, output.ErrorUnexpectedValue)
	}
	sess.probe = make([]byte, stream.Format().FramesToBytes(sess.capacity))

	res, err := sess.run()
	opts.Logger.Debug().
		Int("buffer_size", res.BufferSize).
		Int("iterations", res.Iterations).
		Int("underruns", res.Underruns).
		Bool("converged", res.Converged).
		Err(err).
		Msg("Tuning finished")
	return res, err
}

func (t *tuningSession) run() (TuneResult, error) {
	var res TuneResult
	for candidate := t.burst; candidate <= t.capacity; candidate += t.burst {
		res.Iterations++

		granted, err := t.stream.SetBufferSize(candidate)
		if err != nil {
			return t.rollback(res, fmt.Errorf("set buffer size %d: %w", candidate, err))
		}
		res.BufferSize = granted
		if granted == t.prevSize {
			// the platform will not go any higher
			res.Converged = true
			return res, nil
		}
		t.prevSize = granted

		if _, err := t.stream.Write(t.probe, t.opts.WriteTimeout); err != nil {
			return t.rollback(res, fmt.Errorf("probe write at %d: %w", granted, err))
		}

		count := t.stream.UnderrunCount()
		if count <= t.underruns {
			res.Converged = true
			return res, nil
		}
		res.Underruns += count - t.underruns
		t.underruns = count
	}
	return res, nil
}

func (t *tuningSession) rollback(res TuneResult, cause error) (TuneResult, error) {
	granted, err := t.stream.SetBufferSize(t.entrySize)
	if err != nil {
		t.opts.Logger.Warn().Err(err).Int("frames", t.entrySize).Msg("Failed to roll back buffer size")
		res.BufferSize = t.stream.BufferSize()
		return res, errors.Join(cause, err)
	}
	res.BufferSize = granted
	return res, cause
}

func waitStarted(stream output.Stream, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	state := stream.State()
	for state == output.StateStarting {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		next, err := stream.WaitForStateChange(state, remaining)
		if err != nil && !errors.Is(err, output.ErrorTimeout) {
			return fmt.Errorf("%w: %w", ErrNotStarted, err)
		}
		state = next
	}
	if state != output.StateStarted {
		return fmt.Errorf("%w: stream is %s", ErrNotStarted, state)
	}
	return nil
}
