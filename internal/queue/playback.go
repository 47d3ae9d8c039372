// ABOUTME: Playback side of the buffer queue bridge
// ABOUTME: Two-buffer request-fill-submit player with a pausable state machine
package queue

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/soundsystem-go/soundsystem/internal/engine"
	"github.com/soundsystem-go/soundsystem/pkg/audio"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
	"github.com/soundsystem-go/soundsystem/pkg/audio/pcm"
)

const (
	inFlight = 2

	// DefaultBufferFrames is the playback buffer size when none is given
	DefaultBufferFrames = 256
)

// Playback plays a PCM store through a queue backend. The queue state is
// the source of truth: STOPPED, PLAYING or PAUSED.
type Playback struct {
	mu      sync.Mutex
	backend output.QueueBackend
	cfg     engine.Config
	frames  int
	state   *engine.State

	// queue is written under both locks and read under either
	queue output.Queue

	// bufMu guards the buffer pair; taken from the device callback, so
	// nothing holding it may call into the device
	bufMu sync.Mutex
	pair  [inFlight][]byte
	busy  [inFlight]bool

	ending atomic.Bool
}

var _ engine.Player = (*Playback)(nil)

// NewPlayback creates a queue player. cfg.FramesPerBurst sets the size of
// each queued buffer.
func NewPlayback(backend output.QueueBackend, cfg engine.Config) *Playback {
	if cfg.Events == nil {
		cfg.Events = engine.NopEvents{}
	}
	frames := cfg.FramesPerBurst
	if frames <= 0 {
		frames = DefaultBufferFrames
	}
	return &Playback{
		backend: backend,
		cfg:     cfg,
		frames:  frames,
		state:   engine.NewState(),
	}
}

func (p *Playback) Format() audio.Format      { return p.cfg.Format }
func (p *Playback) SetStore(store *pcm.Store) { p.state.SetStore(store) }
func (p *Playback) Store() *pcm.Store         { return p.state.Store() }
func (p *Playback) IsPlaying() bool           { return p.state.IsPlaying() }
func (p *Playback) Ended() bool               { return p.state.AtEnd() }
func (p *Playback) Cursor() int               { return p.state.Cursor() }

// PlayState reports the queue state, STOPPED when no queue is open
func (p *Playback) PlayState() output.PlayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return output.PlayStateStopped
	}
	return p.queue.PlayState()
}

// Open creates the output queue
func (p *Playback) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked()
}

func (p *Playback) openLocked() error {
	if p.queue != nil {
		return nil
	}
	q, err := p.backend.NewQueue(p.cfg.Format, inFlight)
	if err != nil {
		return fmt.Errorf("open %s queue: %w", p.backend.Name(), err)
	}
	q.RegisterCallback(p.onConsumed)
	p.setQueue(q)
	p.resetBuffers()

	p.cfg.Logger.Info().
		Str("backend", p.backend.Name()).
		Stringer("format", p.cfg.Format).
		Int("buffer_frames", p.frames).
		Msg("Output queue opened")
	return nil
}

// Play toggles playback. While PLAYING any call pauses; from PAUSED or
// STOPPED play(true) primes the queue and plays.
func (p *Playback) Play(play bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue != nil && p.queue.PlayState() == output.PlayStatePlaying {
		if err := p.queue.SetPlayState(output.PlayStatePaused); err != nil {
			return true, fmt.Errorf("pause: %w", err)
		}
		p.state.SetPlaying(false)
		p.cfg.Events.PlayingChanged(false)
		return false, nil
	}
	if !play {
		return false, nil
	}
	if err := p.openLocked(); err != nil {
		return false, err
	}

	p.state.SetPlaying(true)
	p.prime()
	if err := p.queue.SetPlayState(output.PlayStatePlaying); err != nil {
		p.state.SetPlaying(false)
		return false, fmt.Errorf("play: %w", err)
	}
	p.cfg.Events.PlayingChanged(true)
	return true, nil
}

// Stop halts playback, drops queued audio and rewinds
func (p *Playback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue != nil {
		if err := p.queue.SetPlayState(output.PlayStateStopped); err != nil {
			p.cfg.Logger.Warn().Err(err).Msg("Failed to stop output queue")
		}
		p.resetBuffers()
	}
	if p.state.SetPlaying(false) {
		p.cfg.Events.PlayingChanged(false)
	}
	p.state.SetCursor(0)
	p.cfg.Events.TrackStopped()
	return nil
}

// Close releases the output queue. Safe to call repeatedly.
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.SetPlaying(false)
	if p.queue == nil {
		return nil
	}
	if err := p.queue.SetPlayState(output.PlayStateStopped); err != nil {
		p.cfg.Logger.Warn().Err(err).Msg("Failed to stop output queue")
	}
	if err := p.queue.Close(); err != nil {
		p.cfg.Logger.Warn().Err(err).Msg("Failed to close output queue")
	}
	p.setQueue(nil)
	return nil
}

// setQueue publishes q to the device callback. Callers hold mu.
func (p *Playback) setQueue(q output.Queue) {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	p.queue = q
}

// resetBuffers swaps in a fresh pair. Buffers the queue dropped, or that
// are still inside a device callback, are never resubmitted.
func (p *Playback) resetBuffers() {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	size := p.cfg.Format.FramesToBytes(p.frames)
	for i := range p.pair {
		p.pair[i] = make([]byte, size)
		p.busy[i] = false
	}
}

// prime fills and submits every buffer not already in the queue
func (p *Playback) prime() {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	for i := range p.pair {
		if p.busy[i] {
			continue
		}
		p.state.Render(p.pair[i])
		if err := p.queue.Enqueue(p.pair[i]); err != nil {
			p.cfg.Logger.Warn().Err(err).Msg("Failed to prime output queue")
			return
		}
		p.busy[i] = true
	}
}

func (p *Playback) slot(buf []byte) int {
	if len(buf) == 0 {
		return -1
	}
	for i, b := range p.pair {
		if len(b) > 0 && &b[0] == &buf[0] {
			return i
		}
	}
	return -1
}

// onConsumed runs on the device's thread each time a buffer finished
// playing
func (p *Playback) onConsumed(buf []byte) {
	p.bufMu.Lock()
	i := p.slot(buf)
	if i < 0 {
		p.bufMu.Unlock()
		return
	}
	p.busy[i] = false

	q := p.queue
	if q == nil || !p.state.IsPlaying() {
		p.bufMu.Unlock()
		return
	}

	n := p.state.Render(p.pair[i])
	if n == 0 && p.state.AtEnd() {
		drained := q.Queued() == 0
		p.bufMu.Unlock()
		if drained && p.ending.CompareAndSwap(false, true) {
			go p.endTrack()
		}
		return
	}
	if err := q.Enqueue(p.pair[i]); err == nil {
		p.busy[i] = true
	}
	p.bufMu.Unlock()
}

// endTrack moves a drained queue to STOPPED and rewinds
func (p *Playback) endTrack() {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.ending.Store(false)

	if p.queue == nil || p.queue.PlayState() != output.PlayStatePlaying || !p.state.AtEnd() {
		return
	}
	if err := p.queue.SetPlayState(output.PlayStateStopped); err != nil {
		p.cfg.Logger.Warn().Err(err).Msg("Failed to stop output queue")
	}
	p.resetBuffers()
	p.state.SetPlaying(false)
	p.state.SetCursor(0)
	p.cfg.Logger.Debug().Msg("End of track")
	p.cfg.Events.EndOfTrack()
}
