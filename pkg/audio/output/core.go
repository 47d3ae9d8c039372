// ABOUTME: Stream bookkeeping shared by the device-backed streams
// ABOUTME: Tracks state transitions, buffer size and underrun count
package output

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
)

// streamCore holds the parts of a stream that do not depend on the device
type streamCore struct {
	cfg      StreamConfig
	format   audio.Format
	burst    int
	capacity int

	bufferSize atomic.Int32
	underruns  atomic.Int32

	mu      sync.Mutex
	state   StreamState
	changed chan struct{}
}

func newStreamCore(cfg StreamConfig, format audio.Format, burst, capacity int) *streamCore {
	c := &streamCore{
		cfg:      cfg,
		format:   format,
		burst:    burst,
		capacity: capacity,
		state:    StateOpen,
		changed:  make(chan struct{}),
	}
	c.bufferSize.Store(int32(capacity))
	return c
}

func (c *streamCore) Format() audio.Format             { return c.format }
func (c *streamCore) SharingMode() SharingMode         { return c.cfg.SharingMode }
func (c *streamCore) PerformanceMode() PerformanceMode { return c.cfg.PerformanceMode }
func (c *streamCore) FramesPerBurst() int              { return c.burst }
func (c *streamCore) BufferCapacity() int              { return c.capacity }
func (c *streamCore) BufferSize() int                  { return int(c.bufferSize.Load()) }
func (c *streamCore) UnderrunCount() int               { return int(c.underruns.Load()) }
func (c *streamCore) addUnderrun()                     { c.underruns.Add(1) }

func (c *streamCore) bufferDuration(frames int) time.Duration {
	if c.format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(c.format.SampleRate)
}

func (c *streamCore) SetBufferSize(frames int) (int, error) {
	if frames <= 0 {
		return c.BufferSize(), ErrorIllegalArgument
	}
	switch c.State() {
	case StateClosing, StateClosed, StateDisconnected:
		return c.BufferSize(), ErrorInvalidState
	}
	granted := clampBufferSize(frames, c.burst, c.capacity)
	c.bufferSize.Store(int32(granted))
	return granted, nil
}

func (c *streamCore) State() StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *streamCore) setState(s StreamState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == s {
		return
	}
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
}

// transition moves from one of the allowed states to next, reporting
// ErrorInvalidState otherwise
func (c *streamCore) transition(next StreamState, allowed ...StreamState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range allowed {
		if c.state == s {
			c.state = next
			close(c.changed)
			c.changed = make(chan struct{})
			return nil
		}
	}
	return ErrorInvalidState
}

func (c *streamCore) WaitForStateChange(current StreamState, timeout time.Duration) (StreamState, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		state, changed := c.state, c.changed
		c.mu.Unlock()

		if state != current {
			return state, nil
		}

		select {
		case <-changed:
		case <-timer.C:
			return c.State(), ErrorTimeout
		}
	}
}
