// ABOUTME: Dedicated-thread stream driver
// ABOUTME: Render loop that pushes bursts into a blocking write stream
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

const writeRetryDelay = 10 * time.Millisecond

// ThreadDriver renders into a write-mode stream from its own goroutine
// until a stop is requested, then closes the stream
type ThreadDriver struct {
	renderer
	lifecycle    *Lifecycle
	writeTimeout time.Duration

	mu   sync.Mutex
	done chan struct{}
}

// Run starts the render loop unless it is already running
func (d *ThreadDriver) Run() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done != nil {
		select {
		case <-d.done:
		default:
			return
		}
	}
	d.state.ClearStopRequest()
	d.done = make(chan struct{})
	go d.loop(d.done)
}

// Wait blocks until the render loop exits or timeout elapses and reports
// whether it exited
func (d *ThreadDriver) Wait(timeout time.Duration) bool {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Running reports whether the render loop is active
func (d *ThreadDriver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

func (d *ThreadDriver) loop(done chan struct{}) {
	defer close(done)
	d.logger.Debug().Msg("Render loop started")

	var (
		buf     []byte
		pending bool
	)
	for !d.state.StopRequested() {
		s := d.lifecycle.Stream()
		if s == nil {
			// another reopen is underway or the last one failed
			if !d.lifecycle.Reopen(nil) {
				time.Sleep(writeRetryDelay)
			}
			continue
		}

		size := s.Format().FramesToBytes(s.FramesPerBurst())
		if cap(buf) < size {
			buf = make([]byte, size)
			pending = false
		}
		out := buf[:size]

		d.adaptBufferSize(s)
		if !pending {
			d.fill(out)
		}

		if _, err := s.Write(out, d.writeTimeout); err != nil {
			// keep the rendered burst for the next stream
			pending = true
			if errors.Is(err, output.ErrorDisconnected) || s.State() == output.StateDisconnected {
				d.lifecycle.Reopen(s)
				continue
			}
			d.logger.Warn().Err(err).Msg("Stream write failed")
			time.Sleep(writeRetryDelay)
			continue
		}
		pending = false
	}

	d.lifecycle.Close()
	d.logger.Debug().Msg("Render loop exited")
}

// OnError hands a failed stream to the lifecycle for reopening
func (d *ThreadDriver) OnError(s output.Stream, err error) {
	d.logger.Warn().Err(err).Msg("Stream error, reopening")
	go d.lifecycle.Reopen(s)
}
