// ABOUTME: Blocking-write support for write-mode streams
// ABOUTME: Bridges a writer goroutine and the device callback through a byte ring
package output

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
)

// ringWriter lets Write block while the device callback drains a ring.
// The number of bytes held in the ring never exceeds the stream buffer
// size, so a smaller buffer leaves less slack against scheduling jitter.
type ringWriter struct {
	core    *streamCore
	ring    *ringbuffer.RingBuffer
	space   chan struct{}
	closed  chan struct{}
	once    sync.Once
	writing atomic.Bool
}

func newRingWriter(core *streamCore) *ringWriter {
	return &ringWriter{
		core:   core,
		ring:   ringbuffer.New(core.format.FramesToBytes(core.capacity)),
		space:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// write copies whole frames of p into the ring, waiting for the callback
// to make room. It returns the frames written when the timeout elapses.
func (w *ringWriter) write(p []byte, timeout time.Duration) (int, error) {
	bpf := w.core.format.BytesPerFrame()
	if bpf == 0 || len(p)%bpf != 0 {
		return 0, ErrorIllegalArgument
	}
	if w.core.State() != StateStarted {
		return 0, ErrorInvalidState
	}

	w.writing.Store(true)
	defer w.writing.Store(false)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	written := 0
	for written < len(p) {
		limit := w.core.format.FramesToBytes(w.core.BufferSize())
		room := min(w.ring.Free(), limit-w.ring.Length(), len(p)-written)
		room -= room % bpf
		if room > 0 {
			n, _ := w.ring.Write(p[written : written+room])
			written += n
			continue
		}

		select {
		case <-w.space:
		case <-w.closed:
			return written / bpf, ErrorDisconnected
		case <-deadline.C:
			if written == 0 {
				return 0, ErrorTimeout
			}
			return written / bpf, nil
		}
	}
	return written / bpf, nil
}

// render fills out from the ring and zero-fills the rest. A short read
// while a writer is active counts as an underrun.
func (w *ringWriter) render(out []byte) {
	n, _ := w.ring.TryRead(out)
	if n < len(out) {
		clear(out[n:])
		if w.writing.Load() {
			w.core.addUnderrun()
		}
	}
	select {
	case w.space <- struct{}{}:
	default:
	}
}

func (w *ringWriter) close() {
	w.once.Do(func() {
		close(w.closed)
		w.ring.Reset()
	})
}
