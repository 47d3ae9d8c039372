// ABOUTME: Synthetic queue backend for tests
// ABOUTME: Buffer queues the test drains by hand in place of a device
package audiotest

import (
	"sync"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

// QueueBackend is an output.QueueBackend whose queues are only consumed
// when the test calls Drain
type QueueBackend struct {
	mu      sync.Mutex
	queues  []*output.BufferQueue
	failErr error
}

func NewQueueBackend() *QueueBackend {
	return &QueueBackend{}
}

func (b *QueueBackend) Name() string { return "fake-queue" }

// FailNewQueue makes every NewQueue call fail with err
func (b *QueueBackend) FailNewQueue(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failErr = err
}

func (b *QueueBackend) NewQueue(format audio.Format, buffers int) (output.Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return nil, b.failErr
	}
	q := output.NewBufferQueue(format, buffers)
	b.queues = append(b.queues, q)
	return q, nil
}

// Queues returns every queue created so far
func (b *QueueBackend) Queues() []*output.BufferQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*output.BufferQueue(nil), b.queues...)
}

// Last returns the most recently created queue or nil
func (b *QueueBackend) Last() *output.BufferQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queues) == 0 {
		return nil
	}
	return b.queues[len(b.queues)-1]
}

// Drain consumes frames frames from q the way a device would
func Drain(q *output.BufferQueue, frames int) []byte {
	buf := make([]byte, q.Format().FramesToBytes(frames))
	q.Read(buf)
	return buf
}
