// ABOUTME: Buffer-queue output contract and in-memory queue
// ABOUTME: Request-fill-submit playback where the device reports consumed buffers
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
)

// PlayState of a buffer-queue player
type PlayState int

const (
	PlayStateStopped PlayState = iota
	PlayStatePaused
	PlayStatePlaying
)

func (s PlayState) String() string {
	switch s {
	case PlayStatePaused:
		return "paused"
	case PlayStatePlaying:
		return "playing"
	default:
		return "stopped"
	}
}

// QueueCallback receives a buffer the device finished consuming
type QueueCallback func(buf []byte)

// Queue is a request-fill-submit output: callers enqueue filled buffers
// and the device hands each one back through the callback once played.
type Queue interface {
	Format() audio.Format

	// Enqueue submits buf. It fails with ErrorWouldBlock when Capacity
	// buffers are already in flight.
	Enqueue(buf []byte) error

	RegisterCallback(cb QueueCallback)
	SetPlayState(state PlayState) error
	PlayState() PlayState

	// Queued returns the number of buffers in flight
	Queued() int
	Capacity() int

	// Clear drops queued buffers without calling back
	Clear() error
	Close() error
}

// QueueBackend creates queues for one audio API
type QueueBackend interface {
	Name() string
	NewQueue(format audio.Format, buffers int) (Queue, error)
}

// BufferQueue is a Queue whose consumer is any io.Reader client, such as
// an oto player. Read never blocks: when nothing is queued or the queue
// is not playing it returns silence.
type BufferQueue struct {
	mu       sync.Mutex
	format   audio.Format
	capacity int
	bufs     [][]byte
	offset   int
	state    PlayState
	callback QueueCallback
	closed   bool

	// device hook run on play state changes, outside the lock
	onState func(PlayState)
}

// NewBufferQueue creates a queue holding at most capacity buffers
func NewBufferQueue(format audio.Format, capacity int) *BufferQueue {
	return &BufferQueue{
		format:   format,
		capacity: capacity,
		bufs:     make([][]byte, 0, capacity),
	}
}

func (q *BufferQueue) Format() audio.Format { return q.format }
func (q *BufferQueue) Capacity() int        { return q.capacity }

func (q *BufferQueue) Enqueue(buf []byte) error {
	if len(buf) == 0 {
		return ErrorIllegalArgument
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrorInvalidState
	}
	if len(q.bufs) >= q.capacity {
		return ErrorWouldBlock
	}
	q.bufs = append(q.bufs, buf)
	return nil
}

func (q *BufferQueue) RegisterCallback(cb QueueCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.callback = cb
}

func (q *BufferQueue) SetPlayState(state PlayState) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrorInvalidState
	}
	q.state = state
	if state == PlayStateStopped {
		q.bufs = q.bufs[:0]
		q.offset = 0
	}
	hook := q.onState
	q.mu.Unlock()

	if hook != nil {
		hook(state)
	}
	return nil
}

func (q *BufferQueue) PlayState() PlayState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *BufferQueue) Queued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.bufs)
}

func (q *BufferQueue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bufs = q.bufs[:0]
	q.offset = 0
	return nil
}

func (q *BufferQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrorInvalidState
	}
	q.closed = true
	q.bufs = nil
	return nil
}

// Read consumes queued audio into p. Every buffer fully consumed is
// handed to the callback after the lock is released.
func (q *BufferQueue) Read(p []byte) (int, error) {
	var doneBuf [4][]byte
	done := doneBuf[:0]

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, io.EOF
	}
	n := 0
	if q.state == PlayStatePlaying {
		for n < len(p) && len(q.bufs) > 0 {
			c := copy(p[n:], q.bufs[0][q.offset:])
			n += c
			q.offset += c
			if q.offset == len(q.bufs[0]) {
				done = append(done, q.bufs[0])
				q.bufs = q.bufs[1:]
				q.offset = 0
			}
		}
	}
	cb := q.callback
	q.mu.Unlock()

	clear(p[n:])
	if cb != nil {
		for _, b := range done {
			cb(b)
		}
	}
	return len(p), nil
}

func (q *BufferQueue) String() string {
	return fmt.Sprintf("BufferQueue(%v, %d/%d, %v)", q.format, q.Queued(), q.capacity, q.PlayState())
}
