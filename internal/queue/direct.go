// ABOUTME: Direct extract-and-play through an output queue
// ABOUTME: Decoded buffers go straight to the device without a PCM store
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/soundsystem-go/soundsystem/pkg/audio/decode"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

// Direct streams an extractor into an output queue. The same two buffers
// travel decoder -> device -> decoder until the source ends.
type Direct struct {
	ext    *decode.Extractor
	queue  output.Queue
	bufs   [inFlight][]byte
	logger zerolog.Logger
	onEnd  func(err error)

	eof     atomic.Bool
	errMu   sync.Mutex
	err     error
	once    sync.Once
	done    chan struct{}
	playing atomic.Bool
}

// NewDirect opens a queue on backend at the extractor's format. onEnd runs
// once, on its own goroutine, after the last buffer played or the
// extraction failed.
func NewDirect(backend output.QueueBackend, ext *decode.Extractor, bufferFrames int, logger zerolog.Logger, onEnd func(err error)) (*Direct, error) {
	q, err := backend.NewQueue(ext.Format(), inFlight)
	if err != nil {
		return nil, fmt.Errorf("open %s queue: %w", backend.Name(), err)
	}
	if bufferFrames <= 0 {
		bufferFrames = DefaultExtractionFrames
	}

	d := &Direct{
		ext:    ext,
		queue:  q,
		logger: logger,
		onEnd:  onEnd,
		done:   make(chan struct{}),
	}
	size := ext.Format().FramesToBytes(bufferFrames)
	for i := range d.bufs {
		d.bufs[i] = make([]byte, size)
	}
	return d, nil
}

// Start primes the extractor and starts the device
func (d *Direct) Start(ctx context.Context) error {
	d.queue.RegisterCallback(d.onPlayed)
	d.ext.RegisterCallback(d.onDecoded)
	for _, buf := range d.bufs {
		if err := d.ext.Enqueue(buf); err != nil {
			return fmt.Errorf("prime extraction: %w", err)
		}
	}
	if err := d.ext.Start(ctx); err != nil {
		return err
	}
	if err := d.queue.SetPlayState(output.PlayStatePlaying); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	d.playing.Store(true)
	d.logger.Debug().Stringer("format", d.ext.Format()).Msg("Direct playback started")
	return nil
}

// Playing reports whether the direct player is still running
func (d *Direct) Playing() bool { return d.playing.Load() }

// Done is closed once the direct player has shut down
func (d *Direct) Done() <-chan struct{} { return d.done }

func (d *Direct) onDecoded(buf []byte, n int, err error) {
	if err != nil {
		if !errors.Is(err, io.EOF) {
			d.errMu.Lock()
			d.err = err
			d.errMu.Unlock()
		}
		d.eof.Store(true)
	}
	if n > 0 {
		if qerr := d.queue.Enqueue(buf[:n]); qerr != nil {
			d.logger.Warn().Err(qerr).Msg("Failed to submit decoded buffer")
		} else {
			return
		}
	}
	if d.eof.Load() {
		if d.queue.Queued() == 0 {
			go d.finish(true)
		}
		return
	}
	// nothing decoded this round, ask again
	if qerr := d.ext.Enqueue(buf[:cap(buf)]); qerr != nil {
		d.logger.Warn().Err(qerr).Msg("Failed to resubmit extraction buffer")
	}
}

func (d *Direct) onPlayed(buf []byte) {
	if d.eof.Load() {
		if d.queue.Queued() == 0 {
			go d.finish(true)
		}
		return
	}
	if err := d.ext.Enqueue(buf[:cap(buf)]); err != nil && !errors.Is(err, decode.ErrClosed) {
		d.logger.Warn().Err(err).Msg("Failed to resubmit extraction buffer")
	}
}

func (d *Direct) finish(natural bool) {
	d.once.Do(func() {
		d.playing.Store(false)
		if err := d.queue.SetPlayState(output.PlayStateStopped); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop output queue")
		}
		if err := d.ext.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to close extractor")
		}
		if err := d.queue.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to close output queue")
		}
		close(d.done)
		d.logger.Debug().Bool("natural", natural).Msg("Direct playback finished")

		if natural && d.onEnd != nil {
			d.errMu.Lock()
			err := d.err
			d.errMu.Unlock()
			d.onEnd(err)
		}
	})
}

// Close stops direct playback without reporting an end
func (d *Direct) Close() error {
	d.finish(false)
	return nil
}
