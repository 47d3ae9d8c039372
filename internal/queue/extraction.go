// ABOUTME: Extraction side of the buffer queue bridge
// ABOUTME: Copies decoded buffers into a PCM store and resubmits them
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/soundsystem-go/soundsystem/pkg/audio/decode"
	"github.com/soundsystem-go/soundsystem/pkg/audio/pcm"
)

// DefaultExtractionFrames is the size of each extraction buffer
const DefaultExtractionFrames = 4096

// Extraction fills a PCM store from an extractor through two rotating
// buffers. The store is sized from the extractor's length up front and
// fixed at the frames actually decoded once extraction ends.
type Extraction struct {
	ext    *decode.Extractor
	store  *pcm.Store
	bufs   [2][]byte
	logger zerolog.Logger
	onDone func(err error)

	// extractor goroutine only
	offset  int
	clipped bool

	once sync.Once
	done chan struct{}
	err  error
}

// NewExtraction preallocates a store for ext. onDone runs once when
// extraction ends, on the extractor goroutine or on the goroutine calling
// Close with ErrCanceled. It must not call Close.
func NewExtraction(ext *decode.Extractor, bufferFrames int, logger zerolog.Logger, onDone func(err error)) (*Extraction, error) {
	total := ext.TotalFrames()
	if total < 0 {
		return nil, decode.ErrUnknownLength
	}
	store, err := pcm.NewStore(ext.Format(), total)
	if err != nil {
		return nil, fmt.Errorf("allocate store: %w", err)
	}
	if bufferFrames <= 0 {
		bufferFrames = DefaultExtractionFrames
	}

	x := &Extraction{
		ext:    ext,
		store:  store,
		logger: logger,
		onDone: onDone,
		done:   make(chan struct{}),
	}
	size := ext.Format().FramesToBytes(bufferFrames)
	for i := range x.bufs {
		x.bufs[i] = make([]byte, size)
	}
	return x, nil
}

// Store returns the store being filled
func (x *Extraction) Store() *pcm.Store { return x.store }

// Start primes the extractor with both buffers and starts decoding
func (x *Extraction) Start(ctx context.Context) error {
	x.ext.RegisterCallback(x.onFilled)
	for _, buf := range x.bufs {
		if err := x.ext.Enqueue(buf); err != nil {
			return fmt.Errorf("prime extraction: %w", err)
		}
	}
	x.logger.Debug().
		Int("total_frames", x.store.TotalFrames()).
		Stringer("format", x.store.Format()).
		Msg("Extraction started")
	return x.ext.Start(ctx)
}

func (x *Extraction) onFilled(buf []byte, n int, err error) {
	if n > 0 {
		x.write(buf[:n])
	}
	if err != nil {
		x.finish(err)
		return
	}
	if qerr := x.ext.Enqueue(buf); qerr != nil {
		x.finish(qerr)
	}
}

func (x *Extraction) write(p []byte) {
	room := x.store.Capacity() - x.offset
	if len(p) > room {
		if !x.clipped {
			x.clipped = true
			x.logger.Debug().Int("dropped_bytes", len(p)-room).Msg("Decoder ran past its reported length")
		}
		p = p[:room]
	}
	if len(p) == 0 {
		return
	}
	if err := x.store.Write(x.offset, p); err != nil {
		x.logger.Warn().Err(err).Msg("Failed to write extracted audio")
		return
	}
	x.offset += len(p)
}

func (x *Extraction) finish(err error) {
	x.once.Do(func() {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		x.store.Finish()
		x.err = err

		ev := x.logger.Debug()
		if err != nil {
			ev = x.logger.Error().Err(err)
		}
		ev.Int("frames", x.store.TotalFrames()).Msg("Extraction completed")

		// waiters see the owner's state already updated
		if x.onDone != nil {
			x.onDone(err)
		}
		close(x.done)
	})
}

// Done is closed when extraction ends
func (x *Extraction) Done() <-chan struct{} { return x.done }

// Wait blocks until extraction ends and returns its error
func (x *Extraction) Wait(ctx context.Context) error {
	select {
	case <-x.done:
		return x.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finished reports whether extraction ended
func (x *Extraction) Finished() bool {
	select {
	case <-x.done:
		return true
	default:
		return false
	}
}

// Close stops decoding. The store keeps whatever was extracted.
func (x *Extraction) Close() error {
	err := x.ext.Close()
	x.finish(ErrCanceled)
	return err
}
