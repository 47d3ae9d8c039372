// ABOUTME: Oto-based buffer-queue backend
// ABOUTME: Feeds a persistent oto player from a two-buffer request-fill-submit queue
package output

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
)

// oto only allows one context per process
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

func sharedOtoContext(format audio.Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if format != otoFormat {
			return nil, fmt.Errorf("oto context already running at %v, cannot switch to %v: %w",
				otoFormat, format, ErrorIncompatible)
		}
		return otoCtx, nil
	}

	var sampleFormat oto.Format
	switch format.Sample {
	case audio.FormatI16:
		sampleFormat = oto.FormatSignedInt16LE
	case audio.FormatF32:
		sampleFormat = oto.FormatFloat32LE
	default:
		return nil, fmt.Errorf("unsupported sample format %v: %w", format.Sample, ErrorIllegalArgument)
	}

	ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       sampleFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w: %w", ErrorUnavailable, err)
	}
	<-readyChan

	otoCtx = ctx
	otoFormat = format
	return ctx, nil
}

// Oto is a QueueBackend on top of the oto library
type Oto struct {
	logger zerolog.Logger
}

// NewOto creates a new Oto queue backend
func NewOto(logger zerolog.Logger) *Oto {
	return &Oto{logger: logger}
}

func (o *Oto) Name() string { return "oto" }

func (o *Oto) NewQueue(format audio.Format, buffers int) (Queue, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrorIllegalArgument, err)
	}
	if format.SampleRate == 0 {
		return nil, fmt.Errorf("oto needs an explicit sample rate: %w", ErrorIllegalArgument)
	}

	ctx, err := sharedOtoContext(format)
	if err != nil {
		return nil, err
	}

	q := &otoQueue{BufferQueue: NewBufferQueue(format, buffers), logger: o.logger}
	q.player = ctx.NewPlayer(q.BufferQueue)
	q.onState = q.applyState

	o.logger.Debug().
		Stringer("format", format).
		Int("buffers", buffers).
		Msg("Oto queue created")
	return q, nil
}

// otoQueue drives an oto player from a BufferQueue
type otoQueue struct {
	*BufferQueue
	player *oto.Player
	logger zerolog.Logger
}

func (q *otoQueue) applyState(state PlayState) {
	if state == PlayStatePlaying {
		q.player.Play()
		return
	}
	q.player.Pause()
}

func (q *otoQueue) Close() error {
	if err := q.BufferQueue.Close(); err != nil {
		return err
	}
	if err := q.player.Close(); err != nil {
		q.logger.Warn().Err(err).Msg("oto player close error")
	}
	return nil
}
