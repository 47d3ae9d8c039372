// ABOUTME: Asynchronous extraction queue
// ABOUTME: Decodes a source into caller-submitted buffers at the engine format
package decode

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
	"github.com/soundsystem-go/soundsystem/pkg/audio/resample"
)

const (
	// buffers that may wait in the extraction queue
	queueDepth = 2

	// source samples decoded per read
	readChunk = 4096

	// consecutive empty reads treated as end of stream
	maxEmptyReads = 64
)

// FillCallback receives a submitted buffer holding n bytes of PCM in the
// extractor format. err is io.EOF on the last buffer of the stream, or the
// decode failure that ended extraction.
type FillCallback func(buf []byte, n int, err error)

// Extractor converts a Source to a fixed output format. Callers submit
// empty buffers with Enqueue and get them back filled through the
// registered callback, on the extractor goroutine.
type Extractor struct {
	src       Source
	format    audio.Format
	resampler *resample.Resampler
	logger    zerolog.Logger

	requests chan []byte

	mu       sync.Mutex
	callback FillCallback
	cancel   context.CancelFunc
	done     chan struct{}
	closed   atomic.Bool

	readBuf  []float32
	chanBuf  []float32
	outBuf   []float32
	outPos   int
	eof      bool
	empty    int
	produced atomic.Int64
}

// NewExtractor wraps src. A zero sample rate in format keeps the source
// rate; channels are duplicated or averaged to match format.
func NewExtractor(src Source, format audio.Format, logger zerolog.Logger) (*Extractor, error) {
	if format.SampleRate == 0 {
		format.SampleRate = src.SampleRate()
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if src.Channels() <= 0 || src.SampleRate() <= 0 {
		return nil, fmt.Errorf("%w: source reports %dHz/%dch", ErrUnsupportedFormat, src.SampleRate(), src.Channels())
	}

	return &Extractor{
		src:       src,
		format:    format,
		resampler: resample.New(src.SampleRate(), format.SampleRate, format.Channels),
		logger:    logger,
		requests:  make(chan []byte, queueDepth),
		readBuf:   make([]float32, readChunk-readChunk%src.Channels()),
	}, nil
}

func (e *Extractor) Format() audio.Format { return e.format }

// TotalFrames returns the expected length at the output rate, or -1 when
// the source length is unknown
func (e *Extractor) TotalFrames() int {
	n := e.src.Length()
	if n < 0 {
		return -1
	}
	return e.resampler.OutputFrames(n)
}

// FramesProduced returns the frames handed out so far
func (e *Extractor) FramesProduced() int { return int(e.produced.Load()) }

// Enqueue submits a buffer to be filled
func (e *Extractor) Enqueue(buf []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	select {
	case e.requests <- buf:
		return nil
	default:
		return ErrQueueFull
	}
}

func (e *Extractor) RegisterCallback(cb FillCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = cb
}

// Start begins decoding on a new goroutine
func (e *Extractor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	if e.done != nil {
		return nil
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx, e.done)
	return nil
}

// Close stops decoding and closes the source
func (e *Extractor) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return e.src.Close()
}

func (e *Extractor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-e.requests:
			n, err := e.fill(buf)
			e.produced.Add(int64(e.format.BytesToFrames(n)))

			e.mu.Lock()
			cb := e.callback
			e.mu.Unlock()
			if cb != nil {
				cb(buf, n, err)
			}
			if err != nil {
				if err != io.EOF {
					e.logger.Error().Err(err).Msg("Extraction failed")
				}
				return
			}
		}
	}
}

// fill writes whole frames into buf and reports io.EOF once the source is
// drained
func (e *Extractor) fill(buf []byte) (int, error) {
	bps := e.format.Sample.BytesPerSample()
	ch := e.format.Channels
	frames := e.format.BytesToFrames(len(buf))

	written := 0
	for written < frames {
		if e.outPos >= len(e.outBuf) {
			if e.eof {
				break
			}
			if err := e.decodeMore(); err != nil {
				return e.format.FramesToBytes(written), err
			}
			continue
		}
		for written < frames && e.outPos+ch <= len(e.outBuf) {
			base := written * ch
			for c := 0; c < ch; c++ {
				audio.PutSample(buf[(base+c)*bps:], e.format.Sample, e.outBuf[e.outPos+c])
			}
			e.outPos += ch
			written++
		}
	}

	n := e.format.FramesToBytes(written)
	if e.eof && e.outPos >= len(e.outBuf) {
		return n, io.EOF
	}
	return n, nil
}

// decodeMore refills outBuf with converted samples
func (e *Extractor) decodeMore() error {
	srcCh := e.src.Channels()
	n, err := e.src.ReadSamples(e.readBuf)
	n -= n % srcCh
	if err != nil && err != io.EOF {
		return err
	}

	out := e.outBuf[:0]
	e.outPos = 0
	if n > 0 {
		e.empty = 0
		e.chanBuf = convertChannels(e.readBuf[:n], srcCh, e.format.Channels, e.chanBuf)
		if e.resampler.Passthrough() {
			out = append(out, e.chanBuf...)
		} else {
			out = e.resample(out, e.chanBuf)
		}
	} else if err == nil {
		e.empty++
		if e.empty >= maxEmptyReads {
			err = io.EOF
		}
	}

	if err == io.EOF {
		e.eof = true
		if !e.resampler.Passthrough() {
			out = e.flush(out)
		}
	}
	e.outBuf = out
	return nil
}

func (e *Extractor) resample(out, in []float32) []float32 {
	need := e.resampler.MaxOutputSamples(len(in))
	out = growFloats(out, need)
	start := len(out) - need
	n := e.resampler.Resample(in, out[start:])
	return out[:start+n]
}

func (e *Extractor) flush(out []float32) []float32 {
	need := e.resampler.MaxOutputSamples(0)
	out = growFloats(out, need)
	start := len(out) - need
	n := e.resampler.Flush(out[start:])
	return out[:start+n]
}

// growFloats extends s by n samples
func growFloats(s []float32, n int) []float32 {
	if cap(s)-len(s) >= n {
		return s[:len(s)+n]
	}
	grown := make([]float32, len(s)+n, (len(s)+n)*2)
	copy(grown, s)
	return grown
}

// convertChannels maps interleaved samples between channel counts. Mono
// is duplicated, downmixes to mono average, anything else takes the
// matching source channel.
func convertChannels(in []float32, srcCh, dstCh int, out []float32) []float32 {
	frames := len(in) / srcCh
	if cap(out) < frames*dstCh {
		out = make([]float32, frames*dstCh)
	}
	out = out[:frames*dstCh]

	switch {
	case srcCh == dstCh:
		copy(out, in)
	case dstCh == 1:
		for f := 0; f < frames; f++ {
			var sum float32
			for c := 0; c < srcCh; c++ {
				sum += in[f*srcCh+c]
			}
			out[f] = sum / float32(srcCh)
		}
	default:
		for f := 0; f < frames; f++ {
			for c := 0; c < dstCh; c++ {
				out[f*dstCh+c] = in[f*srcCh+c%srcCh]
			}
		}
	}
	return out
}
