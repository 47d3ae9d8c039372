// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes FLAC frames to interleaved float samples through mewkiz/flac
package decode

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// FLAC decodes native FLAC streams
type FLAC struct{}

func (FLAC) Decode(r io.ReadSeeker) (Source, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create flac decoder: %w", err)
	}

	length := -1
	if stream.Info.NSamples > 0 {
		length = int(stream.Info.NSamples)
	}
	return &flacSource{
		info: info{
			sampleRate: int(stream.Info.SampleRate),
			channels:   int(stream.Info.NChannels),
			length:     length,
		},
		stream: stream,
		scale:  float32(int64(1) << (stream.Info.BitsPerSample - 1)),
	}, nil
}

type flacSource struct {
	info
	stream *flac.Stream
	scale  float32

	// interleaved samples of the current frame not yet handed out
	pending  []float32
	frameBuf []float32
}

func (s *flacSource) Close() error { return s.stream.Close() }

func (s *flacSource) ReadSamples(dst []float32) (int, error) {
	n := 0
	for n < len(dst) {
		if len(s.pending) == 0 {
			if err := s.nextFrame(); err != nil {
				if err == io.EOF && n > 0 {
					return n, nil
				}
				return n, err
			}
		}
		c := copy(dst[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n, nil
}

func (s *flacSource) nextFrame() error {
	frame, err := s.stream.ParseNext()
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("flac decode error: %w", err)
	}

	block := int(frame.BlockSize)
	need := block * s.channels
	if cap(s.frameBuf) < need {
		s.frameBuf = make([]float32, need)
	}
	buf := s.frameBuf[:need]
	for ch, sub := range frame.Subframes {
		if ch >= s.channels {
			break
		}
		for i := 0; i < block && i < len(sub.Samples); i++ {
			buf[i*s.channels+ch] = float32(sub.Samples[i]) / s.scale
		}
	}
	s.pending = buf
	return nil
}
