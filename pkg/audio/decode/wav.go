// ABOUTME: WAV decoder
// ABOUTME: Decodes integer PCM WAV files through go-audio/wav
package decode

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var errNotWav = errors.New("not a valid wav file")

// WAV decodes RIFF/WAVE integer PCM
type WAV struct{}

func (WAV) Decode(r io.ReadSeeker) (Source, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errNotWav
	}
	dec.ReadInfo()
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}

	format := dec.Format()
	if format == nil || format.NumChannels == 0 || dec.BitDepth == 0 {
		return nil, fmt.Errorf("wav: missing format chunk: %w", ErrUnsupportedFormat)
	}

	bytesPerFrame := int64(format.NumChannels) * int64(dec.BitDepth/8)
	return &intPCMSource{
		info: info{
			sampleRate: format.SampleRate,
			channels:   format.NumChannels,
			length:     int(dec.PCMLen() / bytesPerFrame),
		},
		dec:      dec,
		bitDepth: int(dec.BitDepth),
	}, nil
}

// pcmBufferReader is the part of the go-audio decoders intPCMSource uses
type pcmBufferReader interface {
	Format() *goaudio.Format
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// intPCMSource adapts go-audio integer buffers to float samples
type intPCMSource struct {
	info
	dec      pcmBufferReader
	bitDepth int
	intBuf   *goaudio.IntBuffer
}

func (s *intPCMSource) Close() error { return nil }

func (s *intPCMSource) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if s.intBuf == nil || cap(s.intBuf.Data) < len(dst) {
		s.intBuf = &goaudio.IntBuffer{
			Data:           make([]int, len(dst)),
			Format:         s.dec.Format(),
			SourceBitDepth: s.bitDepth,
		}
	}
	s.intBuf.Data = s.intBuf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.intBuf)
	if n == 0 {
		if err != nil && err != io.EOF {
			return 0, err
		}
		return 0, io.EOF
	}

	scale := float32(int64(1) << (s.bitDepth - 1))
	if s.bitDepth == 8 {
		// 8-bit PCM is unsigned
		for i := 0; i < n; i++ {
			dst[i] = float32(s.intBuf.Data[i]-128) / 128
		}
	} else {
		for i := 0; i < n; i++ {
			dst[i] = float32(s.intBuf.Data[i]) / scale
		}
	}

	if err == io.EOF {
		err = nil
	}
	return n, err
}
