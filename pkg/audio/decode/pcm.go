// ABOUTME: Raw PCM decoder
// ABOUTME: Reads headerless 16-bit little-endian PCM at a fixed rate and channel count
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Raw decodes headerless signed 16-bit little-endian PCM
type Raw struct {
	SampleRate int
	Channels   int
}

func (d Raw) Decode(r io.ReadSeeker) (Source, error) {
	if d.SampleRate <= 0 || d.Channels <= 0 {
		return nil, fmt.Errorf("raw pcm needs sample rate and channels, got %dHz/%dch", d.SampleRate, d.Channels)
	}

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to size raw pcm: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind raw pcm: %w", err)
	}

	return &rawSource{
		info: info{
			sampleRate: d.SampleRate,
			channels:   d.Channels,
			length:     int(size) / (2 * d.Channels),
		},
		r: r,
	}, nil
}

type rawSource struct {
	info
	r   io.Reader
	buf []byte
}

func (s *rawSource) Close() error { return nil }

func (s *rawSource) ReadSamples(dst []float32) (int, error) {
	if cap(s.buf) < len(dst)*2 {
		s.buf = make([]byte, len(dst)*2)
	}
	buf := s.buf[:len(dst)*2]

	n, err := io.ReadFull(s.r, buf)
	samples := n / 2
	for i := 0; i < samples; i++ {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(buf[i*2:]))) / 32768.0
	}

	switch {
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		if samples == 0 {
			return 0, io.EOF
		}
		return samples, nil
	case err != nil:
		return samples, fmt.Errorf("raw pcm read: %w", err)
	}
	return samples, nil
}
