// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes MP3 to float samples through go-mp3
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// MP3 decodes MPEG-1/2 layer III. go-mp3 always yields 16-bit stereo.
type MP3 struct{}

func (MP3) Decode(r io.ReadSeeker) (Source, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	length := -1
	if n := dec.Length(); n > 0 {
		length = int(n / 4)
	}
	return &mp3Source{
		info: info{sampleRate: dec.SampleRate(), channels: 2, length: length},
		dec:  dec,
	}, nil
}

type mp3Source struct {
	info
	dec *mp3.Decoder
	buf []byte
}

func (s *mp3Source) Close() error { return nil }

func (s *mp3Source) ReadSamples(dst []float32) (int, error) {
	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.dec, buf)
	samples := n / 2
	for i := 0; i < samples; i++ {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(buf[i*2:]))) / 32768.0
	}

	if err == io.ErrUnexpectedEOF || err == io.EOF {
		if samples == 0 {
			return 0, io.EOF
		}
		return samples, nil
	}
	if err != nil {
		return samples, fmt.Errorf("mp3 decode error: %w", err)
	}
	return samples, nil
}
