// ABOUTME: Ogg Vorbis decoder
// ABOUTME: Decodes Ogg Vorbis to float samples through oggvorbis
package decode

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

// Vorbis decodes Ogg Vorbis
type Vorbis struct{}

func (Vorbis) Decode(r io.ReadSeeker) (Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create vorbis decoder: %w", err)
	}

	length := -1
	if n := dec.Length(); n > 0 {
		length = int(n)
	}
	return &vorbisSource{
		info: info{sampleRate: dec.SampleRate(), channels: dec.Channels(), length: length},
		dec:  dec,
	}, nil
}

type vorbisSource struct {
	info
	dec *oggvorbis.Reader
}

func (s *vorbisSource) Close() error { return nil }

// ReadSamples reads whole frames; oggvorbis returns a multiple of the
// channel count
func (s *vorbisSource) ReadSamples(dst []float32) (int, error) {
	want := len(dst) - len(dst)%s.channels
	if want == 0 {
		return 0, nil
	}
	n, err := s.dec.Read(dst[:want])
	if n == 0 && err != nil {
		return 0, err
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}
