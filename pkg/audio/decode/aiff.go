// ABOUTME: AIFF decoder
// ABOUTME: Decodes integer PCM AIFF files through go-audio/aiff
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
)

var errNotAiff = errors.New("not a valid aiff file")

// AIFF decodes AIFF integer PCM
type AIFF struct{}

func (AIFF) Decode(r io.ReadSeeker) (Source, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errNotAiff
	}
	dec.ReadInfo()

	format := dec.Format()
	if format == nil || format.NumChannels == 0 || dec.BitDepth == 0 {
		return nil, fmt.Errorf("aiff: missing COMM chunk: %w", ErrUnsupportedFormat)
	}

	return &intPCMSource{
		info: info{
			sampleRate: format.SampleRate,
			channels:   format.NumChannels,
			length:     int(dec.NumSampleFrames),
		},
		dec:      dec,
		bitDepth: int(dec.BitDepth),
	}, nil
}
