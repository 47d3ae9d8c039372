// ABOUTME: Decoder interface and registry
// ABOUTME: Maps file extensions to decoders producing float PCM sources
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrUnsupportedFormat is returned when no decoder handles a file
	ErrUnsupportedFormat = errors.New("decode: unsupported format")
	// ErrUnknownLength is returned when a source cannot report its length
	ErrUnknownLength = errors.New("decode: unknown stream length")
	// ErrQueueFull is returned by Extractor.Enqueue with two buffers pending
	ErrQueueFull = errors.New("decode: extraction queue full")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("decode: extractor closed")
)

// Source is a decoded PCM stream
type Source interface {
	SampleRate() int
	Channels() int

	// Length returns the stream length in frames, or -1 when unknown
	Length() int

	// ReadSamples fills dst with interleaved samples in [-1, 1] and
	// returns the number of samples read. It returns io.EOF at the end.
	ReadSamples(dst []float32) (int, error)

	Close() error
}

// Decoder opens a Source over encoded data
type Decoder interface {
	Decode(r io.ReadSeeker) (Source, error)
}

// Registry maps lower-case file extensions to decoders
type Registry struct {
	mu     sync.Mutex
	codecs map[string]Decoder
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Decoder)}
}

// DefaultRegistry returns a registry with every built-in decoder
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".wav", WAV{})
	r.Register(".aif", AIFF{})
	r.Register(".aiff", AIFF{})
	r.Register(".mp3", MP3{})
	r.Register(".ogg", Vorbis{})
	r.Register(".flac", FLAC{})
	r.Register(".pcm", Raw{SampleRate: 44100, Channels: 2})
	r.Register(".raw", Raw{SampleRate: 44100, Channels: 2})
	return r
}

func (r *Registry) Register(ext string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[strings.ToLower(ext)] = d
}

func (r *Registry) Get(ext string) (Decoder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.codecs[strings.ToLower(ext)]
	return d, ok
}

// Open decodes the file at path. Closing the source closes the file.
func (r *Registry) Open(path string) (Source, error) {
	ext := filepath.Ext(path)
	d, ok := r.Get(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	src, err := d.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &fileSource{Source: src, file: f}, nil
}

type fileSource struct {
	Source
	file *os.File
}

func (s *fileSource) Close() error {
	err := s.Source.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// info carries the metadata every source reports
type info struct {
	sampleRate int
	channels   int
	length     int
}

func (i info) SampleRate() int { return i.sampleRate }
func (i info) Channels() int   { return i.channels }
func (i info) Length() int     { return i.length }
