// ABOUTME: In-memory PCM store for extracted audio
// ABOUTME: Preallocated sample buffer with bounded writes and silence past the end
package pcm

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
)

// ErrOutOfRange is returned when a write would exceed the store capacity
var ErrOutOfRange = errors.New("pcm: write out of range")

// Store holds interleaved PCM for one track. It is written once by
// extraction and read repeatedly by playback. The store keeps no cursors:
// callers own their read and write positions.
//
// Writes and reads may run on different goroutines. Readers never see
// bytes past the written watermark.
type Store struct {
	format audio.Format
	data   []byte

	// bytes written from offset 0, published after each copy
	written atomic.Int64
	// total frames; shrinks to the written length on Finish
	total    atomic.Int64
	finished atomic.Bool
}

// NewStore preallocates a zeroed store for frames frames of format
func NewStore(format audio.Format, frames int) (*Store, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if frames < 0 {
		return nil, fmt.Errorf("pcm: negative frame count %d", frames)
	}
	s := &Store{
		format: format,
		data:   make([]byte, format.FramesToBytes(frames)),
	}
	s.total.Store(int64(frames))
	return s, nil
}

func (s *Store) Format() audio.Format { return s.format }

// Capacity returns the preallocated size in bytes
func (s *Store) Capacity() int { return len(s.data) }

// TotalFrames returns the track length in frames
func (s *Store) TotalFrames() int { return int(s.total.Load()) }

// WrittenFrames returns the number of whole frames extracted so far
func (s *Store) WrittenFrames() int { return s.format.BytesToFrames(int(s.written.Load())) }

// Finished reports whether extraction completed
func (s *Store) Finished() bool { return s.finished.Load() }

// Write copies p into the store at byte offset
func (s *Store) Write(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > len(s.data) {
		return fmt.Errorf("%w: offset %d + %d bytes exceeds capacity %d", ErrOutOfRange, offset, len(p), len(s.data))
	}
	copy(s.data[offset:], p)

	end := int64(offset + len(p))
	for {
		cur := s.written.Load()
		if end <= cur || s.written.CompareAndSwap(cur, end) {
			return nil
		}
	}
}

// Finish fixes the total length at the frames written so far
func (s *Store) Finish() {
	s.total.Store(int64(s.WrittenFrames()))
	s.finished.Store(true)
}

// readable returns the number of frames that can be read at cursor
func (s *Store) readable(cursor int) int {
	limit := min(s.TotalFrames(), s.WrittenFrames())
	if cursor < 0 || cursor >= limit {
		return 0
	}
	return limit - cursor
}

// Read returns a view of up to frames frames starting at cursor, clipped
// to the track length. At or past the end it returns frames frames of
// silence instead.
func (s *Store) Read(cursor, frames int) []byte {
	n := min(frames, s.readable(cursor))
	if n <= 0 {
		return make([]byte, s.format.FramesToBytes(frames))
	}
	start := s.format.FramesToBytes(cursor)
	return s.data[start : start+s.format.FramesToBytes(n)]
}

// ReadInto copies frames starting at cursor into dst, zero-filling the
// rest of dst, and returns the number of real frames copied. It does not
// allocate.
func (s *Store) ReadInto(dst []byte, cursor int) int {
	frames := s.format.BytesToFrames(len(dst))
	n := min(frames, s.readable(cursor))
	copied := 0
	if n > 0 {
		start := s.format.FramesToBytes(cursor)
		copied = copy(dst, s.data[start:start+s.format.FramesToBytes(n)])
	}
	clear(dst[copied:])
	return n
}

// Samples exports the written audio as interleaved int16
func (s *Store) Samples() []int16 {
	count := s.readable(0) * s.format.Channels
	out := make([]int16, count)
	for i := range out {
		out[i] = audio.SampleAt(s.data, s.format.Sample, i)
	}
	return out
}

// MonoSamples exports the written audio downmixed to one channel by
// averaging each frame
func (s *Store) MonoSamples() []int16 {
	frames := s.readable(0)
	ch := s.format.Channels
	out := make([]int16, frames)
	for f := range out {
		sum := 0
		for c := 0; c < ch; c++ {
			sum += int(audio.SampleAt(s.data, s.format.Sample, f*ch+c))
		}
		out[f] = int16(sum / ch)
	}
	return out
}
