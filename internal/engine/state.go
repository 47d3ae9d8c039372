// ABOUTME: Engine state shared by the control and audio contexts
// ABOUTME: Atomic flags, the read cursor and the attached PCM store
package engine

import (
	"sync/atomic"

	"github.com/soundsystem-go/soundsystem/pkg/audio/pcm"
)

// State is read by the audio context on every render and written by the
// control context. Every field is atomic so neither side takes a lock.
type State struct {
	playing       atomic.Bool
	stopRequested atomic.Bool
	endSignaled   atomic.Bool

	cursor atomic.Int64
	store  atomic.Pointer[pcm.Store]

	burst      atomic.Int32
	bufferSize atomic.Int32
	underruns  atomic.Int32

	// growth requests rejected since the control side last looked
	growthRejected atomic.Int32
}

// NewState creates an idle state with no store attached
func NewState() *State {
	return &State{}
}

func (s *State) IsPlaying() bool { return s.playing.Load() }

// SetPlaying sets the playing flag and reports whether it changed
func (s *State) SetPlaying(playing bool) bool {
	return s.playing.Swap(playing) != playing
}

func (s *State) StopRequested() bool { return s.stopRequested.Load() }
func (s *State) RequestStop()        { s.stopRequested.Store(true) }
func (s *State) ClearStopRequest()   { s.stopRequested.Store(false) }

// Cursor returns the read position in frames
func (s *State) Cursor() int { return int(s.cursor.Load()) }

// SetCursor moves the read position and re-arms end-of-track detection
func (s *State) SetCursor(frames int) {
	s.cursor.Store(int64(frames))
	s.endSignaled.Store(false)
}

func (s *State) Store() *pcm.Store { return s.store.Load() }

// SetStore attaches a track and rewinds to its start
func (s *State) SetStore(store *pcm.Store) {
	s.store.Store(store)
	s.SetCursor(0)
}

func (s *State) FramesPerBurst() int          { return int(s.burst.Load()) }
func (s *State) SetFramesPerBurst(frames int) { s.burst.Store(int32(frames)) }
func (s *State) BufferSize() int              { return int(s.bufferSize.Load()) }
func (s *State) SetBufferSize(frames int)     { s.bufferSize.Store(int32(frames)) }

// UnderrunBaseline is the stream underrun count last acted on
func (s *State) UnderrunBaseline() int         { return int(s.underruns.Load()) }
func (s *State) SetUnderrunBaseline(count int) { s.underruns.Store(int32(count)) }

// TakeGrowthRejected returns how many buffer growth requests were
// rejected since the last call, and resets the count
func (s *State) TakeGrowthRejected() int { return int(s.growthRejected.Swap(0)) }

// AtEnd reports whether the cursor reached the end of a fully extracted
// track
func (s *State) AtEnd() bool {
	store := s.store.Load()
	return store != nil && store.Finished() && s.Cursor() >= store.TotalFrames()
}

// Render copies frames from the store at the cursor into out and advances
// the cursor. Anything not covered by track audio is silence. It returns
// the number of track frames copied and never blocks.
func (s *State) Render(out []byte) int {
	if !s.playing.Load() {
		clear(out)
		return 0
	}
	store := s.store.Load()
	if store == nil {
		clear(out)
		return 0
	}

	cur := s.cursor.Load()
	n := store.ReadInto(out, int(cur))
	if n > 0 {
		// a concurrent rewind from the control context wins
		s.cursor.CompareAndSwap(cur, cur+int64(n))
	}
	return n
}

// claimEnd reports true exactly once per pass through the end of the track
func (s *State) claimEnd() bool {
	return s.AtEnd() && s.endSignaled.CompareAndSwap(false, true)
}
