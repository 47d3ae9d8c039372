// ABOUTME: Audio output contract shared by every playback backend
// ABOUTME: Defines streams, builders, stream states and performance modes
package output

import (
	"fmt"
	"time"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
)

// StreamState mirrors the lifecycle states of a hardware output stream
type StreamState int32

const (
	StateUninitialized StreamState = iota
	StateUnknown
	StateOpen
	StateStarting
	StateStarted
	StatePausing
	StatePaused
	StateFlushing
	StateFlushed
	StateStopping
	StateStopped
	StateClosing
	StateClosed
	StateDisconnected
)

var stateNames = [...]string{
	"uninitialized", "unknown", "open", "starting", "started", "pausing", "paused",
	"flushing", "flushed", "stopping", "stopped", "closing", "closed", "disconnected",
}

func (s StreamState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// SharingMode selects exclusive or shared device access
type SharingMode int

const (
	SharingShared SharingMode = iota
	SharingExclusive
)

func (m SharingMode) String() string {
	if m == SharingExclusive {
		return "exclusive"
	}
	return "shared"
}

// PerformanceMode is a latency/power hint for the backend
type PerformanceMode int

const (
	PerformanceNone PerformanceMode = iota
	PerformancePowerSaving
	PerformanceLowLatency
)

func (m PerformanceMode) String() string {
	switch m {
	case PerformancePowerSaving:
		return "power-saving"
	case PerformanceLowLatency:
		return "low-latency"
	default:
		return "none"
	}
}

// Direction of a stream. Only output streams are opened by the engine.
type Direction int

const (
	DirectionOutput Direction = iota
	DirectionInput
)

func (d Direction) String() string {
	if d == DirectionInput {
		return "input"
	}
	return "output"
}

// CallbackResult tells the backend whether to keep calling the data callback
type CallbackResult int

const (
	CallbackContinue CallbackResult = iota
	CallbackStop
)

// DataCallback fills out with exactly frames frames. It runs on the
// backend's real-time thread and must not block.
type DataCallback func(s Stream, out []byte, frames int) CallbackResult

// ErrorCallback reports that s became unusable. Blocking calls on s are
// not allowed from inside it.
type ErrorCallback func(s Stream, err error)

// StreamConfig is what a Builder needs to open a stream.
// A nil DataCallback opens the stream in blocking-write mode.
type StreamConfig struct {
	Format          audio.Format
	FramesPerBurst  int // hint, 0 lets the backend choose
	SharingMode     SharingMode
	PerformanceMode PerformanceMode
	Direction       Direction
	DataCallback    DataCallback
	ErrorCallback   ErrorCallback
}

// Stream is an open hardware output stream
type Stream interface {
	Format() audio.Format
	SharingMode() SharingMode
	PerformanceMode() PerformanceMode

	// Start requests the transition to StateStarted
	Start() error

	// Stop requests the transition to StateStopped
	Stop() error

	// Close releases the stream. Closing twice reports ErrorInvalidState.
	Close() error

	State() StreamState

	// WaitForStateChange blocks until the state differs from current or
	// the timeout elapses (ErrorTimeout), returning the latest state.
	WaitForStateChange(current StreamState, timeout time.Duration) (StreamState, error)

	FramesPerBurst() int
	BufferSize() int

	// SetBufferSize requests a new buffer size in frames and returns the
	// size actually granted.
	SetBufferSize(frames int) (int, error)

	BufferCapacity() int
	UnderrunCount() int

	// Write blocks until p is queued or the timeout elapses, returning the
	// number of frames written. Only valid on write-mode streams.
	Write(p []byte, timeout time.Duration) (int, error)
}

// Builder opens streams. Callers release it with Close once the stream
// is open or opening failed.
type Builder interface {
	OpenStream(cfg StreamConfig) (Stream, error)
	Close() error
}

// Backend hands out builders for one audio API
type Backend interface {
	Name() string
	NewBuilder() (Builder, error)
}

// clampBufferSize rounds frames up to a whole number of bursts within
// [burst, capacity]
func clampBufferSize(frames, burst, capacity int) int {
	if burst <= 0 {
		return min(frames, capacity)
	}
	n := (frames + burst - 1) / burst * burst
	if n < burst {
		n = burst
	}
	if n > capacity {
		n = capacity / burst * burst
	}
	return n
}
