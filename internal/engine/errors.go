// ABOUTME: Engine error types
// ABOUTME: Sentinels and typed stream errors carrying platform result codes
package engine

import (
	"errors"
	"fmt"

	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

var (
	// ErrNoStream is returned when an operation needs an open stream
	ErrNoStream = errors.New("engine: no stream open")
	// ErrNotStarted is returned when a stream never reached the started state
	ErrNotStarted = errors.New("engine: stream not started")
	// ErrRenderLoopBusy is returned when a paused render loop is still
	// draining its last write
	ErrRenderLoopBusy = errors.New("engine: render loop still stopping")
)

// StreamOpenError reports that the platform refused to open a stream
type StreamOpenError struct {
	Code output.Result
	Err  error
}

func (e *StreamOpenError) Error() string {
	return fmt.Sprintf("open stream: %v (code %d)", e.Err, int32(e.Code))
}

func (e *StreamOpenError) Unwrap() error { return e.Err }

// StreamStartError reports that the platform refused to start a stream
type StreamStartError struct {
	Code output.Result
	Err  error
}

func (e *StreamStartError) Error() string {
	return fmt.Sprintf("start stream: %v (code %d)", e.Err, int32(e.Code))
}

func (e *StreamStartError) Unwrap() error { return e.Err }
