// ABOUTME: Queue bridge errors
// ABOUTME: Sentinels shared by the extraction and playback sides
package queue

import "errors"

var (
	// ErrCanceled reports an extraction stopped by Close
	ErrCanceled = errors.New("queue: extraction canceled")
	// ErrNoQueue is returned when an operation needs an open output queue
	ErrNoQueue = errors.New("queue: no output queue open")
)
