// ABOUTME: Package engine documentation
// ABOUTME: Stream-driven playback core
// Package engine renders a PCM track into an output stream.
//
// State is shared between the control context and the audio context
// through atomics. A Lifecycle owns the stream; a CallbackDriver or a
// ThreadDriver renders into it; a Controller flips the playing flag.
// CallbackPlayer and ThreadPlayer assemble these into the two stream
// based Player variants. TuneLowLatency searches for the smallest glitch
// free buffer size on a write-mode stream.
package engine
