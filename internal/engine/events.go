// ABOUTME: Playback event sink
// ABOUTME: Notifications raised by players toward the host
package engine

// Events receives playback notifications. Implementations must not block;
// EndOfTrack may be called from the audio context.
type Events interface {
	PlayingChanged(playing bool)
	EndOfTrack()
	TrackStopped()
}

// NopEvents discards every notification
type NopEvents struct{}

func (NopEvents) PlayingChanged(bool) {}
func (NopEvents) EndOfTrack()         {}
func (NopEvents) TrackStopped()       {}
