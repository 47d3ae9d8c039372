// ABOUTME: Render path shared by the callback and thread drivers
// ABOUTME: Buffer growth on underruns, frame accounting and end-of-track detection
package engine

import (
	"github.com/rs/zerolog"
	"github.com/soundsystem-go/soundsystem/internal/metrics"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

type renderer struct {
	state   *State
	events  Events
	logger  zerolog.Logger
	metrics *metrics.Engine
}

// adaptBufferSize grows the stream buffer by one burst when the underrun
// count moved past the recorded baseline
func (r *renderer) adaptBufferSize(s output.Stream) {
	count := s.UnderrunCount()
	baseline := r.state.UnderrunBaseline()
	if count <= baseline {
		return
	}
	r.state.SetUnderrunBaseline(count)
	r.metrics.AddUnderruns(count - baseline)

	want := r.state.BufferSize() + s.FramesPerBurst()
	granted, err := s.SetBufferSize(want)
	if err != nil {
		// no I/O here; the control side logs the count
		r.state.growthRejected.Add(1)
		r.metrics.IncResizeRejects()
		return
	}
	r.state.SetBufferSize(granted)
	r.metrics.SetBufferSize(granted)
}

// fill renders one buffer of audio into out. When the cursor reaches the
// end of a finished track the end of track is reported once; the cursor
// stays parked there and the stream keeps playing silence until a restart.
func (r *renderer) fill(out []byte) int {
	n := r.state.Render(out)
	if n > 0 {
		r.metrics.AddFramesRendered(n)
	} else {
		r.metrics.IncSilentCallbacks()
	}
	if r.state.IsPlaying() && r.state.claimEnd() {
		r.events.EndOfTrack()
	}
	return n
}
