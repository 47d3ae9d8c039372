// ABOUTME: Callback stream driver
// ABOUTME: Renders track audio from the platform's data callback
package engine

import (
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

// CallbackDriver is installed as the data and error callback of a pull
// stream
type CallbackDriver struct {
	renderer
	lifecycle *Lifecycle
}

// OnAudioReady fills out with frames frames. It never blocks and always
// asks the platform to keep calling.
func (d *CallbackDriver) OnAudioReady(s output.Stream, out []byte, frames int) output.CallbackResult {
	d.adaptBufferSize(s)
	d.fill(out)
	return output.CallbackContinue
}

// OnError hands a failed stream to the lifecycle for reopening. The reopen
// runs off the platform's thread.
func (d *CallbackDriver) OnError(s output.Stream, err error) {
	d.logger.Warn().Err(err).Msg("Stream error, reopening")
	go d.lifecycle.Reopen(s)
}
