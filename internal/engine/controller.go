// ABOUTME: Playback controller
// ABOUTME: Flips the playing and stop-requested flags read by the drivers
package engine

// Controller starts and stops rendering without touching the stream
type Controller struct {
	state     *State
	lifecycle *Lifecycle
	// requestStop also asks a render loop to exit on Stop
	requestStop bool
}

// Start makes the drivers render track audio. It reports whether the
// playing flag changed.
func (c *Controller) Start() (bool, error) {
	if c.lifecycle.Stream() == nil {
		return false, ErrNoStream
	}
	return c.state.SetPlaying(true), nil
}

// Stop makes the drivers render silence. Safe to call with no stream.
func (c *Controller) Stop() bool {
	changed := c.state.SetPlaying(false)
	if c.requestStop {
		c.state.RequestStop()
	}
	return changed
}
