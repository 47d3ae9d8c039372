// ABOUTME: Player variants over pull and write-mode streams
// ABOUTME: Shared configuration and the Player interface used by the host bridge
package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/soundsystem-go/soundsystem/internal/metrics"
	"github.com/soundsystem-go/soundsystem/pkg/audio"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
	"github.com/soundsystem-go/soundsystem/pkg/audio/pcm"
)

// Player is one playback backend variant
type Player interface {
	// Open brings up the output. Calling it again is a no-op.
	Open() error
	// SetStore attaches a track and rewinds to its start
	SetStore(store *pcm.Store)
	Store() *pcm.Store
	// Play pauses when playing, otherwise starts when play is true. It
	// returns whether the player is playing afterwards.
	Play(play bool) (bool, error)
	// Stop halts playback and rewinds to the start of the track
	Stop() error
	IsPlaying() bool
	// Ended reports whether the cursor sits at the end of a finished track
	Ended() bool
	Cursor() int
	// Format is the format the store must hold
	Format() audio.Format
	Close() error
}

// Config configures a player
type Config struct {
	ID              string
	Format          audio.Format
	FramesPerBurst  int
	SharingMode     output.SharingMode
	PerformanceMode output.PerformanceMode

	// TuneOnStart runs the low latency tuner after the stream starts
	TuneOnStart bool
	Tune        TuneOptions

	// WriteTimeout bounds each blocking write of the render loop
	WriteTimeout time.Duration

	Logger  zerolog.Logger
	Metrics *metrics.Engine
	Events  Events
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "default"
	}
	if c.Format.Sample == audio.FormatInvalid {
		c.Format.Sample = audio.FormatI16
	}
	if c.Format.Channels == 0 {
		c.Format.Channels = 2
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.Metrics == nil {
		c.Metrics = metrics.ForEngine(c.ID)
	}
	if c.Events == nil {
		c.Events = NopEvents{}
	}
	c.Tune.Logger = c.Logger
}

func (c *Config) streamConfig(data output.DataCallback, onError output.ErrorCallback) output.StreamConfig {
	return output.StreamConfig{
		Format:          c.Format,
		FramesPerBurst:  c.FramesPerBurst,
		SharingMode:     c.SharingMode,
		PerformanceMode: c.PerformanceMode,
		Direction:       output.DirectionOutput,
		DataCallback:    data,
		ErrorCallback:   onError,
	}
}

// streamPlayer holds what the callback and thread players share
type streamPlayer struct {
	mu         sync.Mutex
	cfg        Config
	state      *State
	lifecycle  *Lifecycle
	controller *Controller
}

func (p *streamPlayer) SetStore(store *pcm.Store) { p.state.SetStore(store) }
func (p *streamPlayer) Store() *pcm.Store         { return p.state.Store() }
func (p *streamPlayer) IsPlaying() bool           { return p.state.IsPlaying() }
func (p *streamPlayer) Ended() bool               { return p.state.AtEnd() }
func (p *streamPlayer) Cursor() int               { return p.state.Cursor() }

// State exposes the shared engine state
func (p *streamPlayer) State() *State { return p.state }

// Lifecycle exposes the stream lifecycle
func (p *streamPlayer) Lifecycle() *Lifecycle { return p.lifecycle }

// Format returns the open stream's format, or the configured one
func (p *streamPlayer) Format() audio.Format {
	if s := p.lifecycle.Stream(); s != nil {
		return s.Format()
	}
	return p.cfg.Format
}

// reportRejectedGrowth logs buffer growth the audio path could not get
func (p *streamPlayer) reportRejectedGrowth() {
	if n := p.state.TakeGrowthRejected(); n > 0 {
		p.cfg.Logger.Warn().
			Int("rejected", n).
			Int("buffer_size", p.state.BufferSize()).
			Msg("Output rejected buffer growth after underruns")
	}
}

// pause stops rendering and reports the new state
func (p *streamPlayer) pause() (bool, error) {
	p.reportRejectedGrowth()
	if p.controller.Stop() {
		p.cfg.Events.PlayingChanged(false)
	}
	return false, nil
}

// resume starts rendering. A track parked at its end restarts from the
// beginning.
func (p *streamPlayer) resume() (bool, error) {
	if p.state.AtEnd() {
		p.state.SetCursor(0)
	}
	changed, err := p.controller.Start()
	if err != nil {
		return false, err
	}
	if changed {
		p.cfg.Events.PlayingChanged(true)
	}
	return true, nil
}

func (p *streamPlayer) stop() {
	p.reportRejectedGrowth()
	if p.controller.Stop() {
		p.cfg.Events.PlayingChanged(false)
	}
	p.state.SetCursor(0)
	p.cfg.Events.TrackStopped()
}

// CallbackPlayer plays through a stream whose platform thread pulls audio
// from a data callback
type CallbackPlayer struct {
	streamPlayer
	driver *CallbackDriver
}

var _ Player = (*CallbackPlayer)(nil)

// NewCallbackPlayer creates a player for backend. Nothing is opened until
// Open.
func NewCallbackPlayer(backend output.Backend, cfg Config) *CallbackPlayer {
	cfg.applyDefaults()
	state := NewState()
	driver := &CallbackDriver{renderer: renderer{
		state:   state,
		events:  cfg.Events,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}}
	lc := NewLifecycle(backend, cfg.streamConfig(driver.OnAudioReady, driver.OnError), state, cfg.Logger, cfg.Metrics)
	driver.lifecycle = lc

	return &CallbackPlayer{
		streamPlayer: streamPlayer{
			cfg:        cfg,
			state:      state,
			lifecycle:  lc,
			controller: &Controller{state: state, lifecycle: lc},
		},
		driver: driver,
	}
}

// Open opens and starts the stream. The callback renders silence until
// Play.
func (p *CallbackPlayer) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked()
}

func (p *CallbackPlayer) openLocked() error {
	if p.lifecycle.Stream() != nil {
		return nil
	}
	if err := p.lifecycle.Open(); err != nil {
		return err
	}
	if err := p.lifecycle.Start(); err != nil {
		p.lifecycle.Close()
		return err
	}
	if p.cfg.TuneOnStart {
		// probe writes are not allowed on callback streams
		p.cfg.Logger.Debug().Msg("Skipping latency tuning on callback stream")
		p.cfg.Metrics.TuningRun(metrics.TuningSkipped)
	}
	return nil
}

func (p *CallbackPlayer) Play(play bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.IsPlaying() {
		return p.pause()
	}
	if !play {
		return false, nil
	}
	if err := p.openLocked(); err != nil {
		return false, err
	}
	return p.resume()
}

func (p *CallbackPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
	return nil
}

// Close stops playback and releases the stream. Safe to call repeatedly.
func (p *CallbackPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reportRejectedGrowth()
	p.controller.Stop()
	p.lifecycle.Close()
	return nil
}

// ThreadPlayer plays through a write-mode stream fed by its own render loop
type ThreadPlayer struct {
	streamPlayer
	driver *ThreadDriver
	tuned  *TuneResult
}

var _ Player = (*ThreadPlayer)(nil)

// NewThreadPlayer creates a player for backend. Nothing is opened until
// Open.
func NewThreadPlayer(backend output.Backend, cfg Config) *ThreadPlayer {
	cfg.applyDefaults()
	state := NewState()
	driver := &ThreadDriver{
		renderer: renderer{
			state:   state,
			events:  cfg.Events,
			logger:  cfg.Logger,
			metrics: cfg.Metrics,
		},
		writeTimeout: cfg.WriteTimeout,
	}
	lc := NewLifecycle(backend, cfg.streamConfig(nil, driver.OnError), state, cfg.Logger, cfg.Metrics)
	driver.lifecycle = lc

	return &ThreadPlayer{
		streamPlayer: streamPlayer{
			cfg:        cfg,
			state:      state,
			lifecycle:  lc,
			controller: &Controller{state: state, lifecycle: lc, requestStop: true},
		},
		driver: driver,
	}
}

// Open opens and starts the stream, tunes it when configured and launches
// the render loop
func (p *ThreadPlayer) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked()
}

func (p *ThreadPlayer) openLocked() error {
	if p.driver.Running() && !p.state.StopRequested() {
		return nil
	}
	// the previous loop owns its stream until it exits
	if !p.driver.Wait(2 * p.cfg.WriteTimeout) {
		return ErrRenderLoopBusy
	}

	if err := p.lifecycle.Open(); err != nil {
		return err
	}
	if err := p.lifecycle.Start(); err != nil {
		p.lifecycle.Close()
		return err
	}
	if p.cfg.TuneOnStart {
		res, err := p.lifecycle.Tune(p.cfg.Tune)
		if err != nil {
			p.cfg.Logger.Warn().Err(err).Int("buffer_size", res.BufferSize).Msg("Latency tuning failed")
		} else {
			p.cfg.Logger.Info().
				Int("buffer_size", res.BufferSize).
				Int("iterations", res.Iterations).
				Bool("converged", res.Converged).
				Msg("Latency tuned")
		}
		p.tuned = &res
	}
	p.driver.Run()
	return nil
}

// Tuning returns the result of the last tuning pass, if any
func (p *ThreadPlayer) Tuning() (TuneResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tuned == nil {
		return TuneResult{}, false
	}
	return *p.tuned, true
}

func (p *ThreadPlayer) Play(play bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.IsPlaying() {
		return p.pause()
	}
	if !play {
		return false, nil
	}
	if err := p.openLocked(); err != nil {
		return false, err
	}
	return p.resume()
}

// Stop halts playback and lets the render loop release the stream
func (p *ThreadPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
	return nil
}

// Close stops the render loop and releases the stream
func (p *ThreadPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reportRejectedGrowth()
	p.controller.Stop()
	if !p.driver.Wait(2 * p.cfg.WriteTimeout) {
		p.cfg.Logger.Warn().Msg("Render loop did not exit in time")
	}
	p.lifecycle.Close()
	return nil
}
