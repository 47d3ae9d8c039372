// ABOUTME: Host application bridge
// ABOUTME: Init, load, play, stop, export and release one playback engine
package soundsystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/internal/engine"
	"github.com/soundsystem-go/soundsystem/internal/metrics"
	"github.com/soundsystem-go/soundsystem/internal/queue"
	"github.com/soundsystem-go/soundsystem/pkg/audio"
	"github.com/soundsystem-go/soundsystem/pkg/audio/decode"
	"github.com/soundsystem-go/soundsystem/pkg/audio/pcm"
)

var (
	// ErrNotInitialized is returned by operations called before Init or
	// after Release
	ErrNotInitialized = errors.New("soundsystem: not initialized")
	// ErrNotLoaded is returned by Play when no track was loaded
	ErrNotLoaded = errors.New("soundsystem: no track loaded")
)

// Status is a snapshot of the engine flags
type Status struct {
	Initialized bool `json:"initialized"`
	Loaded      bool `json:"loaded"`
	Playing     bool `json:"playing"`
}

// Engine is one playback engine owned by a host. Every operation is safe
// to call in any order: before Init or after Release they do nothing and
// return ErrNotInitialized or a zero value.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	id      string
	logger  zerolog.Logger
	metrics *metrics.Engine
	events  *dispatcher

	initialized atomic.Bool
	loaded      atomic.Bool
	loadGen     atomic.Uint64

	ctx        context.Context
	cancel     context.CancelFunc
	player     engine.Player
	extraction *queue.Extraction
	direct     atomic.Pointer[queue.Direct]
}

// New creates an engine. Nothing touches the audio device until Init.
func New(cfg Config) (*Engine, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	logger := cfg.Logger.With().Str("component", "soundsystem").Str("engine", id).Logger()

	return &Engine{
		cfg:    cfg,
		id:     id,
		logger: logger,
		events: newDispatcher(logger),
	}, nil
}

// ID returns the engine instance id used in logs and metrics
func (e *Engine) ID() string { return e.id }

// Config returns the configuration with defaults applied
func (e *Engine) Config() Config { return e.cfg }

// Init brings up the output at sampleRate with framesPerBuffer frames
// per buffer. Zero values pick the defaults. Calling Init on an
// initialized engine does nothing.
func (e *Engine) Init(sampleRate, framesPerBuffer int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized.Load() {
		e.logger.Debug().Msg("Already initialized")
		return nil
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	format := audio.Format{Sample: e.cfg.SampleFormat, SampleRate: sampleRate, Channels: e.cfg.Channels}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	e.events.start()
	e.metrics = metrics.ForEngine(e.id)
	player := e.newPlayer(format, framesPerBuffer)
	if err := player.Open(); err != nil {
		player.Close()
		e.metrics.Forget()
		e.events.stop()
		return fmt.Errorf("init %s backend: %w", e.cfg.Backend, err)
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.player = player
	e.initialized.Store(true)
	e.logger.Info().
		Str("backend", string(e.cfg.Backend)).
		Stringer("format", player.Format()).
		Int("frames_per_buffer", framesPerBuffer).
		Msg("Engine initialized")
	return nil
}

func (e *Engine) newPlayer(format audio.Format, frames int) engine.Player {
	cfg := engine.Config{
		ID:              e.id,
		Format:          format,
		FramesPerBurst:  frames,
		SharingMode:     e.cfg.SharingMode,
		PerformanceMode: e.cfg.PerformanceMode,
		TuneOnStart:     e.cfg.TuneOnStart,
		Tune: engine.TuneOptions{
			StateChangeTimeout: e.cfg.StateChangeTimeout,
			WriteTimeout:       e.cfg.WriteTimeout,
		},
		WriteTimeout: e.cfg.WriteTimeout,
		Logger:       e.logger.With().Str("backend", string(e.cfg.Backend)).Logger(),
		Metrics:      e.metrics,
		Events:       engineEvents{d: e.events},
	}
	switch e.cfg.Backend {
	case BackendQueue:
		return queue.NewPlayback(e.cfg.Queue, cfg)
	case BackendThread:
		return engine.NewThreadPlayer(e.cfg.Output, cfg)
	default:
		return engine.NewCallbackPlayer(e.cfg.Output, cfg)
	}
}

// IsInitialized reports whether Init succeeded and Release was not called
func (e *Engine) IsInitialized() bool { return e.initialized.Load() }

// LoadFile stops playback and starts extracting path into a new PCM store.
// Extraction finishes in the background; IsLoaded turns true when it does.
func (e *Engine) LoadFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized.Load() {
		return ErrNotInitialized
	}

	if e.player.IsPlaying() {
		if err := e.player.Stop(); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to stop playback before load")
		}
	}
	e.closeExtractionLocked()

	src, err := e.cfg.Decoders.Open(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	ext, err := decode.NewExtractor(src, e.player.Format(), e.logger.With().Str("component", "extractor").Logger())
	if err != nil {
		src.Close()
		return fmt.Errorf("load %s: %w", path, err)
	}

	gen := e.loadGen.Add(1)
	x, err := queue.NewExtraction(ext, e.cfg.ExtractionFrames, e.logger, func(err error) {
		e.extractionDone(gen, err)
	})
	if err != nil {
		ext.Close()
		return fmt.Errorf("load %s: %w", path, err)
	}

	e.loaded.Store(false)
	e.player.SetStore(x.Store())
	e.extraction = x
	e.events.extractionStarted()

	if err := x.Start(e.ctx); err != nil {
		e.closeExtractionLocked()
		return fmt.Errorf("load %s: %w", path, err)
	}
	e.logger.Info().
		Str("path", path).
		Int("frames", x.Store().TotalFrames()).
		Int("source_rate", src.SampleRate()).
		Int("source_channels", src.Channels()).
		Msg("Extraction started")
	return nil
}

func (e *Engine) extractionDone(gen uint64, err error) {
	if e.loadGen.Load() != gen || errors.Is(err, queue.ErrCanceled) {
		return
	}
	if err != nil {
		e.logger.Error().Err(err).Msg("Extraction failed")
		return
	}
	e.loaded.Store(true)
	e.events.extractionCompleted()
	e.logger.Info().Msg("Extraction completed")
}

// WaitLoaded blocks until the current extraction ends and returns its
// error. After a nil return IsLoaded is true unless another load started.
func (e *Engine) WaitLoaded(ctx context.Context) error {
	e.mu.Lock()
	x := e.extraction
	e.mu.Unlock()
	if x == nil {
		return ErrNotLoaded
	}
	if err := x.Wait(ctx); err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	return nil
}

func (e *Engine) closeExtractionLocked() {
	if e.extraction == nil {
		return
	}
	if err := e.extraction.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to close extraction")
	}
	e.extraction = nil
	e.loaded.Store(false)
}

// Play toggles playback: while playing any call pauses, otherwise
// Play(true) starts
func (e *Engine) Play(play bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized.Load() {
		return ErrNotInitialized
	}
	if e.player.Store() == nil {
		return ErrNotLoaded
	}
	playing, err := e.player.Play(play)
	if err != nil {
		return fmt.Errorf("play: %w", err)
	}
	e.logger.Debug().Bool("playing", playing).Msg("Play toggled")
	return nil
}

// Stop halts playback and rewinds the track
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized.Load() {
		return ErrNotInitialized
	}
	if d := e.direct.Load(); d != nil {
		d.Close()
		e.direct.CompareAndSwap(d, nil)
	}
	return e.player.Stop()
}

// IsPlaying reports whether playback is on. Stream backends stay on,
// rendering silence, after the end of the track.
func (e *Engine) IsPlaying() bool {
	if !e.initialized.Load() {
		return false
	}
	if d := e.direct.Load(); d != nil && d.Playing() {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.player != nil && e.player.IsPlaying()
}

// IsLoaded reports whether the last LoadFile finished extracting
func (e *Engine) IsLoaded() bool {
	return e.initialized.Load() && e.loaded.Load()
}

// Status returns the engine flags
func (e *Engine) Status() Status {
	return Status{
		Initialized: e.IsInitialized(),
		Loaded:      e.IsLoaded(),
		Playing:     e.IsPlaying(),
	}
}

// GetExtractedData returns the loaded track as interleaved int16 samples,
// or nil when nothing is loaded
func (e *Engine) GetExtractedData() []int16 {
	store := e.loadedStore()
	if store == nil {
		return nil
	}
	return store.Samples()
}

// GetExtractedDataMono returns the loaded track averaged to one channel,
// or nil when nothing is loaded
func (e *Engine) GetExtractedDataMono() []int16 {
	store := e.loadedStore()
	if store == nil {
		return nil
	}
	return store.MonoSamples()
}

func (e *Engine) loadedStore() *pcm.Store {
	if !e.IsLoaded() {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player == nil {
		return nil
	}
	return e.player.Store()
}

// ExtractAndPlay decodes path straight to an output queue without keeping
// the audio. It does nothing while the engine is playing a track that has
// not reached its end.
func (e *Engine) ExtractAndPlay(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized.Load() {
		return ErrNotInitialized
	}
	if d := e.direct.Load(); (d != nil && d.Playing()) || (e.player.IsPlaying() && !e.player.Ended()) {
		e.logger.Debug().Str("path", path).Msg("Already playing, ignoring direct play")
		return nil
	}

	src, err := e.cfg.Decoders.Open(path)
	if err != nil {
		return fmt.Errorf("direct play %s: %w", path, err)
	}
	ext, err := decode.NewExtractor(src, e.player.Format(), e.logger.With().Str("component", "extractor").Logger())
	if err != nil {
		src.Close()
		return fmt.Errorf("direct play %s: %w", path, err)
	}

	var d *queue.Direct
	d, err = queue.NewDirect(e.cfg.Queue, ext, e.cfg.ExtractionFrames, e.logger, func(err error) {
		e.directEnded(d, err)
	})
	if err != nil {
		ext.Close()
		return fmt.Errorf("direct play %s: %w", path, err)
	}
	if err := d.Start(e.ctx); err != nil {
		d.Close()
		return fmt.Errorf("direct play %s: %w", path, err)
	}
	e.direct.Store(d)
	e.events.playingChanged(true)
	e.logger.Info().Str("path", path).Msg("Direct playback started")
	return nil
}

func (e *Engine) directEnded(d *queue.Direct, err error) {
	if !e.direct.CompareAndSwap(d, nil) {
		return
	}
	if err != nil {
		e.logger.Error().Err(err).Msg("Direct playback failed")
	}
	e.events.playingChanged(false)
	e.events.endOfTrack()
}

// Release stops playback and frees the output. The engine can be
// initialized again afterwards.
func (e *Engine) Release() error {
	if !e.release() {
		return nil
	}
	// observers may call back into the engine while the queue drains
	e.events.stop()
	e.logger.Info().Msg("Engine released")
	return nil
}

func (e *Engine) release() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized.Swap(false) {
		return false
	}
	if d := e.direct.Swap(nil); d != nil {
		d.Close()
	}
	e.loadGen.Add(1)
	e.closeExtractionLocked()
	if err := e.player.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to close player")
	}
	e.player = nil
	e.cancel()

	if c, ok := e.cfg.Output.(io.Closer); ok {
		if err := c.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to release output backend")
		}
	}
	e.metrics.Forget()
	return true
}

// AddPlayingObserver registers o. It returns false for nil or an
// observer already registered.
func (e *Engine) AddPlayingObserver(o PlayingObserver) bool { return e.events.addPlaying(o) }

// RemovePlayingObserver unregisters o and reports whether it was
// registered
func (e *Engine) RemovePlayingObserver(o PlayingObserver) bool { return e.events.removePlaying(o) }

// AddExtractionObserver registers o. It returns false for nil or an
// observer already registered.
func (e *Engine) AddExtractionObserver(o ExtractionObserver) bool { return e.events.addExtraction(o) }

// RemoveExtractionObserver unregisters o and reports whether it was
// registered
func (e *Engine) RemoveExtractionObserver(o ExtractionObserver) bool {
	return e.events.removeExtraction(o)
}
