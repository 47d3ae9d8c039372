// ABOUTME: Malgo-based stream backend
// ABOUTME: Opens miniaudio playback devices as callback or blocking-write streams
package output

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
)

const (
	// default burst when the caller gives no hint
	defaultBurstMillis = 4
	fallbackSampleRate = 48000

	// buffer capacity in bursts
	capacityBursts = 16
)

// Malgo is a Backend on top of miniaudio. One miniaudio context is shared
// by every stream the backend opens.
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	logger   zerolog.Logger
}

// NewMalgo creates a new Malgo backend
func NewMalgo(logger zerolog.Logger) *Malgo {
	return &Malgo{logger: logger}
}

func (m *Malgo) Name() string { return "malgo" }

// NewBuilder initializes the miniaudio context on first use
func (m *Malgo) NewBuilder() (Builder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize malgo context: %w: %w", ErrorUnavailable, err)
		}
		m.malgoCtx = ctx
	}
	return &malgoBuilder{backend: m, ctx: m.malgoCtx}, nil
}

// Close releases the miniaudio context. Streams must be closed first.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil
	}
	if err := m.malgoCtx.Uninit(); err != nil {
		m.logger.Warn().Err(err).Msg("malgo context uninit error")
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
	return nil
}

type malgoBuilder struct {
	backend *Malgo
	ctx     *malgo.AllocatedContext
	closed  atomic.Bool
}

func (b *malgoBuilder) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *malgoBuilder) OpenStream(cfg StreamConfig) (Stream, error) {
	if b.closed.Load() {
		return nil, ErrorInvalidHandle
	}
	if cfg.Direction != DirectionOutput {
		return nil, fmt.Errorf("malgo builder: %v streams: %w", cfg.Direction, ErrorUnimplemented)
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrorIllegalArgument, err)
	}

	var format malgo.FormatType
	switch cfg.Format.Sample {
	case audio.FormatI16:
		format = malgo.FormatS16
	case audio.FormatF32:
		format = malgo.FormatF32
	default:
		return nil, fmt.Errorf("unsupported sample format %v: %w", cfg.Format.Sample, ErrorIllegalArgument)
	}

	rate := cfg.Format.SampleRate
	if rate == 0 {
		rate = fallbackSampleRate
	}
	burst := cfg.FramesPerBurst
	if burst <= 0 {
		burst = rate * defaultBurstMillis / 1000
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(cfg.Format.Channels)
	deviceConfig.SampleRate = uint32(cfg.Format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(burst)
	deviceConfig.Periods = 2
	deviceConfig.Alsa.NoMMap = 1
	if cfg.SharingMode == SharingExclusive {
		deviceConfig.Playback.ShareMode = malgo.Exclusive
	}
	if cfg.PerformanceMode == PerformanceLowLatency {
		deviceConfig.PerformanceProfile = malgo.LowLatency
	} else {
		deviceConfig.PerformanceProfile = malgo.Conservative
	}

	s := &malgoStream{
		streamCore: newStreamCore(cfg, cfg.Format, burst, burst*capacityBursts),
		logger:     b.backend.logger,
	}
	if cfg.DataCallback == nil {
		s.writer = newRingWriter(s.streamCore)
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w: %w", ErrorUnavailable, err)
	}
	if cfg.Format.SampleRate == 0 {
		s.format.SampleRate = int(device.SampleRate())
	}
	s.device = device

	return s, nil
}

// malgoStream is a Stream on one miniaudio playback device
type malgoStream struct {
	*streamCore
	device *malgo.Device
	writer *ringWriter
	logger zerolog.Logger

	running      atomic.Bool
	stopping     atomic.Bool
	lastCallback atomic.Int64
}

func (s *malgoStream) onData(pOutput, _ []byte, frameCount uint32) {
	frames := int(frameCount)
	out := pOutput[:s.format.FramesToBytes(frames)]

	if s.writer != nil {
		s.writer.render(out)
		return
	}

	s.detectLateCallback(frames)
	if !s.running.Load() {
		clear(out)
		return
	}
	if s.cfg.DataCallback(s, out, frames) == CallbackStop && s.stopping.CompareAndSwap(false, true) {
		go func() {
			if err := s.Stop(); err != nil {
				s.logger.Warn().Err(err).Msg("stop after callback request failed")
			}
		}()
	}
}

// detectLateCallback counts an underrun when the device asked for data
// later than the buffered frames could cover
func (s *malgoStream) detectLateCallback(frames int) {
	now := time.Now().UnixNano()
	prev := s.lastCallback.Swap(now)
	if prev == 0 {
		return
	}
	if time.Duration(now-prev) > s.bufferDuration(s.BufferSize()+frames) {
		s.addUnderrun()
	}
}

// onStop runs when the device stops. An unrequested stop means the device
// went away.
func (s *malgoStream) onStop() {
	if s.stopping.Load() || !s.running.Load() {
		return
	}
	s.running.Store(false)
	s.setState(StateDisconnected)
	if s.writer != nil {
		s.writer.close()
	}
	if s.cfg.ErrorCallback != nil {
		s.cfg.ErrorCallback(s, ErrorDisconnected)
	}
}

func (s *malgoStream) Start() error {
	if err := s.transition(StateStarting, StateOpen, StateStopped); err != nil {
		if s.State() == StateStarted {
			return nil
		}
		return err
	}

	s.stopping.Store(false)
	s.lastCallback.Store(0)
	s.running.Store(true)
	if err := s.device.Start(); err != nil {
		s.running.Store(false)
		s.setState(StateStopped)
		return fmt.Errorf("failed to start device: %w: %w", ErrorInternal, err)
	}
	s.setState(StateStarted)
	return nil
}

func (s *malgoStream) Stop() error {
	switch s.State() {
	case StateOpen, StateStopped, StateDisconnected:
		return nil
	case StateClosing, StateClosed:
		return ErrorInvalidState
	}

	s.stopping.Store(true)
	s.running.Store(false)
	s.setState(StateStopping)
	if err := s.device.Stop(); err != nil {
		s.setState(StateStopped)
		return fmt.Errorf("failed to stop device: %w: %w", ErrorInternal, err)
	}
	s.setState(StateStopped)
	return nil
}

func (s *malgoStream) Close() error {
	switch s.State() {
	case StateClosing, StateClosed:
		return ErrorInvalidState
	}

	if err := s.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("stop before close failed")
	}
	s.setState(StateClosing)
	s.device.Uninit()
	if s.writer != nil {
		s.writer.close()
	}
	s.setState(StateClosed)
	return nil
}

func (s *malgoStream) Write(p []byte, timeout time.Duration) (int, error) {
	if s.writer == nil {
		return 0, fmt.Errorf("write on callback stream: %w", ErrorInvalidState)
	}
	return s.writer.write(p, timeout)
}
