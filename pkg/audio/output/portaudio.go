//go:build portaudio

// ABOUTME: PortAudio stream backend
// ABOUTME: Cross-platform callback streams using PortAudio
package output

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
)

// PortAudio is a Backend on top of the default PortAudio output device
type PortAudio struct {
	mu          sync.Mutex
	initialized bool
	logger      zerolog.Logger
}

// NewPortAudio creates a new PortAudio backend
func NewPortAudio(logger zerolog.Logger) *PortAudio {
	return &PortAudio{logger: logger}
}

func (p *PortAudio) Name() string { return "portaudio" }

func (p *PortAudio) NewBuilder() (Builder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		if err := portaudio.Initialize(); err != nil {
			return nil, fmt.Errorf("failed to initialize portaudio: %w: %w", ErrorUnavailable, err)
		}
		p.initialized = true
	}
	return &portAudioBuilder{backend: p}, nil
}

// Close terminates PortAudio. Streams must be closed first.
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}

type portAudioBuilder struct {
	backend *PortAudio
	closed  atomic.Bool
}

func (b *portAudioBuilder) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *portAudioBuilder) OpenStream(cfg StreamConfig) (Stream, error) {
	if b.closed.Load() {
		return nil, ErrorInvalidHandle
	}
	if cfg.Direction != DirectionOutput {
		return nil, fmt.Errorf("portaudio builder: %v streams: %w", cfg.Direction, ErrorUnimplemented)
	}
	if cfg.DataCallback == nil {
		return nil, fmt.Errorf("portaudio builder: write-mode streams: %w", ErrorUnimplemented)
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrorIllegalArgument, err)
	}

	device, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("no default output device: %w: %w", ErrorUnavailable, err)
	}

	format := cfg.Format
	if format.SampleRate == 0 {
		format.SampleRate = int(device.DefaultSampleRate)
	}
	burst := cfg.FramesPerBurst
	if burst <= 0 {
		burst = format.SampleRate * defaultBurstMillis / 1000
	}

	params := portaudio.HighLatencyParameters(nil, device)
	if cfg.PerformanceMode == PerformanceLowLatency {
		params = portaudio.LowLatencyParameters(nil, device)
	}
	params.Output.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = burst

	s := &portAudioStream{
		streamCore: newStreamCore(cfg, format, burst, burst*capacityBursts),
		logger:     b.backend.logger,
		scratch:    make([]byte, format.FramesToBytes(burst)),
	}

	var callback any
	switch format.Sample {
	case audio.FormatI16:
		callback = s.onInt16
	case audio.FormatF32:
		callback = s.onFloat32
	default:
		return nil, fmt.Errorf("unsupported sample format %v: %w", format.Sample, ErrorIllegalArgument)
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w: %w", ErrorUnavailable, err)
	}
	s.stream = stream
	return s, nil
}

// portAudioStream is a callback Stream. The OutputUnderflow flag reported
// by PortAudio drives the underrun count. The device buffer is fixed at
// open, so SetBufferSize only changes the reported size.
type portAudioStream struct {
	*streamCore
	stream  *portaudio.Stream
	logger  zerolog.Logger
	scratch []byte
	running atomic.Bool
}

func (s *portAudioStream) render(frames int, flags portaudio.StreamCallbackFlags) []byte {
	if flags&portaudio.OutputUnderflow != 0 {
		s.addUnderrun()
	}
	out := s.scratch[:s.format.FramesToBytes(frames)]
	if !s.running.Load() {
		clear(out)
		return out
	}
	if s.cfg.DataCallback(s, out, frames) == CallbackStop {
		s.running.Store(false)
	}
	return out
}

func (s *portAudioStream) onInt16(out []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	buf := s.render(len(out)/s.format.Channels, flags)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
}

func (s *portAudioStream) onFloat32(out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	buf := s.render(len(out)/s.format.Channels, flags)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
}

func (s *portAudioStream) Start() error {
	if err := s.transition(StateStarting, StateOpen, StateStopped); err != nil {
		if s.State() == StateStarted {
			return nil
		}
		return err
	}
	s.running.Store(true)
	if err := s.stream.Start(); err != nil {
		s.running.Store(false)
		s.setState(StateStopped)
		return fmt.Errorf("failed to start stream: %w: %w", ErrorInternal, err)
	}
	s.setState(StateStarted)
	return nil
}

func (s *portAudioStream) Stop() error {
	switch s.State() {
	case StateOpen, StateStopped:
		return nil
	case StateClosing, StateClosed:
		return ErrorInvalidState
	}
	s.running.Store(false)
	s.setState(StateStopping)
	if err := s.stream.Stop(); err != nil {
		s.setState(StateStopped)
		return fmt.Errorf("failed to stop stream: %w: %w", ErrorInternal, err)
	}
	s.setState(StateStopped)
	return nil
}

func (s *portAudioStream) Close() error {
	switch s.State() {
	case StateClosing, StateClosed:
		return ErrorInvalidState
	}
	if err := s.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("stop before close failed")
	}
	s.setState(StateClosing)
	err := s.stream.Close()
	s.setState(StateClosed)
	if err != nil {
		return fmt.Errorf("failed to close stream: %w: %w", ErrorInternal, err)
	}
	return nil
}

func (s *portAudioStream) Write([]byte, time.Duration) (int, error) {
	return 0, fmt.Errorf("write on callback stream: %w", ErrorInvalidState)
}
