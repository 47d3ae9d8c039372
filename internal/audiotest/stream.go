// ABOUTME: Synthetic output backend for tests
// ABOUTME: Fake streams with scriptable bursts, underruns, failures and disconnects
package audiotest

import (
	"sync"
	"time"

	"github.com/soundsystem-go/soundsystem/pkg/audio"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

// StreamOptions scripts the behaviour of fake streams
type StreamOptions struct {
	Burst    int // frames per burst, default 192
	Capacity int // buffer capacity in frames, default 16 bursts

	// MaxBufferSize caps granted sizes below capacity when non-zero
	MaxBufferSize int

	// FailSetBufferSizeAt makes the Nth SetBufferSize call (1-based) fail
	FailSetBufferSizeAt int

	// FailWrite makes every Write fail with this error
	FailWrite error

	// ProbeUnderruns returns the underruns a Write adds at a buffer size
	ProbeUnderruns func(bufferSize int) int

	// StartPending leaves Start in StateStarting until CompleteStart
	StartPending bool

	// FailStart makes Start fail with this error
	FailStart error

	// WriteDelay paces Write like a draining device
	WriteDelay time.Duration

	// OnWrite observes every successful Write
	OnWrite func(p []byte)
}

// Backend is an output.Backend that opens fake streams
type Backend struct {
	mu             sync.Mutex
	opts           StreamOptions
	openErr        error
	streams        []*Stream
	buildersClosed int
	opened         chan *Stream
}

// NewBackend creates a fake backend
func NewBackend(opts StreamOptions) *Backend {
	if opts.Burst == 0 {
		opts.Burst = 192
	}
	if opts.Capacity == 0 {
		opts.Capacity = opts.Burst * 16
	}
	return &Backend{opts: opts, opened: make(chan *Stream, 16)}
}

func (b *Backend) Name() string { return "fake" }

// FailOpen makes subsequent opens fail with err until cleared with nil
func (b *Backend) FailOpen(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

func (b *Backend) NewBuilder() (output.Builder, error) {
	return &builder{backend: b}, nil
}

// Streams returns every stream opened so far
func (b *Backend) Streams() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Stream(nil), b.streams...)
}

// Last returns the most recently opened stream
func (b *Backend) Last() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

// Opened delivers streams as they open
func (b *Backend) Opened() <-chan *Stream { return b.opened }

// BuildersClosed returns how many builders were released
func (b *Backend) BuildersClosed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buildersClosed
}

type builder struct {
	backend *Backend
}

func (bd *builder) Close() error {
	bd.backend.mu.Lock()
	defer bd.backend.mu.Unlock()
	bd.backend.buildersClosed++
	return nil
}

func (bd *builder) OpenStream(cfg output.StreamConfig) (output.Stream, error) {
	b := bd.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openErr != nil {
		return nil, b.openErr
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, output.ErrorIllegalArgument
	}

	format := cfg.Format
	if format.SampleRate == 0 {
		format.SampleRate = 48000
	}
	s := &Stream{
		cfg:        cfg,
		format:     format,
		opts:       b.opts,
		state:      output.StateOpen,
		bufferSize: b.opts.Capacity,
		changed:    make(chan struct{}),
	}
	b.streams = append(b.streams, s)
	select {
	case b.opened <- s:
	default:
	}
	return s, nil
}

// Stream is a scriptable output.Stream
type Stream struct {
	mu         sync.Mutex
	cfg        output.StreamConfig
	format     audio.Format
	opts       StreamOptions
	state      output.StreamState
	changed    chan struct{}
	bufferSize int
	underruns  int
	setCalls   int
	sizes      []int
	writes     int
	stops      int
	closes     int
}

func (s *Stream) Format() audio.Format                    { return s.format }
func (s *Stream) SharingMode() output.SharingMode         { return s.cfg.SharingMode }
func (s *Stream) PerformanceMode() output.PerformanceMode { return s.cfg.PerformanceMode }
func (s *Stream) FramesPerBurst() int                     { return s.opts.Burst }
func (s *Stream) BufferCapacity() int                     { return s.opts.Capacity }

// Config returns the configuration the stream was opened with
func (s *Stream) Config() output.StreamConfig { return s.cfg }

func (s *Stream) setStateLocked(state output.StreamState) {
	if s.state == state {
		return
	}
	s.state = state
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.FailStart != nil {
		return s.opts.FailStart
	}
	switch s.state {
	case output.StateClosed, output.StateDisconnected:
		return output.ErrorInvalidState
	}
	if s.opts.StartPending {
		s.setStateLocked(output.StateStarting)
		return nil
	}
	s.setStateLocked(output.StateStarted)
	return nil
}

// CompleteStart finishes a pending start
func (s *Stream) CompleteStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(output.StateStarted)
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stops++
	if s.state == output.StateClosed {
		return output.ErrorInvalidState
	}
	s.setStateLocked(output.StateStopped)
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes++
	if s.state == output.StateClosed {
		return output.ErrorInvalidState
	}
	s.setStateLocked(output.StateClosed)
	return nil
}

func (s *Stream) State() output.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) WaitForStateChange(current output.StreamState, timeout time.Duration) (output.StreamState, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		s.mu.Lock()
		state, changed := s.state, s.changed
		s.mu.Unlock()
		if state != current {
			return state, nil
		}
		select {
		case <-changed:
		case <-timer.C:
			return current, output.ErrorTimeout
		}
	}
}

func (s *Stream) BufferSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufferSize
}

func (s *Stream) SetBufferSize(frames int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setCalls++
	if s.opts.FailSetBufferSizeAt > 0 && s.setCalls == s.opts.FailSetBufferSizeAt {
		return 0, output.ErrorInternal
	}
	if frames <= 0 {
		return 0, output.ErrorIllegalArgument
	}
	if s.state == output.StateClosed {
		return 0, output.ErrorInvalidState
	}

	granted := min(frames, s.opts.Capacity)
	if s.opts.MaxBufferSize > 0 {
		granted = min(granted, s.opts.MaxBufferSize)
	}
	s.bufferSize = granted
	s.sizes = append(s.sizes, granted)
	return granted, nil
}

func (s *Stream) UnderrunCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.underruns
}

// AddUnderruns raises the underrun count
func (s *Stream) AddUnderruns(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.underruns += n
}

func (s *Stream) Write(p []byte, _ time.Duration) (int, error) {
	if s.opts.WriteDelay > 0 {
		time.Sleep(s.opts.WriteDelay)
	}

	s.mu.Lock()
	s.writes++
	if s.opts.FailWrite != nil {
		s.mu.Unlock()
		return 0, s.opts.FailWrite
	}
	if s.state != output.StateStarted {
		state := s.state
		s.mu.Unlock()
		if state == output.StateDisconnected {
			return 0, output.ErrorDisconnected
		}
		return 0, output.ErrorInvalidState
	}
	if s.opts.ProbeUnderruns != nil {
		s.underruns += s.opts.ProbeUnderruns(s.bufferSize)
	}
	s.mu.Unlock()

	if s.opts.OnWrite != nil {
		s.opts.OnWrite(p)
	}
	return s.format.BytesToFrames(len(p)), nil
}

// Render runs the data callback for frames frames and returns the output
func (s *Stream) Render(frames int) ([]byte, output.CallbackResult) {
	out := make([]byte, s.format.FramesToBytes(frames))
	if s.cfg.DataCallback == nil {
		return out, output.CallbackStop
	}
	return out, s.cfg.DataCallback(s, out, frames)
}

// Disconnect marks the stream unusable and reports it through the error
// callback, as a platform would from its own thread
func (s *Stream) Disconnect() {
	s.mu.Lock()
	s.setStateLocked(output.StateDisconnected)
	s.mu.Unlock()

	if s.cfg.ErrorCallback != nil {
		s.cfg.ErrorCallback(s, output.ErrorDisconnected)
	}
}

// SetBufferSizeCalls returns the number of SetBufferSize calls
func (s *Stream) SetBufferSizeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setCalls
}

// GrantedSizes returns every size granted so far
func (s *Stream) GrantedSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.sizes...)
}

// Writes returns the number of Write calls
func (s *Stream) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Closes returns the number of Close calls
func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Stops returns the number of Stop calls
func (s *Stream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
