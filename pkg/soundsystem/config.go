// ABOUTME: Engine configuration
// ABOUTME: Backend variant selection, format and collaborators with their defaults
package soundsystem

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/internal/logging"
	"github.com/soundsystem-go/soundsystem/internal/queue"
	"github.com/soundsystem-go/soundsystem/pkg/audio"
	"github.com/soundsystem-go/soundsystem/pkg/audio/decode"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

const (
	// DefaultSampleRate is used when Init gets no sample rate
	DefaultSampleRate = 44100
	// DefaultFramesPerBuffer is used when Init gets no buffer size
	DefaultFramesPerBuffer = 256
)

// Backend selects the player variant
type Backend string

const (
	// BackendQueue plays through a two-buffer output queue with real pause
	BackendQueue Backend = "queue"
	// BackendCallback renders from the device's data callback
	BackendCallback Backend = "callback"
	// BackendThread renders from a dedicated goroutine into a blocking
	// write stream
	BackendThread Backend = "thread"
)

// ParseBackend maps a name to a Backend
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case BackendQueue, BackendCallback, BackendThread:
		return b, nil
	case "":
		return BackendCallback, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want queue, callback or thread)", name)
	}
}

// Config holds engine configuration
type Config struct {
	// Backend is the player variant (default: callback)
	Backend Backend

	// SampleFormat is the format of the PCM store and the output
	// (default: i16)
	SampleFormat audio.SampleFormat

	// Channels is the output channel count (default: 2)
	Channels int

	// SharingMode requests shared or exclusive device access
	SharingMode output.SharingMode

	// PerformanceMode hints the device latency profile (default: low
	// latency)
	PerformanceMode output.PerformanceMode

	// TuneOnStart runs the latency tuner when a stream starts. Only the
	// thread backend can probe; the callback backend skips it.
	TuneOnStart bool

	// StateChangeTimeout bounds the wait for a stream to start
	// (default: 2s)
	StateChangeTimeout time.Duration

	// WriteTimeout bounds each blocking write (default: 1s)
	WriteTimeout time.Duration

	// ExtractionFrames sizes each extraction buffer (default: 4096)
	ExtractionFrames int

	// Output opens streams for the callback and thread backends
	// (default: malgo)
	Output output.Backend

	// Queue opens output queues for the queue backend and ExtractAndPlay
	// (default: oto)
	Queue output.QueueBackend

	// Decoders maps file extensions to decoders (default: every built-in
	// decoder)
	Decoders *decode.Registry

	// Logger is the engine logger (default: the process logger)
	Logger *zerolog.Logger
}

func (c *Config) applyDefaults() error {
	backend, err := ParseBackend(string(c.Backend))
	if err != nil {
		return err
	}
	c.Backend = backend

	if c.SampleFormat == audio.FormatInvalid {
		c.SampleFormat = audio.FormatI16
	}
	if c.Channels == 0 {
		c.Channels = 2
	}
	if c.PerformanceMode == output.PerformanceNone {
		c.PerformanceMode = output.PerformanceLowLatency
	}
	if c.StateChangeTimeout <= 0 {
		c.StateChangeTimeout = 2 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = time.Second
	}
	if c.ExtractionFrames <= 0 {
		c.ExtractionFrames = queue.DefaultExtractionFrames
	}
	if c.Logger == nil {
		c.Logger = logging.GetDefaultLogger()
	}
	if c.Decoders == nil {
		c.Decoders = decode.DefaultRegistry()
	}
	if c.Output == nil {
		c.Output = output.NewMalgo(c.Logger.With().Str("component", "malgo").Logger())
	}
	if c.Queue == nil {
		c.Queue = output.NewOto(c.Logger.With().Str("component", "oto").Logger())
	}
	return nil
}
