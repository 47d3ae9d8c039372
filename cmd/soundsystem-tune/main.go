// ABOUTME: Latency tuning tool for the default output device
// ABOUTME: Opens a write-mode stream, runs the tuner and prints the chosen buffer size
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/internal/engine"
	"github.com/soundsystem-go/soundsystem/internal/logging"
	"github.com/soundsystem-go/soundsystem/internal/metrics"
	"github.com/soundsystem-go/soundsystem/pkg/audio"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

var (
	outputName   = flag.String("output", "malgo", "Output backend (malgo; portaudio streams are callback-only)")
	sampleRate   = flag.Int("sample-rate", 48000, "Sample rate")
	channels     = flag.Int("channels", 2, "Channel count")
	format       = flag.String("format", "i16", "Sample format: i16 or f32")
	burst        = flag.Int("frames", 0, "Frames per burst hint (0 lets the device choose)")
	exclusive    = flag.Bool("exclusive", false, "Request exclusive device access")
	stateTimeout = flag.Duration("state-timeout", 2*time.Second, "Wait for the stream to start")
	writeTimeout = flag.Duration("write-timeout", time.Second, "Timeout for each probe write")
	asJSON       = flag.Bool("json", false, "Print the result as JSON")
	logLevel     = flag.String("log-level", "info", "Log level")
)

type report struct {
	Output         string  `json:"output"`
	Format         string  `json:"format"`
	FramesPerBurst int     `json:"frames_per_burst"`
	Capacity       int     `json:"capacity"`
	BufferSize     int     `json:"buffer_size"`
	Iterations     int     `json:"iterations"`
	Underruns      int     `json:"underruns"`
	Converged      bool    `json:"converged"`
	LatencyMs      float64 `json:"latency_ms"`
}

func main() {
	flag.Parse()
	logging.Setup(logging.Options{Level: *logLevel})

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "soundsystem-tune: %v\n", err)
		os.Exit(1)
	}
}

// writeModeOutput returns a backend that can open blocking-write streams,
// which the tuner's probe writes need
func writeModeOutput(name string, logger zerolog.Logger) (*output.Malgo, error) {
	switch strings.ToLower(name) {
	case "", "malgo":
		return output.NewMalgo(logger), nil
	case "portaudio":
		return nil, fmt.Errorf("output portaudio has no blocking-write streams to tune, use -output malgo: %w", output.ErrorUnimplemented)
	default:
		return nil, fmt.Errorf("unknown output %q (want malgo)", name)
	}
}

func run() error {
	logger := logging.Component("tune")

	sampleFormat, err := audio.ParseSampleFormat(*format)
	if err != nil {
		return err
	}
	f := audio.Format{Sample: sampleFormat, SampleRate: *sampleRate, Channels: *channels}
	if err := f.Validate(); err != nil {
		return err
	}

	backend, err := writeModeOutput(*outputName, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	cfg := output.StreamConfig{
		Format:          f,
		FramesPerBurst:  *burst,
		PerformanceMode: output.PerformanceLowLatency,
		Direction:       output.DirectionOutput,
	}
	if *exclusive {
		cfg.SharingMode = output.SharingExclusive
	}

	id := uuid.New().String()
	m := metrics.ForEngine(id)
	defer m.Forget()

	lc := engine.NewLifecycle(backend, cfg, engine.NewState(), logger.With().Str("engine", id).Logger(), m)
	if err := lc.Open(); err != nil {
		return err
	}
	defer lc.Close()
	if err := lc.Start(); err != nil {
		return err
	}

	res, err := lc.Tune(engine.TuneOptions{
		StateChangeTimeout: *stateTimeout,
		WriteTimeout:       *writeTimeout,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("tuning: %w", err)
	}

	stream := lc.Stream()
	r := report{
		Output:         backend.Name(),
		Format:         f.String(),
		FramesPerBurst: stream.FramesPerBurst(),
		Capacity:       stream.BufferCapacity(),
		BufferSize:     res.BufferSize,
		Iterations:     res.Iterations,
		Underruns:      res.Underruns,
		Converged:      res.Converged,
		LatencyMs:      float64(res.BufferSize) * 1000 / float64(f.SampleRate),
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Printf("output:      %s (%s)\n", r.Output, r.Format)
	fmt.Printf("burst:       %d frames\n", r.FramesPerBurst)
	fmt.Printf("capacity:    %d frames\n", r.Capacity)
	fmt.Printf("buffer size: %d frames (%.2f ms)\n", r.BufferSize, r.LatencyMs)
	fmt.Printf("iterations:  %d, underruns: %d, converged: %v\n", r.Iterations, r.Underruns, r.Converged)
	return nil
}
