// ABOUTME: Entry point for the soundsystem player
// ABOUTME: Parses CLI flags, plays a file and optionally serves remote control
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/internal/control"
	"github.com/soundsystem-go/soundsystem/internal/logging"
	"github.com/soundsystem-go/soundsystem/internal/version"
	"github.com/soundsystem-go/soundsystem/pkg/audio"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
	"github.com/soundsystem-go/soundsystem/pkg/soundsystem"
)

const extractTimeout = time.Minute

var (
	file        = flag.String("file", "", "Audio file to play (wav, aiff, flac, mp3, ogg, pcm)")
	direct      = flag.Bool("direct", false, "Stream the file straight to the output without keeping it in memory")
	backend     = flag.String("backend", getenv("SOUNDSYSTEM_BACKEND", "callback"), "Player backend: queue, callback or thread")
	outputName  = flag.String("output", getenv("SOUNDSYSTEM_OUTPUT", "malgo"), "Stream output: malgo, or portaudio (callback backend only)")
	format      = flag.String("format", "i16", "Sample format: i16 or f32")
	sampleRate  = flag.Int("sample-rate", 0, "Output sample rate (default 44100)")
	frames      = flag.Int("frames", 0, "Frames per buffer (default 256)")
	tune        = flag.Bool("tune", false, "Run the latency tuner when the stream starts (thread backend)")
	exclusive   = flag.Bool("exclusive", false, "Request exclusive device access")
	controlAddr = flag.String("control-addr", "", "Serve the websocket control channel on this address")
	advertise   = flag.Bool("advertise", false, "Advertise the control channel over mDNS")
	name        = flag.String("name", "", "Advertised name (default: hostname-soundsystem)")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	logLevel    = flag.String("log-level", getenv("SOUNDSYSTEM_LOG_LEVEL", "info"), "Log level: trace, debug, info, warn, error")
	logFile     = flag.String("log-file", "", "Also write logs to this file")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

// getenv returns the environment value for key, or def when unset
func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	var out io.Writer = os.Stderr
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = io.MultiWriter(os.Stderr, f)
	}
	logger := logging.Setup(logging.Options{
		Level:  *logLevel,
		JSON:   strings.EqualFold(getenv("SOUNDSYSTEM_LOG_FORMAT", "console"), "json"),
		Output: out,
	})

	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("soundsystem failed")
		os.Exit(1)
	}
}

func run(logger zerolog.Logger) error {
	if *file == "" && *controlAddr == "" {
		flag.Usage()
		return errors.New("nothing to do: pass -file or -control-addr")
	}

	cfg, err := engineConfig(logger)
	if err != nil {
		return err
	}
	eng, err := soundsystem.New(cfg)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	obs := newCLIObserver()
	eng.AddPlayingObserver(obs)
	eng.AddExtractionObserver(obs)

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	var srv *control.Server
	srvErr := make(chan error, 1)
	if *controlAddr != "" {
		srv = control.New(control.Config{
			Addr:      *controlAddr,
			Name:      serviceName(),
			Advertise: *advertise,
			Logger:    &logger,
		}, eng)
		go func() { srvErr <- srv.Start() }()
	}

	if err := eng.Init(*sampleRate, *frames); err != nil {
		return err
	}
	defer eng.Release()

	logger.Info().
		Str("version", version.Version).
		Str("backend", string(cfg.Backend)).
		Str("engine", eng.ID()).
		Msg("Engine ready")

	if *file != "" {
		if err := playFile(eng); err != nil {
			return err
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// with a control channel the remote host decides when playback ends
	var ended <-chan struct{}
	if srv == nil {
		ended = obs.ended
	}

	select {
	case sig := <-sigChan:
		logger.Info().Stringer("signal", sig).Msg("Shutting down")
	case <-ended:
		logger.Info().Msg("End of track")
	case err := <-srvErr:
		if err != nil {
			return err
		}
	}

	if srv != nil {
		srv.Stop()
		<-srvErr
	}
	return nil
}

func engineConfig(logger zerolog.Logger) (soundsystem.Config, error) {
	variant, err := soundsystem.ParseBackend(*backend)
	if err != nil {
		return soundsystem.Config{}, err
	}
	sampleFormat, err := audio.ParseSampleFormat(*format)
	if err != nil {
		return soundsystem.Config{}, err
	}

	cfg := soundsystem.Config{
		Backend:      variant,
		SampleFormat: sampleFormat,
		TuneOnStart:  *tune,
		Logger:       &logger,
	}
	if *exclusive {
		cfg.SharingMode = output.SharingExclusive
	}

	if cfg.Output, err = streamOutput(variant, *outputName, logger); err != nil {
		return soundsystem.Config{}, err
	}
	return cfg, nil
}

// streamOutput picks the stream backend used by the callback and thread
// players. PortAudio only opens callback streams.
func streamOutput(variant soundsystem.Backend, name string, logger zerolog.Logger) (output.Backend, error) {
	switch strings.ToLower(name) {
	case "", "malgo":
		return output.NewMalgo(logger.With().Str("component", "malgo").Logger()), nil
	case "portaudio":
		if variant == soundsystem.BackendThread {
			return nil, fmt.Errorf("output portaudio cannot drive the thread backend (blocking-write streams need -output malgo): %w", output.ErrorUnimplemented)
		}
		return output.NewPortAudio(logger.With().Str("component", "portaudio").Logger()), nil
	default:
		return nil, fmt.Errorf("unknown output %q (want malgo or portaudio)", name)
	}
}

func playFile(eng *soundsystem.Engine) error {
	if *direct {
		return eng.ExtractAndPlay(*file)
	}

	if err := eng.LoadFile(*file); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
	defer cancel()
	if err := eng.WaitLoaded(ctx); err != nil {
		return fmt.Errorf("load %s: %w", *file, err)
	}
	return eng.Play(true)
}

func serviceName() string {
	if *name != "" {
		return *name
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s", hostname, version.Product)
}

func serveMetrics(logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server failed")
	}
}
