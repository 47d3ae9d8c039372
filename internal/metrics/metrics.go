// ABOUTME: Prometheus metrics for the playback engine
// ABOUTME: Buffer size, underrun, render, resize, reopen and tuning series labeled by engine id
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bufferSizeFrames = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soundsystem_buffer_size_frames",
			Help: "Current output buffer size in frames",
		},
		[]string{"engine"},
	)

	underrunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundsystem_underruns_total",
			Help: "Underruns observed on the output stream",
		},
		[]string{"engine"},
	)

	framesRenderedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundsystem_frames_rendered_total",
			Help: "Frames of track audio delivered to the output",
		},
		[]string{"engine"},
	)

	silentCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundsystem_silent_callbacks_total",
			Help: "Render requests answered with silence only",
		},
		[]string{"engine"},
	)

	resizeRejectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundsystem_buffer_resize_rejects_total",
			Help: "Buffer growth requests the output rejected",
		},
		[]string{"engine"},
	)

	streamReopensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundsystem_stream_reopens_total",
			Help: "Streams reopened after a disconnect",
		},
		[]string{"engine"},
	)

	tuningRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundsystem_tuning_runs_total",
			Help: "Latency tuning passes by outcome",
		},
		[]string{"engine", "result"},
	)
)

// Tuning outcomes
const (
	TuningConverged = "converged"
	TuningExhausted = "exhausted"
	TuningFailed    = "failed"
	TuningSkipped   = "skipped"
)

// Engine holds the series of one engine instance. The zero value is not
// usable; build it with ForEngine.
type Engine struct {
	id              string
	bufferSize      prometheus.Gauge
	underruns       prometheus.Counter
	framesRendered  prometheus.Counter
	silentCallbacks prometheus.Counter
	resizeRejects   prometheus.Counter
	reopens         prometheus.Counter
}

// ForEngine resolves the series for engine id once so the audio path only
// does atomic adds
func ForEngine(id string) *Engine {
	return &Engine{
		id:              id,
		bufferSize:      bufferSizeFrames.WithLabelValues(id),
		underruns:       underrunsTotal.WithLabelValues(id),
		framesRendered:  framesRenderedTotal.WithLabelValues(id),
		silentCallbacks: silentCallbacksTotal.WithLabelValues(id),
		resizeRejects:   resizeRejectsTotal.WithLabelValues(id),
		reopens:         streamReopensTotal.WithLabelValues(id),
	}
}

func (e *Engine) SetBufferSize(frames int) { e.bufferSize.Set(float64(frames)) }
func (e *Engine) AddUnderruns(n int)       { e.underruns.Add(float64(n)) }
func (e *Engine) AddFramesRendered(n int)  { e.framesRendered.Add(float64(n)) }
func (e *Engine) IncSilentCallbacks()      { e.silentCallbacks.Inc() }
func (e *Engine) IncResizeRejects()        { e.resizeRejects.Inc() }
func (e *Engine) IncReopens()              { e.reopens.Inc() }

// TuningRun records the outcome of one tuning pass
func (e *Engine) TuningRun(result string) {
	tuningRunsTotal.WithLabelValues(e.id, result).Inc()
}

// Forget drops the series of a released engine
func (e *Engine) Forget() {
	bufferSizeFrames.DeleteLabelValues(e.id)
	underrunsTotal.DeleteLabelValues(e.id)
	framesRenderedTotal.DeleteLabelValues(e.id)
	silentCallbacksTotal.DeleteLabelValues(e.id)
	resizeRejectsTotal.DeleteLabelValues(e.id)
	streamReopensTotal.DeleteLabelValues(e.id)
	for _, r := range []string{TuningConverged, TuningExhausted, TuningFailed, TuningSkipped} {
		tuningRunsTotal.DeleteLabelValues(e.id, r)
	}
}
