// ABOUTME: Tests for engine metrics
// ABOUTME: Reads series back through the prometheus testutil helpers
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEngineSeries(t *testing.T) {
	m := ForEngine("test-engine")
	defer m.Forget()

	m.SetBufferSize(384)
	m.AddUnderruns(2)
	m.AddFramesRendered(192)
	m.AddFramesRendered(192)
	m.IncSilentCallbacks()
	m.IncResizeRejects()
	m.IncReopens()
	m.TuningRun(TuningConverged)

	assert.Equal(t, 384.0, testutil.ToFloat64(bufferSizeFrames.WithLabelValues("test-engine")))
	assert.Equal(t, 2.0, testutil.ToFloat64(underrunsTotal.WithLabelValues("test-engine")))
	assert.Equal(t, 384.0, testutil.ToFloat64(framesRenderedTotal.WithLabelValues("test-engine")))
	assert.Equal(t, 1.0, testutil.ToFloat64(silentCallbacksTotal.WithLabelValues("test-engine")))
	assert.Equal(t, 1.0, testutil.ToFloat64(resizeRejectsTotal.WithLabelValues("test-engine")))
	assert.Equal(t, 1.0, testutil.ToFloat64(streamReopensTotal.WithLabelValues("test-engine")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tuningRunsTotal.WithLabelValues("test-engine", TuningConverged)))
}

func TestForgetRemovesSeries(t *testing.T) {
	m := ForEngine("gone")
	m.IncReopens()
	m.Forget()

	assert.Equal(t, 0.0, testutil.ToFloat64(streamReopensTotal.WithLabelValues("gone")))
	streamReopensTotal.DeleteLabelValues("gone")
}
