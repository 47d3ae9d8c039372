// ABOUTME: Tests for logger setup
// ABOUTME: Checks levels, JSON output and component tagging
package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	Setup(Options{Level: "debug", JSON: true, Output: &buf})

	logger := Component("lifecycle")
	logger.Debug().Int("burst", 192).Msg("Stream opened")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "lifecycle", entry["component"])
	assert.Equal(t, "Stream opened", entry["message"])
	assert.Equal(t, float64(192), entry["burst"])

	buf.Reset()
	SetLevel("warn")
	l := Component("lifecycle")
	l.Info().Msg("hidden")
	assert.Empty(t, buf.String())
}
