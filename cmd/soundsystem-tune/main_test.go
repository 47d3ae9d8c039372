// ABOUTME: Tests for the tuning tool
// ABOUTME: Only outputs with blocking-write streams are accepted
package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
)

func TestWriteModeOutput(t *testing.T) {
	b, err := writeModeOutput("malgo", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "malgo", b.Name())
	assert.NoError(t, b.Close())

	_, err = writeModeOutput("portaudio", zerolog.Nop())
	assert.ErrorIs(t, err, output.ErrorUnimplemented)

	_, err = writeModeOutput("pulse", zerolog.Nop())
	assert.Error(t, err)
}
