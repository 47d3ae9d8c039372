// ABOUTME: Tests for the CLI player configuration
// ABOUTME: Output selection per backend variant
package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
	"github.com/soundsystem-go/soundsystem/pkg/soundsystem"
)

func TestStreamOutput(t *testing.T) {
	tests := []struct {
		name    string
		variant soundsystem.Backend
		output  string
		want    string
		wantErr error
	}{
		{"default is malgo", soundsystem.BackendCallback, "", "malgo", nil},
		{"malgo for thread", soundsystem.BackendThread, "malgo", "malgo", nil},
		{"portaudio for callback", soundsystem.BackendCallback, "PortAudio", "portaudio", nil},
		{"portaudio for thread", soundsystem.BackendThread, "portaudio", "", output.ErrorUnimplemented},
		{"unknown output", soundsystem.BackendCallback, "alsa", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := streamOutput(tt.variant, tt.output, zerolog.Nop())
			if tt.want == "" {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Name())
		})
	}
}
