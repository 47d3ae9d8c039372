//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"

	"github.com/rs/zerolog"
)

// PortAudio backend (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio backend
func NewPortAudio(zerolog.Logger) *PortAudio {
	return &PortAudio{}
}

func (p *PortAudio) Name() string { return "portaudio" }

// NewBuilder always fails without the portaudio build tag
func (p *PortAudio) NewBuilder() (Builder, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio): %w", ErrorUnavailable)
}

func (p *PortAudio) Close() error {
	return nil
}
