// ABOUTME: Engine observer for the CLI player
// ABOUTME: Logs playback events and signals the end of the track
package main

import (
	"sync"

	"github.com/soundsystem-go/soundsystem/internal/logging"
)

type cliObserver struct {
	ended chan struct{}
	once  sync.Once
}

func newCLIObserver() *cliObserver {
	return &cliObserver{ended: make(chan struct{})}
}

func (o *cliObserver) OnPlayingStatusChanged(playing bool) {
	logger := logging.Component("player")
	logger.Info().Bool("playing", playing).Msg("Playback state changed")
}

func (o *cliObserver) OnEndOfTrack() {
	o.once.Do(func() { close(o.ended) })
}

func (o *cliObserver) OnStopTrack() {
	logger := logging.Component("player")
	logger.Info().Msg("Track stopped")
}

func (o *cliObserver) OnExtractionStarted() {
	logger := logging.Component("player")
	logger.Debug().Msg("Extraction started")
}

func (o *cliObserver) OnExtractionCompleted() {
	logger := logging.Component("player")
	logger.Info().Msg("Track loaded")
}
