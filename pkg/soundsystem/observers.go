// ABOUTME: Host observers and their dispatcher
// ABOUTME: Delivers playback and extraction notifications in order off the audio path
package soundsystem

import (
	"sync"

	"github.com/rs/zerolog"
)

// PlayingObserver is told about playback state changes
type PlayingObserver interface {
	OnPlayingStatusChanged(playing bool)
	OnEndOfTrack()
	OnStopTrack()
}

// ExtractionObserver is told when a track starts and finishes extracting
type ExtractionObserver interface {
	OnExtractionStarted()
	OnExtractionCompleted()
}

const dispatchQueueSize = 64

// dispatcher runs notifications one at a time on its own goroutine
type dispatcher struct {
	mu         sync.Mutex
	playing    []PlayingObserver
	extraction []ExtractionObserver

	events chan func()
	done   chan struct{}
	logger zerolog.Logger
}

func newDispatcher(logger zerolog.Logger) *dispatcher {
	return &dispatcher{logger: logger}
}

func (d *dispatcher) start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.events != nil {
		return
	}
	d.events = make(chan func(), dispatchQueueSize)
	d.done = make(chan struct{})
	go d.run(d.events, d.done)
}

// stop delivers what is queued and ends the goroutine
func (d *dispatcher) stop() {
	d.mu.Lock()
	events, done := d.events, d.done
	d.events, d.done = nil, nil
	d.mu.Unlock()

	if events == nil {
		return
	}
	close(events)
	<-done
}

func (d *dispatcher) run(events <-chan func(), done chan struct{}) {
	defer close(done)
	for fn := range events {
		fn()
	}
}

// post queues fn without blocking. It may be called from the audio
// context.
func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.events == nil {
		return
	}
	select {
	case d.events <- fn:
	default:
		d.logger.Warn().Msg("Notification queue full, dropping event")
	}
}

func (d *dispatcher) addPlaying(o PlayingObserver) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o == nil {
		return false
	}
	for _, existing := range d.playing {
		if existing == o {
			return false
		}
	}
	d.playing = append(d.playing, o)
	return true
}

func (d *dispatcher) removePlaying(o PlayingObserver) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.playing {
		if existing == o {
			d.playing = append(d.playing[:i:i], d.playing[i+1:]...)
			return true
		}
	}
	return false
}

func (d *dispatcher) addExtraction(o ExtractionObserver) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o == nil {
		return false
	}
	for _, existing := range d.extraction {
		if existing == o {
			return false
		}
	}
	d.extraction = append(d.extraction, o)
	return true
}

func (d *dispatcher) removeExtraction(o ExtractionObserver) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.extraction {
		if existing == o {
			d.extraction = append(d.extraction[:i:i], d.extraction[i+1:]...)
			return true
		}
	}
	return false
}

func (d *dispatcher) playingObservers() []PlayingObserver {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]PlayingObserver(nil), d.playing...)
}

func (d *dispatcher) extractionObservers() []ExtractionObserver {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ExtractionObserver(nil), d.extraction...)
}

func (d *dispatcher) playingChanged(playing bool) {
	d.post(func() {
		for _, o := range d.playingObservers() {
			o.OnPlayingStatusChanged(playing)
		}
	})
}

func (d *dispatcher) endOfTrack() {
	d.post(func() {
		for _, o := range d.playingObservers() {
			o.OnEndOfTrack()
		}
	})
}

func (d *dispatcher) trackStopped() {
	d.post(func() {
		for _, o := range d.playingObservers() {
			o.OnStopTrack()
		}
	})
}

func (d *dispatcher) extractionStarted() {
	d.post(func() {
		for _, o := range d.extractionObservers() {
			o.OnExtractionStarted()
		}
	})
}

func (d *dispatcher) extractionCompleted() {
	d.post(func() {
		for _, o := range d.extractionObservers() {
			o.OnExtractionCompleted()
		}
	})
}

// engineEvents adapts the dispatcher to engine.Events
type engineEvents struct {
	d *dispatcher
}

func (e engineEvents) PlayingChanged(playing bool) { e.d.playingChanged(playing) }
func (e engineEvents) EndOfTrack()                 { e.d.endOfTrack() }
func (e engineEvents) TrackStopped()               { e.d.trackStopped() }
