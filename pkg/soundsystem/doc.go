// ABOUTME: Package soundsystem documentation
// ABOUTME: Host-facing API of the low latency playback engine
// Package soundsystem is the host-facing API of the playback engine.
//
// An Engine loads one track at a time into memory and plays it through
// one of three backends: a two-buffer output queue with real pause, a
// device data callback, or a dedicated render goroutine writing into a
// blocking stream.
//
// Example:
//
//	eng, err := soundsystem.New(soundsystem.Config{Backend: soundsystem.BackendCallback})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := eng.Init(48000, 192); err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Release()
//
//	if err := eng.LoadFile("track.flac"); err != nil {
//		log.Fatal(err)
//	}
//	eng.Play(true)
//
// Observers registered with AddPlayingObserver and AddExtractionObserver
// are called in order on a dedicated goroutine, never from the audio path.
package soundsystem
