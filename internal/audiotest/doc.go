// ABOUTME: Test doubles for the audio stack
// ABOUTME: Fake output backend, fake streams and synthetic decoded sources
// Package audiotest provides deterministic stand-ins for audio hardware
// and decoders so engine behaviour can be driven callback by callback.
package audiotest
