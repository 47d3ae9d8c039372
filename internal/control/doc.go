// ABOUTME: Package documentation for the control channel
// ABOUTME: Describes the websocket message flow
// Package control exposes a soundsystem engine to remote hosts.
//
// A client opens a websocket on /soundsystem and receives a hello. Each
// text frame it sends is a {"type", "payload"} envelope naming one engine
// operation (init, load, extract_and_play, play, stop, status, release).
// The server answers with the engine status or an error reply, and pushes
// an event frame to every session whenever an engine observer fires.
package control
