// ABOUTME: Control channel message definitions
// ABOUTME: JSON envelopes for commands, replies and pushed events
package control

import (
	"encoding/json"
	"fmt"

	"github.com/soundsystem-go/soundsystem/pkg/soundsystem"
)

// ProtocolVersion is sent in the hello message
const ProtocolVersion = 1

// Message types
const (
	TypeHello          = "hello"
	TypeInit           = "init"
	TypeLoad           = "load"
	TypeExtractAndPlay = "extract_and_play"
	TypePlay           = "play"
	TypeStop           = "stop"
	TypeStatus         = "status"
	TypeRelease        = "release"
	TypeEvent          = "event"
	TypeError          = "error"
)

// Event names
const (
	EventPlayingChanged      = "playing_changed"
	EventEndOfTrack          = "end_of_track"
	EventTrackStopped        = "track_stopped"
	EventExtractionStarted   = "extraction_started"
	EventExtractionCompleted = "extraction_completed"
)

// Message is the envelope of every text frame
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload into an envelope. A nil payload is left out.
func NewMessage(msgType string, payload interface{}) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v
// untouched.
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Hello is sent by the server when a session opens
type Hello struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	EngineID  string `json:"engine_id,omitempty"`
	Version   int    `json:"version"`
	Product   string `json:"product"`
}

// InitCommand asks the engine to bring up its output
type InitCommand struct {
	SampleRate      int `json:"sample_rate"`
	FramesPerBuffer int `json:"frames_per_buffer"`
}

// LoadCommand names a file on the engine host
type LoadCommand struct {
	Path string `json:"path"`
}

// PlayCommand toggles playback
type PlayCommand struct {
	Play bool `json:"play"`
}

// Status is the reply to every successful command
type Status = soundsystem.Status

// Event is pushed to every session when an observer fires
type Event struct {
	Name    string `json:"name"`
	Playing *bool  `json:"playing,omitempty"`
}

// ErrorReply reports a failed or malformed command
type ErrorReply struct {
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}
