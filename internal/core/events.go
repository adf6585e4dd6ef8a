package core

import (
	"encoding/json"
	"fmt"
)

// Server to client.
const (
	EventOnlineUsers  = "online-users"
	EventNotification = "notification"
	EventLike         = "like"
	EventComment      = "comment"
	EventMessage      = "message"
	EventReadMessages = "read-messages"
	EventTyping       = "typing"
	EventPeerJoined   = "peer-joined"
	EventPeerLeft     = "peer-left"
	EventIncomingCall = "incoming-call"
	EventMediaToggled = "media-toggled"
	EventCallEnded    = "call-ended"
	EventSignal       = "signal"
	EventPong         = "pong"
	EventError        = "error"
)

// Client to server. Read receipts, typing and signal share the name of their
// relayed counterpart.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventCallInvite  = "call-invite"
	EventToggleMedia = "toggle-media"
	EventEndCall     = "end-call"
	EventPing        = "ping"
)

// Envelope is the frame layout in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps payload into an Envelope frame.
func Encode(kind string, payload any) (Frame, error) {
	env := Envelope{Type: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", kind, err)
		}
		env.Data = data
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", kind, err)
	}
	return b, nil
}

// Decode splits a frame into its type and raw payload.
func Decode(f Frame) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}
