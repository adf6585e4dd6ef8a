package core

import (
	"encoding/json"

	"github.com/dkeye/Hamlet/internal/domain"
)

// Wire payloads shared by the server adapters and the peer client.

type ReadMessagesRequest struct {
	IDs []domain.MessageID `json:"ids"`
}

type TypingRequest struct {
	Recipient domain.UserID `json:"recipient"`
	Preview   string        `json:"preview"`
}

type TypingRelay struct {
	Sender  domain.UserID `json:"sender"`
	Preview string        `json:"preview"`
	Active  bool          `json:"active"`
}

type JoinRoomRequest struct {
	PeerID domain.PeerID `json:"peerId"`
	RoomID domain.RoomID `json:"roomId"`
	Ready  bool          `json:"ready"`
}

type RoomRequest struct {
	RoomID domain.RoomID `json:"roomId"`
}

type PeerEvent struct {
	PeerID domain.PeerID `json:"peerId"`
	RoomID domain.RoomID `json:"roomId"`
}

type CallInviteRequest struct {
	Recipient domain.UserID      `json:"recipient"`
	Kind      domain.MessageKind `json:"kind"`
}

type IncomingCall struct {
	RoomID domain.RoomID      `json:"roomId"`
	Sender domain.UserRef     `json:"sender"`
	Kind   domain.MessageKind `json:"kind"`
}

type ToggleMediaRequest struct {
	RoomID domain.RoomID     `json:"roomId"`
	Media  domain.MediaKind  `json:"media"`
	State  domain.MediaState `json:"state"`
}

type MediaToggled struct {
	PeerID domain.PeerID     `json:"peerId"`
	RoomID domain.RoomID     `json:"roomId"`
	Media  domain.MediaKind  `json:"media"`
	State  domain.MediaState `json:"state"`
}

type SignalRequest struct {
	RoomID domain.RoomID   `json:"roomId"`
	To     domain.PeerID   `json:"to"`
	Data   json.RawMessage `json:"data"`
}

type SignalRelay struct {
	RoomID domain.RoomID   `json:"roomId"`
	From   domain.PeerID   `json:"from"`
	Data   json.RawMessage `json:"data"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
