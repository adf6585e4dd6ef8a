package peer

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Hamlet/internal/domain"
)

// IncomingCall is a remote peer dialing us; it stays pending until answered.
type IncomingCall interface {
	Peer() domain.PeerID
	Answer(local LocalStream) error
}

// Negotiator establishes media with remote peers. Negotiation messages leave
// through the SignalFunc it was built with and come back via HandleSignal.
type Negotiator interface {
	Call(ctx context.Context, peer domain.PeerID, local LocalStream) error
	HandleSignal(from domain.PeerID, data json.RawMessage) error
	OnStream(func(peer domain.PeerID, s Stream))
	OnIncoming(func(IncomingCall))
	Hangup(peer domain.PeerID)
	Close() error
}

// SignalFunc sends an opaque negotiation payload to one peer of the room.
type SignalFunc func(to domain.PeerID, data json.RawMessage) error

// Sender pushes a client event to the server.
type Sender interface {
	Send(kind string, payload any) error
}
