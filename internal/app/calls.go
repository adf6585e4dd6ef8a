package app

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Calls coordinates call rooms: invitations, join announcements, media
// toggles, negotiation relay and teardown. It never touches media itself.
type Calls struct {
	Messaging *Messaging
	Router    *Router
	Rooms     *RoomManager
}

func NewCalls(msg *Messaging, router *Router, rooms *RoomManager) *Calls {
	return &Calls{Messaging: msg, Router: router, Rooms: rooms}
}

// Invite persists a call message from caller to callee and rings the callee's
// sessions. The message id becomes the room id. Nothing times out an
// unanswered call.
func (c *Calls) Invite(ctx context.Context, caller, callee domain.UserID, kind domain.MessageKind) (domain.Message, error) {
	if !kind.IsCall() {
		return domain.Message{}, ErrInvalidCallKind
	}
	if callee == "" {
		return domain.Message{}, domain.ErrRecipientRequired
	}
	if caller == callee {
		return domain.Message{}, ErrSelfCall
	}
	msg, err := c.Messaging.Send(ctx, caller, domain.MessageDraft{Recipient: callee, Kind: kind})
	if err != nil {
		return domain.Message{}, err
	}
	c.Router.Route(core.EventIncomingCall, ToUsers(callee), core.IncomingCall{
		RoomID: domain.RoomID(msg.ID),
		Sender: msg.Sender,
		Kind:   kind,
	})
	log.Info().Str("module", "app.calls").Str("room", string(msg.ID)).Str("caller", string(caller)).Str("callee", string(callee)).Msg("call invited")
	return msg, nil
}

// Join records the session in the room. Once the member is ready the others
// receive peer-joined, exactly once for this connection and peer id.
func (c *Calls) Join(sess *core.Session, room domain.RoomID, peer domain.PeerID, ready bool) error {
	if room == "" {
		return ErrMissingRoom
	}
	if peer == "" {
		return ErrMissingPeer
	}
	others, announce := c.Rooms.Announce(room, RoomMember{
		ConnID: sess.ConnID,
		UserID: sess.UserID,
		PeerID: peer,
		Ready:  ready,
	})
	if !announce {
		return nil
	}
	n := c.Router.Route(core.EventPeerJoined, ToConns(others...), core.PeerEvent{PeerID: peer, RoomID: room})
	log.Info().Str("module", "app.calls").Str("room", string(room)).Str("peer", string(peer)).Int("notified", n).Msg("peer joined")
	return nil
}

// Toggle relays the sender's new track state to the rest of the room.
func (c *Calls) Toggle(conn core.ConnID, room domain.RoomID, media domain.MediaKind, state domain.MediaState) error {
	if !media.Valid() {
		return domain.ErrInvalidMedia
	}
	if !state.Valid() {
		return domain.ErrInvalidMediaState
	}
	m, ok := c.Rooms.Member(room, conn)
	if !ok {
		return ErrNotInRoom
	}
	c.Router.Route(core.EventMediaToggled, ToConns(c.Rooms.Others(room, conn)...), core.MediaToggled{
		PeerID: m.PeerID,
		RoomID: room,
		Media:  media,
		State:  state,
	})
	return nil
}

// End tells every other member the call is over and drops the room. Only a
// member can end it; a room that is already gone reports ErrNotInRoom.
func (c *Calls) End(conn core.ConnID, room domain.RoomID) error {
	if room == "" {
		return ErrMissingRoom
	}
	others, ok := c.Rooms.Close(room, conn)
	if !ok {
		return ErrNotInRoom
	}
	if len(others) == 0 {
		return nil
	}
	c.Router.Route(core.EventCallEnded, ToConns(others...), core.RoomRequest{RoomID: room})
	log.Info().Str("module", "app.calls").Str("room", string(room)).Int("notified", len(others)).Msg("call ended")
	return nil
}

// Leave removes conn from room and tells the rest so they can prune the peer.
func (c *Calls) Leave(conn core.ConnID, room domain.RoomID) error {
	m, others, ok := c.Rooms.Leave(room, conn)
	if !ok {
		return ErrNotInRoom
	}
	c.peerLeft(room, m, others)
	return nil
}

// Disconnect drops conn from every room it was in.
func (c *Calls) Disconnect(conn core.ConnID) {
	for _, d := range c.Rooms.LeaveAll(conn) {
		c.peerLeft(d.Room, d.Member, d.Others)
	}
}

// Relay forwards an opaque negotiation payload to the connections of peer
// within the same room.
func (c *Calls) Relay(conn core.ConnID, room domain.RoomID, to domain.PeerID, data json.RawMessage) error {
	if to == "" {
		return ErrMissingPeer
	}
	m, ok := c.Rooms.Member(room, conn)
	if !ok {
		return ErrNotInRoom
	}
	targets := c.Rooms.PeerConns(room, to)
	if len(targets) == 0 {
		log.Debug().Str("module", "app.calls").Str("room", string(room)).Str("to", string(to)).Msg("signal target gone")
		return nil
	}
	c.Router.Route(core.EventSignal, ToConns(targets...), core.SignalRelay{RoomID: room, From: m.PeerID, Data: data})
	return nil
}

func (c *Calls) peerLeft(room domain.RoomID, m RoomMember, others []core.ConnID) {
	if len(others) == 0 {
		return
	}
	c.Router.Route(core.EventPeerLeft, ToConns(others...), core.PeerEvent{PeerID: m.PeerID, RoomID: room})
	log.Info().Str("module", "app.calls").Str("room", string(room)).Str("peer", string(m.PeerID)).Msg("peer left")
}
