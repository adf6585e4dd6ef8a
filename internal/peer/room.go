package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrRoomEnded = errors.New("room has ended")
	ErrNotActive = errors.New("room is not active")
)

type State int

const (
	Idle State = iota
	Invited
	Joining
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Invited:
		return "invited"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MediaFlags is what a remote peer last said about its own tracks.
type MediaFlags struct {
	Audio bool
	Video bool
}

type RoomConfig struct {
	RoomID     domain.RoomID
	Self       domain.PeerID
	Sender     Sender
	Negotiator Negotiator
	Gate       *MediaGate
	// MediaTimeout bounds how long Join waits for local media.
	MediaTimeout time.Duration
}

// Room drives one call from the participant side. Peers are dialed once the
// local stream is ready and only once each; whoever joined later is dialed by
// those already in the room.
type Room struct {
	id      domain.RoomID
	self    domain.PeerID
	sender  Sender
	neg     Negotiator
	gate    *MediaGate
	timeout time.Duration
	store   *Store

	mu      sync.Mutex
	state   State
	local   LocalStream
	dialed  map[domain.PeerID]struct{}
	waiting []domain.PeerID
	pending []IncomingCall
	flags   map[domain.PeerID]MediaFlags

	endOnce sync.Once
}

func NewRoom(cfg RoomConfig) *Room {
	gate := cfg.Gate
	if gate == nil {
		gate = NewMediaGate()
	}
	r := &Room{
		id:      cfg.RoomID,
		self:    cfg.Self,
		sender:  cfg.Sender,
		neg:     cfg.Negotiator,
		gate:    gate,
		timeout: cfg.MediaTimeout,
		store:   NewStore(),
		dialed:  make(map[domain.PeerID]struct{}),
		flags:   make(map[domain.PeerID]MediaFlags),
	}
	r.neg.OnStream(r.onStream)
	r.neg.OnIncoming(func(call IncomingCall) {
		if err := r.HandleIncoming(call); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("room", string(r.id)).Str("peer", string(call.Peer())).Msg("answer")
		}
	})
	return r
}

func (r *Room) ID() domain.RoomID { return r.id }
func (r *Room) Self() domain.PeerID { return r.self }
func (r *Room) Store() *Store { return r.store }
func (r *Room) Gate() *MediaGate { return r.gate }

func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Invite records that the room is ringing for us.
func (r *Room) Invite() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Idle {
		r.state = Invited
	}
}

// Join waits for local media, announces this peer as ready and then dials
// the peers that showed up meanwhile. Without local media it fails with
// ErrMediaUnavailable and the room stays joinable.
func (r *Room) Join(ctx context.Context) error {
	r.mu.Lock()
	prev := r.state
	switch prev {
	case Ended:
		r.mu.Unlock()
		return ErrRoomEnded
	case Joining, Active:
		r.mu.Unlock()
		return nil
	}
	r.state = Joining
	r.mu.Unlock()

	local, err := r.gate.Wait(ctx, r.timeout)
	if err == nil {
		err = r.sender.Send(core.EventJoinRoom, core.JoinRoomRequest{PeerID: r.self, RoomID: r.id, Ready: true})
	}
	r.mu.Lock()
	if r.state == Ended {
		r.mu.Unlock()
		return ErrRoomEnded
	}
	if err != nil {
		r.state = prev
		r.mu.Unlock()
		return fmt.Errorf("join %s: %w", r.id, err)
	}
	r.state = Active
	r.local = local
	waiting, pending := r.waiting, r.pending
	r.waiting, r.pending = nil, nil
	r.mu.Unlock()

	log.Info().Str("module", "peer").Str("room", string(r.id)).Str("self", string(r.self)).Msg("joined")
	var errs []error
	for _, call := range pending {
		errs = append(errs, r.answer(call, local))
	}
	for _, p := range waiting {
		errs = append(errs, r.dial(ctx, p))
	}
	return errors.Join(errs...)
}

// HandlePeerJoined records the peer and dials it once local media is ready.
func (r *Room) HandlePeerJoined(ctx context.Context, peer domain.PeerID) error {
	if peer == "" || peer == r.self {
		return nil
	}
	r.store.AddPeer(peer)
	r.mu.Lock()
	switch r.state {
	case Ended:
		r.mu.Unlock()
		return nil
	case Active:
	default:
		if !slices.Contains(r.waiting, peer) {
			r.waiting = append(r.waiting, peer)
		}
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	return r.dial(ctx, peer)
}

func (r *Room) dial(ctx context.Context, peer domain.PeerID) error {
	r.mu.Lock()
	if _, ok := r.dialed[peer]; ok || r.state != Active {
		r.mu.Unlock()
		return nil
	}
	r.dialed[peer] = struct{}{}
	local := r.local
	r.mu.Unlock()

	if err := r.neg.Call(ctx, peer, local); err != nil {
		r.mu.Lock()
		delete(r.dialed, peer)
		r.mu.Unlock()
		return fmt.Errorf("call %s: %w", peer, err)
	}
	log.Debug().Str("module", "peer").Str("room", string(r.id)).Str("peer", string(peer)).Msg("dialed")
	return nil
}

// HandleIncoming answers a remote dial, holding it until local media is
// ready when necessary.
func (r *Room) HandleIncoming(call IncomingCall) error {
	peer := call.Peer()
	r.store.AddPeer(peer)
	r.mu.Lock()
	switch r.state {
	case Ended:
		r.mu.Unlock()
		return ErrRoomEnded
	case Active:
	default:
		r.pending = append(r.pending, call)
		r.mu.Unlock()
		return nil
	}
	local := r.local
	r.mu.Unlock()
	return r.answer(call, local)
}

func (r *Room) answer(call IncomingCall, local LocalStream) error {
	r.mu.Lock()
	r.dialed[call.Peer()] = struct{}{}
	r.mu.Unlock()
	if err := call.Answer(local); err != nil {
		return fmt.Errorf("answer %s: %w", call.Peer(), err)
	}
	return nil
}

func (r *Room) onStream(peer domain.PeerID, s Stream) {
	if r.State() == Ended {
		s.Stop()
		return
	}
	r.store.AddOrReplace(peer, s)
}

// HandleToggle applies a remote peer's track state; the latest event wins.
func (r *Room) HandleToggle(ev core.MediaToggled) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[ev.PeerID]
	if !ok {
		f = MediaFlags{Audio: true, Video: true}
	}
	on := ev.State == domain.MediaOn
	switch ev.Media {
	case domain.MediaAudio:
		f.Audio = on
	case domain.MediaVideo:
		f.Video = on
	default:
		return
	}
	r.flags[ev.PeerID] = f
}

// Flags returns the peer's last known track state; unknown peers are on.
func (r *Room) Flags(peer domain.PeerID) MediaFlags {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.flags[peer]; ok {
		return f
	}
	return MediaFlags{Audio: true, Video: true}
}

// HandlePeerLeft prunes the peer and its media.
func (r *Room) HandlePeerLeft(peer domain.PeerID) {
	r.store.RemovePeer(peer)
	r.neg.Hangup(peer)
	r.mu.Lock()
	delete(r.dialed, peer)
	delete(r.flags, peer)
	r.waiting = slices.DeleteFunc(r.waiting, func(p domain.PeerID) bool { return p == peer })
	r.mu.Unlock()
}

// HandleCallEnded tears the room down after a remote end-call.
func (r *Room) HandleCallEnded() {
	r.end()
}

// Hangup tells the room the call is over and tears down locally.
func (r *Room) Hangup() error {
	if r.State() == Ended {
		return nil
	}
	err := r.sender.Send(core.EventEndCall, core.RoomRequest{RoomID: r.id})
	r.end()
	return err
}

func (r *Room) end() {
	r.endOnce.Do(func() {
		r.mu.Lock()
		r.state = Ended
		local := r.local
		r.pending, r.waiting = nil, nil
		r.mu.Unlock()
		if local == nil {
			local = r.gate.Stream()
		}
		if local != nil {
			local.Stop()
		}
		if err := r.neg.Close(); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("room", string(r.id)).Msg("negotiator close")
		}
		r.store.Clear()
		log.Info().Str("module", "peer").Str("room", string(r.id)).Msg("call ended")
	})
}

// SetMedia flips one of our own tracks and tells the room.
func (r *Room) SetMedia(media domain.MediaKind, state domain.MediaState) error {
	if !media.Valid() {
		return domain.ErrInvalidMedia
	}
	if !state.Valid() {
		return domain.ErrInvalidMediaState
	}
	r.mu.Lock()
	if r.state != Active {
		r.mu.Unlock()
		return ErrNotActive
	}
	local := r.local
	r.mu.Unlock()
	if local != nil {
		local.SetEnabled(media, state == domain.MediaOn)
	}
	return r.sender.Send(core.EventToggleMedia, core.ToggleMediaRequest{RoomID: r.id, Media: media, State: state})
}

// Dispatch applies one room-scoped server event.
func (r *Room) Dispatch(ctx context.Context, env core.Envelope) error {
	switch env.Type {
	case core.EventPeerJoined:
		var ev core.PeerEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return r.HandlePeerJoined(ctx, ev.PeerID)
	case core.EventPeerLeft:
		var ev core.PeerEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		r.HandlePeerLeft(ev.PeerID)
	case core.EventMediaToggled:
		var ev core.MediaToggled
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		r.HandleToggle(ev)
	case core.EventCallEnded:
		r.HandleCallEnded()
	case core.EventSignal:
		var ev core.SignalRelay
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if r.State() == Ended {
			return nil
		}
		return r.neg.HandleSignal(ev.From, ev.Data)
	}
	return nil
}
