// Package rtc negotiates peer-to-peer media with pion. Offers, answers and
// ICE candidates travel through the coordinator's signal relay.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/dkeye/Hamlet/internal/peer"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	kindOffer     = "offer"
	kindAnswer    = "answer"
	kindCandidate = "candidate"
)

// maxEarlyCandidates caps the candidates held for a peer whose offer has not
// arrived yet.
const maxEarlyCandidates = 32

var ErrUnknownPeer = errors.New("no connection for peer")

// signalMessage is the opaque payload carried by the relay.
type signalMessage struct {
	Kind      string                   `json:"kind"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Negotiator keeps one WebRTCConnection per remote peer.
type Negotiator struct {
	cfg  webrtc.Configuration
	send peer.SignalFunc

	mu         sync.Mutex
	conns      map[domain.PeerID]*WebRTCConnection
	streams    map[domain.PeerID]map[string]*RemoteStream
	early      map[domain.PeerID][]webrtc.ICECandidateInit
	onStream   func(domain.PeerID, peer.Stream)
	onIncoming func(peer.IncomingCall)
	closed     bool
}

var _ peer.Negotiator = (*Negotiator)(nil)

func NewNegotiator(cfg webrtc.Configuration, send peer.SignalFunc) *Negotiator {
	return &Negotiator{
		cfg:     cfg,
		send:    send,
		conns:   make(map[domain.PeerID]*WebRTCConnection),
		streams: make(map[domain.PeerID]map[string]*RemoteStream),
		early:   make(map[domain.PeerID][]webrtc.ICECandidateInit),
	}
}

func (n *Negotiator) OnStream(fn func(domain.PeerID, peer.Stream)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onStream = fn
}

func (n *Negotiator) OnIncoming(fn func(peer.IncomingCall)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onIncoming = fn
}

// Call dials p with our local media and sends the offer.
func (n *Negotiator) Call(ctx context.Context, p domain.PeerID, local peer.LocalStream) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := n.open(p)
	if err != nil {
		return err
	}
	if err := n.attachLocal(conn, local); err != nil {
		n.Hangup(p)
		return err
	}
	offer, err := conn.CreateOffer()
	if err != nil {
		n.Hangup(p)
		return fmt.Errorf("create offer: %w", err)
	}
	return n.signal(p, signalMessage{Kind: kindOffer, SDP: offer.SDP})
}

// HandleSignal applies a relayed payload from a remote peer.
func (n *Negotiator) HandleSignal(from domain.PeerID, data json.RawMessage) error {
	var msg signalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}
	switch msg.Kind {
	case kindOffer:
		return n.handleOffer(from, msg.SDP)
	case kindAnswer:
		conn, ok := n.conn(from)
		if !ok {
			return ErrUnknownPeer
		}
		return conn.SetRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP})
	case kindCandidate:
		if msg.Candidate == nil {
			return nil
		}
		conn, ok := n.conn(from)
		if !ok {
			// the offerer trickles as soon as it starts gathering, so its
			// candidates can overtake the offer
			n.holdCandidate(from, *msg.Candidate)
			return nil
		}
		return conn.AddICECandidate(*msg.Candidate)
	}
	return fmt.Errorf("unknown signal kind %q", msg.Kind)
}

func (n *Negotiator) handleOffer(from domain.PeerID, sdp string) error {
	// a renegotiation from the same peer replaces the old link
	n.Hangup(from)
	conn, err := n.open(from)
	if err != nil {
		return err
	}
	if err := conn.SetRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		n.Hangup(from)
		return fmt.Errorf("apply offer: %w", err)
	}
	for _, ci := range n.takeCandidates(from) {
		if err := conn.AddICECandidate(ci); err != nil {
			log.Debug().Err(err).Str("module", "webrtc").Str("peer", string(from)).Msg("early candidate")
		}
	}
	n.mu.Lock()
	fn := n.onIncoming
	n.mu.Unlock()
	if fn == nil {
		n.Hangup(from)
		return errors.New("no incoming call handler")
	}
	fn(&incomingCall{n: n, peer: from, conn: conn})
	return nil
}

type incomingCall struct {
	n    *Negotiator
	peer domain.PeerID
	conn *WebRTCConnection
	once sync.Once
}

func (c *incomingCall) Peer() domain.PeerID { return c.peer }

// Answer sends our media back. Only the first call has an effect.
func (c *incomingCall) Answer(local peer.LocalStream) error {
	var err error
	c.once.Do(func() {
		if err = c.n.attachLocal(c.conn, local); err != nil {
			return
		}
		var answer webrtc.SessionDescription
		answer, err = c.conn.CreateAnswer()
		if err != nil {
			err = fmt.Errorf("create answer: %w", err)
			return
		}
		err = c.n.signal(c.peer, signalMessage{Kind: kindAnswer, SDP: answer.SDP})
	})
	return err
}

func (n *Negotiator) open(p domain.PeerID) (*WebRTCConnection, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, errors.New("negotiator closed")
	}
	if _, ok := n.conns[p]; ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("peer %s already connected", p)
	}
	n.mu.Unlock()

	conn, err := NewWebRTCConnection(n.cfg, p)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := n.signal(p, signalMessage{Kind: kindCandidate, Candidate: &ci}); err != nil {
			log.Debug().Err(err).Str("module", "webrtc").Str("peer", string(p)).Msg("send candidate")
		}
	})
	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		n.onTrack(p, track)
	})
	conn.OnClosed(func() { n.forget(p, conn) })
	conn.Start()

	n.mu.Lock()
	n.conns[p] = conn
	n.mu.Unlock()
	return conn, nil
}

func (n *Negotiator) attachLocal(conn *WebRTCConnection, local peer.LocalStream) error {
	if lm, ok := local.(*LocalMedia); ok && lm != nil {
		if err := lm.attach(conn.pc); err != nil {
			return fmt.Errorf("add local tracks: %w", err)
		}
		return nil
	}
	return conn.RecvOnly()
}

func (n *Negotiator) onTrack(p domain.PeerID, track *webrtc.TrackRemote) {
	n.mu.Lock()
	byID, ok := n.streams[p]
	if !ok {
		byID = make(map[string]*RemoteStream)
		n.streams[p] = byID
	}
	s, ok := byID[track.StreamID()]
	if !ok {
		s = newRemoteStream(p, track.StreamID())
		byID[track.StreamID()] = s
	}
	fn := n.onStream
	n.mu.Unlock()

	s.addTrack(track)
	if fn != nil {
		fn(p, s)
	}
}

func (n *Negotiator) conn(p domain.PeerID) (*WebRTCConnection, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.conns[p]
	return c, ok
}

func (n *Negotiator) holdCandidate(p domain.PeerID, ci webrtc.ICECandidateInit) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || len(n.early[p]) >= maxEarlyCandidates {
		return
	}
	n.early[p] = append(n.early[p], ci)
}

func (n *Negotiator) takeCandidates(p domain.PeerID) []webrtc.ICECandidateInit {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.early[p]
	delete(n.early, p)
	return out
}

func (n *Negotiator) signal(to domain.PeerID, msg signalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.send(to, data)
}

// forget drops a link that failed on its own. A newer link to the same peer
// is left alone.
func (n *Negotiator) forget(p domain.PeerID, conn *WebRTCConnection) {
	n.mu.Lock()
	if n.conns[p] != conn {
		n.mu.Unlock()
		return
	}
	delete(n.conns, p)
	streams := n.streams[p]
	delete(n.streams, p)
	n.mu.Unlock()
	for _, s := range streams {
		s.Stop()
	}
	// pion must not be closed from its own state callback
	go conn.Close()
	log.Info().Str("module", "webrtc").Str("peer", string(p)).Msg("link dropped")
}

// Hangup closes the link to p and stops its streams.
func (n *Negotiator) Hangup(p domain.PeerID) {
	n.mu.Lock()
	conn, ok := n.conns[p]
	delete(n.conns, p)
	streams := n.streams[p]
	delete(n.streams, p)
	n.mu.Unlock()
	for _, s := range streams {
		s.Stop()
	}
	if ok {
		conn.Close()
	}
}

// Close hangs up every peer. Later calls fail.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	n.closed = true
	clear(n.early)
	peers := make([]domain.PeerID, 0, len(n.conns))
	for p := range n.conns {
		peers = append(peers, p)
	}
	n.mu.Unlock()
	for _, p := range peers {
		n.Hangup(p)
	}
	return nil
}
