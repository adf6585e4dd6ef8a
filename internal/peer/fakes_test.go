package peer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
)

type fakeStream struct {
	id string

	mu      sync.Mutex
	stops   int
	enabled map[domain.MediaKind]bool
}

func newFakeStream(id string) *fakeStream {
	return &fakeStream{id: id, enabled: map[domain.MediaKind]bool{domain.MediaAudio: true, domain.MediaVideo: true}}
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeStream) SetEnabled(kind domain.MediaKind, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[kind] = on
}

func (s *fakeStream) stopped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type sentEvent struct {
	kind    string
	payload any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentEvent
	err  error
}

func (s *fakeSender) Send(kind string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEvent{kind, payload})
	return nil
}

func (s *fakeSender) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, e := range s.sent {
		out = append(out, e.kind)
	}
	return out
}

type fakeCall struct {
	peer     domain.PeerID
	answered []LocalStream
}

func (c *fakeCall) Peer() domain.PeerID { return c.peer }

func (c *fakeCall) Answer(local LocalStream) error {
	c.answered = append(c.answered, local)
	return nil
}

type fakeNegotiator struct {
	mu       sync.Mutex
	calls    []domain.PeerID
	hangups  []domain.PeerID
	signals  []domain.PeerID
	closed   int
	callErr  error
	onStream func(domain.PeerID, Stream)
	incoming func(IncomingCall)
}

var errDial = errors.New("dial failed")

func (n *fakeNegotiator) Call(_ context.Context, p domain.PeerID, _ LocalStream) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.callErr != nil {
		return n.callErr
	}
	n.calls = append(n.calls, p)
	return nil
}

func (n *fakeNegotiator) HandleSignal(from domain.PeerID, _ json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, from)
	return nil
}

func (n *fakeNegotiator) OnStream(fn func(domain.PeerID, Stream)) { n.onStream = fn }
func (n *fakeNegotiator) OnIncoming(fn func(IncomingCall)) { n.incoming = fn }

func (n *fakeNegotiator) Hangup(p domain.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hangups = append(n.hangups, p)
}

func (n *fakeNegotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed++
	return nil
}

func (n *fakeNegotiator) dialed() []domain.PeerID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.PeerID(nil), n.calls...)
}

func envelope(kind string, payload any) core.Envelope {
	data, _ := json.Marshal(payload)
	return core.Envelope{Type: kind, Data: data}
}
