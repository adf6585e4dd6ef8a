package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
)

var errFull = errors.New("full")

// fakeConn records frames; with limit > 0 it refuses frames past the limit.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Envelope
	limit  int
	closed int
	gone   bool // TrySend reports a connection that is shutting down
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone {
		return core.ErrConnClosed
	}
	if c.limit > 0 && len(c.frames) >= c.limit {
		return errFull
	}
	env, err := core.Decode(f)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
}

func (c *fakeConn) events(kind string) []core.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []core.Envelope
	for _, e := range c.frames {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) count(kind string) int { return len(c.events(kind)) }

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func payload[T any](t *testing.T, env core.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return v
}

func last[T any](t *testing.T, c *fakeConn, kind string) T {
	t.Helper()
	evs := c.events(kind)
	if len(evs) == 0 {
		t.Fatalf("no %s event", kind)
	}
	return payload[T](t, evs[len(evs)-1])
}

// memStore is an in-memory MessageStore and SocialStore.
type memStore struct {
	mu       sync.Mutex
	seq      int
	users    map[domain.UserID]domain.UserRef
	messages map[domain.MessageID]*domain.Message
	likes    map[string]bool
	follows  map[string]bool
	authors  map[domain.PostID]domain.UserID
	audience map[domain.PostID][]domain.UserID
	fail     error
}

func newMemStore(uids ...domain.UserID) *memStore {
	s := &memStore{
		users:    make(map[domain.UserID]domain.UserRef),
		messages: make(map[domain.MessageID]*domain.Message),
		likes:    make(map[string]bool),
		follows:  make(map[string]bool),
		authors:  make(map[domain.PostID]domain.UserID),
		audience: make(map[domain.PostID][]domain.UserID),
	}
	for _, u := range uids {
		s.users[u] = domain.UserRef{ID: u, Username: string(u)}
	}
	return s
}

func (s *memStore) next() string {
	s.seq++
	return fmt.Sprintf("id-%d", s.seq)
}

func (s *memStore) CreateMessage(_ context.Context, d domain.MessageDraft) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return domain.Message{}, s.fail
	}
	from, ok := s.users[d.Sender]
	to, ok2 := s.users[d.Recipient]
	if !ok || !ok2 {
		return domain.Message{}, ErrNotFound
	}
	m := &domain.Message{
		ID:        domain.MessageID(s.next()),
		Sender:    from,
		Recipient: to,
		Kind:      d.Kind,
		CreatedAt: time.Now(),
	}
	if d.Body != "" {
		body := d.Body
		m.Body = &body
	}
	s.messages[m.ID] = m
	return *m, nil
}

func (s *memStore) MarkRead(_ context.Context, reader domain.UserID, ids []domain.MessageID) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	var out []domain.Message
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || m.Recipient.ID != reader {
			continue
		}
		m.Read = true
		out = append(out, *m)
	}
	return out, nil
}

func (s *memStore) User(_ context.Context, id domain.UserID) (domain.UserRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.UserRef{}, ErrNotFound
	}
	return u, nil
}

func (s *memStore) notification(kind domain.NotificationKind, from, to domain.UserID, post *domain.PostID) *domain.Notification {
	if from == to {
		return nil
	}
	return &domain.Notification{
		ID:       domain.NotificationID(s.next()),
		Kind:     kind,
		Sender:   s.users[from],
		Receiver: s.users[to],
		PostID:   post,
	}
}

func (s *memStore) ToggleLike(_ context.Context, user domain.UserID, post domain.PostID) (domain.LikeChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	author, ok := s.authors[post]
	if !ok {
		return domain.LikeChange{}, ErrNotFound
	}
	key := string(user) + "/" + string(post)
	ch := domain.LikeChange{Like: domain.Like{PostID: post, User: s.users[user]}}
	if s.likes[key] {
		delete(s.likes, key)
		ch.Like.Deleted = true
		return ch, nil
	}
	s.likes[key] = true
	ch.Like.ID = s.next()
	ch.Notification = s.notification(domain.NotifyLike, user, author, &post)
	return ch, nil
}

func (s *memStore) CreateComment(_ context.Context, user domain.UserID, post domain.PostID, body string) (domain.CommentChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	author, ok := s.authors[post]
	if !ok {
		return domain.CommentChange{}, ErrNotFound
	}
	c := domain.Comment{ID: domain.CommentID(s.next()), PostID: post, Author: s.users[user], Body: body}
	return domain.CommentChange{Comment: c, Notification: s.notification(domain.NotifyComment, user, author, &post)}, nil
}

func (s *memStore) ToggleFollow(_ context.Context, follower, following domain.UserID) (domain.FollowChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(follower) + "/" + string(following)
	if s.follows[key] {
		delete(s.follows, key)
		return domain.FollowChange{}, nil
	}
	s.follows[key] = true
	return domain.FollowChange{Following: true, Notification: s.notification(domain.NotifyFollow, follower, following, nil)}, nil
}

func (s *memStore) PostAudience(_ context.Context, post domain.PostID) ([]domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	return s.audience[post], nil
}

// harness wires the services the way the orchestrator does.
type harness struct {
	reg      *Registry
	router   *Router
	presence *Presence
	msg      *Messaging
	calls    *Calls
	social   *Social
	store    *memStore
}

func newHarness(uids ...domain.UserID) *harness {
	store := newMemStore(uids...)
	reg := NewRegistry()
	router := NewRouter(reg, nil)
	msg := NewMessaging(store, router)
	return &harness{
		reg:      reg,
		router:   router,
		presence: NewPresence(reg, router),
		msg:      msg,
		calls:    NewCalls(msg, router, NewRoomManager()),
		social:   NewSocial(store, router, false),
		store:    store,
	}
}

func (h *harness) connect(uid domain.UserID) (*core.Session, *fakeConn) {
	c := &fakeConn{}
	return h.presence.Connect(uid, c), c
}
