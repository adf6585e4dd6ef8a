package app

import (
	"sync"
	"time"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Presence owns registry mutations so that every connect and disconnect is
// followed by a full snapshot broadcast. Mutation and broadcast happen under
// one lock, so snapshots go out in mutation order.
type Presence struct {
	mu       sync.Mutex
	registry *Registry
	router   *Router
	now      func() time.Time
}

func NewPresence(reg *Registry, router *Router) *Presence {
	return &Presence{registry: reg, router: router, now: time.Now}
}

// Connect registers a new session for uid and publishes the online set.
func (p *Presence) Connect(uid domain.UserID, conn core.SignalConnection) *core.Session {
	sess := &core.Session{
		ConnID:        core.ConnID(uuid.NewString()),
		UserID:        uid,
		EstablishedAt: p.now(),
		Conn:          conn,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registry.Add(sess)
	p.broadcastLocked()
	log.Info().Str("module", "app.presence").Str("uid", string(uid)).Str("conn", string(sess.ConnID)).Msg("connected")
	return sess
}

// Disconnect drops the session and publishes the online set. Unknown ids are
// ignored, so calling it twice for one connection is safe.
func (p *Presence) Disconnect(id core.ConnID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.registry.Remove(id)
	if !ok {
		return
	}
	p.broadcastLocked()
	log.Info().Str("module", "app.presence").Str("uid", string(sess.UserID)).Str("conn", string(id)).Msg("disconnected")
}

// Online returns the current presence set.
func (p *Presence) Online() []domain.UserID {
	return p.registry.OnlineUsers()
}

func (p *Presence) broadcastLocked() {
	p.router.Route(core.EventOnlineUsers, Everyone(), p.registry.OnlineUsers())
}
