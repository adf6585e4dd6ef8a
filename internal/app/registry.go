package app

import (
	"slices"
	"sync"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the authoritative map of user identity to live sessions.
// Created at process start, never persisted.
type Registry struct {
	mu     sync.RWMutex
	byUser map[domain.UserID]map[core.ConnID]*core.Session
	byConn map[core.ConnID]*core.Session
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[domain.UserID]map[core.ConnID]*core.Session),
		byConn: make(map[core.ConnID]*core.Session),
	}
}

// Add appends sess to its user's session set, creating the set if absent.
func (r *Registry) Add(sess *core.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[sess.UserID]
	if !ok {
		set = make(map[core.ConnID]*core.Session)
		r.byUser[sess.UserID] = set
	}
	set[sess.ConnID] = sess
	r.byConn[sess.ConnID] = sess
	log.Debug().Str("module", "app.registry").Str("uid", string(sess.UserID)).Str("conn", string(sess.ConnID)).Int("sessions", len(set)).Msg("session added")
}

// Remove evicts the connection from its owner's set and drops the user key
// once the set is empty.
func (r *Registry) Remove(id core.ConnID) (*core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.byConn[id]
	if !ok {
		return nil, false
	}
	delete(r.byConn, id)
	if set, ok := r.byUser[sess.UserID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byUser, sess.UserID)
		}
	}
	log.Debug().Str("module", "app.registry").Str("uid", string(sess.UserID)).Str("conn", string(id)).Msg("session removed")
	return sess, true
}

func (r *Registry) Get(id core.ConnID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byConn[id]
	return sess, ok
}

// OnlineUsers returns the sorted presence set.
func (r *Registry) OnlineUsers() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

func (r *Registry) onlineLocked() []domain.UserID {
	out := make([]domain.UserID, 0, len(r.byUser))
	for uid := range r.byUser {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

// Sessions returns the live sessions of the given users, each connection once.
func (r *Registry) Sessions(uids ...domain.UserID) []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[core.ConnID]struct{})
	var out []*core.Session
	for _, uid := range uids {
		for id, sess := range r.byUser[uid] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, sess)
		}
	}
	return out
}

// Lookup resolves connection ids to sessions, skipping closed ones.
func (r *Registry) Lookup(ids ...core.ConnID) []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Session, 0, len(ids))
	for _, id := range ids {
		if sess, ok := r.byConn[id]; ok {
			out = append(out, sess)
		}
	}
	return out
}

func (r *Registry) All() []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Session, 0, len(r.byConn))
	for _, sess := range r.byConn {
		out = append(out, sess)
	}
	return out
}

func (r *Registry) Count() (users, sessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser), len(r.byConn)
}
