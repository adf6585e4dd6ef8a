package app

import (
	"errors"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Target selects the sessions an event is fanned out to.
type Target struct {
	Users []domain.UserID
	Conns []core.ConnID
	All   bool
}

// ToUsers targets every session of the given users.
func ToUsers(uids ...domain.UserID) Target { return Target{Users: uids} }

// ToConns targets specific connections, used for room relays.
func ToConns(ids ...core.ConnID) Target { return Target{Conns: ids} }

// Everyone targets every live session.
func Everyone() Target { return Target{All: true} }

// Router fans domain events out to live sessions. Delivery is at-most-once:
// targets without a live session are skipped and nothing is queued.
type Router struct {
	Registry *Registry
	Policy   Policy
}

func NewRouter(reg *Registry, policy Policy) *Router {
	if policy == nil {
		policy = DropPolicy{}
	}
	return &Router{Registry: reg, Policy: policy}
}

// Route encodes payload once and enqueues it on every targeted session.
// It returns the number of copies enqueued.
func (r *Router) Route(kind string, t Target, payload any) int {
	frame, err := core.Encode(kind, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("event", kind).Msg("encode")
		return 0
	}
	return r.deliver(kind, r.resolve(t), frame)
}

func (r *Router) resolve(t Target) []*core.Session {
	if t.All {
		return r.Registry.All()
	}
	out := r.Registry.Sessions(t.Users...)
	if len(t.Conns) == 0 {
		return out
	}
	seen := make(map[core.ConnID]struct{}, len(out))
	for _, s := range out {
		seen[s.ConnID] = struct{}{}
	}
	for _, s := range r.Registry.Lookup(t.Conns...) {
		if _, dup := seen[s.ConnID]; !dup {
			seen[s.ConnID] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func (r *Router) deliver(kind string, sessions []*core.Session, frame core.Frame) int {
	sent := 0
	for _, sess := range sessions {
		if err := sess.Conn.TrySend(frame); err != nil {
			r.onSendError(kind, sess, err)
			continue
		}
		sent++
	}
	if len(sessions) == 0 {
		log.Debug().Str("module", "app.router").Str("event", kind).Msg("no live target, dropped")
	}
	return sent
}

func (r *Router) onSendError(kind string, sess *core.Session, err error) {
	if errors.Is(err, core.ErrConnClosed) {
		log.Debug().Str("module", "app.router").Str("event", kind).Str("conn", string(sess.ConnID)).Msg("connection closing, dropped")
		return
	}
	action := r.Policy.OnBackpressure(sess)
	log.Warn().Err(err).
		Str("module", "app.router").
		Str("event", kind).
		Str("conn", string(sess.ConnID)).
		Int("action", int(action)).
		Msg("send failed")
	if action == CloseConn {
		sess.Conn.Close()
	}
}
