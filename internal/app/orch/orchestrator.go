package orch

import (
	"github.com/dkeye/Hamlet/internal/app"
	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator wires the coordination services together and owns the
// connection lifecycle seen by the transport adapters.
type Orchestrator struct {
	Registry  *app.Registry
	Router    *app.Router
	Presence  *app.Presence
	Messaging *app.Messaging
	Calls     *app.Calls
	Social    *app.Social
}

type Options struct {
	Policy       app.Policy
	InterestList bool
}

func New(messages app.MessageStore, social app.SocialStore, opts Options) *Orchestrator {
	reg := app.NewRegistry()
	router := app.NewRouter(reg, opts.Policy)
	msg := app.NewMessaging(messages, router)
	return &Orchestrator{
		Registry:  reg,
		Router:    router,
		Presence:  app.NewPresence(reg, router),
		Messaging: msg,
		Calls:     app.NewCalls(msg, router, app.NewRoomManager()),
		Social:    app.NewSocial(social, router, opts.InterestList),
	}
}

// OnConnect registers an authenticated connection.
func (o *Orchestrator) OnConnect(uid domain.UserID, conn core.SignalConnection) *core.Session {
	return o.Presence.Connect(uid, conn)
}

// OnDisconnect leaves every call room before the session disappears from
// presence, so peers see peer-left ahead of the new online set.
func (o *Orchestrator) OnDisconnect(id core.ConnID) {
	o.Calls.Disconnect(id)
	o.Presence.Disconnect(id)
	log.Debug().Str("module", "orch").Str("conn", string(id)).Msg("connection cleaned up")
}

type Stats struct {
	Users    int            `json:"users"`
	Sessions int            `json:"sessions"`
	Rooms    []app.RoomInfo `json:"rooms"`
}

func (o *Orchestrator) Stats() Stats {
	users, sessions := o.Registry.Count()
	return Stats{Users: users, Sessions: sessions, Rooms: o.Calls.Rooms.List()}
}
