package app

import (
	"github.com/dkeye/Hamlet/internal/core"
)

type BackpressureAction int

const (
	DropEvent BackpressureAction = iota
	CloseConn
)

// Policy decides what happens to a session whose send queue is full.
type Policy interface {
	OnBackpressure(sess *core.Session) BackpressureAction
}

// DropPolicy loses the event and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(*core.Session) BackpressureAction { return DropEvent }

// KickPolicy closes slow connections; the read pump then runs the normal
// disconnect path.
type KickPolicy struct{}

func (KickPolicy) OnBackpressure(*core.Session) BackpressureAction { return CloseConn }

// PolicyByName maps the config value to a policy. Unknown names drop.
func PolicyByName(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return DropPolicy{}
}
