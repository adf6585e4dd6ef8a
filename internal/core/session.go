package core

import (
	"time"

	"github.com/dkeye/Hamlet/internal/domain"
)

type ConnID string

// Session is one live connection of one authenticated user.
type Session struct {
	ConnID        ConnID
	UserID        domain.UserID
	EstablishedAt time.Time
	Conn          SignalConnection
}
