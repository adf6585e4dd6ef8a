package core

import "errors"

// ErrConnClosed is returned by TrySend once the connection is shutting down.
var ErrConnClosed = errors.New("connection closed")

// Frame is one encoded event as written to the wire.
type Frame []byte

// SignalConnection abstracts the push transport of one session.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
