package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Hamlet/internal/domain"
)

var ErrMediaUnavailable = errors.New("local media unavailable")

// LocalStream is the participant's own capture. Toggling a kind only flips
// whether it is sent; Stop releases it for good.
type LocalStream interface {
	Stream
	SetEnabled(kind domain.MediaKind, on bool)
}

// MediaGate resolves once with the local stream or a failure. Waiters block
// until then or until their timeout.
type MediaGate struct {
	once   sync.Once
	done   chan struct{}
	stream LocalStream
	err    error
}

func NewMediaGate() *MediaGate {
	return &MediaGate{done: make(chan struct{})}
}

// Resolve publishes the local stream. Only the first Resolve or Fail counts.
func (g *MediaGate) Resolve(s LocalStream) {
	g.once.Do(func() {
		g.stream = s
		close(g.done)
	})
}

func (g *MediaGate) Fail(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.done)
	})
}

// Ready reports whether local media is available without blocking.
func (g *MediaGate) Ready() bool {
	select {
	case <-g.done:
		return g.err == nil
	default:
		return false
	}
}

// Stream returns the resolved stream or nil.
func (g *MediaGate) Stream() LocalStream {
	if !g.Ready() {
		return nil
	}
	return g.stream
}

// Wait blocks until the gate resolves. A failure, a timeout or a cancelled
// ctx all surface as ErrMediaUnavailable. timeout <= 0 waits on ctx alone.
func (g *MediaGate) Wait(ctx context.Context, timeout time.Duration) (LocalStream, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-g.done:
		if g.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMediaUnavailable, g.err)
		}
		return g.stream, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrMediaUnavailable, ctx.Err())
	}
}
