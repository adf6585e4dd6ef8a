package signal

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Hamlet/internal/app/orch"
	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = core.ErrConnClosed
)

// UserKey is the gin context key holding the authenticated domain.UserID.
const UserKey = "uid"

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	InviteLimit  int
	InviteWindow time.Duration
	// AllowedOrigins lists the browser origins that may open the socket.
	// Requests without an Origin header are not from a browser and pass.
	// Empty keeps the same-host check of the upgrader.
	AllowedOrigins []string
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	opts     Options
	invites  *InviteRateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 5 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	var limiter *InviteRateLimiter
	if opts.InviteLimit > 0 {
		limiter = NewInviteRateLimiter(opts.InviteLimit, opts.InviteWindow)
	}
	ctl := &SignalWSController{Orch: o, opts: opts, invites: limiter}
	if len(opts.AllowedOrigins) > 0 {
		ctl.upgrader.CheckOrigin = ctl.checkOrigin
	}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(ctl.opts.AllowedOrigins, origin) {
		return true
	}
	log.Warn().Str("module", "signal").Str("origin", origin).Msg("origin rejected")
	return false
}

// WsSignalConn is the push side of one websocket. Frames are queued on a
// bounded channel drained by the write pump; a full queue is reported as
// ErrBackpressure instead of blocking the sender.
type WsSignalConn struct {
	conn   *websocket.Conn
	send   chan core.Frame
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close is safe to call from any goroutine and more than once. It never
// calls back into the app layer; the read pump does the cleanup.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	c.cancel()
	_ = c.conn.Close()
}

// HandleSignal upgrades an authenticated request and starts the pumps. The
// auth middleware has already rejected requests without a user.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	uid, ok := c.Get(UserKey)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	conn := &WsSignalConn{
		conn:   ws,
		send:   make(chan core.Frame, ctl.opts.SendBuffer),
		cancel: cancel,
	}
	sess := ctl.Orch.OnConnect(uid.(domain.UserID), conn)
	log.Info().Str("module", "signal").Str("conn", string(sess.ConnID)).Str("uid", string(sess.UserID)).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sess, conn)
}
