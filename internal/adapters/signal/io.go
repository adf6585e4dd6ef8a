package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/dkeye/Hamlet/internal/app"
	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	errBadPayload  = errors.New("bad_payload")
	errUnknownType = errors.New("unknown_type")
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(ctl.opts.WriteWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

// readPump handles frames in arrival order. Its exit is the only disconnect
// signal: a missed pong deadline or a read error ends it, and the deferred
// cleanup leaves rooms and presence.
func (ctl *SignalWSController) readPump(ctx context.Context, sess *core.Session, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(sess.ConnID)).Msg("readPump closing")
		c.Close()
		ctl.Orch.OnDisconnect(sess.ConnID)
	}()

	if ctl.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(sess.ConnID)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				logReadError(sess, err)
				return
			}
			ctl.handleSignal(ctx, sess, c, data)
		}
	}
}

func logReadError(sess *core.Session, err error) {
	ev := log.Warn()
	var ne net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		ev = log.Info()
	case errors.As(err, &ne) && ne.Timeout():
		ev = log.Info().Bool("timeout", true)
	}
	ev.Err(err).Str("module", "signal").Str("conn", string(sess.ConnID)).Msg("readPump read")
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sess *core.Session, c *WsSignalConn, data []byte) {
	env, err := core.Decode(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, errBadPayload)
		return
	}

	switch env.Type {
	case core.EventReadMessages:
		ctl.handleReadMessages(ctx, sess, c, env)
	case core.EventTyping:
		ctl.handleTyping(sess, c, env)
	case core.EventJoinRoom:
		ctl.handleJoin(sess, c, env)
	case core.EventLeaveRoom:
		ctl.handleLeave(sess, c, env)
	case core.EventCallInvite:
		ctl.handleInvite(ctx, sess, c, env)
	case core.EventToggleMedia:
		ctl.handleToggle(sess, c, env)
	case core.EventEndCall:
		ctl.handleEndCall(sess, c, env)
	case core.EventSignal:
		ctl.handleNegotiation(sess, c, env)
	case core.EventPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, errUnknownType)
	}
}

// decode unmarshals the envelope payload, answering bad_payload on failure.
func decode[T any](ctl *SignalWSController, c *WsSignalConn, env core.Envelope) (T, bool) {
	var p T
	if len(env.Data) == 0 {
		ctl.sendError(c, errBadPayload)
		return p, false
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", env.Type).Msg("bad payload")
		ctl.sendError(c, errBadPayload)
		return p, false
	}
	return p, true
}

func (ctl *SignalWSController) send(c *WsSignalConn, kind string, v any) {
	f, err := core.Encode(kind, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send encode")
		return
	}
	_ = c.TrySend(f)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, err error) {
	ctl.send(c, core.EventError, core.ErrorPayload{Error: publicError(err)})
}

// publicError hides store failures behind a generic code.
func publicError(err error) string {
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal_error"
}

var clientErrors = []error{
	errBadPayload,
	errUnknownType,
	ErrRateLimited,
	app.ErrEmptyBatch,
	app.ErrInvalidCallKind,
	app.ErrNotInRoom,
	app.ErrMissingPeer,
	app.ErrMissingRoom,
	app.ErrSelfCall,
	app.ErrNotFound,
	domain.ErrRecipientRequired,
	domain.ErrInvalidKind,
	domain.ErrInvalidMedia,
	domain.ErrInvalidMediaState,
}
