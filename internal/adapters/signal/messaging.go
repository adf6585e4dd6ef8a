package signal

import (
	"context"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleReadMessages(ctx context.Context, sess *core.Session, conn *WsSignalConn, env core.Envelope) {
	p, ok := decode[core.ReadMessagesRequest](ctl, conn, env)
	if !ok {
		return
	}
	if _, err := ctl.Orch.Messaging.MarkRead(ctx, sess.UserID, p.IDs); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("uid", string(sess.UserID)).Msg("read messages")
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleTyping(sess *core.Session, conn *WsSignalConn, env core.Envelope) {
	p, ok := decode[core.TypingRequest](ctl, conn, env)
	if !ok {
		return
	}
	ctl.Orch.Messaging.Typing(sess.UserID, p.Recipient, p.Preview)
}
