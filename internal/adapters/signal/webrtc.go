package signal

import (
	"github.com/dkeye/Hamlet/internal/core"
	"github.com/rs/zerolog/log"
)

// handleNegotiation forwards offers, answers and candidates between peers of
// one room. The payload stays opaque to the server.
func (ctl *SignalWSController) handleNegotiation(sess *core.Session, conn *WsSignalConn, env core.Envelope) {
	p, ok := decode[core.SignalRequest](ctl, conn, env)
	if !ok {
		return
	}
	if err := ctl.Orch.Calls.Relay(sess.ConnID, p.RoomID, p.To, p.Data); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("room", string(p.RoomID)).Msg("negotiation relay")
		ctl.sendError(conn, err)
	}
}
