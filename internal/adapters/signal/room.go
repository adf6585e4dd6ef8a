package signal

import (
	"context"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleInvite(ctx context.Context, sess *core.Session, conn *WsSignalConn, env core.Envelope) {
	p, ok := decode[core.CallInviteRequest](ctl, conn, env)
	if !ok {
		return
	}
	if ctl.invites != nil && !ctl.invites.Allow(sess.UserID) {
		log.Warn().Str("module", "signal").Str("uid", string(sess.UserID)).Msg("invite rate limited")
		ctl.sendError(conn, ErrRateLimited)
		return
	}
	if _, err := ctl.Orch.Calls.Invite(ctx, sess.UserID, p.Recipient, p.Kind); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("uid", string(sess.UserID)).Msg("call invite")
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleJoin(sess *core.Session, conn *WsSignalConn, env core.Envelope) {
	p, ok := decode[core.JoinRoomRequest](ctl, conn, env)
	if !ok {
		return
	}
	if err := ctl.Orch.Calls.Join(sess, p.RoomID, p.PeerID, p.Ready); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleLeave(sess *core.Session, conn *WsSignalConn, env core.Envelope) {
	p, ok := decode[core.RoomRequest](ctl, conn, env)
	if !ok {
		return
	}
	if err := ctl.Orch.Calls.Leave(sess.ConnID, p.RoomID); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleToggle(sess *core.Session, conn *WsSignalConn, env core.Envelope) {
	p, ok := decode[core.ToggleMediaRequest](ctl, conn, env)
	if !ok {
		return
	}
	if err := ctl.Orch.Calls.Toggle(sess.ConnID, p.RoomID, p.Media, p.State); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleEndCall(sess *core.Session, conn *WsSignalConn, env core.Envelope) {
	p, ok := decode[core.RoomRequest](ctl, conn, env)
	if !ok {
		return
	}
	if err := ctl.Orch.Calls.End(sess.ConnID, p.RoomID); err != nil {
		ctl.sendError(conn, err)
	}
}
