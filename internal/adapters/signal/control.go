package signal

import "github.com/dkeye/Hamlet/internal/core"

// handlePing answers the app-level keepalive some browsers use when control
// frames are hidden from scripts.
func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.send(conn, core.EventPong, nil)
}
