package signal

import (
	"github.com/dkeye/lanhub/internal/core"
	"github.com/rs/zerolog"
)

// handleLeave ends the session on request. The connection closes right after,
// and teardown runs from the connection loop like any other disconnect.
func (ctl *SignalController) handleLeave(sid core.SessionID, logger *zerolog.Logger) {
	logger.Info().Msg("leave")
	ctl.Orch.Disconnect(sid)
}
