package signal

import (
	"context"

	"github.com/dkeye/lanhub/internal/core"
)

func (ctl *SignalController) handlePing(ctx context.Context, sid core.SessionID) {
	ctl.Orch.Ping(ctx, sid)
}
