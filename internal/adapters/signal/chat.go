package signal

import (
	"context"

	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/protocol"
	"github.com/rs/zerolog/log"
)

const reasonRateLimited = "rate limited"

func (ctl *SignalController) handleChat(ctx context.Context, sid core.SessionID, m *protocol.Chat) {
	if !ctl.Limiter.Allow(sid) {
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("chat rate limited")
		ctl.Orch.ReplyError(ctx, sid, reasonRateLimited)
		return
	}
	ctl.Orch.Chat(ctx, sid, m.Body)
}

func (ctl *SignalController) handlePrivateChat(ctx context.Context, sid core.SessionID, m *protocol.PrivateChat) {
	if !ctl.Limiter.Allow(sid) {
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("private chat rate limited")
		ctl.Orch.ReplyError(ctx, sid, reasonRateLimited)
		return
	}
	ctl.Orch.PrivateChat(ctx, sid, m.To, m.Body)
}
