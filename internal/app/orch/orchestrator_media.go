package orch

import (
	"context"

	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/protocol"
	"github.com/rs/zerolog/log"
)

const reasonPresenterBusy = "presenter busy"

// RequestPresent tries to make sid the presenter. The requester always gets a
// PresentResult; everyone learns about an actual change through PresenterChanged.
func (o *Orchestrator) RequestPresent(ctx context.Context, sid core.SessionID) {
	s, ok := o.Registry.Lookup(sid)
	if !ok {
		return
	}
	granted, changed, holder := o.Presenter.Request(sid)
	res := &protocol.PresentResult{Granted: granted, PresenterID: string(holder)}
	if !granted {
		res.Reason = reasonPresenterBusy
	}
	if err := o.reply(ctx, s.Conn, res); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("present result not delivered")
	}
	if changed {
		o.Metrics.RecordPresenterChange()
		o.broadcast(o.Registry.All(), &protocol.PresenterChanged{PresenterID: string(sid), Username: s.Username})
	}
}

// ReleasePresent frees the slot if sid holds it.
func (o *Orchestrator) ReleasePresent(sid core.SessionID) {
	if !o.Presenter.Release(sid) {
		return
	}
	o.Metrics.RecordPresenterChange()
	o.broadcast(o.Registry.All(), &protocol.PresenterChanged{})
}

// ScreenFrame relays data from the current presenter to everyone else.
// Frames from anyone else are dropped.
func (o *Orchestrator) ScreenFrame(sid core.SessionID, data []byte) {
	if !o.Presenter.IsHolder(sid) {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("screen frame from non-presenter dropped")
		return
	}
	o.broadcast(o.Registry.Others(sid), &protocol.ScreenBroadcast{SenderID: string(sid), Data: data})
}
