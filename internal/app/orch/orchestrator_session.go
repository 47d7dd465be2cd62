package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/lanhub/internal/app"
	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/domain"
	"github.com/dkeye/lanhub/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join validates username, registers conn and answers with the JoinAck.
// The other sessions learn about the joiner through UserJoined.
// On a validation error the client gets an Error and the caller must close.
func (o *Orchestrator) Join(
	ctx context.Context,
	conn core.SignalConnection,
	cancel context.CancelFunc,
	username string,
) (core.SessionID, error) {
	user, err := domain.NewUser(username, o.now())
	if err != nil {
		if rerr := o.reply(ctx, conn, &protocol.Error{Reason: err.Error()}); rerr != nil {
			log.Debug().Err(rerr).Str("module", "orch").Msg("join rejection not delivered")
		}
		return "", fmt.Errorf("join: %w", err)
	}

	sid := o.Registry.Register(user, conn, cancel, func(sid core.SessionID, roster []app.SessionSnap) {
		ack := o.joinAck(sid, roster)
		b, err := protocol.Encode(ack)
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("encode join ack")
			return
		}
		// The outbox is brand new, so this cannot hit backpressure.
		if err := conn.TrySend(core.Frame(b)); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("join ack not queued")
			return
		}
		o.Metrics.RecordSent(ack.Type().String())
	})

	o.broadcast(o.Registry.Others(sid), &protocol.UserJoined{SessionID: string(sid), Username: user.Username})
	o.Metrics.SessionJoined(o.Registry.Count())
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("username", user.Username).Msg("session joined")
	return sid, nil
}

func (o *Orchestrator) joinAck(sid core.SessionID, roster []app.SessionSnap) *protocol.JoinAck {
	ack := &protocol.JoinAck{
		SessionID: string(sid),
		Roster:    make([]protocol.Member, 0, len(roster)),
		Files:     []protocol.FileInfo{},
		History:   []protocol.ChatMessage{},
	}
	for _, s := range roster {
		ack.Roster = append(ack.Roster, protocol.Member{SessionID: string(s.SID), Username: s.Username})
	}
	if holder, ok := o.Presenter.Current(); ok {
		ack.PresenterID = string(holder)
	}
	if o.Files != nil {
		for _, f := range o.Files.List() {
			ack.Files = append(ack.Files, fileInfo(f))
		}
	}
	if o.History != nil {
		for _, m := range o.History.Snapshot() {
			ack.History = append(ack.History, *chatMessage(m))
		}
	}
	return ack
}

// Disconnect tears sid down. Safe to call more than once and from several
// goroutines; only the call that removes the session notifies the others.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	user, ok := o.Registry.Unregister(sid)
	if !ok {
		return
	}
	if o.Presenter.Release(sid) {
		o.Metrics.RecordPresenterChange()
		o.broadcast(o.Registry.All(), &protocol.PresenterChanged{})
	}
	o.broadcast(o.Registry.All(), &protocol.UserLeft{SessionID: string(sid), Username: user.Username})
	o.Metrics.SessionLeft(o.Registry.Count())
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("username", user.Username).Msg("session left")
}

// Kick cancels sid's connection; its loop then runs Disconnect.
func (o *Orchestrator) Kick(sid core.SessionID) bool {
	return o.Registry.Cancel(sid)
}
