package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/lanhub/internal/app"
	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/metrics"
	"github.com/dkeye/lanhub/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Orchestrator applies control messages to the shared state and fans the
// results out to the affected sessions.
type Orchestrator struct {
	Registry  *app.Registry
	Presenter *app.Presenter
	Files     *app.FileStore
	History   *app.History
	Policy    app.Policy
	Metrics   *metrics.Metrics

	// MaxChatLength bounds chat bodies in bytes; 0 disables the check.
	MaxChatLength int
	Now           func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) policy() app.Policy {
	if o.Policy != nil {
		return o.Policy
	}
	return app.SimplePolicy{}
}

// broadcast encodes m once and queues it for every target without blocking.
func (o *Orchestrator) broadcast(targets []app.SessionSnap, m protocol.Message) {
	if len(targets) == 0 {
		return
	}
	b, err := protocol.Encode(m)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", m.Type().String()).Msg("encode broadcast")
		return
	}
	for _, s := range targets {
		o.deliver(s, m.Type(), core.Frame(b))
	}
}

// deliver queues frame for one recipient and applies the backpressure policy
// when its outbox is full.
func (o *Orchestrator) deliver(s app.SessionSnap, t protocol.Type, frame core.Frame) bool {
	err := s.Conn.TrySend(frame)
	if err == nil {
		o.Metrics.RecordSent(t.String())
		return true
	}
	if errors.Is(err, core.ErrClosed) {
		return false
	}

	switch o.policy().OnBackPressure(s.SID, t) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("sid", string(s.SID)).Str("type", t.String()).Msg("outbox full, kicking session")
		o.Metrics.RecordKick()
		o.Registry.Cancel(s.SID)
	case app.DropFrame, app.NoAction:
		log.Debug().Str("module", "orch").Str("sid", string(s.SID)).Str("type", t.String()).Msg("outbox full, frame dropped")
		o.Metrics.RecordDropped(t.String())
	}
	return false
}

// send queues m for a single other session.
func (o *Orchestrator) send(sid core.SessionID, m protocol.Message) bool {
	s, ok := o.Registry.Lookup(sid)
	if !ok {
		return false
	}
	b, err := protocol.Encode(m)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", m.Type().String()).Msg("encode message")
		return false
	}
	return o.deliver(s, m.Type(), core.Frame(b))
}

// reply writes m to conn, waiting for room in the outbox. Only the goroutine
// serving conn calls this, so waiting cannot stall anyone else.
func (o *Orchestrator) reply(ctx context.Context, conn core.SignalConnection, m protocol.Message) error {
	b, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, core.Frame(b)); err != nil {
		return err
	}
	o.Metrics.RecordSent(m.Type().String())
	return nil
}

func (o *Orchestrator) replyTo(ctx context.Context, sid core.SessionID, m protocol.Message) {
	s, ok := o.Registry.Lookup(sid)
	if !ok {
		return
	}
	if err := o.reply(ctx, s.Conn, m); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("type", m.Type().String()).Msg("reply not delivered")
	}
}

// ReplyError sends an Error to sid.
func (o *Orchestrator) ReplyError(ctx context.Context, sid core.SessionID, reason string) {
	o.replyTo(ctx, sid, &protocol.Error{Reason: reason})
}

func (o *Orchestrator) Ping(ctx context.Context, sid core.SessionID) {
	o.replyTo(ctx, sid, &protocol.Pong{})
}
