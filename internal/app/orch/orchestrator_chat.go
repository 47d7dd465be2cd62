package orch

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/domain"
	"github.com/dkeye/lanhub/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Chat stamps body with the server clock and delivers it to every session,
// the sender included.
func (o *Orchestrator) Chat(ctx context.Context, sid core.SessionID, body string) {
	s, ok := o.Registry.Lookup(sid)
	if !ok {
		return
	}
	if strings.TrimSpace(body) == "" {
		return
	}
	if o.MaxChatLength > 0 && len(body) > o.MaxChatLength {
		o.ReplyError(ctx, sid, fmt.Sprintf("message too long (max %d bytes)", o.MaxChatLength))
		return
	}

	msg := domain.ChatMessage{
		SenderID:  string(sid),
		Username:  s.Username,
		Timestamp: o.now(),
		Body:      body,
	}
	if o.History != nil {
		o.History.Add(msg)
	}
	o.broadcast(o.Registry.All(), chatMessage(msg))
}

// PrivateChat delivers body to the session named by to, which is either a
// session id or a username. The sender gets an echo of what was delivered.
func (o *Orchestrator) PrivateChat(ctx context.Context, sid core.SessionID, to, body string) {
	s, ok := o.Registry.Lookup(sid)
	if !ok {
		return
	}
	if strings.TrimSpace(body) == "" {
		return
	}
	if o.MaxChatLength > 0 && len(body) > o.MaxChatLength {
		o.ReplyError(ctx, sid, fmt.Sprintf("message too long (max %d bytes)", o.MaxChatLength))
		return
	}

	target, ok := o.resolve(to)
	if !ok {
		o.ReplyError(ctx, sid, fmt.Sprintf("user %q not found", to))
		return
	}
	if target == sid {
		o.ReplyError(ctx, sid, "cannot send a private message to yourself")
		return
	}

	pm := &protocol.PrivateMessage{
		From:      string(sid),
		FromName:  s.Username,
		To:        string(target),
		Timestamp: o.now(),
		Body:      body,
	}
	if !o.send(target, pm) {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("to", string(target)).Msg("private message not delivered")
	}
	if err := o.reply(ctx, s.Conn, pm); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("private echo not delivered")
	}
}

func (o *Orchestrator) resolve(to string) (core.SessionID, bool) {
	if _, ok := o.Registry.Lookup(core.SessionID(to)); ok {
		return core.SessionID(to), true
	}
	return o.Registry.FindByUsername(strings.TrimSpace(to))
}

func chatMessage(m domain.ChatMessage) *protocol.ChatMessage {
	return &protocol.ChatMessage{
		SenderID:  m.SenderID,
		Username:  m.Username,
		Timestamp: m.Timestamp,
		Body:      m.Body,
	}
}
