package app

import (
	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/protocol"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Policy decides what happens to a recipient whose outbox is full.
type Policy interface {
	OnBackPressure(sid core.SessionID, t protocol.Type) BackpressureAction
}

// SimplePolicy drops screen frames for slow viewers (the next frame supersedes
// them) and kicks the viewer for anything else, since a silently lost chat or
// roster update would leave its client out of sync.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ core.SessionID, t protocol.Type) BackpressureAction {
	if t == protocol.TypeScreenBroadcast {
		return DropFrame
	}
	return KickMember
}
