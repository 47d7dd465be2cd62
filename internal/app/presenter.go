package app

import (
	"sync"

	"github.com/dkeye/lanhub/internal/core"
	"github.com/rs/zerolog/log"
)

// Presenter guards the single screen-share slot.
type Presenter struct {
	mu     sync.Mutex
	holder core.SessionID
}

func NewPresenter() *Presenter { return &Presenter{} }

// Request takes the slot for sid if it is free. granted is true also when sid
// already holds it; changed reports whether the state actually moved.
// holder is the presenter after the call.
func (p *Presenter) Request(sid core.SessionID) (granted, changed bool, holder core.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.holder {
	case "":
		p.holder = sid
		log.Info().Str("module", "app.presenter").Str("sid", string(sid)).Msg("presenter granted")
		return true, true, sid
	case sid:
		return true, false, sid
	default:
		return false, false, p.holder
	}
}

// Release frees the slot if sid holds it. Releases from anyone else are ignored.
func (p *Presenter) Release(sid core.SessionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sid == "" || p.holder != sid {
		return false
	}
	p.holder = ""
	log.Info().Str("module", "app.presenter").Str("sid", string(sid)).Msg("presenter released")
	return true
}

func (p *Presenter) Current() (core.SessionID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holder, p.holder != ""
}

func (p *Presenter) IsHolder(sid core.SessionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sid != "" && p.holder == sid
}
