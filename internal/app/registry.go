package app

import (
	"cmp"
	"context"
	"net"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	seq       uint64
	User      *domain.User
	Conn      core.SignalConnection
	Cancel    context.CancelFunc
	endpoints [core.StreamKinds]net.Addr
}

// SessionSnap is a copy of a registry entry taken under the lock.
type SessionSnap struct {
	SID      core.SessionID
	Username string
	User     domain.User
	Conn     core.SignalConnection
}

// EndpointSnap is one relay destination.
type EndpointSnap struct {
	SID  core.SessionID
	Addr net.Addr
}

// Registry is the authoritative set of joined sessions.
type Registry struct {
	mu       sync.RWMutex
	seq      uint64
	sessions map[core.SessionID]*sessionEntry
	newID    func() string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		newID:    uuid.NewString,
	}
}

// Register adds a session and returns its fresh id. onRegistered, if set, runs
// before any other goroutine can observe the new session, with the roster that
// includes it; the joiner's first reply is queued there.
func (r *Registry) Register(
	user *domain.User,
	conn core.SignalConnection,
	cancel context.CancelFunc,
	onRegistered func(sid core.SessionID, roster []SessionSnap),
) core.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	sid := core.SessionID(r.newID())
	for r.sessions[sid] != nil {
		sid = core.SessionID(r.newID())
	}
	r.seq++
	r.sessions[sid] = &sessionEntry{
		seq:    r.seq,
		User:   user,
		Conn:   conn,
		Cancel: cancel,
	}
	if onRegistered != nil {
		onRegistered(sid, r.snapshotLocked(""))
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("username", user.Username).Msg("registered session")
	return sid
}

// Unregister removes sid. ok is false when sid was already gone, so concurrent
// teardown paths can tell which one owns the departure.
func (r *Registry) Unregister(sid core.SessionID) (user domain.User, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return domain.User{}, false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unregistered session")
	return *e.User, true
}

func (r *Registry) Lookup(sid core.SessionID) (SessionSnap, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return SessionSnap{}, false
	}
	return snapOf(sid, e), true
}

// All returns every session in join order.
func (r *Registry) All() []SessionSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked("")
}

// Others returns every session except sid, in join order.
func (r *Registry) Others(sid core.SessionID) []SessionSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(sid)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// FindByUsername resolves a display name case-insensitively. With duplicate
// names the earliest joiner wins.
func (r *Registry) FindByUsername(name string) (core.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		best    core.SessionID
		bestSeq uint64
	)
	for sid, e := range r.sessions {
		if !strings.EqualFold(e.User.Username, name) {
			continue
		}
		if best == "" || e.seq < bestSeq {
			best, bestSeq = sid, e.seq
		}
	}
	return best, best != ""
}

// UpdateEndpoint records where datagrams of kind from sid come from.
// Last write wins. Returns false for unknown sessions.
func (r *Registry) UpdateEndpoint(sid core.SessionID, kind core.StreamKind, addr net.Addr) bool {
	if !kind.Valid() {
		return false
	}
	r.mu.RLock()
	e, ok := r.sessions[sid]
	if ok {
		cur := e.endpoints[kind]
		if cur != nil && cur.String() == addr.String() {
			r.mu.RUnlock()
			return true
		}
	}
	r.mu.RUnlock()
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok = r.sessions[sid]
	if !ok {
		return false
	}
	e.endpoints[kind] = addr
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Str("stream", kind.String()).Str("addr", addr.String()).Msg("learned endpoint")
	return true
}

// Endpoints lists the known relay destinations for kind, skipping exclude and
// sessions that have not sent on this stream yet.
func (r *Registry) Endpoints(kind core.StreamKind, exclude core.SessionID) []EndpointSnap {
	if !kind.Valid() {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EndpointSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if sid == exclude || e.endpoints[kind] == nil {
			continue
		}
		out = append(out, EndpointSnap{SID: sid, Addr: e.endpoints[kind]})
	}
	return out
}

// Cancel stops sid's connection; its own loop performs the teardown.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func (r *Registry) snapshotLocked(exclude core.SessionID) []SessionSnap {
	type seqSnap struct {
		seq  uint64
		snap SessionSnap
	}
	tmp := make([]seqSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if sid == exclude {
			continue
		}
		tmp = append(tmp, seqSnap{seq: e.seq, snap: snapOf(sid, e)})
	}
	slices.SortFunc(tmp, func(a, b seqSnap) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]SessionSnap, len(tmp))
	for i := range tmp {
		out[i] = tmp[i].snap
	}
	return out
}

func snapOf(sid core.SessionID, e *sessionEntry) SessionSnap {
	return SessionSnap{
		SID:      sid,
		Username: e.User.Username,
		User:     *e.User,
		Conn:     e.Conn,
	}
}

// Members converts a snapshot to the API view.
func Members(snaps []SessionSnap) []core.MemberDTO {
	out := make([]core.MemberDTO, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, core.MemberDTO{ID: s.SID, Username: s.Username, JoinedAt: s.User.JoinedAt})
	}
	return out
}
