package relay

import (
	"context"
	"errors"
	"net"

	"github.com/dkeye/lanhub/internal/app"
	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Manager owns one Relay per stream kind.
type Manager struct {
	relays [core.StreamKinds]*Relay
}

// ListenAll opens the video and audio relays. Nothing stays open on error.
func ListenAll(videoAddr, audioAddr string, reg *app.Registry, m *metrics.Metrics, maxSize int) (*Manager, error) {
	mgr := &Manager{}
	addrs := [core.StreamKinds]string{core.StreamVideo: videoAddr, core.StreamAudio: audioAddr}
	for kind, addr := range addrs {
		r, err := Listen(core.StreamKind(kind), addr, reg, m, maxSize)
		if err != nil {
			_ = mgr.Close()
			return nil, err
		}
		mgr.relays[kind] = r
	}
	return mgr, nil
}

func (m *Manager) Relay(kind core.StreamKind) *Relay {
	if !kind.Valid() {
		return nil
	}
	return m.relays[kind]
}

// Run serves every relay until ctx is done, then closes the sockets.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range m.relays {
		if r == nil {
			continue
		}
		g.Go(func() error { return r.Run(ctx) })
	}
	err := g.Wait()
	return errors.Join(err, m.Close())
}

func (m *Manager) Close() error {
	var errs []error
	for _, r := range m.relays {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
