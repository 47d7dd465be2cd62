// Package relay fans media datagrams out to every other session on the same stream.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dkeye/lanhub/internal/app"
	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/metrics"
	"github.com/dkeye/lanhub/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// readPoll bounds how long Run blocks before it rechecks ctx.
const readPoll = 500 * time.Millisecond

// Relay serves one UDP stream kind.
type Relay struct {
	kind    core.StreamKind
	conn    net.PacketConn
	reg     *app.Registry
	metrics *metrics.Metrics
	maxSize int
	logger  zerolog.Logger
}

func NewRelay(kind core.StreamKind, conn net.PacketConn, reg *app.Registry, m *metrics.Metrics, maxSize int) *Relay {
	if maxSize <= 0 || maxSize > 65507 {
		maxSize = 65507
	}
	return &Relay{
		kind:    kind,
		conn:    conn,
		reg:     reg,
		metrics: m,
		maxSize: maxSize,
		logger:  log.With().Str("module", "relay").Str("stream", kind.String()).Logger(),
	}
}

// Listen opens a UDP socket on addr and wraps it in a Relay.
func Listen(kind core.StreamKind, addr string, reg *app.Registry, m *metrics.Metrics, maxSize int) (*Relay, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s relay on %s: %w", kind, addr, err)
	}
	return NewRelay(kind, conn, reg, m, maxSize), nil
}

func (r *Relay) Kind() core.StreamKind { return r.kind }

func (r *Relay) Addr() net.Addr { return r.conn.LocalAddr() }

func (r *Relay) Close() error { return r.conn.Close() }

// Run reads datagrams until ctx is done or the socket is closed.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().Str("addr", r.conn.LocalAddr().String()).Msg("relay started")
	defer r.logger.Info().Msg("relay stopped")

	// One spare byte tells an oversized datagram from one that fits exactly.
	buf := make([]byte, r.maxSize+1)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.conn.SetReadDeadline(time.Now().Add(readPoll)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%s relay: set read deadline: %w", r.kind, err)
		}

		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.logger.Error().Err(err).Msg("read datagram")
			continue
		}
		r.handle(buf[:n], addr)
	}
}

// handle forwards one datagram. data is only valid for the duration of the call.
func (r *Relay) handle(data []byte, from net.Addr) {
	stream := r.kind.String()
	r.metrics.RecordDatagram(stream)

	if len(data) > r.maxSize {
		r.logger.Debug().Int("size", len(data)).Str("from", from.String()).Msg("oversized datagram dropped")
		r.metrics.RecordDatagramDropped(stream, "oversized")
		return
	}
	dg, err := protocol.ParseDatagram(data)
	if err != nil {
		r.logger.Debug().Err(err).Str("from", from.String()).Msg("malformed datagram dropped")
		r.metrics.RecordDatagramDropped(stream, "malformed")
		return
	}
	sid := core.SessionID(dg.SenderID)
	if !r.reg.UpdateEndpoint(sid, r.kind, from) {
		r.logger.Debug().Str("sid", dg.SenderID).Str("from", from.String()).Msg("datagram from unknown session dropped")
		r.metrics.RecordDatagramDropped(stream, "unknown_sender")
		return
	}

	sent := 0
	for _, ep := range r.reg.Endpoints(r.kind, sid) {
		if _, err := r.conn.WriteTo(data, ep.Addr); err != nil {
			r.logger.Warn().Err(err).Str("sid", string(ep.SID)).Str("to", ep.Addr.String()).Msg("forward datagram")
			r.metrics.RecordDatagramDropped(stream, "write_failed")
			continue
		}
		sent++
	}
	r.metrics.RecordForwarded(stream, sent)
}
