// Package signal serves the control channel: one reliable connection per
// session, over raw TCP or a WebSocket gateway.
package signal

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/lanhub/internal/app/orch"
	"github.com/dkeye/lanhub/internal/config"
	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/metrics"
	"github.com/sourcegraph/conc"
)

type SignalController struct {
	Orch    *orch.Orchestrator
	Limiter *ChatRateLimiter
	Metrics *metrics.Metrics

	SendQueue    int
	MaxFrameSize int
	WriteTimeout time.Duration
	JoinTimeout  time.Duration

	conns conc.WaitGroup
}

func NewSignalController(o *orch.Orchestrator, cfg *config.Config, m *metrics.Metrics) *SignalController {
	return &SignalController{
		Orch:         o,
		Limiter:      NewChatRateLimiter(cfg.ChatRateLimit, cfg.ChatRateInterval),
		Metrics:      m,
		SendQueue:    cfg.SendQueue,
		MaxFrameSize: cfg.MaxFrameSize,
		WriteTimeout: cfg.WriteTimeout,
		JoinTimeout:  cfg.JoinTimeout,
	}
}

// signalConn is the outbox of one connection. Broadcasters only ever TrySend;
// the connection's own goroutine may block in Send.
type signalConn struct {
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*signalConn)(nil)

func newSignalConn(size int) *signalConn {
	if size <= 0 {
		size = 1
	}
	return &signalConn{send: make(chan core.Frame, size)}
}

func (c *signalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *signalConn) Send(ctx context.Context, f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting frames. Frames already queued are still delivered.
func (c *signalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
