package signal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/protocol"
	"github.com/rs/zerolog/log"
)

type tcpFrameConn struct {
	net.Conn
	r       *bufio.Reader
	maxSize int
}

func newTCPFrameConn(c net.Conn, maxSize int) *tcpFrameConn {
	return &tcpFrameConn{Conn: c, r: bufio.NewReaderSize(c, 64<<10), maxSize: maxSize}
}

func (c *tcpFrameConn) ReadMessage() (protocol.Message, error) {
	return protocol.ReadFrame(c.r, c.maxSize)
}

func (c *tcpFrameConn) WriteFrame(f core.Frame) error {
	_, err := c.Conn.Write(f)
	return err
}

// Serve accepts control connections on ln until ctx is done, then waits for
// every connection to finish its teardown.
func (ctl *SignalController) Serve(ctx context.Context, ln net.Listener) error {
	log.Info().Str("module", "signal").Str("addr", ln.Addr().String()).Msg("control channel listening")
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				ctl.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				log.Warn().Err(err).Str("module", "signal").Dur("retry_in", backoff).Msg("accept")
				time.Sleep(backoff)
				continue
			}
			ctl.Wait()
			return fmt.Errorf("accept control connection: %w", err)
		}
		backoff = 0
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		ctl.conns.Go(func() { ctl.serve(ctx, newTCPFrameConn(conn, ctl.MaxFrameSize)) })
	}
}

// Wait blocks until every connection goroutine has returned. A panic in one
// connection is logged here instead of taking the process down.
func (ctl *SignalController) Wait() {
	if r := ctl.conns.WaitAndRecover(); r != nil {
		log.Error().Str("module", "signal").Str("panic", fmt.Sprint(r.Value)).Str("stack", string(r.Stack)).Msg("connection goroutine panicked")
	}
}
