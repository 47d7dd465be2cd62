package signal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrJoinRequired = errors.New("join required")

// FrameConn is one reliable client transport.
type FrameConn interface {
	ReadMessage() (protocol.Message, error)
	// WriteFrame writes a frame produced by protocol.Encode.
	WriteFrame(f core.Frame) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// serve runs one connection from handshake to teardown.
func (ctl *SignalController) serve(parent context.Context, fc FrameConn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	context.AfterFunc(ctx, func() { _ = fc.Close() })

	logger := log.With().Str("module", "signal").Str("remote", fc.RemoteAddr().String()).Logger()
	logger.Info().Msg("new connection")

	out := newSignalConn(ctl.SendQueue)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		ctl.writePump(ctx, cancel, fc, out, &logger)
	}()
	// Let the pump flush whatever is queued (a final Error, say) before the socket goes.
	defer func() {
		out.Close()
		select {
		case <-pumpDone:
		case <-time.After(ctl.flushWait()):
		}
		cancel()
	}()

	sid, err := ctl.awaitJoin(ctx, cancel, fc, out)
	if err != nil {
		logger.Info().Err(err).Msg("handshake failed")
		return
	}
	logger = logger.With().Str("sid", string(sid)).Logger()
	defer func() {
		ctl.Orch.Disconnect(sid)
		ctl.Limiter.Forget(sid)
	}()

	ctl.readPump(ctx, sid, fc, out, &logger)
}

func (ctl *SignalController) awaitJoin(
	ctx context.Context,
	cancel context.CancelFunc,
	fc FrameConn,
	out *signalConn,
) (core.SessionID, error) {
	if ctl.JoinTimeout > 0 {
		if err := fc.SetReadDeadline(time.Now().Add(ctl.JoinTimeout)); err != nil {
			return "", fmt.Errorf("set join deadline: %w", err)
		}
	}
	msg, err := fc.ReadMessage()
	if err != nil {
		if protocol.IsProtocolError(err) {
			ctl.sendDirect(ctx, out, &protocol.Error{Reason: err.Error()})
		}
		return "", fmt.Errorf("read join: %w", err)
	}
	ctl.Metrics.RecordReceived(msg.Type().String())

	join, ok := msg.(*protocol.Join)
	if !ok {
		ctl.sendDirect(ctx, out, &protocol.Error{Reason: ErrJoinRequired.Error()})
		return "", fmt.Errorf("%w: got %s", ErrJoinRequired, msg.Type())
	}
	sid, err := ctl.Orch.Join(ctx, out, cancel, join.Username)
	if err != nil {
		return "", err
	}
	if err := fc.SetReadDeadline(time.Time{}); err != nil {
		ctl.Orch.Disconnect(sid)
		return "", fmt.Errorf("clear join deadline: %w", err)
	}
	return sid, nil
}

func (ctl *SignalController) readPump(
	ctx context.Context,
	sid core.SessionID,
	fc FrameConn,
	out *signalConn,
	logger *zerolog.Logger,
) {
	for {
		msg, err := fc.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				logger.Info().Msg("connection canceled")
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				logger.Info().Msg("connection closed by peer")
			case protocol.IsProtocolError(err):
				logger.Warn().Err(err).Msg("protocol violation")
				ctl.sendDirect(ctx, out, &protocol.Error{Reason: err.Error()})
			default:
				logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		ctl.Metrics.RecordReceived(msg.Type().String())
		if !ctl.handleSignal(ctx, sid, out, msg, logger) {
			return
		}
	}
}

// handleSignal dispatches one client message. It returns false when the
// connection must end.
func (ctl *SignalController) handleSignal(
	ctx context.Context,
	sid core.SessionID,
	out *signalConn,
	msg protocol.Message,
	logger *zerolog.Logger,
) bool {
	switch m := msg.(type) {
	case *protocol.Join:
		logger.Warn().Msg("second join on established session")
		ctl.sendDirect(ctx, out, &protocol.Error{Reason: "already joined"})
		return false
	case *protocol.Leave:
		ctl.handleLeave(sid, logger)
		return false
	case *protocol.Chat:
		ctl.handleChat(ctx, sid, m)
	case *protocol.PrivateChat:
		ctl.handlePrivateChat(ctx, sid, m)
	case *protocol.FileUpload:
		ctl.Orch.Upload(ctx, sid, m.Name, m.Size, m.Data)
	case *protocol.FileDownloadRequest:
		ctl.Orch.Download(ctx, sid, m.FileID)
	case *protocol.PresentRequest:
		ctl.Orch.RequestPresent(ctx, sid)
	case *protocol.PresentRelease:
		ctl.Orch.ReleasePresent(sid)
	case *protocol.ScreenFrame:
		ctl.Orch.ScreenFrame(sid, m.Data)
	case *protocol.Ping:
		ctl.handlePing(ctx, sid)
	default:
		logger.Warn().Str("type", msg.Type().String()).Msg("server message sent by client")
		ctl.sendDirect(ctx, out, &protocol.Error{Reason: "unexpected message " + msg.Type().String()})
		return false
	}
	return true
}

func (ctl *SignalController) writePump(
	ctx context.Context,
	cancel context.CancelFunc,
	fc FrameConn,
	out *signalConn,
	logger *zerolog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-out.send:
			if !ok {
				return
			}
			if ctl.WriteTimeout > 0 {
				if err := fc.SetWriteDeadline(time.Now().Add(ctl.WriteTimeout)); err != nil {
					logger.Warn().Err(err).Msg("writePump set deadline")
					cancel()
					return
				}
			}
			if err := fc.WriteFrame(f); err != nil {
				if ctx.Err() == nil {
					logger.Warn().Err(err).Msg("writePump write error")
				}
				cancel()
				return
			}
		}
	}
}

func (ctl *SignalController) flushWait() time.Duration {
	if ctl.WriteTimeout > 0 {
		return ctl.WriteTimeout
	}
	return 5 * time.Second
}

// sendDirect queues m on an outbox that may not belong to a registered session yet.
func (ctl *SignalController) sendDirect(ctx context.Context, out *signalConn, m protocol.Message) {
	b, err := protocol.Encode(m)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode direct message")
		return
	}
	if err := out.Send(ctx, core.Frame(b)); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("direct message not queued")
	}
}
