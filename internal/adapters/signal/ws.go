package signal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsFrameConn carries one frame per binary message, without the length prefix.
type wsFrameConn struct {
	*websocket.Conn
	maxSize int
}

func newWSFrameConn(c *websocket.Conn, maxSize int) *wsFrameConn {
	if maxSize > 0 {
		c.SetReadLimit(int64(maxSize))
	}
	return &wsFrameConn{Conn: c, maxSize: maxSize}
}

func (c *wsFrameConn) ReadMessage() (protocol.Message, error) {
	mt, data, err := c.Conn.ReadMessage()
	if err != nil {
		if err == websocket.ErrReadLimit {
			return nil, fmt.Errorf("%w: exceeds %d bytes", protocol.ErrFrameTooLarge, c.maxSize)
		}
		return nil, err
	}
	if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: websocket message type %d", protocol.ErrMalformed, mt)
	}
	return protocol.DecodePayload(data)
}

func (c *wsFrameConn) WriteFrame(f core.Frame) error {
	return c.Conn.WriteMessage(websocket.BinaryMessage, protocol.Payload(f))
}

// HandleWS upgrades the request and runs the same session loop as the TCP server.
func (ctl *SignalController) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ctl.conns.Go(func() { ctl.serve(ctx, newWSFrameConn(ws, ctl.MaxFrameSize)) })
}
