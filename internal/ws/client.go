package ws

import (
	"context"
	"errors"
	"time"

	"dispatch-realtime/internal/models"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max message size
	maxMessageSize = 512 * 1024 // 512 KB

	sendBuffer = 256
)

var ErrSendBufferFull = errors.New("socket send buffer full")

// connection is one live socket. It is discarded when the socket drops; the
// Manager dials a fresh one.
type connection struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

func newConnection(conn *websocket.Conn, logger *zap.Logger) *connection {
	return &connection{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger,
	}
}

func (c *connection) enqueue(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// serve runs the pumps until the socket fails or ctx is cancelled.
func (c *connection) serve(ctx context.Context, dispatch func(models.NotificationEvent)) {
	stop := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			c.conn.Close()
		case <-stop:
		}
	}()

	go func() {
		defer close(writerDone)
		c.writePump(stop)
	}()

	c.readPump(dispatch)

	close(stop)
	c.conn.Close()
	<-writerDone
}

// readPump pumps frames from the socket to the handlers.
func (c *connection) readPump(dispatch func(models.NotificationEvent)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("[CLIENT] Unexpected close", zap.Error(err))
			}
			return
		}

		c.handleServerMessage(message, dispatch)
	}
}

// writePump pumps queued frames and keepalive pings to the socket.
func (c *connection) writePump(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("[CLIENT] Failed to write frame", zap.Error(err))
				c.conn.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error("[CLIENT] Failed to send ping", zap.Error(err))
				c.conn.Close()
				return
			}
		}
	}
}

func (c *connection) handleServerMessage(message []byte, dispatch func(models.NotificationEvent)) {
	var frame models.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.logger.Error("[CLIENT] Error unmarshaling frame", zap.Error(err))
		return
	}

	ev, err := models.ParseEvent(frame)
	if err != nil {
		c.logger.Warn("[CLIENT] Dropping malformed event", zap.String("event", frame.Event), zap.Error(err))
		return
	}
	dispatch(ev)
}
