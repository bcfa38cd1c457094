package internal

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxMsgSize    = 8192
	sendQueueSize = 256
)

// wsClient wraps a single websocket connection and its buffered send queue.
// It implements Sender for the dispatcher.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	closed atomic.Bool
}

func newWSClient(id string, conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// Send queues one frame without blocking. A full queue or a closing client
// drops the frame; this relay is best-effort at-most-once.
func (c *wsClient) Send(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// ServeWS upgrades the request and attaches the connection to the
// dispatcher. The client declares its room and name through a join event, not
// through the URL.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := newWSClient(uuid.NewString(), conn)
	s.dispatcher.Connect(client.id, client)
	s.log.Info("connection opened", "conn", client.id, "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump(s)
}

func (c *wsClient) readPump(s *Server) {
	defer func() {
		// Disconnect waits out in-flight broadcasts, so closing the send
		// queue afterwards is safe.
		s.dispatcher.Disconnect(c.id)
		s.limiter.Forget(c.id)
		c.closed.Store(true)
		close(c.send)
		_ = c.conn.Close()
		s.log.Info("connection closed", "conn", c.id)
	}()
	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			// normal close or read error, the deferred cleanup runs.
			break
		}
		if !s.limiter.Allow(c.id) {
			s.metrics.IncThrottled()
			c.notifyThrottled(s.log)
			continue
		}
		s.dispatcher.Dispatch(context.Background(), c.id, payload)
	}
}

func (c *wsClient) notifyThrottled(log *slog.Logger) {
	payload, err := encodeEvent(EventNotification, "You're sending events too quickly. Please wait a moment and try again.")
	if err != nil {
		log.Error("encode throttle notice", "err", err)
		return
	}
	c.Send(payload)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
