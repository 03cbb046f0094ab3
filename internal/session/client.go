package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jackzampolin/shelfscan/internal/types"
)

// WebSocket timeout constants. pingPeriod must be shorter than pongWait.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer. Clients only send small
	// subscribe messages.
	maxMessageSize = 4 * 1024

	// Outbound buffer; a full buffer marks the session stale rather than
	// blocking the notifier.
	sendBufferSize = 16
)

// SubscribeFunc is invoked when the client declares which job it waits on.
type SubscribeFunc func(ctx context.Context, sessionID, jobID string) error

// Client is one WebSocket connection, owned by its read/write pumps.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	onSubscribe SubscribeFunc
	logger      *slog.Logger
}

// NewClient wraps an upgraded connection. The caller must invoke Run.
func NewClient(hub *Hub, conn *websocket.Conn, onSubscribe SubscribeFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Client{
		id:          id,
		conn:        conn,
		hub:         hub,
		send:        make(chan []byte, sendBufferSize),
		onSubscribe: onSubscribe,
		logger:      logger.With("session_id", id),
	}
}

// ID returns the session-local identifier.
func (c *Client) ID() string { return c.id }

// Send queues a payload for the write pump. A closed or saturated session
// reports an error so the caller can treat it as stale.
func (c *Client) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// Run registers the client and blocks until the connection closes.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer func() {
		c.hub.Unregister(c.id)
		c.conn.Close()
	}()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump consumes client messages. The only meaningful inbound message is
// subscribe; everything else is ignored.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("session closed unexpectedly", "error", err)
			}
			return
		}

		var msg types.SubscribeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Warn("unparseable client message")
			continue
		}
		if msg.Action != "subscribe" || msg.JobID == "" {
			continue
		}

		if err := c.onSubscribe(ctx, c.id, msg.JobID); err != nil {
			c.logger.Warn("subscribe failed", "job_id", msg.JobID, "error", err)
			c.sendError(fmt.Sprintf("subscribe failed for job %s", msg.JobID))
			continue
		}
		c.logger.Info("session subscribed", "job_id", msg.JobID)
	}
}

// writePump delivers queued payloads and keeps the connection alive with
// pings.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("write failed, closing session", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(msg string) {
	payload, err := json.Marshal(map[string]string{"type": "error", "message": msg})
	if err != nil {
		return
	}
	// Best effort; a stale session drops it.
	_ = c.Send(payload)
}
