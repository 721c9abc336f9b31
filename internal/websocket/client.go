package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	readLimit      = 4096
)

// watchRequest is the only message clients send. AssignedTo narrows the
// stream to chores that user holds or just handed off; 0 means every chore.
type watchRequest struct {
	AssignedTo int64 `json:"assigned_to"`
}

// Client is one connected dashboard or device.
type Client struct {
	hub   *Hub
	conn  *ws.Conn
	send  chan []byte
	watch atomic.Int64
}

// NewClient creates a Client for conn. A positive assignedTo starts it
// watching that user's chores only.
func NewClient(hub *Hub, conn *ws.Conn, assignedTo int64) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	c.watch.Store(assignedTo)
	return c
}

func (c *Client) wants(msg Message) bool {
	userID := c.watch.Load()
	return userID <= 0 || msg.involves(userID)
}

// Run registers the client and serves it until the connection closes.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.conn.SetReadLimit(readLimit)

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump applies watch requests until the connection fails. Text that is
// not a watch request is ignored.
func (c *Client) readPump(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != ws.MessageText {
			continue
		}
		var req watchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		c.watch.Store(req.AssignedTo)
	}
}

// writePump drains the send channel and pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
