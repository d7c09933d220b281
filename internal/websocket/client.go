package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client is one spectator connection for one game.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	code string
	send chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, code string) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		code: code,
		send: make(chan []byte, sendBufferSize),
	}
}

// Run registers the client, queues the initial snapshot if any, and pumps
// until the connection closes.
func (c *Client) Run(ctx context.Context, snapshot []byte) {
	// Queued before registering so no broadcast can overtake it.
	if snapshot != nil {
		c.send <- snapshot
	}
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump discards everything spectators send. It returns when the
// connection closes.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusNormalClosure, "game ended")
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
