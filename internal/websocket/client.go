package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	ws "github.com/coder/websocket"

	syncpkg "github.com/dukerupert/mizan/internal/sync"
)

const pingInterval = 30 * time.Second

// Client is one WebSocket connection paired with its scoped sync manager.
// The manager follows the viewer's role on its own, so a role change
// re-scopes this stream without reconnecting.
type Client struct {
	hub     *Hub
	conn    *ws.Conn
	manager *syncpkg.Manager
	logger  *slog.Logger
}

func NewClient(hub *Hub, conn *ws.Conn, manager *syncpkg.Manager, logger *slog.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		manager: manager,
		logger:  logger,
	}
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection closes, then releases the manager's live
// queries.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)
	defer c.manager.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx, cancel)
	c.readPump(ctx)
}

// readPump reads and discards incoming frames. Clients do not mutate over
// the socket; writes go through the HTTP API. A read error means the
// connection closed.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump sends the initial snapshot, then one frame per manager update,
// with periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	if err := c.write(ctx, Message{Type: "snapshot", Snapshot: c.manager.Snapshot()}); err != nil {
		return
	}

	for {
		select {
		case u := <-c.manager.Updates():
			msg := Message{Type: "update", Collection: u.Collection, Snapshot: u.Snapshot}
			if err := c.write(ctx, msg); err != nil {
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

func (c *Client) write(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal frame", "error", err)
		return err
	}
	return c.conn.Write(ctx, ws.MessageText, data)
}
