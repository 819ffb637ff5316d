package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/johndosdos/duochat/internal/model"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

type Client struct {
	ID         string
	conn       *websocket.Conn
	Hub        *Hub
	MessageCh  chan model.Event
	messageLim *rate.Limiter
	log        *slog.Logger
}

func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		conn:      conn,
		Hub:       hub,
		MessageCh: make(chan model.Event, 64),
		log:       hub.log,
	}
}

// SetMessageLimiter allows requests events per window with the given burst.
func (c *Client) SetMessageLimiter(requests int, window time.Duration, burst int) {
	c.messageLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), burst)
}

// enqueue never blocks; a full buffer means the event is lost for this client.
func (c *Client) enqueue(evt model.Event) bool {
	select {
	case c.MessageCh <- evt:
		return true
	default:
		return false
	}
}

// WriteMessage writes queued events to the outgoing websocket stream and
// keeps the connection alive with pings.
func (c *Client) WriteMessage(ctx context.Context) {
	// Proxies drop idle connections, so we ping well inside their timeouts.
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-c.MessageCh:
			// The hub closes the channel once the client is unregistered.
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, evt)
			cancel()
			if err != nil {
				c.log.WarnContext(ctx, "failed to write event",
					"error", err,
					"type", evt.Type,
					"session_id", c.ID)
				c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.log.DebugContext(ctx, "ping failed", "error", err, "session_id", c.ID)
				c.conn.CloseNow()
				return
			}

		case <-c.Hub.done:
			c.conn.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}
