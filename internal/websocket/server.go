package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/johndosdos/duochat/internal/model"
)

// Serve runs one accepted connection until it closes. It registers the
// client, starts its writer and blocks in the read loop.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) error {
	c := NewClient(conn, h)
	if h.opts.MessageRate > 0 {
		c.SetMessageLimiter(h.opts.MessageRate, time.Minute, h.opts.MessageBurst)
	}

	if err := h.register(ctx, c); err != nil {
		conn.Close(websocket.StatusTryAgainLater, "server unavailable")
		return err
	}
	h.log.InfoContext(ctx, "client connected", "session_id", c.ID)

	// We block on c.ReadMessage() because the request context will be
	// canceled as soon as we return from the handler.
	go c.WriteMessage(ctx)
	c.ReadMessage(ctx)

	h.log.InfoContext(ctx, "client disconnected", "session_id", c.ID)
	return nil
}

// ReadMessage reads the incoming data from the websocket stream.
func (c *Client) ReadMessage(ctx context.Context) {
	defer func() {
		c.Hub.unregister(c)
		c.conn.CloseNow()
	}()

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				c.log.WarnContext(ctx, "read failed", "error", err, "session_id", c.ID)
			}
			return
		}

		// The protocol is JSON text frames only.
		if msgType != websocket.MessageText {
			continue
		}

		if c.messageLim != nil && !c.messageLim.Allow() {
			c.enqueue(model.ErrorEvent("You are sending messages too fast."))
			continue
		}

		var in model.InboundEvent
		if err := json.Unmarshal(p, &in); err != nil {
			c.log.DebugContext(ctx, "failed to process payload from client",
				"error", err,
				"session_id", c.ID)
			c.enqueue(model.ErrorEvent("Malformed event."))
			continue
		}

		c.Hub.handle(ctx, c, in)
	}
}

func decodePayload(in model.InboundEvent, dst any) error {
	if len(in.Payload) == 0 || string(in.Payload) == "null" {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(in.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", in.Type, err)
	}
	return nil
}
