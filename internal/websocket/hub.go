package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/johndosdos/duochat/internal/chat"
	"github.com/johndosdos/duochat/internal/model"
)

// ChatService is the channel state the hub relays for. It announces accepted
// changes through Publish itself, so the hub only reports rejections.
type ChatService interface {
	SubmitMessage(authorID string, in model.SubmitPayload) (model.Message, error)
	Clear(secret, target string) ([]string, error)
}

// Registrar issues the identity and history a new connection starts with.
type Registrar interface {
	OnConnect() (string, model.State)
}

type Registration struct {
	Client *Client
	Done   chan struct{}
}

type Options struct {
	// Events per minute a single connection may send, and the burst allowed
	// on top of that.
	MessageRate  int
	MessageBurst int
	Log          *slog.Logger
}

// Hub contains functions needed for the app state management. Only Run
// touches clients.
type Hub struct {
	chat       ChatService
	registrar  Registrar
	opts       Options
	log        *slog.Logger
	clients    map[string]*Client
	connected  atomic.Int64
	Register   chan Registration
	Unregister chan *Client
	broadcast  chan model.Event
	done       chan struct{}
}

// NewHub returns a new instance of Hub.
func NewHub(svc ChatService, registrar Registrar, opts Options) *Hub {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Hub{
		chat:       svc,
		registrar:  registrar,
		opts:       opts,
		log:        opts.Log,
		clients:    make(map[string]*Client),
		Register:   make(chan Registration),
		Unregister: make(chan *Client),
		broadcast:  make(chan model.Event, 1024),
		done:       make(chan struct{}),
	}
}

// Run manages incoming and outgoing hub traffic until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case reg := <-h.Register:
			// Identity and history are queued before the client can see
			// any broadcast.
			client := reg.Client
			id, history := h.registrar.OnConnect()
			client.ID = id
			client.enqueue(model.IdentityEvent(id))
			client.enqueue(model.HistoryEvent(history))
			h.clients[id] = client
			h.connected.Store(int64(len(h.clients)))
			close(reg.Done)

		case client := <-h.Unregister:
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.MessageCh)
				h.connected.Store(int64(len(h.clients)))
			}

		case evt := <-h.broadcast:
			for _, client := range h.clients {
				if !client.enqueue(evt) {
					h.log.Warn("skipping event - channel full or client slow",
						"session_id", client.ID,
						"type", evt.Type)
				}
			}

		case <-ctx.Done():
			h.log.Info("hub stopped", "reason", ctx.Err())
			return
		}
	}
}

// Publish queues evt for every connected client. Delivery is best-effort:
// the event is dropped if the hub is backed up or stopped.
func (h *Hub) Publish(evt model.Event) {
	select {
	case h.broadcast <- evt:
	default:
		h.log.Warn("dropping broadcast - hub backlog full", "type", evt.Type)
	}
}

// Connected returns the number of registered clients.
func (h *Hub) Connected() int {
	return int(h.connected.Load())
}

var ErrHubStopped = errors.New("internal/websocket: hub stopped")

func (h *Hub) register(ctx context.Context, c *Client) error {
	reg := Registration{Client: c, Done: make(chan struct{})}

	select {
	case h.Register <- reg:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Wait for registration to complete.
	<-reg.Done
	return nil
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// handle dispatches one event read from c.
func (h *Hub) handle(ctx context.Context, c *Client, in model.InboundEvent) {
	switch in.Type {
	case model.EventMessage:
		var p model.SubmitPayload
		if err := decodePayload(in, &p); err != nil {
			c.enqueue(model.ErrorEvent("Malformed message."))
			return
		}

		if _, err := h.chat.SubmitMessage(c.ID, p); err != nil {
			h.reject(ctx, c, in.Type, err)
		}

	case model.EventClear:
		var p model.ClearPayload
		if err := decodePayload(in, &p); err != nil {
			c.enqueue(model.ErrorEvent("Malformed clear request."))
			return
		}

		cleared, err := h.chat.Clear(p.Secret, p.Channel)
		if err != nil {
			h.reject(ctx, c, in.Type, err)
			return
		}

		h.log.InfoContext(ctx, "channels cleared",
			"session_id", c.ID,
			"channels", cleared)

	default:
		c.enqueue(model.ErrorEvent("Unknown event type."))
	}
}

func (h *Hub) reject(ctx context.Context, c *Client, typ model.EventType, err error) {
	switch {
	case errors.Is(err, chat.ErrUnauthorized):
		h.log.WarnContext(ctx, "rejected clear request: bad admin secret",
			"session_id", c.ID)
		c.enqueue(model.ErrorEvent("Invalid admin secret."))

	case chat.IsValidation(err):
		h.log.DebugContext(ctx, "rejected event",
			"session_id", c.ID,
			"type", typ,
			"error", err)
		c.enqueue(model.ErrorEvent(err.Error()))

	default:
		h.log.ErrorContext(ctx, "failed to handle event",
			"session_id", c.ID,
			"type", typ,
			"error", err)
		c.enqueue(model.ErrorEvent("Something went wrong."))
	}
}
