package model

import "encoding/json"

// EventType names a websocket event. Inbound and outbound events share the
// "message" and "clear" names with the payloads described below.
type EventType string

const (
	EventIdentity EventType = "identity" // S->C, payload: session id string
	EventHistory  EventType = "history"  // S->C, payload: State
	EventMessage  EventType = "message"  // C->S SubmitPayload, S->C MessagePayload
	EventClear    EventType = "clear"    // C->S ClearPayload
	EventCleared  EventType = "cleared"  // S->C ClearedPayload
	EventError    EventType = "error"    // S->C ErrorPayload
)

// Event is the envelope written to clients.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// InboundEvent is the envelope read from clients. Payload is decoded once the
// type is known.
type InboundEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type SubmitPayload struct {
	Channel     string `json:"channel"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
	ImageRef    string `json:"imageRef,omitempty"`
}

type ClearPayload struct {
	Channel string `json:"channel,omitempty"`
	Secret  string `json:"secret"`
}

type MessagePayload struct {
	Channel string  `json:"channel"`
	Message Message `json:"message"`
}

type ClearedPayload struct {
	Channel string `json:"channel"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func IdentityEvent(sessionID string) Event {
	return Event{Type: EventIdentity, Payload: sessionID}
}

func HistoryEvent(s State) Event {
	return Event{Type: EventHistory, Payload: s}
}

func MessageEvent(channel string, msg Message) Event {
	return Event{Type: EventMessage, Payload: MessagePayload{Channel: channel, Message: msg}}
}

func ClearedEvent(channel string) Event {
	return Event{Type: EventCleared, Payload: ClearedPayload{Channel: channel}}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Message: message}}
}
