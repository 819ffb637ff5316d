// Package model defines data structure.
package model

import (
	"time"
)

// The two rooms every client can post to.
const (
	Channel1 = "channel1"
	Channel2 = "channel2"

	// AllChannels targets every channel in a clear request.
	AllChannels = "both"
)

// ChannelNames returns the fixed channel set in display order.
func ChannelNames() []string {
	return []string{Channel1, Channel2}
}

// Message holds information about a single chat message.
//
// CreatedAt is nil for legacy records written before timestamps existed.
type Message struct {
	ID          string     `json:"id"`
	AuthorID    string     `json:"authorId"`
	DisplayName string     `json:"displayName"`
	Text        string     `json:"text"`
	ImageRef    string     `json:"imageRef,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// State maps a channel name to its messages, oldest first.
type State map[string][]Message

// NewState returns a state with an empty sequence for every name.
func NewState(names []string) State {
	s := make(State, len(names))
	for _, name := range names {
		s[name] = []Message{}
	}
	return s
}

// Clone copies every channel slice so the result can be read while the
// original keeps changing.
func (s State) Clone() State {
	out := make(State, len(s))
	for name, msgs := range s {
		cp := make([]Message, len(msgs))
		copy(cp, msgs)
		out[name] = cp
	}
	return out
}
