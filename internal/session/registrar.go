// Package session hands every new connection an identity and the history it
// should see first.
package session

import (
	"github.com/google/uuid"

	"github.com/johndosdos/duochat/internal/model"
)

// History is anything that can produce a copy of the current channel state.
type History interface {
	Snapshot() model.State
}

type Registrar struct {
	history History
}

func NewRegistrar(history History) *Registrar {
	return &Registrar{history: history}
}

// OnConnect returns a fresh session id and the current history. Session ids
// live only as long as the connection and are never persisted.
func (r *Registrar) OnConnect() (string, model.State) {
	return uuid.NewString(), r.history.Snapshot()
}
