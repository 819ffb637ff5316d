// Package testutil holds fakes and helpers shared by package tests.
package testutil

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/johndosdos/duochat/internal/model"
)

func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Blobs records delete requests and accepts any ref under /uploads/.
type Blobs struct {
	mu        sync.Mutex
	deleted   []string
	DeleteErr error
}

func (b *Blobs) Valid(ref string) bool {
	return strings.HasPrefix(ref, "/uploads/") && len(ref) > len("/uploads/")
}

func (b *Blobs) Delete(ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, ref)
	return b.DeleteErr
}

func (b *Blobs) Deleted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

var ErrDiskFull = errors.New("disk full")

// Persister keeps every saved snapshot in memory.
type Persister struct {
	mu    sync.Mutex
	saves []model.State
	Err   error
}

func (p *Persister) Save(state model.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, state.Clone())
	return p.Err
}

func (p *Persister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

// Last returns the most recent snapshot, or nil if nothing was saved.
func (p *Persister) Last() model.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saves) == 0 {
		return nil
	}
	return p.saves[len(p.saves)-1]
}

// Secret accepts exactly one value.
type Secret string

func (s Secret) Check(candidate string) bool {
	return s != "" && string(s) == candidate
}

// Events records published events in order.
type Events struct {
	mu     sync.Mutex
	events []model.Event
}

func (e *Events) Publish(evt model.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *Events) All() []model.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Event(nil), e.events...)
}
