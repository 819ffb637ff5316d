// Package chat owns the per-channel message history: validation, bounded
// retention, image cleanup and persistence after every change.
package chat

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/johndosdos/duochat/internal/model"
)

// Persister writes the full state after every mutation.
type Persister interface {
	Save(state model.State) error
}

// Blobs is the image store messages reference.
type Blobs interface {
	Valid(ref string) bool
	Delete(ref string) error
}

// SecretChecker guards Clear.
type SecretChecker interface {
	Check(secret string) bool
}

// Broadcaster receives the events produced by each mutation. Publish must not
// block; it is called with the state lock held so events go out in the same
// order the state changed.
type Broadcaster interface {
	Publish(evt model.Event)
}

type Config struct {
	MaxMessages      int
	MaxMessageLength int

	Store  Persister
	Blobs  Blobs
	Secret SecretChecker
	Log    *slog.Logger
}

// Manager holds the live state of every channel. All mutations, including the
// snapshot write, run under mu.
type Manager struct {
	mu    sync.Mutex
	state model.State

	// channels never changes after NewManager, so it is read without mu.
	channels    map[string]struct{}
	maxMessages int
	maxLength   int

	store  Persister
	blobs  Blobs
	secret SecretChecker
	events Broadcaster
	log    *slog.Logger
	now    func() time.Time
}

// NewManager takes ownership of initial, keeping only the known channels. If a
// channel holds more than MaxMessages the oldest are evicted and the trimmed
// state is saved.
func NewManager(initial model.State, cfg Config) *Manager {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	m := &Manager{
		state:       model.NewState(model.ChannelNames()),
		channels:    make(map[string]struct{}),
		maxMessages: cfg.MaxMessages,
		maxLength:   cfg.MaxMessageLength,
		store:       cfg.Store,
		blobs:       cfg.Blobs,
		secret:      cfg.Secret,
		log:         cfg.Log,
		now:         func() time.Time { return time.Now().UTC() },
	}

	var evicted []string
	for _, name := range model.ChannelNames() {
		m.channels[name] = struct{}{}
		if msgs := initial[name]; msgs != nil {
			m.state[name] = msgs
		}
		evicted = append(evicted, m.evictLocked(name)...)
	}

	if m.overflowed(initial) {
		m.log.Warn("loaded snapshot exceeded retention; oldest messages evicted",
			"max_messages", m.maxMessages)
		m.persistLocked()
	}
	m.deleteImages(m.orphansLocked(evicted), "evicted")

	return m
}

// SetBroadcaster sets where accepted messages and clears are announced.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = b
}

func (m *Manager) overflowed(initial model.State) bool {
	for _, name := range model.ChannelNames() {
		if len(initial[name]) > m.maxMessages {
			return true
		}
	}
	return false
}

// SubmitMessage validates a message from session authorID and appends it to
// its channel. The accepted message is published before the lock is released.
func (m *Manager) SubmitMessage(authorID string, in model.SubmitPayload) (model.Message, error) {
	m.mu.Lock()
	msg, err := m.validate(authorID, in)
	if err != nil {
		m.mu.Unlock()
		return model.Message{}, err
	}

	m.state[in.Channel] = append(m.state[in.Channel], msg)
	evicted := m.orphansLocked(m.evictLocked(in.Channel))
	m.persistLocked()
	m.publishLocked(model.MessageEvent(in.Channel, msg))
	m.mu.Unlock()

	m.deleteImages(evicted, "evicted")

	return msg, nil
}

// validate checks in order: channel, display name, content, length.
func (m *Manager) validate(authorID string, in model.SubmitPayload) (model.Message, error) {
	if _, ok := m.channels[in.Channel]; !ok {
		return model.Message{}, &ValidationError{Field: "channel", Err: ErrInvalidChannel}
	}

	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return model.Message{}, &ValidationError{Field: "displayName", Err: ErrMissingDisplayName}
	}

	text := strings.TrimSpace(in.Text)
	var imageRef string
	if in.ImageRef != "" && m.blobs != nil && m.blobs.Valid(in.ImageRef) {
		imageRef = in.ImageRef
	}
	if text == "" && imageRef == "" {
		return model.Message{}, &ValidationError{Field: "text", Err: ErrEmptyContent}
	}

	if utf8.RuneCountInString(in.Text) > m.maxLength {
		return model.Message{}, &ValidationError{Field: "text", Err: ErrMessageTooLong, Limit: m.maxLength}
	}

	now := m.now()
	return model.Message{
		ID:          uuid.NewString(),
		AuthorID:    authorID,
		DisplayName: name,
		Text:        text,
		ImageRef:    imageRef,
		CreatedAt:   &now,
	}, nil
}

// evictLocked drops the oldest messages of a channel until it fits the
// retention limit and returns the image refs that were dropped.
func (m *Manager) evictLocked(channel string) []string {
	msgs := m.state[channel]
	over := len(msgs) - m.maxMessages
	if over <= 0 {
		return nil
	}

	var refs []string
	for _, msg := range msgs[:over] {
		if msg.ImageRef != "" {
			refs = append(refs, msg.ImageRef)
		}
	}

	kept := make([]model.Message, m.maxMessages)
	copy(kept, msgs[over:])
	m.state[channel] = kept

	return refs
}

// Clear empties the target channel, or every channel for "" and "both".
// It returns the names that were cleared and announces the cleared target
// followed by the full history.
func (m *Manager) Clear(secret, target string) ([]string, error) {
	if m.secret == nil || !m.secret.Check(secret) {
		return nil, ErrUnauthorized
	}

	var targets []string
	switch target {
	case "", model.AllChannels:
		targets = model.ChannelNames()
	default:
		if _, ok := m.channels[target]; !ok {
			return nil, &ValidationError{Field: "channel", Err: ErrInvalidChannel}
		}
		targets = []string{target}
	}

	var refs []string

	m.mu.Lock()
	for _, name := range targets {
		for _, msg := range m.state[name] {
			if msg.ImageRef != "" {
				refs = append(refs, msg.ImageRef)
			}
		}
		m.state[name] = []model.Message{}
	}
	refs = m.orphansLocked(refs)
	m.persistLocked()

	announced := target
	if announced == "" {
		announced = model.AllChannels
	}
	m.publishLocked(model.ClearedEvent(announced))
	m.publishLocked(model.HistoryEvent(m.state.Clone()))
	m.mu.Unlock()

	m.deleteImages(refs, "cleared")

	return targets, nil
}

// Snapshot returns a copy of every channel.
func (m *Manager) Snapshot() model.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Counts returns the number of messages held per channel.
func (m *Manager) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int, len(m.state))
	for name, msgs := range m.state {
		counts[name] = len(msgs)
	}
	return counts
}

// persistLocked saves the state. A failed write is logged only; the in-memory
// state stays authoritative and the next mutation writes it again.
func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(m.state); err != nil {
		m.log.Error("failed to persist snapshot", "error", err)
	}
}

func (m *Manager) publishLocked(evt model.Event) {
	if m.events != nil {
		m.events.Publish(evt)
	}
}

// orphansLocked returns the distinct refs in refs that no retained message
// still points at. A ref reposted into another message outlives the original.
func (m *Manager) orphansLocked(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}

	live := make(map[string]struct{})
	for _, msgs := range m.state {
		for _, msg := range msgs {
			if msg.ImageRef != "" {
				live[msg.ImageRef] = struct{}{}
			}
		}
	}

	var orphans []string
	for _, ref := range refs {
		if _, ok := live[ref]; ok {
			continue
		}
		live[ref] = struct{}{}
		orphans = append(orphans, ref)
	}
	return orphans
}

func (m *Manager) deleteImages(refs []string, reason string) {
	if m.blobs == nil {
		return
	}
	for _, ref := range refs {
		if err := m.blobs.Delete(ref); err != nil {
			m.log.Warn("failed to delete image", "ref", ref, "reason", reason, "error", err)
		}
	}
}
