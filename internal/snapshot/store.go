// Package snapshot persists the full channel state as a JSON file.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/johndosdos/duochat/internal/model"
)

// Store reads and writes the channel snapshot. The legacy path is only read,
// and only when the primary file does not exist yet.
type Store struct {
	path       string
	legacyPath string
	channels   []string
	log        *slog.Logger
}

func New(path, legacyPath string, channels []string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		path:       path,
		legacyPath: legacyPath,
		channels:   channels,
		log:        log,
	}
}

// Load returns the persisted state. It never fails: a missing or unreadable
// snapshot yields an empty state so the relay can keep serving.
func (s *Store) Load() model.State {
	state, err := s.readFile(s.path)
	if err == nil {
		return state
	}
	if !errors.Is(err, fs.ErrNotExist) {
		s.log.Error("failed to load snapshot", "path", s.path, "error", err)
		return model.NewState(s.channels)
	}

	if s.legacyPath == "" || s.legacyPath == s.path {
		return model.NewState(s.channels)
	}

	state, err = s.readFile(s.legacyPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Error("failed to load legacy snapshot", "path", s.legacyPath, "error", err)
		}
		return model.NewState(s.channels)
	}

	s.migrate(state)
	return state
}

func (s *Store) migrate(state model.State) {
	var withTime, withoutTime int
	for _, msgs := range state {
		for _, msg := range msgs {
			if msg.CreatedAt != nil {
				withTime++
			} else {
				withoutTime++
			}
		}
	}

	if err := s.Save(state); err != nil {
		s.log.Error("failed to migrate legacy snapshot", "from", s.legacyPath, "to", s.path, "error", err)
		return
	}

	s.log.Info("migrated legacy snapshot",
		"from", s.legacyPath,
		"to", s.path,
		"with_timestamp", withTime,
		"without_timestamp", withoutTime)
}

func (s *Store) readFile(path string) (model.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string][]model.Message
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("internal/snapshot: decode %s: %w", path, err)
	}

	state := model.NewState(s.channels)
	for name, msgs := range raw {
		if _, ok := state[name]; !ok {
			s.log.Warn("dropping unknown channel from snapshot", "channel", name, "messages", len(msgs))
			continue
		}
		if msgs != nil {
			state[name] = msgs
		}
	}

	return state, nil
}

// Save overwrites the primary snapshot. The data goes to a temp file in the
// same directory first so a crash mid-write leaves the old file intact.
func (s *Store) Save(state model.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("internal/snapshot: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("internal/snapshot: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("internal/snapshot: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("internal/snapshot: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("internal/snapshot: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("internal/snapshot: close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("internal/snapshot: replace %s: %w", s.path, err)
	}

	return nil
}
