package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/duochat/internal/chat"
	"github.com/johndosdos/duochat/internal/model"
	"github.com/johndosdos/duochat/internal/testutil"
)

func newManager(t *testing.T) *chat.Manager {
	t.Helper()
	return chat.NewManager(nil, chat.Config{
		MaxMessages:      50,
		MaxMessageLength: 500,
		Store:            &testutil.Persister{},
		Blobs:            &testutil.Blobs{},
		Log:              testutil.DiscardLogger(),
	})
}

func TestOnConnectIssuesUniqueIDs(t *testing.T) {
	r := NewRegistrar(newManager(t))

	seen := make(map[string]bool)
	for range 100 {
		id, _ := r.OnConnect()
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}
}

func TestOnConnectReturnsCurrentHistory(t *testing.T) {
	m := newManager(t)
	r := NewRegistrar(m)

	_, history := r.OnConnect()
	assert.Equal(t, model.NewState(model.ChannelNames()), history)

	msg, err := m.SubmitMessage("someone", model.SubmitPayload{Channel: model.Channel2, DisplayName: "bob", Text: "hey"})
	require.NoError(t, err)

	_, history = r.OnConnect()
	assert.Equal(t, []model.Message{msg}, history[model.Channel2])
	assert.Empty(t, history[model.Channel1])

	// The snapshot is detached from live state.
	history[model.Channel2][0].Text = "edited"
	assert.Equal(t, "hey", m.Snapshot()[model.Channel2][0].Text)
}
