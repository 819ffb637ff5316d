package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/duochat/internal/model"
	"github.com/johndosdos/duochat/internal/testutil"
)

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	primary := filepath.Join(dir, "data", "messages.json")
	legacy := filepath.Join(dir, "messages.json")
	return New(primary, legacy, model.ChannelNames(), testutil.DiscardLogger()), primary, legacy
}

func TestLoadMissingFilesReturnsEmptyState(t *testing.T) {
	store, primary, _ := newTestStore(t)

	state := store.Load()

	assert.Equal(t, model.NewState(model.ChannelNames()), state)
	assert.NoFileExists(t, primary)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)

	at := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	want := model.State{
		model.Channel1: {
			{ID: "a", AuthorID: "s1", DisplayName: "alice", Text: "hello", CreatedAt: &at},
			{ID: "b", AuthorID: "s2", DisplayName: "bob", Text: "", ImageRef: "/uploads/x.png", CreatedAt: &at},
		},
		model.Channel2: {
			{ID: "c", AuthorID: "old", DisplayName: "carol", Text: "from before timestamps"},
		},
	}

	require.NoError(t, store.Save(want))
	got := store.Load()

	assert.Equal(t, want, got)
	assert.Nil(t, got[model.Channel2][0].CreatedAt)
}

func TestSaveOmitsMissingCreatedAt(t *testing.T) {
	store, primary, _ := newTestStore(t)

	require.NoError(t, store.Save(model.State{
		model.Channel1: {{ID: "a", DisplayName: "alice", Text: "hi"}},
		model.Channel2: {},
	}))

	data, err := os.ReadFile(primary)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "createdAt")
	assert.NotContains(t, string(data), "imageRef")
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store, primary, _ := newTestStore(t)

	require.NoError(t, store.Save(model.NewState(model.ChannelNames())))
	require.NoError(t, store.Save(model.NewState(model.ChannelNames())))

	entries, err := os.ReadDir(filepath.Dir(primary))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "messages.json", entries[0].Name())
}

func TestLoadMigratesLegacySnapshot(t *testing.T) {
	store, primary, legacy := newTestStore(t)

	legacyJSON := `{
  "channel1": [
    {"id": "1", "authorId": "x", "displayName": "alice", "text": "old"},
    {"id": "2", "authorId": "y", "displayName": "bob", "text": "new", "createdAt": "2024-01-02T03:04:05Z"}
  ],
  "channel2": []
}`
	require.NoError(t, os.WriteFile(legacy, []byte(legacyJSON), 0o644))

	state := store.Load()

	require.Len(t, state[model.Channel1], 2)
	assert.Nil(t, state[model.Channel1][0].CreatedAt)
	require.NotNil(t, state[model.Channel1][1].CreatedAt)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), state[model.Channel1][1].CreatedAt.UTC())
	assert.Empty(t, state[model.Channel2])

	// Primary now exists and wins over legacy on the next load.
	assert.FileExists(t, primary)
	require.NoError(t, os.WriteFile(legacy, []byte(`{"channel1": []}`), 0o644))
	assert.Equal(t, state, store.Load())
}

func TestLoadCorruptSnapshotFailsOpen(t *testing.T) {
	store, primary, legacy := newTestStore(t)

	require.NoError(t, os.MkdirAll(filepath.Dir(primary), 0o755))
	require.NoError(t, os.WriteFile(primary, []byte(`{"channel1": [`), 0o644))
	require.NoError(t, os.WriteFile(legacy, []byte(`{"channel1": [{"id": "1", "displayName": "a", "text": "b"}]}`), 0o644))

	state := store.Load()

	// A corrupt primary is not silently replaced by the legacy file.
	assert.Equal(t, model.NewState(model.ChannelNames()), state)
}

func TestLoadFillsMissingAndDropsUnknownChannels(t *testing.T) {
	store, primary, _ := newTestStore(t)

	require.NoError(t, os.MkdirAll(filepath.Dir(primary), 0o755))
	require.NoError(t, os.WriteFile(primary, []byte(`{
  "channel1": [{"id": "1", "displayName": "a", "text": "b"}],
  "general": [{"id": "2", "displayName": "c", "text": "d"}]
}`), 0o644))

	state := store.Load()

	assert.Len(t, state, 2)
	assert.Len(t, state[model.Channel1], 1)
	assert.NotNil(t, state[model.Channel2])
	assert.Empty(t, state[model.Channel2])
}

func TestSaveFailsWhenDirectoryIsAFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	store := New(filepath.Join(blocker, "messages.json"), "", model.ChannelNames(), testutil.DiscardLogger())

	assert.Error(t, store.Save(model.NewState(model.ChannelNames())))
}
