package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bosley/trascrivi/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTranscript(text string) *types.Transcript {
	return &types.Transcript{
		ID:        uuid.NewString(),
		Title:     "New Transcription",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Duration:  12.5,
		RawText:   text,
		Chapters:  []types.Chapter{},
		Status:    types.Completed,
	}
}

func TestSaveLoadDelete(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	tr := newTranscript("hello there")
	tr.Chapters = []types.Chapter{{ID: uuid.NewString(), Title: "Intro", Content: "hello", Confidence: 0.9}}
	require.NoError(t, s.Save(tr))

	loaded, err := s.Load(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.RawText, loaded.RawText)
	assert.Equal(t, tr.Status, loaded.Status)
	assert.True(t, tr.CreatedAt.Equal(loaded.CreatedAt))
	require.Len(t, loaded.Chapters, 1)
	assert.Equal(t, "Intro", loaded.Chapters[0].Title)

	require.NoError(t, s.Delete(tr.ID))
	_, err = s.Load(tr.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, s.Delete(tr.ID), "deleting twice is fine")
}

func TestLoadRejectsInvalidID(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load("../../etc/passwd")
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.True(t, errors.Is(err, ErrInvalidID))
}

func TestListSkipsMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	good := newTranscript("good one")
	require.NoError(t, s.Save(good))
	other := newTranscript("another")
	other.Status = types.Failed("device lost")
	require.NoError(t, s.Save(other))

	require.NoError(t, os.WriteFile(filepath.Join(dir, uuid.NewString()+".json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0644))
	require.NoError(t, s.SaveState(DefaultAppState()))

	all, err := s.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "good one", all[good.ID].RawText)
	assert.Equal(t, types.Failed("device lost"), all[other.ID].Status)
}

func TestLoadCorruptRecordIsStorageError(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	id := uuid.NewString()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte(`{"status": 7}`), 0644))

	_, err = s.Load(id)
	var storageErr *StorageError
	assert.True(t, errors.As(err, &storageErr))
}

func TestAppState(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	state, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, DefaultAppState(), state)

	state.GeminiAPIKey = "secret"
	state.SelectedModel = "gemini-2.5-pro"
	require.NoError(t, s.SaveState(state))

	loaded, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestIDFromPath(t *testing.T) {
	id := uuid.NewString()
	got, ok := IDFromPath(filepath.Join("data", id+".json"))
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = IDFromPath("data/app_state.json")
	assert.False(t, ok)
	_, ok = IDFromPath("data/" + id + ".json.tmp")
	assert.False(t, ok)
}
