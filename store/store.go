// Package store persists transcripts as one JSON record per transcript, plus
// the session-independent application settings.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bosley/trascrivi/gemini"
	"github.com/bosley/trascrivi/types"
	"github.com/google/uuid"
)

const (
	stateFile     = "app_state.json"
	recordSuffix  = ".json"
	exportsSubdir = "exports"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("transcript not found")

	// ErrInvalidID is returned for ids that cannot name a record.
	ErrInvalidID = errors.New("invalid transcript id")
)

// StorageError wraps any failure to read, write or (de)serialize a record.
type StorageError struct {
	Op  string
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// AppState holds settings that outlive any single recording.
type AppState struct {
	GeminiAPIKey  string `json:"gemini_api_key,omitempty"`
	SelectedModel string `json:"selected_model"`
}

// DefaultAppState returns the settings used before anything was saved.
func DefaultAppState() AppState {
	return AppState{SelectedModel: gemini.DefaultModel}
}

// Store reads and writes records under a single directory.
type Store struct {
	dir string
}

// New creates the data directory if needed and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Op: "init", Err: err}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory holding the records.
func (s *Store) Dir() string {
	return s.dir
}

// ExportDir returns (creating it if needed) the directory for exported files.
func (s *Store) ExportDir() (string, error) {
	dir := filepath.Join(s.dir, exportsSubdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &StorageError{Op: "export dir", Err: err}
	}
	return dir, nil
}

// IDFromPath returns the transcript id named by a record path, if it is one.
func IDFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, recordSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(base, recordSuffix)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func (s *Store) recordPath(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrInvalidID
	}
	return filepath.Join(s.dir, id+recordSuffix), nil
}

// Save writes the transcript, replacing any previous record with its id.
func (s *Store) Save(t *types.Transcript) error {
	path, err := s.recordPath(t.ID)
	if err != nil {
		return &StorageError{Op: "save", ID: t.ID, Err: err}
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return &StorageError{Op: "save", ID: t.ID, Err: err}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return &StorageError{Op: "save", ID: t.ID, Err: err}
	}

	slog.Debug("Saved transcript", "id", t.ID, "path", path)
	return nil
}

// Load reads the transcript with the given id.
func (s *Store) Load(id string) (*types.Transcript, error) {
	path, err := s.recordPath(id)
	if err != nil {
		return nil, &StorageError{Op: "load", ID: id, Err: err}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &StorageError{Op: "load", ID: id, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StorageError{Op: "load", ID: id, Err: err}
	}

	var t types.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &StorageError{Op: "load", ID: id, Err: err}
	}
	return &t, nil
}

// Delete removes the record for id. Deleting a missing record is not an error.
func (s *Store) Delete(id string) error {
	path, err := s.recordPath(id)
	if err != nil {
		return &StorageError{Op: "delete", ID: id, Err: err}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// List loads every record. Records that cannot be read or decoded are logged
// and skipped.
func (s *Store) List() (map[string]*types.Transcript, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}

	out := make(map[string]*types.Transcript)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := IDFromPath(entry.Name())
		if !ok {
			continue
		}

		t, err := s.Load(id)
		if err != nil {
			slog.Warn("Skipping unreadable transcript record",
				"file", entry.Name(),
				"error", err)
			continue
		}
		out[t.ID] = t
	}
	return out, nil
}

// SaveState persists the application settings.
func (s *Store) SaveState(state AppState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return &StorageError{Op: "save state", Err: err}
	}
	if err := writeFileAtomic(filepath.Join(s.dir, stateFile), data); err != nil {
		return &StorageError{Op: "save state", Err: err}
	}
	return nil
}

// LoadState reads the application settings, returning defaults when none
// have been saved yet.
func (s *Store) LoadState() (AppState, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if errors.Is(err, os.ErrNotExist) {
		return DefaultAppState(), nil
	}
	if err != nil {
		return AppState{}, &StorageError{Op: "load state", Err: err}
	}

	state := DefaultAppState()
	if err := json.Unmarshal(data, &state); err != nil {
		return AppState{}, &StorageError{Op: "load state", Err: err}
	}
	if state.SelectedModel == "" {
		state.SelectedModel = gemini.DefaultModel
	}
	return state, nil
}

// writeFileAtomic writes through a temp file so readers never see a partial
// record. The temp name does not end in .json, so watchers and List ignore it.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
