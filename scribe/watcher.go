package scribe

import (
	"context"
	"log/slog"
	"time"

	"github.com/bosley/trascrivi/store"
	"github.com/fsnotify/fsnotify"
)

// watchFiles broadcasts library changes made to the transcript directory,
// whether by this process or by another one editing the records.
func (s *Scribe) watchFiles(ctx context.Context) {
	dir := s.store.Dir()

	if err := s.watcher.Add(dir); err != nil {
		slog.Error("Failed to start watching transcript directory",
			"error", err,
			"path", dir)
		return
	}

	slog.Info("Started watching transcript directory", "path", dir)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFSEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

// handleFSEvent turns a change to a transcript record into a library-changed
// event. Temp files, settings and exports are ignored.
func (s *Scribe) handleFSEvent(event fsnotify.Event) {
	id, ok := store.IDFromPath(event.Name)
	if !ok {
		return
	}

	var op string
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		op = "updated"
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = "removed"
	default:
		return
	}

	slog.Debug("Transcript library changed",
		"transcriptionID", id,
		"op", op)

	s.hub.Notify(Event{
		Type:         EventLibraryChanged,
		TranscriptID: id,
		Timestamp:    time.Now(),
		Payload:      LibraryChange{ID: id, Op: op},
	})
}
