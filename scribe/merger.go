package scribe

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bosley/trascrivi/types"
)

// apply folds a fragment into the live state. Fragments whose trimmed text is
// empty leave the state untouched. Duration only ever grows, so fragments may
// be applied in any order. The caller must hold the recorder lock.
func (s *Session) apply(frag types.Fragment) bool {
	text := strings.TrimSpace(frag.Text)
	if text == "" {
		return false
	}

	if s.Text == "" {
		s.Text = text
	} else {
		s.Text += " " + text
	}
	if frag.EndTime > s.Duration {
		s.Duration = frag.EndTime
	}
	return true
}

// Merger is the single consumer of fragments for one recording. It folds
// each fragment into the session it was started for and forwards it to the
// notifier. Fragments arriving after that session ended are discarded.
type Merger struct {
	recorder *Recorder
	session  *activeSession
}

func newMerger(r *Recorder, sess *activeSession) *Merger {
	return &Merger{recorder: r, session: sess}
}

// Merge applies one fragment. It reports whether the session was still live.
func (m *Merger) Merge(frag types.Fragment) bool {
	r := m.recorder

	r.mu.Lock()
	live := r.current == m.session
	if live {
		m.session.apply(frag)
	}
	r.mu.Unlock()

	if !live {
		r.metrics.FragmentsLate.Inc()
		slog.Debug("Discarding fragment for finished recording",
			"transcriptionID", m.session.TranscriptID,
			"startTime", frag.StartTime)
		return false
	}

	r.metrics.FragmentsMerged.Inc()
	r.notifier.Notify(Event{
		Type:         EventTranscriptionChunk,
		TranscriptID: m.session.TranscriptID,
		Timestamp:    time.Now(),
		Payload:      frag,
	})
	return true
}

// Run merges fragments until in is closed.
func (m *Merger) Run(ctx context.Context, in <-chan types.Fragment) error {
	for frag := range in {
		m.Merge(frag)
	}
	return nil
}
