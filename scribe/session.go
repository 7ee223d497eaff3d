package scribe

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/trascrivi/audio"
	"github.com/bosley/trascrivi/metrics"
	"github.com/bosley/trascrivi/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultTitle = "New Transcription"

// Session is a snapshot of the live recording.
type Session struct {
	Recording    bool      `json:"is_recording"`
	TranscriptID string    `json:"transcription_id"`
	Text         string    `json:"current_text"`
	Duration     float64   `json:"duration"`
	AudioLevel   float32   `json:"audio_level"`
	StartedAt    time.Time `json:"started_at"`
}

type activeSession struct {
	Session
	source audio.Source
}

// TranscriptSaver persists finished transcripts.
type TranscriptSaver interface {
	Save(t *types.Transcript) error
}

// RecorderConfig wires a Recorder to its collaborators.
type RecorderConfig struct {
	// NewSource returns a fresh, unstarted capture source per recording.
	NewSource func() audio.Source

	// NewTranscriber returns the transcriber for a recording, or nil to
	// record without transcription.
	NewTranscriber func() Transcriber

	Store    TranscriptSaver
	Notifier Notifier
	Metrics  *metrics.Metrics

	FlushInterval time.Duration
	QueueSize     int
}

// Recorder owns the single recording session and the pipeline feeding it:
// capture, accumulation, dispatch and merge. All session state is guarded by
// one mutex that is never held across I/O.
type Recorder struct {
	config   RecorderConfig
	notifier Notifier
	metrics  *metrics.Metrics

	mu       sync.Mutex
	current  *activeSession
	starting bool

	pipelines sync.WaitGroup
}

// NewRecorder creates an idle recorder.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}

	r := &Recorder{
		config:   cfg,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
	}
	if r.notifier == nil {
		r.notifier = discardNotifier{}
	}
	if r.metrics == nil {
		r.metrics = metrics.NewUnregistered()
	}
	return r
}

// Start opens a capture source and begins a new recording, returning its
// transcript id. ctx bounds the lifetime of the whole pipeline, not just
// this call.
func (r *Recorder) Start(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.current != nil || r.starting {
		r.mu.Unlock()
		return "", ErrSessionActive
	}
	r.starting = true
	r.mu.Unlock()

	source := r.config.NewSource()
	chunks, err := source.Start(ctx)

	r.mu.Lock()
	r.starting = false
	if err != nil {
		r.mu.Unlock()
		return "", err
	}
	sess := &activeSession{
		Session: Session{
			Recording:    true,
			TranscriptID: uuid.NewString(),
			StartedAt:    time.Now(),
		},
		source: source,
	}
	r.current = sess
	r.metrics.ActiveSessions.Set(1)
	r.mu.Unlock()

	slog.Info("Recording started", "transcriptionID", sess.TranscriptID)

	var transcriber Transcriber
	if r.config.NewTranscriber != nil {
		transcriber = r.config.NewTranscriber()
	}

	r.pipelines.Add(1)
	go r.run(ctx, sess, chunks, transcriber)

	return sess.TranscriptID, nil
}

func (r *Recorder) run(ctx context.Context, sess *activeSession, chunks <-chan audio.Chunk, t Transcriber) {
	defer r.pipelines.Done()

	units := make(chan FlushUnit, r.config.QueueSize)
	fragments := make(chan types.Fragment, r.config.QueueSize)

	acc := NewAccumulator(r.config.FlushInterval, r.metrics)
	disp := NewDispatcher(t, r.config.FlushInterval, r.metrics)
	merger := newMerger(r, sess)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := acc.Run(gctx, chunks, units)
		if srcErr := sess.source.Err(); srcErr != nil {
			r.fail(sess, srcErr)
		}
		return err
	})
	g.Go(func() error {
		return disp.Run(gctx, units, fragments)
	})
	g.Go(func() error {
		return merger.Run(gctx, fragments)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Recording pipeline failed",
			"error", err,
			"transcriptionID", sess.TranscriptID)
	}
	slog.Debug("Recording pipeline finished", "transcriptionID", sess.TranscriptID)
}

// Stop ends the active recording and persists its transcript. Capture ends
// immediately; requests still in flight complete in the background and their
// fragments are discarded.
func (r *Recorder) Stop() (*types.Transcript, error) {
	sess, snapshot := r.detach()
	if sess == nil {
		return nil, ErrNoActiveSession
	}
	sess.source.Stop()

	t := finalize(snapshot, types.Completed)
	if err := r.config.Store.Save(t); err != nil {
		slog.Error("Failed to save transcript",
			"error", err,
			"transcriptionID", t.ID)
		return t, err
	}

	slog.Info("Recording stopped",
		"transcriptionID", t.ID,
		"duration", t.Duration,
		"characters", len(t.RawText))

	r.notifier.Notify(Event{
		Type:         EventRecordingStopped,
		TranscriptID: t.ID,
		Timestamp:    time.Now(),
		Payload:      t,
	})
	return t, nil
}

// fail finalizes sess with an error status after its source died.
func (r *Recorder) fail(sess *activeSession, cause error) {
	r.mu.Lock()
	if r.current != sess {
		r.mu.Unlock()
		return
	}
	r.current = nil
	r.metrics.ActiveSessions.Set(0)
	snapshot := sess.Session
	r.mu.Unlock()

	slog.Error("Recording failed",
		"error", cause,
		"transcriptionID", snapshot.TranscriptID)

	t := finalize(snapshot, types.Failed(cause.Error()))
	if err := r.config.Store.Save(t); err != nil {
		slog.Error("Failed to save failed transcript",
			"error", err,
			"transcriptionID", t.ID)
	}

	r.notifier.Notify(Event{
		Type:         EventRecordingError,
		TranscriptID: t.ID,
		Timestamp:    time.Now(),
		Payload:      t,
	})
}

func (r *Recorder) detach() (*activeSession, Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.current
	if sess == nil {
		return nil, Session{}
	}
	r.current = nil
	r.metrics.ActiveSessions.Set(0)
	return sess, sess.Session
}

// State returns a snapshot of the live session, or ErrNoActiveSession.
func (r *Recorder) State() (Session, error) {
	r.mu.Lock()
	sess := r.current
	if sess == nil {
		r.mu.Unlock()
		return Session{}, ErrNoActiveSession
	}
	snapshot := sess.Session
	r.mu.Unlock()

	snapshot.AudioLevel = sess.source.Level()
	return snapshot, nil
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Wait blocks until every pipeline, including requests still in flight from
// stopped recordings, has drained.
func (r *Recorder) Wait() {
	r.pipelines.Wait()
}

func finalize(s Session, status types.Status) *types.Transcript {
	return &types.Transcript{
		ID:        s.TranscriptID,
		Title:     defaultTitle,
		CreatedAt: s.StartedAt,
		Duration:  s.Duration,
		Chapters:  []types.Chapter{},
		RawText:   s.Text,
		Status:    status,
	}
}
