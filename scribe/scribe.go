package scribe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bosley/trascrivi/audio"
	"github.com/bosley/trascrivi/export"
	"github.com/bosley/trascrivi/gemini"
	"github.com/bosley/trascrivi/metrics"
	"github.com/bosley/trascrivi/store"
	"github.com/bosley/trascrivi/types"
	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// Configuration for the Scribe service
type Config struct {
	// Certificate files for TLS. Plain HTTP is served when empty.
	CertFile string
	KeyFile  string

	// HTTP server address
	HTTPAddr string

	// Capture options and the source constructor. NewSource defaults to the
	// PortAudio device source.
	Audio     audio.Options
	NewSource func(audio.Options) audio.Source

	// Span of audio sent per transcription request
	FlushInterval time.Duration

	// Capacity of the queues between pipeline stages
	QueueSize int

	// Remote service
	GeminiBaseURL string
	GeminiTimeout time.Duration
	GeminiRetries int

	// APIKey and Model are used when no settings have been saved.
	APIKey string
	Model  string
}

// Scribe manages the recording pipeline, the transcript library and the UI
// API.
type Scribe struct {
	config Config

	store    *store.Store
	recorder *Recorder
	hub      *hub

	// File system watcher
	watcher *fsnotify.Watcher

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	settingsMu sync.RWMutex
	settings   store.AppState

	// Serializes library writes that span a load and a save
	libraryMu sync.Mutex

	// Lifetime of recording pipelines
	ctx    context.Context
	cancel context.CancelFunc

	// HTTP/Websocket
	server    *http.Server
	tlsConfig *tls.Config
	upgrader  websocket.Upgrader
}

// New creates a new Scribe instance
func New(cfg Config, st *store.Store) (*Scribe, error) {
	if cfg.NewSource == nil {
		cfg.NewSource = func(o audio.Options) audio.Source {
			return audio.NewDeviceSource(o)
		}
	}

	settings, err := st.LoadState()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if settings.GeminiAPIKey == "" {
		settings.GeminiAPIKey = cfg.APIKey
	}
	if cfg.Model != "" && settings.SelectedModel == gemini.DefaultModel {
		settings.SelectedModel = cfg.Model
	}

	// Load TLS certificates
	var tlsConfig *tls.Config
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificates: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	registry := prometheus.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scribe{
		config:    cfg,
		store:     st,
		hub:       newHub(),
		watcher:   watcher,
		registry:  registry,
		metrics:   metrics.New(registry),
		settings:  settings,
		ctx:       ctx,
		cancel:    cancel,
		tlsConfig: tlsConfig,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // TODO: restrict to the UI origin once it is served from here
			},
		},
	}

	s.recorder = NewRecorder(RecorderConfig{
		NewSource:      s.newSource,
		NewTranscriber: s.newTranscriber,
		Store:          st,
		Notifier:       s.hub,
		Metrics:        s.metrics,
		FlushInterval:  cfg.FlushInterval,
		QueueSize:      cfg.QueueSize,
	})

	return s, nil
}

func (s *Scribe) newSource() audio.Source {
	opts := s.config.Audio
	opts.OnDrop = s.metrics.ChunksDropped.Inc
	return s.config.NewSource(opts)
}

// newTranscriber returns nil when no API key is configured so the pipeline
// records without transcription.
func (s *Scribe) newTranscriber() Transcriber {
	client := s.client()
	if client == nil {
		return nil
	}
	return client
}

func (s *Scribe) client() *gemini.Client {
	settings := s.Settings()
	if settings.GeminiAPIKey == "" {
		return nil
	}

	opts := []gemini.Option{gemini.WithModel(settings.SelectedModel)}
	if s.config.GeminiBaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(s.config.GeminiBaseURL))
	}
	if s.config.GeminiTimeout > 0 {
		opts = append(opts, gemini.WithTimeout(s.config.GeminiTimeout))
	}
	opts = append(opts, gemini.WithRetries(s.config.GeminiRetries))
	return gemini.New(settings.GeminiAPIKey, opts...)
}

// Start begins the Scribe service and blocks until ctx is done.
func (s *Scribe) Start(ctx context.Context) error {
	// Start the file system watcher
	go s.watchFiles(ctx)

	// Start the HTTP server
	return s.startHTTP(ctx)
}

// Stop gracefully shuts down the Scribe service. An active recording is
// finalized and saved first.
func (s *Scribe) Stop(ctx context.Context) error {
	if _, err := s.recorder.Stop(); err != nil && !errors.Is(err, ErrNoActiveSession) {
		slog.Error("Failed to finalize active recording", "error", err)
	}
	s.cancel()

	// Wait for pipelines or context timeout
	done := make(chan struct{})
	go func() {
		s.recorder.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out")
	}

	// Stop the HTTP server
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
	}

	s.hub.closeAll()

	// Close the file watcher
	if err := s.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}

	return nil
}

// StartRecording begins a new recording and returns its transcript id.
func (s *Scribe) StartRecording() (string, error) {
	return s.recorder.Start(s.ctx)
}

// StopRecording ends the active recording and returns the saved transcript.
func (s *Scribe) StopRecording() (*types.Transcript, error) {
	return s.recorder.Stop()
}

// RecordingState returns the live session snapshot.
func (s *Scribe) RecordingState() (Session, error) {
	return s.recorder.State()
}

// Transcripts returns every stored transcript, newest first.
func (s *Scribe) Transcripts() ([]*types.Transcript, error) {
	all, err := s.store.List()
	if err != nil {
		return nil, err
	}

	list := make([]*types.Transcript, 0, len(all))
	for _, t := range all {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// Transcript loads a single transcript.
func (s *Scribe) Transcript(id string) (*types.Transcript, error) {
	return s.store.Load(id)
}

// DeleteTranscript removes a transcript from the library.
func (s *Scribe) DeleteTranscript(id string) error {
	s.libraryMu.Lock()
	defer s.libraryMu.Unlock()
	return s.store.Delete(id)
}

// AnalyzeTranscript runs structure analysis over a stored transcript and
// saves the resulting chapters. On failure the stored record is restored to
// its previous state. A transcript deleted while analysis is in flight stays
// deleted and the call returns store.ErrNotFound.
func (s *Scribe) AnalyzeTranscript(ctx context.Context, id string) (*types.Transcript, error) {
	client := s.client()
	t, previous, err := s.beginAnalysis(id, client)
	if err != nil {
		return nil, err
	}

	slog.Info("Analyzing transcript structure",
		"transcriptionID", id,
		"model", client.Model())

	chapters, err := NewAnalyzer(client).Analyze(ctx, t.RawText)
	if err != nil {
		s.metrics.Analyses.WithLabelValues("failed").Inc()
		if _, restoreErr := s.commitAnalysis(id, func(cur *types.Transcript) {
			cur.Status = previous
		}); restoreErr != nil && !errors.Is(restoreErr, store.ErrNotFound) {
			slog.Error("Failed to restore transcript after analysis error",
				"error", restoreErr,
				"transcriptionID", id)
		}
		return nil, err
	}

	t, err = s.commitAnalysis(id, func(cur *types.Transcript) {
		cur.Chapters = chapters
		if previous.Kind == types.StatusError {
			cur.Status = previous
		} else {
			cur.Status = types.Completed
		}
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("Transcript deleted during analysis, discarding chapters",
				"transcriptionID", id)
		}
		return nil, err
	}

	s.metrics.Analyses.WithLabelValues("succeeded").Inc()
	slog.Info("Transcript structure analyzed",
		"transcriptionID", id,
		"chapters", len(chapters))
	return t, nil
}

// beginAnalysis marks the transcript as processing and returns it together
// with the status it had before.
func (s *Scribe) beginAnalysis(id string, client *gemini.Client) (*types.Transcript, types.Status, error) {
	s.libraryMu.Lock()
	defer s.libraryMu.Unlock()

	t, err := s.store.Load(id)
	if err != nil {
		return nil, types.Status{}, err
	}
	if client == nil {
		s.metrics.Analyses.WithLabelValues("failed").Inc()
		return nil, types.Status{}, &AnalysisError{Detail: "no API key configured"}
	}

	previous := t.Status
	t.Status = types.Processing
	if err := s.store.Save(t); err != nil {
		return nil, types.Status{}, err
	}
	return t, previous, nil
}

// commitAnalysis applies update to the current stored record and saves it.
// It fails with store.ErrNotFound when the record no longer exists.
func (s *Scribe) commitAnalysis(id string, update func(*types.Transcript)) (*types.Transcript, error) {
	s.libraryMu.Lock()
	defer s.libraryMu.Unlock()

	cur, err := s.store.Load(id)
	if err != nil {
		return nil, err
	}
	update(cur)
	if err := s.store.Save(cur); err != nil {
		return nil, err
	}
	return cur, nil
}

// ExportTranscript writes a stored transcript to the export directory and
// returns the file path.
func (s *Scribe) ExportTranscript(id string, opts export.Options) (string, error) {
	t, err := s.store.Load(id)
	if err != nil {
		return "", err
	}
	dir, err := s.store.ExportDir()
	if err != nil {
		return "", err
	}

	path, err := export.Export(t, opts, dir)
	if err != nil {
		return "", err
	}

	slog.Info("Exported transcript",
		"transcriptionID", id,
		"format", opts.Format,
		"path", path)
	return path, nil
}

// Settings returns the current application settings.
func (s *Scribe) Settings() store.AppState {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

// UpdateSettings changes the API key and/or the selected model and persists
// the result. Nil fields are left unchanged. New values apply to the next
// recording or analysis.
func (s *Scribe) UpdateSettings(apiKey, model *string) (store.AppState, error) {
	if model != nil {
		if _, ok := gemini.LookupModel(*model); !ok {
			return store.AppState{}, fmt.Errorf("%w: %q", ErrUnknownModel, *model)
		}
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	next := s.settings
	if apiKey != nil {
		next.GeminiAPIKey = *apiKey
	}
	if model != nil {
		next.SelectedModel = *model
	}
	if err := s.store.SaveState(next); err != nil {
		return store.AppState{}, err
	}

	s.settings = next
	slog.Info("Settings updated",
		"model", next.SelectedModel,
		"apiKeySet", next.GeminiAPIKey != "")
	return next, nil
}
