package scribe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bosley/trascrivi/audio"
	"github.com/bosley/trascrivi/export"
	"github.com/bosley/trascrivi/gemini"
	"github.com/bosley/trascrivi/store"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Buffered events per subscriber before new ones are dropped
	sendBuffer = 256
)

// Handler returns the HTTP API, websocket and metrics routes.
func (s *Scribe) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/recording", s.handleRecordingState).Methods("GET")
	api.HandleFunc("/recording/start", s.handleStartRecording).Methods("POST")
	api.HandleFunc("/recording/stop", s.handleStopRecording).Methods("POST")
	api.HandleFunc("/transcripts", s.handleListTranscripts).Methods("GET")
	api.HandleFunc("/transcripts/{id}", s.handleGetTranscript).Methods("GET")
	api.HandleFunc("/transcripts/{id}", s.handleDeleteTranscript).Methods("DELETE")
	api.HandleFunc("/transcripts/{id}/analyze", s.handleAnalyzeTranscript).Methods("POST")
	api.HandleFunc("/transcripts/{id}/export", s.handleExportTranscript).Methods("POST")
	api.HandleFunc("/models", s.handleListModels).Methods("GET")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")

	router.HandleFunc("/ws", s.handleWebSocket)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return router
}

func (s *Scribe) startHTTP(ctx context.Context) error {
	s.server = &http.Server{
		Addr:      s.config.HTTPAddr,
		Handler:   s.Handler(),
		TLSConfig: s.tlsConfig,
	}

	go func() {
		var err error
		if s.tlsConfig != nil {
			err = s.server.ListenAndServeTLS("", "")
		} else {
			err = s.server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server listening",
		"addr", s.config.HTTPAddr,
		"tls", s.tlsConfig != nil)

	<-ctx.Done()
	return s.server.Shutdown(context.Background())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps pipeline and storage errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var analysisErr *AnalysisError
	switch {
	case errors.Is(err, ErrSessionActive), errors.Is(err, ErrNoActiveSession):
		status = http.StatusConflict
	case errors.Is(err, audio.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidID), errors.Is(err, ErrUnknownModel):
		status = http.StatusBadRequest
	case errors.As(err, &analysisErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Scribe) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	id, err := s.StartRecording()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Scribe) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	t, err := s.StopRecording()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Scribe) handleRecordingState(w http.ResponseWriter, r *http.Request) {
	state, err := s.RecordingState()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Scribe) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	list, err := s.Transcripts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Scribe) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	t, err := s.Transcript(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Scribe) handleDeleteTranscript(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteTranscript(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Scribe) handleAnalyzeTranscript(w http.ResponseWriter, r *http.Request) {
	t, err := s.AnalyzeTranscript(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Scribe) handleExportTranscript(w http.ResponseWriter, r *http.Request) {
	opts := export.Options{Format: export.FormatText}
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		http.Error(w, "Invalid export options", http.StatusBadRequest)
		return
	}
	if _, err := opts.Format.Extension(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	path, err := s.ExportTranscript(mux.Vars(r)["id"], opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Scribe) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gemini.Models())
}

type settingsView struct {
	SelectedModel string `json:"selected_model"`
	HasAPIKey     bool   `json:"has_api_key"`
}

type settingsUpdate struct {
	APIKey        *string `json:"gemini_api_key"`
	SelectedModel *string `json:"selected_model"`
}

func viewSettings(st store.AppState) settingsView {
	return settingsView{
		SelectedModel: st.SelectedModel,
		HasAPIKey:     st.GeminiAPIKey != "",
	}
}

func (s *Scribe) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewSettings(s.Settings()))
}

func (s *Scribe) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid settings", http.StatusBadRequest)
		return
	}

	st, err := s.UpdateSettings(req.APIKey, req.SelectedModel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSettings(st))
}

// hub fans events out to every websocket subscriber.
type hub struct {
	mu    sync.RWMutex
	conns map[*wsConnection]struct{}
}

type wsConnection struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *hub
	closeOnce sync.Once
}

func newHub() *hub {
	return &hub{conns: make(map[*wsConnection]struct{})}
}

// Notify implements Notifier. Subscribers whose buffer is full miss the event.
func (h *hub) Notify(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to marshal event", "error", err, "type", e.Type)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		select {
		case c.send <- data:
		default:
			slog.Warn("Failed to send to subscriber - channel full",
				"type", e.Type,
				"remote", c.conn.RemoteAddr())
		}
	}
}

func (h *hub) register(c *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
	slog.Debug("Subscriber connected", "subscribers", len(h.conns))
}

func (h *hub) unregister(c *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		c.close()
		slog.Debug("Subscriber disconnected", "subscribers", len(h.conns))
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		delete(h.conns, c)
		c.close()
	}
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (s *Scribe) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Upgrade connection to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	wsConn := &wsConnection{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  s.hub,
	}

	s.hub.register(wsConn)

	// Start the connection handlers
	go wsConn.writePump()
	go wsConn.readPump()
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}
