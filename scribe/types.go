package scribe

import (
	"time"
)

// Event types pushed to UI subscribers.
const (
	EventTranscriptionChunk = "transcription-chunk"
	EventRecordingStopped   = "recording-stopped"
	EventRecordingError     = "recording-error"
	EventLibraryChanged     = "library-changed"
)

// FlushUnit is the accumulated audio handed to the dispatcher as one request.
type FlushUnit struct {
	Seq         int
	Samples     []float32
	SampleRate  int
	WindowStart float64
}

// Duration returns the span of audio in the unit.
func (u FlushUnit) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Event represents a message sent over WebSocket
type Event struct {
	Type         string      `json:"type"`
	TranscriptID string      `json:"transcriptId,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// Notifier receives pipeline events. Notify must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type discardNotifier struct{}

func (discardNotifier) Notify(Event) {}

// LibraryChange is the payload of an EventLibraryChanged event.
type LibraryChange struct {
	ID string `json:"id"`
	Op string `json:"op"`
}
