// Package types holds the transcript data model shared by the pipeline,
// storage and export packages.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fragment is one piece of transcribed text with the time span it covers.
// Fragments are provisional: IsFinal is never set by the live pipeline.
type Fragment struct {
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	IsFinal    bool    `json:"is_final"`
}

// Transcript is a finished (or in-progress) recording.
type Transcript struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Duration  float64   `json:"duration"`
	Chapters  []Chapter `json:"chapters"`
	RawText   string    `json:"raw_text"`
	Status    Status    `json:"status"`
}

// Chapter is a titled section produced by structure analysis.
type Chapter struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	StartTime   float64      `json:"start_time"`
	Content     string       `json:"content"`
	Confidence  float32      `json:"confidence"`
	Subsections []Subsection `json:"subsections"`
}

// Subsection is a finer-grained span inside a chapter.
type Subsection struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float32 `json:"confidence"`
}

// StatusKind enumerates the lifecycle states of a transcript.
type StatusKind string

const (
	StatusRecording  StatusKind = "Recording"
	StatusProcessing StatusKind = "Processing"
	StatusCompleted  StatusKind = "Completed"
	StatusError      StatusKind = "Error"
)

// Status is a StatusKind plus, for StatusError, the reason.
//
// It is serialized as a bare string ("Completed") or, for errors, as an
// object {"Error": "reason"}.
type Status struct {
	Kind   StatusKind
	Reason string
}

var (
	Recording  = Status{Kind: StatusRecording}
	Processing = Status{Kind: StatusProcessing}
	Completed  = Status{Kind: StatusCompleted}
)

// Failed returns an error status carrying reason.
func Failed(reason string) Status {
	return Status{Kind: StatusError, Reason: reason}
}

func (s Status) String() string {
	if s.Kind == StatusError {
		return fmt.Sprintf("Error(%s)", s.Reason)
	}
	return string(s.Kind)
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s.Kind == StatusError {
		return json.Marshal(map[string]string{string(StatusError): s.Reason})
	}
	return json.Marshal(string(s.Kind))
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var kind string
	if err := json.Unmarshal(data, &kind); err == nil {
		switch StatusKind(kind) {
		case StatusRecording, StatusProcessing, StatusCompleted:
			s.Kind, s.Reason = StatusKind(kind), ""
			return nil
		}
		return fmt.Errorf("unknown transcript status %q", kind)
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid transcript status: %w", err)
	}
	reason, ok := obj[string(StatusError)]
	if !ok || len(obj) != 1 {
		return fmt.Errorf("invalid transcript status object")
	}
	s.Kind, s.Reason = StatusError, reason
	return nil
}
