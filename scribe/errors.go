package scribe

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveSession is returned by stop/query calls when nothing is recording.
	ErrNoActiveSession = errors.New("no active recording")

	// ErrSessionActive is returned when starting while a recording is active.
	ErrSessionActive = errors.New("a recording is already active")

	// ErrUnknownModel is returned when selecting a model that is not a preset.
	ErrUnknownModel = errors.New("unknown model")
)

// TranscriptionError reports a single failed dispatch. It never leaves the
// pipeline: the unit is logged and dropped.
type TranscriptionError struct {
	Seq    int
	Detail string
	Err    error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription of unit %d failed: %s: %v", e.Seq, e.Detail, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// AnalysisError reports a failed or unparsable structure analysis.
type AnalysisError struct {
	Detail string
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return "structure analysis failed: " + e.Detail
	}
	return fmt.Sprintf("structure analysis failed: %s: %v", e.Detail, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
