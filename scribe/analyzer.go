package scribe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bosley/trascrivi/types"
	"github.com/google/uuid"
)

// Generator answers a free-text prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const analysisPrompt = `Analyze the following transcription and divide it into logical chapters.
Return a JSON array where each element is an object with the fields
"title" (a short chapter title), "start_time" (the approximate start time
in seconds as a number) and "content" (the text of the chapter).
Return only the JSON array.

Transcription:
%s`

// Analyzer derives chapter structure from a finished transcript.
type Analyzer struct {
	generator Generator
}

// NewAnalyzer creates an analyzer backed by g.
func NewAnalyzer(g Generator) *Analyzer {
	return &Analyzer{generator: g}
}

// Analyze asks the generator for chapters covering text.
func (a *Analyzer) Analyze(ctx context.Context, text string) ([]types.Chapter, error) {
	reply, err := a.generator.Generate(ctx, fmt.Sprintf(analysisPrompt, text))
	if err != nil {
		return nil, &AnalysisError{Detail: "request failed", Err: err}
	}
	return ParseChapters(reply)
}

// ParseChapters extracts the chapter list from a free-text reply. The list is
// taken from the first '[' to the last ']'; anything around it is ignored.
// Entries missing a field get a default rather than failing the whole list.
func ParseChapters(reply string) ([]types.Chapter, error) {
	start := strings.IndexByte(reply, '[')
	end := strings.LastIndexByte(reply, ']')
	if start < 0 || end < start {
		return nil, &AnalysisError{Detail: "reply contains no chapter list"}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(reply[start:end+1]), &entries); err != nil {
		return nil, &AnalysisError{Detail: "malformed chapter list", Err: err}
	}

	chapters := make([]types.Chapter, 0, len(entries))
	for i, raw := range entries {
		chapters = append(chapters, parseChapter(i, raw))
	}
	return chapters, nil
}

func parseChapter(i int, raw json.RawMessage) types.Chapter {
	ch := types.Chapter{
		ID:          uuid.NewString(),
		Title:       fmt.Sprintf("Chapter %d", i+1),
		Confidence:  placeholderConfidence,
		Subsections: []types.Subsection{},
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ch
	}

	var title *string
	if json.Unmarshal(fields["title"], &title) == nil && title != nil {
		ch.Title = *title
	}
	var startTime *float64
	if json.Unmarshal(fields["start_time"], &startTime) == nil && startTime != nil {
		ch.StartTime = *startTime
	}
	var content *string
	if json.Unmarshal(fields["content"], &content) == nil && content != nil {
		ch.Content = *content
	}
	return ch
}
