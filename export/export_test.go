package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bosley/trascrivi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTranscript() *types.Transcript {
	return &types.Transcript{
		ID:        "4b3f2f7e-8a7c-4d6e-9a43-0c1f9a2b7d11",
		Title:     "Weekly sync",
		CreatedAt: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
		Duration:  42,
		RawText:   "we talked about the roadmap and then lunch",
		Status:    types.Completed,
		Chapters: []types.Chapter{
			{Title: "Roadmap", StartTime: 0, Content: "we talked about the roadmap"},
			{Title: "Lunch", StartTime: 21.5, Content: "and then lunch"},
		},
	}
}

func TestRenderMarkdownWithChapters(t *testing.T) {
	out := Render(sampleTranscript(), Options{Format: FormatMarkdown, IncludeChapters: true, IncludeTimestamps: true})

	assert.True(t, strings.HasPrefix(out, "# Weekly sync\n\n"))
	assert.Contains(t, out, "**Date:** 2026-05-04 09:30:00\n")
	assert.Contains(t, out, "**Duration:** 42s\n")
	assert.Contains(t, out, "## Lunch\n*Start: 21.5s*\n\nand then lunch\n\n")
	assert.NotContains(t, out, "we talked about the roadmap and then lunch")
}

func TestRenderTextWithoutTimestamps(t *testing.T) {
	out := Render(sampleTranscript(), Options{Format: FormatText, IncludeChapters: true})

	assert.Contains(t, out, "--- Roadmap ---\nwe talked about the roadmap\n\n")
	assert.NotContains(t, out, "Start:")
}

func TestRenderFallsBackToRawText(t *testing.T) {
	tr := sampleTranscript()
	out := Render(tr, Options{Format: FormatDocx, IncludeChapters: false})
	assert.True(t, strings.HasSuffix(out, tr.RawText))

	tr.Chapters = nil
	out = Render(tr, Options{Format: FormatDocx, IncludeChapters: true})
	assert.True(t, strings.HasSuffix(out, tr.RawText))
}

func TestExportWritesFiles(t *testing.T) {
	dir := t.TempDir()
	tr := sampleTranscript()

	for _, f := range []Format{FormatPDF, FormatDocx, FormatText, FormatMarkdown} {
		path, err := Export(tr, Options{Format: f, IncludeChapters: true, IncludeTimestamps: true}, dir)
		require.NoError(t, err, f)

		ext, _ := f.Extension()
		assert.Equal(t, filepath.Join(dir, tr.ID+"_transcription."+ext), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
		if f == FormatPDF {
			assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
		}
	}
}

func TestExportUnknownFormat(t *testing.T) {
	_, err := Export(sampleTranscript(), Options{Format: "Odt"}, t.TempDir())
	assert.Error(t, err)
}
