// Package export renders finished transcripts to documents.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bosley/trascrivi/types"
)

// Format selects the output document type.
type Format string

const (
	FormatPDF      Format = "Pdf"
	FormatDocx     Format = "Docx"
	FormatText     Format = "Txt"
	FormatMarkdown Format = "Markdown"
)

const dateLayout = "2006-01-02 15:04:05"

// Options controls what goes into an exported document.
type Options struct {
	Format            Format `json:"format_type"`
	IncludeTimestamps bool   `json:"include_timestamps"`
	IncludeChapters   bool   `json:"include_chapters"`
}

// Extension returns the file extension used for f.
func (f Format) Extension() (string, error) {
	switch f {
	case FormatPDF:
		return "pdf", nil
	case FormatDocx:
		return "docx", nil
	case FormatText:
		return "txt", nil
	case FormatMarkdown:
		return "md", nil
	}
	return "", fmt.Errorf("unsupported export format %q", f)
}

// Export writes t to dir in the requested format and returns the file path.
func Export(t *types.Transcript, opts Options, dir string) (string, error) {
	ext, err := opts.Format.Extension()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_transcription.%s", t.ID, ext))

	if opts.Format == FormatPDF {
		if err := writePDF(t, opts, path); err != nil {
			return "", fmt.Errorf("failed to export PDF: %w", err)
		}
		return path, nil
	}

	if err := os.WriteFile(path, []byte(Render(t, opts)), 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

// Render produces the text body for the text-based formats. DOCX output is
// plain text with a .docx extension.
func Render(t *types.Transcript, opts Options) string {
	var b strings.Builder
	date := t.CreatedAt.Format(dateLayout)
	duration := fmt.Sprintf("%.0fs", t.Duration)

	switch opts.Format {
	case FormatMarkdown:
		fmt.Fprintf(&b, "# %s\n\n", t.Title)
		fmt.Fprintf(&b, "**Date:** %s\n", date)
		fmt.Fprintf(&b, "**Duration:** %s\n\n", duration)
	case FormatDocx:
		fmt.Fprintf(&b, "# %s\n\n", t.Title)
		fmt.Fprintf(&b, "Date: %s\n", date)
		fmt.Fprintf(&b, "Duration: %s\n\n", duration)
	default:
		fmt.Fprintf(&b, "%s\n", t.Title)
		fmt.Fprintf(&b, "Date: %s\n", date)
		fmt.Fprintf(&b, "Duration: %s\n\n", duration)
	}

	if !opts.IncludeChapters || len(t.Chapters) == 0 {
		b.WriteString(t.RawText)
		return b.String()
	}

	for _, ch := range t.Chapters {
		switch opts.Format {
		case FormatMarkdown:
			fmt.Fprintf(&b, "## %s\n", ch.Title)
			if opts.IncludeTimestamps {
				fmt.Fprintf(&b, "*Start: %.1fs*\n\n", ch.StartTime)
			}
		case FormatDocx:
			fmt.Fprintf(&b, "## %s\n", ch.Title)
			if opts.IncludeTimestamps {
				fmt.Fprintf(&b, "Start: %.1fs\n", ch.StartTime)
			}
		default:
			fmt.Fprintf(&b, "--- %s ---\n", ch.Title)
			if opts.IncludeTimestamps {
				fmt.Fprintf(&b, "Start: %.1fs\n", ch.StartTime)
			}
		}
		fmt.Fprintf(&b, "%s\n\n", ch.Content)
	}
	return b.String()
}
