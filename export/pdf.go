package export

import (
	"fmt"

	"github.com/bosley/trascrivi/types"
	"github.com/go-pdf/fpdf"
)

func writePDF(t *types.Transcript, opts Options, path string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle(t.Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.MultiCell(0, 12, tr(t.Title), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 6, t.CreatedAt.Format(dateLayout), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Duration: %.0fs", t.Duration), "", 1, "L", false, 0, "")
	pdf.Ln(10)

	if opts.IncludeChapters && len(t.Chapters) > 0 {
		for _, ch := range t.Chapters {
			pdf.SetFont("Helvetica", "B", 16)
			pdf.MultiCell(0, 8, tr(ch.Title), "", "L", false)

			if opts.IncludeTimestamps {
				pdf.SetFont("Helvetica", "", 10)
				pdf.CellFormat(0, 6, fmt.Sprintf("Start: %.1fs", ch.StartTime), "", 1, "L", false, 0, "")
			}

			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 6, tr(ch.Content), "", "L", false)
			pdf.Ln(6)
		}
	} else {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(t.RawText), "", "L", false)
	}

	return pdf.OutputFileAndClose(path)
}
