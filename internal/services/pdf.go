package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/digitwin/survey/internal/catalog"
)

// BuildPDF renders the survey as an A4 document: one heading per section,
// then prompt, requirement hint and answer for each question. Core PDF fonts
// only cover cp1252, so the few symbols outside it are rewritten first.
func (s *ExportService) BuildPDF(sv *Survey, rs []*Response) (*ExportResult, error) {
	if sv == nil {
		return nil, NewInvalidError("survey is required")
	}
	byQ := responsesByQuestion(rs)
	prog := Progress(catalog.Questions(), rs)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	put := func(text string) string { return tr(pdfSafe(text)) }

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, "DigiTwin Survey", "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(110, 110, 110)
	meta := sv.Email
	if sv.IsCompleted && sv.CompletedAt != nil {
		meta += " / completed " + sv.CompletedAt.Format("2006-01-02")
	}
	meta += fmt.Sprintf(" / %d of %d questions (%d%%)", prog.Answered, prog.Total, prog.Percent)
	pdf.MultiCell(0, 5, put(meta), "", "L", false)
	pdf.Ln(4)

	for _, sec := range catalog.Sections() {
		pdf.SetTextColor(30, 30, 30)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.MultiCell(0, 7, put(sec.Name), "", "L", false)
		pdf.Ln(1)
		for _, q := range sec.Questions {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.SetTextColor(30, 30, 30)
			pdf.MultiCell(0, 5.5, put(q.ID+". "+q.Prompt), "", "L", false)
			if q.Requirement != "" {
				pdf.SetFont("Helvetica", "I", 9)
				pdf.SetTextColor(130, 130, 130)
				pdf.MultiCell(0, 4.5, put(q.Requirement), "", "L", false)
			}
			pdf.SetFont("Helvetica", "", 10)
			r := byQ[q.ID]
			switch {
			case r == nil:
				pdf.SetTextColor(160, 160, 160)
				pdf.MultiCell(0, 5, "No response provided.", "", "L", false)
			case r.ResponseType == ResponseAudio:
				pdf.SetTextColor(160, 160, 160)
				pdf.MultiCell(0, 5, "Audio response recorded.", "", "L", false)
			case r.TextAnswer != nil:
				pdf.SetTextColor(30, 30, 30)
				pdf.MultiCell(0, 5, put(*r.TextAnswer), "", "L", false)
				if r.WordCount != nil {
					pdf.SetFont("Helvetica", "I", 8)
					pdf.SetTextColor(130, 130, 130)
					pdf.MultiCell(0, 4, fmt.Sprintf("%d words", *r.WordCount), "", "L", false)
				}
			default:
				pdf.SetTextColor(160, 160, 160)
				pdf.MultiCell(0, 5, "No response provided.", "", "L", false)
			}
			pdf.Ln(3)
		}
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	name := fmt.Sprintf("DigiTwin_Survey_%s_%s.pdf",
		strings.ReplaceAll(sv.Email, "@", "_"), s.now().Format("2006-01-02"))
	return &ExportResult{Filename: name, ContentType: "application/pdf", Data: buf.Bytes()}, nil
}

var pdfReplacer = strings.NewReplacer("≥", ">=", "≤", "<=", "—", "-", "–", "-", "·", "-")

func pdfSafe(text string) string {
	return pdfReplacer.Replace(text)
}
