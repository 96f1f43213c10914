package services

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/digitwin/survey/internal/catalog"
)

// ExportFormat selects a renderer in Export.
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
	FormatHTML     ExportFormat = "html"
	FormatPDF      ExportFormat = "pdf"
)

// ExportResult is a rendered document ready to be written to the wire.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders a finalized (survey, responses) tuple into the
// supported download formats.
type ExportService struct {
	now func() time.Time
}

func NewExportService() *ExportService {
	return &ExportService{now: func() time.Time { return time.Now().UTC() }}
}

type exportMetadata struct {
	TotalQuestions       int       `json:"totalQuestions"`
	AnsweredQuestions    int       `json:"answeredQuestions"`
	CompletionPercentage int       `json:"completionPercentage"`
	ExportedAt           time.Time `json:"exportedAt"`
}

type exportPayload struct {
	Survey    *Survey        `json:"survey"`
	Responses []*Response    `json:"responses"`
	Metadata  exportMetadata `json:"metadata"`
}

// Export dispatches to the renderer for format.
func (s *ExportService) Export(format ExportFormat, sv *Survey, rs []*Response) (*ExportResult, error) {
	switch format {
	case FormatJSON:
		return s.BuildJSON(sv, rs)
	case FormatMarkdown:
		return s.BuildMarkdown(sv, rs)
	case FormatHTML:
		return s.BuildHTML(sv, rs)
	case FormatPDF:
		return s.BuildPDF(sv, rs)
	default:
		return nil, NewInvalidError(fmt.Sprintf("unsupported export format %q", format))
	}
}

// BuildJSON renders the raw download payload: survey, responses and a
// metadata block with progress figures.
func (s *ExportService) BuildJSON(sv *Survey, rs []*Response) (*ExportResult, error) {
	if sv == nil {
		return nil, NewInvalidError("survey is required")
	}
	if rs == nil {
		rs = []*Response{}
	}
	prog := Progress(catalog.Questions(), rs)
	payload := exportPayload{
		Survey:    sv,
		Responses: rs,
		Metadata: exportMetadata{
			TotalQuestions:       prog.Total,
			AnsweredQuestions:    prog.Answered,
			CompletionPercentage: prog.Percent,
			ExportedAt:           s.now(),
		},
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	name := fmt.Sprintf("digitwin-survey-%s-%d.json", sv.Email, s.now().UnixMilli())
	return &ExportResult{Filename: name, ContentType: "application/json", Data: data}, nil
}

// BuildMarkdown renders a sectioned document, one subsection per question
// with its purpose, requirement and the stored answer.
func (s *ExportService) BuildMarkdown(sv *Survey, rs []*Response) (*ExportResult, error) {
	if sv == nil {
		return nil, NewInvalidError("survey is required")
	}
	byQ := responsesByQuestion(rs)
	var b strings.Builder
	fmt.Fprintf(&b, "# DigiTwin Survey — %s\n\n", sv.Email)
	if sv.IsCompleted && sv.CompletedAt != nil {
		fmt.Fprintf(&b, "Completed: %s\n\n", sv.CompletedAt.Format("2006-01-02"))
	}
	prog := Progress(catalog.Questions(), rs)
	fmt.Fprintf(&b, "Progress: %d of %d questions (%d%%)\n\n", prog.Answered, prog.Total, prog.Percent)
	for _, sec := range catalog.Sections() {
		fmt.Fprintf(&b, "## %s\n\n", sec.Name)
		for _, q := range sec.Questions {
			fmt.Fprintf(&b, "### %s. %s\n\n", q.ID, q.Prompt)
			if q.Purpose != "" {
				fmt.Fprintf(&b, "*Purpose: %s*\n\n", q.Purpose)
			}
			if q.Requirement != "" {
				fmt.Fprintf(&b, "*Requirement: %s*\n\n", q.Requirement)
			}
			b.WriteString(answerMarkdown(byQ[q.ID]))
			b.WriteString("\n\n")
		}
	}
	name := fmt.Sprintf("digitwin-survey-%s-%d.md", sv.Email, s.now().UnixMilli())
	return &ExportResult{Filename: name, ContentType: "text/markdown; charset=utf-8", Data: []byte(b.String())}, nil
}

func answerMarkdown(r *Response) string {
	switch {
	case r == nil:
		return "_No response provided._"
	case r.ResponseType == ResponseAudio:
		return "_Audio response recorded._"
	case r.TextAnswer != nil:
		words := 0
		if r.WordCount != nil {
			words = *r.WordCount
		}
		return fmt.Sprintf("%s\n\n_%d words_", *r.TextAnswer, words)
	default:
		return "_No response provided._"
	}
}

// BuildHTML renders a printable standalone page, usable for print-to-PDF.
func (s *ExportService) BuildHTML(sv *Survey, rs []*Response) (*ExportResult, error) {
	if sv == nil {
		return nil, NewInvalidError("survey is required")
	}
	byQ := responsesByQuestion(rs)
	prog := Progress(catalog.Questions(), rs)
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>DigiTwin Survey</title>
<style>
  body { font-family: Georgia, serif; max-width: 720px; margin: 0 auto; padding: 24px; color: #1a1a1a; }
  h1 { border-bottom: 2px solid #4a5568; padding-bottom: 8px; }
  h2 { color: #2d3748; margin-top: 32px; }
  .meta { color: #718096; font-size: 14px; }
  .question { margin: 20px 0; page-break-inside: avoid; }
  .prompt { font-weight: bold; }
  .hint { color: #718096; font-size: 13px; font-style: italic; }
  .answer { margin-top: 6px; white-space: pre-wrap; }
  .missing { color: #a0aec0; font-style: italic; }
</style>
</head>
<body>
`)
	fmt.Fprintf(&b, "<h1>DigiTwin Survey</h1>\n<p class=\"meta\">%s", html.EscapeString(sv.Email))
	if sv.IsCompleted && sv.CompletedAt != nil {
		fmt.Fprintf(&b, " &middot; completed %s", sv.CompletedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, " &middot; %d of %d questions (%d%%)</p>\n", prog.Answered, prog.Total, prog.Percent)
	for _, sec := range catalog.Sections() {
		fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(sec.Name))
		for _, q := range sec.Questions {
			b.WriteString("<div class=\"question\">\n")
			fmt.Fprintf(&b, "<div class=\"prompt\">%s. %s</div>\n", html.EscapeString(q.ID), html.EscapeString(q.Prompt))
			if q.Requirement != "" {
				fmt.Fprintf(&b, "<div class=\"hint\">%s</div>\n", html.EscapeString(q.Requirement))
			}
			r := byQ[q.ID]
			switch {
			case r == nil:
				b.WriteString("<div class=\"answer missing\">No response provided.</div>\n")
			case r.ResponseType == ResponseAudio:
				b.WriteString("<div class=\"answer missing\">Audio response recorded.</div>\n")
			case r.TextAnswer != nil:
				fmt.Fprintf(&b, "<div class=\"answer\">%s</div>\n", html.EscapeString(*r.TextAnswer))
			default:
				b.WriteString("<div class=\"answer missing\">No response provided.</div>\n")
			}
			b.WriteString("</div>\n")
		}
	}
	b.WriteString("</body>\n</html>\n")
	name := fmt.Sprintf("digitwin-survey-%s-%d.html", sv.Email, s.now().UnixMilli())
	return &ExportResult{Filename: name, ContentType: "text/html; charset=utf-8", Data: []byte(b.String())}, nil
}

func responsesByQuestion(rs []*Response) map[string]*Response {
	byQ := make(map[string]*Response, len(rs))
	for _, r := range rs {
		if r != nil {
			byQ[r.QuestionID] = r
		}
	}
	return byQ
}
