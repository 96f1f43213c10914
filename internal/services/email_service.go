package services

import (
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/digitwin/survey/internal/catalog"
)

// Message is one outbound email with both plain-text and HTML bodies.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers composed messages. internal/mailer implements it over
// SMTP; tests use a fake.
type Mailer interface {
	Send(msg Message) error
}

// EmailService composes the completion email. Delivery failure is the
// caller's problem to degrade on; composition never depends on transport.
type EmailService struct {
	mailer Mailer
	logger *slog.Logger
}

func NewEmailService(mailer Mailer, logger *slog.Logger) *EmailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailService{mailer: mailer, logger: logger}
}

// SendResults emails the full question/answer transcript to recipient. A
// non-nil questions slice overrides the built-in catalog, for clients that
// carry their own copy; the answer lookup still goes by question id.
func (s *EmailService) SendResults(recipient string, sv *Survey, rs []*Response, questions []catalog.Question) error {
	if s.mailer == nil {
		return NewInternalError("email delivery is not configured")
	}
	to, err := normalizeEmail(recipient)
	if err != nil {
		return err
	}
	if sv == nil {
		return NewInvalidError("survey is required")
	}
	if len(questions) == 0 {
		questions = catalog.Questions()
	}

	msg := composeResults(to, sv, rs, questions)
	if err := s.mailer.Send(msg); err != nil {
		s.logger.Error("send results email failed", "to", to, "surveyId", sv.ID, "error", err)
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

type resultStats struct {
	textCount  int
	audioCount int
	totalWords int
}

func tally(rs []*Response) resultStats {
	var st resultStats
	for _, r := range rs {
		if r == nil {
			continue
		}
		switch r.ResponseType {
		case ResponseAudio:
			st.audioCount++
		default:
			st.textCount++
			if r.WordCount != nil {
				st.totalWords += *r.WordCount
			}
		}
	}
	return st
}

func composeResults(to string, sv *Survey, rs []*Response, questions []catalog.Question) Message {
	byQ := responsesByQuestion(rs)
	st := tally(rs)
	prog := Progress(catalog.Questions(), rs)

	var text strings.Builder
	fmt.Fprintf(&text, "DigiTwin Survey results for %s\n\n", sv.Email)
	fmt.Fprintf(&text, "Answered: %d of %d questions (%d%%)\n", prog.Answered, prog.Total, prog.Percent)
	fmt.Fprintf(&text, "Text responses: %d (%d words total)\n", st.textCount, st.totalWords)
	fmt.Fprintf(&text, "Audio responses: %d\n\n", st.audioCount)
	for _, q := range questions {
		fmt.Fprintf(&text, "%s. %s\n", q.ID, q.Prompt)
		r := byQ[q.ID]
		switch {
		case r == nil:
			text.WriteString("(no response)\n\n")
		case r.ResponseType == ResponseAudio:
			text.WriteString("(audio response)\n\n")
		case r.TextAnswer != nil:
			fmt.Fprintf(&text, "%s\n\n", *r.TextAnswer)
		default:
			text.WriteString("(no response)\n\n")
		}
	}

	var h strings.Builder
	h.WriteString(`<div style="font-family: Georgia, serif; max-width: 640px; margin: 0 auto; color: #1a1a1a;">`)
	fmt.Fprintf(&h, `<h1 style="border-bottom: 2px solid #4a5568; padding-bottom: 8px;">DigiTwin Survey</h1>`)
	fmt.Fprintf(&h, `<p style="color: #718096;">%s &middot; %d of %d questions (%d%%)<br>%d text responses (%d words), %d audio responses</p>`,
		html.EscapeString(sv.Email), prog.Answered, prog.Total, prog.Percent, st.textCount, st.totalWords, st.audioCount)
	section := ""
	for _, q := range questions {
		if q.Section != section {
			section = q.Section
			fmt.Fprintf(&h, `<h2 style="color: #2d3748;">%s</h2>`, html.EscapeString(section))
		}
		fmt.Fprintf(&h, `<p style="font-weight: bold; margin-bottom: 4px;">%s. %s</p>`,
			html.EscapeString(q.ID), html.EscapeString(q.Prompt))
		r := byQ[q.ID]
		switch {
		case r == nil:
			h.WriteString(`<p style="color: #a0aec0; font-style: italic;">No response provided.</p>`)
		case r.ResponseType == ResponseAudio:
			h.WriteString(`<p style="color: #a0aec0; font-style: italic;">Audio response recorded.</p>`)
		case r.TextAnswer != nil:
			fmt.Fprintf(&h, `<p style="white-space: pre-wrap;">%s</p>`, html.EscapeString(*r.TextAnswer))
		default:
			h.WriteString(`<p style="color: #a0aec0; font-style: italic;">No response provided.</p>`)
		}
	}
	h.WriteString(`</div>`)

	return Message{
		To:      to,
		Subject: fmt.Sprintf("DigiTwin Survey results for %s", sv.Email),
		Text:    text.String(),
		HTML:    h.String(),
	}
}
