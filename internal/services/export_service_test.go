package services

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() (*Survey, []*Response) {
	completed := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	sv := &Survey{
		ID:          7,
		Email:       "jane@example.com",
		IsCompleted: true,
		CompletedAt: &completed,
		CreatedAt:   completed.Add(-48 * time.Hour),
	}
	answer := "A <long> answer about my life."
	rs := []*Response{
		{ID: 1, SurveyID: 7, QuestionID: "1.1", ResponseType: ResponseText, TextAnswer: &answer, WordCount: intPtr(6)},
		{ID: 2, SurveyID: 7, QuestionID: "1.2", ResponseType: ResponseAudio},
	}
	return sv, rs
}

func fixedExportService() *ExportService {
	svc := NewExportService()
	svc.now = func() time.Time { return time.Date(2025, 8, 2, 9, 30, 0, 0, time.UTC) }
	return svc
}

func TestBuildJSONPayload(t *testing.T) {
	sv, rs := exportFixture()
	svc := fixedExportService()

	res, err := svc.BuildJSON(sv, rs)
	require.NoError(t, err)
	assert.Equal(t, "application/json", res.ContentType)
	assert.True(t, strings.HasPrefix(res.Filename, "digitwin-survey-jane@example.com-"), res.Filename)
	assert.True(t, strings.HasSuffix(res.Filename, ".json"), res.Filename)

	var payload struct {
		Survey    *Survey     `json:"survey"`
		Responses []*Response `json:"responses"`
		Metadata  struct {
			TotalQuestions       int    `json:"totalQuestions"`
			AnsweredQuestions    int    `json:"answeredQuestions"`
			CompletionPercentage int    `json:"completionPercentage"`
			ExportedAt           string `json:"exportedAt"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &payload))
	assert.Equal(t, int64(7), payload.Survey.ID)
	assert.Len(t, payload.Responses, 2)
	assert.Equal(t, 87, payload.Metadata.TotalQuestions)
	assert.Equal(t, 2, payload.Metadata.AnsweredQuestions)
	assert.Equal(t, 2, payload.Metadata.CompletionPercentage)
	assert.NotEmpty(t, payload.Metadata.ExportedAt)
}

func TestBuildMarkdownStructure(t *testing.T) {
	sv, rs := exportFixture()
	res, err := fixedExportService().BuildMarkdown(sv, rs)
	require.NoError(t, err)

	md := string(res.Data)
	assert.Contains(t, md, "# DigiTwin Survey — jane@example.com")
	assert.Contains(t, md, "## Biography & Personal History")
	assert.Contains(t, md, "### 1.1.")
	assert.Contains(t, md, "A <long> answer about my life.")
	assert.Contains(t, md, "_6 words_")
	assert.Contains(t, md, "_Audio response recorded._")
	assert.Contains(t, md, "_No response provided._")
	assert.Contains(t, md, "Progress: 2 of 87 questions (2%)")
}

func TestBuildHTMLEscapesAnswers(t *testing.T) {
	sv, rs := exportFixture()
	res, err := fixedExportService().BuildHTML(sv, rs)
	require.NoError(t, err)

	page := string(res.Data)
	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, res.ContentType, "text/html")
	assert.Contains(t, page, "A &lt;long&gt; answer about my life.")
	assert.NotContains(t, page, "A <long> answer")
	assert.Contains(t, page, "Audio response recorded.")
}

func TestBuildPDFDocument(t *testing.T) {
	sv, rs := exportFixture()
	res, err := fixedExportService().BuildPDF(sv, rs)
	require.NoError(t, err)

	assert.Equal(t, "application/pdf", res.ContentType)
	assert.Equal(t, "DigiTwin_Survey_jane_example.com_2025-08-02.pdf", res.Filename)
	assert.True(t, bytes.HasPrefix(res.Data, []byte("%PDF")), "output is not a PDF document")
}

func TestExportDispatch(t *testing.T) {
	sv, rs := exportFixture()
	svc := fixedExportService()

	for _, format := range []ExportFormat{FormatJSON, FormatMarkdown, FormatHTML, FormatPDF} {
		res, err := svc.Export(format, sv, rs)
		require.NoError(t, err, "format %s", format)
		assert.NotEmpty(t, res.Data)
	}
	_, err := svc.Export("csv", sv, rs)
	expectCode(t, err, ErrorInvalid)
}
