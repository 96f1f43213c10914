//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("DIGITWIN_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

func doPost(t *testing.T, client *http.Client, url string, body any, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode POST %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func doGet(t *testing.T, client *http.Client, url string, out any) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode GET %s: %v", url, err)
		}
	}
	return resp
}

// TestSurveyFlowIntegration walks a respondent through the full journey
// against a running server: start, answer, resume, complete, download.
func TestSurveyFlowIntegration(t *testing.T) {
	client := &http.Client{Timeout: 10 * time.Second}
	base := baseURL()
	email := fmt.Sprintf("integration_%d@example.com", time.Now().UnixNano())

	var survey struct {
		ID          int64  `json:"id"`
		Email       string `json:"email"`
		IsCompleted bool   `json:"isCompleted"`
	}
	if code := doPost(t, client, base+"/api/surveys", map[string]string{"email": email}, &survey); code != http.StatusOK {
		t.Fatalf("create survey: status %d", code)
	}
	if survey.ID == 0 || survey.IsCompleted {
		t.Fatalf("unexpected survey: %+v", survey)
	}

	var dup struct {
		ID int64 `json:"id"`
	}
	doPost(t, client, base+"/api/surveys", map[string]string{"email": email}, &dup)
	if dup.ID != survey.ID {
		t.Fatalf("duplicate create produced survey %d, want %d", dup.ID, survey.ID)
	}

	var saved struct {
		ID        int64 `json:"id"`
		WordCount *int  `json:"wordCount"`
	}
	doPost(t, client, base+"/api/responses", map[string]any{
		"surveyId":     survey.ID,
		"questionId":   "1.1",
		"responseType": "text",
		"textAnswer":   "an integration answer with exactly seven words",
		"wordCount":    12345,
	}, &saved)
	if saved.WordCount == nil || *saved.WordCount != 7 {
		t.Fatalf("word count %v, want server-side 7", saved.WordCount)
	}

	var resumed struct {
		Survey struct {
			ID int64 `json:"id"`
		} `json:"survey"`
		Responses []struct {
			QuestionID string `json:"questionId"`
		} `json:"responses"`
	}
	doGet(t, client, base+"/api/surveys/by-email/"+email, &resumed)
	if resumed.Survey.ID != survey.ID || len(resumed.Responses) != 1 {
		t.Fatalf("resume payload: %+v", resumed)
	}

	var progress struct {
		Progress struct {
			Answered int `json:"answeredQuestions"`
			Total    int `json:"totalQuestions"`
		} `json:"progress"`
	}
	doGet(t, client, fmt.Sprintf("%s/api/surveys/%d/responses", base, survey.ID), &progress)
	if progress.Progress.Answered != 1 || progress.Progress.Total != 87 {
		t.Fatalf("progress: %+v", progress.Progress)
	}

	var completed struct {
		IsCompleted bool   `json:"isCompleted"`
		CompletedAt string `json:"completedAt"`
	}
	doPost(t, client, fmt.Sprintf("%s/api/surveys/%d/complete", base, survey.ID), map[string]string{}, &completed)
	if !completed.IsCompleted || completed.CompletedAt == "" {
		t.Fatalf("completion: %+v", completed)
	}

	resp := doGet(t, client, fmt.Sprintf("%s/api/surveys/%d/download", base, survey.ID), nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("download: status %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, email) {
		t.Fatalf("download filename does not embed the email: %q", cd)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	var payload struct {
		Metadata struct {
			TotalQuestions int `json:"totalQuestions"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("parse download: %v", err)
	}
	if payload.Metadata.TotalQuestions != 87 {
		t.Fatalf("download metadata: %+v", payload.Metadata)
	}

	resp = doGet(t, client, fmt.Sprintf("%s/api/surveys/%d/export?format=pdf", base, survey.ID), nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf export: status %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}
