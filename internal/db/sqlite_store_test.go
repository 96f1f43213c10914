package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/digitwin/survey/internal/api"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "survey.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestGetOrCreateSurveyRoundTrip(t *testing.T) {
	store := openTestStore(t)

	sv, created, err := store.GetOrCreateSurvey("jane@example.com")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !created || sv.ID == 0 || sv.Email != "jane@example.com" || sv.IsCompleted {
		t.Fatalf("first call result: created=%v survey=%+v", created, sv)
	}

	again, created, err := store.GetOrCreateSurvey("jane@example.com")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if created || again.ID != sv.ID {
		t.Fatalf("second call result: created=%v id=%d, want existing %d", created, again.ID, sv.ID)
	}

	missing, err := store.GetSurvey(999)
	if err != nil || missing != nil {
		t.Fatalf("missing survey: sv=%v err=%v, want nil/nil", missing, err)
	}
	byEmail, err := store.GetSurveyByEmail("ghost@example.com")
	if err != nil || byEmail != nil {
		t.Fatalf("missing email: sv=%v err=%v, want nil/nil", byEmail, err)
	}
}

func TestUpsertResponseSingleRow(t *testing.T) {
	store := openTestStore(t)
	sv, _, err := store.GetOrCreateSurvey("jane@example.com")
	if err != nil {
		t.Fatalf("create survey: %v", err)
	}

	r1, err := store.UpsertResponse(api.ResponseUpsert{
		SurveyID: sv.ID, QuestionID: "1.1", ResponseType: "text",
		TextAnswer: strPtr("first draft"), WordCount: intPtr(2),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	r2, err := store.UpsertResponse(api.ResponseUpsert{
		SurveyID: sv.ID, QuestionID: "1.1", ResponseType: "text",
		TextAnswer: strPtr("second draft with more"), WordCount: intPtr(4),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if r2.ID != r1.ID {
		t.Fatalf("upsert created a new row: %d then %d", r1.ID, r2.ID)
	}
	if r2.TextAnswer == nil || *r2.TextAnswer != "second draft with more" {
		t.Fatalf("text not replaced: %+v", r2)
	}
	if !r2.CreatedAt.Equal(r1.CreatedAt) {
		t.Fatal("upsert rewrote created_at")
	}

	rs, err := store.ListResponses(sv.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rs) != 1 {
		t.Fatalf("got %d rows, want 1", len(rs))
	}
}

func TestUpsertVariantSwitchNullsColumns(t *testing.T) {
	store := openTestStore(t)
	sv, _, _ := store.GetOrCreateSurvey("jane@example.com")

	if _, err := store.UpsertResponse(api.ResponseUpsert{
		SurveyID: sv.ID, QuestionID: "3.1", ResponseType: "text",
		TextAnswer: strPtr("text first"), WordCount: intPtr(2),
	}); err != nil {
		t.Fatalf("text upsert: %v", err)
	}
	r, err := store.UpsertResponse(api.ResponseUpsert{
		SurveyID: sv.ID, QuestionID: "3.1", ResponseType: "audio",
	})
	if err != nil {
		t.Fatalf("audio upsert: %v", err)
	}
	if r.ResponseType != "audio" || r.TextAnswer != nil || r.WordCount != nil || r.AudioURL != nil {
		t.Fatalf("variant switch kept stale columns: %+v", r)
	}
}

func TestCompleteSurveyPersists(t *testing.T) {
	store := openTestStore(t)
	sv, _, _ := store.GetOrCreateSurvey("jane@example.com")

	at := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	done, err := store.CompleteSurvey(sv.ID, at)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.IsCompleted || done.CompletedAt == nil || !done.CompletedAt.Equal(at) {
		t.Fatalf("completion state: %+v", done)
	}

	// Completing again must not move the timestamp.
	again, err := store.CompleteSurvey(sv.ID, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if !again.CompletedAt.Equal(at) {
		t.Fatal("second complete moved completed_at")
	}
}

func TestAuditLogRoundTrip(t *testing.T) {
	store := openTestStore(t)

	entries := []api.AuditEntry{
		{Time: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC), Actor: "jane@example.com", Action: "survey.created"},
		{Time: time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC), Actor: "jane@example.com", Action: "survey.emailed", Note: "friend@example.com"},
	}
	for _, e := range entries {
		if err := store.AddAudit(e); err != nil {
			t.Fatalf("add audit: %v", err)
		}
	}
	got, err := store.ListAudit()
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Action != "survey.created" || got[1].Note != "friend@example.com" {
		t.Fatalf("entries wrong: %+v", got)
	}
	if !got[0].Time.Equal(entries[0].Time) {
		t.Fatalf("time round trip: %v != %v", got[0].Time, entries[0].Time)
	}
}

func TestMigrationsAreRerunnable(t *testing.T) {
	store := openTestStore(t)
	if err := RunMigrations(store.db); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}
