package services

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type saveRecorder struct {
	mu    sync.Mutex
	saves []SaveRequest
	err   error
	ch    chan SaveRequest
}

func newSaveRecorder() *saveRecorder {
	return &saveRecorder{ch: make(chan SaveRequest, 16)}
}

func (r *saveRecorder) save(req SaveRequest) error {
	r.mu.Lock()
	r.saves = append(r.saves, req)
	r.mu.Unlock()
	r.ch <- req
	return r.err
}

func (r *saveRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *saveRecorder) wait(t *testing.T) SaveRequest {
	t.Helper()
	select {
	case req := <-r.ch:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a save")
		return SaveRequest{}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticSnapshot(req SaveRequest) Snapshot {
	return func() (SaveRequest, bool) { return req, true }
}

func TestDebounceCoalescesRapidEdits(t *testing.T) {
	rec := newSaveRecorder()
	a := NewAutosave(40*time.Millisecond, rec.save, nil, quietLogger())
	defer a.Close()

	for i := 0; i < 5; i++ {
		a.Touch("1.1", staticSnapshot(SaveRequest{QuestionID: "1.1", TextAnswer: fmt.Sprintf("draft %d", i)}))
	}

	got := rec.wait(t)
	if got.TextAnswer != "draft 4" {
		t.Fatalf("saved %q, want the final edit", got.TextAnswer)
	}
	time.Sleep(100 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Fatalf("got %d saves, want 1", n)
	}
}

func TestSnapshotTakenAtFireTime(t *testing.T) {
	rec := newSaveRecorder()
	a := NewAutosave(40*time.Millisecond, rec.save, nil, quietLogger())
	defer a.Close()

	var mu sync.Mutex
	text := "early"
	a.Touch("1.2", func() (SaveRequest, bool) {
		mu.Lock()
		defer mu.Unlock()
		return SaveRequest{QuestionID: "1.2", TextAnswer: text}, true
	})
	mu.Lock()
	text = "late"
	mu.Unlock()

	if got := rec.wait(t); got.TextAnswer != "late" {
		t.Fatalf("saved %q, want the state at fire time", got.TextAnswer)
	}
}

func TestTimersAreIndependentPerQuestion(t *testing.T) {
	rec := newSaveRecorder()
	a := NewAutosave(50*time.Millisecond, rec.save, nil, quietLogger())
	defer a.Close()

	a.Touch("1.1", staticSnapshot(SaveRequest{QuestionID: "1.1", TextAnswer: "answer a"}))
	time.Sleep(25 * time.Millisecond)
	// Editing another question must not reset or replace the first timer.
	a.Touch("1.2", staticSnapshot(SaveRequest{QuestionID: "1.2", TextAnswer: "answer b"}))

	first, second := rec.wait(t), rec.wait(t)
	if first.QuestionID != "1.1" || second.QuestionID != "1.2" {
		t.Fatalf("saves arrived as %s then %s, want 1.1 then 1.2", first.QuestionID, second.QuestionID)
	}
}

func TestFlushRunsPendingSaveSynchronously(t *testing.T) {
	// Flush-on-navigation: leaving a question must persist its pending edit
	// before the next question loads.
	rec := newSaveRecorder()
	a := NewAutosave(time.Hour, rec.save, nil, quietLogger())
	defer a.Close()

	a.Touch("2.1", staticSnapshot(SaveRequest{QuestionID: "2.1", TextAnswer: "kept"}))
	a.Flush("2.1")

	if n := rec.count(); n != 1 {
		t.Fatalf("got %d saves after flush, want 1", n)
	}
	if a.InFlight() != 0 {
		t.Fatal("pending work left after flush")
	}
	a.Flush("2.1") // nothing pending, must be a no-op
	if n := rec.count(); n != 1 {
		t.Fatalf("second flush saved again: %d saves", n)
	}
}

func TestSaveNowBypassesDebounce(t *testing.T) {
	rec := newSaveRecorder()
	a := NewAutosave(time.Hour, rec.save, nil, quietLogger())
	defer a.Close()

	a.Touch("3.1", staticSnapshot(SaveRequest{QuestionID: "3.1", TextAnswer: "pending text"}))
	a.SaveNow(SaveRequest{QuestionID: "3.1", ResponseType: ResponseAudio})

	if n := rec.count(); n != 1 {
		t.Fatalf("got %d saves, want 1 immediate save", n)
	}
	if rec.saves[0].ResponseType != ResponseAudio {
		t.Fatalf("immediate save carried %q, want the audio payload", rec.saves[0].ResponseType)
	}
	// The pending debounced save for the same question was superseded.
	a.Flush("3.1")
	if n := rec.count(); n != 1 {
		t.Fatalf("superseded timer still fired: %d saves", n)
	}
}

func TestFailedSaveReportedOnceAndNotRetried(t *testing.T) {
	// A failed autosave surfaces through onResult and is then dropped.
	// Retrying is deliberately out: navigation must never block on it.
	rec := newSaveRecorder()
	rec.err = errors.New("store down")
	results := make(chan error, 1)
	a := NewAutosave(20*time.Millisecond, rec.save, func(_ string, err error) { results <- err }, quietLogger())
	defer a.Close()

	a.Touch("4.1", staticSnapshot(SaveRequest{QuestionID: "4.1", TextAnswer: "doomed"}))
	rec.wait(t)

	select {
	case err := <-results:
		if err == nil {
			t.Fatal("onResult got nil, want the save error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onResult was never called")
	}
	time.Sleep(80 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Fatalf("got %d attempts, want exactly 1 (no retry)", n)
	}
}

func TestSupersededTimerDoesNotDeliver(t *testing.T) {
	rec := newSaveRecorder()
	a := NewAutosave(time.Hour, rec.save, nil, quietLogger())
	defer a.Close()

	a.Touch("1.1", staticSnapshot(SaveRequest{QuestionID: "1.1", TextAnswer: "fresh edit"}))
	// A callback from an earlier arming carries a stale generation and must
	// return without consuming the fresh snapshot.
	a.fire("1.1", 0)
	if n := rec.count(); n != 0 {
		t.Fatalf("superseded timer delivered %d saves", n)
	}
	a.Flush("1.1")
	if n := rec.count(); n != 1 {
		t.Fatalf("pending save lost: %d saves after flush", n)
	}
}

func TestCloseFlushesThenRejectsWork(t *testing.T) {
	rec := newSaveRecorder()
	a := NewAutosave(time.Hour, rec.save, nil, quietLogger())

	a.Touch("5.1", staticSnapshot(SaveRequest{QuestionID: "5.1", TextAnswer: "one"}))
	a.Touch("5.2", staticSnapshot(SaveRequest{QuestionID: "5.2", TextAnswer: "two"}))
	a.Close()

	if n := rec.count(); n != 2 {
		t.Fatalf("got %d saves on close, want 2", n)
	}
	a.Touch("5.3", staticSnapshot(SaveRequest{QuestionID: "5.3", TextAnswer: "three"}))
	time.Sleep(30 * time.Millisecond)
	if n := rec.count(); n != 2 {
		t.Fatal("touch after close scheduled work")
	}
}
