package services

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultAutosaveDelay matches the debounce window of the web client.
const DefaultAutosaveDelay = 2 * time.Second

// Snapshot produces the save payload for a question at fire time. Returning
// ok=false cancels the save (the draft became empty or navigated away after
// an explicit flush already persisted it).
type Snapshot func() (SaveRequest, bool)

// Autosave debounces saves with one timer per question id. Edits to one
// question never disturb the pending save of another, and a timer that fires
// reads its payload at fire time, not at schedule time.
type Autosave struct {
	delay    time.Duration
	save     func(SaveRequest) error
	onResult func(questionID string, err error)
	logger   *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]Snapshot
	gens    map[string]uint64
	closed  bool
	wg      sync.WaitGroup
}

// NewAutosave wires the scheduler to a save function. onResult may be nil;
// when set it is invoked after every attempted save so a caller can drive a
// transient saving indicator. Failed saves are logged and reported, never
// retried.
func NewAutosave(delay time.Duration, save func(SaveRequest) error, onResult func(string, error), logger *slog.Logger) *Autosave {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Autosave{
		delay:    delay,
		save:     save,
		onResult: onResult,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		pending:  make(map[string]Snapshot),
		gens:     make(map[string]uint64),
	}
}

// Touch (re)arms the debounce timer for questionID. Each call replaces the
// previous snapshot for the same question and bumps the generation, so a
// superseded timer callback that lost the Stop race returns without
// delivering; the new edit always waits out a full quiet window.
func (a *Autosave) Touch(questionID string, snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.pending[questionID] = snap
	a.gens[questionID]++
	gen := a.gens[questionID]
	if t, ok := a.timers[questionID]; ok {
		t.Stop()
	}
	a.timers[questionID] = time.AfterFunc(a.delay, func() { a.fire(questionID, gen) })
}

func (a *Autosave) fire(questionID string, gen uint64) {
	a.mu.Lock()
	snap, ok := a.pending[questionID]
	if !ok || a.closed || a.gens[questionID] != gen {
		a.mu.Unlock()
		return
	}
	delete(a.pending, questionID)
	delete(a.timers, questionID)
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	req, ok := snap()
	if !ok {
		return
	}
	a.deliver(req)
}

func (a *Autosave) deliver(req SaveRequest) {
	err := a.save(req)
	if err != nil {
		a.logger.Error("autosave failed", "questionId", req.QuestionID, "error", err)
	}
	if a.onResult != nil {
		a.onResult(req.QuestionID, err)
	}
}

// SaveNow persists req immediately, cancelling any pending timer for the
// same question. Used for the audio stop path, which skips the debounce.
func (a *Autosave) SaveNow(req SaveRequest) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if t, ok := a.timers[req.QuestionID]; ok {
		t.Stop()
		delete(a.timers, req.QuestionID)
	}
	delete(a.pending, req.QuestionID)
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()
	a.deliver(req)
}

// Flush runs the pending save for questionID synchronously, if any. Called
// when the user navigates away from a question.
func (a *Autosave) Flush(questionID string) {
	a.mu.Lock()
	snap, ok := a.pending[questionID]
	if !ok {
		a.mu.Unlock()
		return
	}
	if t, tok := a.timers[questionID]; tok {
		t.Stop()
		delete(a.timers, questionID)
	}
	delete(a.pending, questionID)
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	if req, ok := snap(); ok {
		a.deliver(req)
	}
}

// FlushAll synchronously runs every pending save.
func (a *Autosave) FlushAll() {
	a.mu.Lock()
	ids := make([]string, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	a.mu.Unlock()
	for _, id := range ids {
		a.Flush(id)
	}
}

// InFlight reports how many questions have a save scheduled but not yet
// fired.
func (a *Autosave) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Close flushes pending saves, then waits for running ones. The scheduler
// accepts no work afterwards.
func (a *Autosave) Close() {
	a.FlushAll()
	a.mu.Lock()
	a.closed = true
	for id, t := range a.timers {
		t.Stop()
		delete(a.timers, id)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
