package services

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/digitwin/survey/internal/catalog"
)

var (
	// ErrRecordingActive is returned when an operation needs the recorder
	// idle but a recording is still running.
	ErrRecordingActive = errors.New("recording already in progress")
	// ErrNoRecording is returned by StopRecording without a prior start.
	ErrNoRecording = errors.New("no recording in progress")
	// ErrSessionCompleted rejects mutations after the survey completed.
	ErrSessionCompleted = errors.New("survey already completed")
	// ErrRequirementNotMet rejects Advance while the current answer is
	// below the question's minimum.
	ErrRequirementNotMet = errors.New("question requirement not met")
)

// Gateway is the persistence half the session needs. cmd/surveycli backs it
// with the REST API; tests use a stub.
type Gateway interface {
	UpsertResponse(req SaveRequest) (*Response, error)
	CompleteSurvey(surveyID int64) error
}

// Draft is the in-progress answer for the current question. RecordedSeconds
// holds the wall-clock length of the last finished recording run only; a
// restarted recording begins again from zero.
type Draft struct {
	ResponseType    ResponseType
	Text            string
	RecordedSeconds int
	HasRecording    bool
}

// Session drives one respondent through the question sequence: draft state,
// requirement gating, navigation and the autosave hookup. All methods are
// safe for concurrent use.
type Session struct {
	surveyID int64
	gateway  Gateway
	autosave *Autosave
	now      func() time.Time

	mu            sync.Mutex
	questions     []catalog.Question
	saved         map[string]*Response
	idx           int
	draft         Draft
	recording     bool
	recordingFrom time.Time
	completed     bool
	lastSaveErr   error
}

// SessionConfig carries the collaborators for NewSession. Existing seeds the
// saved-response map so a returning respondent resumes where they left off.
type SessionConfig struct {
	SurveyID      int64
	Gateway       Gateway
	Existing      []*Response
	Completed     bool
	AutosaveDelay time.Duration
	Logger        *slog.Logger
}

func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		surveyID:  cfg.SurveyID,
		gateway:   cfg.Gateway,
		now:       func() time.Time { return time.Now().UTC() },
		questions: catalog.Questions(),
		saved:     make(map[string]*Response, len(cfg.Existing)),
		completed: cfg.Completed,
	}
	for _, r := range cfg.Existing {
		if r != nil {
			s.saved[r.QuestionID] = r
		}
	}
	s.autosave = NewAutosave(cfg.AutosaveDelay, s.persist, s.noteResult, cfg.Logger)
	// Resume at the first unanswered question.
	for i, q := range s.questions {
		s.idx = i
		if _, ok := s.saved[q.ID]; !ok {
			break
		}
	}
	s.loadQuestionLocked()
	return s
}

// CurrentQuestion returns the question the draft belongs to.
func (s *Session) CurrentQuestion() catalog.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions[s.idx]
}

// Index returns the zero-based position of the current question.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

// Draft returns a copy of the current draft.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Completed reports whether the survey has been finalized.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// SaveError returns the error of the most recent save attempt, nil after a
// success. Feeds the transient failure indicator; failed saves are not
// retried and never block navigation.
func (s *Session) SaveError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaveErr
}

// Saving reports whether a debounced save is still pending.
func (s *Session) Saving() bool {
	return s.autosave.InFlight() > 0
}

// SetResponseType switches the draft between the text and audio variants.
func (s *Session) SetResponseType(t ResponseType) error {
	if !t.Valid() {
		return ErrRequirementNotMet
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return ErrSessionCompleted
	}
	if s.recording {
		return ErrRecordingActive
	}
	s.draft.ResponseType = t
	return nil
}

// SetText replaces the draft text and (re)arms the debounced save. Blank
// text only updates the draft; nothing is scheduled for it.
func (s *Session) SetText(text string) error {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return ErrSessionCompleted
	}
	s.draft.ResponseType = ResponseText
	s.draft.Text = text
	qid := s.questions[s.idx].ID
	schedule := CountWords(text) > 0
	s.mu.Unlock()

	if schedule {
		s.autosave.Touch(qid, s.snapshotFor(qid))
	}
	return nil
}

// snapshotFor builds the fire-time payload for qid. The save is dropped when
// the survey completed or the user has navigated away, because navigation
// already flushed the draft synchronously.
func (s *Session) snapshotFor(qid string) Snapshot {
	return func() (SaveRequest, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.completed || s.questions[s.idx].ID != qid {
			return SaveRequest{}, false
		}
		return s.buildRequestLocked(), CountWords(s.draft.Text) > 0
	}
}

func (s *Session) buildRequestLocked() SaveRequest {
	qid := s.questions[s.idx].ID
	if s.draft.ResponseType == ResponseAudio {
		return SaveRequest{
			SurveyID:     s.surveyID,
			QuestionID:   qid,
			ResponseType: ResponseAudio,
		}
	}
	return SaveRequest{
		SurveyID:     s.surveyID,
		QuestionID:   qid,
		ResponseType: ResponseText,
		TextAnswer:   s.draft.Text,
		WordCount:    CountWords(s.draft.Text),
	}
}

func (s *Session) persist(req SaveRequest) error {
	resp, err := s.gateway.UpsertResponse(req)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.saved[req.QuestionID] = resp
	s.mu.Unlock()
	return nil
}

func (s *Session) noteResult(_ string, err error) {
	s.mu.Lock()
	s.lastSaveErr = err
	s.mu.Unlock()
}

// StartRecording begins an audio take. Restarting is allowed only after an
// explicit stop; each take counts from zero, previous elapsed is discarded.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return ErrSessionCompleted
	}
	if s.recording {
		return ErrRecordingActive
	}
	s.draft.ResponseType = ResponseAudio
	s.draft.RecordedSeconds = 0
	s.draft.HasRecording = false
	s.recording = true
	s.recordingFrom = s.now()
	return nil
}

// StopRecording ends the take, records its wall-clock length and saves the
// audio response immediately, bypassing the debounce.
func (s *Session) StopRecording() error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return ErrNoRecording
	}
	s.recording = false
	s.draft.RecordedSeconds = int(s.now().Sub(s.recordingFrom) / time.Second)
	s.draft.HasRecording = true
	req := s.buildRequestLocked()
	s.mu.Unlock()

	s.autosave.SaveNow(req)
	return nil
}

// Recording reports whether a take is running.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// RequirementMet evaluates the current draft against the current question's
// minimum. Text needs at least MinWords whitespace tokens; audio needs a
// finished take of at least MinAudioSeconds, or nothing at all when the
// question has no audio minimum. Boundaries are inclusive.
func (s *Session) RequirementMet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requirementMetLocked()
}

func (s *Session) requirementMetLocked() bool {
	q := s.questions[s.idx]
	if s.draft.ResponseType == ResponseAudio {
		if q.MinAudioSeconds == 0 {
			return true
		}
		return s.draft.HasRecording && s.draft.RecordedSeconds >= q.MinAudioSeconds
	}
	return CountWords(s.draft.Text) >= q.MinWords
}

// CanAdvance reports whether Advance would move forward.
func (s *Session) CanAdvance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.completed && !s.recording && s.requirementMetLocked()
}

// Advance flushes the pending save for the current question and moves to the
// next one. On the last question it finalizes the survey instead. When the
// requirement is unmet the call is a no-op apart from the returned error.
func (s *Session) Advance() error {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return ErrSessionCompleted
	}
	if s.recording {
		s.mu.Unlock()
		return ErrRecordingActive
	}
	if !s.requirementMetLocked() {
		s.mu.Unlock()
		return ErrRequirementNotMet
	}
	qid := s.questions[s.idx].ID
	last := s.idx == len(s.questions)-1
	s.mu.Unlock()

	s.autosave.Flush(qid)

	if last {
		if err := s.gateway.CompleteSurvey(s.surveyID); err != nil {
			return err
		}
		s.mu.Lock()
		s.completed = true
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	if !s.completed && s.idx < len(s.questions)-1 {
		s.idx++
		s.loadQuestionLocked()
	}
	s.mu.Unlock()
	return nil
}

// Retreat flushes the pending save and moves to the previous question. At
// the first question it does nothing.
func (s *Session) Retreat() error {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return ErrSessionCompleted
	}
	if s.recording {
		s.mu.Unlock()
		return ErrRecordingActive
	}
	if s.idx == 0 {
		s.mu.Unlock()
		return nil
	}
	qid := s.questions[s.idx].ID
	s.mu.Unlock()

	s.autosave.Flush(qid)

	s.mu.Lock()
	if !s.completed && s.idx > 0 {
		s.idx--
		s.loadQuestionLocked()
	}
	s.mu.Unlock()
	return nil
}

// loadQuestionLocked replaces the whole draft for the current question,
// seeding type and text from the saved response when one exists. Recording
// state is never restored; a revisited audio answer must be re-recorded to
// count again.
func (s *Session) loadQuestionLocked() {
	q := s.questions[s.idx]
	s.draft = Draft{ResponseType: ResponseText}
	if r, ok := s.saved[q.ID]; ok {
		s.draft.ResponseType = r.ResponseType
		if r.TextAnswer != nil {
			s.draft.Text = *r.TextAnswer
		}
	}
}

// Progress summarizes answered counts for the whole catalog.
func (s *Session) Progress() Summary {
	s.mu.Lock()
	saved := make(map[string]struct{}, len(s.saved))
	for k := range s.saved {
		saved[k] = struct{}{}
	}
	qs := s.questions
	s.mu.Unlock()
	return summarize(qs, saved)
}

// Close flushes pending saves and shuts the scheduler down.
func (s *Session) Close() {
	s.autosave.Close()
}
