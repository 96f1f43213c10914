package services

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/digitwin/survey/internal/catalog"
)

// SurveyStore is the persistence capability the survey service needs.
// internal/api adapts its Store to this interface.
type SurveyStore interface {
	GetOrCreateSurvey(email string) (survey *Survey, created bool, err error)
	GetSurvey(id int64) (*Survey, error)
	GetSurveyByEmail(email string) (*Survey, error)
	ListSurveys() ([]*Survey, error)
	CompleteSurvey(id int64, at time.Time) (*Survey, error)
	UpsertResponse(req SaveRequest) (*Response, error)
	ListResponses(surveyID int64) ([]*Response, error)
}

// SurveyService validates and orchestrates everything behind the REST
// handlers.
type SurveyService struct {
	store SurveyStore
	now   func() time.Time
}

func NewSurveyService(store SurveyStore) *SurveyService {
	return &SurveyService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// StartSurvey returns the survey for email, creating it on first contact.
// The same email always maps to the same survey.
func (s *SurveyService) StartSurvey(email string) (*Survey, bool, error) {
	norm, err := normalizeEmail(email)
	if err != nil {
		return nil, false, err
	}
	sv, created, err := s.store.GetOrCreateSurvey(norm)
	if err != nil {
		return nil, false, fmt.Errorf("get or create survey: %w", err)
	}
	return sv, created, nil
}

// GetByEmail resumes an existing survey with its responses.
func (s *SurveyService) GetByEmail(email string) (*Survey, []*Response, error) {
	norm, err := normalizeEmail(email)
	if err != nil {
		return nil, nil, err
	}
	sv, err := s.store.GetSurveyByEmail(norm)
	if err != nil {
		return nil, nil, fmt.Errorf("get survey by email: %w", err)
	}
	if sv == nil {
		return nil, nil, NewNotFoundError("survey not found")
	}
	rs, err := s.store.ListResponses(sv.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list responses: %w", err)
	}
	return sv, rs, nil
}

// SaveResponse upserts one answer. Text answers must be non-blank and get
// their word count recomputed here; the client's count is advisory only.
// Audio answers may carry an empty audio URL.
func (s *SurveyService) SaveResponse(req SaveRequest) (*Response, error) {
	if req.SurveyID <= 0 {
		return nil, NewInvalidError("surveyId is required")
	}
	if _, ok := catalog.ByID(req.QuestionID); !ok {
		return nil, NewInvalidError("unknown questionId")
	}
	if !req.ResponseType.Valid() {
		return nil, NewInvalidError("responseType must be text or audio")
	}
	if req.ResponseType == ResponseText {
		if strings.TrimSpace(req.TextAnswer) == "" {
			return nil, NewInvalidError("textAnswer is required for text responses")
		}
		req.WordCount = CountWords(req.TextAnswer)
		req.AudioURL = ""
	} else {
		req.TextAnswer = ""
		req.WordCount = 0
	}
	sv, err := s.store.GetSurvey(req.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	r, err := s.store.UpsertResponse(req)
	if err != nil {
		return nil, fmt.Errorf("upsert response: %w", err)
	}
	return r, nil
}

// Complete marks the survey finished. Completing an already completed survey
// returns it unchanged.
func (s *SurveyService) Complete(id int64) (*Survey, error) {
	sv, err := s.store.GetSurvey(id)
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	if sv.IsCompleted {
		return sv, nil
	}
	sv, err = s.store.CompleteSurvey(id, s.now())
	if err != nil {
		return nil, fmt.Errorf("complete survey: %w", err)
	}
	return sv, nil
}

// Snapshot returns the survey with all of its responses.
func (s *SurveyService) Snapshot(id int64) (*Survey, []*Response, error) {
	sv, err := s.store.GetSurvey(id)
	if err != nil {
		return nil, nil, fmt.Errorf("get survey: %w", err)
	}
	if sv == nil {
		return nil, nil, NewNotFoundError("survey not found")
	}
	rs, err := s.store.ListResponses(id)
	if err != nil {
		return nil, nil, fmt.Errorf("list responses: %w", err)
	}
	return sv, rs, nil
}

// ListSurveys is the admin listing.
func (s *SurveyService) ListSurveys() ([]*Survey, error) {
	svs, err := s.store.ListSurveys()
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	return svs, nil
}

func normalizeEmail(email string) (string, error) {
	norm := strings.ToLower(strings.TrimSpace(email))
	if norm == "" {
		return "", NewInvalidError("email is required")
	}
	if _, err := mail.ParseAddress(norm); err != nil {
		return "", NewInvalidError("invalid email address")
	}
	return norm, nil
}
