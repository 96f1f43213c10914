package api

import (
	"time"

	"github.com/digitwin/survey/internal/services"
)

// storeAdapter bridges the api Store to the narrow interface the survey
// service consumes.
type storeAdapter struct {
	store Store
}

var _ services.SurveyStore = (*storeAdapter)(nil)

func (a *storeAdapter) GetOrCreateSurvey(email string) (*services.Survey, bool, error) {
	sv, created, err := a.store.GetOrCreateSurvey(email)
	return toServiceSurvey(sv), created, err
}

func (a *storeAdapter) GetSurvey(id int64) (*services.Survey, error) {
	sv, err := a.store.GetSurvey(id)
	return toServiceSurvey(sv), err
}

func (a *storeAdapter) GetSurveyByEmail(email string) (*services.Survey, error) {
	sv, err := a.store.GetSurveyByEmail(email)
	return toServiceSurvey(sv), err
}

func (a *storeAdapter) ListSurveys() ([]*services.Survey, error) {
	svs, err := a.store.ListSurveys()
	if err != nil {
		return nil, err
	}
	out := make([]*services.Survey, 0, len(svs))
	for _, sv := range svs {
		out = append(out, toServiceSurvey(sv))
	}
	return out, nil
}

func (a *storeAdapter) CompleteSurvey(id int64, at time.Time) (*services.Survey, error) {
	sv, err := a.store.CompleteSurvey(id, at)
	return toServiceSurvey(sv), err
}

func (a *storeAdapter) UpsertResponse(req services.SaveRequest) (*services.Response, error) {
	u := ResponseUpsert{
		SurveyID:     req.SurveyID,
		QuestionID:   req.QuestionID,
		ResponseType: string(req.ResponseType),
	}
	if req.ResponseType == services.ResponseText {
		text := req.TextAnswer
		words := req.WordCount
		u.TextAnswer = &text
		u.WordCount = &words
	} else if req.AudioURL != "" {
		url := req.AudioURL
		u.AudioURL = &url
	}
	r, err := a.store.UpsertResponse(u)
	return toServiceResponse(r), err
}

func (a *storeAdapter) ListResponses(surveyID int64) ([]*services.Response, error) {
	rs, err := a.store.ListResponses(surveyID)
	if err != nil {
		return nil, err
	}
	out := make([]*services.Response, 0, len(rs))
	for _, r := range rs {
		out = append(out, toServiceResponse(r))
	}
	return out, nil
}

func toServiceSurvey(sv *Survey) *services.Survey {
	if sv == nil {
		return nil
	}
	return &services.Survey{
		ID:          sv.ID,
		Email:       sv.Email,
		IsCompleted: sv.IsCompleted,
		CompletedAt: sv.CompletedAt,
		CreatedAt:   sv.CreatedAt,
	}
}

func toServiceResponse(r *Response) *services.Response {
	if r == nil {
		return nil
	}
	return &services.Response{
		ID:           r.ID,
		SurveyID:     r.SurveyID,
		QuestionID:   r.QuestionID,
		ResponseType: services.ResponseType(r.ResponseType),
		TextAnswer:   r.TextAnswer,
		AudioURL:     r.AudioURL,
		WordCount:    r.WordCount,
		CreatedAt:    r.CreatedAt,
	}
}
