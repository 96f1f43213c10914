package api

import (
	"sort"
	"sync"
	"time"
)

// memoryStore keeps everything behind one mutex. Good enough for tests and
// single-process dev runs; production uses the SQLite store.
type memoryStore struct {
	mu           sync.Mutex
	nextSurveyID int64
	nextRespID   int64
	surveys      map[int64]*Survey
	byEmail      map[string]int64
	responses    map[int64]map[string]*Response
	audit        []AuditEntry
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		surveys:   map[int64]*Survey{},
		byEmail:   map[string]int64{},
		responses: map[int64]map[string]*Response{},
	}
}

func (m *memoryStore) GetOrCreateSurvey(email string) (*Survey, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byEmail[email]; ok {
		return copySurvey(m.surveys[id]), false, nil
	}
	m.nextSurveyID++
	sv := &Survey{
		ID:        m.nextSurveyID,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	m.surveys[sv.ID] = sv
	m.byEmail[email] = sv.ID
	return copySurvey(sv), true, nil
}

func (m *memoryStore) GetSurvey(id int64) (*Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySurvey(m.surveys[id]), nil
}

func (m *memoryStore) GetSurveyByEmail(email string) (*Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, nil
	}
	return copySurvey(m.surveys[id]), nil
}

func (m *memoryStore) ListSurveys() ([]*Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Survey, 0, len(m.surveys))
	for _, sv := range m.surveys {
		out = append(out, copySurvey(sv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) CompleteSurvey(id int64, at time.Time) (*Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sv, ok := m.surveys[id]
	if !ok {
		return nil, nil
	}
	if !sv.IsCompleted {
		sv.IsCompleted = true
		t := at
		sv.CompletedAt = &t
	}
	return copySurvey(sv), nil
}

func (m *memoryStore) UpsertResponse(u ResponseUpsert) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byQ := m.responses[u.SurveyID]
	if byQ == nil {
		byQ = map[string]*Response{}
		m.responses[u.SurveyID] = byQ
	}
	r, ok := byQ[u.QuestionID]
	if !ok {
		m.nextRespID++
		r = &Response{
			ID:         m.nextRespID,
			SurveyID:   u.SurveyID,
			QuestionID: u.QuestionID,
			CreatedAt:  time.Now().UTC(),
		}
		byQ[u.QuestionID] = r
	}
	r.ResponseType = u.ResponseType
	r.TextAnswer = copyString(u.TextAnswer)
	r.AudioURL = copyString(u.AudioURL)
	r.WordCount = copyInt(u.WordCount)
	return copyResponse(r), nil
}

func (m *memoryStore) ListResponses(surveyID int64) ([]*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byQ := m.responses[surveyID]
	out := make([]*Response, 0, len(byQ))
	for _, r := range byQ {
		out = append(out, copyResponse(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) AddAudit(e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *memoryStore) ListAudit() ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...), nil
}

func copySurvey(sv *Survey) *Survey {
	if sv == nil {
		return nil
	}
	cp := *sv
	if sv.CompletedAt != nil {
		t := *sv.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func copyResponse(r *Response) *Response {
	if r == nil {
		return nil
	}
	cp := *r
	cp.TextAnswer = copyString(r.TextAnswer)
	cp.AudioURL = copyString(r.AudioURL)
	cp.WordCount = copyInt(r.WordCount)
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
