package api

import "time"

// Survey is the stored sitting for one email address.
type Survey struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	IsCompleted bool       `json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Response is the stored answer for one (survey, question) pair. Nullable
// columns stay pointers so the wire shape keeps explicit nulls.
type Response struct {
	ID           int64     `json:"id"`
	SurveyID     int64     `json:"surveyId"`
	QuestionID   string    `json:"questionId"`
	ResponseType string    `json:"responseType"`
	TextAnswer   *string   `json:"textAnswer"`
	AudioURL     *string   `json:"audioUrl"`
	WordCount    *int      `json:"wordCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ResponseUpsert is the write shape for UpsertResponse. A nil pointer means
// the column is cleared, not preserved.
type ResponseUpsert struct {
	SurveyID     int64
	QuestionID   string
	ResponseType string
	TextAnswer   *string
	AudioURL     *string
	WordCount    *int
}

// AuditEntry records a noteworthy action for the admin log.
type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Note   string    `json:"note,omitempty"`
}

// Store is the persistence capability behind the HTTP layer. Both the
// in-memory store and the SQLite store implement it.
//
// GetOrCreateSurvey must be idempotent under concurrent calls for the same
// email: exactly one survey row per address, created reported true only for
// the call that inserted it. UpsertResponse must be an atomic
// insert-or-update keyed by (survey id, question id).
type Store interface {
	GetOrCreateSurvey(email string) (survey *Survey, created bool, err error)
	GetSurvey(id int64) (*Survey, error)
	GetSurveyByEmail(email string) (*Survey, error)
	ListSurveys() ([]*Survey, error)
	CompleteSurvey(id int64, at time.Time) (*Survey, error)

	UpsertResponse(u ResponseUpsert) (*Response, error)
	ListResponses(surveyID int64) ([]*Response, error)

	AddAudit(e AuditEntry) error
	ListAudit() ([]AuditEntry, error)
}

var _ Store = (*memoryStore)(nil)
