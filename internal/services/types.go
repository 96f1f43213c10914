package services

import "time"

// ResponseType distinguishes the two answer variants of a question.
type ResponseType string

const (
	ResponseText  ResponseType = "text"
	ResponseAudio ResponseType = "audio"
)

// Valid reports whether t is one of the two known variants.
func (t ResponseType) Valid() bool {
	return t == ResponseText || t == ResponseAudio
}

// Survey is one respondent's sitting, keyed by email. CompletedAt is nil
// until Complete.
type Survey struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	IsCompleted bool       `json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Response is the stored answer for one (survey, question) pair. TextAnswer,
// AudioURL and WordCount are pointers so the wire shape keeps explicit nulls
// for the variant that does not apply.
type Response struct {
	ID           int64        `json:"id"`
	SurveyID     int64        `json:"surveyId"`
	QuestionID   string       `json:"questionId"`
	ResponseType ResponseType `json:"responseType"`
	TextAnswer   *string      `json:"textAnswer"`
	AudioURL     *string      `json:"audioUrl"`
	WordCount    *int         `json:"wordCount"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// SaveRequest is the upsert payload for a single answer. WordCount is
// advisory; the service recomputes it for text responses.
type SaveRequest struct {
	SurveyID     int64        `json:"surveyId"`
	QuestionID   string       `json:"questionId"`
	ResponseType ResponseType `json:"responseType"`
	TextAnswer   string       `json:"textAnswer,omitempty"`
	AudioURL     string       `json:"audioUrl,omitempty"`
	WordCount    int          `json:"wordCount,omitempty"`
}
