// Package db implements the api.Store interface on SQLite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/digitwin/survey/internal/api"
)

// SQLiteStore persists surveys, responses and the audit log. Timestamps are
// stored as RFC 3339 text in UTC.
type SQLiteStore struct {
	db *sql.DB
}

var _ api.Store = (*SQLiteStore)(nil)

// Open opens (or creates) the database file, applies pragmas and runs the
// embedded migrations.
func Open(path string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	store, err := NewSQLiteStore(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := RunMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLiteStore(sqlDB *sql.DB) (*SQLiteStore, error) {
	if sqlDB == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range pragmas {
		if _, err := sqlDB.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// GetOrCreateSurvey inserts under the unique email constraint and reads the
// winning row back, so concurrent first contacts resolve to one survey.
func (s *SQLiteStore) GetOrCreateSurvey(email string) (*api.Survey, bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO surveys (email, is_completed, created_at) VALUES (?, 0, ?)
		 ON CONFLICT(email) DO NOTHING`,
		email, fmtTime(time.Now().UTC()),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert survey: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert survey rows affected: %w", err)
	}
	sv, err := s.GetSurveyByEmail(email)
	if err != nil {
		return nil, false, err
	}
	if sv == nil {
		return nil, false, fmt.Errorf("survey for %s vanished after insert", email)
	}
	return sv, affected > 0, nil
}

func (s *SQLiteStore) GetSurvey(id int64) (*api.Survey, error) {
	row := s.db.QueryRow(
		`SELECT id, email, is_completed, completed_at, created_at FROM surveys WHERE id = ?`, id)
	return scanSurvey(row)
}

func (s *SQLiteStore) GetSurveyByEmail(email string) (*api.Survey, error) {
	row := s.db.QueryRow(
		`SELECT id, email, is_completed, completed_at, created_at FROM surveys WHERE email = ?`, email)
	return scanSurvey(row)
}

func (s *SQLiteStore) ListSurveys() ([]*api.Survey, error) {
	rows, err := s.db.Query(
		`SELECT id, email, is_completed, completed_at, created_at FROM surveys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	defer rows.Close()
	var out []*api.Survey
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CompleteSurvey(id int64, at time.Time) (*api.Survey, error) {
	_, err := s.db.Exec(
		`UPDATE surveys SET is_completed = 1, completed_at = ? WHERE id = ? AND is_completed = 0`,
		fmtTime(at.UTC()), id)
	if err != nil {
		return nil, fmt.Errorf("complete survey: %w", err)
	}
	return s.GetSurvey(id)
}

func (s *SQLiteStore) UpsertResponse(u api.ResponseUpsert) (*api.Response, error) {
	_, err := s.db.Exec(
		`INSERT INTO responses (survey_id, question_id, response_type, text_answer, audio_url, word_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(survey_id, question_id) DO UPDATE SET
		   response_type = excluded.response_type,
		   text_answer   = excluded.text_answer,
		   audio_url     = excluded.audio_url,
		   word_count    = excluded.word_count`,
		u.SurveyID, u.QuestionID, u.ResponseType,
		nullString(u.TextAnswer), nullString(u.AudioURL), nullInt(u.WordCount),
		fmtTime(time.Now().UTC()),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert response: %w", err)
	}
	row := s.db.QueryRow(
		`SELECT id, survey_id, question_id, response_type, text_answer, audio_url, word_count, created_at
		 FROM responses WHERE survey_id = ? AND question_id = ?`,
		u.SurveyID, u.QuestionID)
	return scanResponse(row)
}

func (s *SQLiteStore) ListResponses(surveyID int64) ([]*api.Response, error) {
	rows, err := s.db.Query(
		`SELECT id, survey_id, question_id, response_type, text_answer, audio_url, word_count, created_at
		 FROM responses WHERE survey_id = ? ORDER BY id`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()
	var out []*api.Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddAudit(e api.AuditEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (time, actor, action, note) VALUES (?, ?, ?, ?)`,
		fmtTime(e.Time.UTC()), e.Actor, e.Action, toNullStr(e.Note))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAudit() ([]api.AuditEntry, error) {
	rows, err := s.db.Query(`SELECT time, actor, action, note FROM audit_log ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()
	var out []api.AuditEntry
	for rows.Next() {
		var (
			e    api.AuditEntry
			ts   string
			note sql.NullString
		)
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &note); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		e.Time = t
		e.Note = note.String
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSurvey(row rowScanner) (*api.Survey, error) {
	var (
		sv          api.Survey
		isCompleted int64
		completedAt sql.NullString
		createdAt   string
	)
	err := row.Scan(&sv.ID, &sv.Email, &isCompleted, &completedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan survey: %w", err)
	}
	sv.IsCompleted = isCompleted != 0
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		sv.CompletedAt = &t
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	sv.CreatedAt = t
	return &sv, nil
}

func scanResponse(row rowScanner) (*api.Response, error) {
	var (
		r          api.Response
		textAnswer sql.NullString
		audioURL   sql.NullString
		wordCount  sql.NullInt64
		createdAt  string
	)
	err := row.Scan(&r.ID, &r.SurveyID, &r.QuestionID, &r.ResponseType,
		&textAnswer, &audioURL, &wordCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan response: %w", err)
	}
	if textAnswer.Valid {
		v := textAnswer.String
		r.TextAnswer = &v
	}
	if audioURL.Valid {
		v := audioURL.String
		r.AudioURL = &v
	}
	if wordCount.Valid {
		v := int(wordCount.Int64)
		r.WordCount = &v
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = t
	return &r, nil
}

func fmtTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func toNullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
