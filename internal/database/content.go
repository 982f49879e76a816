package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thinkscotty/prophet/internal/models"
)

// SavePosts replaces the latest post batch.
func (db *DB) SavePosts(posts []models.UnifiedPost) error {
	return saveDocument(db, CollectionPosts, nonNil(posts))
}

// GetPosts returns the latest post batch, empty if none was saved.
func (db *DB) GetPosts() ([]models.UnifiedPost, error) {
	posts := []models.UnifiedPost{}
	if err := db.loadDocument(CollectionPosts, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// SaveQuestions replaces the current question set.
func (db *DB) SaveQuestions(questions []models.GeneratedQuestion) error {
	return saveDocument(db, CollectionQuestions, nonNil(questions))
}

func (db *DB) GetQuestions() ([]models.GeneratedQuestion, error) {
	questions := []models.GeneratedQuestion{}
	if err := db.loadDocument(CollectionQuestions, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// SetQuestionSelected flips the selected flag of one current question.
// It reports false when no question has that id.
func (db *DB) SetQuestionSelected(id string, selected bool) (bool, error) {
	questions, err := db.GetQuestions()
	if err != nil {
		return false, err
	}
	for i := range questions {
		if questions[i].ID == id {
			questions[i].Selected = selected
			return true, db.SaveQuestions(questions)
		}
	}
	return false, nil
}

func (db *DB) loadDocument(collection string, v any) error {
	body, ok, err := db.getDocument(collection)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("decode %s: %w", collection, err)
	}
	return nil
}

// --- Run log ---

const runTimeLayout = "2006-01-02 15:04:05.000"

func (db *DB) LogRun(r models.RunLog) error {
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO run_log (id, kind, started_at, duration_ms, success, posts, questions, errors, tokens_used, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.StartedAt.UTC().Format(runTimeLayout), int64(r.Duration*1000), boolToInt(r.Success),
		r.Posts, r.Questions, r.Errors, r.TokensUsed, nullString(r.ErrorMessage))
	if err != nil {
		return fmt.Errorf("log run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]models.RunLog, error) {
	rows, err := db.conn.Query(`
		SELECT id, kind, started_at, duration_ms, success, posts, questions, errors, tokens_used, error_message
		FROM run_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []models.RunLog{}
	for rows.Next() {
		var (
			r          models.RunLog
			startedAt  string
			durationMS int64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Kind, &startedAt, &durationMS, &r.Success, &r.Posts, &r.Questions,
			&r.Errors, &r.TokensUsed, &errMsg); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(runTimeLayout, startedAt)
		r.Duration = float64(durationMS) / 1000
		r.ErrorMessage = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
