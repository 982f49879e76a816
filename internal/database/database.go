package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Collection names. Each collection is stored as one JSON document.
const (
	CollectionTelegram   = "telegram_channels"
	CollectionPolymarket = "polymarket_topics"
	CollectionTwitter    = "twitter_accounts"
	CollectionRSS        = "rss_feeds"
	CollectionPosts      = "posts"
	CollectionQuestions  = "questions"
)

type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(2)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn, path: path, now: time.Now}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseSizeBytes returns the file size of the database.
func (db *DB) DatabaseSizeBytes() (int64, error) {
	info, err := os.Stat(db.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (db *DB) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT PRIMARY KEY,
			body       TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS run_log (
			id            TEXT    PRIMARY KEY,
			kind          TEXT    NOT NULL,
			started_at    TEXT    NOT NULL,
			duration_ms   INTEGER NOT NULL DEFAULT 0,
			success       INTEGER NOT NULL DEFAULT 0,
			posts         INTEGER NOT NULL DEFAULT 0,
			questions     INTEGER NOT NULL DEFAULT 0,
			errors        INTEGER NOT NULL DEFAULT 0,
			tokens_used   INTEGER NOT NULL DEFAULT 0,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_log_started_at ON run_log(started_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// getDocument returns the stored body, or ok=false if the collection has
// never been written.
func (db *DB) getDocument(collection string) (body string, ok bool, err error) {
	err = db.conn.QueryRow(`SELECT body FROM documents WHERE collection = ?`, collection).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", collection, err)
	}
	return body, true, nil
}

func (db *DB) putDocument(collection, body string) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO documents (collection, body, updated_at) VALUES (?, ?, datetime('now'))`,
		collection, body)
	if err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	return nil
}
