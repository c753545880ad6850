// Package db keeps the last summary generated for each video in sqlite.
package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("summary not found")

type Summary struct {
	VideoID   string    `json:"video_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Language  string    `json:"language"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	db *sql.DB
}

func InitializeDB(dbPath string) (*Store, error) {
	logrus.WithField("path", dbPath).Info("Initializing database")

	if err := os.MkdirAll(filepath.Dir(dbPath), os.ModePerm); err != nil {
		return nil, errors.Wrap(err, "error creating directory for database")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening database")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS summaries (
                    video_id TEXT PRIMARY KEY,
                    title TEXT NOT NULL DEFAULT '',
                    summary TEXT NOT NULL,
                    provider TEXT NOT NULL DEFAULT '',
                    model TEXT NOT NULL DEFAULT '',
                    language TEXT NOT NULL DEFAULT '',
                    updated_at INTEGER NOT NULL
)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error creating table")
	}

	return &Store{db: db}, nil
}

func (s *Store) GetSummary(ctx context.Context, videoID string) (*Summary, error) {
	var (
		out     Summary
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT video_id, title, summary, provider, model, language, updated_at FROM summaries WHERE video_id = ?",
		videoID,
	).Scan(&out.VideoID, &out.Title, &out.Summary, &out.Provider, &out.Model, &out.Language, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "error querying database")
	}
	out.UpdatedAt = time.Unix(updated, 0).UTC()
	return &out, nil
}

// SetSummary replaces the stored summary for s.VideoID.
func (s *Store) SetSummary(ctx context.Context, sum Summary) error {
	if sum.UpdatedAt.IsZero() {
		sum.UpdatedAt = time.Now()
	}
	return s.exec(ctx, `INSERT INTO summaries (video_id, title, summary, provider, model, language, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(video_id) DO UPDATE SET title=excluded.title, summary=excluded.summary,
provider=excluded.provider, model=excluded.model, language=excluded.language, updated_at=excluded.updated_at`,
		sum.VideoID, sum.Title, sum.Summary, sum.Provider, sum.Model, sum.Language, sum.UpdatedAt.Unix())
}

func (s *Store) DeleteSummary(ctx context.Context, videoID string) error {
	return s.exec(ctx, "DELETE FROM summaries WHERE video_id = ?", videoID)
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error beginning transaction")
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "error preparing statement")
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "error executing statement")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing transaction")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
