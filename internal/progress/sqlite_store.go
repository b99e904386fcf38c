// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements Store on SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) the database at dbPath. An existing
// file is integrity checked first.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if _, err := os.Stat(dbPath); err == nil {
		issues, err := sqlite.VerifyIntegrity(dbPath, "quick")
		if err != nil {
			return nil, fmt.Errorf("progress store: verify: %w", err)
		}
		if issues != nil {
			logger := log.WithComponent("progress")
			logger.Error().
				Str("path", dbPath).
				Strs("issues", issues).
				Msg("progress database failed integrity check")
			return nil, fmt.Errorf("progress store: %s is corrupt", dbPath)
		}
	}

	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("progress store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) migrate() error {
	var current int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS lesson_progress (
		principal_id TEXT NOT NULL,
		lesson_ref TEXT NOT NULL,
		pos_seconds INTEGER NOT NULL,
		duration_seconds INTEGER,
		finished BOOLEAN NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (principal_id, lesson_ref)
	);
	CREATE INDEX IF NOT EXISTS idx_progress_updated ON lesson_progress(updated_at);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Put(ctx context.Context, principalID, lessonRef string, state *State) error {
	const query = `
	INSERT INTO lesson_progress (principal_id, lesson_ref, pos_seconds, duration_seconds, finished, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(principal_id, lesson_ref) DO UPDATE SET
		pos_seconds = excluded.pos_seconds,
		duration_seconds = excluded.duration_seconds,
		finished = excluded.finished,
		updated_at = excluded.updated_at
	`
	_, err := s.DB.ExecContext(ctx, query,
		principalID, lessonRef, state.PosSeconds, state.DurationSeconds, state.Finished, state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SqliteStore) Get(ctx context.Context, principalID, lessonRef string) (*State, error) {
	const query = `SELECT pos_seconds, duration_seconds, finished, updated_at FROM lesson_progress WHERE principal_id = ? AND lesson_ref = ?`
	var (
		state     State
		duration  sql.NullInt64
		updatedAt string
	)
	err := s.DB.QueryRowContext(ctx, query, principalID, lessonRef).Scan(
		&state.PosSeconds, &duration, &state.Finished, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	state.DurationSeconds = duration.Int64
	state.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &state, nil
}

func (s *SqliteStore) Delete(ctx context.Context, principalID, lessonRef string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM lesson_progress WHERE principal_id = ? AND lesson_ref = ?", principalID, lessonRef)
	return err
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}
