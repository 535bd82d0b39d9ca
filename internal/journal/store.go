// Package journal records the lifetime of every shell session in SQLite so
// history survives restarts of the front process.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peterje/microterm/internal/models"
	"github.com/peterje/microterm/internal/pty"
)

// ErrNotFound is returned by Get for an unknown session.
var ErrNotFound = errors.New("journal: session not found")

// Store reads and writes session records.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store over an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Started records a newly created session. If the session already ended
// (its exit was recorded first), only the descriptive columns are filled in.
func (s *Store) Started(ctx context.Context, info pty.Info) error {
	var pid any
	if info.PID > 0 {
		pid = info.PID
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, shell, pid, cols, rows, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			shell = excluded.shell,
			pid = excluded.pid,
			cols = excluded.cols,
			rows = excluded.rows,
			created_at = excluded.created_at`,
		info.ID, info.Shell, pid, info.Cols, info.Rows, models.StatusRunning, info.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("record session %s: %w", info.ID, err)
	}
	return nil
}

// Resized records a geometry change.
func (s *Store) Resized(ctx context.Context, id string, cols, rows int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET cols = ?, rows = ?, resized_at = ? WHERE id = ?`,
		cols, rows, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("record resize of %s: %w", id, err)
	}
	return nil
}

// Ended records the end of a session. Only the first end is kept.
func (s *Store) Ended(ctx context.Context, id, status string, code *int, at time.Time) error {
	var exitCode any
	if code != nil {
		exitCode = *code
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, status, exit_code, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			exit_code = excluded.exit_code,
			ended_at = excluded.ended_at
		WHERE sessions.ended_at IS NULL`,
		id, status, exitCode, at.UTC(), at.UTC())
	if err != nil {
		return fmt.Errorf("record end of %s: %w", id, err)
	}
	return nil
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, id string) (models.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, shell, pid, cols, rows, status, exit_code, created_at, resized_at, ended_at
		FROM sessions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, shell, pid, cols, rows, status, exit_code, created_at, resized_at, ended_at
		FROM sessions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	records := []models.SessionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkAbandoned ends every running record whose id is not in live. It
// reconciles the journal with the sessions that survived a restart.
func (s *Store) MarkAbandoned(ctx context.Context, live []string, at time.Time) (int64, error) {
	query := `UPDATE sessions SET status = ?, ended_at = ? WHERE status = ? AND ended_at IS NULL`
	args := []any{models.StatusAbandoned, at.UTC(), models.StatusRunning}
	if len(live) > 0 {
		query += ` AND id NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(live)), ",") + `)`
		for _, id := range live {
			args = append(args, id)
		}
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned sessions: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (models.SessionRecord, error) {
	var (
		rec       models.SessionRecord
		pid       sql.NullInt64
		exitCode  sql.NullInt64
		resizedAt sql.NullTime
		endedAt   sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.Shell, &pid, &rec.Cols, &rec.Rows, &rec.Status, &exitCode,
		&rec.CreatedAt, &resizedAt, &endedAt); err != nil {
		return models.SessionRecord{}, err
	}
	if pid.Valid {
		v := int(pid.Int64)
		rec.PID = &v
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		rec.ExitCode = &v
	}
	if resizedAt.Valid {
		rec.ResizedAt = &resizedAt.Time
	}
	if endedAt.Valid {
		rec.EndedAt = &endedAt.Time
	}
	return rec, nil
}
