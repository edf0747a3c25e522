package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession inserts a new session in pending status.
func (s *Store) CreateSession(ctx context.Context, provider Provider, pickerSessionID, label string) (*Session, error) {
	timestamp := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO sessions (provider, picker_session_id, label, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		string(provider),
		nullableString(pickerSessionID),
		nullableString(label),
		SessionPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.SessionByID(ctx, id)
}

// SessionByID fetches a session by identifier. Returns nil when absent.
func (s *Store) SessionByID(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// SessionByPickerID returns the most recent session created for an external
// picker session identifier.
func (s *Store) SessionByPickerID(ctx context.Context, pickerSessionID string) (*Session, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE picker_session_id = ? ORDER BY id DESC LIMIT 1`,
		pickerSessionID,
	)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by picker id: %w", err)
	}
	return session, nil
}

// Sessions returns sessions filtered by status set (or all sessions when no
// status is provided), oldest first.
func (s *Store) Sessions(ctx context.Context, statuses ...SessionStatus) ([]*Session, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + sessionColumns + ` FROM sessions`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// TransitionSession moves a session from an expected status to a new one.
// The update matches only when the session still holds the expected status;
// the return value reports whether it did.
func (s *Store) TransitionSession(ctx context.Context, id int64, from, to SessionStatus, errMsg string) (bool, error) {
	moved, err := s.affectedRows(
		ctx,
		`UPDATE sessions SET status = ?, error_msg = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		nullableString(errMsg),
		formatTime(time.Now()),
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("transition session: %w", err)
	}
	return moved, nil
}

// ForceSessionStatus overwrites a session status regardless of its current
// value. Recovery paths only; callers must log the forced transition.
func (s *Store) ForceSessionStatus(ctx context.Context, id int64, to SessionStatus, errMsg string) (bool, error) {
	moved, err := s.affectedRows(
		ctx,
		`UPDATE sessions SET status = ?, error_msg = ?, updated_at = ? WHERE id = ?`,
		to,
		nullableString(errMsg),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("force session status: %w", err)
	}
	return moved, nil
}

// SetSessionJobRef records the external job-tracking key for a session.
func (s *Store) SetSessionJobRef(ctx context.Context, id int64, jobRef string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sessions SET job_ref = ?, updated_at = ? WHERE id = ?`,
		nullableString(jobRef),
		formatTime(time.Now()),
		id,
	); err != nil {
		return fmt.Errorf("set session job ref: %w", err)
	}
	return nil
}

// FinishSession commits a roll-up: final status, recomputed counters, and
// finished_at in one statement, guarded so terminal sessions are never
// rolled up twice.
func (s *Store) FinishSession(ctx context.Context, id int64, to SessionStatus, counts SessionCounts, errMsg string) (bool, error) {
	now := formatTime(time.Now())
	activeArgs := make([]any, 0, len(activeSessionStatuses))
	for _, status := range activeSessionStatuses {
		activeArgs = append(activeArgs, status)
	}
	args := []any{
		to,
		counts.Total, counts.Pending, counts.Processing,
		counts.Imported, counts.Dup, counts.Failed, counts.Expired, counts.Skipped,
		nullableString(errMsg),
		now,
		now,
		id,
	}
	args = append(args, activeArgs...)
	moved, err := s.affectedRows(
		ctx,
		`UPDATE sessions
         SET status = ?,
             total_count = ?, pending_count = ?, processing_count = ?,
             imported_count = ?, dup_count = ?, failed_count = ?, expired_count = ?, skipped_count = ?,
             error_msg = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status IN (`+makePlaceholders(len(activeSessionStatuses))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("finish session: %w", err)
	}
	return moved, nil
}

// RefreshSessionCounts recomputes the derived counters without touching the
// session status. Used while a session is still in flight.
func (s *Store) RefreshSessionCounts(ctx context.Context, id int64) (SessionCounts, error) {
	counts, err := s.CountsBySession(ctx, id)
	if err != nil {
		return SessionCounts{}, err
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sessions
         SET total_count = ?, pending_count = ?, processing_count = ?,
             imported_count = ?, dup_count = ?, failed_count = ?, expired_count = ?, skipped_count = ?,
             updated_at = ?
         WHERE id = ?`,
		counts.Total, counts.Pending, counts.Processing,
		counts.Imported, counts.Dup, counts.Failed, counts.Expired, counts.Skipped,
		formatTime(time.Now()),
		id,
	); err != nil {
		return SessionCounts{}, fmt.Errorf("refresh session counts: %w", err)
	}
	return counts, nil
}

// RollupCandidates returns active sessions whose selections have all reached
// a resting state. Failed selections still inside their retry budget keep a
// session out of the candidate set.
func (s *Store) RollupCandidates(ctx context.Context, maxAttempts int) ([]*Session, error) {
	placeholders := makePlaceholders(len(activeSessionStatuses))
	args := make([]any, 0, len(activeSessionStatuses)+3)
	for _, status := range activeSessionStatuses {
		args = append(args, status)
	}
	args = append(args, SelectionEnqueued, SelectionRunning, SelectionFailed, maxAttempts)

	query := `SELECT ` + sessionColumns + ` FROM sessions s
        WHERE s.status IN (` + placeholders + `)
          AND EXISTS (SELECT 1 FROM selections WHERE session_id = s.id)
          AND NOT EXISTS (
              SELECT 1 FROM selections c
              WHERE c.session_id = s.id
                AND (c.status IN (?, ?) OR (c.status = ? AND c.attempts < ?))
          )
        ORDER BY s.created_at, s.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("rollup candidates: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
