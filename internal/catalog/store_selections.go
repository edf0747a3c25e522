package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AddSelections bulk-inserts selections for a session in enqueued status.
func (s *Store) AddSelections(ctx context.Context, sessionID int64, specs []SelectionSpec) ([]*Selection, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	timestamp := formatTime(time.Now())

	ids := make([]int64, 0, len(specs))
	for _, spec := range specs {
		res, err := s.execWithRetry(
			ctx,
			`INSERT INTO selections (
                session_id, source_ref, file_name, mime_type, byte_size,
                status, enqueued_at, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID,
			spec.SourceRef,
			nullableString(spec.FileName),
			nullableString(spec.MimeType),
			spec.ByteSize,
			SelectionEnqueued,
			timestamp,
			timestamp,
			timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("insert selection: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		ids = append(ids, id)
	}

	selections := make([]*Selection, 0, len(ids))
	for _, id := range ids {
		sel, err := s.SelectionByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if sel != nil {
			selections = append(selections, sel)
		}
	}
	return selections, nil
}

// SelectionByID fetches a selection by identifier. Returns nil when absent.
func (s *Store) SelectionByID(ctx context.Context, id int64) (*Selection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectionColumns+` FROM selections WHERE id = ?`, id)
	sel, err := scanSelection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get selection: %w", err)
	}
	return sel, nil
}

// SelectionsBySession returns every selection for a session, oldest first.
func (s *Store) SelectionsBySession(ctx context.Context, sessionID int64) ([]*Selection, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+selectionColumns+` FROM selections WHERE session_id = ? ORDER BY enqueued_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("selections by session: %w", err)
	}
	defer rows.Close()
	return collectSelections(rows)
}

// SelectionsByStatus returns selections matching a status set, oldest first.
func (s *Store) SelectionsByStatus(ctx context.Context, statuses ...SelectionStatus) ([]*Selection, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+selectionColumns+` FROM selections WHERE status IN (`+placeholders+`) ORDER BY enqueued_at, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("selections by status: %w", err)
	}
	defer rows.Close()
	return collectSelections(rows)
}

// NextEnqueued returns up to limit claim candidates, oldest first. A
// candidate is only a hint; the claim decides ownership.
func (s *Store) NextEnqueued(ctx context.Context, limit int) ([]*Selection, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+selectionColumns+` FROM selections WHERE status = ? ORDER BY enqueued_at, id LIMIT ?`,
		SelectionEnqueued,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("next enqueued: %w", err)
	}
	defer rows.Close()
	return collectSelections(rows)
}

// CountsBySession aggregates selection statuses for one session with a
// single grouped query.
func (s *Store) CountsBySession(ctx context.Context, sessionID int64) (SessionCounts, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM selections WHERE session_id = ? GROUP BY status`,
		sessionID,
	)
	if err != nil {
		return SessionCounts{}, fmt.Errorf("counts by session: %w", err)
	}
	defer rows.Close()

	var counts SessionCounts
	for rows.Next() {
		var status SelectionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return SessionCounts{}, err
		}
		counts.Total += count
		switch status {
		case SelectionEnqueued:
			counts.Pending += count
		case SelectionRunning:
			counts.Processing += count
		case SelectionImported:
			counts.Imported += count
		case SelectionDup:
			counts.Dup += count
		case SelectionFailed:
			counts.Failed += count
		case SelectionExpired:
			counts.Expired += count
		case SelectionSkipped:
			counts.Skipped += count
		}
	}
	return counts, rows.Err()
}

// ClaimSelection attempts to take exclusive ownership of an enqueued
// selection. The entire claim is one conditional update: set running, stamp
// the lock owner, heartbeat, and start time, and bump attempts, but only if
// the row is still enqueued. Zero affected rows means someone else won or
// the row moved on; the re-read merely classifies the loss.
func (s *Store) ClaimSelection(ctx context.Context, id, sessionID int64, workerID string) (ClaimResult, error) {
	if workerID == "" {
		return ClaimResult{}, errors.New("worker id is required")
	}
	now := formatTime(time.Now())
	claimed, err := s.affectedRows(
		ctx,
		`UPDATE selections
         SET status = ?, locked_by = ?, lock_heartbeat_at = ?, started_at = ?,
             attempts = attempts + 1, last_transition_at = ?, updated_at = ?, error_msg = NULL
         WHERE id = ? AND session_id = ? AND status = ?`,
		SelectionRunning,
		workerID,
		now,
		now,
		now,
		now,
		id,
		sessionID,
		SelectionEnqueued,
	)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("claim selection: %w", err)
	}

	if claimed {
		sel, err := s.SelectionByID(ctx, id)
		if err != nil {
			return ClaimResult{}, err
		}
		if sel == nil {
			return ClaimResult{Outcome: ClaimNotFound}, nil
		}
		return ClaimResult{Outcome: ClaimWon, Selection: sel}, nil
	}

	sel, err := s.SelectionByID(ctx, id)
	if err != nil {
		return ClaimResult{}, err
	}
	if sel == nil || sel.SessionID != sessionID {
		return ClaimResult{Outcome: ClaimNotFound}, nil
	}
	return ClaimResult{Outcome: ClaimAlreadyTaken}, nil
}

// RenewLease refreshes the heartbeat for a selection this worker owns.
// Zero affected rows means the lease is gone: the watchdog reclaimed the
// row or the row advanced. That is a signal, not an error.
func (s *Store) RenewLease(ctx context.Context, id int64, workerID string) (bool, error) {
	now := formatTime(time.Now())
	renewed, err := s.affectedRows(
		ctx,
		`UPDATE selections SET lock_heartbeat_at = ?, updated_at = ?
         WHERE id = ? AND locked_by = ? AND status = ?`,
		now,
		now,
		id,
		workerID,
		SelectionRunning,
	)
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed, nil
}

// FinalizeSelection commits a terminal outcome for a selection this worker
// owns, clearing the lock fields in the same statement. Zero affected rows
// means the lease was lost before the result landed; the caller logs the
// anomaly and drops the result.
func (s *Store) FinalizeSelection(ctx context.Context, id int64, workerID string, terminal SelectionStatus, errMsg string, mediaID *int64) (bool, error) {
	if !IsSettledSelectionStatus(terminal) {
		return false, fmt.Errorf("finalize to non-terminal status %q", terminal)
	}
	now := formatTime(time.Now())
	finalized, err := s.affectedRows(
		ctx,
		`UPDATE selections
         SET status = ?, locked_by = NULL, lock_heartbeat_at = NULL,
             finished_at = ?, last_transition_at = ?, updated_at = ?,
             error_msg = ?, media_id = COALESCE(?, media_id)
         WHERE id = ? AND locked_by = ? AND status = ?`,
		terminal,
		now,
		now,
		now,
		nullableString(errMsg),
		nullableInt64(mediaID),
		id,
		workerID,
		SelectionRunning,
	)
	if err != nil {
		return false, fmt.Errorf("finalize selection: %w", err)
	}
	return finalized, nil
}

// ReleaseForRetry hands a running selection back to the queue after a
// transient failure, keeping the attempt count. Guarded by lock ownership
// like FinalizeSelection.
func (s *Store) ReleaseForRetry(ctx context.Context, id int64, workerID, errMsg string) (bool, error) {
	now := formatTime(time.Now())
	released, err := s.affectedRows(
		ctx,
		`UPDATE selections
         SET status = ?, locked_by = NULL, lock_heartbeat_at = NULL, started_at = NULL,
             last_transition_at = ?, updated_at = ?, error_msg = ?
         WHERE id = ? AND locked_by = ? AND status = ?`,
		SelectionEnqueued,
		now,
		now,
		nullableString(errMsg),
		id,
		workerID,
		SelectionRunning,
	)
	if err != nil {
		return false, fmt.Errorf("release for retry: %w", err)
	}
	return released, nil
}

// RequeueFailedSelection moves a failed selection back to enqueued. This is
// the only legal edge out of failed; attempts are preserved.
func (s *Store) RequeueFailedSelection(ctx context.Context, id int64) (bool, error) {
	now := formatTime(time.Now())
	moved, err := s.affectedRows(
		ctx,
		`UPDATE selections
         SET status = ?, last_transition_at = ?, updated_at = ?, error_msg = NULL
         WHERE id = ? AND status = ?`,
		SelectionEnqueued,
		now,
		now,
		id,
		SelectionFailed,
	)
	if err != nil {
		return false, fmt.Errorf("requeue failed selection: %w", err)
	}
	return moved, nil
}

// SkipSelection marks an enqueued selection skipped, typically during
// session cancellation.
func (s *Store) SkipSelection(ctx context.Context, id int64, reason string) (bool, error) {
	now := formatTime(time.Now())
	skipped, err := s.affectedRows(
		ctx,
		`UPDATE selections
         SET status = ?, finished_at = ?, last_transition_at = ?, updated_at = ?, error_msg = ?
         WHERE id = ? AND status = ?`,
		SelectionSkipped,
		now,
		now,
		now,
		nullableString(reason),
		id,
		SelectionEnqueued,
	)
	if err != nil {
		return false, fmt.Errorf("skip selection: %w", err)
	}
	return skipped, nil
}

func collectSelections(rows *sql.Rows) ([]*Selection, error) {
	var selections []*Selection
	for rows.Next() {
		sel, err := scanSelection(rows)
		if err != nil {
			return nil, err
		}
		selections = append(selections, sel)
	}
	return selections, rows.Err()
}
