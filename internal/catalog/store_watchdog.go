package catalog

import (
	"context"
	"fmt"
	"time"
)

// StaleRunning returns running selections whose lease has lapsed: the
// heartbeat is missing or older than the lease cutoff, or the claim is
// older than the absolute processing cutoff regardless of heartbeats.
func (s *Store) StaleRunning(ctx context.Context, leaseCutoff, processingCutoff time.Time) ([]*Selection, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+selectionColumns+` FROM selections
         WHERE status = ?
           AND (lock_heartbeat_at IS NULL OR lock_heartbeat_at < ?
                OR (started_at IS NOT NULL AND started_at < ?))
         ORDER BY started_at, id`,
		SelectionRunning,
		formatTime(leaseCutoff),
		formatTime(processingCutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("stale running: %w", err)
	}
	defer rows.Close()
	return collectSelections(rows)
}

// ReclaimStaleSelection returns one stale running selection to the queue,
// or fails it when the retry budget is spent. The update re-applies the
// staleness predicate and pins the observed attempt count, so a row whose
// worker came back to life in the meantime is left alone.
func (s *Store) ReclaimStaleSelection(ctx context.Context, sel *Selection, leaseCutoff, processingCutoff time.Time, maxAttempts int, reason string) (SelectionStatus, bool, error) {
	if sel == nil {
		return "", false, fmt.Errorf("selection is nil")
	}
	target := SelectionEnqueued
	if sel.Attempts >= maxAttempts {
		target = SelectionFailed
	}
	now := formatTime(time.Now())
	reclaimed, err := s.affectedRows(
		ctx,
		`UPDATE selections
         SET status = ?, locked_by = NULL, lock_heartbeat_at = NULL, started_at = NULL,
             last_transition_at = ?, updated_at = ?, error_msg = ?
         WHERE id = ? AND status = ? AND attempts = ?
           AND (lock_heartbeat_at IS NULL OR lock_heartbeat_at < ?
                OR (started_at IS NOT NULL AND started_at < ?))`,
		target,
		now,
		now,
		nullableString(reason),
		sel.ID,
		SelectionRunning,
		sel.Attempts,
		formatTime(leaseCutoff),
		formatTime(processingCutoff),
	)
	if err != nil {
		return "", false, fmt.Errorf("reclaim stale selection: %w", err)
	}
	return target, reclaimed, nil
}

// FailedDueForRetry returns failed selections still inside their retry
// budget whose backoff window has elapsed: last_transition_at plus
// base*2^attempts is in the past.
func (s *Store) FailedDueForRetry(ctx context.Context, base time.Duration, maxAttempts int, now time.Time) ([]*Selection, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+selectionColumns+` FROM selections
         WHERE status = ? AND attempts < ? AND last_transition_at IS NOT NULL
         ORDER BY last_transition_at, id`,
		SelectionFailed,
		maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed due for retry: %w", err)
	}
	defer rows.Close()

	candidates, err := collectSelections(rows)
	if err != nil {
		return nil, err
	}

	var due []*Selection
	for _, sel := range candidates {
		if sel.LastTransitionAt == nil {
			continue
		}
		if !sel.LastTransitionAt.Add(BackoffDelay(base, sel.Attempts)).After(now) {
			due = append(due, sel)
		}
	}
	return due, nil
}

// BackoffDelay computes the exponential retry delay base*2^attempts.
func BackoffDelay(base time.Duration, attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// Cap the shift so pathological attempt counts cannot overflow.
	if attempts > 30 {
		attempts = 30
	}
	return base * time.Duration(1<<uint(attempts))
}

// StuckEnqueued returns selections that have sat enqueued longer than the
// threshold without a worker picking them up.
func (s *Store) StuckEnqueued(ctx context.Context, cutoff time.Time) ([]*Selection, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+selectionColumns+` FROM selections
         WHERE status = ? AND COALESCE(last_transition_at, enqueued_at) < ?
         ORDER BY enqueued_at, id`,
		SelectionEnqueued,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("stuck enqueued: %w", err)
	}
	defer rows.Close()
	return collectSelections(rows)
}
