package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const thumbRetryColumns = "media_id, attempts, blockers_json, pending_job_id, disabled, updated_at"

// EnsureThumbRetry creates the retry record for a media row if it does not
// exist yet and returns the current record either way.
func (s *Store) EnsureThumbRetry(ctx context.Context, mediaID int64) (*ThumbRetry, error) {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT OR IGNORE INTO thumb_retries (media_id, attempts, disabled, updated_at) VALUES (?, 0, 0, ?)`,
		mediaID,
		formatTime(time.Now()),
	); err != nil {
		return nil, fmt.Errorf("ensure thumb retry: %w", err)
	}
	return s.ThumbRetryByMediaID(ctx, mediaID)
}

// ThumbRetryByMediaID fetches the retry record for a media row. Returns nil
// when absent.
func (s *Store) ThumbRetryByMediaID(ctx context.Context, mediaID int64) (*ThumbRetry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+thumbRetryColumns+` FROM thumb_retries WHERE media_id = ?`,
		mediaID,
	)
	record, err := scanThumbRetry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thumb retry: %w", err)
	}
	return record, nil
}

// MarkThumbScheduled commits a successful dispatch: attempts+1, the pending
// job id, and the blocker list land in one statement, guarded so a disabled
// record or one that already holds a pending job is never advanced.
func (s *Store) MarkThumbScheduled(ctx context.Context, mediaID int64, jobID, blockersJSON string) (bool, error) {
	if jobID == "" {
		return false, errors.New("job id is required")
	}
	moved, err := s.affectedRows(
		ctx,
		`UPDATE thumb_retries
         SET attempts = attempts + 1, pending_job_id = ?, blockers_json = ?, updated_at = ?
         WHERE media_id = ? AND disabled = 0 AND pending_job_id IS NULL`,
		jobID,
		nullableString(blockersJSON),
		formatTime(time.Now()),
		mediaID,
	)
	if err != nil {
		return false, fmt.Errorf("mark thumb scheduled: %w", err)
	}
	return moved, nil
}

// ClearPendingThumbJob releases the pending-job slot once the dispatched
// job ran, guarded by the job id so a newer dispatch is left alone.
func (s *Store) ClearPendingThumbJob(ctx context.Context, mediaID int64, jobID string) (bool, error) {
	cleared, err := s.affectedRows(
		ctx,
		`UPDATE thumb_retries SET pending_job_id = NULL, updated_at = ?
         WHERE media_id = ? AND pending_job_id = ?`,
		formatTime(time.Now()),
		mediaID,
		jobID,
	)
	if err != nil {
		return false, fmt.Errorf("clear pending thumb job: %w", err)
	}
	return cleared, nil
}

// DisableThumbRetry marks a retry record exhausted. Disabled records never
// schedule again without an operator force.
func (s *Store) DisableThumbRetry(ctx context.Context, mediaID int64, blockersJSON string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE thumb_retries SET disabled = 1, blockers_json = ?, updated_at = ? WHERE media_id = ?`,
		nullableString(blockersJSON),
		formatTime(time.Now()),
		mediaID,
	); err != nil {
		return fmt.Errorf("disable thumb retry: %w", err)
	}
	return nil
}

// ReenableThumbRetry clears the disabled flag for an operator-forced retry.
func (s *Store) ReenableThumbRetry(ctx context.Context, mediaID int64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE thumb_retries SET disabled = 0, updated_at = ? WHERE media_id = ?`,
		formatTime(time.Now()),
		mediaID,
	); err != nil {
		return fmt.Errorf("reenable thumb retry: %w", err)
	}
	return nil
}

// MediaNeedingThumbs returns media rows whose thumbnail is still pending or
// failed and whose retry record is neither disabled nor holding a live job.
func (s *Store) MediaNeedingThumbs(ctx context.Context) ([]*Media, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+mediaColumns+` FROM media m
         WHERE m.thumb_state IN (?, ?)
           AND NOT EXISTS (
               SELECT 1 FROM thumb_retries r
               WHERE r.media_id = m.id
                 AND (r.disabled = 1 OR r.pending_job_id IS NOT NULL)
           )
         ORDER BY m.id`,
		ThumbPending,
		ThumbFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("media needing thumbs: %w", err)
	}
	defer rows.Close()

	var items []*Media
	for rows.Next() {
		media, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, media)
	}
	return items, rows.Err()
}

// StalePendingThumbJobs returns retry records whose pending job has not been
// touched since the cutoff. A job that old has no runner behind it anymore.
func (s *Store) StalePendingThumbJobs(ctx context.Context, cutoff time.Time) ([]*ThumbRetry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+thumbRetryColumns+` FROM thumb_retries
         WHERE pending_job_id IS NOT NULL AND updated_at < ?
         ORDER BY media_id`,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("stale pending thumb jobs: %w", err)
	}
	defer rows.Close()

	var records []*ThumbRetry
	for rows.Next() {
		record, err := scanThumbRetry(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ThumbRetries lists retry records, optionally restricted to disabled ones.
func (s *Store) ThumbRetries(ctx context.Context, disabledOnly bool) ([]*ThumbRetry, error) {
	query := `SELECT ` + thumbRetryColumns + ` FROM thumb_retries ORDER BY media_id`
	if disabledOnly {
		query = `SELECT ` + thumbRetryColumns + ` FROM thumb_retries WHERE disabled = 1 ORDER BY media_id`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list thumb retries: %w", err)
	}
	defer rows.Close()

	var records []*ThumbRetry
	for rows.Next() {
		record, err := scanThumbRetry(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanThumbRetry(scanner rowScanner) (*ThumbRetry, error) {
	var (
		mediaID    int64
		attempts   int
		blockers   sql.NullString
		pendingJob sql.NullString
		disabled   sql.NullInt64
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&mediaID, &attempts, &blockers, &pendingJob, &disabled, &updatedRaw); err != nil {
		return nil, err
	}
	record := &ThumbRetry{
		MediaID:      mediaID,
		Attempts:     attempts,
		BlockersJSON: blockers.String,
		PendingJobID: pendingJob.String,
	}
	if disabled.Valid {
		record.Disabled = disabled.Int64 != 0
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}
