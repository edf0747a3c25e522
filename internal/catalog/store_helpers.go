package catalog

import (
	"database/sql"
	"errors"
	"time"
)

const sessionColumns = "id, provider, picker_session_id, label, status, total_count, pending_count, processing_count, imported_count, dup_count, failed_count, expired_count, skipped_count, error_msg, job_ref, created_at, updated_at, finished_at"

const selectionColumns = "id, session_id, source_ref, file_name, mime_type, byte_size, status, attempts, locked_by, lock_heartbeat_at, started_at, finished_at, enqueued_at, last_transition_at, error_msg, media_id, created_at, updated_at"

const mediaColumns = "id, content_hash, file_path, file_name, byte_size, mime_type, session_id, thumb_state, imported_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanSession(scanner rowScanner) (*Session, error) {
	var (
		id          int64
		provider    string
		pickerID    sql.NullString
		label       sql.NullString
		statusStr   string
		total       int
		pending     int
		processing  int
		imported    int
		dup         int
		failed      int
		expired     int
		skipped     int
		errMsg      sql.NullString
		jobRef      sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
		finishedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&provider,
		&pickerID,
		&label,
		&statusStr,
		&total,
		&pending,
		&processing,
		&imported,
		&dup,
		&failed,
		&expired,
		&skipped,
		&errMsg,
		&jobRef,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	session := &Session{
		ID:              id,
		Provider:        Provider(provider),
		PickerSessionID: pickerID.String,
		Label:           label.String,
		Status:          SessionStatus(statusStr),
		Counts: SessionCounts{
			Total:      total,
			Pending:    pending,
			Processing: processing,
			Imported:   imported,
			Dup:        dup,
			Failed:     failed,
			Expired:    expired,
			Skipped:    skipped,
		},
		ErrorMessage: errMsg.String,
		JobRef:       jobRef.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		session.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		session.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			session.FinishedAt = &finished
		}
	}
	return session, nil
}

func scanSelection(scanner rowScanner) (*Selection, error) {
	var (
		id            int64
		sessionID     int64
		sourceRef     string
		fileName      sql.NullString
		mimeType      sql.NullString
		byteSize      sql.NullInt64
		statusStr     string
		attempts      int
		lockedBy      sql.NullString
		heartbeatRaw  sql.NullString
		startedRaw    sql.NullString
		finishedRaw   sql.NullString
		enqueuedRaw   sql.NullString
		transitionRaw sql.NullString
		errMsg        sql.NullString
		mediaID       sql.NullInt64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sessionID,
		&sourceRef,
		&fileName,
		&mimeType,
		&byteSize,
		&statusStr,
		&attempts,
		&lockedBy,
		&heartbeatRaw,
		&startedRaw,
		&finishedRaw,
		&enqueuedRaw,
		&transitionRaw,
		&errMsg,
		&mediaID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	sel := &Selection{
		ID:           id,
		SessionID:    sessionID,
		SourceRef:    sourceRef,
		FileName:     fileName.String,
		MimeType:     mimeType.String,
		ByteSize:     byteSize.Int64,
		Status:       SelectionStatus(statusStr),
		Attempts:     attempts,
		LockedBy:     lockedBy.String,
		ErrorMessage: errMsg.String,
	}
	if mediaID.Valid {
		v := mediaID.Int64
		sel.MediaID = &v
	}
	sel.LockHeartbeatAt = parseNullableTime(heartbeatRaw)
	sel.StartedAt = parseNullableTime(startedRaw)
	sel.FinishedAt = parseNullableTime(finishedRaw)
	sel.LastTransitionAt = parseNullableTime(transitionRaw)
	if enqueued, err := parseTimeString(enqueuedRaw.String); err == nil {
		sel.EnqueuedAt = enqueued
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		sel.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		sel.UpdatedAt = updated
	}
	return sel, nil
}

func scanMedia(scanner rowScanner) (*Media, error) {
	var (
		id          int64
		contentHash string
		filePath    string
		fileName    sql.NullString
		byteSize    sql.NullInt64
		mimeType    sql.NullString
		sessionID   sql.NullInt64
		thumbState  string
		importedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&contentHash,
		&filePath,
		&fileName,
		&byteSize,
		&mimeType,
		&sessionID,
		&thumbState,
		&importedRaw,
	); err != nil {
		return nil, err
	}

	media := &Media{
		ID:          id,
		ContentHash: contentHash,
		FilePath:    filePath,
		FileName:    fileName.String,
		ByteSize:    byteSize.Int64,
		MimeType:    mimeType.String,
		SessionID:   sessionID.Int64,
		ThumbState:  ThumbState(thumbState),
	}
	if imported, err := parseTimeString(importedRaw.String); err == nil {
		media.ImportedAt = imported
	}
	return media, nil
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
