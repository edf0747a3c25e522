package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InsertMedia catalogs an imported file. A UNIQUE violation on the content
// hash surfaces as ErrDuplicateHash so the caller can take the dup path.
func (s *Store) InsertMedia(ctx context.Context, media *Media) (*Media, error) {
	if media == nil {
		return nil, errors.New("media is nil")
	}
	if media.ContentHash == "" {
		return nil, errors.New("content hash is required")
	}
	state := media.ThumbState
	if state == "" {
		state = ThumbPending
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO media (content_hash, file_path, file_name, byte_size, mime_type, session_id, thumb_state, imported_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		media.ContentHash,
		media.FilePath,
		nullableString(media.FileName),
		media.ByteSize,
		nullableString(media.MimeType),
		media.SessionID,
		state,
		formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHash, media.ContentHash)
		}
		return nil, fmt.Errorf("insert media: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.MediaByID(ctx, id)
}

// MediaByID fetches a media row by identifier. Returns nil when absent.
func (s *Store) MediaByID(ctx context.Context, id int64) (*Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	media, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return media, nil
}

// MediaByHash fetches a media row by content hash. Returns nil when absent.
func (s *Store) MediaByHash(ctx context.Context, contentHash string) (*Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE content_hash = ?`, contentHash)
	media, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media by hash: %w", err)
	}
	return media, nil
}

// MediaBySession returns media imported by one session, oldest first.
func (s *Store) MediaBySession(ctx context.Context, sessionID int64) ([]*Media, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+mediaColumns+` FROM media WHERE session_id = ? ORDER BY imported_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("media by session: %w", err)
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

// SetThumbState records the thumbnail pipeline outcome for a media row.
func (s *Store) SetThumbState(ctx context.Context, mediaID int64, state ThumbState) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE media SET thumb_state = ? WHERE id = ?`,
		state,
		mediaID,
	); err != nil {
		return fmt.Errorf("set thumb state: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: media.content_hash")
}
