package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const transitionColumns = "id, entity, entity_id, from_status, to_status, reason, forced, meta_json, created_at"

// RecordTransition appends one immutable audit record. The audit trail is a
// side channel: callers log failures here but never roll back the mutation
// the record describes.
func (s *Store) RecordTransition(ctx context.Context, rec Transition) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO transitions (entity, entity_id, from_status, to_status, reason, forced, meta_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Entity,
		rec.EntityID,
		rec.FromStatus,
		rec.ToStatus,
		nullableString(rec.Reason),
		boolToInt(rec.Forced),
		nullableString(rec.MetaJSON),
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// TransitionsForEntity returns the audit trail for one entity, oldest first.
func (s *Store) TransitionsForEntity(ctx context.Context, entity string, entityID int64) ([]*Transition, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+transitionColumns+` FROM transitions WHERE entity = ? AND entity_id = ? ORDER BY id`,
		entity,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("transitions for entity: %w", err)
	}
	defer rows.Close()

	var records []*Transition
	for rows.Next() {
		rec, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanTransition(scanner rowScanner) (*Transition, error) {
	var (
		id         int64
		entity     string
		entityID   int64
		fromStatus string
		toStatus   string
		reason     sql.NullString
		forced     sql.NullInt64
		metaJSON   sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&id, &entity, &entityID, &fromStatus, &toStatus, &reason, &forced, &metaJSON, &createdRaw); err != nil {
		return nil, err
	}
	rec := &Transition{
		ID:         id,
		Entity:     entity,
		EntityID:   entityID,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Reason:     reason.String,
		MetaJSON:   metaJSON.String,
	}
	if forced.Valid {
		rec.Forced = forced.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	return rec, nil
}
