package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SelectionStats returns a count of selections grouped by status.
func (s *Store) SelectionStats(ctx context.Context) (map[SelectionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM selections GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("selection stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[SelectionStatus]int)
	for rows.Next() {
		var status SelectionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// SessionStats returns a count of sessions grouped by status.
func (s *Store) SessionStats(ctx context.Context) (map[SessionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[SessionStatus]int)
	for rows.Next() {
		var status SessionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates selection state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.SelectionStats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case SelectionEnqueued:
			health.Enqueued += count
		case SelectionRunning:
			health.Running += count
		case SelectionFailed:
			health.Failed += count
		case SelectionImported, SelectionDup:
			health.Imported += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the catalog database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		DBPath:        s.path,
		SchemaVersion: strconv.Itoa(schemaVersion),
	}

	if s.path == "" {
		return health, errors.New("catalog database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat catalog database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("catalog database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("catalog database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping catalog database: %w", err)
	}
	health.DatabaseReadable = true

	expected := []string{"sessions", "selections", "media", "transitions", "thumb_retries"}
	present := make(map[string]struct{}, len(expected))
	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate tables: %w", err)
	}
	for _, name := range expected {
		if _, ok := present[name]; ok {
			health.TablesPresent = append(health.TablesPresent, name)
		} else {
			health.MissingTables = append(health.MissingTables, name)
		}
	}

	if len(health.MissingTables) == 0 {
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM sessions")
		if err := row.Scan(&health.TotalSessions); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count sessions: %w", err)
		}
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM selections")
		if err := row.Scan(&health.TotalSelections); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count selections: %w", err)
		}
	}

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// PruneTerminalSessions deletes terminal sessions and their selections.
// Operator command only; the orchestration layer never deletes rows.
func (s *Store) PruneTerminalSessions(ctx context.Context, before time.Time) (int64, error) {
	cutoff := formatTime(before)
	terminal := make([]any, 0, len(terminalSessionStatuses)+1)
	for status := range terminalSessionStatuses {
		terminal = append(terminal, status)
	}
	terminal = append(terminal, SessionFailed)
	placeholders := makePlaceholders(len(terminal))

	selArgs := append(append([]any{}, terminal...), cutoff)
	if err := s.execWithoutResultRetry(
		ctx,
		`DELETE FROM selections WHERE session_id IN (
            SELECT id FROM sessions WHERE status IN (`+placeholders+`) AND COALESCE(finished_at, updated_at) < ?
        )`,
		selArgs...,
	); err != nil {
		return 0, fmt.Errorf("prune selections: %w", err)
	}

	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM sessions WHERE status IN (`+placeholders+`) AND COALESCE(finished_at, updated_at) < ?`,
		selArgs...,
	)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}
