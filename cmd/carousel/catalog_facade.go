package main

import (
	"context"
	"fmt"

	"carousel/internal/catalog"
	"carousel/internal/consistency"
	"carousel/internal/ipc"
)

// catalogReader is the read-only surface shared by the listing and
// inspection commands. It is served over IPC when the daemon is up and
// directly from the catalog database when it is not.
type catalogReader interface {
	Sessions(ctx context.Context, statuses []string) ([]ipc.Session, error)
	SessionDetail(ctx context.Context, id int64) (*ipc.SessionShowResponse, error)
	Items(ctx context.Context, statuses []string) ([]ipc.Selection, error)
	Item(ctx context.Context, id int64) (*ipc.ItemShowResponse, error)
	ValidateSession(ctx context.Context, id int64) (*ipc.SessionValidateResponse, error)
	QueueHealth(ctx context.Context) (*ipc.QueueHealthResponse, error)
	DatabaseHealth(ctx context.Context) (*ipc.DatabaseHealthResponse, error)
	ThumbRetries(ctx context.Context, disabledOnly bool) ([]ipc.ThumbRetry, error)
}

// withReader dials the daemon and falls back to a direct read-only store
// when the socket is absent. Mutating commands never take this path.
func (c *commandContext) withReader(ctx context.Context, fn func(catalogReader) error) error {
	client, err := ipc.Dial(c.socketPath())
	if err == nil {
		defer client.Close()
		return fn(&ipcReader{client: client})
	}

	cfg, cfgErr := c.ensureConfig()
	if cfgErr != nil {
		return cfgErr
	}
	store, openErr := catalog.Open(cfg)
	if openErr != nil {
		return wrapDialError(err, c.socketPath())
	}
	defer store.Close()
	return fn(&storeReader{store: store})
}

// --- IPC adapter ---

type ipcReader struct {
	client *ipc.Client
}

func (r *ipcReader) Sessions(_ context.Context, statuses []string) ([]ipc.Session, error) {
	resp, err := r.client.SessionList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (r *ipcReader) SessionDetail(_ context.Context, id int64) (*ipc.SessionShowResponse, error) {
	return r.client.SessionShow(id)
}

func (r *ipcReader) Items(_ context.Context, statuses []string) ([]ipc.Selection, error) {
	resp, err := r.client.ItemList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (r *ipcReader) Item(_ context.Context, id int64) (*ipc.ItemShowResponse, error) {
	return r.client.ItemShow(id)
}

func (r *ipcReader) ValidateSession(_ context.Context, id int64) (*ipc.SessionValidateResponse, error) {
	return r.client.SessionValidate(id)
}

func (r *ipcReader) QueueHealth(_ context.Context) (*ipc.QueueHealthResponse, error) {
	return r.client.QueueHealth()
}

func (r *ipcReader) DatabaseHealth(_ context.Context) (*ipc.DatabaseHealthResponse, error) {
	return r.client.DatabaseHealth()
}

func (r *ipcReader) ThumbRetries(_ context.Context, disabledOnly bool) ([]ipc.ThumbRetry, error) {
	resp, err := r.client.ThumbList(disabledOnly)
	if err != nil {
		return nil, err
	}
	return resp.Retries, nil
}

// --- Direct store adapter ---

type storeReader struct {
	store *catalog.Store
}

func (r *storeReader) Sessions(ctx context.Context, statuses []string) ([]ipc.Session, error) {
	filters, err := parseSessionStatuses(statuses)
	if err != nil {
		return nil, err
	}
	sessions, err := r.store.Sessions(ctx, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]ipc.Session, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, wireSession(session))
	}
	return out, nil
}

func (r *storeReader) SessionDetail(ctx context.Context, id int64) (*ipc.SessionShowResponse, error) {
	session, err := r.store.SessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	selections, err := r.store.SelectionsBySession(ctx, id)
	if err != nil {
		return nil, err
	}
	transitions, err := r.store.TransitionsForEntity(ctx, catalog.EntitySession, id)
	if err != nil {
		return nil, err
	}
	resp := &ipc.SessionShowResponse{Session: wireSession(session)}
	for _, sel := range selections {
		resp.Items = append(resp.Items, wireSelection(sel))
	}
	resp.Transitions = wireTransitions(transitions)
	return resp, nil
}

func (r *storeReader) Items(ctx context.Context, statuses []string) ([]ipc.Selection, error) {
	filters, err := parseSelectionStatuses(statuses)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		filters = catalog.AllSelectionStatuses()
	}
	selections, err := r.store.SelectionsByStatus(ctx, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]ipc.Selection, 0, len(selections))
	for _, sel := range selections {
		out = append(out, wireSelection(sel))
	}
	return out, nil
}

func (r *storeReader) Item(ctx context.Context, id int64) (*ipc.ItemShowResponse, error) {
	selection, err := r.store.SelectionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	transitions, err := r.store.TransitionsForEntity(ctx, catalog.EntitySelection, id)
	if err != nil {
		return nil, err
	}
	return &ipc.ItemShowResponse{
		Item:        wireSelection(selection),
		Transitions: wireTransitions(transitions),
	}, nil
}

func (r *storeReader) ValidateSession(ctx context.Context, id int64) (*ipc.SessionValidateResponse, error) {
	session, err := r.store.SessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	selections, err := r.store.SelectionsBySession(ctx, id)
	if err != nil {
		return nil, err
	}
	report := consistency.ValidateSelections(session.Status, selections)
	resp := &ipc.SessionValidateResponse{
		Consistent:      report.Consistent(),
		SessionStatus:   string(report.SessionStatus),
		Recommendations: report.Recommendations,
	}
	for _, issue := range report.Issues {
		resp.Issues = append(resp.Issues, ipc.ValidationIssue{
			Code:   string(issue.Code),
			Detail: issue.Detail,
		})
	}
	return resp, nil
}

func (r *storeReader) QueueHealth(ctx context.Context) (*ipc.QueueHealthResponse, error) {
	summary, err := r.store.Health(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := r.store.SelectionStats(ctx)
	if err != nil {
		return nil, err
	}
	resp := &ipc.QueueHealthResponse{
		Total:    summary.Total,
		Enqueued: summary.Enqueued,
		Running:  summary.Running,
		Failed:   summary.Failed,
		Imported: summary.Imported,
		ByStatus: make(map[string]int, len(stats)),
	}
	for status, count := range stats {
		resp.ByStatus[string(status)] = count
	}
	return resp, nil
}

func (r *storeReader) DatabaseHealth(ctx context.Context) (*ipc.DatabaseHealthResponse, error) {
	health, err := r.store.CheckHealth(ctx)
	if err != nil {
		return nil, err
	}
	return &ipc.DatabaseHealthResponse{
		DBPath:           health.DBPath,
		DatabaseExists:   health.DatabaseExists,
		DatabaseReadable: health.DatabaseReadable,
		SchemaVersion:    health.SchemaVersion,
		TablesPresent:    health.TablesPresent,
		MissingTables:    health.MissingTables,
		IntegrityCheck:   health.IntegrityCheck,
		TotalSessions:    health.TotalSessions,
		TotalItems:       health.TotalSelections,
		Error:            health.Error,
	}, nil
}

func (r *storeReader) ThumbRetries(ctx context.Context, disabledOnly bool) ([]ipc.ThumbRetry, error) {
	retries, err := r.store.ThumbRetries(ctx, disabledOnly)
	if err != nil {
		return nil, err
	}
	out := make([]ipc.ThumbRetry, 0, len(retries))
	for _, retry := range retries {
		out = append(out, ipc.ThumbRetry{
			MediaID:      retry.MediaID,
			Attempts:     retry.Attempts,
			Blockers:     retry.BlockersJSON,
			PendingJobID: retry.PendingJobID,
			Disabled:     retry.Disabled,
			UpdatedAt:    retry.UpdatedAt,
		})
	}
	return out, nil
}

func parseSessionStatuses(names []string) ([]catalog.SessionStatus, error) {
	parsed := make([]catalog.SessionStatus, 0, len(names))
	for _, name := range names {
		status, ok := catalog.ParseSessionStatus(name)
		if !ok {
			return nil, fmt.Errorf("unknown session status %q", name)
		}
		parsed = append(parsed, status)
	}
	return parsed, nil
}

func parseSelectionStatuses(names []string) ([]catalog.SelectionStatus, error) {
	parsed := make([]catalog.SelectionStatus, 0, len(names))
	for _, name := range names {
		status, ok := catalog.ParseSelectionStatus(name)
		if !ok {
			return nil, fmt.Errorf("unknown item status %q", name)
		}
		parsed = append(parsed, status)
	}
	return parsed, nil
}

func wireSession(session *catalog.Session) ipc.Session {
	return ipc.Session{
		ID:              session.ID,
		Provider:        string(session.Provider),
		PickerSessionID: session.PickerSessionID,
		Label:           session.Label,
		Status:          string(session.Status),
		Total:           session.Counts.Total,
		Imported:        session.Counts.Imported,
		Dup:             session.Counts.Dup,
		Failed:          session.Counts.Failed,
		Expired:         session.Counts.Expired,
		Skipped:         session.Counts.Skipped,
		ErrorMessage:    session.ErrorMessage,
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
		FinishedAt:      session.FinishedAt,
	}
}

func wireSelection(selection *catalog.Selection) ipc.Selection {
	return ipc.Selection{
		ID:           selection.ID,
		SessionID:    selection.SessionID,
		SourceRef:    selection.SourceRef,
		FileName:     selection.FileName,
		MimeType:     selection.MimeType,
		ByteSize:     selection.ByteSize,
		Status:       string(selection.Status),
		Attempts:     selection.Attempts,
		LockedBy:     selection.LockedBy,
		ErrorMessage: selection.ErrorMessage,
		MediaID:      selection.MediaID,
		EnqueuedAt:   selection.EnqueuedAt,
		StartedAt:    selection.StartedAt,
		FinishedAt:   selection.FinishedAt,
	}
}

func wireTransitions(transitions []*catalog.Transition) []ipc.Transition {
	out := make([]ipc.Transition, 0, len(transitions))
	for _, tr := range transitions {
		out = append(out, ipc.Transition{
			Entity:     tr.Entity,
			EntityID:   tr.EntityID,
			FromStatus: tr.FromStatus,
			ToStatus:   tr.ToStatus,
			Reason:     tr.Reason,
			Forced:     tr.Forced,
			CreatedAt:  tr.CreatedAt,
		})
	}
	return out
}
