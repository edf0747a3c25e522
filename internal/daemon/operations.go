package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"carousel/internal/catalog"
	"carousel/internal/consistency"
	"carousel/internal/lifecycle"
	"carousel/internal/logging"
	"carousel/internal/services"
	"carousel/internal/thumbs"
)

// Operator-facing accessors. These back the IPC surface, so every method
// takes a context and returns explicit errors instead of logging and
// swallowing them.

// SessionDetail pairs a session with its selections for show-style output.
type SessionDetail struct {
	Session     *catalog.Session
	Selections  []*catalog.Selection
	Transitions []*catalog.Transition
}

// ListSessions returns sessions, optionally filtered by status names.
func (d *Daemon) ListSessions(ctx context.Context, statusNames []string) ([]*catalog.Session, error) {
	statuses := make([]catalog.SessionStatus, 0, len(statusNames))
	for _, name := range statusNames {
		status, ok := catalog.ParseSessionStatus(name)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "sessions", "list", fmt.Sprintf("unknown session status %q", name), nil)
		}
		statuses = append(statuses, status)
	}
	return d.comps.Store.Sessions(ctx, statuses...)
}

// Session returns one session with its selections and audit trail.
func (d *Daemon) Session(ctx context.Context, id int64) (*SessionDetail, error) {
	session, err := d.comps.Store.SessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	selections, err := d.comps.Store.SelectionsBySession(ctx, id)
	if err != nil {
		return nil, err
	}
	transitions, err := d.comps.Store.TransitionsForEntity(ctx, catalog.EntitySession, id)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: session, Selections: selections, Transitions: transitions}, nil
}

// Selection returns one selection with its audit trail.
func (d *Daemon) Selection(ctx context.Context, id int64) (*catalog.Selection, []*catalog.Transition, error) {
	sel, err := d.comps.Store.SelectionByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	transitions, err := d.comps.Store.TransitionsForEntity(ctx, catalog.EntitySelection, id)
	if err != nil {
		return nil, nil, err
	}
	return sel, transitions, nil
}

// ListSelections returns selections, optionally filtered by status names.
func (d *Daemon) ListSelections(ctx context.Context, statusNames []string) ([]*catalog.Selection, error) {
	statuses := make([]catalog.SelectionStatus, 0, len(statusNames))
	for _, name := range statusNames {
		status, ok := catalog.ParseSelectionStatus(name)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "items", "list", fmt.Sprintf("unknown item status %q", name), nil)
		}
		statuses = append(statuses, status)
	}
	if len(statuses) == 0 {
		statuses = catalog.AllSelectionStatuses()
	}
	return d.comps.Store.SelectionsByStatus(ctx, statuses...)
}

// AddPickerSession registers a remote picker session for expansion. The
// expand loop picks it up on its next sweep.
func (d *Daemon) AddPickerSession(ctx context.Context, pickerSessionID, label string) (*catalog.Session, error) {
	pickerSessionID = strings.TrimSpace(pickerSessionID)
	if pickerSessionID == "" {
		return nil, services.Wrap(services.ErrValidation, "sessions", "add", "picker session id is required", nil)
	}
	if d.comps.Picker == nil {
		return nil, services.Wrap(services.ErrConfiguration, "sessions", "add", "picker is not configured", nil)
	}
	if existing, err := d.comps.Store.SessionByPickerID(ctx, pickerSessionID); err == nil && existing != nil {
		return nil, services.Wrap(services.ErrValidation, "sessions", "add",
			fmt.Sprintf("picker session %s already registered as session %d", pickerSessionID, existing.ID), nil)
	}
	session, err := d.comps.Store.CreateSession(ctx, catalog.ProviderPicker, pickerSessionID, label)
	if err != nil {
		return nil, err
	}
	d.logger.Info("picker session registered",
		logging.Int64(logging.FieldSessionID, session.ID),
		logging.String("picker_session_id", pickerSessionID))
	return session, nil
}

// CancelSession moves a session to canceled and skips its open selections.
// Running selections are left for their workers to finish; the roll-up
// ignores canceled sessions afterward.
func (d *Daemon) CancelSession(ctx context.Context, id int64, reason string) error {
	session, err := d.comps.Store.SessionByID(ctx, id)
	if err != nil {
		return err
	}
	record, err := lifecycle.TransitionSession(id, session.Status, catalog.SessionCanceled, reason)
	if err != nil {
		return services.Wrap(services.ErrValidation, "sessions", "cancel",
			fmt.Sprintf("session %d cannot be canceled from %s", id, session.Status), err)
	}
	moved, err := d.comps.Store.TransitionSession(ctx, id, session.Status, catalog.SessionCanceled, reason)
	if err != nil {
		return err
	}
	if !moved {
		return services.Wrap(services.ErrTransient, "sessions", "cancel",
			fmt.Sprintf("session %d changed status during cancel, try again", id), nil)
	}
	if err := d.comps.Store.RecordTransition(ctx, record); err != nil {
		d.logger.Warn("failed to record cancel transition", logging.Error(err))
	}

	selections, err := d.comps.Store.SelectionsBySession(ctx, id)
	if err != nil {
		return err
	}
	for _, sel := range selections {
		if sel.Status != catalog.SelectionEnqueued {
			continue
		}
		if _, err := d.comps.Store.SkipSelection(ctx, sel.ID, "session canceled"); err != nil {
			d.logger.Warn("failed to skip selection during cancel",
				logging.Int64(logging.FieldItemID, sel.ID), logging.Error(err))
		}
	}
	d.logger.Info("session canceled", logging.Int64(logging.FieldSessionID, id))
	return nil
}

// RetrySession re-opens a failed session and requeues its failed selections.
// Attempt counters are preserved so the backoff history stays honest.
func (d *Daemon) RetrySession(ctx context.Context, id int64) (int, error) {
	session, err := d.comps.Store.SessionByID(ctx, id)
	if err != nil {
		return 0, err
	}
	record, err := lifecycle.TransitionSession(id, session.Status, catalog.SessionProcessing, "operator retry")
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "sessions", "retry",
			fmt.Sprintf("session %d cannot be retried from %s", id, session.Status), err)
	}
	moved, err := d.comps.Store.TransitionSession(ctx, id, session.Status, catalog.SessionProcessing, "operator retry")
	if err != nil {
		return 0, err
	}
	if !moved {
		return 0, services.Wrap(services.ErrTransient, "sessions", "retry",
			fmt.Sprintf("session %d changed status during retry, try again", id), nil)
	}
	if err := d.comps.Store.RecordTransition(ctx, record); err != nil {
		d.logger.Warn("failed to record retry transition", logging.Error(err))
	}

	selections, err := d.comps.Store.SelectionsBySession(ctx, id)
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, sel := range selections {
		if sel.Status != catalog.SelectionFailed {
			continue
		}
		ok, err := d.comps.Store.RequeueFailedSelection(ctx, sel.ID)
		if err != nil {
			d.logger.Warn("failed to requeue selection",
				logging.Int64(logging.FieldItemID, sel.ID), logging.Error(err))
			continue
		}
		if ok {
			requeued++
		}
	}
	d.logger.Info("session retried",
		logging.Int64(logging.FieldSessionID, id), logging.Int("requeued", requeued))
	return requeued, nil
}

// RetrySelection requeues one failed selection.
func (d *Daemon) RetrySelection(ctx context.Context, id int64) error {
	sel, err := d.comps.Store.SelectionByID(ctx, id)
	if err != nil {
		return err
	}
	if sel.Status != catalog.SelectionFailed {
		return services.Wrap(services.ErrValidation, "items", "retry",
			fmt.Sprintf("item %d is %s, only failed items can be retried", id, sel.Status), nil)
	}
	ok, err := d.comps.Store.RequeueFailedSelection(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return services.Wrap(services.ErrTransient, "items", "retry",
			fmt.Sprintf("item %d changed status during retry, try again", id), nil)
	}
	return nil
}

// SkipSelection marks an enqueued selection skipped so workers never claim it.
func (d *Daemon) SkipSelection(ctx context.Context, id int64, reason string) error {
	sel, err := d.comps.Store.SelectionByID(ctx, id)
	if err != nil {
		return err
	}
	if sel.Status != catalog.SelectionEnqueued {
		return services.Wrap(services.ErrValidation, "items", "skip",
			fmt.Sprintf("item %d is %s, only enqueued items can be skipped", id, sel.Status), nil)
	}
	if reason == "" {
		reason = "operator skip"
	}
	ok, err := d.comps.Store.SkipSelection(ctx, id, reason)
	if err != nil {
		return err
	}
	if !ok {
		return services.Wrap(services.ErrTransient, "items", "skip",
			fmt.Sprintf("item %d changed status during skip, try again", id), nil)
	}
	return nil
}

// ValidateSession runs the consistency checks for one session.
func (d *Daemon) ValidateSession(ctx context.Context, id int64) (consistency.Report, error) {
	session, err := d.comps.Store.SessionByID(ctx, id)
	if err != nil {
		return consistency.Report{}, err
	}
	selections, err := d.comps.Store.SelectionsBySession(ctx, id)
	if err != nil {
		return consistency.Report{}, err
	}
	return consistency.ValidateSelections(session.Status, selections), nil
}

// QueueHealth aggregates the selection queue counters.
func (d *Daemon) QueueHealth(ctx context.Context) (catalog.HealthSummary, map[catalog.SelectionStatus]int, error) {
	summary, err := d.comps.Store.Health(ctx)
	if err != nil {
		return catalog.HealthSummary{}, nil, err
	}
	stats, err := d.comps.Store.SelectionStats(ctx)
	if err != nil {
		return catalog.HealthSummary{}, nil, err
	}
	return summary, stats, nil
}

// DatabaseHealth runs the catalog database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (catalog.DatabaseHealth, error) {
	return d.comps.Store.CheckHealth(ctx)
}

// ThumbRetries lists thumbnail retry rows, optionally only exhausted ones.
func (d *Daemon) ThumbRetries(ctx context.Context, disabledOnly bool) ([]*catalog.ThumbRetry, error) {
	return d.comps.Store.ThumbRetries(ctx, disabledOnly)
}

// RetryThumb force-schedules a thumbnail job past an exhausted budget.
func (d *Daemon) RetryThumb(ctx context.Context, mediaID int64) (thumbs.Outcome, error) {
	if d.comps.ThumbSched == nil {
		return thumbs.OutcomeError, services.Wrap(services.ErrConfiguration, "thumbs", "retry", "thumbnails are not enabled", nil)
	}
	if _, err := d.comps.Store.MediaByID(ctx, mediaID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return thumbs.OutcomeError, services.Wrap(services.ErrNotFound, "thumbs", "retry",
				fmt.Sprintf("media %d not found", mediaID), err)
		}
		return thumbs.OutcomeError, err
	}
	return d.comps.ThumbSched.ScheduleIfAllowed(ctx, mediaID, true, nil)
}

// TestNotification fires a test message through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.comps.Notifier.TestNotification(ctx)
}
