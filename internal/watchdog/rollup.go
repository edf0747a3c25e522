package watchdog

import (
	"context"
	"fmt"
	"strings"

	"carousel/internal/catalog"
	"carousel/internal/consistency"
	"carousel/internal/lifecycle"
	"carousel/internal/logging"
)

// rollupSessions finishes every session whose selections have all settled:
// recompute the counters, commit the terminal status, update the linked
// job-tracking record, and notify. Re-running is free because FinishSession
// only matches sessions still in an active status.
func (w *Watchdog) rollupSessions(ctx context.Context) (int, error) {
	candidates, err := w.store.RollupCandidates(ctx, w.cfg.Import.MaxAttempts)
	if err != nil {
		w.logger.Error("rollup scan failed", logging.Error(err), logging.String(logging.FieldEventType, "rollup_scan_failed"))
		return 0, err
	}

	rolled := 0
	for _, session := range candidates {
		counts, err := w.store.CountsBySession(ctx, session.ID)
		if err != nil {
			w.logger.Error("rollup count failed",
				logging.Error(err),
				logging.Int64(logging.FieldSessionID, session.ID),
				logging.String(logging.FieldEventType, "rollup_count_failed"),
			)
			return rolled, err
		}

		target, errMsg := rollupTarget(counts)
		moved, err := w.store.FinishSession(ctx, session.ID, target, counts, errMsg)
		if err != nil {
			w.logger.Error("rollup finish failed",
				logging.Error(err),
				logging.Int64(logging.FieldSessionID, session.ID),
				logging.String(logging.FieldEventType, "rollup_finish_failed"),
			)
			return rolled, err
		}
		if !moved {
			// Another sweeper finished it between the scan and this write.
			continue
		}
		rolled++
		w.auditSession(ctx, session.ID, session.Status, target, errMsg)
		w.logger.Info("session rolled up",
			logging.Int64(logging.FieldSessionID, session.ID),
			logging.String("outcome", string(target)),
			logging.Int("imported", counts.Imported),
			logging.Int("dup", counts.Dup),
			logging.Int("failed", counts.Failed),
			logging.Int("expired", counts.Expired),
			logging.Int("skipped", counts.Skipped),
			logging.String(logging.FieldEventType, "session_rollup"),
		)

		w.recordJobOutcome(ctx, session, target, counts)
		w.notifyRollup(ctx, session, target, counts)
	}
	return rolled, nil
}

// rollupTarget applies the roll-up policy: any success lands the session
// imported; otherwise failures decide between failed and error.
func rollupTarget(counts catalog.SessionCounts) (catalog.SessionStatus, string) {
	switch {
	case counts.Succeeded() > 0:
		var detail string
		if counts.Failed > 0 || counts.Expired > 0 {
			detail = fmt.Sprintf("%d failed, %d expired of %d", counts.Failed, counts.Expired, counts.Total)
		}
		return catalog.SessionImported, detail
	case counts.Failed > 0:
		return catalog.SessionFailed, fmt.Sprintf("%d of %d selections failed", counts.Failed, counts.Total)
	default:
		return catalog.SessionError, fmt.Sprintf("nothing imported (%d expired, %d skipped)", counts.Expired, counts.Skipped)
	}
}

// recordJobOutcome updates the optional job-tracking record. Best effort:
// absence of the collaborator or its failure never blocks roll-up.
func (w *Watchdog) recordJobOutcome(ctx context.Context, session *catalog.Session, target catalog.SessionStatus, counts catalog.SessionCounts) {
	if w.tracker == nil {
		return
	}
	jobRef, err := w.tracker.RecordOutcome(ctx, session, target, counts)
	if err != nil {
		w.logger.Warn("job-tracking update failed",
			logging.Error(err),
			logging.Int64(logging.FieldSessionID, session.ID),
			logging.String(logging.FieldEventType, "job_tracking_failed"),
		)
		return
	}
	if jobRef = strings.TrimSpace(jobRef); jobRef == "" || jobRef == session.JobRef {
		return
	}
	if err := w.store.SetSessionJobRef(ctx, session.ID, jobRef); err != nil {
		w.logger.Warn("job ref persist failed",
			logging.Error(err),
			logging.Int64(logging.FieldSessionID, session.ID),
		)
	}
}

func (w *Watchdog) notifyRollup(ctx context.Context, session *catalog.Session, target catalog.SessionStatus, counts catalog.SessionCounts) {
	if w.notifier == nil {
		return
	}
	var err error
	switch target {
	case catalog.SessionImported:
		err = w.notifier.NotifySessionImported(ctx, session.Label, counts)
	default:
		err = w.notifier.NotifySessionFailed(ctx, session.Label, counts)
	}
	if err != nil {
		w.logger.Warn("rollup notification failed",
			logging.Error(err),
			logging.Int64(logging.FieldSessionID, session.ID),
		)
	}
}

// validateSessions runs the consistency validator over every session that
// could still drift. Report-only: issues are logged with an alert and
// counted, never repaired automatically.
func (w *Watchdog) validateSessions(ctx context.Context) (int, error) {
	sessions, err := w.store.Sessions(ctx)
	if err != nil {
		w.logger.Error("validation scan failed", logging.Error(err), logging.String(logging.FieldEventType, "validation_scan_failed"))
		return 0, err
	}

	issues := 0
	for _, session := range sessions {
		switch session.Status {
		case catalog.SessionPending, catalog.SessionReady, catalog.SessionCanceled, catalog.SessionExpired:
			continue
		}
		selections, err := w.store.SelectionsBySession(ctx, session.ID)
		if err != nil {
			w.logger.Error("validation load failed",
				logging.Error(err),
				logging.Int64(logging.FieldSessionID, session.ID),
			)
			return issues, err
		}
		report := consistency.ValidateSelections(session.Status, selections)
		if report.Consistent() {
			continue
		}
		issues += len(report.Issues)
		for _, issue := range report.Issues {
			w.logger.Warn("consistency issue",
				logging.Int64(logging.FieldSessionID, session.ID),
				logging.String("issue_code", string(issue.Code)),
				logging.String("detail", issue.Detail),
				logging.Alert("consistency"),
				logging.String(logging.FieldEventType, "consistency_issue"),
			)
		}
	}
	if issues > 0 {
		w.logger.Warn("validation sweep found issues",
			logging.Int("issues", issues),
			logging.Alert("consistency"),
		)
	}
	return issues, nil
}

// auditSession appends to the transitions trail, best effort.
func (w *Watchdog) auditSession(ctx context.Context, id int64, from, to catalog.SessionStatus, reason string) {
	rec, err := lifecycle.TransitionSession(id, from, to, reason)
	if err != nil {
		w.logger.Debug("skipping audit for unexpected edge", logging.Error(err))
		return
	}
	if err := w.store.RecordTransition(ctx, rec); err != nil {
		w.logger.Debug("failed to record transition", logging.Error(err))
	}
}
