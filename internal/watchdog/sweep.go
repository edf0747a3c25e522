package watchdog

import (
	"context"
	"fmt"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/lifecycle"
	"carousel/internal/logging"
)

// SweepReport summarizes one pass over the four recovery steps.
type SweepReport struct {
	Reclaimed   int
	Requeued    int
	Republished int
	RolledUp    int
	Issues      int
	FirstError  error
}

// RunOnce executes one full sweep. Steps run in a fixed order, each
// committed independently; the first error is reported but never stops the
// remaining steps.
func (w *Watchdog) RunOnce(ctx context.Context) SweepReport {
	w.mu.Lock()
	w.sweeps++
	sweep := w.sweeps
	w.mu.Unlock()

	var report SweepReport
	note := func(err error) {
		if err != nil && report.FirstError == nil {
			report.FirstError = err
		}
	}

	var err error
	report.Reclaimed, err = w.reclaimStale(ctx)
	note(err)
	report.Requeued, err = w.requeueFailed(ctx)
	note(err)
	report.Republished, err = w.republishStuck(ctx)
	note(err)
	report.RolledUp, err = w.rollupSessions(ctx)
	note(err)

	if w.validateEvery > 0 && sweep%uint64(w.validateEvery) == 0 {
		report.Issues, err = w.validateSessions(ctx)
		note(err)
	}

	if report.Reclaimed > 0 || report.Requeued > 0 || report.Republished > 0 || report.RolledUp > 0 {
		w.logger.Info("sweep completed",
			logging.Uint64("sweep", sweep),
			logging.Int("reclaimed", report.Reclaimed),
			logging.Int("requeued", report.Requeued),
			logging.Int("republished", report.Republished),
			logging.Int("rolled_up", report.RolledUp),
		)
	}
	return report
}

// reclaimStale returns lapsed running claims to the queue, or parks them as
// failed once the retry budget is spent.
func (w *Watchdog) reclaimStale(ctx context.Context) (int, error) {
	now := time.Now()
	leaseCutoff := now.Add(-time.Duration(w.cfg.Import.LeaseWindow) * time.Second)
	processingCutoff := now.Add(-time.Duration(w.cfg.Import.MaxProcessingWindow) * time.Second)

	stale, err := w.store.StaleRunning(ctx, leaseCutoff, processingCutoff)
	if err != nil {
		w.logger.Error("stale scan failed", logging.Error(err), logging.String(logging.FieldEventType, "stale_scan_failed"))
		return 0, err
	}

	reclaimed := 0
	for _, sel := range stale {
		reason := fmt.Sprintf("lease expired; reclaimed from worker %q", sel.LockedBy)
		target, moved, err := w.store.ReclaimStaleSelection(ctx, sel, leaseCutoff, processingCutoff, w.cfg.Import.MaxAttempts, reason)
		if err != nil {
			w.logger.Error("stale reclaim failed",
				logging.Error(err),
				logging.Int64(logging.FieldItemID, sel.ID),
				logging.String(logging.FieldEventType, "stale_reclaim_failed"),
			)
			return reclaimed, err
		}
		if !moved {
			// Predicate no longer holds: the worker came back or another
			// sweeper got here first.
			continue
		}
		reclaimed++
		w.auditSelection(ctx, sel.ID, catalog.SelectionRunning, target, reason)
		w.logger.Warn("reclaimed stale selection",
			logging.Int64(logging.FieldItemID, sel.ID),
			logging.Int64(logging.FieldSessionID, sel.SessionID),
			logging.String(logging.FieldWorkerID, sel.LockedBy),
			logging.Int("attempts", sel.Attempts),
			logging.String("reclaimed_to", string(target)),
			logging.Alert("stale_claim"),
			logging.String(logging.FieldEventType, "stale_reclaimed"),
		)
		if target == catalog.SelectionFailed && w.notifier != nil {
			subject := fmt.Sprintf("selection %d (%s)", sel.ID, sel.FileName)
			if err := w.notifier.NotifyRetriesExhausted(ctx, subject, sel.Attempts); err != nil {
				w.logger.Warn("retries-exhausted notification failed", logging.Error(err))
			}
		}
	}
	return reclaimed, nil
}

// requeueFailed moves failed selections whose exponential backoff window has
// elapsed back to enqueued.
func (w *Watchdog) requeueFailed(ctx context.Context) (int, error) {
	base := time.Duration(w.cfg.Import.BackoffBase) * time.Second
	due, err := w.store.FailedDueForRetry(ctx, base, w.cfg.Import.MaxAttempts, time.Now())
	if err != nil {
		w.logger.Error("backoff scan failed", logging.Error(err), logging.String(logging.FieldEventType, "backoff_scan_failed"))
		return 0, err
	}

	requeued := 0
	for _, sel := range due {
		moved, err := w.store.RequeueFailedSelection(ctx, sel.ID)
		if err != nil {
			w.logger.Error("backoff requeue failed",
				logging.Error(err),
				logging.Int64(logging.FieldItemID, sel.ID),
				logging.String(logging.FieldEventType, "backoff_requeue_failed"),
			)
			return requeued, err
		}
		if !moved {
			continue
		}
		requeued++
		reason := fmt.Sprintf("backoff elapsed after attempt %d", sel.Attempts)
		w.auditSelection(ctx, sel.ID, catalog.SelectionFailed, catalog.SelectionEnqueued, reason)
		w.logger.Info("requeued failed selection",
			logging.Int64(logging.FieldItemID, sel.ID),
			logging.Int64(logging.FieldSessionID, sel.SessionID),
			logging.Int("attempts", sel.Attempts),
			logging.Duration("backoff", catalog.BackoffDelay(base, sel.Attempts)),
			logging.String(logging.FieldEventType, "backoff_requeued"),
		)
	}
	return requeued, nil
}

// republishStuck re-notifies the enqueue collaborator about selections that
// have sat enqueued past the threshold. Attempts and status stay untouched:
// at-least-once delivery with idempotent consumers.
func (w *Watchdog) republishStuck(ctx context.Context) (int, error) {
	if w.enqueuer == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(w.cfg.Watchdog.StuckEnqueuedAfter) * time.Second)
	stuck, err := w.store.StuckEnqueued(ctx, cutoff)
	if err != nil {
		w.logger.Error("stuck scan failed", logging.Error(err), logging.String(logging.FieldEventType, "stuck_scan_failed"))
		return 0, err
	}

	republished := 0
	for _, sel := range stuck {
		if err := w.enqueuer.Publish(ctx, sel); err != nil {
			w.logger.Warn("republish failed",
				logging.Error(err),
				logging.Int64(logging.FieldItemID, sel.ID),
				logging.String(logging.FieldEventType, "republish_failed"),
			)
			continue
		}
		republished++
		w.logger.Info("republished stuck selection",
			logging.Int64(logging.FieldItemID, sel.ID),
			logging.Int64(logging.FieldSessionID, sel.SessionID),
			logging.String(logging.FieldEventType, "stuck_republished"),
		)
	}
	return republished, nil
}

// auditSelection appends to the transitions trail, best effort.
func (w *Watchdog) auditSelection(ctx context.Context, id int64, from, to catalog.SelectionStatus, reason string) {
	rec, err := lifecycle.TransitionSelection(id, from, to, reason)
	if err != nil {
		w.logger.Debug("skipping audit for unexpected edge", logging.Error(err))
		return
	}
	if err := w.store.RecordTransition(ctx, rec); err != nil {
		w.logger.Debug("failed to record transition", logging.Error(err))
	}
}
