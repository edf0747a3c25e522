package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"carousel/internal/catalog"
	"carousel/internal/lifecycle"
	"carousel/internal/logging"
	"carousel/internal/services"
)

// claimBatchSize bounds how many enqueued candidates a worker scans per poll
// before conceding the round. Losing every claim in the batch just means the
// sibling workers are keeping up.
const claimBatchSize = 5

// settleWriteTimeout bounds the terminal write when the run context is
// already cancelled. Shutdown must still release the claim.
const settleWriteTimeout = 5 * time.Second

func (m *Manager) runWorker(ctx context.Context, workerID string) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldWorkerID, workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		candidates, err := m.store.NextEnqueued(ctx, claimBatchSize)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.handleFetchError(ctx, logger, err)
			continue
		}

		claimed := m.claimOne(ctx, logger, workerID, candidates)
		if claimed == nil {
			m.waitForWorkOrShutdown(ctx)
			continue
		}

		m.handleClaimed(ctx, logger, workerID, claimed)
	}
}

// claimOne walks the candidate batch oldest-first and returns the first
// selection this worker wins. Lost races move on to the next candidate.
func (m *Manager) claimOne(ctx context.Context, logger *slog.Logger, workerID string, candidates []*catalog.Selection) *catalog.Selection {
	for _, candidate := range candidates {
		result, err := m.store.ClaimSelection(ctx, candidate.ID, candidate.SessionID, workerID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			m.setLastError(err)
			logger.Warn("claim attempt failed",
				logging.Error(err),
				logging.Int64(logging.FieldItemID, candidate.ID),
				logging.String(logging.FieldEventType, "claim_failed"),
			)
			return nil
		}
		switch result.Outcome {
		case catalog.ClaimWon:
			return result.Selection
		case catalog.ClaimAlreadyTaken, catalog.ClaimNotFound:
			logger.Debug("claim lost",
				logging.Int64(logging.FieldItemID, candidate.ID),
				logging.String("claim_outcome", result.Outcome.String()),
			)
		}
	}
	return nil
}

func (m *Manager) handleClaimed(ctx context.Context, logger *slog.Logger, workerID string, sel *catalog.Selection) {
	itemCtx := services.WithSessionID(ctx, sel.SessionID)
	itemCtx = services.WithSelectionID(itemCtx, sel.ID)
	itemCtx = services.WithWorkerID(itemCtx, workerID)
	itemCtx = services.WithStep(itemCtx, "import")
	itemCtx = services.WithRequestID(itemCtx, uuid.NewString())
	itemLogger := logging.WithContext(itemCtx, logger)

	start := time.Now()
	itemLogger.Info("selection claimed",
		logging.String(logging.FieldEventType, "claim_won"),
		logging.Int("attempts", sel.Attempts),
		logging.String("file_name", sel.FileName),
	)
	m.setLastSelection(sel)
	m.auditSelection(itemCtx, itemLogger, sel.ID, catalog.SelectionEnqueued, catalog.SelectionRunning, "claimed")
	m.markSessionImporting(itemCtx, itemLogger, sel.SessionID)

	session, err := m.store.SessionByID(itemCtx, sel.SessionID)
	if err == nil && session == nil {
		err = services.Wrap(services.ErrValidation, "import", "resolve session", "session row missing", nil)
	}

	var outcome Outcome
	var leaseLost bool
	if err == nil {
		outcome, leaseLost, err = m.executeWithLease(itemCtx, workerID, session, sel)
	}

	m.settle(itemCtx, itemLogger, workerID, session, sel, outcome, err, leaseLost, start)
}

// executeWithLease runs the processor under a heartbeat lease. The lease
// goroutine is cancelled and joined before the caller commits any terminal
// write, so a renewal can never race a finalize.
func (m *Manager) executeWithLease(ctx context.Context, workerID string, session *catalog.Session, sel *catalog.Selection) (Outcome, bool, error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	keeper := newLeaseKeeper(m.store, m.logger, m.heartbeatInterval)
	hbWG.Add(1)
	go keeper.StartLoop(hbCtx, &hbWG, sel.ID, workerID)

	outcome, err := m.processSafely(ctx, session, sel)
	hbCancel()
	hbWG.Wait()
	return outcome, keeper.Lost(), err
}

// processSafely converts a processor panic into a transient error so one
// poisoned item cannot take down its worker.
func (m *Manager) processSafely(ctx context.Context, session *catalog.Session, sel *catalog.Selection) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransient, "import", "process", fmt.Sprintf("worker panic: %v", r), nil)
			m.logger.Error("worker panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.Int64(logging.FieldItemID, sel.ID),
				logging.String(logging.FieldEventType, "worker_panic"),
			)
		}
	}()
	return m.processor.Process(ctx, session, sel)
}

// settle commits exactly one outcome for a processed selection: a terminal
// finalize, a fast-retry release, or a shutdown release.
func (m *Manager) settle(ctx context.Context, logger *slog.Logger, workerID string, session *catalog.Session, sel *catalog.Selection, outcome Outcome, procErr error, leaseLost bool, start time.Time) {
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.Background(), settleWriteTimeout)
		defer cancel()
	}

	switch {
	case procErr == nil:
		if m.finalize(writeCtx, logger, workerID, sel, outcome.Terminal, outcome.Message, outcome.MediaID, leaseLost) {
			logger.Info("selection settled",
				logging.String(logging.FieldEventType, "import_complete"),
				logging.String("outcome", string(outcome.Terminal)),
				logging.Duration("duration", time.Since(start)),
			)
			m.settleSource(writeCtx, logger, session, sel, outcome.Terminal)
		}

	case errors.Is(procErr, context.Canceled):
		m.release(writeCtx, logger, workerID, sel, "interrupted by shutdown", leaseLost)

	case !services.Retryable(procErr):
		terminal := services.FailureStatus(procErr)
		m.setLastError(procErr)
		logger.Error("selection failed permanently",
			logging.Error(procErr),
			logging.String(logging.FieldEventType, "import_failed"),
			logging.String("outcome", string(terminal)),
			logging.Duration("duration", time.Since(start)),
		)
		if m.finalize(writeCtx, logger, workerID, sel, terminal, failureMessage(procErr), nil, leaseLost) {
			m.settleSource(writeCtx, logger, session, sel, terminal)
		}

	default:
		m.setLastError(procErr)
		if sel.Attempts <= m.cfg.Import.FastRetryThreshold {
			logger.Warn("transient failure, releasing for fast retry",
				logging.Error(procErr),
				logging.Int("attempts", sel.Attempts),
				logging.String(logging.FieldEventType, "import_released"),
			)
			m.release(writeCtx, logger, workerID, sel, failureMessage(procErr), leaseLost)
			return
		}
		logger.Warn("transient failure, handing to watchdog backoff",
			logging.Error(procErr),
			logging.Int("attempts", sel.Attempts),
			logging.String(logging.FieldEventType, "import_failed"),
		)
		if m.finalize(writeCtx, logger, workerID, sel, catalog.SelectionFailed, failureMessage(procErr), nil, leaseLost) {
			m.settleSource(writeCtx, logger, session, sel, catalog.SelectionFailed)
		}
	}
}

// finalize commits a terminal status. Zero affected rows means the lease was
// lost and someone else owns the row now; the result is logged and dropped.
func (m *Manager) finalize(ctx context.Context, logger *slog.Logger, workerID string, sel *catalog.Selection, terminal catalog.SelectionStatus, message string, mediaID *int64, leaseLost bool) bool {
	finalized, err := m.store.FinalizeSelection(ctx, sel.ID, workerID, terminal, message, mediaID)
	if err != nil {
		m.setLastError(err)
		logger.Error("failed to finalize selection",
			logging.Error(err),
			logging.String("intended_status", string(terminal)),
			logging.String(logging.FieldEventType, "finalize_failed"),
		)
		return false
	}
	if !finalized {
		logger.Warn("finalize matched no rows, dropping result",
			logging.String("intended_status", string(terminal)),
			logging.Bool("lease_lost", leaseLost),
			logging.String(logging.FieldEventType, "lease_lost"),
			logging.String(logging.FieldErrorHint, "the watchdog reclaimed this selection; another attempt owns it"),
		)
		return false
	}
	m.auditSelection(ctx, logger, sel.ID, catalog.SelectionRunning, terminal, message)
	return true
}

func (m *Manager) release(ctx context.Context, logger *slog.Logger, workerID string, sel *catalog.Selection, message string, leaseLost bool) {
	released, err := m.store.ReleaseForRetry(ctx, sel.ID, workerID, message)
	if err != nil {
		m.setLastError(err)
		logger.Error("failed to release selection",
			logging.Error(err),
			logging.String(logging.FieldEventType, "release_failed"),
		)
		return
	}
	if !released {
		logger.Warn("release matched no rows, dropping result",
			logging.Bool("lease_lost", leaseLost),
			logging.String(logging.FieldEventType, "lease_lost"),
		)
		return
	}
	m.auditSelection(ctx, logger, sel.ID, catalog.SelectionRunning, catalog.SelectionEnqueued, message)
}

// settleSource lets the source retire its original artifact after a terminal
// outcome. Best effort: a failure here never reopens the selection.
func (m *Manager) settleSource(ctx context.Context, logger *slog.Logger, session *catalog.Session, sel *catalog.Selection, terminal catalog.SelectionStatus) {
	if session == nil {
		return
	}
	source, ok := m.sources[session.Provider]
	if !ok {
		return
	}
	if err := source.Settle(ctx, session, sel, terminal); err != nil {
		logger.Warn("source settle failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "source_settle_failed"),
			logging.String(logging.FieldErrorHint, "original artifact may need manual cleanup"),
		)
	}
}

// markSessionImporting flips the parent session on the first claim. Zero
// affected rows means the session already advanced; that is fine.
func (m *Manager) markSessionImporting(ctx context.Context, logger *slog.Logger, sessionID int64) {
	moved, err := m.store.TransitionSession(ctx, sessionID, catalog.SessionEnqueued, catalog.SessionImporting, "")
	if err != nil {
		logger.Warn("failed to mark session importing", logging.Error(err))
		return
	}
	if moved {
		m.auditSession(ctx, logger, sessionID, catalog.SessionEnqueued, catalog.SessionImporting, "first selection claimed")
	}
}

// auditSelection appends to the transitions trail. Best effort: the
// selections table stays authoritative and a missed audit row never blocks
// processing.
func (m *Manager) auditSelection(ctx context.Context, logger *slog.Logger, id int64, from, to catalog.SelectionStatus, reason string) {
	rec, err := lifecycle.TransitionSelection(id, from, to, reason)
	if err != nil {
		logger.Debug("skipping audit for unexpected edge", logging.Error(err))
		return
	}
	if err := m.store.RecordTransition(ctx, rec); err != nil {
		logger.Debug("failed to record transition", logging.Error(err))
	}
}

func (m *Manager) auditSession(ctx context.Context, logger *slog.Logger, id int64, from, to catalog.SessionStatus, reason string) {
	rec, err := lifecycle.TransitionSession(id, from, to, reason)
	if err != nil {
		logger.Debug("skipping audit for unexpected edge", logging.Error(err))
		return
	}
	if err := m.store.RecordTransition(ctx, rec); err != nil {
		logger.Debug("failed to record transition", logging.Error(err))
	}
}

func (m *Manager) handleFetchError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to fetch claim candidates",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check catalog database access"),
	)
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.errorRetryInterval):
	}
}

func (m *Manager) waitForWorkOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.pollInterval):
	}
}

func failureMessage(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
