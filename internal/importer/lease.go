package importer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/logging"
)

// leaseKeeper renews the heartbeat for one claimed selection until its
// context is cancelled. A renewal that matches zero rows means the watchdog
// reclaimed the row out from under us; the keeper remembers that so the
// worker can treat its eventual finalize as stale.
type leaseKeeper struct {
	store    *catalog.Store
	logger   *slog.Logger
	interval time.Duration
	lost     atomic.Bool
}

func newLeaseKeeper(store *catalog.Store, logger *slog.Logger, interval time.Duration) *leaseKeeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &leaseKeeper{store: store, logger: logger, interval: interval}
}

// Lost reports whether any renewal came back with zero rows.
func (k *leaseKeeper) Lost() bool {
	return k.lost.Load()
}

// StartLoop runs lease renewals for the selection until context cancellation.
func (k *leaseKeeper) StartLoop(ctx context.Context, wg *sync.WaitGroup, selectionID int64, workerID string) {
	defer wg.Done()
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, k.logger.With(logging.String(logging.FieldComponent, "import-lease")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewed, err := k.store.RenewLease(ctx, selectionID, workerID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("daemon shutting down, lease renewal cancelled")
					return
				}
				logger.Warn("lease renewal failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "lease_renew_failed"),
					logging.String(logging.FieldErrorHint, "check catalog database access"),
				)
				continue
			}
			if !renewed {
				if k.lost.CompareAndSwap(false, true) {
					logger.Warn("lease lost mid-processing",
						logging.Int64(logging.FieldItemID, selectionID),
						logging.String(logging.FieldEventType, "lease_lost"),
						logging.String(logging.FieldErrorHint, "watchdog reclaimed the selection; result will be dropped"),
					)
				}
				return
			}
		}
	}
}
