package daemon

import (
	"context"
	"errors"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/logging"
)

const expandPollInterval = 5 * time.Second

// startExpandLoop polls for pending picker sessions and expands them into
// enqueued selections. Sessions that fail expansion are parked by the
// expander itself, so the loop only logs and moves on.
func (d *Daemon) startExpandLoop(ctx context.Context) {
	d.expandWG.Add(1)
	go func() {
		defer d.expandWG.Done()
		ticker := time.NewTicker(expandPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.expandPending(ctx)
			}
		}
	}()
}

func (d *Daemon) expandPending(ctx context.Context) {
	sessions, err := d.comps.Store.Sessions(ctx, catalog.SessionPending)
	if err != nil {
		d.logger.Warn("failed to list pending sessions", logging.Error(err))
		return
	}
	for _, session := range sessions {
		if session.Provider != catalog.ProviderPicker {
			continue
		}
		if _, err := d.comps.Expander.Expand(ctx, session); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error("session expansion failed",
				logging.Int64(logging.FieldSessionID, session.ID),
				logging.Error(err))
		}
	}
}
