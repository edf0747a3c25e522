package thumbs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/config"
	"carousel/internal/logging"
	"carousel/internal/notifications"
)

// Monitor periodically re-drives thumbnails that are still pending or
// failed, recovers pending-job slots orphaned by a dead runner, and reports
// exhausted records. It never re-enables a disabled record.
type Monitor struct {
	cfg       *config.Config
	store     *catalog.Store
	logger    *slog.Logger
	scheduler *Scheduler
	notifier  notifications.Service
	interval  time.Duration

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	sweeps    uint64
	lastSweep time.Time
}

// SweepStats summarizes one monitor pass.
type SweepStats struct {
	ClearedStale int
	Rescheduled  int
	Exhausted    int
	Disabled     int
}

// NewMonitor constructs a monitor. notifier may be nil.
func NewMonitor(cfg *config.Config, store *catalog.Store, logger *slog.Logger, scheduler *Scheduler, notifier notifications.Service) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		cfg:       cfg,
		store:     store,
		logger:    logger.With(logging.String(logging.FieldComponent, "thumbs")),
		scheduler: scheduler,
		notifier:  notifier,
		interval:  time.Duration(cfg.Thumbnails.MonitorInterval) * time.Second,
	}
}

// Start begins the periodic sweep loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("thumb monitor already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.runLoop(runCtx)
	m.logger.Info("thumb monitor started", logging.Duration("interval", m.interval))
	return nil
}

// Stop terminates the sweep loop and waits for the current sweep.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("thumb monitor stopped")
}

func (m *Monitor) runLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("thumb sweep failed", logging.Error(err))
			}
		}
	}
}

// Sweep runs one monitor pass. Per-record scheduling problems are logged
// and skipped; only scan failures surface as errors.
func (m *Monitor) Sweep(ctx context.Context) (SweepStats, error) {
	m.mu.Lock()
	m.sweeps++
	m.lastSweep = time.Now()
	m.mu.Unlock()

	var stats SweepStats

	cutoff := time.Now().Add(-m.stalePendingWindow())
	stale, err := m.store.StalePendingThumbJobs(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	for _, record := range stale {
		cleared, err := m.store.ClearPendingThumbJob(ctx, record.MediaID, record.PendingJobID)
		if err != nil {
			m.logger.Warn("stale thumb job clear failed",
				logging.Error(err),
				logging.Int64("media_id", record.MediaID),
			)
			continue
		}
		if !cleared {
			continue
		}
		stats.ClearedStale++
		m.logger.Warn("cleared orphaned thumb job",
			logging.Int64("media_id", record.MediaID),
			logging.String("job_id", record.PendingJobID),
			logging.String(logging.FieldEventType, "thumb_job_orphaned"),
		)
	}

	candidates, err := m.store.MediaNeedingThumbs(ctx)
	if err != nil {
		return stats, err
	}
	for _, media := range candidates {
		outcome, err := m.scheduler.ScheduleIfAllowed(ctx, media.ID, false, nil)
		switch outcome {
		case OutcomeScheduled:
			stats.Rescheduled++
		case OutcomeExhausted:
			// Candidates exclude disabled records, so exhaustion here is
			// fresh and worth exactly one notification.
			stats.Exhausted++
			m.notifyExhausted(ctx, media)
		case OutcomeError:
			m.logger.Warn("thumb reschedule failed",
				logging.Error(err),
				logging.Int64("media_id", media.ID),
			)
		}
	}

	disabled, err := m.store.ThumbRetries(ctx, true)
	if err != nil {
		return stats, err
	}
	stats.Disabled = len(disabled)

	if stats.ClearedStale > 0 || stats.Rescheduled > 0 || stats.Exhausted > 0 {
		m.logger.Info("thumb sweep completed",
			logging.Int("cleared_stale", stats.ClearedStale),
			logging.Int("rescheduled", stats.Rescheduled),
			logging.Int("exhausted", stats.Exhausted),
			logging.Int("disabled_total", stats.Disabled),
		)
	} else if stats.Disabled > 0 {
		m.logger.Debug("disabled thumb records on file", logging.Int("disabled_total", stats.Disabled))
	}
	return stats, nil
}

// Status returns lightweight monitor diagnostics.
func (m *Monitor) Status() (running bool, sweeps uint64, lastSweep time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running, m.sweeps, m.lastSweep
}

// stalePendingWindow is how long a pending job may sit untouched before the
// monitor assumes no runner is behind it. It covers the longest possible
// countdown plus one monitor interval.
func (m *Monitor) stalePendingWindow() time.Duration {
	base := time.Duration(m.cfg.Thumbnails.RetryCountdown) * time.Second
	longest := base
	if m.cfg.Thumbnails.Backoff {
		longest = catalog.BackoffDelay(base, m.cfg.Thumbnails.MaxAttempts)
	}
	return longest + m.interval + 10*time.Minute
}

func (m *Monitor) notifyExhausted(ctx context.Context, media *catalog.Media) {
	if m.notifier == nil {
		return
	}
	subject := fmt.Sprintf("thumbnail for media %d (%s)", media.ID, media.FileName)
	if err := m.notifier.NotifyRetriesExhausted(ctx, subject, m.cfg.Thumbnails.MaxAttempts); err != nil {
		m.logger.Warn("thumb exhaustion notification failed", logging.Error(err))
	}
}
