package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/config"
	"carousel/internal/logging"
	"carousel/internal/notifications"
)

// Enqueuer re-publishes a stuck selection to the enqueue collaborator.
// Publishing must not touch selection state; duplicate notifications are
// acceptable on the consumer side.
type Enqueuer interface {
	Publish(ctx context.Context, sel *catalog.Selection) error
}

// JobTracker updates an optional external job-tracking record when a session
// reaches its terminal status. The returned key is persisted as the
// session's job_ref. A nil tracker never blocks roll-up.
type JobTracker interface {
	RecordOutcome(ctx context.Context, session *catalog.Session, outcome catalog.SessionStatus, counts catalog.SessionCounts) (string, error)
}

// Watchdog owns the periodic recovery loop.
type Watchdog struct {
	cfg      *config.Config
	store    *catalog.Store
	logger   *slog.Logger
	notifier notifications.Service
	enqueuer Enqueuer
	tracker  JobTracker

	interval      time.Duration
	validateEvery int

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	sweeps    uint64
	lastSweep time.Time
	lastErr   error
}

// Option configures optional watchdog collaborators.
type Option func(*Watchdog)

// WithEnqueuer wires the enqueue collaborator used to republish stuck work.
func WithEnqueuer(enqueuer Enqueuer) Option {
	return func(w *Watchdog) { w.enqueuer = enqueuer }
}

// WithJobTracker wires the job-tracking collaborator updated at roll-up.
func WithJobTracker(tracker JobTracker) Option {
	return func(w *Watchdog) { w.tracker = tracker }
}

// New constructs a watchdog. notifier may be nil; a noop service is assumed
// by callers that do not wire notifications.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger, notifier notifications.Service, opts ...Option) *Watchdog {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Watchdog{
		cfg:           cfg,
		store:         store,
		logger:        logger.With(logging.String(logging.FieldComponent, "watchdog")),
		notifier:      notifier,
		interval:      time.Duration(cfg.Watchdog.Interval) * time.Second,
		validateEvery: cfg.Watchdog.ValidateEvery,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the periodic sweep loop.
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watchdog already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	w.mu.Unlock()

	go w.runLoop(runCtx)
	w.logger.Info("watchdog started", logging.Duration("interval", w.interval))
	return nil
}

// Stop terminates the sweep loop and waits for the current sweep to finish.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.logger.Info("watchdog stopped")
}

func (w *Watchdog) runLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := w.RunOnce(ctx)
			if ctx.Err() != nil {
				return
			}
			w.noteSweep(report)
		}
	}
}

func (w *Watchdog) noteSweep(report SweepReport) {
	w.mu.Lock()
	w.lastSweep = time.Now()
	w.lastErr = report.FirstError
	w.mu.Unlock()
}

// StatusSummary represents lightweight watchdog diagnostics.
type StatusSummary struct {
	Running   bool
	Sweeps    uint64
	LastSweep time.Time
	LastError string
}

// Status returns the latest watchdog information.
func (w *Watchdog) Status() StatusSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	summary := StatusSummary{
		Running:   w.running,
		Sweeps:    w.sweeps,
		LastSweep: w.lastSweep,
	}
	if w.lastErr != nil {
		summary.LastError = w.lastErr.Error()
	}
	return summary
}
