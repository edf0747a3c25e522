package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"carousel/internal/catalog"
	"carousel/internal/config"
	"carousel/internal/importer"
	"carousel/internal/logging"
	"carousel/internal/notifications"
	"carousel/internal/picker"
	"carousel/internal/thumbs"
	"carousel/internal/watchdog"
)

// Components bundles the background services the daemon supervises. Store,
// Importer, and Watchdog are required; the rest are optional features.
type Components struct {
	Store        *catalog.Store
	Importer     *importer.Manager
	Watchdog     *watchdog.Watchdog
	ThumbRunner  *thumbs.Runner
	ThumbMonitor *thumbs.Monitor
	ThumbSched   *thumbs.Scheduler
	Expander     *picker.Expander
	DropScanner  *picker.DropScanner
	Picker       *picker.Client
	Notifier     notifications.Service
}

// Daemon coordinates the background services and enforces single-instance
// execution through a filesystem lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comps  Components

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	expandWG sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	LockFilePath  string
	CatalogDBPath string
	Importer      importer.StatusSummary
	Watchdog      watchdog.StatusSummary
	DropScanning  bool
	ThumbsRunning bool
	SessionStats  map[catalog.SessionStatus]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, comps Components) (*Daemon, error) {
	if cfg == nil || comps.Store == nil || comps.Importer == nil || comps.Watchdog == nil {
		return nil, errors.New("daemon requires config, store, importer, and watchdog")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if comps.Notifier == nil {
		comps.Notifier = notifications.NewService(cfg)
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		comps:    comps,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the background services:
// importer workers, watchdog sweeps, then the optional thumbnail pipeline
// and intake loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another carousel daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.comps.Importer.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start importer: %w", err)
	}
	if err := d.comps.Watchdog.Start(d.ctx); err != nil {
		d.comps.Importer.Stop()
		d.abortStart()
		return fmt.Errorf("start watchdog: %w", err)
	}

	if d.comps.ThumbRunner != nil {
		if err := d.comps.ThumbRunner.Start(d.ctx); err != nil {
			d.logger.Warn("thumb runner start failed", logging.Error(err))
		}
	}
	if d.comps.ThumbMonitor != nil {
		if err := d.comps.ThumbMonitor.Start(d.ctx); err != nil {
			d.logger.Warn("thumb monitor start failed", logging.Error(err))
		}
	}
	if d.comps.DropScanner != nil && d.cfg.Drop.Enabled {
		if err := d.comps.DropScanner.Start(d.ctx); err != nil {
			d.logger.Warn("drop scanner start failed", logging.Error(err))
		}
	}
	if d.comps.Expander != nil {
		d.startExpandLoop(d.ctx)
	}

	d.running.Store(true)
	d.logger.Info("carousel daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// Stop halts intake first so no new work appears, then the workers and
// sweeps, and finally releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.comps.DropScanner != nil {
		d.comps.DropScanner.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.expandWG.Wait()
	d.comps.Importer.Stop()
	d.comps.Watchdog.Stop()
	if d.comps.ThumbMonitor != nil {
		d.comps.ThumbMonitor.Stop()
	}
	if d.comps.ThumbRunner != nil {
		d.comps.ThumbRunner.Stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("carousel daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.comps.Store != nil {
		return d.comps.Store.Close()
	}
	return nil
}

// Running reports whether background services are active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		LockFilePath:  d.lockPath,
		CatalogDBPath: d.comps.Store.Path(),
		Importer:      d.comps.Importer.Status(ctx),
		Watchdog:      d.comps.Watchdog.Status(),
	}
	if d.comps.DropScanner != nil {
		status.DropScanning = d.comps.DropScanner.Running()
	}
	if d.comps.ThumbMonitor != nil {
		running, _, _ := d.comps.ThumbMonitor.Status()
		status.ThumbsRunning = running
	}
	if stats, err := d.comps.Store.SessionStats(ctx); err == nil {
		status.SessionStats = stats
	}
	return status
}
