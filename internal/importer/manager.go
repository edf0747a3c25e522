package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/config"
	"carousel/internal/logging"
)

// Manager runs the configured number of import workers against the shared
// store. It is safe to run alongside any number of sibling daemon processes;
// the store's conditional claims are the only coordination.
type Manager struct {
	cfg       *config.Config
	store     *catalog.Store
	logger    *slog.Logger
	processor *Processor
	sources   map[catalog.Provider]Source

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	heartbeatInterval  time.Duration
	workerPrefix       string

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastSel *catalog.Selection
}

// NewManager constructs an import manager over the given sources.
func NewManager(cfg *config.Config, store *catalog.Store, logger *slog.Logger, sources map[catalog.Provider]Source, thumbs ThumbScheduler) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "importer"))
	host, _ := os.Hostname()
	if host == "" {
		host = "carousel"
	}
	return &Manager{
		cfg:                cfg,
		store:              store,
		logger:             logger,
		processor:          NewProcessor(cfg, store, logger, sources, thumbs),
		sources:            sources,
		pollInterval:       time.Duration(cfg.Import.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Import.ErrorRetryInterval) * time.Second,
		heartbeatInterval:  time.Duration(cfg.Import.HeartbeatInterval) * time.Second,
		workerPrefix:       fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
}

// Start launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("importer already running")
	}
	workers := m.cfg.Import.Workers
	if workers <= 0 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(workers)
	m.mu.Unlock()

	for i := 0; i < workers; i++ {
		workerID := fmt.Sprintf("%s-w%d", m.workerPrefix, i+1)
		go m.runWorker(runCtx, workerID)
	}
	m.logger.Info("import workers started", logging.Int("workers", workers))
	return nil
}

// Stop terminates the worker pool and waits for in-flight items to release.
func (m *Manager) Stop() {
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
	m.logger.Info("import workers stopped")
}

// StatusSummary represents lightweight importer diagnostics.
type StatusSummary struct {
	Running       bool
	Workers       int
	LastError     string
	LastSelection *catalog.Selection
	Stats         map[catalog.SelectionStatus]int
}

// Status returns the latest importer information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastSel := m.lastSel
	m.mu.RUnlock()

	stats, err := m.store.SelectionStats(ctx)
	if err != nil {
		m.logger.Warn("failed to read selection stats", logging.Error(err))
	}

	summary := StatusSummary{Running: running, Workers: m.cfg.Import.Workers, Stats: stats}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastSel != nil {
		copy := *lastSel
		summary.LastSelection = &copy
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastSelection(sel *catalog.Selection) {
	m.mu.Lock()
	if sel != nil {
		copy := *sel
		m.lastSel = &copy
	} else {
		m.lastSel = nil
	}
	m.mu.Unlock()
}
