package picker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/config"
	"carousel/internal/lifecycle"
	"carousel/internal/logging"
)

// mediaExtensions lists the file types the drop folder accepts. Anything
// else is left in place and ignored.
var mediaExtensions = map[string]string{
	".mkv":  "video/x-matroska",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".heic": "image/heic",
	".gif":  "image/gif",
}

type observedFile struct {
	size      int64
	modTime   time.Time
	firstSeen time.Time
}

// DropScanner polls the drop directory and turns settled files into drop
// sessions with enqueued selections. A file is settled once its size has
// stopped changing between scans and its modification time is older than the
// settle window, so half-copied files never reach the workers.
type DropScanner struct {
	cfg      *config.Config
	store    *catalog.Store
	logger   *slog.Logger
	enqueuer Enqueuer

	interval time.Duration
	settle   time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	observed map[string]observedFile
	enqueued map[string]struct{}
}

// NewDropScanner builds a scanner over the configured drop directory.
// enqueuer may be nil.
func NewDropScanner(cfg *config.Config, store *catalog.Store, logger *slog.Logger, enqueuer Enqueuer) *DropScanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DropScanner{
		cfg:      cfg,
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "drop_scanner")),
		enqueuer: enqueuer,
		interval: time.Duration(cfg.Drop.ScanInterval) * time.Second,
		settle:   time.Duration(cfg.Drop.SettleSeconds) * time.Second,
		observed: make(map[string]observedFile),
		enqueued: make(map[string]struct{}),
	}
}

// Start launches the polling loop.
func (s *DropScanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("drop scanner already running")
	}
	if !s.cfg.Drop.Enabled {
		return errors.New("drop ingestion is disabled")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(runCtx)
	}()
	s.logger.Info("drop scanner started",
		logging.String("drop_dir", s.cfg.Paths.DropDir),
		logging.Duration("scan_interval", s.interval),
	)
	return nil
}

// Stop halts the polling loop and waits for the in-flight scan.
func (s *DropScanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("drop scanner stopped")
}

// Running reports whether the polling loop is active.
func (s *DropScanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *DropScanner) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("drop scan failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "drop_scan_failed"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ScanOnce walks the drop directory once and enqueues every settled file.
// Returns the session created for this batch, or nil when nothing settled.
func (s *DropScanner) ScanOnce(ctx context.Context) (*catalog.Session, error) {
	stable, err := s.collectStable(time.Now())
	if err != nil {
		return nil, err
	}
	if len(stable) == 0 {
		return nil, nil
	}

	specs := make([]catalog.SelectionSpec, 0, len(stable))
	for _, path := range stable {
		info := s.observed[path]
		specs = append(specs, catalog.SelectionSpec{
			SourceRef: path,
			FileName:  filepath.Base(path),
			MimeType:  mediaExtensions[strings.ToLower(filepath.Ext(path))],
			ByteSize:  info.size,
		})
	}

	label := dropSessionLabel(stable)
	session, err := s.store.CreateSession(ctx, catalog.ProviderDrop, "", label)
	if err != nil {
		return nil, fmt.Errorf("create drop session: %w", err)
	}
	selections, err := s.store.AddSelections(ctx, session.ID, specs)
	if err != nil {
		return nil, fmt.Errorf("insert drop selections: %w", err)
	}
	if err := s.enqueueSession(ctx, session.ID); err != nil {
		return nil, err
	}

	for _, path := range stable {
		s.enqueued[path] = struct{}{}
		delete(s.observed, path)
	}

	s.logger.Info("drop files enqueued",
		logging.Int64(logging.FieldSessionID, session.ID),
		logging.Int("selection_count", len(selections)),
		logging.String(logging.FieldEventType, "drop_enqueued"),
	)

	if s.enqueuer != nil {
		for _, sel := range selections {
			if err := s.enqueuer.Publish(ctx, sel); err != nil {
				s.logger.Warn("enqueue publish failed",
					logging.Error(err),
					logging.Int64(logging.FieldItemID, sel.ID),
					logging.String(logging.FieldEventType, "enqueue_publish_failed"),
				)
			}
		}
	}
	return session, nil
}

// collectStable refreshes the observation map from the drop directory and
// returns the paths that have settled, sorted for deterministic sessions.
func (s *DropScanner) collectStable(now time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Paths.DropDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read drop dir: %w", err)
	}

	present := make(map[string]struct{}, len(entries))
	var stable []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, ok := mediaExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		path := filepath.Join(s.cfg.Paths.DropDir, entry.Name())
		present[path] = struct{}{}
		if _, done := s.enqueued[path]; done {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		prev, seen := s.observed[path]
		if !seen || prev.size != info.Size() || !prev.modTime.Equal(info.ModTime()) {
			firstSeen := now
			if seen {
				firstSeen = prev.firstSeen
			}
			s.observed[path] = observedFile{size: info.Size(), modTime: info.ModTime(), firstSeen: firstSeen}
			continue
		}
		if now.Sub(info.ModTime()) < s.settle {
			continue
		}
		stable = append(stable, path)
	}

	// Forget files that left the directory, including ones the importer
	// already retired, so a re-dropped name is eligible again.
	for path := range s.observed {
		if _, ok := present[path]; !ok {
			delete(s.observed, path)
		}
	}
	for path := range s.enqueued {
		if _, ok := present[path]; !ok {
			delete(s.enqueued, path)
		}
	}

	sort.Strings(stable)
	return stable, nil
}

// enqueueSession walks the new session through pending -> ready -> enqueued
// with the transitions on record.
func (s *DropScanner) enqueueSession(ctx context.Context, id int64) error {
	steps := []struct {
		from, to catalog.SessionStatus
		reason   string
	}{
		{catalog.SessionPending, catalog.SessionReady, "drop files settled"},
		{catalog.SessionReady, catalog.SessionEnqueued, "selections enqueued"},
	}
	for _, step := range steps {
		rec, err := lifecycle.TransitionSession(id, step.from, step.to, step.reason)
		if err != nil {
			return err
		}
		moved, err := s.store.TransitionSession(ctx, id, step.from, step.to, "")
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("session %d left %s during drop enqueue", id, step.from)
		}
		if err := s.store.RecordTransition(ctx, rec); err != nil {
			s.logger.Debug("failed to record transition", logging.Error(err))
		}
	}
	return nil
}

func dropSessionLabel(paths []string) string {
	if len(paths) == 0 {
		return "drop import"
	}
	first := DisplayTitle(filepath.Base(paths[0]))
	if len(paths) == 1 {
		return first
	}
	return fmt.Sprintf("%s (+%d more)", first, len(paths)-1)
}
