package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"carousel/internal/catalog"
	"carousel/internal/config"
	"carousel/internal/daemon"
	"carousel/internal/deps"
	"carousel/internal/importer"
	"carousel/internal/ipc"
	"carousel/internal/logging"
	"carousel/internal/notifications"
	"carousel/internal/picker"
	"carousel/internal/thumbs"
	"carousel/internal/watchdog"
)

// Options configures daemon process runtime behavior.
type Options struct {
	SocketPath string
	LogLevel   string
}

// Run wires the carousel daemon runtime and blocks until a signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("carousel-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update carousel.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "carousel-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.StateDir, "carousel.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	comps := buildComponents(cfg, store, logger, notifier)

	d, err := daemon.New(cfg, logger, comps)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and catalog database access"),
			logging.String(logging.FieldImpact, "daemon may not process import items"),
		)
	}

	<-signalCtx.Done()
	logger.Info("carousel daemon shutting down")
	return nil
}

func buildComponents(cfg *config.Config, store *catalog.Store, logger *slog.Logger, notifier notifications.Service) daemon.Components {
	pickerClient := picker.NewClient(cfg, logger)

	sources := map[catalog.Provider]importer.Source{
		catalog.ProviderDrop: importer.NewDropSource(),
	}
	if pickerClient != nil {
		sources[catalog.ProviderPicker] = importer.NewPickerSource(pickerClient)
	}

	var (
		thumbRunner  *thumbs.Runner
		thumbMonitor *thumbs.Monitor
		thumbSched   *thumbs.Scheduler
		thumbForImp  importer.ThumbScheduler
	)
	if cfg.Thumbnails.Enabled {
		generator := thumbs.NewFFmpegGenerator(cfg, logger)
		thumbRunner = thumbs.NewRunner(store, logger, generator)
		thumbSched = thumbs.NewScheduler(cfg, store, logger, thumbRunner)
		thumbMonitor = thumbs.NewMonitor(cfg, store, logger, thumbSched, notifier)
		thumbForImp = thumbSched
	}

	manager := importer.NewManager(cfg, store, logger, sources, thumbForImp)
	dog := watchdog.New(cfg, store, logger, notifier)

	comps := daemon.Components{
		Store:        store,
		Importer:     manager,
		Watchdog:     dog,
		ThumbRunner:  thumbRunner,
		ThumbMonitor: thumbMonitor,
		ThumbSched:   thumbSched,
		Picker:       pickerClient,
		Notifier:     notifier,
	}
	if pickerClient != nil {
		comps.Expander = picker.NewExpander(store, pickerClient, logger, nil)
	}
	if cfg.Drop.Enabled {
		comps.DropScanner = picker.NewDropScanner(cfg, store, logger, nil)
	}
	return comps
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "carousel.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := deps.ResolveFFmpeg(cfg.FFmpegBinary())
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("picker_configured", strings.TrimSpace(cfg.Picker.BaseURL) != ""),
		logging.Bool("drop_enabled", cfg.Drop.Enabled),
		logging.Bool("thumbnails_enabled", cfg.Thumbnails.Enabled),
		logging.Bool("ffmpeg_available", ffmpeg.Available),
		logging.String("ffmpeg_binary", ffmpeg.Command),
	)
}
