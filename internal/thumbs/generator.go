package thumbs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"carousel/internal/catalog"
	"carousel/internal/config"
	"carousel/internal/logging"
	"carousel/internal/services"
)

// thumbDirName is the hidden directory under the library root that holds
// generated thumbnails, keyed by content hash.
const thumbDirName = ".thumbs"

// ThumbnailPath returns where the thumbnail for a content hash lives.
func ThumbnailPath(libraryDir, contentHash string) string {
	return filepath.Join(libraryDir, thumbDirName, contentHash+".jpg")
}

// commandRunner executes one external command. Injectable for tests.
type commandRunner func(ctx context.Context, name string, args ...string) error

// FFmpegGenerator extracts a representative frame with ffmpeg and writes it
// next to the library as a content-addressed JPEG.
type FFmpegGenerator struct {
	cfg    *config.Config
	logger *slog.Logger
	run    commandRunner
}

// NewFFmpegGenerator constructs the default generator.
func NewFFmpegGenerator(cfg *config.Config, logger *slog.Logger) *FFmpegGenerator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FFmpegGenerator{
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "thumbs")),
		run:    defaultCommandRunner,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (g *FFmpegGenerator) WithCommandRunner(run commandRunner) {
	if g != nil && run != nil {
		g.run = run
	}
}

// Generate writes the thumbnail for the media row. The write is atomic: a
// temporary file is rendered first and renamed into place on success.
func (g *FFmpegGenerator) Generate(ctx context.Context, media *catalog.Media) error {
	if media == nil || strings.TrimSpace(media.FilePath) == "" {
		return services.Wrap(services.ErrValidation, "thumbs", "generate", "media has no file path", nil)
	}
	if _, err := os.Stat(media.FilePath); err != nil {
		return services.Wrap(services.ErrValidation, "thumbs", "generate", "media file missing", err)
	}

	outPath := ThumbnailPath(g.cfg.Paths.LibraryDir, media.ContentHash)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "thumbs", "generate", "create thumbnail directory", err)
	}

	width := g.cfg.Thumbnails.Width
	if width <= 0 {
		width = 320
	}
	// ffmpeg picks the output codec from the extension, so the temp file
	// must end in .jpg too.
	tmpPath := filepath.Join(filepath.Dir(outPath), media.ContentHash+".tmp.jpg")
	defer os.Remove(tmpPath)

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", media.FilePath,
		"-vf", fmt.Sprintf("thumbnail,scale=%d:-2", width),
		"-frames:v", "1",
		tmpPath,
	}
	if err := g.run(ctx, g.cfg.FFmpegBinary(), args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "thumbs", "generate", "ffmpeg failed", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return services.Wrap(services.ErrTransient, "thumbs", "generate", "finalize thumbnail", err)
	}
	g.logger.Debug("thumbnail written",
		logging.Int64("media_id", media.ID),
		logging.String("path", outPath),
	)
	return nil
}

// defaultCommandRunner executes the command and folds its combined output
// into the returned error.
func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
			return fmt.Errorf("%w: %s", err, trimmed)
		}
		return err
	}
	return nil
}
