package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"carousel/internal/catalog"
	"carousel/internal/config"
	"carousel/internal/fileutil"
	"carousel/internal/logging"
	"carousel/internal/services"
)

// ThumbScheduler queues thumbnail generation for a cataloged media row.
// Satisfied by thumbs.Scheduler; failures never fail the import.
type ThumbScheduler interface {
	Schedule(ctx context.Context, mediaID int64) error
}

// Outcome is the terminal result a processor hands back to the worker for
// finalization.
type Outcome struct {
	Terminal catalog.SelectionStatus
	MediaID  *int64
	Message  string
}

// Processor moves one claimed selection from its source into the library:
// stage, hash, dedup, persist, schedule thumbnails. It never writes selection
// status itself; the owning worker commits the outcome.
type Processor struct {
	cfg     *config.Config
	store   *catalog.Store
	logger  *slog.Logger
	sources map[catalog.Provider]Source
	thumbs  ThumbScheduler
}

// NewProcessor builds a processor over the given sources. thumbs may be nil
// when the thumbnail pipeline is disabled.
func NewProcessor(cfg *config.Config, store *catalog.Store, logger *slog.Logger, sources map[catalog.Provider]Source, thumbs ThumbScheduler) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		sources: sources,
		thumbs:  thumbs,
	}
}

// Process runs the import pipeline for one claimed selection.
func (p *Processor) Process(ctx context.Context, session *catalog.Session, sel *catalog.Selection) (Outcome, error) {
	source, ok := p.sources[session.Provider]
	if !ok {
		return Outcome{}, services.Wrap(services.ErrConfiguration, "import", "resolve source", fmt.Sprintf("no source for provider %q", session.Provider), nil)
	}

	staged, err := p.stage(ctx, source, session, sel)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		// The staged file is renamed away on success; anything left behind
		// is a failed attempt.
		_ = os.Remove(staged.path)
	}()

	logger := logging.WithContext(ctx, p.logger)
	logger.Debug("selection staged",
		logging.String("staging_path", staged.path),
		logging.Int64("byte_size", staged.size),
		logging.String("content_hash", staged.hash),
	)

	if existing, err := p.store.MediaByHash(ctx, staged.hash); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "import", "dedup lookup", "query media by hash", err)
	} else if existing != nil {
		return Outcome{
			Terminal: catalog.SelectionDup,
			MediaID:  &existing.ID,
			Message:  fmt.Sprintf("duplicate of media %d", existing.ID),
		}, nil
	}

	libraryPath := p.libraryPath(staged.hash, sel.FileName)
	if err := os.MkdirAll(filepath.Dir(libraryPath), 0o755); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "import", "prepare library", "create library directory", err)
	}
	if err := fileutil.MoveFile(staged.path, libraryPath); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "import", "persist file", "move into library", err)
	}

	media, err := p.store.InsertMedia(ctx, &catalog.Media{
		ContentHash: staged.hash,
		FilePath:    libraryPath,
		FileName:    sel.FileName,
		ByteSize:    staged.size,
		MimeType:    sel.MimeType,
		SessionID:   sel.SessionID,
		ThumbState:  catalog.ThumbPending,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrDuplicateHash) {
			// Lost an insert race for the same bytes. The library path is
			// content-addressed, so both movers landed on the same file and
			// nothing needs undoing.
			winner, lookupErr := p.store.MediaByHash(ctx, staged.hash)
			if lookupErr != nil || winner == nil {
				return Outcome{}, services.Wrap(services.ErrTransient, "import", "dedup lookup", "resolve winning media row", lookupErr)
			}
			return Outcome{
				Terminal: catalog.SelectionDup,
				MediaID:  &winner.ID,
				Message:  fmt.Sprintf("duplicate of media %d", winner.ID),
			}, nil
		}
		return Outcome{}, services.Wrap(services.ErrTransient, "import", "persist media", "insert media row", err)
	}

	if p.thumbs != nil {
		if err := p.thumbs.Schedule(ctx, media.ID); err != nil {
			logger.Warn("thumbnail scheduling failed",
				logging.Error(err),
				logging.Int64("media_id", media.ID),
				logging.String(logging.FieldEventType, "thumb_schedule_failed"),
				logging.String(logging.FieldErrorHint, "the thumbs monitor will surface exhausted records"),
			)
		}
	}

	return Outcome{Terminal: catalog.SelectionImported, MediaID: &media.ID}, nil
}

type stagedFile struct {
	path string
	size int64
	hash string
}

func (p *Processor) stage(ctx context.Context, source Source, session *catalog.Session, sel *catalog.Selection) (stagedFile, error) {
	if err := os.MkdirAll(p.cfg.Paths.StagingDir, 0o755); err != nil {
		return stagedFile{}, services.Wrap(services.ErrTransient, "import", "prepare staging", "create staging directory", err)
	}

	reader, err := source.Open(ctx, session, sel)
	if err != nil {
		return stagedFile{}, err
	}
	defer reader.Close()

	var src io.Reader = reader
	if sel.ByteSize > 0 {
		src = &stagingProgressReader{
			r:       reader,
			total:   sel.ByteSize,
			sampler: logging.NewProgressSampler(25),
			logger:  logging.WithContext(ctx, p.logger),
		}
	}

	// Deterministic per-selection name: a retry after a dead worker simply
	// truncates the previous attempt's leftovers.
	path := filepath.Join(p.cfg.Paths.StagingDir, fmt.Sprintf("sel-%d%s", sel.ID, filepath.Ext(sel.FileName)))
	out, err := os.Create(path)
	if err != nil {
		return stagedFile{}, services.Wrap(services.ErrTransient, "import", "prepare staging", "create staging file", err)
	}

	size, hash, err := fileutil.HashingCopy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return stagedFile{}, services.Wrap(services.ErrTransient, "import", "stage payload", "copy source bytes", err)
	}
	return stagedFile{path: path, size: size, hash: hash}, nil
}

// stagingProgressReader counts bytes flowing into the staging file and emits
// sampled debug logs so large transfers stay visible without flooding.
type stagingProgressReader struct {
	r       io.Reader
	total   int64
	copied  int64
	sampler *logging.ProgressSampler
	logger  *slog.Logger
}

func (pr *stagingProgressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	pr.copied += int64(n)
	percent := float64(pr.copied) / float64(pr.total) * 100
	if pr.sampler.ShouldLog(percent, "stage") {
		pr.logger.Debug("staging progress",
			logging.Int64("bytes_copied", pr.copied),
			logging.Int64("byte_size", pr.total),
		)
	}
	return n, err
}

// libraryPath returns the content-addressed destination for a payload. The
// original extension is kept so downstream tooling can sniff the format.
func (p *Processor) libraryPath(hash, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return filepath.Join(p.cfg.Paths.LibraryDir, hash[:2], hash+ext)
}
