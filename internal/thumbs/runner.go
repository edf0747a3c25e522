package thumbs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"carousel/internal/catalog"
	"carousel/internal/logging"
)

// Generator produces the thumbnail artifact for one media row.
type Generator interface {
	Generate(ctx context.Context, media *catalog.Media) error
}

// minCountdown keeps a job from running before the scheduler has recorded
// its id, and settleTimeout bounds state writes during shutdown.
const (
	minCountdown  = time.Second
	settleTimeout = 5 * time.Second
)

// Runner is the default in-process dispatcher: every accepted job gets a
// delayed goroutine that waits out the countdown, invokes the generator,
// and settles the retry record.
type Runner struct {
	store     *catalog.Store
	logger    *slog.Logger
	generator Generator

	mu      sync.Mutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner constructs a runner over the given generator.
func NewRunner(store *catalog.Store, logger *slog.Logger, generator Generator) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		store:     store,
		logger:    logger.With(logging.String(logging.FieldComponent, "thumbs")),
		generator: generator,
	}
}

// Start makes the runner accept jobs until Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("thumb runner already running")
	}
	r.runCtx, r.cancel = context.WithCancel(ctx)
	r.running = true
	return nil
}

// Stop cancels in-flight jobs and waits for their goroutines to settle.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

// Dispatch accepts one job and returns its id. The job itself runs after
// the countdown on the runner's own context, so a caller's deadline never
// cuts a generation short.
func (r *Runner) Dispatch(_ context.Context, mediaID int64, force bool, countdown time.Duration) (string, error) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return "", errors.New("thumb runner is not started")
	}
	runCtx := r.runCtx
	r.wg.Add(1)
	r.mu.Unlock()

	if force || countdown < minCountdown {
		countdown = minCountdown
	}
	jobID := uuid.NewString()
	go func() {
		defer r.wg.Done()
		r.run(runCtx, mediaID, jobID, countdown)
	}()
	return jobID, nil
}

func (r *Runner) run(ctx context.Context, mediaID int64, jobID string, countdown time.Duration) {
	timer := time.NewTimer(countdown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// Shutdown before the countdown elapsed. Release the pending slot
		// so the monitor can schedule again after restart.
		r.clearPending(ctx, mediaID, jobID)
		r.logger.Debug("dropping delayed thumb job on shutdown",
			logging.Int64("media_id", mediaID),
			logging.String("job_id", jobID),
		)
		return
	case <-timer.C:
	}

	media, err := r.store.MediaByID(ctx, mediaID)
	if err != nil || media == nil {
		if err != nil {
			r.logger.Warn("thumb job could not load media",
				logging.Error(err),
				logging.Int64("media_id", mediaID),
			)
		}
		r.clearPending(ctx, mediaID, jobID)
		return
	}

	genErr := r.generator.Generate(ctx, media)
	state := catalog.ThumbReady
	if genErr != nil {
		state = catalog.ThumbFailed
		r.logger.Warn("thumbnail generation failed",
			logging.Error(genErr),
			logging.Int64("media_id", mediaID),
			logging.String("file", media.FileName),
			logging.String(logging.FieldEventType, "thumb_generate_failed"),
		)
	} else {
		r.logger.Info("thumbnail generated",
			logging.Int64("media_id", mediaID),
			logging.String("file", media.FileName),
			logging.String(logging.FieldEventType, "thumb_generated"),
		)
	}

	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()
	}
	if err := r.store.SetThumbState(writeCtx, mediaID, state); err != nil {
		r.logger.Warn("thumb state write failed",
			logging.Error(err),
			logging.Int64("media_id", mediaID),
		)
	}
	r.clearPending(writeCtx, mediaID, jobID)
}

// clearPending releases the pending-job slot. The clear is guarded by the
// job id, so a newer dispatch is never disturbed.
func (r *Runner) clearPending(ctx context.Context, mediaID int64, jobID string) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()
	}
	cleared, err := r.store.ClearPendingThumbJob(ctx, mediaID, jobID)
	if err != nil {
		r.logger.Warn("pending thumb job clear failed",
			logging.Error(err),
			logging.Int64("media_id", mediaID),
			logging.String("job_id", jobID),
		)
		return
	}
	if !cleared {
		r.logger.Debug("pending thumb job already superseded",
			logging.Int64("media_id", mediaID),
			logging.String("job_id", jobID),
		)
	}
}
