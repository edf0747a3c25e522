package thumbs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/config"
	"carousel/internal/logging"
	"carousel/internal/services"
)

// Outcome reports what a scheduling attempt did.
type Outcome string

const (
	// OutcomeScheduled means a new job was dispatched and recorded.
	OutcomeScheduled Outcome = "scheduled"
	// OutcomeAlreadyScheduled means a live job already covers the media row.
	OutcomeAlreadyScheduled Outcome = "already_scheduled"
	// OutcomeExhausted means the retry budget is spent and the record is
	// disabled. Only an operator force schedules it again.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeError means nothing was dispatched and the record is untouched.
	OutcomeError Outcome = "error"
)

// Dispatcher hands a generation job to whatever executes it. The returned
// job id must be non-empty on success; an empty id means nothing was
// scheduled regardless of the error value.
type Dispatcher interface {
	Dispatch(ctx context.Context, mediaID int64, force bool, countdown time.Duration) (string, error)
}

// Scheduler decides whether a thumbnail job may run and records the
// decision. All budget accounting lives in the thumb_retries table so
// concurrent schedulers converge on one pending job per media row.
type Scheduler struct {
	cfg        *config.Config
	store      *catalog.Store
	logger     *slog.Logger
	dispatcher Dispatcher
}

// NewScheduler constructs a scheduler over the given dispatcher.
func NewScheduler(cfg *config.Config, store *catalog.Store, logger *slog.Logger, dispatcher Dispatcher) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		cfg:        cfg,
		store:      store,
		logger:     logger.With(logging.String(logging.FieldComponent, "thumbs")),
		dispatcher: dispatcher,
	}
}

// ScheduleIfAllowed loads or creates the retry record for the media row and
// dispatches a generation job unless the record forbids it. force bypasses
// the attempt budget and re-enables a disabled record, but never stacks a
// second job on a live one.
func (s *Scheduler) ScheduleIfAllowed(ctx context.Context, mediaID int64, force bool, blockers []string) (Outcome, error) {
	if s.dispatcher == nil {
		return OutcomeError, services.Wrap(services.ErrConfiguration, "thumbs", "schedule", "no dispatcher wired", nil)
	}

	record, err := s.store.EnsureThumbRetry(ctx, mediaID)
	if err != nil {
		return OutcomeError, err
	}

	if record.Disabled {
		if !force {
			return OutcomeExhausted, nil
		}
		if err := s.store.ReenableThumbRetry(ctx, mediaID); err != nil {
			return OutcomeError, err
		}
		s.logger.Info("thumb retry re-enabled by force",
			logging.Int64("media_id", mediaID),
			logging.String(logging.FieldEventType, "thumb_retry_reenabled"),
		)
	}

	if record.PendingJobID != "" {
		return OutcomeAlreadyScheduled, nil
	}

	if !force && record.Attempts >= s.cfg.Thumbnails.MaxAttempts {
		if err := s.store.DisableThumbRetry(ctx, mediaID, marshalBlockers(blockers)); err != nil {
			return OutcomeError, err
		}
		s.logger.Warn("thumb retry budget exhausted",
			logging.Int64("media_id", mediaID),
			logging.Int("attempts", record.Attempts),
			logging.Alert("thumb_exhausted"),
			logging.String(logging.FieldEventType, "thumb_retry_exhausted"),
		)
		return OutcomeExhausted, nil
	}

	countdown := s.countdown(record.Attempts)
	jobID, err := s.dispatcher.Dispatch(ctx, mediaID, force, countdown)
	if err != nil {
		return OutcomeError, services.Wrap(services.ErrScheduler, "thumbs", "dispatch", "dispatcher rejected the job", err)
	}
	if strings.TrimSpace(jobID) == "" {
		return OutcomeError, services.Wrap(services.ErrScheduler, "thumbs", "dispatch", "dispatcher returned no job id", nil)
	}

	marked, err := s.store.MarkThumbScheduled(ctx, mediaID, jobID, marshalBlockers(blockers))
	if err != nil {
		return OutcomeError, err
	}
	if !marked {
		// A concurrent scheduler recorded its job first. Ours still runs,
		// but its guarded clear will be a no-op and the record stays
		// consistent with exactly one pending job.
		s.logger.Debug("thumb schedule lost to a concurrent job",
			logging.Int64("media_id", mediaID),
			logging.String("job_id", jobID),
		)
		return OutcomeAlreadyScheduled, nil
	}

	s.logger.Info("thumbnail job scheduled",
		logging.Int64("media_id", mediaID),
		logging.String("job_id", jobID),
		logging.Int("attempt", record.Attempts+1),
		logging.Duration("countdown", countdown),
		logging.String(logging.FieldEventType, "thumb_scheduled"),
	)
	return OutcomeScheduled, nil
}

// Schedule is the fire-and-forget entry point used right after an import.
// Exhausted and already-scheduled outcomes are not errors for that caller.
func (s *Scheduler) Schedule(ctx context.Context, mediaID int64) error {
	_, err := s.ScheduleIfAllowed(ctx, mediaID, false, nil)
	return err
}

func (s *Scheduler) countdown(attempts int) time.Duration {
	base := time.Duration(s.cfg.Thumbnails.RetryCountdown) * time.Second
	if !s.cfg.Thumbnails.Backoff {
		return base
	}
	return catalog.BackoffDelay(base, attempts)
}

func marshalBlockers(blockers []string) string {
	if len(blockers) == 0 {
		return ""
	}
	encoded, err := json.Marshal(blockers)
	if err != nil {
		return ""
	}
	return string(encoded)
}
