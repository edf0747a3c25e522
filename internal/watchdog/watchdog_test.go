package watchdog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/logging"
	"carousel/internal/notifications"
	"carousel/internal/testsupport"
	"carousel/internal/watchdog"
)

type recordingNotifier struct {
	notifications.Service
	mu        sync.Mutex
	imported  []catalog.SessionCounts
	failed    []catalog.SessionCounts
	exhausted []string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{}
}

func (r *recordingNotifier) NotifySessionImported(_ context.Context, _ string, counts catalog.SessionCounts) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imported = append(r.imported, counts)
	return nil
}

func (r *recordingNotifier) NotifySessionFailed(_ context.Context, _ string, counts catalog.SessionCounts) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, counts)
	return nil
}

func (r *recordingNotifier) NotifyRetriesExhausted(_ context.Context, subject string, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted = append(r.exhausted, subject)
	return nil
}

func (r *recordingNotifier) NotifyError(context.Context, error, string) error { return nil }
func (r *recordingNotifier) TestNotification(context.Context) error           { return nil }

type stubEnqueuer struct {
	mu        sync.Mutex
	published []int64
	err       error
}

func (s *stubEnqueuer) Publish(_ context.Context, sel *catalog.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, sel.ID)
	return nil
}

type stubTracker struct {
	mu       sync.Mutex
	outcomes []catalog.SessionStatus
	jobRef   string
	err      error
}

func (s *stubTracker) RecordOutcome(_ context.Context, _ *catalog.Session, outcome catalog.SessionStatus, _ catalog.SessionCounts) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.outcomes = append(s.outcomes, outcome)
	return s.jobRef, nil
}

func finalizeTo(t *testing.T, store *catalog.Store, sel *catalog.Selection, worker string, terminal catalog.SelectionStatus, mediaID *int64) {
	t.Helper()
	claimed := testsupport.ClaimSelection(t, store, sel, worker)
	ok, err := store.FinalizeSelection(context.Background(), claimed.ID, worker, terminal, "", mediaID)
	if err != nil || !ok {
		t.Fatalf("FinalizeSelection to %s failed: ok=%v err=%v", terminal, ok, err)
	}
}

func TestRollupAnySuccessLandsImported(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-rollup")
	if _, err := store.ForceSessionStatus(ctx, session.ID, catalog.SessionImporting, ""); err != nil {
		t.Fatalf("ForceSessionStatus failed: %v", err)
	}
	selections := testsupport.SeedSelections(t, store, session.ID, 5)

	for i, sel := range selections[:3] {
		media, err := store.InsertMedia(ctx, &catalog.Media{
			ContentHash: sel.SourceRef,
			FilePath:    "/library/" + sel.FileName,
			FileName:    sel.FileName,
			ByteSize:    int64(100 + i),
			SessionID:   session.ID,
			ThumbState:  catalog.ThumbPending,
		})
		if err != nil {
			t.Fatalf("InsertMedia failed: %v", err)
		}
		finalizeTo(t, store, sel, "worker-a", catalog.SelectionImported, &media.ID)
	}
	for _, sel := range selections[3:] {
		finalizeTo(t, store, sel, "worker-a", catalog.SelectionFailed, nil)
	}

	notifier := newRecordingNotifier()
	tracker := &stubTracker{jobRef: "job-42"}
	w := watchdog.New(cfg, store, logging.NewNop(), notifier, watchdog.WithJobTracker(tracker))

	report := w.RunOnce(ctx)
	if report.RolledUp != 1 {
		t.Fatalf("expected one rolled-up session, got %d", report.RolledUp)
	}

	finished, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if finished.Status != catalog.SessionImported {
		t.Fatalf("expected imported despite failures, got %q", finished.Status)
	}
	if finished.Counts.Imported != 3 || finished.Counts.Failed != 2 || finished.Counts.Total != 5 {
		t.Fatalf("unexpected counters: %+v", finished.Counts)
	}
	if finished.FinishedAt == nil {
		t.Fatal("expected finished_at to be stamped")
	}
	if finished.JobRef != "job-42" {
		t.Fatalf("expected job ref propagated, got %q", finished.JobRef)
	}
	if len(notifier.imported) != 1 || notifier.imported[0].Imported != 3 {
		t.Fatalf("expected one imported notification with counts, got %+v", notifier.imported)
	}
	if len(tracker.outcomes) != 1 || tracker.outcomes[0] != catalog.SessionImported {
		t.Fatalf("expected tracker outcome imported, got %v", tracker.outcomes)
	}

	// A second sweep over the same state is a no-op.
	again := w.RunOnce(ctx)
	if again.RolledUp != 0 {
		t.Fatalf("expected idempotent rollup, got %d", again.RolledUp)
	}
	refetched, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if !refetched.FinishedAt.Equal(*finished.FinishedAt) {
		t.Fatal("expected finished_at unchanged on repeat sweep")
	}
	if len(notifier.imported) != 1 {
		t.Fatalf("expected no duplicate notification, got %d", len(notifier.imported))
	}
}

func TestRollupAllFailedLandsFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-allfail")
	if _, err := store.ForceSessionStatus(ctx, session.ID, catalog.SessionImporting, ""); err != nil {
		t.Fatalf("ForceSessionStatus failed: %v", err)
	}
	for _, sel := range testsupport.SeedSelections(t, store, session.ID, 2) {
		finalizeTo(t, store, sel, "worker-a", catalog.SelectionFailed, nil)
	}

	notifier := newRecordingNotifier()
	w := watchdog.New(cfg, store, logging.NewNop(), notifier)
	if report := w.RunOnce(ctx); report.RolledUp != 1 {
		t.Fatalf("expected rollup, got %+v", report)
	}

	finished, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if finished.Status != catalog.SessionFailed {
		t.Fatalf("expected failed, got %q", finished.Status)
	}
	if len(notifier.failed) != 1 {
		t.Fatalf("expected one failed notification, got %d", len(notifier.failed))
	}
}

func TestRollupNothingSucceededNothingFailedLandsError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-expired")
	if _, err := store.ForceSessionStatus(ctx, session.ID, catalog.SessionImporting, ""); err != nil {
		t.Fatalf("ForceSessionStatus failed: %v", err)
	}
	for _, sel := range testsupport.SeedSelections(t, store, session.ID, 2) {
		finalizeTo(t, store, sel, "worker-a", catalog.SelectionExpired, nil)
	}

	w := watchdog.New(cfg, store, logging.NewNop(), newRecordingNotifier())
	if report := w.RunOnce(ctx); report.RolledUp != 1 {
		t.Fatalf("expected rollup, got %+v", report)
	}

	finished, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if finished.Status != catalog.SessionError {
		t.Fatalf("expected error, got %q", finished.Status)
	}
}

func TestRollupWaitsForRetryableFailures(t *testing.T) {
	// Default budget is four attempts; a failed row with one attempt is
	// still retryable and must hold the session open.
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-wait")
	if _, err := store.ForceSessionStatus(ctx, session.ID, catalog.SessionImporting, ""); err != nil {
		t.Fatalf("ForceSessionStatus failed: %v", err)
	}
	sel := testsupport.SeedSelections(t, store, session.ID, 1)[0]
	finalizeTo(t, store, sel, "worker-a", catalog.SelectionFailed, nil)

	w := watchdog.New(cfg, store, logging.NewNop(), newRecordingNotifier())
	if report := w.RunOnce(ctx); report.RolledUp != 0 {
		t.Fatalf("expected no rollup while a retry is pending, got %d", report.RolledUp)
	}

	open, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if open.Status != catalog.SessionImporting {
		t.Fatalf("expected session still importing, got %q", open.Status)
	}
}

func TestReclaimStaleRequeuesAndExhausts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Import.LeaseWindow = -3600 // future cutoff: every running row is stale
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-stale")
	selections := testsupport.SeedSelections(t, store, session.ID, 2)

	// First selection has budget left; the second is on its final attempt.
	testsupport.ClaimSelection(t, store, selections[0], "worker-dead")
	for i := 0; i < cfg.Import.MaxAttempts-1; i++ {
		claimed := testsupport.ClaimSelection(t, store, selections[1], "worker-dead")
		if released, err := store.ReleaseForRetry(ctx, claimed.ID, "worker-dead", "transient"); err != nil || !released {
			t.Fatalf("ReleaseForRetry failed: released=%v err=%v", released, err)
		}
	}
	testsupport.ClaimSelection(t, store, selections[1], "worker-dead")

	notifier := newRecordingNotifier()
	w := watchdog.New(cfg, store, logging.NewNop(), notifier)
	report := w.RunOnce(ctx)
	if report.Reclaimed != 2 {
		t.Fatalf("expected two reclaims, got %d", report.Reclaimed)
	}

	first, err := store.SelectionByID(ctx, selections[0].ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if first.Status != catalog.SelectionEnqueued {
		t.Fatalf("expected requeue, got %q", first.Status)
	}
	if first.LockedBy != "" || first.LockHeartbeatAt != nil || first.StartedAt != nil {
		t.Fatalf("expected lock fields cleared: %+v", first)
	}
	if first.Attempts != 1 {
		t.Fatalf("expected attempts preserved, got %d", first.Attempts)
	}

	second, err := store.SelectionByID(ctx, selections[1].ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if second.Status != catalog.SelectionFailed {
		t.Fatalf("expected exhausted selection failed, got %q", second.Status)
	}
	if second.Attempts != cfg.Import.MaxAttempts {
		t.Fatalf("expected attempts at budget, got %d", second.Attempts)
	}
	if len(notifier.exhausted) != 1 {
		t.Fatalf("expected one exhaustion notification, got %v", notifier.exhausted)
	}
}

func TestRepublishStuckLeavesRowsUntouched(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watchdog.StuckEnqueuedAfter = -3600 // future cutoff: every enqueued row is stuck
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-stuck")
	sel := testsupport.SeedSelections(t, store, session.ID, 1)[0]

	enqueuer := &stubEnqueuer{}
	w := watchdog.New(cfg, store, logging.NewNop(), newRecordingNotifier(), watchdog.WithEnqueuer(enqueuer))
	report := w.RunOnce(ctx)
	if report.Republished != 1 {
		t.Fatalf("expected one republish, got %d", report.Republished)
	}
	if len(enqueuer.published) != 1 || enqueuer.published[0] != sel.ID {
		t.Fatalf("expected publish for selection %d, got %v", sel.ID, enqueuer.published)
	}

	after, err := store.SelectionByID(ctx, sel.ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if after.Status != catalog.SelectionEnqueued || after.Attempts != 0 {
		t.Fatalf("republish must not modify the row: %+v", after)
	}
}

func TestRepublishErrorsAreBestEffort(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watchdog.StuckEnqueuedAfter = -3600
	store := testsupport.MustOpenStore(t, cfg)

	session := testsupport.NewPickerSession(t, store, "picker-stuckerr")
	testsupport.SeedSelections(t, store, session.ID, 1)

	enqueuer := &stubEnqueuer{err: errors.New("broker down")}
	w := watchdog.New(cfg, store, logging.NewNop(), newRecordingNotifier(), watchdog.WithEnqueuer(enqueuer))
	report := w.RunOnce(context.Background())
	if report.Republished != 0 {
		t.Fatalf("expected zero successful republishes, got %d", report.Republished)
	}
	if report.FirstError != nil {
		t.Fatalf("publish failures are best effort, got %v", report.FirstError)
	}
}

func TestBackoffRequeueThroughSweep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Import.BackoffBase = 0 // every failed row is immediately due
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-backoff-sweep")
	sel := testsupport.SeedSelections(t, store, session.ID, 1)[0]
	finalizeTo(t, store, sel, "worker-a", catalog.SelectionFailed, nil)

	w := watchdog.New(cfg, store, logging.NewNop(), newRecordingNotifier())
	report := w.RunOnce(ctx)
	if report.Requeued != 1 {
		t.Fatalf("expected one requeue, got %d", report.Requeued)
	}

	after, err := store.SelectionByID(ctx, sel.ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if after.Status != catalog.SelectionEnqueued {
		t.Fatalf("expected enqueued, got %q", after.Status)
	}
	if after.Attempts != 1 {
		t.Fatalf("expected attempts preserved across requeue, got %d", after.Attempts)
	}
}

func TestValidationSweepFlagsDrift(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watchdog.ValidateEvery = 1
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-drift")
	testsupport.SeedSelections(t, store, session.ID, 1)
	// Force a closed session over still-open selections.
	if _, err := store.ForceSessionStatus(ctx, session.ID, catalog.SessionImported, "operator override"); err != nil {
		t.Fatalf("ForceSessionStatus failed: %v", err)
	}

	w := watchdog.New(cfg, store, logging.NewNop(), newRecordingNotifier())
	report := w.RunOnce(ctx)
	if report.Issues == 0 {
		t.Fatal("expected validation issues for open items under a closed session")
	}
}

func TestStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watchdog.Interval = 1
	store := testsupport.MustOpenStore(t, cfg)

	w := watchdog.New(cfg, store, logging.NewNop(), newRecordingNotifier())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Fatal("expected double start to fail")
	}

	deadline := time.After(10 * time.Second)
	for w.Status().Sweeps == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a sweep")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	w.Stop()
	if w.Status().Running {
		t.Fatal("expected stopped watchdog")
	}
}
