package catalog_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/testsupport"
)

func TestAddSelectionsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-add")

	specs := []catalog.SelectionSpec{
		{SourceRef: "media/alpha", FileName: "alpha.mkv", MimeType: "video/x-matroska", ByteSize: 2048},
		{SourceRef: "media/beta"},
	}
	selections, err := store.AddSelections(ctx, session.ID, specs)
	if err != nil {
		t.Fatalf("AddSelections failed: %v", err)
	}
	if len(selections) != 2 {
		t.Fatalf("expected 2 selections, got %d", len(selections))
	}

	first := selections[0]
	if first.SessionID != session.ID {
		t.Fatalf("unexpected session id %d", first.SessionID)
	}
	if first.SourceRef != "media/alpha" || first.FileName != "alpha.mkv" || first.MimeType != "video/x-matroska" {
		t.Fatalf("unexpected fields: %+v", first)
	}
	if first.ByteSize != 2048 {
		t.Fatalf("unexpected byte size %d", first.ByteSize)
	}
	if first.Status != catalog.SelectionEnqueued {
		t.Fatalf("expected enqueued, got %q", first.Status)
	}
	if first.Attempts != 0 {
		t.Fatalf("expected zero attempts, got %d", first.Attempts)
	}
	if first.EnqueuedAt.IsZero() {
		t.Fatal("expected enqueued_at to be stamped")
	}
	if first.LockedBy != "" || first.LockHeartbeatAt != nil || first.StartedAt != nil {
		t.Fatalf("expected lock fields empty: %+v", first)
	}
	if first.MediaID != nil {
		t.Fatal("expected no media link yet")
	}

	second := selections[1]
	if second.FileName != "" || second.MimeType != "" {
		t.Fatalf("expected optional fields empty, got %+v", second)
	}

	none, err := store.AddSelections(ctx, session.ID, nil)
	if err != nil {
		t.Fatalf("AddSelections with no specs failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil result for empty specs, got %v", none)
	}
}

func TestClaimSelectionOutcomes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-claim")
	selections := testsupport.SeedSelections(t, store, session.ID, 1)
	sel := selections[0]

	result, err := store.ClaimSelection(ctx, sel.ID, session.ID, "worker-a")
	if err != nil {
		t.Fatalf("ClaimSelection failed: %v", err)
	}
	if result.Outcome != catalog.ClaimWon {
		t.Fatalf("expected won, got %s", result.Outcome)
	}
	claimed := result.Selection
	if claimed.Status != catalog.SelectionRunning {
		t.Fatalf("expected running, got %q", claimed.Status)
	}
	if claimed.LockedBy != "worker-a" {
		t.Fatalf("unexpected lock owner %q", claimed.LockedBy)
	}
	if claimed.LockHeartbeatAt == nil || claimed.StartedAt == nil {
		t.Fatalf("expected heartbeat and start stamps: %+v", claimed)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", claimed.Attempts)
	}

	// Second claim on the same row loses.
	result, err = store.ClaimSelection(ctx, sel.ID, session.ID, "worker-b")
	if err != nil {
		t.Fatalf("ClaimSelection failed: %v", err)
	}
	if result.Outcome != catalog.ClaimAlreadyTaken {
		t.Fatalf("expected already_taken, got %s", result.Outcome)
	}
	if result.Selection != nil {
		t.Fatal("expected no selection on a lost claim")
	}

	// Unknown id and mismatched session both classify as not found.
	result, err = store.ClaimSelection(ctx, sel.ID+999, session.ID, "worker-b")
	if err != nil {
		t.Fatalf("ClaimSelection failed: %v", err)
	}
	if result.Outcome != catalog.ClaimNotFound {
		t.Fatalf("expected not_found, got %s", result.Outcome)
	}
	result, err = store.ClaimSelection(ctx, sel.ID, session.ID+999, "worker-b")
	if err != nil {
		t.Fatalf("ClaimSelection failed: %v", err)
	}
	if result.Outcome != catalog.ClaimNotFound {
		t.Fatalf("expected not_found for wrong session, got %s", result.Outcome)
	}

	if _, err := store.ClaimSelection(ctx, sel.ID, session.ID, ""); err == nil {
		t.Fatal("expected empty worker id to be rejected")
	}
}

func TestClaimSelectionSingleWinnerUnderContention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-race")
	sel := testsupport.SeedSelections(t, store, session.ID, 1)[0]

	const workers = 8
	outcomes := make(chan catalog.ClaimOutcome, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			result, err := store.ClaimSelection(ctx, sel.ID, session.ID, fmt.Sprintf("worker-%d", n))
			if err != nil {
				errs <- err
				return
			}
			outcomes <- result.Outcome
		}(i)
	}
	wg.Wait()
	close(outcomes)
	close(errs)

	for err := range errs {
		t.Fatalf("ClaimSelection failed: %v", err)
	}

	var won, lost int
	for outcome := range outcomes {
		switch outcome {
		case catalog.ClaimWon:
			won++
		case catalog.ClaimAlreadyTaken:
			lost++
		default:
			t.Fatalf("unexpected outcome %s", outcome)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
	if lost != workers-1 {
		t.Fatalf("expected %d losers, got %d", workers-1, lost)
	}

	got, err := store.SelectionByID(ctx, sel.ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected a single attempt recorded, got %d", got.Attempts)
	}
}

func TestRenewLeaseRequiresOwnership(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-renew")
	sel := testsupport.SeedSelections(t, store, session.ID, 1)[0]
	claimed := testsupport.ClaimSelection(t, store, sel, "worker-a")

	before := *claimed.LockHeartbeatAt
	time.Sleep(20 * time.Millisecond)

	renewed, err := store.RenewLease(ctx, claimed.ID, "worker-a")
	if err != nil {
		t.Fatalf("RenewLease failed: %v", err)
	}
	if !renewed {
		t.Fatal("expected owner renewal to land")
	}
	got, err := store.SelectionByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if got.LockHeartbeatAt == nil || !got.LockHeartbeatAt.After(before) {
		t.Fatalf("expected heartbeat to advance past %v, got %v", before, got.LockHeartbeatAt)
	}

	renewed, err = store.RenewLease(ctx, claimed.ID, "worker-b")
	if err != nil {
		t.Fatalf("RenewLease failed: %v", err)
	}
	if renewed {
		t.Fatal("expected stranger renewal to miss")
	}

	// Once finalized there is no lease left to renew.
	if ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionFailed, "gone", nil); err != nil || !ok {
		t.Fatalf("FinalizeSelection failed: ok=%v err=%v", ok, err)
	}
	renewed, err = store.RenewLease(ctx, claimed.ID, "worker-a")
	if err != nil {
		t.Fatalf("RenewLease failed: %v", err)
	}
	if renewed {
		t.Fatal("expected renewal after finalize to miss")
	}
}

func TestFinalizeSelectionImported(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-finalize")
	sel := testsupport.SeedSelections(t, store, session.ID, 1)[0]
	claimed := testsupport.ClaimSelection(t, store, sel, "worker-a")

	media, err := store.InsertMedia(ctx, &catalog.Media{
		ContentHash: "hash-finalize",
		FilePath:    "/library/2026/file-1.mkv",
		SessionID:   session.ID,
	})
	if err != nil {
		t.Fatalf("InsertMedia failed: %v", err)
	}

	ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionImported, "", &media.ID)
	if err != nil {
		t.Fatalf("FinalizeSelection failed: %v", err)
	}
	if !ok {
		t.Fatal("expected finalize to land")
	}

	got, err := store.SelectionByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if got.Status != catalog.SelectionImported {
		t.Fatalf("expected imported, got %q", got.Status)
	}
	if got.LockedBy != "" || got.LockHeartbeatAt != nil {
		t.Fatalf("expected lock cleared: %+v", got)
	}
	if got.FinishedAt == nil || got.LastTransitionAt == nil {
		t.Fatalf("expected finish stamps: %+v", got)
	}
	if got.MediaID == nil || *got.MediaID != media.ID {
		t.Fatalf("expected media link %d, got %v", media.ID, got.MediaID)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("expected empty error, got %q", got.ErrorMessage)
	}
}

func TestFinalizeSelectionGuards(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-fin-guard")
	sel := testsupport.SeedSelections(t, store, session.ID, 1)[0]
	claimed := testsupport.ClaimSelection(t, store, sel, "worker-a")

	// Running is not a resting state, so it is not a legal target.
	if _, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionRunning, "", nil); err == nil {
		t.Fatal("expected non-terminal target to be rejected")
	}

	ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-b", catalog.SelectionFailed, "not mine", nil)
	if err != nil {
		t.Fatalf("FinalizeSelection failed: %v", err)
	}
	if ok {
		t.Fatal("expected finalize by a stranger to miss")
	}
	got, err := store.SelectionByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if got.Status != catalog.SelectionRunning || got.LockedBy != "worker-a" {
		t.Fatalf("expected row untouched, got %+v", got)
	}
}

func TestFinalizeSelectionAfterReclaimMisses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-fin-reclaim")
	sel := testsupport.SeedSelections(t, store, session.ID, 1)[0]
	claimed := testsupport.ClaimSelection(t, store, sel, "worker-a")

	// The watchdog takes the row back while the worker is still busy.
	future := time.Now().Add(time.Hour)
	target, reclaimed, err := store.ReclaimStaleSelection(ctx, claimed, future, future, 4, "lease expired")
	if err != nil {
		t.Fatalf("ReclaimStaleSelection failed: %v", err)
	}
	if !reclaimed || target != catalog.SelectionEnqueued {
		t.Fatalf("expected reclaim to enqueued, got target=%s reclaimed=%v", target, reclaimed)
	}

	// The worker's late result has nowhere to land.
	ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionImported, "", nil)
	if err != nil {
		t.Fatalf("FinalizeSelection failed: %v", err)
	}
	if ok {
		t.Fatal("expected finalize after reclaim to miss")
	}
	got, err := store.SelectionByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if got.Status != catalog.SelectionEnqueued {
		t.Fatalf("expected row to stay enqueued, got %q", got.Status)
	}
}

func TestReleaseForRetryKeepsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-release")
	sel := testsupport.SeedSelections(t, store, session.ID, 1)[0]
	claimed := testsupport.ClaimSelection(t, store, sel, "worker-a")

	released, err := store.ReleaseForRetry(ctx, claimed.ID, "worker-a", "connection reset")
	if err != nil {
		t.Fatalf("ReleaseForRetry failed: %v", err)
	}
	if !released {
		t.Fatal("expected release to land")
	}

	got, err := store.SelectionByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if got.Status != catalog.SelectionEnqueued {
		t.Fatalf("expected enqueued, got %q", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected attempts preserved, got %d", got.Attempts)
	}
	if got.LockedBy != "" || got.LockHeartbeatAt != nil || got.StartedAt != nil {
		t.Fatalf("expected lock and start cleared: %+v", got)
	}
	if got.ErrorMessage != "connection reset" {
		t.Fatalf("expected failure note, got %q", got.ErrorMessage)
	}

	// Attempts keep climbing across claim cycles and never reset.
	reclaimed := testsupport.ClaimSelection(t, store, got, "worker-b")
	if reclaimed.Attempts != 2 {
		t.Fatalf("expected attempts=2 on second claim, got %d", reclaimed.Attempts)
	}
	if reclaimed.ErrorMessage != "" {
		t.Fatalf("expected claim to clear the old error, got %q", reclaimed.ErrorMessage)
	}
}

func TestRequeueFailedSelection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-requeue")
	sel := testsupport.SeedSelections(t, store, session.ID, 1)[0]
	claimed := testsupport.ClaimSelection(t, store, sel, "worker-a")
	if ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionFailed, "bad checksum", nil); err != nil || !ok {
		t.Fatalf("FinalizeSelection failed: ok=%v err=%v", ok, err)
	}

	moved, err := store.RequeueFailedSelection(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("RequeueFailedSelection failed: %v", err)
	}
	if !moved {
		t.Fatal("expected requeue to land")
	}
	got, err := store.SelectionByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if got.Status != catalog.SelectionEnqueued {
		t.Fatalf("expected enqueued, got %q", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected attempts preserved, got %d", got.Attempts)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", got.ErrorMessage)
	}

	// Only failed rows are eligible.
	moved, err = store.RequeueFailedSelection(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("RequeueFailedSelection failed: %v", err)
	}
	if moved {
		t.Fatal("expected requeue of an enqueued row to miss")
	}
}

func TestSkipSelection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-skip")
	selections := testsupport.SeedSelections(t, store, session.ID, 2)

	skipped, err := store.SkipSelection(ctx, selections[0].ID, "session canceled")
	if err != nil {
		t.Fatalf("SkipSelection failed: %v", err)
	}
	if !skipped {
		t.Fatal("expected skip to land")
	}
	got, err := store.SelectionByID(ctx, selections[0].ID)
	if err != nil {
		t.Fatalf("SelectionByID failed: %v", err)
	}
	if got.Status != catalog.SelectionSkipped {
		t.Fatalf("expected skipped, got %q", got.Status)
	}
	if got.ErrorMessage != "session canceled" {
		t.Fatalf("unexpected reason %q", got.ErrorMessage)
	}
	if got.FinishedAt == nil {
		t.Fatal("expected finished_at to be stamped")
	}

	// Running rows belong to their worker; skip only takes enqueued ones.
	testsupport.ClaimSelection(t, store, selections[1], "worker-a")
	skipped, err = store.SkipSelection(ctx, selections[1].ID, "late cancel")
	if err != nil {
		t.Fatalf("SkipSelection failed: %v", err)
	}
	if skipped {
		t.Fatal("expected skip of a running row to miss")
	}
}

func TestNextEnqueuedOrdersOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-next")
	selections := testsupport.SeedSelections(t, store, session.ID, 3)
	testsupport.ClaimSelection(t, store, selections[0], "worker-a")

	next, err := store.NextEnqueued(ctx, 10)
	if err != nil {
		t.Fatalf("NextEnqueued failed: %v", err)
	}
	if len(next) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(next))
	}
	if next[0].ID != selections[1].ID || next[1].ID != selections[2].ID {
		t.Fatalf("expected oldest-first candidates, got %d then %d", next[0].ID, next[1].ID)
	}

	one, err := store.NextEnqueued(ctx, 0)
	if err != nil {
		t.Fatalf("NextEnqueued failed: %v", err)
	}
	if len(one) != 1 {
		t.Fatalf("expected limit to default to one candidate, got %d", len(one))
	}
}

func TestCountsBySession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-counts")
	selections := testsupport.SeedSelections(t, store, session.ID, 4)

	claimed := testsupport.ClaimSelection(t, store, selections[0], "worker-a")
	media, err := store.InsertMedia(ctx, &catalog.Media{
		ContentHash: "hash-counts",
		FilePath:    "/library/2026/file-counts.mkv",
		SessionID:   session.ID,
	})
	if err != nil {
		t.Fatalf("InsertMedia failed: %v", err)
	}
	if ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionImported, "", &media.ID); err != nil || !ok {
		t.Fatalf("FinalizeSelection failed: ok=%v err=%v", ok, err)
	}

	claimed = testsupport.ClaimSelection(t, store, selections[1], "worker-a")
	if ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionFailed, "boom", nil); err != nil || !ok {
		t.Fatalf("FinalizeSelection failed: ok=%v err=%v", ok, err)
	}

	testsupport.ClaimSelection(t, store, selections[2], "worker-b")

	counts, err := store.CountsBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("CountsBySession failed: %v", err)
	}
	want := catalog.SessionCounts{Total: 4, Pending: 1, Processing: 1, Imported: 1, Failed: 1}
	if counts != want {
		t.Fatalf("expected %+v, got %+v", want, counts)
	}
	if counts.Succeeded() != 1 {
		t.Fatalf("expected 1 success, got %d", counts.Succeeded())
	}
	if counts.Settled() != 2 {
		t.Fatalf("expected 2 settled, got %d", counts.Settled())
	}
}
