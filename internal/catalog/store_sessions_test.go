package catalog_test

import (
	"context"
	"testing"

	"carousel/internal/catalog"
	"carousel/internal/testsupport"
)

func TestCreateSessionStartsPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, catalog.ProviderPicker, "picker-123", "holiday batch")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Status != catalog.SessionPending {
		t.Fatalf("expected pending status, got %q", session.Status)
	}
	if session.Provider != catalog.ProviderPicker {
		t.Fatalf("unexpected provider %q", session.Provider)
	}
	if session.Label != "holiday batch" {
		t.Fatalf("unexpected label %q", session.Label)
	}
	if session.CreatedAt.IsZero() || session.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be stamped")
	}
	if session.FinishedAt != nil {
		t.Fatal("expected finished_at to start empty")
	}

	byPicker, err := store.SessionByPickerID(ctx, "picker-123")
	if err != nil {
		t.Fatalf("SessionByPickerID failed: %v", err)
	}
	if byPicker == nil || byPicker.ID != session.ID {
		t.Fatalf("picker lookup returned %+v", byPicker)
	}
}

func TestSessionByPickerIDReturnsMostRecent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first, err := store.CreateSession(ctx, catalog.ProviderPicker, "picker-repeat", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := store.CreateSession(ctx, catalog.ProviderPicker, "picker-repeat", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("expected increasing ids, got %d then %d", first.ID, second.ID)
	}

	got, err := store.SessionByPickerID(ctx, "picker-repeat")
	if err != nil {
		t.Fatalf("SessionByPickerID failed: %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Fatalf("expected most recent session %d, got %+v", second.ID, got)
	}
}

func TestTransitionSessionGuardedSwap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-guard")

	moved, err := store.TransitionSession(ctx, session.ID, catalog.SessionPending, catalog.SessionReady, "")
	if err != nil {
		t.Fatalf("TransitionSession failed: %v", err)
	}
	if !moved {
		t.Fatal("expected first transition to match")
	}

	// Same expected status again: the row moved on, so the swap must miss.
	moved, err = store.TransitionSession(ctx, session.ID, catalog.SessionPending, catalog.SessionExpanding, "")
	if err != nil {
		t.Fatalf("TransitionSession failed: %v", err)
	}
	if moved {
		t.Fatal("expected stale transition to miss")
	}

	got, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got.Status != catalog.SessionReady {
		t.Fatalf("expected status to stay ready, got %q", got.Status)
	}
}

func TestForceSessionStatusIgnoresGuards(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-force")

	moved, err := store.ForceSessionStatus(ctx, session.ID, catalog.SessionCanceled, "operator cancel")
	if err != nil {
		t.Fatalf("ForceSessionStatus failed: %v", err)
	}
	if !moved {
		t.Fatal("expected force to land")
	}

	// Canceled is terminal, yet a force still overwrites it.
	moved, err = store.ForceSessionStatus(ctx, session.ID, catalog.SessionProcessing, "")
	if err != nil {
		t.Fatalf("ForceSessionStatus failed: %v", err)
	}
	if !moved {
		t.Fatal("expected force out of terminal status to land")
	}

	got, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got.Status != catalog.SessionProcessing {
		t.Fatalf("expected processing, got %q", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("expected error message to be cleared, got %q", got.ErrorMessage)
	}
}

func TestFinishSessionRollsUpOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-finish")
	if moved, err := store.TransitionSession(ctx, session.ID, catalog.SessionPending, catalog.SessionImporting, ""); err != nil || !moved {
		t.Fatalf("TransitionSession failed: moved=%v err=%v", moved, err)
	}

	selections := testsupport.SeedSelections(t, store, session.ID, 2)
	claimed := testsupport.ClaimSelection(t, store, selections[0], "worker-a")

	media, err := store.InsertMedia(ctx, &catalog.Media{
		ContentHash: "hash-finish-1",
		FilePath:    "/library/2026/file-1.mkv",
		FileName:    "file-1.mkv",
		ByteSize:    1024,
		SessionID:   session.ID,
	})
	if err != nil {
		t.Fatalf("InsertMedia failed: %v", err)
	}
	if ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionImported, "", &media.ID); err != nil || !ok {
		t.Fatalf("FinalizeSelection failed: ok=%v err=%v", ok, err)
	}

	claimed = testsupport.ClaimSelection(t, store, selections[1], "worker-a")
	if ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionSkipped, "operator skip", nil); err != nil || !ok {
		t.Fatalf("FinalizeSelection failed: ok=%v err=%v", ok, err)
	}

	counts, err := store.CountsBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("CountsBySession failed: %v", err)
	}
	moved, err := store.FinishSession(ctx, session.ID, catalog.SessionImported, counts, "")
	if err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}
	if !moved {
		t.Fatal("expected roll-up to land")
	}

	got, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got.Status != catalog.SessionImported {
		t.Fatalf("expected imported, got %q", got.Status)
	}
	if got.FinishedAt == nil {
		t.Fatal("expected finished_at to be stamped")
	}
	if got.Counts.Total != 2 || got.Counts.Imported != 1 || got.Counts.Skipped != 1 {
		t.Fatalf("unexpected counters: %+v", got.Counts)
	}

	// A second roll-up must miss: imported is not an active status.
	moved, err = store.FinishSession(ctx, session.ID, catalog.SessionError, counts, "bogus")
	if err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}
	if moved {
		t.Fatal("expected repeat roll-up to miss")
	}
}

func TestFinishSessionRejectsIdleSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-idle")

	moved, err := store.FinishSession(ctx, session.ID, catalog.SessionImported, catalog.SessionCounts{}, "")
	if err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}
	if moved {
		t.Fatal("expected pending session to be ineligible for roll-up")
	}
}

func TestRefreshSessionCountsKeepsStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-refresh")
	selections := testsupport.SeedSelections(t, store, session.ID, 3)
	testsupport.ClaimSelection(t, store, selections[0], "worker-a")

	counts, err := store.RefreshSessionCounts(ctx, session.ID)
	if err != nil {
		t.Fatalf("RefreshSessionCounts failed: %v", err)
	}
	if counts.Total != 3 || counts.Pending != 2 || counts.Processing != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	got, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got.Status != catalog.SessionPending {
		t.Fatalf("expected status untouched, got %q", got.Status)
	}
	if got.Counts != counts {
		t.Fatalf("expected persisted counters %+v, got %+v", counts, got.Counts)
	}
}

func TestRollupCandidatesRespectRetryBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-rollup")
	if moved, err := store.TransitionSession(ctx, session.ID, catalog.SessionPending, catalog.SessionEnqueued, ""); err != nil || !moved {
		t.Fatalf("TransitionSession failed: moved=%v err=%v", moved, err)
	}
	selections := testsupport.SeedSelections(t, store, session.ID, 1)

	assertCandidates := func(maxAttempts int, want int) {
		t.Helper()
		candidates, err := store.RollupCandidates(ctx, maxAttempts)
		if err != nil {
			t.Fatalf("RollupCandidates failed: %v", err)
		}
		if len(candidates) != want {
			t.Fatalf("expected %d candidates, got %d", want, len(candidates))
		}
	}

	// Enqueued work keeps the session out.
	assertCandidates(4, 0)

	claimed := testsupport.ClaimSelection(t, store, selections[0], "worker-a")
	assertCandidates(4, 0)

	if ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionFailed, "transfer aborted", nil); err != nil || !ok {
		t.Fatalf("FinalizeSelection failed: ok=%v err=%v", ok, err)
	}

	// One attempt spent out of four: the failure is still retryable, so
	// the session is not settled yet.
	assertCandidates(4, 0)

	// With the budget already spent the same failure is final.
	assertCandidates(1, 1)
}

func TestRollupCandidatesSkipEmptyAndIdleSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	// Active but empty: expansion has not produced selections yet.
	empty := testsupport.NewPickerSession(t, store, "picker-empty")
	if moved, err := store.TransitionSession(ctx, empty.ID, catalog.SessionPending, catalog.SessionExpanding, ""); err != nil || !moved {
		t.Fatalf("TransitionSession failed: moved=%v err=%v", moved, err)
	}

	// Settled selections under a pending session: not active, so not a
	// roll-up candidate either.
	idle := testsupport.NewPickerSession(t, store, "picker-idle-rollup")
	selections := testsupport.SeedSelections(t, store, idle.ID, 1)
	claimed := testsupport.ClaimSelection(t, store, selections[0], "worker-a")
	if ok, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionSkipped, "", nil); err != nil || !ok {
		t.Fatalf("FinalizeSelection failed: ok=%v err=%v", ok, err)
	}

	candidates, err := store.RollupCandidates(ctx, 4)
	if err != nil {
		t.Fatalf("RollupCandidates failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
}

func TestSetSessionJobRef(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-jobref")

	if err := store.SetSessionJobRef(ctx, session.ID, "jobs/2026/000123"); err != nil {
		t.Fatalf("SetSessionJobRef failed: %v", err)
	}
	got, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got.JobRef != "jobs/2026/000123" {
		t.Fatalf("unexpected job ref %q", got.JobRef)
	}

	if err := store.SetSessionJobRef(ctx, session.ID, ""); err != nil {
		t.Fatalf("SetSessionJobRef failed: %v", err)
	}
	got, err = store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got.JobRef != "" {
		t.Fatalf("expected cleared job ref, got %q", got.JobRef)
	}
}

func TestSessionsFilterByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewPickerSession(t, store, "picker-list-a")
	b := testsupport.NewPickerSession(t, store, "picker-list-b")
	c := testsupport.NewDropSession(t, store)

	if moved, err := store.TransitionSession(ctx, b.ID, catalog.SessionPending, catalog.SessionExpanding, ""); err != nil || !moved {
		t.Fatalf("TransitionSession failed: moved=%v err=%v", moved, err)
	}

	all, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(all))
	}

	expanding, err := store.Sessions(ctx, catalog.SessionExpanding)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(expanding) != 1 || expanding[0].ID != b.ID {
		t.Fatalf("unexpected expanding set: %+v", expanding)
	}

	pending, err := store.Sessions(ctx, catalog.SessionPending)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending sessions, got %d", len(pending))
	}
	if pending[0].ID != a.ID || pending[1].ID != c.ID {
		t.Fatalf("expected oldest-first ordering, got %d then %d", pending[0].ID, pending[1].ID)
	}
}
