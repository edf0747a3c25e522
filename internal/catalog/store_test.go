package catalog_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("expected a readable database, got %+v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("expected no missing tables, got %v", health.MissingTables)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
	if health.SchemaVersion != "1" {
		t.Fatalf("unexpected schema version %q", health.SchemaVersion)
	}
}

func TestOpenPathReopensExistingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	first, err := catalog.OpenPath(dbPath)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	session, err := first.CreateSession(ctx, catalog.ProviderPicker, "picker-abc", "first batch")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := catalog.OpenPath(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	got, err := second.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session to survive reopen")
	}
	if got.PickerSessionID != "picker-abc" {
		t.Fatalf("unexpected picker session id %q", got.PickerSessionID)
	}
}

func TestHealthAggregatesSelectionStates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-health")
	selections := testsupport.SeedSelections(t, store, session.ID, 3)

	testsupport.ClaimSelection(t, store, selections[0], "worker-a")
	claimed := testsupport.ClaimSelection(t, store, selections[1], "worker-b")
	finalized, err := store.FinalizeSelection(ctx, claimed.ID, "worker-b", catalog.SelectionFailed, "checksum mismatch", nil)
	if err != nil {
		t.Fatalf("FinalizeSelection failed: %v", err)
	}
	if !finalized {
		t.Fatal("expected finalize to land")
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 {
		t.Fatalf("expected 3 selections, got %d", health.Total)
	}
	if health.Enqueued != 1 || health.Running != 1 || health.Failed != 1 {
		t.Fatalf("unexpected tallies: %+v", health)
	}
}

func TestRecordTransitionAppendsAuditTrail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewPickerSession(t, store, "picker-audit")

	records := []catalog.Transition{
		{
			Entity:     catalog.EntitySession,
			EntityID:   session.ID,
			FromStatus: string(catalog.SessionPending),
			ToStatus:   string(catalog.SessionExpanding),
			Reason:     "expansion started",
		},
		{
			Entity:     catalog.EntitySession,
			EntityID:   session.ID,
			FromStatus: string(catalog.SessionExpanding),
			ToStatus:   string(catalog.SessionCanceled),
			Reason:     "operator cancel",
			Forced:     true,
			MetaJSON:   `{"operator":"cli"}`,
		},
	}
	for _, rec := range records {
		if err := store.RecordTransition(ctx, rec); err != nil {
			t.Fatalf("RecordTransition failed: %v", err)
		}
	}

	trail, err := store.TransitionsForEntity(ctx, catalog.EntitySession, session.ID)
	if err != nil {
		t.Fatalf("TransitionsForEntity failed: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(trail))
	}
	if trail[0].ToStatus != string(catalog.SessionExpanding) || trail[0].Forced {
		t.Fatalf("unexpected first record: %+v", trail[0])
	}
	if !trail[1].Forced {
		t.Fatal("expected second record to be marked forced")
	}
	if trail[1].MetaJSON != `{"operator":"cli"}` {
		t.Fatalf("unexpected meta payload %q", trail[1].MetaJSON)
	}
	if trail[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be stamped")
	}

	other, err := store.TransitionsForEntity(ctx, catalog.EntitySelection, session.ID)
	if err != nil {
		t.Fatalf("TransitionsForEntity failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no selection records, got %d", len(other))
	}
}

func TestPruneTerminalSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	finished := testsupport.NewPickerSession(t, store, "picker-done")
	moved, err := store.TransitionSession(ctx, finished.ID, catalog.SessionPending, catalog.SessionExpanding, "")
	if err != nil || !moved {
		t.Fatalf("TransitionSession failed: moved=%v err=%v", moved, err)
	}
	doneSelections := testsupport.SeedSelections(t, store, finished.ID, 2)
	for _, sel := range doneSelections {
		claimed := testsupport.ClaimSelection(t, store, sel, "worker-a")
		if _, err := store.FinalizeSelection(ctx, claimed.ID, "worker-a", catalog.SelectionExpired, "picker session expired", nil); err != nil {
			t.Fatalf("FinalizeSelection failed: %v", err)
		}
	}
	counts, err := store.CountsBySession(ctx, finished.ID)
	if err != nil {
		t.Fatalf("CountsBySession failed: %v", err)
	}
	if _, err := store.FinishSession(ctx, finished.ID, catalog.SessionExpired, counts, ""); err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}

	active := testsupport.NewPickerSession(t, store, "picker-active")
	testsupport.SeedSelections(t, store, active.ID, 1)

	pruned, err := store.PruneTerminalSessions(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneTerminalSessions failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned session, got %d", pruned)
	}

	gone, err := store.SessionByID(ctx, finished.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if gone != nil {
		t.Fatal("expected terminal session to be deleted")
	}
	leftover, err := store.SelectionsBySession(ctx, finished.ID)
	if err != nil {
		t.Fatalf("SelectionsBySession failed: %v", err)
	}
	if len(leftover) != 0 {
		t.Fatalf("expected selections to be deleted with their session, got %d", len(leftover))
	}

	kept, err := store.SessionByID(ctx, active.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if kept == nil {
		t.Fatal("expected active session to survive pruning")
	}
}

func TestParseStatusHelpers(t *testing.T) {
	if status, ok := catalog.ParseSessionStatus(" Imported "); !ok || status != catalog.SessionImported {
		t.Fatalf("ParseSessionStatus: got %q ok=%v", status, ok)
	}
	if _, ok := catalog.ParseSessionStatus("teleported"); ok {
		t.Fatal("expected unknown session status to be rejected")
	}
	if status, ok := catalog.ParseSelectionStatus("DUP"); !ok || status != catalog.SelectionDup {
		t.Fatalf("ParseSelectionStatus: got %q ok=%v", status, ok)
	}
	if _, ok := catalog.ParseSelectionStatus(""); ok {
		t.Fatal("expected empty selection status to be rejected")
	}
}

