package lifecycle_test

import (
	"errors"
	"testing"

	"carousel/internal/catalog"
	"carousel/internal/lifecycle"
)

func TestSessionLegalEdges(t *testing.T) {
	legal := []struct {
		from, to catalog.SessionStatus
	}{
		{catalog.SessionPending, catalog.SessionReady},
		{catalog.SessionPending, catalog.SessionExpanding},
		{catalog.SessionPending, catalog.SessionCanceled},
		{catalog.SessionPending, catalog.SessionExpired},
		{catalog.SessionReady, catalog.SessionExpanding},
		{catalog.SessionReady, catalog.SessionEnqueued},
		{catalog.SessionExpanding, catalog.SessionEnqueued},
		{catalog.SessionExpanding, catalog.SessionError},
		{catalog.SessionProcessing, catalog.SessionImporting},
		{catalog.SessionProcessing, catalog.SessionFailed},
		{catalog.SessionEnqueued, catalog.SessionImporting},
		{catalog.SessionEnqueued, catalog.SessionImported},
		{catalog.SessionImporting, catalog.SessionImported},
		{catalog.SessionImporting, catalog.SessionFailed},
		{catalog.SessionFailed, catalog.SessionProcessing},
	}
	for _, edge := range legal {
		rec, err := lifecycle.TransitionSession(1, edge.from, edge.to, "test")
		if err != nil {
			t.Fatalf("expected %s -> %s to be legal: %v", edge.from, edge.to, err)
		}
		if rec.Entity != catalog.EntitySession || rec.FromStatus != string(edge.from) || rec.ToStatus != string(edge.to) {
			t.Fatalf("unexpected record for %s -> %s: %+v", edge.from, edge.to, rec)
		}
		if rec.Forced {
			t.Fatalf("validated transition must not be marked forced: %+v", rec)
		}
	}
}

func TestSessionIllegalEdges(t *testing.T) {
	illegal := []struct {
		from, to catalog.SessionStatus
	}{
		{catalog.SessionImported, catalog.SessionProcessing},
		{catalog.SessionCanceled, catalog.SessionReady},
		{catalog.SessionExpired, catalog.SessionEnqueued},
		{catalog.SessionError, catalog.SessionProcessing},
		{catalog.SessionFailed, catalog.SessionImported},
		{catalog.SessionPending, catalog.SessionImported},
		{catalog.SessionImporting, catalog.SessionExpanding},
	}
	for _, edge := range illegal {
		if _, err := lifecycle.TransitionSession(1, edge.from, edge.to, "test"); !errors.Is(err, lifecycle.ErrIllegalTransition) {
			t.Fatalf("expected ErrIllegalTransition for %s -> %s, got %v", edge.from, edge.to, err)
		}
	}
}

func TestSelectionLegalEdges(t *testing.T) {
	legal := []struct {
		from, to catalog.SelectionStatus
	}{
		{catalog.SelectionEnqueued, catalog.SelectionRunning},
		{catalog.SelectionEnqueued, catalog.SelectionSkipped},
		{catalog.SelectionEnqueued, catalog.SelectionExpired},
		{catalog.SelectionRunning, catalog.SelectionImported},
		{catalog.SelectionRunning, catalog.SelectionDup},
		{catalog.SelectionRunning, catalog.SelectionFailed},
		{catalog.SelectionRunning, catalog.SelectionExpired},
		{catalog.SelectionRunning, catalog.SelectionEnqueued},
		{catalog.SelectionFailed, catalog.SelectionEnqueued},
	}
	for _, edge := range legal {
		rec, err := lifecycle.TransitionSelection(9, edge.from, edge.to, "test")
		if err != nil {
			t.Fatalf("expected %s -> %s to be legal: %v", edge.from, edge.to, err)
		}
		if rec.Entity != catalog.EntitySelection || rec.EntityID != 9 {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}
}

func TestSelectionTerminalStatusesHaveNoEdges(t *testing.T) {
	terminal := []catalog.SelectionStatus{
		catalog.SelectionImported,
		catalog.SelectionDup,
		catalog.SelectionExpired,
		catalog.SelectionSkipped,
	}
	for _, from := range terminal {
		if targets := lifecycle.SelectionTargets(from); len(targets) != 0 {
			t.Fatalf("expected no successors for %s, got %v", from, targets)
		}
		for _, to := range catalog.AllSelectionStatuses() {
			if lifecycle.CanTransitionSelection(from, to) {
				t.Fatalf("terminal %s must not transition to %s", from, to)
			}
		}
	}
}

func TestSessionFailedOnlyRetryEdge(t *testing.T) {
	targets := lifecycle.SessionTargets(catalog.SessionFailed)
	if len(targets) != 1 || targets[0] != catalog.SessionProcessing {
		t.Fatalf("expected failed -> processing to be the only retry edge, got %v", targets)
	}
}

func TestSelectionFailedOnlyRetryEdge(t *testing.T) {
	targets := lifecycle.SelectionTargets(catalog.SelectionFailed)
	if len(targets) != 1 || targets[0] != catalog.SelectionEnqueued {
		t.Fatalf("expected failed -> enqueued to be the only retry edge, got %v", targets)
	}
}

func TestForceBypassesValidation(t *testing.T) {
	rec := lifecycle.ForceSession(3, catalog.SessionImported, catalog.SessionProcessing, "operator recovery")
	if !rec.Forced {
		t.Fatal("forced record must be marked forced")
	}
	if rec.FromStatus != string(catalog.SessionImported) || rec.ToStatus != string(catalog.SessionProcessing) {
		t.Fatalf("unexpected forced record: %+v", rec)
	}

	sel := lifecycle.ForceSelection(4, catalog.SelectionImported, catalog.SelectionEnqueued, "operator recovery")
	if !sel.Forced || sel.Entity != catalog.EntitySelection {
		t.Fatalf("unexpected forced selection record: %+v", sel)
	}
}

func TestSessionTargetsSorted(t *testing.T) {
	targets := lifecycle.SessionTargets(catalog.SessionEnqueued)
	for i := 1; i < len(targets); i++ {
		if targets[i-1] >= targets[i] {
			t.Fatalf("targets not sorted: %v", targets)
		}
	}
}
