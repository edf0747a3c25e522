package testsupport

import (
	"context"
	"fmt"
	"testing"

	"carousel/internal/catalog"
	"carousel/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewPickerSession creates a picker-backed session for tests.
func NewPickerSession(t testing.TB, store *catalog.Store, pickerSessionID string) *catalog.Session {
	t.Helper()

	session, err := store.CreateSession(context.Background(), catalog.ProviderPicker, pickerSessionID, "test session")
	if err != nil {
		t.Fatalf("store.CreateSession: %v", err)
	}
	return session
}

// NewDropSession creates a drop-folder session for tests.
func NewDropSession(t testing.TB, store *catalog.Store) *catalog.Session {
	t.Helper()

	session, err := store.CreateSession(context.Background(), catalog.ProviderDrop, "", "drop session")
	if err != nil {
		t.Fatalf("store.CreateSession: %v", err)
	}
	return session
}

// SeedSelections inserts n enqueued selections under the session and returns
// them in insertion order.
func SeedSelections(t testing.TB, store *catalog.Store, sessionID int64, n int) []*catalog.Selection {
	t.Helper()

	specs := make([]catalog.SelectionSpec, 0, n)
	for i := 0; i < n; i++ {
		specs = append(specs, catalog.SelectionSpec{
			SourceRef: fmt.Sprintf("item-%d", i+1),
			FileName:  fmt.Sprintf("file-%d.mkv", i+1),
			MimeType:  "video/x-matroska",
			ByteSize:  int64(1024 * (i + 1)),
		})
	}
	selections, err := store.AddSelections(context.Background(), sessionID, specs)
	if err != nil {
		t.Fatalf("store.AddSelections: %v", err)
	}
	return selections
}

// ClaimSelection claims one selection for a worker and fails the test unless
// the claim is won.
func ClaimSelection(t testing.TB, store *catalog.Store, sel *catalog.Selection, workerID string) *catalog.Selection {
	t.Helper()

	result, err := store.ClaimSelection(context.Background(), sel.ID, sel.SessionID, workerID)
	if err != nil {
		t.Fatalf("store.ClaimSelection: %v", err)
	}
	if result.Outcome != catalog.ClaimWon {
		t.Fatalf("expected claim to be won, got %s", result.Outcome)
	}
	return result.Selection
}
