package picker_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"carousel/internal/catalog"
	"carousel/internal/picker"
	"carousel/internal/services"
	"carousel/internal/testsupport"
)

type stubLister struct {
	items []picker.Item
	err   error
}

func (s *stubLister) SessionItems(context.Context, string) ([]picker.Item, error) {
	return s.items, s.err
}

type recordingEnqueuer struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingEnqueuer) Publish(_ context.Context, sel *catalog.Selection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, sel.ID)
	return nil
}

func TestExpandEnqueuesSelections(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewPickerSession(t, store, "remote-1")

	lister := &stubLister{items: []picker.Item{
		{ID: "itm-1", FileName: "a.mkv", MimeType: "video/x-matroska", ByteSize: 100},
		{ID: "itm-2", FileName: "b.jpg", MimeType: "image/jpeg", ByteSize: 200},
	}}
	enq := &recordingEnqueuer{}
	expander := picker.NewExpander(store, lister, nil, enq)

	selections, err := expander.Expand(context.Background(), session)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(selections) != 2 {
		t.Fatalf("expected 2 selections, got %d", len(selections))
	}
	for _, sel := range selections {
		if sel.Status != catalog.SelectionEnqueued {
			t.Errorf("selection %d status = %s, want enqueued", sel.ID, sel.Status)
		}
	}

	updated, err := store.SessionByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("SessionByID: %v", err)
	}
	if updated.Status != catalog.SessionEnqueued {
		t.Fatalf("session status = %s, want enqueued", updated.Status)
	}
	if len(enq.ids) != 2 {
		t.Fatalf("expected 2 publish calls, got %d", len(enq.ids))
	}

	recs, err := store.TransitionsForEntity(context.Background(), catalog.EntitySession, session.ID)
	if err != nil {
		t.Fatalf("TransitionsForEntity: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(recs))
	}
}

func TestExpandParksSessionOnPickerFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewPickerSession(t, store, "remote-2")

	lister := &stubLister{err: services.Wrap(services.ErrAuth, "picker", "list items", "service returned 401", nil)}
	expander := picker.NewExpander(store, lister, nil, nil)

	if _, err := expander.Expand(context.Background(), session); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}

	updated, err := store.SessionByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("SessionByID: %v", err)
	}
	if updated.Status != catalog.SessionError {
		t.Fatalf("session status = %s, want error", updated.Status)
	}
}

func TestExpandRejectsEmptyItemList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewPickerSession(t, store, "remote-3")

	expander := picker.NewExpander(store, &stubLister{}, nil, nil)
	if _, err := expander.Expand(context.Background(), session); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	updated, err := store.SessionByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("SessionByID: %v", err)
	}
	if updated.Status != catalog.SessionError {
		t.Fatalf("session status = %s, want error", updated.Status)
	}
}

func TestExpandRejectsDropSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewDropSession(t, store)

	expander := picker.NewExpander(store, &stubLister{}, nil, nil)
	if _, err := expander.Expand(context.Background(), session); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
