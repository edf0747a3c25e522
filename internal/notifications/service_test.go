package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"carousel/internal/catalog"
	"carousel/internal/notifications"
	"carousel/internal/testsupport"
)

type capturedRequest struct {
	title    string
	message  string
	tags     string
	priority string
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		captured = append(captured, capturedRequest{
			title:    r.Header.Get("Title"),
			message:  string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]capturedRequest, len(captured))
		copy(out, captured)
		return out
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	if err := svc.NotifySessionImported(context.Background(), "example", catalog.SessionCounts{Total: 1, Imported: 1}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop test notification to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsSessionEvents(t *testing.T) {
	server, requests := newCaptureServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(cfg)
	ctx := context.Background()

	counts := catalog.SessionCounts{Total: 5, Imported: 3, Dup: 1, Failed: 1}
	if err := svc.NotifySessionImported(ctx, "Weekend batch", counts); err != nil {
		t.Fatalf("NotifySessionImported failed: %v", err)
	}
	if err := svc.NotifySessionFailed(ctx, "", catalog.SessionCounts{Total: 2, Failed: 2}); err != nil {
		t.Fatalf("NotifySessionFailed failed: %v", err)
	}

	got := requests()
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}

	imported := got[0]
	if imported.title != "Carousel - Session Imported" {
		t.Fatalf("unexpected title %q", imported.title)
	}
	if !strings.Contains(imported.message, "Weekend batch") || !strings.Contains(imported.message, "4 of 5") {
		t.Fatalf("unexpected message %q", imported.message)
	}
	if imported.tags != "carousel,session,imported" {
		t.Fatalf("unexpected tags %q", imported.tags)
	}

	failed := got[1]
	if failed.priority != "high" {
		t.Fatalf("expected high priority, got %q", failed.priority)
	}
	if !strings.Contains(failed.message, "unnamed session") {
		t.Fatalf("expected fallback label, got %q", failed.message)
	}
}

func TestNtfyServiceHonorsCategoryToggles(t *testing.T) {
	server, requests := newCaptureServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Sessions = false
	cfg.Notifications.Errors = false
	cfg.Notifications.Retries = false
	svc := notifications.NewService(cfg)
	ctx := context.Background()

	if err := svc.NotifySessionImported(ctx, "muted", catalog.SessionCounts{}); err != nil {
		t.Fatalf("NotifySessionImported failed: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "watchdog"); err != nil {
		t.Fatalf("NotifyError failed: %v", err)
	}
	if err := svc.NotifyRetriesExhausted(ctx, "media 7 thumbnails", 3); err != nil {
		t.Fatalf("NotifyRetriesExhausted failed: %v", err)
	}
	if got := requests(); len(got) != 0 {
		t.Fatalf("expected toggled-off categories to send nothing, got %d requests", len(got))
	}

	// The test notification ignores toggles so operators can always verify
	// the channel.
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if got := requests(); len(got) != 1 {
		t.Fatalf("expected exactly the test notification, got %d", len(got))
	}
}

func TestNtfyServiceSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic suspended", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(cfg)

	err := svc.NotifyRetriesExhausted(context.Background(), "media 9 thumbnails", 3)
	if err == nil {
		t.Fatal("expected error from 403 response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status in error, got %v", err)
	}
}
