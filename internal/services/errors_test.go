package services_test

import (
	"errors"
	"strings"
	"testing"

	"carousel/internal/catalog"
	"carousel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "fetch", "download", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"fetch", "download", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "persist", "move", "", errors.New("io"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected nil marker to default to transient, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"auth", services.Wrap(services.ErrAuth, "fetch", "download", "401", nil), false},
		{"expired", services.Wrap(services.ErrExpired, "fetch", "download", "410", nil), false},
		{"validation", services.Wrap(services.ErrValidation, "fetch", "inspect", "bad item", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "persist", "layout", "missing dir", nil), false},
		{"transient", services.Wrap(services.ErrTransient, "fetch", "download", "503", nil), true},
		{"unmarked", errors.New("io timeout"), true},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFailureStatusMapping(t *testing.T) {
	authErr := services.Wrap(services.ErrAuth, "fetch", "download", "token rejected", nil)
	if status := services.FailureStatus(authErr); status != catalog.SelectionFailed {
		t.Fatalf("expected failed for auth error, got %s", status)
	}

	expiredErr := services.Wrap(services.ErrExpired, "fetch", "download", "gone", errors.New("410"))
	if status := services.FailureStatus(expiredErr); status != catalog.SelectionExpired {
		t.Fatalf("expected expired for vanished source, got %s", status)
	}

	if status := services.FailureStatus(errors.New("io")); status != catalog.SelectionFailed {
		t.Fatalf("expected failed for unmarked error, got %s", status)
	}
}
