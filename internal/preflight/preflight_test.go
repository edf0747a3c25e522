package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"carousel/internal/services"
	"carousel/internal/testsupport"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckPicker_OK(t *testing.T) {
	result := CheckPicker(context.Background(), stubPinger{})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckPicker_AuthFailure(t *testing.T) {
	err := services.Wrap(services.ErrAuth, "picker", "ping", "service returned 401", nil)
	result := CheckPicker(context.Background(), stubPinger{err: err})
	if result.Passed {
		t.Fatal("expected failure for auth error")
	}
	if result.Detail != "auth failed (invalid token)" {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckPicker_NilPinger(t *testing.T) {
	result := CheckPicker(context.Background(), nil)
	if result.Passed {
		t.Fatal("expected failure when client is absent")
	}
}

func TestCheckPicker_Timeout(t *testing.T) {
	result := CheckPicker(context.Background(), stubPinger{err: context.DeadlineExceeded})
	if result.Passed {
		t.Fatal("expected failure on timeout")
	}
	if result.Detail == "" {
		t.Fatal("expected detail for timeout")
	}
}

func TestRunAllCoversConfiguredFeatures(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithDrop(),
		testsupport.WithThumbnails(),
		testsupport.WithPicker("http://127.0.0.1:0", "token"),
		testsupport.WithStubbedBinaries("ffmpeg"),
	)

	results := RunAll(context.Background(), cfg, stubPinger{err: errors.New("unreachable")})

	names := make(map[string]Result, len(results))
	for _, result := range results {
		names[result.Name] = result
	}
	for _, want := range []string{"Staging directory", "Library directory", "Drop directory", "Picker service", "FFmpeg"} {
		if _, ok := names[want]; !ok {
			t.Fatalf("missing check %q in %v", want, results)
		}
	}
	if !names["Staging directory"].Passed {
		t.Fatalf("staging check failed: %s", names["Staging directory"].Detail)
	}
	if names["Picker service"].Passed {
		t.Fatal("picker check must fail for unreachable endpoint")
	}
	if !names["FFmpeg"].Passed {
		t.Fatalf("ffmpeg check failed: %s", names["FFmpeg"].Detail)
	}
}
