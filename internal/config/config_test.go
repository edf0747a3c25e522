package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"carousel/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "carousel", "state")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "library") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.Picker.BaseURL != "" {
		t.Fatalf("expected picker disabled by default, got %q", cfg.Picker.BaseURL)
	}
	if cfg.Import.Workers != config.Default().Import.Workers {
		t.Fatalf("unexpected worker count: %d", cfg.Import.Workers)
	}
	if cfg.Import.HeartbeatInterval != config.Default().Import.HeartbeatInterval {
		t.Fatalf("unexpected heartbeat interval: %d", cfg.Import.HeartbeatInterval)
	}
	if cfg.Import.LeaseWindow != config.Default().Import.LeaseWindow {
		t.Fatalf("unexpected lease window: %d", cfg.Import.LeaseWindow)
	}
	if !cfg.Thumbnails.Enabled {
		t.Fatal("expected thumbnails enabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.StagingDir, cfg.Paths.LibraryDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "carousel.toml")

	type payload struct {
		Picker struct {
			BaseURL string `toml:"base_url"`
			Token   string `toml:"token"`
		} `toml:"picker"`
		Import struct {
			HeartbeatInterval int `toml:"heartbeat_interval"`
			LeaseWindow       int `toml:"lease_window"`
			MaxAttempts       int `toml:"max_attempts"`
		} `toml:"import"`
	}
	custom := payload{}
	custom.Picker.BaseURL = "https://picker.example.com/"
	custom.Picker.Token = "abc123"
	custom.Import.HeartbeatInterval = 20
	custom.Import.LeaseWindow = 200
	custom.Import.MaxAttempts = 7
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Picker.BaseURL != "https://picker.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Picker.BaseURL)
	}
	if cfg.Import.HeartbeatInterval != 20 {
		t.Fatalf("expected heartbeat interval 20, got %d", cfg.Import.HeartbeatInterval)
	}
	if cfg.Import.LeaseWindow != 200 {
		t.Fatalf("expected lease window 200, got %d", cfg.Import.LeaseWindow)
	}
	if cfg.Import.MaxAttempts != 7 {
		t.Fatalf("expected max attempts 7, got %d", cfg.Import.MaxAttempts)
	}
}

func TestEnvVarFallbacks(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "carousel.toml")

	if err := os.WriteFile(configPath, []byte("[picker]\nbase_url = \"https://picker.example.com\"\n"), 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("CAROUSEL_PICKER_TOKEN", "env-token")
	t.Setenv("CAROUSEL_NTFY_TOPIC", "env-topic")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Picker.Token != "env-token" {
		t.Errorf("expected picker token from env, got %q", cfg.Picker.Token)
	}
	if cfg.Notifications.NtfyTopic != "env-topic" {
		t.Errorf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "lease_window") {
		t.Fatalf("sample config missing lease window: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Import.LeaseWindow != config.Default().Import.LeaseWindow {
		t.Fatalf("expected sample lease window to match default, got %d", cfg.Import.LeaseWindow)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Import.PollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive poll interval")
	}

	cfg = config.Default()
	cfg.Import.HeartbeatInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for heartbeat interval")
	}

	cfg = config.Default()
	cfg.Import.LeaseWindow = cfg.Import.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when lease window <= heartbeat interval")
	}

	cfg = config.Default()
	cfg.Import.MaxProcessingWindow = cfg.Import.LeaseWindow
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when processing window <= lease window")
	}

	cfg = config.Default()
	cfg.Picker.BaseURL = "https://picker.example.com"
	cfg.Picker.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when picker configured without token")
	}

	cfg = config.Default()
	cfg.Drop.Enabled = true
	cfg.Paths.DropDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when drop enabled without drop dir")
	}
}
