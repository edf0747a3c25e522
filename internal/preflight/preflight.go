package preflight

import (
	"context"
	"strings"

	"carousel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Pinger answers a lightweight reachability probe. Satisfied by
// picker.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled. pinger may
// be nil when no picker is configured.
func RunAll(ctx context.Context, cfg *config.Config, pinger Pinger) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))

	if cfg.Paths.LibraryDir != "" {
		results = append(results, CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir))
	}

	if cfg.Drop.Enabled {
		results = append(results, CheckDirectoryAccess("Drop directory", cfg.Paths.DropDir))
	}

	if strings.TrimSpace(cfg.Picker.BaseURL) != "" {
		results = append(results, CheckPicker(ctx, pinger))
	}

	if cfg.Thumbnails.Enabled {
		results = append(results, CheckFFmpeg(cfg.FFmpegBinary()))
	}

	return results
}
