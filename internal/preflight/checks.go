package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"carousel/internal/deps"
	"carousel/internal/services"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckPicker verifies that the remote picker service answers. It uses a
// 10-second timeout and a single attempt.
func CheckPicker(ctx context.Context, pinger Pinger) Result {
	const name = "Picker service"

	if pinger == nil {
		return Result{Name: name, Detail: "client not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := pinger.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizePickerError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckFFmpeg reports whether the thumbnail renderer's ffmpeg is on PATH.
func CheckFFmpeg(command string) Result {
	status := deps.ResolveFFmpeg(command)
	if status.Available {
		return Result{Name: "FFmpeg", Passed: true, Detail: fmt.Sprintf("found at %s", status.Command)}
	}
	return Result{Name: "FFmpeg", Detail: status.Detail}
}

// CheckSystemDeps evaluates all system-level binary dependencies for the
// given thumbnail configuration. Both the daemon and the CLI status command
// use this to avoid duplicating the requirements list.
func CheckSystemDeps(thumbnailsEnabled bool, ffmpegCommand string) []deps.Status {
	if !thumbnailsEnabled {
		return nil
	}
	return deps.CheckBinaries([]deps.Requirement{{
		Name:        "FFmpeg",
		Command:     ffmpegCommand,
		Description: "Renders thumbnail frames for imported media",
	}})
}

// summarizePickerError produces a human-readable summary of ping failures.
func summarizePickerError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "health check timed out (picker API unresponsive)"
	case errors.Is(err, services.ErrAuth):
		return "auth failed (invalid token)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (picker API unreachable)"
	}
	return err.Error()
}
