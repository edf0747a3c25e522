// Package preflight verifies that the environment can support the configured
// features before the daemon starts taking work: directories writable, the
// picker service reachable, ffmpeg present when thumbnails are enabled.
package preflight
