// Package thumbs runs the secondary thumbnail pipeline: a retry scheduler
// that dispatches at most one delayed generation job per media row, an
// in-process runner that executes those jobs against ffmpeg, and a monitor
// sweep that re-drives pending or failed thumbnails until the retry budget
// is spent. Exhausted records are disabled and stay disabled until an
// operator forces a retry.
package thumbs
