// Package daemon supervises the carousel background services. It owns the
// single-instance lock, starts and stops the importer workers, watchdog,
// thumbnail pipeline, and intake loops in order, and exposes the operator
// accessors the IPC server serves to the CLI.
package daemon
