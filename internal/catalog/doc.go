// Package catalog persists import sessions, their selections, and the
// resulting media library entries in SQLite, and exposes the conditional
// updates that coordinate concurrent workers.
//
// The Store manages database connections, schema initialization, stats
// queries, lease heartbeats, stale-claim recovery, and status transitions
// that mirror the session and selection state machines. Every selection
// mutation is a single conditional statement keyed by the row id plus the
// expected status (and lock owner where one applies); the affected row
// count is the only success signal. Workers never read-modify-write.
//
// The database is the sole coordination point between worker processes.
// Rows are never deleted by the orchestration layer; prune commands remove
// terminal rows explicitly. Schema changes land as additive migrations in
// migrations/; breaking changes bump schemaVersion in schema.go.
package catalog
