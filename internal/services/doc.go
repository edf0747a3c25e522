// Package services defines shared utilities consumed by the import
// pipeline and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session/selection IDs, pipeline step
//     names, and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate
//     collaborator failures into consistent selection statuses
//     (failed vs expired) and retry decisions.
//
// Use these helpers when wiring new pipeline logic so operational
// behaviour (error handling, observability, retries) stays uniform
// across the daemon.
package services
