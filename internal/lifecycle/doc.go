// Package lifecycle defines the legal state machines for import sessions and
// selections.
//
// The tables here are the single source of truth for which status edges
// exist. Transition helpers validate an edge and mint the immutable audit
// record the caller persists alongside the guarded store update; Force
// variants bypass validation for operator recovery and are marked as forced
// so they stand out in the audit trail. The package is pure: it never touches
// the store.
package lifecycle
