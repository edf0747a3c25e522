// Package consistency cross-checks a session's aggregate status against the
// statuses of its selections.
//
// Validation is pure and report-only: it never mutates state. The watchdog
// runs it defensively over active sessions and the CLI exposes it as an
// operator tool; both act on the report (log, alert, retry) themselves.
package consistency
