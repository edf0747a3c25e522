package lifecycle

import (
	"errors"
	"fmt"
	"sort"

	"carousel/internal/catalog"
)

// ErrIllegalTransition is returned when a requested status edge is not in the
// state machine. Callers log it; they never swallow it.
var ErrIllegalTransition = errors.New("illegal transition")

// sessionEdges enumerates every legal session status edge. Terminal statuses
// (imported, canceled, expired, error) have no entry; failed carries only the
// explicit retry edge back to processing.
var sessionEdges = map[catalog.SessionStatus]map[catalog.SessionStatus]struct{}{
	catalog.SessionPending: {
		catalog.SessionReady:     {},
		catalog.SessionExpanding: {},
		catalog.SessionCanceled:  {},
		catalog.SessionExpired:   {},
	},
	catalog.SessionReady: {
		catalog.SessionExpanding:  {},
		catalog.SessionProcessing: {},
		catalog.SessionEnqueued:   {},
		catalog.SessionCanceled:   {},
		catalog.SessionExpired:    {},
	},
	catalog.SessionExpanding: {
		catalog.SessionProcessing: {},
		catalog.SessionEnqueued:   {},
		catalog.SessionError:      {},
		catalog.SessionCanceled:   {},
		catalog.SessionExpired:    {},
	},
	catalog.SessionProcessing: {
		catalog.SessionEnqueued:  {},
		catalog.SessionImporting: {},
		catalog.SessionImported:  {},
		catalog.SessionError:     {},
		catalog.SessionFailed:    {},
		catalog.SessionCanceled:  {},
	},
	catalog.SessionEnqueued: {
		catalog.SessionImporting:  {},
		catalog.SessionProcessing: {},
		catalog.SessionImported:   {},
		catalog.SessionError:      {},
		catalog.SessionFailed:     {},
		catalog.SessionCanceled:   {},
		catalog.SessionExpired:    {},
	},
	catalog.SessionImporting: {
		catalog.SessionImported: {},
		catalog.SessionError:    {},
		catalog.SessionFailed:   {},
		catalog.SessionCanceled: {},
	},
	catalog.SessionFailed: {
		catalog.SessionProcessing: {}, // retry
	},
}

// selectionEdges enumerates every legal selection status edge. running can
// fall back to enqueued (transient release or stale reclaim); failed carries
// only the retry edge back to enqueued.
var selectionEdges = map[catalog.SelectionStatus]map[catalog.SelectionStatus]struct{}{
	catalog.SelectionEnqueued: {
		catalog.SelectionRunning: {},
		catalog.SelectionSkipped: {},
		catalog.SelectionExpired: {},
	},
	catalog.SelectionRunning: {
		catalog.SelectionImported: {},
		catalog.SelectionDup:      {},
		catalog.SelectionFailed:   {},
		catalog.SelectionExpired:  {},
		catalog.SelectionEnqueued: {},
	},
	catalog.SelectionFailed: {
		catalog.SelectionEnqueued: {}, // retry
	},
}

// CanTransitionSession reports whether the session edge exists.
func CanTransitionSession(from, to catalog.SessionStatus) bool {
	next, ok := sessionEdges[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// CanTransitionSelection reports whether the selection edge exists.
func CanTransitionSelection(from, to catalog.SelectionStatus) bool {
	next, ok := selectionEdges[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// TransitionSession validates the edge and mints the audit record for it.
// The store stamps created_at when the record is persisted.
func TransitionSession(id int64, from, to catalog.SessionStatus, reason string) (catalog.Transition, error) {
	if !CanTransitionSession(from, to) {
		return catalog.Transition{}, fmt.Errorf("%w: session %d %s -> %s", ErrIllegalTransition, id, from, to)
	}
	return catalog.Transition{
		Entity:     catalog.EntitySession,
		EntityID:   id,
		FromStatus: string(from),
		ToStatus:   string(to),
		Reason:     reason,
	}, nil
}

// TransitionSelection validates the edge and mints the audit record for it.
func TransitionSelection(id int64, from, to catalog.SelectionStatus, reason string) (catalog.Transition, error) {
	if !CanTransitionSelection(from, to) {
		return catalog.Transition{}, fmt.Errorf("%w: selection %d %s -> %s", ErrIllegalTransition, id, from, to)
	}
	return catalog.Transition{
		Entity:     catalog.EntitySelection,
		EntityID:   id,
		FromStatus: string(from),
		ToStatus:   string(to),
		Reason:     reason,
	}, nil
}

// ForceSession bypasses validation for operator recovery. The record is
// marked forced; callers must log it distinctly.
func ForceSession(id int64, from, to catalog.SessionStatus, reason string) catalog.Transition {
	return catalog.Transition{
		Entity:     catalog.EntitySession,
		EntityID:   id,
		FromStatus: string(from),
		ToStatus:   string(to),
		Reason:     reason,
		Forced:     true,
	}
}

// ForceSelection bypasses validation for operator recovery.
func ForceSelection(id int64, from, to catalog.SelectionStatus, reason string) catalog.Transition {
	return catalog.Transition{
		Entity:     catalog.EntitySelection,
		EntityID:   id,
		FromStatus: string(from),
		ToStatus:   string(to),
		Reason:     reason,
		Forced:     true,
	}
}

// SessionTargets returns the legal successors of a session status, sorted for
// stable output in errors and CLI help.
func SessionTargets(from catalog.SessionStatus) []catalog.SessionStatus {
	next := sessionEdges[from]
	if len(next) == 0 {
		return nil
	}
	targets := make([]catalog.SessionStatus, 0, len(next))
	for status := range next {
		targets = append(targets, status)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

// SelectionTargets returns the legal successors of a selection status.
func SelectionTargets(from catalog.SelectionStatus) []catalog.SelectionStatus {
	next := selectionEdges[from]
	if len(next) == 0 {
		return nil
	}
	targets := make([]catalog.SelectionStatus, 0, len(next))
	for status := range next {
		targets = append(targets, status)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}
