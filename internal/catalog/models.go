package catalog

import (
	"strings"
	"time"
)

// SessionStatus represents the lifecycle of an import session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionReady      SessionStatus = "ready"
	SessionExpanding  SessionStatus = "expanding"
	SessionProcessing SessionStatus = "processing"
	SessionEnqueued   SessionStatus = "enqueued"
	SessionImporting  SessionStatus = "importing"
	SessionImported   SessionStatus = "imported"
	SessionCanceled   SessionStatus = "canceled"
	SessionExpired    SessionStatus = "expired"
	SessionError      SessionStatus = "error"
	SessionFailed     SessionStatus = "failed"
)

// SelectionStatus represents the lifecycle of a single selected item.
type SelectionStatus string

const (
	SelectionEnqueued SelectionStatus = "enqueued"
	SelectionRunning  SelectionStatus = "running"
	SelectionImported SelectionStatus = "imported"
	SelectionDup      SelectionStatus = "dup"
	SelectionFailed   SelectionStatus = "failed"
	SelectionExpired  SelectionStatus = "expired"
	SelectionSkipped  SelectionStatus = "skipped"
)

// Provider identifies where a session's selections came from.
type Provider string

const (
	ProviderPicker Provider = "picker"
	ProviderDrop   Provider = "drop"
)

// ThumbState tracks the thumbnail pipeline outcome for a media row.
type ThumbState string

const (
	ThumbPending ThumbState = "pending"
	ThumbReady   ThumbState = "ready"
	ThumbFailed  ThumbState = "failed"
)

var allSessionStatuses = []SessionStatus{
	SessionPending,
	SessionReady,
	SessionExpanding,
	SessionProcessing,
	SessionEnqueued,
	SessionImporting,
	SessionImported,
	SessionCanceled,
	SessionExpired,
	SessionError,
	SessionFailed,
}

var allSelectionStatuses = []SelectionStatus{
	SelectionEnqueued,
	SelectionRunning,
	SelectionImported,
	SelectionDup,
	SelectionFailed,
	SelectionExpired,
	SelectionSkipped,
}

var sessionStatusSet = func() map[SessionStatus]struct{} {
	set := make(map[SessionStatus]struct{}, len(allSessionStatuses))
	for _, status := range allSessionStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var selectionStatusSet = func() map[SelectionStatus]struct{} {
	set := make(map[SelectionStatus]struct{}, len(allSelectionStatuses))
	for _, status := range allSelectionStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// terminalSessionStatuses are never overwritten except through explicit,
// validated retry edges or an operator force.
var terminalSessionStatuses = map[SessionStatus]struct{}{
	SessionImported: {},
	SessionCanceled: {},
	SessionExpired:  {},
	SessionError:    {},
}

// settledSelectionStatuses are the resting states a selection can occupy
// once workers are finished with it. Failed selections are settled only
// once their retry budget is spent; the watchdog owns that decision.
var settledSelectionStatuses = map[SelectionStatus]struct{}{
	SelectionImported: {},
	SelectionDup:      {},
	SelectionFailed:   {},
	SelectionExpired:  {},
	SelectionSkipped:  {},
}

// activeSessionStatuses are the states the watchdog considers for roll-up.
var activeSessionStatuses = []SessionStatus{
	SessionExpanding,
	SessionProcessing,
	SessionEnqueued,
	SessionImporting,
}

// Session represents one batch of selections moving through import.
type Session struct {
	ID              int64
	Provider        Provider
	PickerSessionID string
	Label           string
	Status          SessionStatus
	Counts          SessionCounts
	ErrorMessage    string
	JobRef          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FinishedAt      *time.Time
}

// SessionCounts carries the per-outcome selection tallies recomputed at
// roll-up. Derived data: the selections table stays authoritative.
type SessionCounts struct {
	Total      int
	Pending    int
	Processing int
	Imported   int
	Dup        int
	Failed     int
	Expired    int
	Skipped    int
}

// Succeeded reports how many selections landed in the library, counting
// duplicates as successes since the media is present either way.
func (c SessionCounts) Succeeded() int {
	return c.Imported + c.Dup
}

// Settled reports how many selections have reached a resting state.
func (c SessionCounts) Settled() int {
	return c.Imported + c.Dup + c.Failed + c.Expired + c.Skipped
}

// Selection represents one item claimed and processed by workers.
type Selection struct {
	ID               int64
	SessionID        int64
	SourceRef        string
	FileName         string
	MimeType         string
	ByteSize         int64
	Status           SelectionStatus
	Attempts         int
	LockedBy         string
	LockHeartbeatAt  *time.Time
	StartedAt        *time.Time
	FinishedAt       *time.Time
	EnqueuedAt       time.Time
	LastTransitionAt *time.Time
	ErrorMessage     string
	MediaID          *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SelectionSpec describes a selection to insert during session expansion.
type SelectionSpec struct {
	SourceRef string
	FileName  string
	MimeType  string
	ByteSize  int64
}

// Media is a catalog entry produced by a successful import.
type Media struct {
	ID          int64
	ContentHash string
	FilePath    string
	FileName    string
	ByteSize    int64
	MimeType    string
	SessionID   int64
	ThumbState  ThumbState
	ImportedAt  time.Time
}

// ThumbRetry tracks the secondary thumbnail pipeline for one media row.
type ThumbRetry struct {
	MediaID      int64
	Attempts     int
	BlockersJSON string
	PendingJobID string
	Disabled     bool
	UpdatedAt    time.Time
}

// Transition is one immutable audit record of a status change.
type Transition struct {
	ID         int64
	Entity     string
	EntityID   int64
	FromStatus string
	ToStatus   string
	Reason     string
	Forced     bool
	MetaJSON   string
	CreatedAt  time.Time
}

// Entity names used in the transitions audit table.
const (
	EntitySession   = "session"
	EntitySelection = "selection"
)

// DatabaseHealth captures diagnostic information about the catalog database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalSessions    int
	TotalSelections  int
	Error            string
}

// HealthSummary describes aggregated selection counts per key lifecycle states.
type HealthSummary struct {
	Total    int
	Enqueued int
	Running  int
	Failed   int
	Imported int
}

// AllSessionStatuses returns the ordered list of known session statuses.
func AllSessionStatuses() []SessionStatus {
	cp := make([]SessionStatus, len(allSessionStatuses))
	copy(cp, allSessionStatuses)
	return cp
}

// AllSelectionStatuses returns the ordered list of known selection statuses.
func AllSelectionStatuses() []SelectionStatus {
	cp := make([]SelectionStatus, len(allSelectionStatuses))
	copy(cp, allSelectionStatuses)
	return cp
}

// ParseSessionStatus converts a string into a known SessionStatus.
func ParseSessionStatus(value string) (SessionStatus, bool) {
	normalized := SessionStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := sessionStatusSet[normalized]
	return normalized, ok
}

// ParseSelectionStatus converts a string into a known SelectionStatus.
func ParseSelectionStatus(value string) (SelectionStatus, bool) {
	normalized := SelectionStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := selectionStatusSet[normalized]
	return normalized, ok
}

// IsTerminalSessionStatus reports whether a session status is a resting state.
func IsTerminalSessionStatus(status SessionStatus) bool {
	_, ok := terminalSessionStatuses[status]
	return ok
}

// IsSettledSelectionStatus reports whether a selection status is a resting
// state, ignoring the retry budget on failed selections.
func IsSettledSelectionStatus(status SelectionStatus) bool {
	_, ok := settledSelectionStatuses[status]
	return ok
}

// IsRunning reports whether the selection is currently claimed by a worker.
func (sel Selection) IsRunning() bool {
	return sel.Status == SelectionRunning
}

// Holder returns the owning worker id, empty when unclaimed.
func (sel Selection) Holder() string {
	if sel.Status != SelectionRunning {
		return ""
	}
	return sel.LockedBy
}
