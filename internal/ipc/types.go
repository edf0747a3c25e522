package ipc

import "time"

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon services.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon runtime information.
type StatusResponse struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	LockPath      string         `json:"lock_path"`
	CatalogDBPath string         `json:"catalog_db_path"`
	Workers       int            `json:"workers"`
	LastError     string         `json:"last_error"`
	LastItem      *Selection     `json:"last_item,omitempty"`
	SessionStats  map[string]int `json:"session_stats"`
	ItemStats     map[string]int `json:"item_stats"`
	WatchdogRuns  uint64         `json:"watchdog_runs"`
	LastSweep     time.Time      `json:"last_sweep"`
	DropScanning  bool           `json:"drop_scanning"`
	ThumbsRunning bool           `json:"thumbs_running"`
}

// Session is the wire representation of an import session.
type Session struct {
	ID              int64      `json:"id"`
	Provider        string     `json:"provider"`
	PickerSessionID string     `json:"picker_session_id,omitempty"`
	Label           string     `json:"label"`
	Status          string     `json:"status"`
	Total           int        `json:"total"`
	Imported        int        `json:"imported"`
	Dup             int        `json:"dup"`
	Failed          int        `json:"failed"`
	Expired         int        `json:"expired"`
	Skipped         int        `json:"skipped"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Selection is the wire representation of one import item.
type Selection struct {
	ID           int64      `json:"id"`
	SessionID    int64      `json:"session_id"`
	SourceRef    string     `json:"source_ref"`
	FileName     string     `json:"file_name"`
	MimeType     string     `json:"mime_type,omitempty"`
	ByteSize     int64      `json:"byte_size"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	LockedBy     string     `json:"locked_by,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	MediaID      *int64     `json:"media_id,omitempty"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Transition is one audit record of a status change.
type Transition struct {
	Entity     string    `json:"entity"`
	EntityID   int64     `json:"entity_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	Forced     bool      `json:"forced,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionListRequest filters session listing by status names.
type SessionListRequest struct {
	Statuses []string `json:"statuses"`
}

// SessionListResponse contains matching sessions.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// SessionShowRequest fetches one session with its items.
type SessionShowRequest struct {
	ID int64 `json:"id"`
}

// SessionShowResponse contains one session, its items, and audit trail.
type SessionShowResponse struct {
	Session     Session      `json:"session"`
	Items       []Selection  `json:"items"`
	Transitions []Transition `json:"transitions"`
}

// SessionAddRequest registers a remote picker session.
type SessionAddRequest struct {
	PickerSessionID string `json:"picker_session_id"`
	Label           string `json:"label"`
}

// SessionAddResponse returns the created session.
type SessionAddResponse struct {
	Session Session `json:"session"`
}

// SessionCancelRequest cancels one session.
type SessionCancelRequest struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// SessionCancelResponse indicates cancel result.
type SessionCancelResponse struct {
	Canceled bool `json:"canceled"`
}

// SessionRetryRequest re-opens a failed session.
type SessionRetryRequest struct {
	ID int64 `json:"id"`
}

// SessionRetryResponse reports how many items were requeued.
type SessionRetryResponse struct {
	Requeued int `json:"requeued"`
}

// SessionValidateRequest runs consistency checks for one session.
type SessionValidateRequest struct {
	ID int64 `json:"id"`
}

// ValidationIssue is one detected session/item mismatch.
type ValidationIssue struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// SessionValidateResponse carries the consistency report.
type SessionValidateResponse struct {
	Consistent      bool              `json:"consistent"`
	SessionStatus   string            `json:"session_status"`
	Issues          []ValidationIssue `json:"issues"`
	Recommendations []string          `json:"recommendations"`
}

// ItemListRequest filters item listing by status names.
type ItemListRequest struct {
	Statuses []string `json:"statuses"`
}

// ItemListResponse contains matching items.
type ItemListResponse struct {
	Items []Selection `json:"items"`
}

// ItemShowRequest fetches a single item by id.
type ItemShowRequest struct {
	ID int64 `json:"id"`
}

// ItemShowResponse contains one item and its audit trail.
type ItemShowResponse struct {
	Item        Selection    `json:"item"`
	Transitions []Transition `json:"transitions"`
}

// ItemRetryRequest requeues one failed item.
type ItemRetryRequest struct {
	ID int64 `json:"id"`
}

// ItemRetryResponse indicates retry result.
type ItemRetryResponse struct {
	Requeued bool `json:"requeued"`
}

// ItemSkipRequest skips one enqueued item.
type ItemSkipRequest struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// ItemSkipResponse indicates skip result.
type ItemSkipResponse struct {
	Skipped bool `json:"skipped"`
}

// QueueHealthRequest fetches queue counters.
type QueueHealthRequest struct{}

// QueueHealthResponse contains aggregated queue counters.
type QueueHealthResponse struct {
	Total    int            `json:"total"`
	Enqueued int            `json:"enqueued"`
	Running  int            `json:"running"`
	Failed   int            `json:"failed"`
	Imported int            `json:"imported"`
	ByStatus map[string]int `json:"by_status"`
}

// DatabaseHealthRequest fetches catalog database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse contains catalog database diagnostics.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TablesPresent    []string `json:"tables_present"`
	MissingTables    []string `json:"missing_tables"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalSessions    int      `json:"total_sessions"`
	TotalItems       int      `json:"total_items"`
	Error            string   `json:"error,omitempty"`
}

// ThumbRetry is the wire representation of one thumbnail retry row.
type ThumbRetry struct {
	MediaID      int64     `json:"media_id"`
	Attempts     int       `json:"attempts"`
	Blockers     string    `json:"blockers,omitempty"`
	PendingJobID string    `json:"pending_job_id,omitempty"`
	Disabled     bool      `json:"disabled"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ThumbListRequest fetches thumbnail retry rows.
type ThumbListRequest struct {
	DisabledOnly bool `json:"disabled_only"`
}

// ThumbListResponse contains thumbnail retry rows.
type ThumbListResponse struct {
	Retries []ThumbRetry `json:"retries"`
}

// ThumbRetryRequest force-schedules one thumbnail job.
type ThumbRetryRequest struct {
	MediaID int64 `json:"media_id"`
}

// ThumbRetryResponse reports the scheduling outcome.
type ThumbRetryResponse struct {
	Outcome string `json:"outcome"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse indicates the test was sent.
type TestNotificationResponse struct {
	Sent bool `json:"sent"`
}
