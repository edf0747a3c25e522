package consistency

import (
	"fmt"

	"carousel/internal/catalog"
)

// IssueCode identifies one class of session/selection mismatch.
type IssueCode string

const (
	// IssueOpenItemsUnderClosedSession flags enqueued or running selections
	// under a session that already reached a resting status.
	IssueOpenItemsUnderClosedSession IssueCode = "open_items_under_closed_session"
	// IssueRollupPending flags an active session whose selections are all
	// settled; the watchdog roll-up should have finished it.
	IssueRollupPending IssueCode = "rollup_pending"
	// IssueFailedSessionMajoritySuccess flags a failed session where most
	// selections actually succeeded.
	IssueFailedSessionMajoritySuccess IssueCode = "failed_session_majority_success"
	// IssueImportedSessionWithoutSuccess flags an imported session with no
	// successful selection at all.
	IssueImportedSessionWithoutSuccess IssueCode = "imported_session_without_success"
)

// Issue is one detected mismatch.
type Issue struct {
	Code   IssueCode
	Detail string
}

// Tally counts selections by outcome class.
type Tally struct {
	Total     int
	Open      int // enqueued or running
	Succeeded int // imported or dup
	Failed    int
	Expired   int
	Skipped   int
}

// Report is the result of one validation pass over a single session.
type Report struct {
	SessionStatus   catalog.SessionStatus
	Tally           Tally
	Issues          []Issue
	Recommendations []string
}

// Consistent reports whether no issues were found.
func (r Report) Consistent() bool {
	return len(r.Issues) == 0
}

// Validate cross-checks one session status against its selections' statuses.
func Validate(sessionStatus catalog.SessionStatus, itemStatuses []catalog.SelectionStatus) Report {
	report := Report{SessionStatus: sessionStatus}
	tally := &report.Tally
	for _, status := range itemStatuses {
		tally.Total++
		switch status {
		case catalog.SelectionEnqueued, catalog.SelectionRunning:
			tally.Open++
		case catalog.SelectionImported, catalog.SelectionDup:
			tally.Succeeded++
		case catalog.SelectionFailed:
			tally.Failed++
		case catalog.SelectionExpired:
			tally.Expired++
		case catalog.SelectionSkipped:
			tally.Skipped++
		}
	}

	closed := catalog.IsTerminalSessionStatus(sessionStatus) || sessionStatus == catalog.SessionFailed
	active := isActiveSessionStatus(sessionStatus)

	if closed && tally.Open > 0 {
		report.Issues = append(report.Issues, Issue{
			Code:   IssueOpenItemsUnderClosedSession,
			Detail: fmt.Sprintf("session is %s but %d selection(s) are still enqueued/running", sessionStatus, tally.Open),
		})
		report.Recommendations = append(report.Recommendations,
			"reclaim or skip the open selections, then re-run roll-up")
	}

	if active && tally.Total > 0 && tally.Open == 0 {
		report.Issues = append(report.Issues, Issue{
			Code:   IssueRollupPending,
			Detail: fmt.Sprintf("session is %s but all %d selection(s) are settled", sessionStatus, tally.Total),
		})
		if tally.Failed > 0 {
			report.Recommendations = append(report.Recommendations,
				"failed selections may still be awaiting backoff retry; otherwise the watchdog roll-up should finish this session")
		} else {
			report.Recommendations = append(report.Recommendations,
				"the watchdog roll-up should finish this session")
		}
	}

	if sessionStatus == catalog.SessionFailed && tally.Total > 0 && tally.Succeeded*2 > tally.Total {
		report.Issues = append(report.Issues, Issue{
			Code:   IssueFailedSessionMajoritySuccess,
			Detail: fmt.Sprintf("session failed but %d of %d selection(s) succeeded", tally.Succeeded, tally.Total),
		})
		report.Recommendations = append(report.Recommendations,
			"inspect the failed selections; consider retrying the session")
	}

	if sessionStatus == catalog.SessionImported && tally.Total > 0 && tally.Succeeded == 0 {
		report.Issues = append(report.Issues, Issue{
			Code:   IssueImportedSessionWithoutSuccess,
			Detail: fmt.Sprintf("session imported but none of %d selection(s) succeeded", tally.Total),
		})
		report.Recommendations = append(report.Recommendations,
			"verify the roll-up inputs; the session status does not match its selections")
	}

	return report
}

// ValidateSelections is a convenience wrapper over Validate for callers
// holding full selection rows.
func ValidateSelections(sessionStatus catalog.SessionStatus, selections []*catalog.Selection) Report {
	statuses := make([]catalog.SelectionStatus, 0, len(selections))
	for _, sel := range selections {
		if sel == nil {
			continue
		}
		statuses = append(statuses, sel.Status)
	}
	return Validate(sessionStatus, statuses)
}

func isActiveSessionStatus(status catalog.SessionStatus) bool {
	switch status {
	case catalog.SessionExpanding, catalog.SessionProcessing, catalog.SessionEnqueued, catalog.SessionImporting:
		return true
	default:
		return false
	}
}
