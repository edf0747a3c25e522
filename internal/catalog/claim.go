package catalog

// ClaimOutcome is the result of a claim attempt. Losing a claim race is
// ordinary control flow, not an error: callers switch on the outcome and
// move on to the next candidate.
type ClaimOutcome int

const (
	// ClaimWon means the conditional update matched and this worker now
	// owns the selection.
	ClaimWon ClaimOutcome = iota
	// ClaimAlreadyTaken means the row exists but was not claimable:
	// another worker holds it or it has already advanced past enqueued.
	ClaimAlreadyTaken
	// ClaimNotFound means no selection matched the id and session.
	ClaimNotFound
)

// String renders the outcome for logs.
func (o ClaimOutcome) String() string {
	switch o {
	case ClaimWon:
		return "won"
	case ClaimAlreadyTaken:
		return "already_taken"
	case ClaimNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ClaimResult pairs the outcome with the claimed row. Selection is only
// populated when the outcome is ClaimWon.
type ClaimResult struct {
	Outcome   ClaimOutcome
	Selection *Selection
}
