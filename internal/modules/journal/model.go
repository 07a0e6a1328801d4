// README: Dispatch decision journal entries. The journal is an append-only
// audit trail; it never participates in dispatch decisions.
package journal

import "time"

// Event kinds recorded by the engine.
const (
	KindMatched             = "matched"
	KindNoMatch             = "no_match"
	KindReservationLost     = "reservation_lost"
	KindReservationReleased = "reservation_released"
	KindProposalMirrored    = "proposal_mirrored"
	KindArrivalDetected     = "arrival_detected"
)

type Event struct {
	Kind       string
	RequestID  string
	DriverID   string
	ProposalID string
	Detail     map[string]any
	CreatedAt  time.Time
}
