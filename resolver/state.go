package resolver

import "github.com/lucasrcezimbra/missas/entities"

// Outcome is the terminal state of one resolution attempt for a group.
type Outcome string

const (
	// OutcomeResolved: exactly one candidate (or a reused sibling
	// location); the whole group is attached.
	OutcomeResolved Outcome = "resolved"
	// OutcomePending: multiple candidates await an operator's choice.
	OutcomePending Outcome = "pending"
	// OutcomeReported: zero candidates; the group stays unattached and is
	// eligible for a later retry.
	OutcomeReported Outcome = "reported"
	// OutcomeSkipped: the provider credential is missing; nothing was
	// attempted.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed: a store-layer error; the bulk run continues with the
	// next group.
	OutcomeFailed Outcome = "failed"
)

// Result describes what happened to one group.
type Result struct {
	Group      entities.Group
	Outcome    Outcome
	Location   entities.Location
	Candidates []entities.Candidate
	Attached   int
	Err        error
}
