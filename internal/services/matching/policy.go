package matching

import (
	"slices"

	"bank-reconciliation-backend/internal/models"
)

type Action int

const (
	ActionDiscard Action = iota
	ActionPropose
	ActionAutoReconcile
)

func (a Action) String() string {
	switch a {
	case ActionAutoReconcile:
		return "auto_reconcile"
	case ActionPropose:
		return "propose"
	default:
		return "discard"
	}
}

// Candidate is one scored (transaction, payable) pair. It is never persisted.
type Candidate struct {
	Transaction models.BankTransaction
	Payable     models.Payable
	Score       int
	Reasons     []string
}

func (c Candidate) HasReason(reason string) bool {
	return slices.Contains(c.Reasons, reason)
}

// Policy turns the best candidate's score into an action. Auto-reconciliation needs
// both the score and a tax document match.
type Policy struct {
	AutoThreshold   int
	ReviewThreshold int
}

func DefaultPolicy() Policy {
	return Policy{AutoThreshold: 70, ReviewThreshold: 40}
}

func (p Policy) Decide(c Candidate) Action {
	switch {
	case c.Score >= p.AutoThreshold && c.HasReason(ReasonDocumentExact):
		return ActionAutoReconcile
	case c.Score >= p.ReviewThreshold:
		return ActionPropose
	default:
		return ActionDiscard
	}
}
