package matching

import (
	"bank-reconciliation-backend/internal/models"

	"github.com/google/uuid"
)

// BestCandidate scores tx against every payable not excluded by skip and keeps the
// highest score. Ties stay with the first payable encountered, so callers pass
// payables ordered by due date. It returns nil when nothing was scored.
func BestCandidate(tx models.BankTransaction, payables []models.Payable, skip func(uuid.UUID) bool) *Candidate {
	var best *Candidate
	for i := range payables {
		p := payables[i]
		if p.IsPaid || (skip != nil && skip(p.ID)) {
			continue
		}
		score, reasons := Score(tx, p)
		if best == nil || score > best.Score {
			best = &Candidate{Transaction: tx, Payable: p, Score: score, Reasons: reasons}
		}
	}
	return best
}
