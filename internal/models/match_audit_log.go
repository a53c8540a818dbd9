package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditAutoReconciled       = "auto_reconciled"
	AuditSuggestionAccepted   = "suggestion_accepted"
	AuditSuggestionRejected   = "suggestion_rejected"
	AuditSuggestionSuperseded = "suggestion_superseded"
)

type MatchAuditLog struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      uuid.UUID  `gorm:"type:uuid;index" json:"tenant_id"`
	PayableID     uuid.UUID  `gorm:"type:uuid;index" json:"payable_id"`
	TransactionID *uuid.UUID `gorm:"type:uuid;index" json:"transaction_id,omitempty"`
	SuggestionID  *uuid.UUID `gorm:"type:uuid" json:"suggestion_id,omitempty"`
	Action        string     `json:"action"`
	Score         int        `json:"score"`
	PerformedBy   string     `json:"performed_by"`
	Reason        string     `json:"reason"`
	CreatedAt     time.Time  `json:"created_at"`
}
