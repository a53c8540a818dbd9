package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncRun is the audit row of one ingestion attempt. It is opened as running and
// finalized exactly once.
type SyncRun struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID           uuid.UUID  `gorm:"type:uuid;index" json:"tenant_id"`
	ConnectionID       *uuid.UUID `gorm:"type:uuid" json:"connection_id,omitempty"`
	TriggeredBy        string     `json:"triggered_by"`
	TriggeredByUser    *string    `json:"triggered_by_user,omitempty"`
	Status             string     `gorm:"index" json:"status"`
	AccountsSynced     int        `json:"accounts_synced"`
	TransactionsSynced int        `json:"transactions_synced"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
}

// RunOutcome is the terminal update applied to a run record.
type RunOutcome struct {
	Status             string
	AccountsSynced     int
	TransactionsSynced int
	ErrorMessage       *string
	FinishedAt         time.Time
}
