package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SuggestionPending    = "pending"
	SuggestionAccepted   = "accepted"
	SuggestionRejected   = "rejected"
	SuggestionSuperseded = "superseded"
)

// ReconciliationSuggestion is a proposed match waiting for a reviewer. The partial
// unique index keeps a single pending row per payable.
type ReconciliationSuggestion struct {
	ID                     uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID               uuid.UUID                   `gorm:"type:uuid;index" json:"tenant_id"`
	PayableID              uuid.UUID                   `gorm:"type:uuid;uniqueIndex:idx_suggestion_pending_payable,where:status = 'pending'" json:"payable_id"`
	BankTransactionID      uuid.UUID                   `gorm:"type:uuid;index" json:"bank_transaction_id"`
	TransactionDate        time.Time                   `json:"transaction_date"`
	TransactionAmount      decimal.Decimal             `gorm:"type:numeric(14,2)" json:"transaction_amount"`
	TransactionDescription string                      `json:"transaction_description"`
	CounterpartyDocument   string                      `json:"counterparty_document,omitempty"`
	CounterpartyName       string                      `json:"counterparty_name,omitempty"`
	CounterpartyPaymentKey string                      `json:"counterparty_payment_key,omitempty"`
	ConfidenceScore        int                         `json:"confidence_score"`
	MatchReasons           datatypes.JSONSlice[string] `json:"match_reasons"`
	Status                 string                      `gorm:"index;default:pending" json:"status"`
	ReviewedBy             *string                     `json:"reviewed_by,omitempty"`
	ReviewedAt             *time.Time                  `json:"reviewed_at,omitempty"`
	ReviewNote             *string                     `json:"review_note,omitempty"`
	CreatedAt              time.Time                   `json:"created_at"`
	UpdatedAt              time.Time                   `json:"updated_at"`
}

// SuggestionPair identifies a (payable, transaction) pairing a reviewer has ruled on.
type SuggestionPair struct {
	PayableID         uuid.UUID
	BankTransactionID uuid.UUID
}

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusError   = "error"

	TriggerManual  = "manual"
	TriggerCron    = "cron"
	TriggerWebhook = "webhook"
)

// MatchRun brackets one matching pass, the same way SyncRun brackets ingestion.
type MatchRun struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID              uuid.UUID  `gorm:"type:uuid;index" json:"tenant_id"`
	TriggeredBy           string     `json:"triggered_by"`
	LookbackDays          int        `json:"lookback_days"`
	Status                string     `gorm:"index" json:"status"`
	TransactionsProcessed int        `json:"transactions_processed"`
	AutoReconciled        int        `json:"auto_reconciled"`
	SuggestionsCreated    int        `json:"suggestions_created"`
	NoMatch               int        `json:"no_match"`
	AlreadyReconciled     int        `json:"already_reconciled"`
	DuplicateSuggestions  int        `json:"duplicate_suggestions"`
	ErrorMessage          *string    `json:"error_message,omitempty"`
	StartedAt             time.Time  `json:"started_at"`
	FinishedAt            *time.Time `json:"finished_at,omitempty"`
}
