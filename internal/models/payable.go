package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusReconciled = "reconciled"

	ReconciliationSourceAuto   = "auto"
	ReconciliationSourceManual = "manual"
)

// Payable is an open liability created by upstream accounts-payable processes.
// Once IsPaid is set the amount and recipient fields are frozen.
type Payable struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID             uuid.UUID        `gorm:"type:uuid;index:idx_payables_open" json:"tenant_id"`
	Amount               decimal.Decimal  `gorm:"type:numeric(14,2)" json:"amount"`
	DueDate              time.Time        `gorm:"index" json:"due_date"`
	RecipientName        string           `json:"recipient_name"`
	RecipientDocument    string           `gorm:"index" json:"recipient_document"`
	PaymentKey           string           `json:"payment_key,omitempty"`
	PaymentKeyType       string           `json:"payment_key_type,omitempty"`
	PaymentStatus        string           `gorm:"index:idx_payables_open;default:pending" json:"payment_status"`
	IsPaid               bool             `gorm:"index:idx_payables_open;default:false" json:"is_paid"`
	PaidAmount           *decimal.Decimal `gorm:"type:numeric(14,2)" json:"paid_amount,omitempty"`
	PaidAt               *time.Time       `json:"paid_at,omitempty"`
	ReconciliationSource *string          `json:"reconciliation_source,omitempty"`
	ReconciledAt         *time.Time       `json:"reconciled_at,omitempty"`
	BankTransactionID    *uuid.UUID       `gorm:"type:uuid;index" json:"bank_transaction_id,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// PaymentFields is the settlement written onto a payable when it is reconciled.
type PaymentFields struct {
	TenantID          uuid.UUID
	PaidAmount        decimal.Decimal
	PaidAt            time.Time
	Source            string
	ReconciledAt      time.Time
	BankTransactionID uuid.UUID
	Score             int
	PerformedBy       string

	// AcceptedSuggestionID is set when a reviewer accepts a suggestion; that row
	// moves to accepted while any other pending row for the payable is superseded.
	AcceptedSuggestionID *uuid.UUID
}
