package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// BankTransaction is a statement line ingested from a provider. Rows are keyed by
// (tenant, account, external tx id) and are only ever overwritten in place.
type BankTransaction struct {
	ID                     uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID               uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_bank_tx_identity,priority:1;index:idx_bank_tx_window,priority:1" json:"tenant_id"`
	AccountID              uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_bank_tx_identity,priority:2" json:"account_id"`
	ExternalTxID           string          `gorm:"column:external_tx_id;uniqueIndex:idx_bank_tx_identity,priority:3" json:"external_tx_id"`
	PostedAt               time.Time       `gorm:"column:posted_at;index:idx_bank_tx_window,priority:2" json:"posted_at"`
	Description            string          `json:"description"`
	Amount                 decimal.Decimal `gorm:"type:numeric(14,2)" json:"amount"`
	Direction              string          `gorm:"index" json:"direction"`
	CounterpartyDocument   string          `json:"counterparty_document,omitempty"`
	CounterpartyName       string          `json:"counterparty_name,omitempty"`
	CounterpartyPaymentKey string          `json:"counterparty_payment_key,omitempty"`
	RawData                datatypes.JSON  `json:"-"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}
