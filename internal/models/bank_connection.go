package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ConnectionStatusActive   = "active"
	ConnectionStatusError    = "error"
	ConnectionStatusDisabled = "disabled"

	LastSyncSuccess = "success"
	LastSyncError   = "error"
)

type Tenant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `json:"name"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// BankConnection links a tenant to one account holder at an external provider.
type BankConnection struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID       uuid.UUID  `gorm:"type:uuid;index" json:"tenant_id"`
	Provider       string     `json:"provider"`
	ExternalID     string     `json:"external_id"`
	Name           string     `json:"name"`
	Status         string     `gorm:"index;default:active" json:"status"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus *string    `json:"last_sync_status,omitempty"`
	LastSyncError  *string    `json:"last_sync_error,omitempty"`
	// LastSuccessfulSyncAt only moves when every account synced cleanly. It anchors
	// the next fetch window.
	LastSuccessfulSyncAt *time.Time `json:"last_successful_sync_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type BankAccount struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_bank_account_identity,priority:1" json:"tenant_id"`
	ConnectionID      uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_bank_account_identity,priority:2" json:"connection_id"`
	ExternalAccountID string          `gorm:"uniqueIndex:idx_bank_account_identity,priority:3" json:"external_account_id"`
	Name              string          `json:"name"`
	BankName          string          `json:"bank_name"`
	AccountType       string          `json:"account_type"`
	CurrentBalance    decimal.Decimal `gorm:"type:numeric(14,2)" json:"current_balance"`
	LastRefreshedAt   time.Time       `json:"last_refreshed_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
