package models

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrTenantNotFound           = errors.New("tenant not found")
	ErrConnectionNotFound       = errors.New("bank connection not found")
	ErrSuggestionNotFound       = errors.New("suggestion not found")
	ErrSuggestionNotPending     = errors.New("suggestion is not pending")
	ErrPayableNotFound          = errors.New("payable not found")
	ErrPayableAlreadyReconciled = errors.New("payable already reconciled")
	ErrPayableLocked            = errors.New("payable is reconciled and can no longer be edited")
	ErrRunAlreadyFinalized      = errors.New("run already finalized")
)

// AutoMigrate creates or updates every table owned by the reconciliation core.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Tenant{},
		&BankConnection{},
		&BankAccount{},
		&BankTransaction{},
		&Payable{},
		&ReconciliationSuggestion{},
		&SyncRun{},
		&MatchRun{},
		&MatchAuditLog{},
	)
}
