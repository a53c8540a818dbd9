package repository

import (
	"context"
	"errors"
	"time"

	"bank-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetActive returns models.ErrTenantNotFound for unknown or inactive tenants.
func (r *TenantRepository) GetActive(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).First(&tenant, "id = ? AND active = ?", id, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *TenantRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

type BankConnectionRepository struct {
	db *gorm.DB
}

func NewBankConnectionRepository(db *gorm.DB) *BankConnectionRepository {
	return &BankConnectionRepository{db: db}
}

// FindActive returns every active connection of the tenant, or only connectionID
// when it is set. A requested connection that is missing or not active yields
// models.ErrConnectionNotFound.
func (r *BankConnectionRepository) FindActive(ctx context.Context, tenantID uuid.UUID, connectionID *uuid.UUID) ([]models.BankConnection, error) {
	var conns []models.BankConnection
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, models.ConnectionStatusActive).
		Order("created_at ASC")
	if connectionID != nil {
		query = query.Where("id = ?", *connectionID)
	}
	if err := query.Find(&conns).Error; err != nil {
		return nil, err
	}
	if connectionID != nil && len(conns) == 0 {
		return nil, models.ErrConnectionNotFound
	}
	return conns, nil
}

// RecordSyncResult stores the outcome of the latest sync attempt on the connection.
// An empty syncErr clears the previous error. Only a successful attempt advances
// last_successful_sync_at.
func (r *BankConnectionRepository) RecordSyncResult(ctx context.Context, id uuid.UUID, at time.Time, status, syncErr string) error {
	var lastErr *string
	if syncErr != "" {
		lastErr = &syncErr
	}
	updates := map[string]interface{}{
		"last_sync_at":     at,
		"last_sync_status": status,
		"last_sync_error":  lastErr,
	}
	if status == models.LastSyncSuccess {
		updates["last_successful_sync_at"] = at
	}
	return r.db.WithContext(ctx).
		Model(&models.BankConnection{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *BankConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BankConnection, error) {
	var conn models.BankConnection
	err := r.db.WithContext(ctx).First(&conn, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

type BankAccountRepository struct {
	db *gorm.DB
}

func NewBankAccountRepository(db *gorm.DB) *BankAccountRepository {
	return &BankAccountRepository{db: db}
}

// Upsert writes the account keyed by (tenant, connection, external account id) and
// returns the stored row so callers get the canonical id.
func (r *BankAccountRepository) Upsert(ctx context.Context, account *models.BankAccount) (*models.BankAccount, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "connection_id"}, {Name: "external_account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name",
				"bank_name",
				"account_type",
				"current_balance",
				"last_refreshed_at",
				"updated_at",
			}),
		}).
		Create(account).Error
	if err != nil {
		return nil, err
	}

	var stored models.BankAccount
	err = r.db.WithContext(ctx).First(&stored,
		"tenant_id = ? AND connection_id = ? AND external_account_id = ?",
		account.TenantID, account.ConnectionID, account.ExternalAccountID,
	).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}
