package repository

import (
	"context"
	"time"

	"bank-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

// Upsert writes tx keyed by (tenant, account, external tx id). A row that already
// exists keeps its id and is overwritten in place.
func (r *BankTransactionRepository) Upsert(ctx context.Context, tx *models.BankTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "account_id"}, {Name: "external_tx_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"posted_at",
				"description",
				"amount",
				"direction",
				"counterparty_document",
				"counterparty_name",
				"counterparty_payment_key",
				"raw_data",
				"updated_at",
			}),
		}).
		Create(tx).Error
}

// FindUnmatched returns the tenant's outgoing transactions posted since the given
// time that no payable references as its settling transaction.
func (r *BankTransactionRepository) FindUnmatched(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("direction = ?", models.DirectionOut).
		Where("posted_at >= ?", since).
		Where("NOT EXISTS (SELECT 1 FROM payables p WHERE p.bank_transaction_id = bank_transactions.id)").
		Order("posted_at ASC").
		Order("id ASC").
		Find(&txs).Error
	return txs, err
}

func (r *BankTransactionRepository) GetByExternalID(ctx context.Context, tenantID, accountID uuid.UUID, externalTxID string) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := r.db.WithContext(ctx).
		First(&tx, "tenant_id = ? AND account_id = ? AND external_tx_id = ?", tenantID, accountID, externalTxID).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *BankTransactionRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BankTransaction{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}
