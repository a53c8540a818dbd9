package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bank-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PayableRepository struct {
	db *gorm.DB
}

func NewPayableRepository(db *gorm.DB) *PayableRepository {
	return &PayableRepository{db: db}
}

// FindOpen returns the tenant's unpaid payables that are pending or submitted to
// the bank, ordered by due date so ties resolve to the earliest obligation.
func (r *PayableRepository) FindOpen(ctx context.Context, tenantID uuid.UUID) ([]models.Payable, error) {
	var payables []models.Payable
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("is_paid = ?", false).
		Where("payment_status IN ?", []string{models.PaymentStatusPending, models.PaymentStatusProcessing}).
		Order("due_date ASC").
		Order("id ASC").
		Find(&payables).Error
	return payables, err
}

func (r *PayableRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payable, error) {
	var payable models.Payable
	err := r.db.WithContext(ctx).First(&payable, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrPayableNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payable, nil
}

func (r *PayableRepository) ListReconciled(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Payable, error) {
	var payables []models.Payable
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_paid = ?", tenantID, true).
		Order("reconciled_at DESC").
		Limit(limit).
		Find(&payables).Error
	return payables, err
}

// ConditionallyMarkPaid settles the payable only if it is still unpaid. It reports
// false, without error, when another writer reconciled it first.
//
// In the same transaction it resolves the payable's pending suggestions (the
// accepted one, if any, becomes accepted and the rest superseded) and writes the
// audit trail.
func (r *PayableRepository) ConditionallyMarkPaid(ctx context.Context, payableID uuid.UUID, fields models.PaymentFields) (bool, error) {
	won := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Payable{}).
			Where("id = ? AND is_paid = ?", payableID, false).
			Updates(map[string]interface{}{
				"is_paid":               true,
				"payment_status":        models.PaymentStatusReconciled,
				"paid_amount":           fields.PaidAmount,
				"paid_at":               fields.PaidAt,
				"reconciliation_source": fields.Source,
				"reconciled_at":         fields.ReconciledAt,
				"bank_transaction_id":   fields.BankTransactionID,
				"updated_at":            fields.ReconciledAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		won = true

		action := models.AuditAutoReconciled
		if fields.AcceptedSuggestionID != nil {
			action = models.AuditSuggestionAccepted
			accepted := tx.Model(&models.ReconciliationSuggestion{}).
				Where("id = ? AND status = ?", *fields.AcceptedSuggestionID, models.SuggestionPending).
				Updates(map[string]interface{}{
					"status":      models.SuggestionAccepted,
					"reviewed_by": fields.PerformedBy,
					"reviewed_at": fields.ReconciledAt,
					"updated_at":  fields.ReconciledAt,
				})
			if accepted.Error != nil {
				return accepted.Error
			}
			if accepted.RowsAffected == 0 {
				return models.ErrSuggestionNotPending
			}
		}

		txID := fields.BankTransactionID
		if err := tx.Create(&models.MatchAuditLog{
			ID:            uuid.New(),
			TenantID:      fields.TenantID,
			PayableID:     payableID,
			TransactionID: &txID,
			SuggestionID:  fields.AcceptedSuggestionID,
			Action:        action,
			Score:         fields.Score,
			PerformedBy:   fields.PerformedBy,
			Reason:        fmt.Sprintf("reconciled (%s)", fields.Source),
			CreatedAt:     fields.ReconciledAt,
		}).Error; err != nil {
			return err
		}

		return supersedePending(tx, fields.TenantID, payableID, fields.ReconciledAt, fields.PerformedBy)
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// UpdateOpenDetails edits amount and recipient data of a payable that has not been
// reconciled yet.
func (r *PayableRepository) UpdateOpenDetails(ctx context.Context, id uuid.UUID, changes map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Payable{}).
		Where("id = ? AND is_paid = ?", id, false).
		Updates(changes)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return models.ErrPayableLocked
	}
	return nil
}

func supersedePending(tx *gorm.DB, tenantID, payableID uuid.UUID, at time.Time, performedBy string) error {
	var stale []models.ReconciliationSuggestion
	if err := tx.Where("payable_id = ? AND status = ?", payableID, models.SuggestionPending).
		Find(&stale).Error; err != nil {
		return err
	}
	for _, s := range stale {
		result := tx.Model(&models.ReconciliationSuggestion{}).
			Where("id = ? AND status = ?", s.ID, models.SuggestionPending).
			Updates(map[string]interface{}{
				"status":     models.SuggestionSuperseded,
				"updated_at": at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}
		suggestionID := s.ID
		txID := s.BankTransactionID
		if err := tx.Create(&models.MatchAuditLog{
			ID:            uuid.New(),
			TenantID:      tenantID,
			PayableID:     payableID,
			TransactionID: &txID,
			SuggestionID:  &suggestionID,
			Action:        models.AuditSuggestionSuperseded,
			Score:         s.ConfidenceScore,
			PerformedBy:   performedBy,
			Reason:        "payable reconciled by a stronger match",
			CreatedAt:     at,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}
