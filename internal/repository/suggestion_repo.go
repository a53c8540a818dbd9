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

type SuggestionRepository struct {
	db *gorm.DB
}

func NewSuggestionRepository(db *gorm.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// FindPending returns the pending suggestion for the payable, or nil when there is none.
func (r *SuggestionRepository) FindPending(ctx context.Context, payableID uuid.UUID) (*models.ReconciliationSuggestion, error) {
	var s models.ReconciliationSuggestion
	err := r.db.WithContext(ctx).
		Where("payable_id = ? AND status = ?", payableID, models.SuggestionPending).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RejectedPairs lists the (payable, transaction) pairs reviewers have rejected for
// the tenant.
func (r *SuggestionRepository) RejectedPairs(ctx context.Context, tenantID uuid.UUID) ([]models.SuggestionPair, error) {
	var pairs []models.SuggestionPair
	err := r.db.WithContext(ctx).
		Model(&models.ReconciliationSuggestion{}).
		Select("payable_id, bank_transaction_id").
		Where("tenant_id = ? AND status = ?", tenantID, models.SuggestionRejected).
		Scan(&pairs).Error
	return pairs, err
}

// Insert stores a new pending suggestion. It reports false when the partial unique
// index already holds a pending row for the payable, when the payable has been
// reconciled in the meantime, or when a reviewer already rejected the same pair.
func (r *SuggestionRepository) Insert(ctx context.Context, s *models.ReconciliationSuggestion) (bool, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Status = models.SuggestionPending
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&models.Payable{}).
			Where("id = ? AND is_paid = ?", s.PayableID, false).
			Count(&open).Error; err != nil {
			return err
		}
		if open == 0 {
			return nil
		}
		var rejected int64
		if err := tx.Model(&models.ReconciliationSuggestion{}).
			Where("payable_id = ? AND bank_transaction_id = ? AND status = ?", s.PayableID, s.BankTransactionID, models.SuggestionRejected).
			Count(&rejected).Error; err != nil {
			return err
		}
		if rejected > 0 {
			return nil
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(s)
		if result.Error != nil {
			return result.Error
		}
		created = result.RowsAffected > 0
		return nil
	})
	return created, err
}

func (r *SuggestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReconciliationSuggestion, error) {
	var s models.ReconciliationSuggestion
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrSuggestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SuggestionRepository) ListByStatus(ctx context.Context, tenantID uuid.UUID, status string, limit int) ([]models.ReconciliationSuggestion, error) {
	var suggestions []models.ReconciliationSuggestion
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Order("confidence_score DESC").
		Order("created_at ASC").
		Limit(limit).
		Find(&suggestions).Error
	return suggestions, err
}

// Reject closes a pending suggestion and records who rejected it. The payable is untouched.
func (r *SuggestionRepository) Reject(ctx context.Context, id uuid.UUID, reviewer, note string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.ReconciliationSuggestion
		if err := tx.First(&s, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrSuggestionNotFound
			}
			return err
		}

		result := tx.Model(&models.ReconciliationSuggestion{}).
			Where("id = ? AND status = ?", id, models.SuggestionPending).
			Updates(map[string]interface{}{
				"status":      models.SuggestionRejected,
				"reviewed_by": reviewer,
				"reviewed_at": at,
				"review_note": note,
				"updated_at":  at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrSuggestionNotPending
		}

		txID := s.BankTransactionID
		return tx.Create(&models.MatchAuditLog{
			ID:            uuid.New(),
			TenantID:      s.TenantID,
			PayableID:     s.PayableID,
			TransactionID: &txID,
			SuggestionID:  &s.ID,
			Action:        models.AuditSuggestionRejected,
			Score:         s.ConfidenceScore,
			PerformedBy:   reviewer,
			Reason:        note,
			CreatedAt:     at,
		}).Error
	})
}

// Supersede retires a pending suggestion whose payable was settled elsewhere.
func (r *SuggestionRepository) Supersede(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ReconciliationSuggestion{}).
		Where("id = ? AND status = ?", id, models.SuggestionPending).
		Updates(map[string]interface{}{
			"status":     models.SuggestionSuperseded,
			"updated_at": at,
		}).Error
}
