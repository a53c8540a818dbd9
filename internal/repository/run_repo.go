package repository

import (
	"context"

	"bank-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SyncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

func (r *SyncRunRepository) Open(ctx context.Context, run *models.SyncRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = models.RunStatusRunning
	return r.db.WithContext(ctx).Create(run).Error
}

// Finalize applies the terminal update. A run that is no longer running is left
// alone and models.ErrRunAlreadyFinalized is returned.
func (r *SyncRunRepository) Finalize(ctx context.Context, id uuid.UUID, outcome models.RunOutcome) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", id, models.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":              outcome.Status,
			"accounts_synced":     outcome.AccountsSynced,
			"transactions_synced": outcome.TransactionsSynced,
			"error_message":       outcome.ErrorMessage,
			"finished_at":         outcome.FinishedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrRunAlreadyFinalized
	}
	return nil
}

func (r *SyncRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	var run models.SyncRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *SyncRunRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

type MatchRunRepository struct {
	db *gorm.DB
}

func NewMatchRunRepository(db *gorm.DB) *MatchRunRepository {
	return &MatchRunRepository{db: db}
}

func (r *MatchRunRepository) Open(ctx context.Context, run *models.MatchRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = models.RunStatusRunning
	return r.db.WithContext(ctx).Create(run).Error
}

// Finalize copies the counters and status of run onto the stored row, once.
func (r *MatchRunRepository) Finalize(ctx context.Context, run *models.MatchRun) error {
	result := r.db.WithContext(ctx).
		Model(&models.MatchRun{}).
		Where("id = ? AND status = ?", run.ID, models.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":                 run.Status,
			"transactions_processed": run.TransactionsProcessed,
			"auto_reconciled":        run.AutoReconciled,
			"suggestions_created":    run.SuggestionsCreated,
			"no_match":               run.NoMatch,
			"already_reconciled":     run.AlreadyReconciled,
			"duplicate_suggestions":  run.DuplicateSuggestions,
			"error_message":          run.ErrorMessage,
			"finished_at":            run.FinishedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrRunAlreadyFinalized
	}
	return nil
}

func (r *MatchRunRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.MatchRun, error) {
	var runs []models.MatchRun
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
