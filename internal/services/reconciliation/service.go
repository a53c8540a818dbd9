package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrReviewerRequired = errors.New("reviewer is required")
	ErrInvalidAmount    = errors.New("amount must be positive")
)

// ReconciliationService is the human side of the suggestion queue: reviewers accept
// or reject proposed matches and browse what has been reconciled.
type ReconciliationService struct {
	payableRepo    *repository.PayableRepository
	suggestionRepo *repository.SuggestionRepository
	log            zerolog.Logger
	now            func() time.Time
}

func NewReconciliationService(
	payableRepo *repository.PayableRepository,
	suggestionRepo *repository.SuggestionRepository,
	log zerolog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		payableRepo:    payableRepo,
		suggestionRepo: suggestionRepo,
		log:            log.With().Str("component", "reconciliation").Logger(),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Accept settles the suggestion's payable with the suggested transaction, sourced
// manual. If the payable was reconciled by someone else first, the suggestion is
// superseded and models.ErrPayableAlreadyReconciled is returned.
func (s *ReconciliationService) Accept(ctx context.Context, suggestionID uuid.UUID, reviewer string) (*models.Payable, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, ErrReviewerRequired
	}

	suggestion, err := s.suggestionRepo.GetByID(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if suggestion.Status != models.SuggestionPending {
		return nil, fmt.Errorf("suggestion %s is %s: %w", suggestion.ID, suggestion.Status, models.ErrSuggestionNotPending)
	}

	now := s.now()
	won, err := s.payableRepo.ConditionallyMarkPaid(ctx, suggestion.PayableID, models.PaymentFields{
		TenantID:             suggestion.TenantID,
		PaidAmount:           suggestion.TransactionAmount.Abs(),
		PaidAt:               suggestion.TransactionDate,
		Source:               models.ReconciliationSourceManual,
		ReconciledAt:         now,
		BankTransactionID:    suggestion.BankTransactionID,
		Score:                suggestion.ConfidenceScore,
		PerformedBy:          reviewer,
		AcceptedSuggestionID: &suggestion.ID,
	})
	if err != nil {
		return nil, err
	}
	if !won {
		if err := s.suggestionRepo.Supersede(ctx, suggestion.ID, now); err != nil {
			s.log.Error().Err(err).Str("suggestion_id", suggestion.ID.String()).Msg("failed to supersede stale suggestion")
		}
		return nil, fmt.Errorf("payable %s: %w", suggestion.PayableID, models.ErrPayableAlreadyReconciled)
	}

	s.log.Info().
		Str("suggestion_id", suggestion.ID.String()).
		Str("payable_id", suggestion.PayableID.String()).
		Str("reviewed_by", reviewer).
		Msg("suggestion accepted")

	return s.payableRepo.GetByID(ctx, suggestion.PayableID)
}

// Reject closes a pending suggestion. The payable stays open for future passes.
func (s *ReconciliationService) Reject(ctx context.Context, suggestionID uuid.UUID, reviewer, note string) error {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return ErrReviewerRequired
	}
	if err := s.suggestionRepo.Reject(ctx, suggestionID, reviewer, strings.TrimSpace(note), s.now()); err != nil {
		return err
	}
	s.log.Info().Str("suggestion_id", suggestionID.String()).Str("reviewed_by", reviewer).Msg("suggestion rejected")
	return nil
}

func (s *ReconciliationService) ListPending(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.ReconciliationSuggestion, error) {
	return s.suggestionRepo.ListByStatus(ctx, tenantID, models.SuggestionPending, clampLimit(limit))
}

func (s *ReconciliationService) ListReconciled(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Payable, error) {
	return s.payableRepo.ListReconciled(ctx, tenantID, clampLimit(limit))
}

// PayableChanges carries optional edits to an open payable.
type PayableChanges struct {
	Amount            *decimal.Decimal
	DueDate           *time.Time
	RecipientName     *string
	RecipientDocument *string
	PaymentKey        *string
	PaymentKeyType    *string
}

// UpdatePayable edits an open payable. Reconciled payables are immutable and yield
// models.ErrPayableLocked.
func (s *ReconciliationService) UpdatePayable(ctx context.Context, id uuid.UUID, changes PayableChanges) (*models.Payable, error) {
	updates := map[string]interface{}{}
	if changes.Amount != nil {
		if !changes.Amount.IsPositive() {
			return nil, ErrInvalidAmount
		}
		updates["amount"] = changes.Amount.Round(2)
	}
	if changes.DueDate != nil {
		updates["due_date"] = changes.DueDate.UTC()
	}
	if changes.RecipientName != nil {
		updates["recipient_name"] = strings.TrimSpace(*changes.RecipientName)
	}
	if changes.RecipientDocument != nil {
		updates["recipient_document"] = strings.TrimSpace(*changes.RecipientDocument)
	}
	if changes.PaymentKey != nil {
		updates["payment_key"] = strings.TrimSpace(*changes.PaymentKey)
	}
	if changes.PaymentKeyType != nil {
		updates["payment_key_type"] = strings.TrimSpace(*changes.PaymentKeyType)
	}
	if len(updates) == 0 {
		return s.payableRepo.GetByID(ctx, id)
	}
	updates["updated_at"] = s.now()

	if err := s.payableRepo.UpdateOpenDetails(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.payableRepo.GetByID(ctx, id)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}
