package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/services/ingestion"
	"bank-reconciliation-backend/internal/services/matching"
	service "bank-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Syncer interface {
	Sync(ctx context.Context, req ingestion.SyncRequest) (*ingestion.SyncResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, req matching.ReconcileRequest) (*matching.ReconcileResult, error)
}

type SyncRunLister interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.SyncRun, error)
}

type MatchRunLister interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.MatchRun, error)
}

type ReconciliationHandler struct {
	service    *service.ReconciliationService
	syncer     Syncer
	reconciler Reconciler
	syncRuns   SyncRunLister
	matchRuns  MatchRunLister
}

func NewReconciliationHandler(s *service.ReconciliationService, syncer Syncer, reconciler Reconciler, syncRuns SyncRunLister, matchRuns MatchRunLister) *ReconciliationHandler {
	return &ReconciliationHandler{
		service:    s,
		syncer:     syncer,
		reconciler: reconciler,
		syncRuns:   syncRuns,
		matchRuns:  matchRuns,
	}
}

func (h *ReconciliationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// BankSync runs ingestion for the tenant and reports what was stored.
func (h *ReconciliationHandler) BankSync(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}

	var payload struct {
		ConnectionID    *string `json:"connection_id"`
		TriggeredBy     string  `json:"triggered_by"`
		TriggeredByUser *string `json:"triggered_by_user"`
	}
	if !bindOptionalJSON(c, &payload) {
		return
	}

	req := ingestion.SyncRequest{TenantID: tenantID, TriggeredBy: payload.TriggeredBy, TriggeredByUser: payload.TriggeredByUser}
	switch payload.TriggeredBy {
	case "", models.TriggerManual, models.TriggerCron, models.TriggerWebhook:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid triggered_by"})
		return
	}
	if payload.ConnectionID != nil {
		connID, err := uuid.Parse(*payload.ConnectionID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection ID"})
			return
		}
		req.ConnectionID = &connID
	}

	result, err := h.syncer.Sync(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Reconcile runs one matching pass for the tenant.
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}

	var payload struct {
		LookbackDays int `json:"lookback_days"`
	}
	if !bindOptionalJSON(c, &payload) {
		return
	}
	if payload.LookbackDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lookback_days must not be negative"})
		return
	}

	result, err := h.reconciler.Reconcile(c.Request.Context(), matching.ReconcileRequest{
		TenantID:     tenantID,
		LookbackDays: payload.LookbackDays,
		TriggeredBy:  models.TriggerManual,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ReconciliationHandler) ListSuggestions(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}
	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	items, err := h.service.ListPending(c.Request.Context(), tenantID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *ReconciliationHandler) AcceptSuggestion(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var payload struct {
		ReviewedBy string `json:"reviewed_by"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	payable, err := h.service.Accept(c.Request.Context(), id, payload.ReviewedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "suggestion accepted", "payable": payable})
}

func (h *ReconciliationHandler) RejectSuggestion(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var payload struct {
		ReviewedBy string `json:"reviewed_by"`
		Note       string `json:"note"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.service.Reject(c.Request.Context(), id, payload.ReviewedBy, payload.Note); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "suggestion rejected"})
}

func (h *ReconciliationHandler) ListReconciledPayables(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}
	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	items, err := h.service.ListReconciled(c.Request.Context(), tenantID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// UpdatePayable edits an open payable; due_date is YYYY-MM-DD.
func (h *ReconciliationHandler) UpdatePayable(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var payload struct {
		Amount            *decimal.Decimal `json:"amount"`
		DueDate           *string          `json:"due_date"`
		RecipientName     *string          `json:"recipient_name"`
		RecipientDocument *string          `json:"recipient_document"`
		PaymentKey        *string          `json:"payment_key"`
		PaymentKeyType    *string          `json:"payment_key_type"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	changes := service.PayableChanges{
		Amount:            payload.Amount,
		RecipientName:     payload.RecipientName,
		RecipientDocument: payload.RecipientDocument,
		PaymentKey:        payload.PaymentKey,
		PaymentKeyType:    payload.PaymentKeyType,
	}
	if payload.DueDate != nil {
		due, err := time.Parse("2006-01-02", *payload.DueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due date format, expected yyyy-mm-dd"})
			return
		}
		changes.DueDate = &due
	}

	payable, err := h.service.UpdatePayable(c.Request.Context(), id, changes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payable updated", "payable": payable})
}

func (h *ReconciliationHandler) ListSyncRuns(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}
	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	runs, err := h.syncRuns.ListByTenant(c.Request.Context(), tenantID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": runs, "count": len(runs)})
}

func (h *ReconciliationHandler) ListMatchRuns(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}
	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	runs, err := h.matchRuns.ListByTenant(c.Request.Context(), tenantID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": runs, "count": len(runs)})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body as the zero payload.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return false
	}
	return true
}

func limitQuery(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 50, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	if limit > 500 {
		limit = 500
	}
	return limit, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrReviewerRequired),
		errors.Is(err, service.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrTenantNotFound),
		errors.Is(err, models.ErrConnectionNotFound),
		errors.Is(err, models.ErrSuggestionNotFound),
		errors.Is(err, models.ErrPayableNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrSuggestionNotPending),
		errors.Is(err, models.ErrPayableAlreadyReconciled),
		errors.Is(err, models.ErrPayableLocked):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log := logger.FromContext(c.Request.Context())
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
