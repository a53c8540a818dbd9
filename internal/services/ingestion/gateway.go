// Package ingestion pulls bank statements from providers into the transaction store.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/provider"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var syncTracer = otel.Tracer("reconciliation/ingestion")

type RunTracker interface {
	Open(ctx context.Context, run *models.SyncRun) error
	Finalize(ctx context.Context, id uuid.UUID, outcome models.RunOutcome) error
}

type TenantResolver interface {
	GetActive(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

type ConnectionStore interface {
	FindActive(ctx context.Context, tenantID uuid.UUID, connectionID *uuid.UUID) ([]models.BankConnection, error)
	RecordSyncResult(ctx context.Context, id uuid.UUID, at time.Time, status, syncErr string) error
}

type AccountStore interface {
	Upsert(ctx context.Context, account *models.BankAccount) (*models.BankAccount, error)
}

type TransactionStore interface {
	Upsert(ctx context.Context, tx *models.BankTransaction) error
}

type ProviderResolver interface {
	Get(name string) (provider.Client, error)
}

// SyncCompleted is published after a manual or webhook sync that stored at least
// one transaction.
type SyncCompleted struct {
	TenantID           uuid.UUID `json:"tenant_id"`
	SyncRunID          uuid.UUID `json:"sync_run_id"`
	TransactionsSynced int       `json:"transactions_synced"`
}

type Notifier interface {
	NotifySyncCompleted(ctx context.Context, event SyncCompleted) error
}

type Config struct {
	Concurrency         int
	ProviderTimeout     time.Duration
	Overlap             time.Duration
	InitialLookbackDays int
}

func DefaultConfig() Config {
	return Config{
		Concurrency:         4,
		ProviderTimeout:     60 * time.Second,
		Overlap:             72 * time.Hour,
		InitialLookbackDays: 90,
	}
}

type SyncRequest struct {
	TenantID        uuid.UUID
	ConnectionID    *uuid.UUID
	TriggeredBy     string
	TriggeredByUser *string
}

type SyncResult struct {
	RunID              uuid.UUID `json:"sync_run_id"`
	AccountsSynced     int       `json:"accounts_synced"`
	TransactionsSynced int       `json:"transactions_synced"`
	Errors             []string  `json:"errors,omitempty"`
}

// Gateway runs ingestion for one tenant at a time. A run is a saga: accounts and
// transactions are committed as they arrive and the sync run row is the terminal
// audit write.
type Gateway struct {
	runs         RunTracker
	tenants      TenantResolver
	connections  ConnectionStore
	accounts     AccountStore
	transactions TransactionStore
	providers    ProviderResolver
	notifier     Notifier
	cfg          Config
	log          zerolog.Logger
	now          func() time.Time
}

func NewGateway(runs RunTracker, tenants TenantResolver, connections ConnectionStore, accounts AccountStore, transactions TransactionStore, providers ProviderResolver, notifier Notifier, cfg Config, log zerolog.Logger) *Gateway {
	defaults := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaults.ProviderTimeout
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.InitialLookbackDays <= 0 {
		cfg.InitialLookbackDays = defaults.InitialLookbackDays
	}
	return &Gateway{
		runs:         runs,
		tenants:      tenants,
		connections:  connections,
		accounts:     accounts,
		transactions: transactions,
		providers:    providers,
		notifier:     notifier,
		cfg:          cfg,
		log:          log.With().Str("component", "ingestion").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Sync ingests every active connection of the tenant, or only req.ConnectionID
// when set. Failures of a single connection or record are collected in the result
// and make the run partial; only an unusable tenant or connection set, or a run
// row that cannot be opened, is returned as an error.
func (g *Gateway) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	if req.TenantID == uuid.Nil {
		return nil, fmt.Errorf("sync: %w", models.ErrTenantNotFound)
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = models.TriggerManual
	}

	ctx, span := syncTracer.Start(ctx, "ingestion.sync",
		trace.WithAttributes(
			attribute.String("tenant.id", req.TenantID.String()),
			attribute.String("triggered_by", triggeredBy),
		),
	)
	defer span.End()

	run := &models.SyncRun{
		TenantID:        req.TenantID,
		ConnectionID:    req.ConnectionID,
		TriggeredBy:     triggeredBy,
		TriggeredByUser: req.TriggeredByUser,
		StartedAt:       g.now(),
	}
	if err := g.runs.Open(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("open sync run: %w", err)
	}
	log := g.log.With().Str("tenant_id", req.TenantID.String()).Str("sync_run_id", run.ID.String()).Logger()

	conns, err := g.resolve(ctx, req)
	if err != nil {
		msg := err.Error()
		g.finalize(ctx, run.ID, models.RunOutcome{Status: models.RunStatusError, ErrorMessage: &msg})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	log.Info().Int("connections", len(conns)).Msg("bank sync started")

	result := &SyncResult{RunID: run.ID}
	var mu sync.Mutex

	grp := new(errgroup.Group)
	grp.SetLimit(g.cfg.Concurrency)
	for i := range conns {
		conn := conns[i]
		grp.Go(func() error {
			res := g.syncConnection(ctx, req.TenantID, conn, log)
			mu.Lock()
			defer mu.Unlock()
			result.AccountsSynced += res.accounts
			result.TransactionsSynced += res.transactions
			result.Errors = append(result.Errors, res.errs...)
			return nil
		})
	}
	_ = grp.Wait()

	outcome := models.RunOutcome{
		Status:             models.RunStatusSuccess,
		AccountsSynced:     result.AccountsSynced,
		TransactionsSynced: result.TransactionsSynced,
	}
	if len(result.Errors) > 0 {
		outcome.Status = models.RunStatusPartial
		msg := strings.Join(result.Errors, "; ")
		outcome.ErrorMessage = &msg
		span.SetStatus(codes.Error, fmt.Sprintf("%d errors", len(result.Errors)))
	}
	g.finalize(ctx, run.ID, outcome)

	span.SetAttributes(
		attribute.Int("accounts.synced", result.AccountsSynced),
		attribute.Int("transactions.synced", result.TransactionsSynced),
	)
	log.Info().
		Str("status", outcome.Status).
		Int("accounts_synced", result.AccountsSynced).
		Int("transactions_synced", result.TransactionsSynced).
		Int("errors", len(result.Errors)).
		Msg("bank sync finished")

	// Scheduled pipelines reconcile right after syncing, so only other triggers publish.
	if result.TransactionsSynced > 0 && g.notifier != nil && triggeredBy != models.TriggerCron {
		event := SyncCompleted{TenantID: req.TenantID, SyncRunID: run.ID, TransactionsSynced: result.TransactionsSynced}
		if err := g.notifier.NotifySyncCompleted(context.WithoutCancel(ctx), event); err != nil {
			log.Warn().Err(err).Msg("failed to publish sync completed notification")
		}
	}

	return result, nil
}

func (g *Gateway) resolve(ctx context.Context, req SyncRequest) ([]models.BankConnection, error) {
	if _, err := g.tenants.GetActive(ctx, req.TenantID); err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}
	conns, err := g.connections.FindActive(ctx, req.TenantID, req.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("resolve connections: %w", err)
	}
	return conns, nil
}

type connectionResult struct {
	accounts     int
	transactions int
	errs         []string
}

func (r *connectionResult) fail(conn models.BankConnection, err error) {
	r.errs = append(r.errs, fmt.Sprintf("connection %s: %v", conn.ID, err))
}

func (g *Gateway) syncConnection(ctx context.Context, tenantID uuid.UUID, conn models.BankConnection, log zerolog.Logger) connectionResult {
	var res connectionResult
	log = log.With().Str("connection_id", conn.ID.String()).Str("provider", conn.Provider).Logger()

	defer func() {
		status, syncErr := models.LastSyncSuccess, ""
		if len(res.errs) > 0 {
			status, syncErr = models.LastSyncError, strings.Join(res.errs, "; ")
			log.Warn().Int("errors", len(res.errs)).Msg("connection synced with errors")
		}
		if err := g.connections.RecordSyncResult(context.WithoutCancel(ctx), conn.ID, g.now(), status, syncErr); err != nil {
			log.Error().Err(err).Msg("failed to record connection sync result")
		}
	}()

	client, err := g.providers.Get(conn.Provider)
	if err != nil {
		res.fail(conn, err)
		return res
	}

	pctx, cancel := context.WithTimeout(ctx, g.cfg.ProviderTimeout)
	defer cancel()

	accounts, err := client.ListAccounts(pctx, conn)
	if err != nil {
		res.fail(conn, err)
		return res
	}

	window := g.dateRange(conn)
	for _, acc := range accounts {
		if err := pctx.Err(); err != nil {
			res.fail(conn, fmt.Errorf("aborted: %w", err))
			return res
		}

		row, err := provider.NormalizeAccount(tenantID, conn.ID, acc, g.now())
		if err != nil {
			res.fail(conn, err)
			continue
		}
		stored, err := g.accounts.Upsert(ctx, &row)
		if err != nil {
			res.fail(conn, fmt.Errorf("upsert account %s: %w", acc.ExternalID, err))
			continue
		}
		res.accounts++

		raws, err := client.ListTransactions(pctx, conn, acc, window)
		if err != nil {
			res.fail(conn, err)
			continue
		}
		for _, raw := range raws {
			tx, err := provider.Normalize(tenantID, stored.ID, raw)
			if err != nil {
				res.fail(conn, err)
				continue
			}
			if err := g.transactions.Upsert(ctx, &tx); err != nil {
				res.fail(conn, fmt.Errorf("upsert transaction %s: %w", tx.ExternalTxID, err))
				continue
			}
			res.transactions++
		}
	}

	log.Debug().Int("accounts", res.accounts).Int("transactions", res.transactions).Msg("connection synced")
	return res
}

// dateRange starts an overlap before the last successful sync, or the initial
// lookback before now for a connection that never synced cleanly. Failed attempts
// do not move the window, so an outage is fetched once the provider recovers.
func (g *Gateway) dateRange(conn models.BankConnection) provider.DateRange {
	now := g.now()
	from := now.AddDate(0, 0, -g.cfg.InitialLookbackDays)
	if conn.LastSuccessfulSyncAt != nil {
		from = conn.LastSuccessfulSyncAt.UTC().Add(-g.cfg.Overlap)
	}
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	return provider.DateRange{From: from, To: now}
}

func (g *Gateway) finalize(ctx context.Context, runID uuid.UUID, outcome models.RunOutcome) {
	outcome.FinishedAt = g.now()
	if err := g.runs.Finalize(context.WithoutCancel(ctx), runID, outcome); err != nil {
		g.log.Error().Err(err).Str("sync_run_id", runID.String()).Msg("failed to finalize sync run")
	}
}
