package matching

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bank-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	matchTracer     = otel.Tracer("reconciliation/matching")
	matchMeter      = otel.Meter("reconciliation/matching")
	matchOutcome, _ = matchMeter.Int64Counter("matching.transaction.outcome", metric.WithDescription("Transactions matched by outcome"))
	matchPass, _    = matchMeter.Float64Histogram("matching.pass.duration", metric.WithDescription("Matching pass duration in seconds"), metric.WithUnit("s"))
)

// PerformedByEngine is recorded on audit rows written by automatic reconciliation.
const PerformedByEngine = "reconciliation-engine"

type PayableStore interface {
	FindOpen(ctx context.Context, tenantID uuid.UUID) ([]models.Payable, error)
	ConditionallyMarkPaid(ctx context.Context, payableID uuid.UUID, fields models.PaymentFields) (bool, error)
}

type SuggestionStore interface {
	FindPending(ctx context.Context, payableID uuid.UUID) (*models.ReconciliationSuggestion, error)
	RejectedPairs(ctx context.Context, tenantID uuid.UUID) ([]models.SuggestionPair, error)
	Insert(ctx context.Context, s *models.ReconciliationSuggestion) (bool, error)
}

type TransactionSource interface {
	FindUnmatched(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]models.BankTransaction, error)
}

type TenantResolver interface {
	GetActive(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

type RunRecorder interface {
	Open(ctx context.Context, run *models.MatchRun) error
	Finalize(ctx context.Context, run *models.MatchRun) error
}

type Config struct {
	Policy              Policy
	Concurrency         int
	DefaultLookbackDays int
}

func DefaultConfig() Config {
	return Config{Policy: DefaultPolicy(), Concurrency: 4, DefaultLookbackDays: 30}
}

type ReconcileRequest struct {
	TenantID     uuid.UUID
	LookbackDays int
	TriggeredBy  string
}

type ReconcileResult struct {
	RunID                 uuid.UUID `json:"match_run_id"`
	TransactionsProcessed int       `json:"transactions_processed"`
	AutoReconciled        int       `json:"auto_reconciled"`
	SuggestionsCreated    int       `json:"suggestions_created"`
	NoMatch               int       `json:"no_match"`
	AlreadyReconciled     int       `json:"already_reconciled"`
	DuplicateSuggestions  int       `json:"duplicate_suggestions"`
	Errors                []string  `json:"errors,omitempty"`
}

type outcome string

const (
	outcomeAuto      outcome = "auto_reconciled"
	outcomeSuggested outcome = "suggestion_created"
	outcomeNoMatch   outcome = "no_match"
	outcomeRaceLost  outcome = "already_reconciled"
	outcomeDuplicate outcome = "duplicate_suggestion"
	outcomeFailed    outcome = "error"
)

// Engine runs matching passes: each unmatched debit is scored against the tenant's
// open payables and the best candidate is reconciled, proposed or discarded.
type Engine struct {
	tenants      TenantResolver
	transactions TransactionSource
	payables     PayableStore
	suggestions  SuggestionStore
	runs         RunRecorder
	cfg          Config
	log          zerolog.Logger
	now          func() time.Time
}

func NewEngine(tenants TenantResolver, transactions TransactionSource, payables PayableStore, suggestions SuggestionStore, runs RunRecorder, cfg Config, log zerolog.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DefaultLookbackDays <= 0 {
		cfg.DefaultLookbackDays = DefaultConfig().DefaultLookbackDays
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	return &Engine{
		tenants:      tenants,
		transactions: transactions,
		payables:     payables,
		suggestions:  suggestions,
		runs:         runs,
		cfg:          cfg,
		log:          log.With().Str("component", "matching").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile runs one matching pass for a tenant. Only tenant resolution and run
// bookkeeping failures are returned as errors; per-transaction failures are
// collected in the result and leave the run partial.
func (e *Engine) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	if req.TenantID == uuid.Nil {
		return nil, fmt.Errorf("reconcile: %w", models.ErrTenantNotFound)
	}
	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = e.cfg.DefaultLookbackDays
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = models.TriggerManual
	}

	ctx, span := matchTracer.Start(ctx, "matching.reconcile",
		trace.WithAttributes(
			attribute.String("tenant.id", req.TenantID.String()),
			attribute.Int("lookback_days", lookback),
			attribute.String("triggered_by", triggeredBy),
		),
	)
	defer span.End()
	start := time.Now()

	run := &models.MatchRun{
		TenantID:     req.TenantID,
		TriggeredBy:  triggeredBy,
		LookbackDays: lookback,
		StartedAt:    e.now(),
	}
	if err := e.runs.Open(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("open match run: %w", err)
	}
	log := e.log.With().Str("tenant_id", req.TenantID.String()).Str("match_run_id", run.ID.String()).Logger()

	txs, payables, rejected, err := e.load(ctx, req.TenantID, lookback)
	if err != nil {
		e.finalize(ctx, run, &ReconcileResult{RunID: run.ID}, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	log.Info().Int("transactions", len(txs)).Int("open_payables", len(payables)).Msg("matching pass started")

	t := &tally{result: ReconcileResult{RunID: run.ID}}
	var claimed sync.Map
	isClaimed := func(id uuid.UUID) bool {
		_, ok := claimed.Load(id)
		return ok
	}

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for i := range txs {
		if ctx.Err() != nil {
			break
		}
		tx := txs[i]
		skip := func(id uuid.UUID) bool {
			return isClaimed(id) || rejected.has(id, tx.ID)
		}
		g.Go(func() error {
			out, err := e.matchOne(ctx, tx, payables, skip, func(id uuid.UUID) { claimed.Store(id, struct{}{}) })
			if err != nil {
				log.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("matching transaction failed")
				t.fail(fmt.Sprintf("transaction %s: %v", tx.ID, err))
			} else {
				t.count(out)
			}
			matchOutcome.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(out))))
			return nil
		})
	}
	_ = g.Wait()

	result := t.snapshot()
	if ctx.Err() != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("matching aborted: %v", ctx.Err()))
	}
	e.finalize(ctx, run, &result, nil)

	matchPass.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("transactions.processed", result.TransactionsProcessed),
		attribute.Int("auto_reconciled", result.AutoReconciled),
		attribute.Int("suggestions.created", result.SuggestionsCreated),
	)
	if len(result.Errors) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d errors", len(result.Errors)))
	}

	log.Info().
		Int("processed", result.TransactionsProcessed).
		Int("auto_reconciled", result.AutoReconciled).
		Int("suggestions_created", result.SuggestionsCreated).
		Int("no_match", result.NoMatch).
		Int("already_reconciled", result.AlreadyReconciled).
		Int("duplicate_suggestions", result.DuplicateSuggestions).
		Int("errors", len(result.Errors)).
		Msg("matching pass finished")

	return &result, nil
}

func (e *Engine) load(ctx context.Context, tenantID uuid.UUID, lookback int) ([]models.BankTransaction, []models.Payable, pairSet, error) {
	if _, err := e.tenants.GetActive(ctx, tenantID); err != nil {
		return nil, nil, nil, fmt.Errorf("resolve tenant: %w", err)
	}
	now := e.now()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -lookback)

	txs, err := e.transactions.FindUnmatched(ctx, tenantID, since)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load unmatched transactions: %w", err)
	}
	payables, err := e.payables.FindOpen(ctx, tenantID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load open payables: %w", err)
	}
	pairs, err := e.suggestions.RejectedPairs(ctx, tenantID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load rejected suggestions: %w", err)
	}
	rejected := make(pairSet, len(pairs))
	for _, p := range pairs {
		rejected[p] = struct{}{}
	}
	return txs, payables, rejected, nil
}

// matchOne settles, proposes or discards the best candidate for tx. When another
// worker settles the chosen payable first, the transaction is scored once more
// against what is still open.
func (e *Engine) matchOne(ctx context.Context, tx models.BankTransaction, payables []models.Payable, skip func(uuid.UUID) bool, claim func(uuid.UUID)) (outcome, error) {
	lostRace := false
	for attempt := 0; attempt < 2; attempt++ {
		best := BestCandidate(tx, payables, skip)
		if best == nil {
			break
		}

		switch e.cfg.Policy.Decide(*best) {
		case ActionAutoReconcile:
			won, err := e.settle(ctx, *best)
			if err != nil {
				return outcomeFailed, err
			}
			claim(best.Payable.ID)
			if won {
				return outcomeAuto, nil
			}
			lostRace = true
			continue
		case ActionPropose:
			return e.propose(ctx, *best)
		}
		break
	}
	if lostRace {
		return outcomeRaceLost, nil
	}
	return outcomeNoMatch, nil
}

func (e *Engine) settle(ctx context.Context, c Candidate) (bool, error) {
	won, err := e.payables.ConditionallyMarkPaid(ctx, c.Payable.ID, models.PaymentFields{
		TenantID:          c.Transaction.TenantID,
		PaidAmount:        c.Transaction.Amount.Abs(),
		PaidAt:            c.Transaction.PostedAt,
		Source:            models.ReconciliationSourceAuto,
		ReconciledAt:      e.now(),
		BankTransactionID: c.Transaction.ID,
		Score:             c.Score,
		PerformedBy:       PerformedByEngine,
	})
	if err != nil {
		return false, fmt.Errorf("reconcile payable %s: %w", c.Payable.ID, err)
	}
	return won, nil
}

func (e *Engine) propose(ctx context.Context, c Candidate) (outcome, error) {
	existing, err := e.suggestions.FindPending(ctx, c.Payable.ID)
	if err != nil {
		return outcomeFailed, fmt.Errorf("look up pending suggestion: %w", err)
	}
	if existing != nil {
		return outcomeDuplicate, nil
	}
	created, err := e.suggestions.Insert(ctx, newSuggestion(c))
	if err != nil {
		return outcomeFailed, fmt.Errorf("insert suggestion: %w", err)
	}
	if !created {
		return outcomeDuplicate, nil
	}
	return outcomeSuggested, nil
}

// pairSet holds reviewer-rejected pairs; the engine never proposes or settles them again.
type pairSet map[models.SuggestionPair]struct{}

func (s pairSet) has(payableID, txID uuid.UUID) bool {
	_, ok := s[models.SuggestionPair{PayableID: payableID, BankTransactionID: txID}]
	return ok
}

func (e *Engine) finalize(ctx context.Context, run *models.MatchRun, result *ReconcileResult, fatal error) {
	finished := e.now()
	run.FinishedAt = &finished
	run.TransactionsProcessed = result.TransactionsProcessed
	run.AutoReconciled = result.AutoReconciled
	run.SuggestionsCreated = result.SuggestionsCreated
	run.NoMatch = result.NoMatch
	run.AlreadyReconciled = result.AlreadyReconciled
	run.DuplicateSuggestions = result.DuplicateSuggestions

	switch {
	case fatal != nil:
		run.Status = models.RunStatusError
		msg := fatal.Error()
		run.ErrorMessage = &msg
	case len(result.Errors) > 0:
		run.Status = models.RunStatusPartial
		msg := strings.Join(result.Errors, "; ")
		run.ErrorMessage = &msg
	default:
		run.Status = models.RunStatusSuccess
	}

	if err := e.runs.Finalize(context.WithoutCancel(ctx), run); err != nil {
		e.log.Error().Err(err).Str("match_run_id", run.ID.String()).Msg("failed to finalize match run")
	}
}

func newSuggestion(c Candidate) *models.ReconciliationSuggestion {
	return &models.ReconciliationSuggestion{
		TenantID:               c.Payable.TenantID,
		PayableID:              c.Payable.ID,
		BankTransactionID:      c.Transaction.ID,
		TransactionDate:        c.Transaction.PostedAt,
		TransactionAmount:      c.Transaction.Amount,
		TransactionDescription: c.Transaction.Description,
		CounterpartyDocument:   c.Transaction.CounterpartyDocument,
		CounterpartyName:       c.Transaction.CounterpartyName,
		CounterpartyPaymentKey: c.Transaction.CounterpartyPaymentKey,
		ConfidenceScore:        c.Score,
		MatchReasons:           c.Reasons,
	}
}

// tally accumulates per-transaction outcomes from concurrent workers.
type tally struct {
	mu     sync.Mutex
	result ReconcileResult
}

func (t *tally) count(o outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.TransactionsProcessed++
	switch o {
	case outcomeAuto:
		t.result.AutoReconciled++
	case outcomeSuggested:
		t.result.SuggestionsCreated++
	case outcomeNoMatch:
		t.result.NoMatch++
	case outcomeRaceLost:
		t.result.AlreadyReconciled++
	case outcomeDuplicate:
		t.result.DuplicateSuggestions++
	}
}

func (t *tally) fail(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.TransactionsProcessed++
	t.result.Errors = append(t.result.Errors, msg)
}

func (t *tally) snapshot() ReconcileResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.result
	r.Errors = append([]string(nil), t.result.Errors...)
	return r
}
