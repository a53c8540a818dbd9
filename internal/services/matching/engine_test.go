package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/testdb"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(db *gorm.DB) *Engine {
	e := NewEngine(
		repository.NewTenantRepository(db),
		repository.NewBankTransactionRepository(db),
		repository.NewPayableRepository(db),
		repository.NewSuggestionRepository(db),
		repository.NewMatchRunRepository(db),
		DefaultConfig(),
		zerolog.Nop(),
	)
	e.now = func() time.Time { return fixedNow }
	return e
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) models.Payable {
	t.Helper()
	var p models.Payable
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p
}

func pendingSuggestions(t *testing.T, db *gorm.DB, payableID uuid.UUID) []models.ReconciliationSuggestion {
	t.Helper()
	var out []models.ReconciliationSuggestion
	require.NoError(t, db.Where("payable_id = ? AND status = ?", payableID, models.SuggestionPending).Find(&out).Error)
	return out
}

func TestReconcileAutoReconcilesOnDocumentMatch(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	p := testdb.Payable(t, db, tenant.ID, "500.00", func(p *models.Payable) {
		p.RecipientDocument = "12.345.678/0001-90"
		p.RecipientName = "Fornecedor Alpha"
	})
	txn := testdb.Transaction(t, db, tenant.ID, "500.00", func(tx *models.BankTransaction) {
		tx.CounterpartyDocument = "12345678000190"
		tx.CounterpartyName = "NOME DIFERENTE"
	})

	result, err := newTestEngine(db).Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Equal(t, 1, result.TransactionsProcessed)
	require.Equal(t, 1, result.AutoReconciled)
	require.Empty(t, result.Errors)

	got := reload(t, db, p.ID)
	require.True(t, got.IsPaid)
	require.Equal(t, models.PaymentStatusReconciled, got.PaymentStatus)
	require.NotNil(t, got.ReconciliationSource)
	require.Equal(t, models.ReconciliationSourceAuto, *got.ReconciliationSource)
	require.NotNil(t, got.BankTransactionID)
	require.Equal(t, txn.ID, *got.BankTransactionID)
	require.NotNil(t, got.PaidAmount)
	require.True(t, got.PaidAmount.Equal(decimal.NewFromInt(500)))

	var audit []models.MatchAuditLog
	require.NoError(t, db.Where("payable_id = ?", p.ID).Find(&audit).Error)
	require.Len(t, audit, 1)
	require.Equal(t, models.AuditAutoReconciled, audit[0].Action)
	require.Equal(t, 70, audit[0].Score)

	var run models.MatchRun
	require.NoError(t, db.First(&run, "id = ?", result.RunID).Error)
	require.Equal(t, models.RunStatusSuccess, run.Status)
	require.Equal(t, 1, run.AutoReconciled)
	require.NotNil(t, run.FinishedAt)
}

func TestReconcileDiscardsWeakMatch(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	p := testdb.Payable(t, db, tenant.ID, "500.00", func(p *models.Payable) { p.RecipientName = "Padaria Central" })
	testdb.Transaction(t, db, tenant.ID, "498.00", func(tx *models.BankTransaction) { tx.CounterpartyName = "PADARIA CENTRAL LTDA" })

	result, err := newTestEngine(db).Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Equal(t, 1, result.NoMatch)
	require.Zero(t, result.SuggestionsCreated)

	got := reload(t, db, p.ID)
	require.False(t, got.IsPaid)
	require.Equal(t, models.PaymentStatusPending, got.PaymentStatus)
	require.Empty(t, pendingSuggestions(t, db, p.ID))
}

func TestReconcileProposesWithoutDocument(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	p := testdb.Payable(t, db, tenant.ID, "320.45", func(p *models.Payable) { p.RecipientName = "Gráfica Rápida" })
	txn := testdb.Transaction(t, db, tenant.ID, "320.45", func(tx *models.BankTransaction) { tx.CounterpartyName = "GRAFICA RAPIDA" })

	result, err := newTestEngine(db).Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Equal(t, 1, result.SuggestionsCreated)

	suggestions := pendingSuggestions(t, db, p.ID)
	require.Len(t, suggestions, 1)
	require.Equal(t, 50, suggestions[0].ConfidenceScore)
	require.Equal(t, []string{ReasonAmountExact, ReasonNameExact}, []string(suggestions[0].MatchReasons))
	require.Equal(t, txn.ID, suggestions[0].BankTransactionID)
	require.False(t, reload(t, db, p.ID).IsPaid)
}

func TestReconcileThresholdNeedsExactAmountForAuto(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	p := testdb.Payable(t, db, tenant.ID, "100.00", func(p *models.Payable) {
		p.RecipientDocument = "98765432100"
		p.RecipientName = "Alpha"
	})
	testdb.Transaction(t, db, tenant.ID, "100.40", func(tx *models.BankTransaction) {
		tx.CounterpartyDocument = "987.654.321-00"
		tx.CounterpartyName = "Beta"
	})

	result, err := newTestEngine(db).Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Zero(t, result.AutoReconciled)
	require.Equal(t, 1, result.SuggestionsCreated)

	suggestions := pendingSuggestions(t, db, p.ID)
	require.Len(t, suggestions, 1)
	require.Equal(t, 55, suggestions[0].ConfidenceScore)
	require.False(t, reload(t, db, p.ID).IsPaid)
}

func TestReconcileTwiceDoesNotDuplicateSuggestions(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	p := testdb.Payable(t, db, tenant.ID, "75.00", func(p *models.Payable) { p.RecipientName = "Oficina Beta" })
	testdb.Transaction(t, db, tenant.ID, "75.00", func(tx *models.BankTransaction) { tx.CounterpartyName = "Oficina Beta" })

	engine := newTestEngine(db)
	first, err := engine.Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Equal(t, 1, first.SuggestionsCreated)

	second, err := engine.Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Zero(t, second.SuggestionsCreated)
	require.Equal(t, 1, second.DuplicateSuggestions)
	require.Len(t, pendingSuggestions(t, db, p.ID), 1)
}

func TestReconcileDoesNotReproposeRejectedPair(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	p := testdb.Payable(t, db, tenant.ID, "75.00", func(p *models.Payable) { p.RecipientName = "Oficina Beta" })
	testdb.Transaction(t, db, tenant.ID, "75.00", func(tx *models.BankTransaction) { tx.CounterpartyName = "Oficina Beta" })

	engine := newTestEngine(db)
	first, err := engine.Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Equal(t, 1, first.SuggestionsCreated)

	proposed := pendingSuggestions(t, db, p.ID)
	require.Len(t, proposed, 1)
	require.NoError(t, repository.NewSuggestionRepository(db).Reject(context.Background(), proposed[0].ID, "ana", "not this supplier", fixedNow))

	second, err := engine.Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Zero(t, second.SuggestionsCreated)
	require.Equal(t, 1, second.NoMatch)
	require.Empty(t, pendingSuggestions(t, db, p.ID))
	require.False(t, reload(t, db, p.ID).IsPaid)
}

func TestReconcileProposesNextPayableAfterRejection(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	first := testdb.Payable(t, db, tenant.ID, "75.00", func(p *models.Payable) { p.RecipientName = "Oficina Beta" })
	second := testdb.Payable(t, db, tenant.ID, "75.00", func(p *models.Payable) {
		p.RecipientName = "Oficina Beta"
		p.DueDate = time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	})
	txn := testdb.Transaction(t, db, tenant.ID, "75.00", func(tx *models.BankTransaction) { tx.CounterpartyName = "Oficina Beta" })

	engine := newTestEngine(db)
	_, err := engine.Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	proposed := pendingSuggestions(t, db, first.ID)
	require.Len(t, proposed, 1)
	require.NoError(t, repository.NewSuggestionRepository(db).Reject(context.Background(), proposed[0].ID, "ana", "", fixedNow))

	result, err := engine.Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Equal(t, 1, result.SuggestionsCreated)
	require.Empty(t, pendingSuggestions(t, db, first.ID))

	next := pendingSuggestions(t, db, second.ID)
	require.Len(t, next, 1)
	require.Equal(t, txn.ID, next[0].BankTransactionID)
}

func TestReconcileSupersedesPendingSuggestionOnAutoReconcile(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	p := testdb.Payable(t, db, tenant.ID, "900.00", func(p *models.Payable) {
		p.RecipientDocument = "55666777000188"
		p.RecipientName = "Transportes Gama"
	})
	weak := testdb.Transaction(t, db, tenant.ID, "900.00", func(tx *models.BankTransaction) {
		tx.CounterpartyName = "Transportes Gama"
		tx.PostedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	})

	engine := newTestEngine(db)
	_, err := engine.Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Len(t, pendingSuggestions(t, db, p.ID), 1)

	strong := testdb.Transaction(t, db, tenant.ID, "900.00", func(tx *models.BankTransaction) {
		tx.CounterpartyDocument = "55.666.777/0001-88"
	})
	result, err := engine.Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Equal(t, 1, result.AutoReconciled)

	got := reload(t, db, p.ID)
	require.True(t, got.IsPaid)
	require.Equal(t, strong.ID, *got.BankTransactionID)
	require.Empty(t, pendingSuggestions(t, db, p.ID))

	var superseded models.ReconciliationSuggestion
	require.NoError(t, db.First(&superseded, "payable_id = ? AND bank_transaction_id = ?", p.ID, weak.ID).Error)
	require.Equal(t, models.SuggestionSuperseded, superseded.Status)
}

func TestReconcileSettlesPayableOnce(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	p := testdb.Payable(t, db, tenant.ID, "42.00", func(p *models.Payable) { p.RecipientDocument = "11122233344" })
	for i := 0; i < 3; i++ {
		testdb.Transaction(t, db, tenant.ID, "42.00", func(tx *models.BankTransaction) {
			tx.CounterpartyDocument = "111.222.333-44"
			tx.PostedAt = tx.PostedAt.Add(time.Duration(i) * time.Hour)
		})
	}

	result, err := newTestEngine(db).Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Equal(t, 3, result.TransactionsProcessed)
	require.Equal(t, 1, result.AutoReconciled)
	require.Equal(t, 2, result.NoMatch+result.AlreadyReconciled)

	first := reload(t, db, p.ID)
	require.True(t, first.IsPaid)

	again, err := newTestEngine(db).Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Zero(t, again.AutoReconciled)

	after := reload(t, db, p.ID)
	require.True(t, after.IsPaid)
	require.Equal(t, *first.BankTransactionID, *after.BankTransactionID)
	require.Equal(t, first.ReconciledAt.Unix(), after.ReconciledAt.Unix())
}

// staleOpenPayables serves a fixed open-payable snapshot, as if it had been read
// just before another writer settled some of them.
type staleOpenPayables struct {
	*repository.PayableRepository
	open []models.Payable
}

func (s staleOpenPayables) FindOpen(context.Context, uuid.UUID) ([]models.Payable, error) {
	return s.open, nil
}

func TestReconcileRetriesNextPayableAfterLostRace(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	installment := func(due time.Time) func(*models.Payable) {
		return func(p *models.Payable) {
			p.RecipientDocument = "98765432000110"
			p.DueDate = due
		}
	}
	taken := testdb.Payable(t, db, tenant.ID, "500.00", installment(time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)))
	open := testdb.Payable(t, db, tenant.ID, "500.00", installment(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)))
	snapshot := []models.Payable{taken, open}

	payables := repository.NewPayableRepository(db)
	earlier := testdb.Transaction(t, db, tenant.ID, "500.00", func(tx *models.BankTransaction) {
		tx.PostedAt = time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	})
	won, err := payables.ConditionallyMarkPaid(ctx, taken.ID, models.PaymentFields{
		TenantID:          tenant.ID,
		PaidAmount:        decimal.NewFromInt(500),
		PaidAt:            earlier.PostedAt,
		Source:            models.ReconciliationSourceManual,
		ReconciledAt:      fixedNow,
		BankTransactionID: earlier.ID,
		Score:             70,
		PerformedBy:       "ana",
	})
	require.NoError(t, err)
	require.True(t, won)

	txn := testdb.Transaction(t, db, tenant.ID, "500.00", func(tx *models.BankTransaction) {
		tx.CounterpartyDocument = "98.765.432/0001-10"
	})

	e := NewEngine(
		repository.NewTenantRepository(db),
		repository.NewBankTransactionRepository(db),
		staleOpenPayables{PayableRepository: payables, open: snapshot},
		repository.NewSuggestionRepository(db),
		repository.NewMatchRunRepository(db),
		DefaultConfig(),
		zerolog.Nop(),
	)
	e.now = func() time.Time { return fixedNow }

	result, err := e.Reconcile(ctx, ReconcileRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Equal(t, 1, result.TransactionsProcessed)
	require.Equal(t, 1, result.AutoReconciled)
	require.Zero(t, result.AlreadyReconciled)

	got := reload(t, db, open.ID)
	require.True(t, got.IsPaid)
	require.Equal(t, txn.ID, *got.BankTransactionID)
	require.Equal(t, earlier.ID, *reload(t, db, taken.ID).BankTransactionID)
}

func TestReconcileIgnoresOtherTenantsAndOldTransactions(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	other := testdb.Tenant(t, db)
	p := testdb.Payable(t, db, tenant.ID, "10.00", func(p *models.Payable) { p.RecipientDocument = "12345678909" })
	testdb.Transaction(t, db, other.ID, "10.00", func(tx *models.BankTransaction) { tx.CounterpartyDocument = "12345678909" })
	testdb.Transaction(t, db, tenant.ID, "10.00", func(tx *models.BankTransaction) {
		tx.CounterpartyDocument = "12345678909"
		tx.PostedAt = fixedNow.AddDate(0, 0, -90)
	})

	result, err := newTestEngine(db).Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID, LookbackDays: 30})
	require.NoError(t, err)
	require.Zero(t, result.TransactionsProcessed)
	require.False(t, reload(t, db, p.ID).IsPaid)
}

func TestReconcileUnknownTenantFinalizesRunAsError(t *testing.T) {
	db := testdb.New(t)
	unknown := uuid.New()

	_, err := newTestEngine(db).Reconcile(context.Background(), ReconcileRequest{TenantID: unknown})
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrTenantNotFound))

	var runs []models.MatchRun
	require.NoError(t, db.Where("tenant_id = ?", unknown).Find(&runs).Error)
	require.Len(t, runs, 1)
	require.Equal(t, models.RunStatusError, runs[0].Status)
	require.NotNil(t, runs[0].ErrorMessage)
}

func TestReconcileRejectsNilTenant(t *testing.T) {
	db := testdb.New(t)

	_, err := newTestEngine(db).Reconcile(context.Background(), ReconcileRequest{})
	require.ErrorIs(t, err, models.ErrTenantNotFound)

	var count int64
	require.NoError(t, db.Model(&models.MatchRun{}).Count(&count).Error)
	require.Zero(t, count)
}

type failingSuggestions struct{}

func (failingSuggestions) FindPending(context.Context, uuid.UUID) (*models.ReconciliationSuggestion, error) {
	return nil, errors.New("datastore unavailable")
}

func (failingSuggestions) RejectedPairs(context.Context, uuid.UUID) ([]models.SuggestionPair, error) {
	return nil, nil
}

func (failingSuggestions) Insert(context.Context, *models.ReconciliationSuggestion) (bool, error) {
	return false, errors.New("datastore unavailable")
}

func TestReconcileAggregatesPerTransactionErrors(t *testing.T) {
	db := testdb.New(t)
	tenant := testdb.Tenant(t, db)
	testdb.Payable(t, db, tenant.ID, "60.00", func(p *models.Payable) { p.RecipientName = "Loja Delta" })
	testdb.Transaction(t, db, tenant.ID, "60.00", func(tx *models.BankTransaction) { tx.CounterpartyName = "Loja Delta" })
	testdb.Transaction(t, db, tenant.ID, "5.00", nil)

	e := NewEngine(
		repository.NewTenantRepository(db),
		repository.NewBankTransactionRepository(db),
		repository.NewPayableRepository(db),
		failingSuggestions{},
		repository.NewMatchRunRepository(db),
		DefaultConfig(),
		zerolog.Nop(),
	)
	e.now = func() time.Time { return fixedNow }

	result, err := e.Reconcile(context.Background(), ReconcileRequest{TenantID: tenant.ID, TriggeredBy: models.TriggerCron})
	require.NoError(t, err)
	require.Equal(t, 2, result.TransactionsProcessed)
	require.Equal(t, 1, result.NoMatch)
	require.Len(t, result.Errors, 1)

	var run models.MatchRun
	require.NoError(t, db.First(&run, "id = ?", result.RunID).Error)
	require.Equal(t, models.RunStatusPartial, run.Status)
	require.Equal(t, models.TriggerCron, run.TriggeredBy)
}
