package matching

import (
	"testing"

	"bank-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func tx(amount string, mutate func(*models.BankTransaction)) models.BankTransaction {
	t := models.BankTransaction{Amount: decimal.RequireFromString(amount).Neg(), Direction: models.DirectionOut}
	if mutate != nil {
		mutate(&t)
	}
	return t
}

func payable(amount string, mutate func(*models.Payable)) models.Payable {
	p := models.Payable{Amount: decimal.RequireFromString(amount)}
	if mutate != nil {
		mutate(&p)
	}
	return p
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		tx      models.BankTransaction
		payable models.Payable
		score   int
		reasons []string
	}{
		{
			name: "document and exact amount",
			tx: tx("500.00", func(t *models.BankTransaction) {
				t.CounterpartyDocument = "12.345.678/0001-90"
				t.CounterpartyName = "OUTRO NOME"
			}),
			payable: payable("500.00", func(p *models.Payable) {
				p.RecipientDocument = "12345678000190"
				p.RecipientName = "Fornecedor"
			}),
			score:   70,
			reasons: []string{ReasonAmountExact, ReasonDocumentExact},
		},
		{
			name:    "amount off by two with partial name",
			tx:      tx("498.00", func(t *models.BankTransaction) { t.CounterpartyName = "PADARIA SAO JOAO LTDA" }),
			payable: payable("500.00", func(p *models.Payable) { p.RecipientName = "Padaria São João" }),
			score:   10,
			reasons: []string{ReasonNamePartial},
		},
		{
			name:    "exact amount and name",
			tx:      tx("250.10", func(t *models.BankTransaction) { t.CounterpartyName = "  josé da silva " }),
			payable: payable("250.10", func(p *models.Payable) { p.RecipientName = "JOSE DA SILVA" }),
			score:   50,
			reasons: []string{ReasonAmountExact, ReasonNameExact},
		},
		{
			name: "approximate amount with document",
			tx: tx("100.50", func(t *models.BankTransaction) {
				t.CounterpartyDocument = "123.456.789-09"
			}),
			payable: payable("100.00", func(p *models.Payable) { p.RecipientDocument = "12345678909" }),
			score:   55,
			reasons: []string{ReasonAmountApprox, ReasonDocumentExact},
		},
		{
			name:    "phone key by digits",
			tx:      tx("10.00", func(t *models.BankTransaction) { t.CounterpartyPaymentKey = "+55 (11) 99999-0000" }),
			payable: payable("99.00", func(p *models.Payable) { p.PaymentKey = "5511999990000" }),
			score:   10,
			reasons: []string{ReasonKeyExact},
		},
		{
			name:    "email key ignores case",
			tx:      tx("10.00", func(t *models.BankTransaction) { t.CounterpartyPaymentKey = "Pagamentos@Fornecedor.com" }),
			payable: payable("99.00", func(p *models.Payable) { p.PaymentKey = "pagamentos@fornecedor.com" }),
			score:   10,
			reasons: []string{ReasonKeyExact},
		},
		{
			name:    "email keys sharing digits do not match",
			tx:      tx("10.00", func(t *models.BankTransaction) { t.CounterpartyPaymentKey = "a1@x.com" }),
			payable: payable("99.00", func(p *models.Payable) { p.PaymentKey = "b1@y.com" }),
			score:   0,
			reasons: []string{},
		},
		{
			name:    "empty documents never match",
			tx:      tx("10.00", nil),
			payable: payable("99.00", nil),
			score:   0,
			reasons: []string{},
		},
		{
			name: "every criterion",
			tx: tx("80.00", func(t *models.BankTransaction) {
				t.CounterpartyDocument = "11222333000144"
				t.CounterpartyName = "Mercado Central"
				t.CounterpartyPaymentKey = "11222333000144"
			}),
			payable: payable("80.00", func(p *models.Payable) {
				p.RecipientDocument = "11.222.333/0001-44"
				p.RecipientName = "MERCADO CENTRAL"
				p.PaymentKey = "11.222.333/0001-44"
			}),
			score:   100,
			reasons: []string{ReasonAmountExact, ReasonDocumentExact, ReasonNameExact, ReasonKeyExact},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, reasons := Score(tt.tx, tt.payable)
			require.Equal(t, tt.score, score)
			require.Equal(t, tt.reasons, reasons)

			again, againReasons := Score(tt.tx, tt.payable)
			require.Equal(t, score, again)
			require.Equal(t, reasons, againReasons)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "JOAO CONCEICAO", normalizeName("  João Conceição "))
	require.Equal(t, "", normalizeName("   "))
}

func TestPolicyDecide(t *testing.T) {
	p := DefaultPolicy()

	require.Equal(t, ActionAutoReconcile, p.Decide(Candidate{Score: 70, Reasons: []string{ReasonAmountExact, ReasonDocumentExact}}))
	require.Equal(t, ActionPropose, p.Decide(Candidate{Score: 55, Reasons: []string{ReasonAmountApprox, ReasonDocumentExact}}))
	require.Equal(t, ActionPropose, p.Decide(Candidate{Score: 70, Reasons: []string{ReasonAmountExact, ReasonNameExact, ReasonNamePartial}}))
	require.Equal(t, ActionPropose, p.Decide(Candidate{Score: 40, Reasons: []string{ReasonDocumentExact}}))
	require.Equal(t, ActionDiscard, p.Decide(Candidate{Score: 39}))
}

func TestBestCandidateKeepsFirstOnTie(t *testing.T) {
	first := payable("10.00", func(p *models.Payable) { p.ID = uuid.New() })
	second := payable("10.00", func(p *models.Payable) { p.ID = uuid.New() })

	best := BestCandidate(tx("10.00", nil), []models.Payable{first, second}, nil)
	require.NotNil(t, best)
	require.Equal(t, first.ID, best.Payable.ID)

	best = BestCandidate(tx("10.00", nil), []models.Payable{first, second}, func(id uuid.UUID) bool { return id == first.ID })
	require.NotNil(t, best)
	require.Equal(t, second.ID, best.Payable.ID)

	require.Nil(t, BestCandidate(tx("10.00", nil), nil, nil))
}
