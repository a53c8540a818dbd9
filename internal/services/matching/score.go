package matching

import (
	"strings"
	"unicode"

	"bank-reconciliation-backend/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	ReasonAmountExact   = "amount exact"
	ReasonAmountApprox  = "amount approx"
	ReasonDocumentExact = "document exact"
	ReasonNameExact     = "name exact"
	ReasonNamePartial   = "name partial"
	ReasonKeyExact      = "key exact"

	weightAmountExact   = 30
	weightAmountApprox  = 15
	weightDocumentExact = 40
	weightNameExact     = 20
	weightNamePartial   = 10
	weightKeyExact      = 10
)

var (
	exactTolerance  = decimal.NewFromFloat(0.01)
	approxTolerance = decimal.NewFromInt(1)
)

// Score rates how well a bank transaction settles a payable. Criteria are additive
// and independent; reasons come back in criterion order. The result depends only
// on its arguments.
func Score(tx models.BankTransaction, p models.Payable) (int, []string) {
	total := 0
	reasons := []string{}

	diff := tx.Amount.Abs().Sub(p.Amount.Abs()).Abs()
	switch {
	case diff.LessThan(exactTolerance):
		total += weightAmountExact
		reasons = append(reasons, ReasonAmountExact)
	case diff.LessThan(approxTolerance):
		total += weightAmountApprox
		reasons = append(reasons, ReasonAmountApprox)
	}

	if txDoc := digitsOnly(tx.CounterpartyDocument); txDoc != "" && txDoc == digitsOnly(p.RecipientDocument) {
		total += weightDocumentExact
		reasons = append(reasons, ReasonDocumentExact)
	}

	txName := normalizeName(tx.CounterpartyName)
	payName := normalizeName(p.RecipientName)
	if txName != "" && payName != "" {
		switch {
		case txName == payName:
			total += weightNameExact
			reasons = append(reasons, ReasonNameExact)
		case strings.Contains(txName, payName) || strings.Contains(payName, txName):
			total += weightNamePartial
			reasons = append(reasons, ReasonNamePartial)
		}
	}

	if paymentKeysMatch(tx.CounterpartyPaymentKey, p.PaymentKey) {
		total += weightKeyExact
		reasons = append(reasons, ReasonKeyExact)
	}

	return total, reasons
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// normalizeName uppercases, strips diacritics and trims.
func normalizeName(s string) string {
	// transformers keep state, so each call builds its own chain
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.TrimSpace(strings.ToUpper(stripped))
}

// paymentKeysMatch compares keys raw (case-insensitive) and, for keys without
// letters such as phone numbers or tax ids, by their digits.
func paymentKeysMatch(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	if strings.EqualFold(a, b) {
		return true
	}
	da, db := numericKey(a), numericKey(b)
	return da != "" && da == db
}

func numericKey(s string) string {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return ""
		}
	}
	return digitsOnly(s)
}
