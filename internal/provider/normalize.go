package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bank-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize validates a raw provider record and converts it into a bank transaction
// for the given tenant and account. Failures wrap ErrMalformedRecord.
//
// Debits are stored with a negative amount and direction "out". When the provider
// sends an explicit type it wins over the sign of the amount.
func Normalize(tenantID, accountID uuid.UUID, raw RawTransaction) (models.BankTransaction, error) {
	externalID := strings.TrimSpace(raw.ExternalID)
	if externalID == "" {
		return models.BankTransaction{}, fmt.Errorf("%w: missing transaction id", ErrMalformedRecord)
	}

	postedAt, err := parseDate(raw.Date)
	if err != nil {
		return models.BankTransaction{}, fmt.Errorf("%w: transaction %s: %v", ErrMalformedRecord, externalID, err)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(raw.Amount))
	if err != nil {
		return models.BankTransaction{}, fmt.Errorf("%w: transaction %s: invalid amount %q", ErrMalformedRecord, externalID, raw.Amount)
	}

	direction := models.DirectionIn
	switch strings.ToUpper(strings.TrimSpace(raw.Type)) {
	case "DEBIT", "OUT", "D":
		direction = models.DirectionOut
	case "CREDIT", "IN", "C":
		direction = models.DirectionIn
	case "":
		if amount.IsNegative() {
			direction = models.DirectionOut
		}
	default:
		return models.BankTransaction{}, fmt.Errorf("%w: transaction %s: unknown type %q", ErrMalformedRecord, externalID, raw.Type)
	}
	if direction == models.DirectionOut {
		amount = amount.Abs().Neg()
	} else {
		amount = amount.Abs()
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return models.BankTransaction{}, fmt.Errorf("%w: transaction %s: %v", ErrMalformedRecord, externalID, err)
	}

	description := strings.TrimSpace(raw.Description)
	name := strings.TrimSpace(raw.CounterpartyName)
	if name == "" {
		name = ExtractCounterpartyName(description)
	}

	return models.BankTransaction{
		TenantID:               tenantID,
		AccountID:              accountID,
		ExternalTxID:           externalID,
		PostedAt:               postedAt,
		Description:            description,
		Amount:                 amount.Round(2),
		Direction:              direction,
		CounterpartyDocument:   strings.TrimSpace(raw.CounterpartyDocument),
		CounterpartyName:       name,
		CounterpartyPaymentKey: strings.TrimSpace(raw.PaymentKey),
		RawData:                datatypes.JSON(payload),
	}, nil
}

// NormalizeAccount converts a provider account into the stored snapshot.
func NormalizeAccount(tenantID, connectionID uuid.UUID, a Account, refreshedAt time.Time) (models.BankAccount, error) {
	externalID := strings.TrimSpace(a.ExternalID)
	if externalID == "" {
		return models.BankAccount{}, fmt.Errorf("%w: missing account id", ErrMalformedRecord)
	}
	balance := decimal.Zero
	if s := strings.TrimSpace(a.Balance); s != "" {
		b, err := decimal.NewFromString(s)
		if err != nil {
			return models.BankAccount{}, fmt.Errorf("%w: account %s: invalid balance %q", ErrMalformedRecord, externalID, a.Balance)
		}
		balance = b
	}
	return models.BankAccount{
		TenantID:          tenantID,
		ConnectionID:      connectionID,
		ExternalAccountID: externalID,
		Name:              a.Name,
		BankName:          a.BankName,
		AccountType:       a.AccountType,
		CurrentBalance:    balance,
		LastRefreshedAt:   refreshedAt,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
