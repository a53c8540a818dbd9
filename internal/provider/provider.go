// Package provider is the boundary to open-finance aggregators. Clients return raw,
// loosely typed records; Normalize turns them into domain transactions.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"bank-reconciliation-backend/internal/models"
)

var (
	ErrProviderUnavailable = errors.New("bank provider unavailable")
	ErrMalformedRecord     = errors.New("malformed provider record")
	ErrUnknownProvider     = errors.New("unknown bank provider")
)

// DateRange is inclusive on both ends.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Account is a bank account as reported by the provider.
type Account struct {
	ExternalID  string `json:"id"`
	Name        string `json:"name"`
	BankName    string `json:"bank_name"`
	AccountType string `json:"type"`
	Balance     string `json:"balance"`
}

// RawTransaction is one statement line as the provider sends it. Amount and date
// stay strings until Normalize validates them.
type RawTransaction struct {
	ExternalID           string `json:"id" mapstructure:"id"`
	Date                 string `json:"date" mapstructure:"date"`
	Description          string `json:"description" mapstructure:"description"`
	Amount               string `json:"amount" mapstructure:"amount"`
	Type                 string `json:"type" mapstructure:"type"`
	CounterpartyDocument string `json:"counterparty_document" mapstructure:"counterparty_document"`
	CounterpartyName     string `json:"counterparty_name" mapstructure:"counterparty_name"`
	PaymentKey           string `json:"payment_key" mapstructure:"payment_key"`
}

// Client lists accounts and transactions for one bank connection.
type Client interface {
	ListAccounts(ctx context.Context, conn models.BankConnection) ([]Account, error)
	ListTransactions(ctx context.Context, conn models.BankConnection, account Account, r DateRange) ([]RawTransaction, error)
}

// Registry resolves a connection's provider name to its client.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(name string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = c
}

func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
