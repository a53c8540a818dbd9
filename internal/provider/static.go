package provider

import (
	"context"
	"fmt"
	"sync"

	"bank-reconciliation-backend/internal/models"

	"github.com/spf13/viper"
)

// Static serves fixed accounts and transactions from memory. It backs the sandbox
// provider and tests.
type Static struct {
	// Accounts and Transactions are keyed by connection external id and account
	// external id respectively.
	Accounts     map[string][]Account
	Transactions map[string][]RawTransaction
	// Err, when set, is returned by every call.
	Err error

	mu     sync.Mutex
	ranges []DateRange
}

var _ Client = (*Static)(nil)

func NewStatic() *Static {
	return &Static{
		Accounts:     make(map[string][]Account),
		Transactions: make(map[string][]RawTransaction),
	}
}

// staticFixture is the on-disk shape of a sandbox statement file:
//
//	accounts:
//	  - connection: item-1
//	    id: acc-1
//	    name: Conta PJ
//	    transactions:
//	      - {id: tx-1, date: "2026-03-09", amount: "-500.00", description: PIX ENVIADO}
type staticFixture struct {
	Accounts []fixtureAccount `mapstructure:"accounts"`
}

type fixtureAccount struct {
	Connection   string           `mapstructure:"connection"`
	ID           string           `mapstructure:"id"`
	Name         string           `mapstructure:"name"`
	BankName     string           `mapstructure:"bank_name"`
	Type         string           `mapstructure:"type"`
	Balance      string           `mapstructure:"balance"`
	Transactions []RawTransaction `mapstructure:"transactions"`
}

// LoadStaticFile builds a Static from a YAML, JSON or TOML statement file.
func LoadStaticFile(path string) (*Static, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sandbox fixture: %w", err)
	}
	var fixture staticFixture
	if err := v.Unmarshal(&fixture); err != nil {
		return nil, fmt.Errorf("decode sandbox fixture: %w", err)
	}

	s := NewStatic()
	for i, acc := range fixture.Accounts {
		if acc.Connection == "" || acc.ID == "" {
			return nil, fmt.Errorf("sandbox fixture account %d: connection and id are required", i)
		}
		account := Account{ExternalID: acc.ID, Name: acc.Name, BankName: acc.BankName, AccountType: acc.Type, Balance: acc.Balance}
		s.AddAccount(acc.Connection, account, acc.Transactions...)
	}
	return s, nil
}

// AddAccount registers an account under a connection together with its statement.
func (s *Static) AddAccount(connectionExternalID string, account Account, txs ...RawTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Accounts[connectionExternalID] = append(s.Accounts[connectionExternalID], account)
	s.Transactions[account.ExternalID] = append(s.Transactions[account.ExternalID], txs...)
}

func (s *Static) ListAccounts(ctx context.Context, conn models.BankConnection) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]Account(nil), s.Accounts[conn.ExternalID]...), nil
}

func (s *Static) ListTransactions(ctx context.Context, conn models.BankConnection, account Account, r DateRange) ([]RawTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.ranges = append(s.ranges, r)
	return append([]RawTransaction(nil), s.Transactions[account.ExternalID]...), nil
}

// Ranges returns the date ranges requested so far.
func (s *Static) Ranges() []DateRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DateRange(nil), s.ranges...)
}
