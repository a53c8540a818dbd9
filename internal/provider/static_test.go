package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bank-reconciliation-backend/internal/models"

	"github.com/stretchr/testify/require"
)

const sandboxFixture = `
accounts:
  - connection: Item-1
    id: acc-1
    name: Conta PJ
    bank_name: Banco Sandbox
    balance: "9000.00"
    transactions:
      - id: tx-1
        date: "2026-03-09"
        description: PIX ENVIADO PARA Fornecedor Alpha
        amount: "-500.00"
      - id: tx-2
        date: "2026-03-10"
        description: TED RECEBIDA
        amount: "1200.00"
        type: CREDIT
  - connection: item-2
    id: acc-2
`

func TestLoadStaticFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sandboxFixture), 0o600))

	s, err := LoadStaticFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	conn := models.BankConnection{ExternalID: "Item-1"}
	accounts, err := s.ListAccounts(ctx, conn)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "acc-1", accounts[0].ExternalID)
	require.Equal(t, "Banco Sandbox", accounts[0].BankName)
	require.Equal(t, "9000.00", accounts[0].Balance)

	txs, err := s.ListTransactions(ctx, conn, accounts[0], DateRange{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, "-500.00", txs[0].Amount)
	require.Equal(t, "CREDIT", txs[1].Type)

	other, err := s.ListAccounts(ctx, models.BankConnection{ExternalID: "item-2"})
	require.NoError(t, err)
	require.Len(t, other, 1)
}

func TestLoadStaticFileRejectsIncompleteAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  - id: acc-1\n"), 0o600))

	_, err := LoadStaticFile(path)
	require.Error(t, err)

	_, err = LoadStaticFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
