// Package testdb opens throwaway sqlite databases with the reconciliation schema
// for package tests.
package testdb

import (
	"fmt"
	"testing"
	"time"

	"bank-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a migrated in-memory database private to the calling test.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps the shared in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

func Tenant(t testing.TB, db *gorm.DB) models.Tenant {
	t.Helper()
	tenant := models.Tenant{ID: uuid.New(), Name: "Acme Ltda", Active: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&tenant).Error)
	return tenant
}

func Connection(t testing.TB, db *gorm.DB, tenantID uuid.UUID, provider string) models.BankConnection {
	t.Helper()
	conn := models.BankConnection{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Provider:   provider,
		ExternalID: "item-" + uuid.NewString()[:8],
		Name:       "Conta PJ",
		Status:     models.ConnectionStatusActive,
	}
	require.NoError(t, db.Create(&conn).Error)
	return conn
}

// Payable stores an open payable; mutate lets a test adjust fields before insert.
func Payable(t testing.TB, db *gorm.DB, tenantID uuid.UUID, amount string, mutate func(*models.Payable)) models.Payable {
	t.Helper()
	p := models.Payable{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Amount:        decimal.RequireFromString(amount),
		DueDate:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		RecipientName: "Fornecedor Exemplo",
		PaymentStatus: models.PaymentStatusPending,
	}
	if mutate != nil {
		mutate(&p)
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// Transaction stores an outgoing bank transaction on a fresh account id.
func Transaction(t testing.TB, db *gorm.DB, tenantID uuid.UUID, amount string, mutate func(*models.BankTransaction)) models.BankTransaction {
	t.Helper()
	tx := models.BankTransaction{
		ID:           uuid.New(),
		TenantID:     tenantID,
		AccountID:    uuid.New(),
		ExternalTxID: "ext-" + uuid.NewString(),
		PostedAt:     time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		Description:  "PIX ENVIADO",
		Amount:       decimal.RequireFromString(amount).Neg(),
		Direction:    models.DirectionOut,
	}
	if mutate != nil {
		mutate(&tx)
	}
	require.NoError(t, db.Create(&tx).Error)
	return tx
}
