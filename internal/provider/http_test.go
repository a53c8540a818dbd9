package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bank-reconciliation-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientListsAccountsAndTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/items/item-1/accounts":
			_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"acc-1","name":"Conta PJ","balance":"10.50"}]}`))
		case "/accounts/acc-1/transactions":
			assert.Equal(t, "2026-03-01", r.URL.Query().Get("from"))
			assert.Equal(t, "2026-03-15", r.URL.Query().Get("to"))
			_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"tx-1","date":"2026-03-09","amount":"-99.90","description":"PIX ENVIADO Joana"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL + "/", APIKey: "secret", Timeout: time.Second})
	conn := models.BankConnection{ExternalID: "item-1"}

	accounts, err := c.ListAccounts(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "acc-1", accounts[0].ExternalID)

	txs, err := c.ListTransactions(context.Background(), conn, accounts[0], DateRange{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "-99.90", txs[0].Amount)
}

func TestHTTPClientMapsServerErrorsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream","message":"bank offline"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	_, err := c.ListAccounts(context.Background(), models.BankConnection{ExternalID: "item-1"})
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.Contains(t, err.Error(), "bank offline")
}

func TestHTTPClientStatusMapping(t *testing.T) {
	tests := []struct {
		status      int
		unavailable bool
	}{
		{status: http.StatusUnauthorized, unavailable: true},
		{status: http.StatusForbidden, unavailable: true},
		{status: http.StatusTooManyRequests, unavailable: true},
		{status: http.StatusServiceUnavailable, unavailable: true},
		{status: http.StatusNotFound, unavailable: false},
		{status: http.StatusBadRequest, unavailable: false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
			_, err := c.ListAccounts(context.Background(), models.BankConnection{ExternalID: "item-1"})
			require.Error(t, err)
			require.Equal(t, tt.unavailable, errors.Is(err, ErrProviderUnavailable))
		})
	}
}

func TestHTTPClientUnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: base, Timeout: time.Second})
	_, err := c.ListAccounts(context.Background(), models.BankConnection{ExternalID: "item-1"})
	require.ErrorIs(t, err, ErrProviderUnavailable)
}
