package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bank-reconciliation-backend/internal/models"
)

const (
	defaultTimeout   = 60 * time.Second
	accountsPath     = "/items/%s/accounts"
	transactionsPath = "/accounts/%s/transactions"
)

// HTTPClient talks to a JSON open-finance aggregator. Each bank connection's
// external id is the aggregator item id.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

var _ Client = (*HTTPClient)(nil)

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

type accountResponse struct {
	Success bool      `json:"success"`
	Data    []Account `json:"data"`
}

type transactionResponse struct {
	Success bool             `json:"success"`
	Data    []RawTransaction `json:"data"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *HTTPClient) ListAccounts(ctx context.Context, conn models.BankConnection) ([]Account, error) {
	var resp accountResponse
	endpoint := c.baseURL + fmt.Sprintf(accountsPath, url.PathEscape(conn.ExternalID))
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("list accounts for connection %s: %w", conn.ID, err)
	}
	return resp.Data, nil
}

func (c *HTTPClient) ListTransactions(ctx context.Context, conn models.BankConnection, account Account, r DateRange) ([]RawTransaction, error) {
	q := url.Values{}
	q.Set("from", r.From.Format("2006-01-02"))
	q.Set("to", r.To.Format("2006-01-02"))
	endpoint := c.baseURL + fmt.Sprintf(transactionsPath, url.PathEscape(account.ExternalID)) + "?" + q.Encode()

	var resp transactionResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("list transactions for account %s: %w", account.ExternalID, err)
	}
	return resp.Data, nil
}

// get decodes a successful JSON envelope into out. Transport failures, auth
// failures, 429 and 5xx wrap ErrProviderUnavailable; other statuses are plain errors.
func (c *HTTPClient) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := string(body)
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && (errResp.Error != "" || errResp.Message != "") {
			detail = strings.TrimSpace(errResp.Error + " " + errResp.Message)
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized,
			resp.StatusCode == http.StatusForbidden,
			resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= 500:
			return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, detail)
		default:
			return fmt.Errorf("provider request failed with status %d: %s", resp.StatusCode, detail)
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
