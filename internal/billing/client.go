// Package billing is a client for the hosted checkout provider.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/pkg/config"
)

// Client talks to the payment provider's REST API.
type Client struct {
	baseURL   string
	secretKey string
	client    *http.Client
	logger    *zap.Logger
}

// New constructs a Client.
func New(cfg config.BillingConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// EnsureCustomer creates a provider customer record and returns its id.
func (c *Client) EnsureCustomer(ctx context.Context, email, name string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.post(ctx, "/v1/customers", map[string]string{"email": email, "name": name}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("provider returned no customer id")
	}
	return out.ID, nil
}

// CreateSession opens a hosted checkout session.
func (c *Client) CreateSession(ctx context.Context, customerID, packName string, amount float64, currency, successURL, cancelURL string) (*models.CheckoutSession, error) {
	payload := map[string]interface{}{
		"customer":    customerID,
		"reference":   "pack:" + packName,
		"amount":      amount,
		"currency":    currency,
		"success_url": successURL,
		"cancel_url":  cancelURL,
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/v1/checkout/sessions", payload, &out); err != nil {
		return nil, err
	}
	if out.ID == "" || out.URL == "" {
		return nil, fmt.Errorf("provider returned incomplete session")
	}

	return &models.CheckoutSession{SessionID: out.ID, URL: out.URL}, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("payment provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("payment provider rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
