// Package smsapi is a thin client for the SMSAPI message gateway.
package smsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/pkg/config"
)

// Client sends single messages through the SMSAPI HTTP endpoint. The
// bearer token is supplied per call because each user may carry their
// own credentials.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// New constructs a Client with sane timeouts.
func New(cfg config.SMSConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type sendResponse struct {
	Count int `json:"count"`
	List  []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"list"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// Send delivers one message and returns the provider message id.
func (c *Client) Send(ctx context.Context, token, sender, phone, message string) (string, error) {
	form := url.Values{}
	form.Set("to", phone)
	form.Set("message", message)
	form.Set("format", "json")
	form.Set("encoding", "utf-8")
	if sender != "" {
		form.Set("from", sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sms.do", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read sms response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode sms response: %w", err)
	}
	if parsed.Error != 0 {
		return "", fmt.Errorf("sms gateway error %d: %s", parsed.Error, parsed.Message)
	}
	if len(parsed.List) == 0 {
		return "", fmt.Errorf("sms gateway accepted nothing")
	}

	return parsed.List[0].ID, nil
}
