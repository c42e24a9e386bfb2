// Package matcher provides the HTTP client for the remote reconciliation
// matcher service. The matching algorithm runs entirely server-side; this
// client only ships work out and results back.
package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/common"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
)

// Callable endpoint names, mirroring the backend's exported functions.
const (
	endpointReconcile  = "reconcileTransactions"
	endpointConfirm    = "confirmMatch"
	endpointCategorize = "categorizeTransaction"
)

// Config holds connection settings for the matcher service.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout is the per-call ceiling. Batch calls legitimately run for
	// minutes, so the default is generous.
	Timeout time.Duration
}

// Client calls the matcher's callable endpoints over HTTP JSON.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New creates a matcher client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: matcher base URL is required", common.ErrMissingConfig)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// MatchBatch runs one bounded unit of matching work.
func (c *Client) MatchBatch(ctx context.Context, req service.MatchBatchRequest) (*service.MatchBatchResponse, error) {
	var resp service.MatchBatchResponse
	if err := c.post(ctx, endpointReconcile, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConfirmMatch persists a human-approved match server-side.
func (c *Client) ConfirmMatch(ctx context.Context, req service.ConfirmMatchRequest) error {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, endpointConfirm, req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("confirm match for transaction %s was not accepted", req.TransactionID)
	}
	return nil
}

// Categorize assigns a category to a transaction server-side.
func (c *Client) Categorize(ctx context.Context, req service.CategorizeRequest) error {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, endpointCategorize, req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("categorize for transaction %s was not accepted", req.TransactionID)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	jsonBody, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrMatcherUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", common.ErrRateLimit, endpoint)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s returned status %d: %s", common.ErrMatcherUnavailable, endpoint, resp.StatusCode, string(body))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", endpoint, err)
	}

	return nil
}
