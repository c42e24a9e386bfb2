// Package progress delivers live reconciliation progress for a run. The
// remote matcher appends events to a per-run progress record as a side
// effect of processing; this package watches that record and hands growing
// snapshots to the orchestrator.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/common"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
)

// PollerConfig holds connection settings for the progress record store.
type PollerConfig struct {
	BaseURL  string
	APIKey   string
	Interval time.Duration
}

// Poller implements service.ProgressSource by polling the progress-record
// document endpoint. At-least-once snapshot delivery with repeats is fine:
// the subscriber diffs by length.
type Poller struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	interval   time.Duration
}

// NewPoller creates a progress poller.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: progress base URL is required", common.ErrMissingConfig)
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = 2 * time.Second
	}

	return &Poller{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		interval: interval,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Subscribe starts polling the progress record for runID. The returned
// channel closes when the subscription ends; the cancel function releases it
// and is safe to call more than once.
func (p *Poller) Subscribe(ctx context.Context, runID string) (<-chan model.ProgressSnapshot, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan model.ProgressSnapshot, 16)

	go p.poll(subCtx, runID, ch)

	return ch, cancel, nil
}

func (p *Poller) poll(ctx context.Context, runID string, ch chan<- model.ProgressSnapshot) {
	defer close(ch)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := p.fetch(ctx, runID)
		if err != nil {
			slog.Debug("Progress poll failed", "run_id", runID, "error", err)
			continue
		}
		if snap == nil {
			// Record not created yet; the matcher writes it lazily.
			continue
		}

		select {
		case ch <- *snap:
		case <-ctx.Done():
			return
		}
	}
}

// fetch reads the progress record once. A missing record is not an error.
func (p *Poller) fetch(ctx context.Context, runID string) (*model.ProgressSnapshot, error) {
	var snap *model.ProgressSnapshot

	err := common.WithRetry(ctx, func() error {
		s, fetchErr := p.fetchOnce(ctx, runID)
		if fetchErr != nil {
			return &common.RetryableError{Err: fetchErr, Retryable: common.IsRetryable(fetchErr)}
		}
		snap = s
		return nil
	}, service.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     time.Second,
	})

	return snap, err
}

func (p *Poller) fetchOnce(ctx context.Context, runID string) (*model.ProgressSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/progress/"+runID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMatcherUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("progress record returned status %d: %s", resp.StatusCode, string(body))
	}

	var snap model.ProgressSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse progress record: %w", err)
	}
	if snap.RunID == "" {
		snap.RunID = runID
	}

	return &snap, nil
}
