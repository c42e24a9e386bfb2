// Package recon implements the reconciliation run orchestrator: the batch
// loop driving the remote matcher, the accumulator folding batch results into
// run state, and the optimistic merge of matches into the local transaction
// view.
package recon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/common"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/progress"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
)

// Config holds configuration options for the reconciliation engine.
type Config struct {
	// AutoConfirmThreshold is passed through to the matcher; the matcher is
	// the confirmation authority and the client never re-checks it.
	AutoConfirmThreshold int
	// BatchPause is the politeness delay between batch calls.
	BatchPause time.Duration
	// Linger is how long the progress subscription stays open after the
	// batch loop exits, to catch trailing events.
	Linger time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		AutoConfirmThreshold: 93,
		BatchPause:           300 * time.Millisecond,
		Linger:               3 * time.Second,
	}
}

// EventSink receives user-facing events while a run executes. Implementations
// must not block; they are called from the run goroutine.
type EventSink interface {
	// Transcript receives each newly-visible progress event, in order.
	Transcript(ev model.ProgressEvent)
	// Summary fires once with the run's document counts.
	Summary(transactions, bills, invoices int)
	// BatchDone fires after each batch is accumulated.
	BatchDone(batch, matches int, stats model.RunStats)
	// SuggestionsReady fires when the run has produced at least one
	// unconfirmed payment match, so the caller can surface the suggestions
	// view without manual navigation.
	SuggestionsReady()
	// Notice carries informational messages such as "nothing to do".
	Notice(msg string)
}

// Engine orchestrates reconciliation runs against the remote matcher.
type Engine struct {
	storage  service.Storage
	matcher  service.Matcher
	progress service.ProgressSource
	sink     EventSink
	config   Config
	mu       sync.Mutex
	running  bool
}

// New creates a reconciliation engine with the default configuration.
func New(storage service.Storage, m service.Matcher, source service.ProgressSource, sink EventSink) *Engine {
	return NewWithConfig(storage, m, source, sink, DefaultConfig())
}

// NewWithConfig creates a reconciliation engine with custom configuration.
func NewWithConfig(storage service.Storage, m service.Matcher, source service.ProgressSource, sink EventSink, config Config) *Engine {
	if config.AutoConfirmThreshold == 0 {
		config.AutoConfirmThreshold = DefaultConfig().AutoConfirmThreshold
	}
	return &Engine{
		storage:  storage,
		matcher:  m,
		progress: source,
		sink:     sink,
		config:   config,
	}
}

// NewRunID builds a per-invocation run identifier. A user-scoped prefix plus
// a nanosecond timestamp keeps concurrent runs within one process from
// colliding.
func NewRunID(userID string) string {
	prefix := userID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("recon_%s_%d", prefix, time.Now().UnixNano())
}

// Run drives one reconciliation run to completion. A single matcher call is
// capped by an execution time ceiling, so the run issues bounded batch calls
// in a strictly sequential loop until the matcher reports no more work.
//
// Partial progress is never rolled back: matches accumulated before a failed
// batch stay applied, and re-running recomputes the unmatched set fresh.
func (e *Engine) Run(ctx context.Context, userID string) (*model.ReconciliationRun, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, common.ErrRunInProgress
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	ids, err := e.storage.GetUnmatchedTransactionIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unmatched transactions: %w", err)
	}
	if len(ids) == 0 {
		e.sink.Notice("No unmatched transactions to reconcile")
		return nil, nil
	}

	runID := NewRunID(userID)
	run := &model.ReconciliationRun{
		ID:        runID,
		UserID:    userID,
		StartedAt: time.Now(),
	}

	slog.Info("Starting reconciliation run",
		"run_id", runID,
		"user", userID,
		"unmatched", len(ids))

	// Subscribe before the first batch call so early events are not missed.
	snapshots, unsubscribe, err := e.progress.Subscribe(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to run progress: %w", err)
	}
	defer unsubscribe()

	sub := progress.NewSubscriber(e.sink.Transcript, e.sink.Summary)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for snap := range snapshots {
			sub.Apply(snap)
		}
	}()

	req := service.MatchBatchRequest{
		TransactionIDs:       ids,
		ProgressID:           runID,
		AutoConfirmThreshold: e.config.AutoConfirmThreshold,
	}

	suggestionsAnnounced := false

	for {
		resp, err := e.matcher.MatchBatch(ctx, req)
		if err != nil {
			// Accumulated batches stay applied; the human can simply retry.
			run.CompletedAt = time.Now()
			slog.Error("Batch call failed, stopping run",
				"run_id", runID,
				"batch", run.Batches,
				"error", err)
			return run, common.NewUserError("reconciliation stopped early", err)
		}

		e.accumulate(ctx, run, resp)

		// Announce once per run: the first unconfirmed payment match is what
		// pulls the user toward the suggestions view.
		if !suggestionsAnnounced && hasUnconfirmedPaymentMatch(run.Matches) {
			suggestionsAnnounced = true
			e.sink.SuggestionsReady()
		}

		if !resp.HasMore || resp.Cursor == "" {
			break
		}

		req = service.MatchBatchRequest{
			ProgressID:           runID,
			AutoConfirmThreshold: e.config.AutoConfirmThreshold,
			Cursor:               resp.Cursor,
			BatchNumber:          resp.BatchNumber + 1,
			AccumulatedStats:     &run.Stats,
		}

		select {
		case <-ctx.Done():
			run.CompletedAt = time.Now()
			return run, ctx.Err()
		case <-time.After(e.config.BatchPause):
		}
	}

	run.CompletedAt = time.Now()

	if err := e.storage.SaveRun(ctx, run); err != nil {
		slog.Warn("Failed to save run summary", "run_id", runID, "error", err)
	}

	// Let trailing progress events arrive before releasing the subscription.
	select {
	case <-ctx.Done():
	case <-time.After(e.config.Linger):
	}
	unsubscribe()
	<-drained

	slog.Info("Reconciliation run complete",
		"run_id", runID,
		"batches", run.Batches,
		"matches", len(run.Matches),
		"auto_confirmed", run.Stats.AutoConfirmed,
		"match_rate", run.Stats.MatchRate)

	return run, nil
}

// accumulate folds one batch result into the run and applies its matches to
// the local transaction view, so partial progress is visible before the next
// batch is requested.
func (e *Engine) accumulate(ctx context.Context, run *model.ReconciliationRun, resp *service.MatchBatchResponse) {
	run.Batches++
	run.Matches = append(run.Matches, resp.Matches...)
	// Stats are cumulative as reported by the matcher; replace, never sum.
	run.Stats = resp.Stats
	run.Steps = resp.Steps
	run.PatternsLearned = append(run.PatternsLearned, resp.PatternsLearned...)
	run.ProcessingTime += time.Duration(resp.ProcessingTimeMs) * time.Millisecond
	if resp.Model != "" {
		run.Model = resp.Model
	}

	for i := range resp.Matches {
		m := resp.Matches[i]

		if err := m.Validate(); err != nil {
			slog.Warn("Skipping malformed match", "error", err)
			continue
		}

		status := model.StatusUnmatched
		switch {
		case m.AutoConfirmed:
			status = model.StatusMatched
		case m.Suggestible():
			status = model.StatusSuggested
		}

		if err := e.storage.AttachMatch(ctx, &m, status); err != nil {
			slog.Warn("Failed to apply match",
				"transaction_id", m.TransactionID,
				"error", err)
		}
	}

	e.sink.BatchDone(run.Batches, len(resp.Matches), run.Stats)
}

// hasUnconfirmedPaymentMatch reports whether any accumulated match is a
// payment match still awaiting human confirmation. Needs-review and fee
// classifications do not count.
func hasUnconfirmedPaymentMatch(matches []model.TransactionMatch) bool {
	for i := range matches {
		if matches[i].Classification == model.ClassificationPaymentMatch && !matches[i].AutoConfirmed {
			return true
		}
	}
	return false
}
