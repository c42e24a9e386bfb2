package recon

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/common"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
	"github.com/AiMakers-co/smartinvoice-recon/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "user-1234"

func testConfig() Config {
	return Config{
		AutoConfirmThreshold: 93,
		BatchPause:           time.Millisecond,
		Linger:               time.Millisecond,
	}
}

func newTestStorage(t *testing.T) service.Storage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedTransactions(t *testing.T, db service.Storage, ids ...string) {
	t.Helper()
	txns := make([]model.Transaction, len(ids))
	for i, id := range ids {
		txns[i] = model.Transaction{
			ID:           id,
			UserID:       testUser,
			Date:         time.Now().AddDate(0, 0, -i),
			Description:  "ACME CORP PAYMENT " + id,
			Counterparty: "Acme Corp",
			AccountID:    "acc-1",
			Amount:       -120.50,
			Currency:     "USD",
		}
	}
	require.NoError(t, db.SaveTransactions(context.Background(), txns))
}

func paymentMatch(txnID string, confidence int, autoConfirmed bool) model.TransactionMatch {
	return model.TransactionMatch{
		TransactionID:  txnID,
		Classification: model.ClassificationPaymentMatch,
		DocumentID:     "inv-" + txnID,
		DocumentType:   model.DocumentTypeInvoice,
		Confidence:     confidence,
		Reasoning:      []string{"amount matches invoice exactly", "counterparty name similarity 0.94"},
		AutoConfirmed:  autoConfirmed,
	}
}

func TestEngineRunNothingToDo(t *testing.T) {
	db := newTestStorage(t)
	mock := NewMockMatcher()
	source := NewMockProgressSource()
	sink := NewRecordingSink()

	engine := NewWithConfig(db, mock, source, sink, testConfig())

	run, err := engine.Run(context.Background(), testUser)
	require.NoError(t, err)
	assert.Nil(t, run)

	// No run record, no remote calls, no subscription.
	assert.Zero(t, mock.CallCount())
	assert.Empty(t, source.Subscriptions())
	require.Len(t, sink.Notices, 1)
	assert.Contains(t, sink.Notices[0], "No unmatched transactions")
}

func TestEngineRunSingleBatch(t *testing.T) {
	db := newTestStorage(t)
	seedTransactions(t, db, "txn-1", "txn-2", "txn-3")

	needsReview := model.TransactionMatch{
		TransactionID:  "txn-3",
		Classification: model.ClassificationNeedsReview,
		Confidence:     40,
		Reasoning:      []string{"two candidate bills share this amount"},
	}

	mock := NewMockMatcher()
	mock.QueueBatch(&service.MatchBatchResponse{
		Matches: []model.TransactionMatch{
			paymentMatch("txn-1", 96, true),
			paymentMatch("txn-2", 98, true),
			needsReview,
		},
		Stats: model.RunStats{TotalProcessed: 3, PaymentMatches: 2, NeedsReview: 1, AutoConfirmed: 2, MatchRate: 66.7},
		Model: "matcher-v2",
	})

	source := NewMockProgressSource()
	sink := NewRecordingSink()
	engine := NewWithConfig(db, mock, source, sink, testConfig())

	run, err := engine.Run(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, run)

	// hasMore=false on batch 0 means exactly one remote call.
	assert.Equal(t, 1, mock.CallCount())
	assert.Equal(t, 1, run.Batches)
	assert.Len(t, run.Matches, 3)
	assert.Equal(t, 2, run.Stats.AutoConfirmed)
	assert.Equal(t, "matcher-v2", run.Model)

	// Auto-confirmed matches are already matched; needs-review is suggested.
	for id, want := range map[string]model.ReconciliationStatus{
		"txn-1": model.StatusMatched,
		"txn-2": model.StatusMatched,
		"txn-3": model.StatusSuggested,
	} {
		txn, getErr := db.GetTransaction(context.Background(), id)
		require.NoError(t, getErr)
		assert.Equal(t, want, txn.Status, "transaction %s", id)
		require.NotNil(t, txn.Match)
	}

	// Needs-review is not a payment match, so the suggestions view does not
	// auto-switch.
	assert.Zero(t, sink.SuggestionsFired)

	// The run summary was persisted.
	runs, err := db.GetRuns(context.Background(), testUser, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	// The progress subscription was opened for this run's ID.
	require.Len(t, source.Subscriptions(), 1)
	assert.Equal(t, run.ID, source.Subscriptions()[0])
}

func TestEngineRunMultiBatchCursorProtocol(t *testing.T) {
	db := newTestStorage(t)
	seedTransactions(t, db, "txn-1", "txn-2", "txn-3", "txn-4")

	mock := NewMockMatcher()
	mock.QueueBatch(&service.MatchBatchResponse{
		Matches:     []model.TransactionMatch{paymentMatch("txn-1", 95, true), paymentMatch("txn-2", 97, true)},
		Stats:       model.RunStats{TotalProcessed: 2, PaymentMatches: 2, AutoConfirmed: 2},
		HasMore:     true,
		Cursor:      "cursor-a",
		BatchNumber: 0,
	})
	mock.QueueBatch(&service.MatchBatchResponse{
		Matches:     []model.TransactionMatch{paymentMatch("txn-3", 94, true)},
		Stats:       model.RunStats{TotalProcessed: 3, PaymentMatches: 3, AutoConfirmed: 3},
		HasMore:     true,
		Cursor:      "cursor-b",
		BatchNumber: 1,
	})
	mock.QueueBatch(&service.MatchBatchResponse{
		Matches: []model.TransactionMatch{paymentMatch("txn-4", 96, true)},
		Stats:   model.RunStats{TotalProcessed: 4, PaymentMatches: 4, AutoConfirmed: 4},
	})

	// A transaction auto-confirmed in batch 0 must be matched before batch 1
	// is even requested: partial progress never waits for run completion.
	mock.OnBatch(func(call int) {
		if call == 1 {
			txn, err := db.GetTransaction(context.Background(), "txn-1")
			require.NoError(t, err)
			assert.Equal(t, model.StatusMatched, txn.Status)
		}
	})

	sink := NewRecordingSink()
	engine := NewWithConfig(db, mock, NewMockProgressSource(), sink, testConfig())

	run, err := engine.Run(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, run)

	reqs := mock.BatchRequests()
	require.Len(t, reqs, 3)

	// First call carries the full ID set and no cursor.
	assert.Len(t, reqs[0].TransactionIDs, 4)
	assert.Empty(t, reqs[0].Cursor)
	assert.Zero(t, reqs[0].BatchNumber)
	assert.Nil(t, reqs[0].AccumulatedStats)

	// Continuation calls omit IDs and carry the preceding response's cursor,
	// its batch number incremented, and the accumulated stats.
	assert.Empty(t, reqs[1].TransactionIDs)
	assert.Equal(t, "cursor-a", reqs[1].Cursor)
	assert.Equal(t, 1, reqs[1].BatchNumber)
	require.NotNil(t, reqs[1].AccumulatedStats)
	assert.Equal(t, 2, reqs[1].AccumulatedStats.TotalProcessed)

	assert.Equal(t, "cursor-b", reqs[2].Cursor)
	assert.Equal(t, 2, reqs[2].BatchNumber)

	// All requests share the run's progress ID and threshold.
	for _, req := range reqs {
		assert.Equal(t, run.ID, req.ProgressID)
		assert.Equal(t, 93, req.AutoConfirmThreshold)
	}

	// Accumulated match list is the concatenation of every batch.
	assert.Len(t, run.Matches, 4)
	assert.Equal(t, 3, run.Batches)

	// Stats reflect the latest batch, not a client-side sum.
	assert.Equal(t, 4, run.Stats.TotalProcessed)
	require.Len(t, sink.BatchStats, 3)
	assert.Equal(t, 2, sink.BatchStats[0].TotalProcessed)
	assert.Equal(t, 4, sink.BatchStats[2].TotalProcessed)
}

func TestEngineRunBatchFailureKeepsPartialProgress(t *testing.T) {
	db := newTestStorage(t)
	seedTransactions(t, db, "txn-1", "txn-2")

	mock := NewMockMatcher()
	mock.QueueBatch(&service.MatchBatchResponse{
		Matches: []model.TransactionMatch{paymentMatch("txn-1", 95, true)},
		Stats:   model.RunStats{TotalProcessed: 1, PaymentMatches: 1, AutoConfirmed: 1},
		HasMore: true,
		Cursor:  "cursor-a",
	})
	mock.QueueBatchError(errors.New("deadline exceeded"))

	sink := NewRecordingSink()
	engine := NewWithConfig(db, mock, NewMockProgressSource(), sink, testConfig())

	run, err := engine.Run(context.Background(), testUser)
	require.Error(t, err)

	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.UserMessage, "stopped early")

	// Batch 0's matches stay applied; nothing is rolled back.
	require.NotNil(t, run)
	assert.Len(t, run.Matches, 1)

	txn, err := db.GetTransaction(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusMatched, txn.Status)

	// txn-2 was never matched and remains available for a retry run.
	ids, err := db.GetUnmatchedTransactionIDs(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, []string{"txn-2"}, ids)
}

func TestEngineRunSwitchesToSuggestions(t *testing.T) {
	db := newTestStorage(t)
	seedTransactions(t, db, "txn-1")

	mock := NewMockMatcher()
	mock.QueueBatch(&service.MatchBatchResponse{
		Matches: []model.TransactionMatch{paymentMatch("txn-1", 78, false)},
		Stats:   model.RunStats{TotalProcessed: 1, PaymentMatches: 1},
	})

	sink := NewRecordingSink()
	engine := NewWithConfig(db, mock, NewMockProgressSource(), sink, testConfig())

	_, err := engine.Run(context.Background(), testUser)
	require.NoError(t, err)

	// An unconfirmed payment match switches the view to suggestions.
	assert.Equal(t, 1, sink.SuggestionsFired)

	txn, err := db.GetTransaction(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuggested, txn.Status)
	require.NotNil(t, txn.Match)
	assert.Equal(t, 78, txn.Match.Confidence)
}

func TestEngineRunHighConfidenceTrustedAsIs(t *testing.T) {
	db := newTestStorage(t)
	seedTransactions(t, db, "txn-1")

	// The matcher is the confirmation authority: the client applies
	// autoConfirmed without re-checking the threshold.
	mock := NewMockMatcher()
	mock.QueueBatch(&service.MatchBatchResponse{
		Matches: []model.TransactionMatch{paymentMatch("txn-1", 95, true)},
		Stats:   model.RunStats{TotalProcessed: 1, PaymentMatches: 1, AutoConfirmed: 1},
	})

	sink := NewRecordingSink()
	engine := NewWithConfig(db, mock, NewMockProgressSource(), sink, testConfig())

	_, err := engine.Run(context.Background(), testUser)
	require.NoError(t, err)

	txn, err := db.GetTransaction(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusMatched, txn.Status)
}

func TestEngineRunRendersTranscript(t *testing.T) {
	db := newTestStorage(t)
	seedTransactions(t, db, "txn-1")

	mock := NewMockMatcher()
	mock.QueueBatch(&service.MatchBatchResponse{
		Matches: []model.TransactionMatch{paymentMatch("txn-1", 95, true)},
		Stats:   model.RunStats{TotalProcessed: 1, AutoConfirmed: 1},
	})

	source := NewMockProgressSource()
	now := time.Now()
	source.QueueSnapshot(model.ProgressSnapshot{
		TotalTransactions: 1,
		TotalBills:        4,
		TotalInvoices:     9,
		Events: []model.ProgressEvent{
			{Timestamp: now, Category: model.EventStep, Message: "loading documents"},
		},
	})
	source.QueueSnapshot(model.ProgressSnapshot{
		TotalTransactions: 1,
		TotalBills:        4,
		TotalInvoices:     9,
		Events: []model.ProgressEvent{
			{Timestamp: now, Category: model.EventStep, Message: "loading documents"},
			{Timestamp: now, Category: model.EventMatch, Message: "matched txn-1 to INV-9"},
		},
	})

	sink := NewRecordingSink()
	engine := NewWithConfig(db, mock, source, sink, testConfig())

	_, err := engine.Run(context.Background(), testUser)
	require.NoError(t, err)

	// Overlapping snapshots render each event exactly once.
	assert.Equal(t, []string{"loading documents", "matched txn-1 to INV-9"}, sink.TranscriptMessages())
	assert.Equal(t, 1, sink.SummaryTxns)
	assert.Equal(t, 4, sink.SummaryBills)
	assert.Equal(t, 9, sink.SummaryInvoices)
}

func TestEngineRejectsConcurrentRuns(t *testing.T) {
	db := newTestStorage(t)
	seedTransactions(t, db, "txn-1")

	entered := make(chan struct{})
	release := make(chan struct{})

	mock := NewMockMatcher()
	mock.QueueBatch(&service.MatchBatchResponse{
		Stats: model.RunStats{TotalProcessed: 1},
	})
	mock.OnBatch(func(int) {
		close(entered)
		<-release
	})

	engine := NewWithConfig(db, mock, NewMockProgressSource(), NewRecordingSink(), testConfig())

	done := make(chan error, 1)
	go func() {
		_, err := engine.Run(context.Background(), testUser)
		done <- err
	}()

	<-entered
	_, err := engine.Run(context.Background(), testUser)
	assert.ErrorIs(t, err, common.ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestNewRunID(t *testing.T) {
	id1 := NewRunID("user-123456")
	id2 := NewRunID("user-123456")

	assert.True(t, strings.HasPrefix(id1, "recon_user-123_"), "got %s", id1)
	assert.NotEqual(t, id1, id2, "run IDs must not collide within a process")

	short := NewRunID("ab")
	assert.True(t, strings.HasPrefix(short, "recon_ab_"), "got %s", short)
}
