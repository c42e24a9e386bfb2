package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/common"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	db, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testTransaction(id string, date time.Time) model.Transaction {
	return model.Transaction{
		ID:           id,
		UserID:       "user-1",
		Date:         date,
		Description:  "WIRE TRANSFER " + id,
		Counterparty: "Globex GmbH",
		AccountID:    "acc-1",
		Amount:       -250.00,
		Currency:     "EUR",
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	var version int
	require.NoError(t, db.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestNewSQLiteStorageCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "recon.db")
	db, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, db.Migrate(context.Background()))
}

func TestSaveTransactionsDeduplicates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	first := testTransaction("txn-1", date)
	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{first}))

	// Same content under a different ID hashes identically and is skipped.
	dup := testTransaction("txn-1-reimport", date)
	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{dup}))

	txns, err := db.GetTransactions(ctx, service.TransactionFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "txn-1", txns[0].Transaction.ID)
	assert.Equal(t, model.StatusUnmatched, txns[0].Status)
	assert.NotEmpty(t, txns[0].Transaction.Hash)
}

func TestSaveTransactionsValidation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name string
		txns []model.Transaction
	}{
		{name: "nil slice", txns: nil},
		{name: "empty slice", txns: []model.Transaction{}},
		{name: "missing ID", txns: []model.Transaction{{UserID: "user-1", Date: time.Now()}}},
		{name: "missing user", txns: []model.Transaction{{ID: "txn-1", Date: time.Now()}}},
		{name: "missing date", txns: []model.Transaction{{ID: "txn-1", UserID: "user-1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, db.SaveTransactions(ctx, tt.txns))
		})
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetTransactionsFilterAndLimit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var txns []model.Transaction
	for i := 0; i < 5; i++ {
		txn := testTransaction(string(rune('a'+i)), base.AddDate(0, 0, i))
		txn.Amount = -100 - float64(i)
		txns = append(txns, txn)
	}
	require.NoError(t, db.SaveTransactions(ctx, txns))
	require.NoError(t, db.UpdateStatus(ctx, "a", model.StatusMatched))
	require.NoError(t, db.UpdateStatus(ctx, "b", model.StatusMatched))

	matched := model.StatusMatched
	got, err := db.GetTransactions(ctx, service.TransactionFilter{UserID: "user-1", Status: &matched})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	limited, err := db.GetTransactions(ctx, service.TransactionFilter{UserID: "user-1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, limited, 3)
	// Newest first.
	assert.Equal(t, "e", limited[0].Transaction.ID)

	// Other users see nothing.
	other, err := db.GetTransactions(ctx, service.TransactionFilter{UserID: "user-2"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGetUnmatchedTransactionIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{
		testTransaction("old", base),
		testTransaction("new", base.AddDate(0, 0, 10)),
		testTransaction("mid", base.AddDate(0, 0, 5)),
	}))
	require.NoError(t, db.UpdateStatus(ctx, "mid", model.StatusCategorized))

	ids, err := db.GetUnmatchedTransactionIDs(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)
}

func TestAttachMatchRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{
		testTransaction("txn-1", time.Now()),
	}))

	match := &model.TransactionMatch{
		TransactionID:  "txn-1",
		Classification: model.ClassificationPaymentMatch,
		DocumentID:     "inv-42",
		DocumentType:   model.DocumentTypeInvoice,
		Counterparty:   "Globex GmbH",
		Confidence:     87,
		Reasoning:      []string{"amount matches after FX conversion"},
		FX: &model.FXConversion{
			FromCurrency:    "EUR",
			ToCurrency:      "USD",
			Rate:            decimal.RequireFromString("1.0842"),
			ConvertedAmount: decimal.RequireFromString("271.05"),
		},
	}
	require.NoError(t, db.AttachMatch(ctx, match, model.StatusSuggested))

	got, err := db.GetTransaction(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuggested, got.Status)
	require.NotNil(t, got.Match)
	assert.Equal(t, "inv-42", got.Match.DocumentID)
	assert.Equal(t, 87, got.Match.Confidence)
	require.NotNil(t, got.Match.FX)
	assert.True(t, match.FX.Rate.Equal(got.Match.FX.Rate))

	// Unknown transaction is an error, not a silent no-op.
	missing := &model.TransactionMatch{TransactionID: "missing", Classification: model.ClassificationBankFee}
	assert.ErrorIs(t, db.AttachMatch(ctx, missing, model.StatusSuggested), common.ErrNotFound)
}

func TestDetachMatch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{
		testTransaction("txn-1", time.Now()),
	}))
	match := &model.TransactionMatch{
		TransactionID:  "txn-1",
		Classification: model.ClassificationPaymentMatch,
		Confidence:     70,
	}
	require.NoError(t, db.AttachMatch(ctx, match, model.StatusSuggested))

	require.NoError(t, db.DetachMatch(ctx, "txn-1"))

	got, err := db.GetTransaction(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnmatched, got.Status)
	assert.Nil(t, got.Match)
}

func TestUpdateCategory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{
		testTransaction("txn-1", time.Now()),
	}))
	require.NoError(t, db.UpdateCategory(ctx, "txn-1", "Bank Charges"))

	got, err := db.GetTransaction(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCategorized, got.Status)
	assert.Equal(t, "Bank Charges", got.Transaction.Category)

	assert.ErrorIs(t, db.UpdateCategory(ctx, "missing", "Bank Charges"), common.ErrNotFound)
}

func TestDocumentsUpsertAndQuery(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	issued := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	docs := []model.Document{
		{
			ID:           "inv-1",
			UserID:       "user-1",
			Type:         model.DocumentTypeInvoice,
			Number:       "INV-0001",
			Counterparty: "Initech LLC",
			Currency:     "USD",
			Status:       "open",
			Amount:       1500.00,
			IssuedAt:     issued,
			DueAt:        issued.AddDate(0, 1, 0),
		},
		{
			ID:       "bill-1",
			UserID:   "user-1",
			Type:     model.DocumentTypeBill,
			Number:   "B-77",
			Amount:   320.00,
			IssuedAt: issued.AddDate(0, 0, 5),
		},
	}
	require.NoError(t, db.SaveDocuments(ctx, docs))

	invoices, err := db.GetDocuments(ctx, "user-1", model.DocumentTypeInvoice, 0)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "INV-0001", invoices[0].Number)

	all, err := db.GetDocuments(ctx, "user-1", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Re-import refreshes mutable fields.
	docs[0].Status = "paid"
	docs[0].Amount = 1500.00
	require.NoError(t, db.SaveDocuments(ctx, docs[:1]))

	got, err := db.GetDocument(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "paid", got.Status)

	_, err = db.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRunsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	run := &model.ReconciliationRun{
		ID:        "recon_user-1_1",
		UserID:    "user-1",
		Model:     "matcher-v2",
		StartedAt: started,
		Matches: []model.TransactionMatch{
			{
				TransactionID:  "txn-1",
				Classification: model.ClassificationPaymentMatch,
				Confidence:     95,
				AutoConfirmed:  true,
			},
		},
		Steps: []model.StepSummary{
			{Name: "load_documents", Status: "complete", ItemCount: 12, ElapsedMs: 410},
		},
		PatternsLearned: []string{"Globex wires settle in EUR"},
		Stats:           model.RunStats{TotalProcessed: 1, PaymentMatches: 1, AutoConfirmed: 1, MatchRate: 100},
		ProcessingTime:  2300 * time.Millisecond,
		Batches:         1,
	}
	run.CompletedAt = started.Add(3 * time.Second)
	require.NoError(t, db.SaveRun(ctx, run))

	// A later run sorts first.
	second := &model.ReconciliationRun{
		ID:        "recon_user-1_2",
		UserID:    "user-1",
		StartedAt: started.Add(time.Hour),
	}
	require.NoError(t, db.SaveRun(ctx, second))

	runs, err := db.GetRuns(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "recon_user-1_2", runs[0].ID)

	got := runs[1]
	assert.Equal(t, "matcher-v2", got.Model)
	require.Len(t, got.Matches, 1)
	assert.True(t, got.Matches[0].AutoConfirmed)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "load_documents", got.Steps[0].Name)
	assert.Equal(t, []string{"Globex wires settle in EUR"}, got.PatternsLearned)
	assert.Equal(t, 1, got.Stats.TotalProcessed)
	assert.Equal(t, 2300*time.Millisecond, got.ProcessingTime)
	assert.Equal(t, 1, got.Batches)

	limited, err := db.GetRuns(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
