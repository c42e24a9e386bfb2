package recon

import (
	"context"
	"errors"
	"testing"

	"github.com/AiMakers-co/smartinvoice-recon/internal/common"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func suggestTransaction(t *testing.T, db service.Storage, match model.TransactionMatch) model.TransactionWithMatch {
	t.Helper()
	seedTransactions(t, db, match.TransactionID)
	require.NoError(t, db.AttachMatch(context.Background(), &match, model.StatusSuggested))

	txn, err := db.GetTransaction(context.Background(), match.TransactionID)
	require.NoError(t, err)
	require.Equal(t, model.StatusSuggested, txn.Status)
	return *txn
}

func TestConfirmerConfirm(t *testing.T) {
	db := newTestStorage(t)
	mock := NewMockMatcher()
	confirmer := NewConfirmer(db, mock)

	match := paymentMatch("txn-1", 88, false)
	rate := decimal.RequireFromString("1.0842")
	match.FX = &model.FXConversion{
		FromCurrency:    "EUR",
		ToCurrency:      "USD",
		Rate:            rate,
		ConvertedAmount: decimal.RequireFromString("130.64"),
	}
	txn := suggestTransaction(t, db, match)

	require.NoError(t, confirmer.Confirm(context.Background(), txn))

	reqs := mock.ConfirmRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "txn-1", reqs[0].TransactionID)
	assert.Equal(t, "inv-txn-1", reqs[0].DocumentID)
	assert.Equal(t, model.DocumentTypeInvoice, reqs[0].DocumentType)
	assert.Equal(t, 88, reqs[0].MatchConfidence)
	assert.Equal(t, "payment_match", reqs[0].MatchMethod)
	require.NotNil(t, reqs[0].FXRate)
	assert.True(t, rate.Equal(*reqs[0].FXRate))

	after, err := db.GetTransaction(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusMatched, after.Status)
}

func TestConfirmerConfirmMatchMethod(t *testing.T) {
	ruleScore := 87

	tests := []struct {
		match model.TransactionMatch
		name  string
		want  string
	}{
		{
			name: "explicit method wins",
			match: model.TransactionMatch{
				MatchMethod: "embedding",
				RuleScore:   &ruleScore,
			},
			want: "embedding",
		},
		{
			name:  "rule score implies rule",
			match: model.TransactionMatch{RuleScore: &ruleScore},
			want:  "rule",
		},
		{
			name:  "falls back to classification",
			match: model.TransactionMatch{Classification: model.ClassificationBankFee},
			want:  "bank_fee",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchMethod(&tt.match))
		})
	}
}

func TestConfirmerConfirmFailureKeepsSuggestion(t *testing.T) {
	db := newTestStorage(t)
	mock := NewMockMatcher()
	mock.SetConfirmError(errors.New("document already reconciled"))
	confirmer := NewConfirmer(db, mock)

	txn := suggestTransaction(t, db, paymentMatch("txn-1", 88, false))

	err := confirmer.Confirm(context.Background(), txn)
	require.Error(t, err)

	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)

	// The suggestion survives the failed confirmation untouched.
	after, getErr := db.GetTransaction(context.Background(), "txn-1")
	require.NoError(t, getErr)
	assert.Equal(t, model.StatusSuggested, after.Status)
	require.NotNil(t, after.Match)
	assert.Equal(t, "inv-txn-1", after.Match.DocumentID)
}

func TestConfirmerConfirmWithoutMatch(t *testing.T) {
	db := newTestStorage(t)
	confirmer := NewConfirmer(db, NewMockMatcher())

	err := confirmer.Confirm(context.Background(), model.TransactionWithMatch{
		Transaction: model.Transaction{ID: "txn-bare"},
	})
	assert.ErrorIs(t, err, common.ErrNoMatchAttached)
}

func TestConfirmerReject(t *testing.T) {
	db := newTestStorage(t)
	mock := NewMockMatcher()
	confirmer := NewConfirmer(db, mock)

	txn := suggestTransaction(t, db, paymentMatch("txn-1", 70, false))

	require.NoError(t, confirmer.Reject(context.Background(), txn.Transaction.ID))

	// Rejection is local only: the matcher is never called.
	assert.Zero(t, mock.CallCount())
	assert.Empty(t, mock.ConfirmRequests())

	after, err := db.GetTransaction(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnmatched, after.Status)
	assert.Nil(t, after.Match)

	// The transaction is available again for the next run.
	ids, err := db.GetUnmatchedTransactionIDs(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, []string{"txn-1"}, ids)
}

func TestConfirmerCategorize(t *testing.T) {
	db := newTestStorage(t)
	mock := NewMockMatcher()
	confirmer := NewConfirmer(db, mock)

	seedTransactions(t, db, "txn-1")

	require.NoError(t, confirmer.Categorize(context.Background(), "txn-1", "Bank Charges"))

	reqs := mock.CategorizeRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "txn-1", reqs[0].TransactionID)
	assert.Equal(t, "Bank Charges", reqs[0].Category)

	after, err := db.GetTransaction(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCategorized, after.Status)
	assert.Equal(t, "Bank Charges", after.Transaction.Category)
}

func TestConfirmerCategorizeFailure(t *testing.T) {
	db := newTestStorage(t)
	mock := NewMockMatcher()
	mock.SetCategorizeError(errors.New("unknown category"))
	confirmer := NewConfirmer(db, mock)

	seedTransactions(t, db, "txn-1")

	err := confirmer.Categorize(context.Background(), "txn-1", "Nonsense")
	require.Error(t, err)

	after, getErr := db.GetTransaction(context.Background(), "txn-1")
	require.NoError(t, getErr)
	assert.Equal(t, model.StatusUnmatched, after.Status)
	assert.Empty(t, after.Transaction.Category)
}
