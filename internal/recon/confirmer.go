package recon

import (
	"context"
	"fmt"

	"github.com/AiMakers-co/smartinvoice-recon/internal/common"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
)

// Confirmer applies human decisions to suggested matches. Each transaction
// moves unmatched -> suggested -> matched, with rejection dropping it back
// to unmatched.
type Confirmer struct {
	storage service.Storage
	matcher service.Matcher
}

// NewConfirmer creates a confirmer.
func NewConfirmer(storage service.Storage, m service.Matcher) *Confirmer {
	return &Confirmer{
		storage: storage,
		matcher: m,
	}
}

// Confirm promotes a suggested match to matched. The remote call persists
// the match server-side; on success the local view transitions immediately
// rather than waiting for a fresh read. On failure the transaction stays
// suggested and keeps its match; no retry is automatic.
func (c *Confirmer) Confirm(ctx context.Context, txn model.TransactionWithMatch) error {
	if txn.Match == nil {
		return common.ErrNoMatchAttached
	}

	req := service.ConfirmMatchRequest{
		TransactionID:   txn.Transaction.ID,
		DocumentID:      txn.Match.DocumentID,
		DocumentType:    txn.Match.DocumentType,
		MatchConfidence: txn.Match.Confidence,
		MatchMethod:     matchMethod(txn.Match),
	}
	if txn.Match.FX != nil {
		rate := txn.Match.FX.Rate
		req.FXRate = &rate
	}

	if err := c.matcher.ConfirmMatch(ctx, req); err != nil {
		return common.NewUserError("failed to confirm match", err)
	}

	if err := c.storage.UpdateStatus(ctx, txn.Transaction.ID, model.StatusMatched); err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	return nil
}

// Reject discards a suggested match locally and returns the transaction to
// unmatched. The remote side is never told; the suggestion resurfaces the
// next time matches are loaded fresh.
func (c *Confirmer) Reject(ctx context.Context, transactionID string) error {
	return c.storage.DetachMatch(ctx, transactionID)
}

// Categorize assigns a category to a transaction instead of matching it to a
// document.
func (c *Confirmer) Categorize(ctx context.Context, transactionID, category string) error {
	if err := c.matcher.Categorize(ctx, service.CategorizeRequest{
		TransactionID: transactionID,
		Category:      category,
	}); err != nil {
		return common.NewUserError("failed to categorize transaction", err)
	}

	if err := c.storage.UpdateCategory(ctx, transactionID, category); err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}

	return nil
}

// matchMethod derives the method tag sent with a confirmation. The matcher's
// own tag wins when present.
func matchMethod(m *model.TransactionMatch) string {
	if m.MatchMethod != "" {
		return m.MatchMethod
	}
	if m.RuleScore != nil {
		return "rule"
	}
	return string(m.Classification)
}
