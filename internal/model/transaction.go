package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// ReconciliationStatus tracks where a transaction sits in the reconciliation
// lifecycle.
type ReconciliationStatus string

// Reconciliation status constants.
const (
	StatusUnmatched   ReconciliationStatus = "UNMATCHED"
	StatusSuggested   ReconciliationStatus = "SUGGESTED"
	StatusMatched     ReconciliationStatus = "MATCHED"
	StatusCategorized ReconciliationStatus = "CATEGORIZED"
)

// Transaction represents a single bank transaction from any source.
type Transaction struct {
	Date         time.Time
	ID           string
	UserID       string
	Description  string // Raw statement description
	Counterparty string // Cleaned counterparty name
	AccountID    string
	Hash         string
	Currency     string
	Amount       float64

	// Optional metadata that may be available depending on source
	Category    string // User-assigned category, set by the categorize action
	Type        string // Transaction type (e.g., DEBIT, CREDIT, CHECK, XFER)
	CheckNumber string // Check number if applicable
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Counterparty,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// TransactionWithMatch pairs a persisted transaction with its current match
// proposal, if any, and its reconciliation status.
type TransactionWithMatch struct {
	Match       *TransactionMatch
	Transaction Transaction
	Status      ReconciliationStatus
}
