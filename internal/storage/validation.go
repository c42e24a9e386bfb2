// Package storage provides the data persistence layer for the recon application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrInvalidStatus      = errors.New("invalid reconciliation status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateStatus ensures a status is one of the known lifecycle states.
func validateStatus(status model.ReconciliationStatus) error {
	switch status {
	case model.StatusUnmatched, model.StatusSuggested, model.StatusMatched, model.StatusCategorized:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i, txn := range transactions {
		if err := validateTransaction(&txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	return nil
}

// validateDocuments validates a slice of documents.
func validateDocuments(documents []model.Document) error {
	if documents == nil {
		return fmt.Errorf("%w: documents", ErrNilParameter)
	}
	if len(documents) == 0 {
		return fmt.Errorf("%w: documents", ErrEmptySlice)
	}

	for i, doc := range documents {
		if doc.ID == "" {
			return fmt.Errorf("document at index %d: %w: missing ID", i, ErrInvalidDocument)
		}
		if doc.UserID == "" {
			return fmt.Errorf("document at index %d: %w: missing user ID", i, ErrInvalidDocument)
		}
	}
	return nil
}
