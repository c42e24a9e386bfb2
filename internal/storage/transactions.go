package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AiMakers-co/smartinvoice-recon/internal/common"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
)

const transactionColumns = `id, user_id, hash, date, description, counterparty,
	account_id, amount, currency, category, transaction_type, check_number,
	status, match_json`

// SaveTransactions saves multiple transactions to the database. Duplicates
// (same content hash) are silently skipped.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, user_id, hash, date, description, counterparty,
			account_id, amount, currency, category, transaction_type, check_number
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	saved := 0
	for _, txn := range transactions {
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}
		if txn.Currency == "" {
			txn.Currency = "USD"
		}

		result, execErr := stmt.ExecContext(ctx,
			txn.ID,
			txn.UserID,
			txn.Hash,
			txn.Date,
			txn.Description,
			txn.Counterparty,
			txn.AccountID,
			txn.Amount,
			txn.Currency,
			txn.Category,
			txn.Type,
			txn.CheckNumber,
		)
		if execErr != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, execErr)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			saved++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}

	slog.Debug("Saved transactions",
		"total", len(transactions),
		"saved", saved,
		"duplicates", len(transactions)-saved)
	return nil
}

// GetTransaction retrieves a single transaction with its current match.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.TransactionWithMatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE id = ?
	`, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactions retrieves transactions matching the filter, newest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.TransactionWithMatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(filter.UserID, "userID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`
	args := []any{filter.UserID}

	if filter.Status != nil {
		if err := validateStatus(*filter.Status); err != nil {
			return nil, err
		}
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY date DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.TransactionWithMatch
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		results = append(results, *txn)
	}
	return results, rows.Err()
}

// GetUnmatchedTransactionIDs returns the IDs of a user's unmatched
// transactions, newest first. This is the work set for a reconciliation run.
func (s *SQLiteStorage) GetUnmatchedTransactionIDs(ctx context.Context, userID string) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM transactions
		WHERE user_id = ? AND status = ?
		ORDER BY date DESC
	`, userID, string(model.StatusUnmatched))
	if err != nil {
		return nil, fmt.Errorf("failed to query unmatched transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction ID: %w", scanErr)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AttachMatch stores a match proposal against its transaction and moves the
// transaction to the given status.
func (s *SQLiteStorage) AttachMatch(ctx context.Context, match *model.TransactionMatch, status model.ReconciliationStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if match == nil {
		return fmt.Errorf("%w: match", ErrNilParameter)
	}
	if err := validateString(match.TransactionID, "match.TransactionID"); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}

	matchJSON, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("failed to marshal match: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET match_json = ?, status = ? WHERE id = ?
	`, string(matchJSON), string(status), match.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to attach match: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", match.TransactionID, common.ErrNotFound)
	}
	return nil
}

// DetachMatch discards a transaction's match proposal and returns it to
// unmatched.
func (s *SQLiteStorage) DetachMatch(ctx context.Context, transactionID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET match_json = NULL, status = ? WHERE id = ?
	`, string(model.StatusUnmatched), transactionID)
	if err != nil {
		return fmt.Errorf("failed to detach match: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	return nil
}

// UpdateStatus moves a transaction to a new reconciliation status.
func (s *SQLiteStorage) UpdateStatus(ctx context.Context, transactionID string, status model.ReconciliationStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = ? WHERE id = ?
	`, string(status), transactionID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	return nil
}

// UpdateCategory assigns a category to a transaction and marks it
// categorized.
func (s *SQLiteStorage) UpdateCategory(ctx context.Context, transactionID, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET category = ?, status = ? WHERE id = ?
	`, category, string(model.StatusCategorized), transactionID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*model.TransactionWithMatch, error) {
	var (
		txn       model.Transaction
		status    string
		matchJSON sql.NullString
		counterpty,
		accountID,
		category,
		txnType,
		checkNumber sql.NullString
	)

	err := row.Scan(
		&txn.ID,
		&txn.UserID,
		&txn.Hash,
		&txn.Date,
		&txn.Description,
		&counterpty,
		&accountID,
		&txn.Amount,
		&txn.Currency,
		&category,
		&txnType,
		&checkNumber,
		&status,
		&matchJSON,
	)
	if err != nil {
		return nil, err
	}

	txn.Counterparty = counterpty.String
	txn.AccountID = accountID.String
	txn.Category = category.String
	txn.Type = txnType.String
	txn.CheckNumber = checkNumber.String

	result := &model.TransactionWithMatch{
		Transaction: txn,
		Status:      model.ReconciliationStatus(status),
	}

	if matchJSON.Valid && matchJSON.String != "" {
		var match model.TransactionMatch
		if err := json.Unmarshal([]byte(matchJSON.String), &match); err != nil {
			return nil, fmt.Errorf("failed to unmarshal match for transaction %s: %w", txn.ID, err)
		}
		result.Match = &match
	}

	return result, nil
}
