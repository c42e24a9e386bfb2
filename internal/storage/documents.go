package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AiMakers-co/smartinvoice-recon/internal/common"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
)

// SaveDocuments upserts accounting documents. Re-importing a document
// refreshes its amount and status.
func (s *SQLiteStorage) SaveDocuments(ctx context.Context, documents []model.Document) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDocuments(documents); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (
			id, user_id, doc_type, number, counterparty, currency, status,
			amount, issued_at, due_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			amount = excluded.amount,
			due_at = excluded.due_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, doc := range documents {
		if doc.Currency == "" {
			doc.Currency = "USD"
		}
		if doc.Status == "" {
			doc.Status = "open"
		}

		if _, execErr := stmt.ExecContext(ctx,
			doc.ID,
			doc.UserID,
			string(doc.Type),
			doc.Number,
			doc.Counterparty,
			doc.Currency,
			doc.Status,
			doc.Amount,
			doc.IssuedAt,
			doc.DueAt,
		); execErr != nil {
			return fmt.Errorf("failed to save document %s: %w", doc.ID, execErr)
		}
	}

	return tx.Commit()
}

// GetDocument retrieves a single document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, doc_type, number, counterparty, currency, status,
			amount, issued_at, due_at
		FROM documents WHERE id = ?
	`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetDocuments retrieves a user's documents of one type, newest issue date
// first. An empty docType returns all types.
func (s *SQLiteStorage) GetDocuments(ctx context.Context, userID string, docType model.DocumentType, limit int) ([]model.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, doc_type, number, counterparty, currency, status,
			amount, issued_at, due_at
		FROM documents WHERE user_id = ?`
	args := []any{userID}

	if docType != "" {
		query += ` AND doc_type = ?`
		args = append(args, string(docType))
	}

	query += ` ORDER BY issued_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []model.Document
	for rows.Next() {
		doc, scanErr := scanDocument(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan document: %w", scanErr)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func scanDocument(row scanner) (*model.Document, error) {
	var (
		doc     model.Document
		docType string
		number,
		counterparty sql.NullString
		issuedAt,
		dueAt sql.NullTime
	)

	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&docType,
		&number,
		&counterparty,
		&doc.Currency,
		&doc.Status,
		&doc.Amount,
		&issuedAt,
		&dueAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Type = model.DocumentType(docType)
	doc.Number = number.String
	doc.Counterparty = counterparty.String
	doc.IssuedAt = issuedAt.Time
	doc.DueAt = dueAt.Time
	return &doc, nil
}
