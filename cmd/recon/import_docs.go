package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/cli"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/spf13/cobra"
)

func importDocsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-docs [file]",
		Short: "Import invoices and bills from a JSON export",
		Long: `Import accounting documents from a SmartInvoice JSON export.

The file holds an array of documents:

  [{"id": "inv-1", "type": "invoice", "number": "INV-0001",
    "counterparty": "Initech LLC", "currency": "USD", "status": "open",
    "amount": 1500.00, "issuedAt": "2026-02-01T00:00:00Z",
    "dueAt": "2026-03-01T00:00:00Z"}]

Re-importing a document refreshes its status and amount.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportDocs,
	}
}

type documentExport struct {
	IssuedAt     string  `json:"issuedAt"`
	DueAt        string  `json:"dueAt"`
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Number       string  `json:"number"`
	Counterparty string  `json:"counterparty"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	Amount       float64 `json:"amount"`
}

func runImportDocs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	userID, err := requireUser()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0]) // #nosec G304 -- user-provided export path
	if err != nil {
		return fmt.Errorf("failed to read document export: %w", err)
	}

	var exports []documentExport
	if err := json.Unmarshal(data, &exports); err != nil {
		return fmt.Errorf("failed to parse document export: %w", err)
	}
	if len(exports) == 0 {
		fmt.Println(cli.FormatWarning("No documents found in export"))
		return nil
	}

	docs := make([]model.Document, 0, len(exports))
	for i, export := range exports {
		doc := model.Document{
			ID:           export.ID,
			UserID:       userID,
			Type:         model.DocumentType(export.Type),
			Number:       export.Number,
			Counterparty: export.Counterparty,
			Currency:     export.Currency,
			Status:       export.Status,
			Amount:       export.Amount,
		}

		switch doc.Type {
		case model.DocumentTypeInvoice, model.DocumentTypeBill:
		default:
			return fmt.Errorf("document %d: unknown type %q", i, export.Type)
		}

		if doc.IssuedAt, err = parseExportTime(export.IssuedAt); err != nil {
			return fmt.Errorf("document %s: bad issuedAt: %w", export.ID, err)
		}
		if doc.DueAt, err = parseExportTime(export.DueAt); err != nil {
			return fmt.Errorf("document %s: bad dueAt: %w", export.ID, err)
		}

		docs = append(docs, doc)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveDocuments(ctx, docs); err != nil {
		return fmt.Errorf("failed to save documents: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Imported %d documents", len(docs))))
	return nil
}

func parseExportTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
