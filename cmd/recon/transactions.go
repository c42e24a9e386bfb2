package main

import (
	"fmt"
	"strings"

	"github.com/AiMakers-co/smartinvoice-recon/internal/cli"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
	"github.com/spf13/cobra"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List imported transactions and their reconciliation state",
		RunE:  runTransactions,
	}

	cmd.Flags().String("status", "", "filter by status (unmatched, suggested, matched, categorized)")
	cmd.Flags().Int("limit", 50, "maximum number of transactions to show")

	return cmd
}

func runTransactions(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	userID, err := requireUser()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	filter := service.TransactionFilter{UserID: userID}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		filter.Limit = limit
	}
	if statusFlag, _ := cmd.Flags().GetString("status"); statusFlag != "" {
		status := model.ReconciliationStatus(strings.ToUpper(statusFlag))
		filter.Status = &status
	}

	txns, err := store.GetTransactions(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}

	if len(txns) == 0 {
		fmt.Println(cli.FormatInfo("No transactions found"))
		return nil
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Transactions (%d)", len(txns))))
	for _, txn := range txns {
		line := fmt.Sprintf("%s  %-11s %10.2f %s  %s",
			txn.Transaction.Date.Format("2006-01-02"),
			statusLabel(txn.Status),
			txn.Transaction.Amount,
			txn.Transaction.Currency,
			txn.Transaction.Counterparty)

		if txn.Match != nil {
			line += cli.SubtleStyle.Render(fmt.Sprintf("  → %s %s (%d%%)",
				string(txn.Match.DocumentType), txn.Match.DocumentID, txn.Match.Confidence))
		}
		if txn.Transaction.Category != "" {
			line += cli.SubtleStyle.Render("  [" + txn.Transaction.Category + "]")
		}

		fmt.Println(line)
	}

	return nil
}

func statusLabel(status model.ReconciliationStatus) string {
	switch status {
	case model.StatusMatched:
		return cli.SuccessStyle.Render("matched")
	case model.StatusSuggested:
		return cli.WarningStyle.Render("suggested")
	case model.StatusCategorized:
		return cli.InfoStyle.Render("categorized")
	default:
		return cli.SubtleStyle.Render("unmatched")
	}
}
