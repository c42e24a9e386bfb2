package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AiMakers-co/smartinvoice-recon/internal/cli"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/ofx"
	"github.com/spf13/cobra"
)

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import bank transactions from OFX or QFX (Quicken) files exported from your bank.

Examples:
  # Import single file
  recon import-ofx ~/Downloads/business_jan_2026.qfx

  # Import multiple files
  recon import-ofx ~/Downloads/business_*.qfx

  # Import all QFX files in a directory
  recon import-ofx ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")

	return cmd
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	userID, err := requireUser()
	if err != nil {
		return err
	}

	// Expand globs and collect all files
	var allFiles []string
	for _, pattern := range args {
		matches, globErr := filepath.Glob(pattern)
		if globErr != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, globErr)
		}
		if len(matches) == 0 {
			// If no glob matches, check if it's a direct file
			if _, statErr := os.Stat(pattern); statErr == nil {
				allFiles = append(allFiles, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
		} else {
			allFiles = append(allFiles, matches...)
		}
	}

	if len(allFiles) == 0 {
		return fmt.Errorf("no files found to import")
	}

	slog.Info("Importing OFX files",
		"file_count", len(allFiles),
		"dry_run", dryRun)

	parser := ofx.NewParser()
	var allTransactions []model.Transaction
	seen := make(map[string]bool) // For cross-file deduplication

	for _, file := range allFiles {
		f, openErr := os.Open(file) // #nosec G304 -- user-provided statement path
		if openErr != nil {
			slog.Warn("Failed to open file", "file", file, "error", openErr)
			continue
		}

		txns, parseErr := parser.ParseFile(ctx, f, userID)
		_ = f.Close()
		if parseErr != nil {
			slog.Warn("Failed to parse file", "file", file, "error", parseErr)
			continue
		}

		kept := 0
		for _, txn := range txns {
			if seen[txn.Hash] {
				continue
			}
			seen[txn.Hash] = true
			allTransactions = append(allTransactions, txn)
			kept++
		}

		slog.Info("Parsed statement", "file", filepath.Base(file), "transactions", kept)
	}

	if len(allTransactions) == 0 {
		fmt.Println(cli.FormatWarning("No transactions found in the given files"))
		return nil
	}

	if dryRun {
		fmt.Println(cli.FormatInfo(fmt.Sprintf("Dry run: would import %d transactions", len(allTransactions))))
		for _, txn := range allTransactions {
			fmt.Printf("  %s  %10.2f %s  %s\n",
				txn.Date.Format("2006-01-02"), txn.Amount, txn.Currency, txn.Counterparty)
		}
		return nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveTransactions(ctx, allTransactions); err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Imported %d transactions from %d files", len(allTransactions), len(allFiles))))
	return nil
}
