package main

import (
	"fmt"
	"os"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/cli"
	"github.com/AiMakers-co/smartinvoice-recon/internal/recon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile unmatched transactions against invoices and bills",
		Long: `Run the matching pipeline over every unmatched transaction.

High-confidence matches are confirmed automatically; the rest become
suggestions for 'recon review'. Progress streams live while the pipeline
works. A run that fails partway keeps everything already matched.`,
		RunE: runReconciliation,
	}

	cmd.Flags().Int("auto-confirm-threshold", 0, "confidence score above which matches confirm automatically (default 93)")

	return cmd
}

func runReconciliation(cmd *cobra.Command, _ []string) error {
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

	matcherClient, err := initMatcher()
	if err != nil {
		return err
	}

	source, err := initProgressSource()
	if err != nil {
		return err
	}

	cfg := recon.DefaultConfig()
	if threshold, _ := cmd.Flags().GetInt("auto-confirm-threshold"); threshold > 0 {
		cfg.AutoConfirmThreshold = threshold
	} else if threshold := viper.GetInt("matcher.auto_confirm_threshold"); threshold > 0 {
		cfg.AutoConfirmThreshold = threshold
	}

	printer := cli.NewRunPrinter(os.Stdout)
	engine := recon.NewWithConfig(store, matcherClient, source, printer, cfg)

	handler := cli.NewInterruptHandler(os.Stdout)
	ctx = handler.HandleInterrupts(ctx, true)

	start := time.Now()
	run, err := engine.Run(ctx, userID)
	if err != nil {
		return err
	}
	if run == nil {
		return nil
	}

	fmt.Println(cli.FormatTitle("Reconciliation complete"))
	fmt.Printf("  Processed:      %d transactions in %d batches\n", run.Stats.TotalProcessed, run.Batches)
	fmt.Printf("  Payment matches: %d  Bank fees: %d  Transfers: %d\n", run.Stats.PaymentMatches, run.Stats.BankFees, run.Stats.Transfers)
	fmt.Printf("  Auto-confirmed: %d  Needs review: %d  No match: %d\n", run.Stats.AutoConfirmed, run.Stats.NeedsReview, run.Stats.NoMatches)
	fmt.Printf("  Match rate:     %.1f%%  (%s)\n", run.Stats.MatchRate, time.Since(start).Round(time.Millisecond))

	for _, pattern := range run.PatternsLearned {
		fmt.Println(cli.SubtleStyle.Render("  learned: " + pattern))
	}

	return nil
}
