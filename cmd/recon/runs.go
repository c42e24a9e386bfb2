package main

import (
	"fmt"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/cli"
	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show reconciliation run history",
		RunE:  runRuns,
	}

	cmd.Flags().Int("limit", 10, "maximum number of runs to show")

	return cmd
}

func runRuns(cmd *cobra.Command, _ []string) error {
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

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.GetRuns(ctx, userID, limit)
	if err != nil {
		return fmt.Errorf("failed to load runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println(cli.FormatInfo("No reconciliation runs yet"))
		return nil
	}

	fmt.Println(cli.FormatTitle("Run history"))
	for _, run := range runs {
		duration := "interrupted"
		if !run.CompletedAt.IsZero() {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
		}

		fmt.Printf("%s  %s\n", run.StartedAt.Format("2006-01-02 15:04"), cli.BoldStyle.Render(run.ID))
		fmt.Printf("    %d batches, %d matches, %d auto-confirmed, %.1f%% match rate, %s\n",
			run.Batches,
			len(run.Matches),
			run.Stats.AutoConfirmed,
			run.Stats.MatchRate,
			duration)
		if run.Model != "" {
			fmt.Println(cli.SubtleStyle.Render("    model: " + run.Model))
		}
	}

	return nil
}
