package main

import (
	"fmt"
	"os"

	"github.com/AiMakers-co/smartinvoice-recon/internal/cli"
	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/recon"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
	"github.com/spf13/cobra"
)

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Review suggested matches interactively",
		Long: `Walk through every suggested match one at a time.

Confirm a match to record it against its document, reject it to discard
the suggestion, or categorize the transaction directly when no document
applies. Quitting keeps everything already decided.`,
		RunE: runReview,
	}
}

func runReview(cmd *cobra.Command, _ []string) error {
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

	suggested := model.StatusSuggested
	suggestions, err := store.GetTransactions(ctx, service.TransactionFilter{
		UserID: userID,
		Status: &suggested,
	})
	if err != nil {
		return fmt.Errorf("failed to load suggestions: %w", err)
	}

	handler := cli.NewInterruptHandler(os.Stdout)
	ctx = handler.HandleInterrupts(ctx, false)

	reviewer := cli.NewReviewer(os.Stdin, os.Stdout)
	reviewer.SetDocumentResolver(store.GetDocument)
	confirmer := recon.NewConfirmer(store, matcherClient)

	if _, err := reviewer.Review(ctx, suggestions, confirmer); err != nil {
		if handler.WasInterrupted() {
			return nil
		}
		return err
	}

	return nil
}
