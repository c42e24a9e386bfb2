package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

// MatchActions applies a review decision to one suggested match.
type MatchActions interface {
	Confirm(ctx context.Context, txn model.TransactionWithMatch) error
	Reject(ctx context.Context, transactionID string) error
	Categorize(ctx context.Context, transactionID, category string) error
}

// DocumentResolver looks up the document a match points at, for display.
type DocumentResolver func(ctx context.Context, documentID string) (*model.Document, error)

// Reviewer drives the interactive review of suggested matches.
type Reviewer struct {
	startTime   time.Time
	writer      io.Writer
	reader      *NonBlockingReader
	progressBar *progressbar.ProgressBar
	resolve     DocumentResolver
}

// NewReviewer creates a new reviewer with the given reader and writer.
func NewReviewer(reader io.Reader, writer io.Writer) *Reviewer {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &Reviewer{
		reader:    NewNonBlockingReader(reader),
		writer:    writer,
		startTime: time.Now(),
	}
}

// SetDocumentResolver enables document detail lines in the review display.
func (r *Reviewer) SetDocumentResolver(resolve DocumentResolver) {
	r.resolve = resolve
}

// Review walks through each suggested match and applies the user's decision.
// Quitting mid-session keeps every decision already applied.
func (r *Reviewer) Review(ctx context.Context, suggestions []model.TransactionWithMatch, actions MatchActions) (service.ReviewStats, error) {
	stats := service.ReviewStats{}
	defer func() { stats.Duration = time.Since(r.startTime) }()

	if len(suggestions) == 0 {
		if _, err := fmt.Fprintln(r.writer, FormatInfo("No suggested matches to review.")); err != nil {
			return stats, fmt.Errorf("failed to write message: %w", err)
		}
		return stats, nil
	}

	r.initProgressBar(len(suggestions))

	for i, txn := range suggestions {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if _, err := fmt.Fprintln(r.writer, RenderBox(
			fmt.Sprintf("Suggested Match %d of %d", i+1, len(suggestions)),
			r.formatSuggestion(ctx, txn),
		)); err != nil {
			return stats, fmt.Errorf("failed to write suggestion box: %w", err)
		}

		choice, err := r.promptChoice(ctx, "[c]onfirm  [r]eject  cate[g]orize  [s]kip  [q]uit", []string{"c", "r", "g", "s", "q"})
		if err != nil {
			return stats, err
		}

		switch choice {
		case "c":
			if err := actions.Confirm(ctx, txn); err != nil {
				if _, werr := fmt.Fprintln(r.writer, FormatError(fmt.Sprintf("Could not confirm: %v", err))); werr != nil {
					slog.Warn("Failed to write error message", "error", werr)
				}
				stats.Skipped++
				break
			}
			stats.Confirmed++
			if _, err := fmt.Fprintln(r.writer, FormatSuccess("Match confirmed")); err != nil {
				slog.Warn("Failed to write confirmation", "error", err)
			}
		case "r":
			if err := actions.Reject(ctx, txn.Transaction.ID); err != nil {
				return stats, fmt.Errorf("failed to reject match: %w", err)
			}
			stats.Rejected++
			if _, err := fmt.Fprintln(r.writer, FormatInfo("Suggestion discarded")); err != nil {
				slog.Warn("Failed to write rejection", "error", err)
			}
		case "g":
			category, err := r.promptCategory(ctx)
			if err != nil {
				return stats, err
			}
			if err := actions.Categorize(ctx, txn.Transaction.ID, category); err != nil {
				if _, werr := fmt.Fprintln(r.writer, FormatError(fmt.Sprintf("Could not categorize: %v", err))); werr != nil {
					slog.Warn("Failed to write error message", "error", werr)
				}
				stats.Skipped++
				break
			}
			stats.Categorized++
		case "s":
			stats.Skipped++
		case "q":
			r.showCompletion(stats)
			return stats, nil
		}

		if r.progressBar != nil {
			_ = r.progressBar.Add(1)
		}
	}

	r.showCompletion(stats)
	return stats, nil
}

// formatSuggestion renders a transaction and its proposed match for review.
func (r *Reviewer) formatSuggestion(ctx context.Context, txn model.TransactionWithMatch) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Date:         %s\n", txn.Transaction.Date.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Counterparty: %s\n", BoldStyle.Render(txn.Transaction.Counterparty)))
	b.WriteString(fmt.Sprintf("Description:  %s\n", SubtleStyle.Render(txn.Transaction.Description)))
	b.WriteString(fmt.Sprintf("Amount:       %s\n", BoldStyle.Render(fmt.Sprintf("%.2f %s", txn.Transaction.Amount, txn.Transaction.Currency))))

	if txn.Match == nil {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Proposed:     %s %s\n", string(txn.Match.DocumentType), BoldStyle.Render(txn.Match.DocumentID)))
	if r.resolve != nil && txn.Match.DocumentID != "" {
		if doc, err := r.resolve(ctx, txn.Match.DocumentID); err == nil && doc != nil {
			b.WriteString(fmt.Sprintf("Document:     %s, %s %.2f %s, %s\n",
				doc.Number, doc.Counterparty, doc.Amount, doc.Currency,
				SubtleStyle.Render("due "+doc.DueAt.Format("2006-01-02"))))
		}
	}
	b.WriteString(fmt.Sprintf("Type:         %s\n", string(txn.Match.Classification)))
	b.WriteString(fmt.Sprintf("Confidence:   %s\n", confidenceStyle(txn.Match.Confidence).Render(fmt.Sprintf("%d%%", txn.Match.Confidence))))

	if txn.Match.FX != nil {
		b.WriteString(fmt.Sprintf("FX:           %s %s @ %s = %s %s\n",
			txn.Match.FX.FromCurrency,
			txn.Match.FX.ConvertedAmount.Div(txn.Match.FX.Rate).StringFixed(2),
			txn.Match.FX.Rate.String(),
			txn.Match.FX.ConvertedAmount.StringFixed(2),
			txn.Match.FX.ToCurrency))
	}

	for _, reason := range txn.Match.Reasoning {
		b.WriteString(SubtleStyle.Render("  • "+reason) + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func confidenceStyle(confidence int) lipgloss.Style {
	switch {
	case confidence >= 80:
		return SuccessStyle
	case confidence >= 50:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

func (r *Reviewer) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		if _, err := fmt.Fprintf(r.writer, "%s: ", FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := r.reader.ReadLine(ctx)
		if err != nil {
			if err == io.EOF {
				return "", fmt.Errorf("input terminated")
			}
			return "", err
		}

		choice := strings.ToLower(strings.TrimSpace(input))
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}

		if _, err := fmt.Fprintln(r.writer, FormatError("Invalid choice. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}

func (r *Reviewer) promptCategory(ctx context.Context) (string, error) {
	for {
		if _, err := fmt.Fprintf(r.writer, "%s: ", FormatPrompt("Category")); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := r.reader.ReadLine(ctx)
		if err != nil {
			return "", err
		}

		category := strings.TrimSpace(input)
		if category != "" {
			return category, nil
		}

		if _, err := fmt.Fprintln(r.writer, FormatError("Category cannot be empty.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}

func (r *Reviewer) initProgressBar(total int) {
	r.progressBar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.writer),
		progressbar.OptionSetDescription("Reviewing"),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *Reviewer) showCompletion(stats service.ReviewStats) {
	summary := fmt.Sprintf("Confirmed: %d  Rejected: %d  Categorized: %d  Skipped: %d",
		stats.Confirmed, stats.Rejected, stats.Categorized, stats.Skipped)

	if _, err := fmt.Fprintln(r.writer, "\n"+FormatTitle("Review complete")); err != nil {
		slog.Warn("Failed to write completion title", "error", err)
	}
	if _, err := fmt.Fprintln(r.writer, summary); err != nil {
		slog.Warn("Failed to write completion summary", "error", err)
	}
}
