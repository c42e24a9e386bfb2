package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
)

// RunPrinter renders reconciliation run events as a live terminal transcript.
type RunPrinter struct {
	writer io.Writer
}

// NewRunPrinter creates a printer writing to the given writer.
func NewRunPrinter(writer io.Writer) *RunPrinter {
	if writer == nil {
		writer = os.Stdout
	}
	return &RunPrinter{writer: writer}
}

// Transcript prints one pipeline event.
func (p *RunPrinter) Transcript(ev model.ProgressEvent) {
	if _, err := fmt.Fprintln(p.writer, FormatEvent(ev)); err != nil {
		slog.Warn("Failed to write transcript event", "error", err)
	}
}

// Summary prints the run's working-set sizes once they are known.
func (p *RunPrinter) Summary(transactions, bills, invoices int) {
	msg := fmt.Sprintf("Reconciling %d transactions against %d bills and %d invoices",
		transactions, bills, invoices)
	if _, err := fmt.Fprintln(p.writer, FormatInfo(msg)); err != nil {
		slog.Warn("Failed to write run summary", "error", err)
	}
}

// BatchDone prints a one-line digest after each batch.
func (p *RunPrinter) BatchDone(batch, matches int, stats model.RunStats) {
	msg := fmt.Sprintf("Batch %d: %d matches (%d auto-confirmed, %.0f%% match rate)",
		batch, matches, stats.AutoConfirmed, stats.MatchRate)
	if _, err := fmt.Fprintln(p.writer, SubtleStyle.Render(msg)); err != nil {
		slog.Warn("Failed to write batch digest", "error", err)
	}
}

// SuggestionsReady tells the user there are matches waiting for review.
func (p *RunPrinter) SuggestionsReady() {
	msg := "Suggestions are ready. Run `recon review` to confirm or reject them."
	if _, err := fmt.Fprintln(p.writer, FormatWarning(msg)); err != nil {
		slog.Warn("Failed to write suggestions notice", "error", err)
	}
}

// Notice prints an informational message.
func (p *RunPrinter) Notice(msg string) {
	if _, err := fmt.Fprintln(p.writer, FormatInfo(msg)); err != nil {
		slog.Warn("Failed to write notice", "error", err)
	}
}
