package model

import "time"

// RunStats holds the cumulative statistics for a reconciliation run as
// reported by the remote matcher. The client renders these; it never
// recomputes them.
type RunStats struct {
	TotalProcessed int     `json:"totalProcessed"`
	PaymentMatches int     `json:"paymentMatches"`
	BankFees       int     `json:"bankFees"`
	Transfers      int     `json:"transfers"`
	NoMatches      int     `json:"noMatches"`
	NeedsReview    int     `json:"needsReview"`
	AutoConfirmed  int     `json:"autoConfirmed"`
	MatchRate      float64 `json:"matchRate"`
}

// StepSummary describes one pipeline step the matcher executed.
type StepSummary struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	ItemCount int    `json:"itemCount"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// ReconciliationRun is one end-to-end invocation of the matching pipeline.
type ReconciliationRun struct {
	StartedAt       time.Time
	CompletedAt     time.Time
	ID              string
	UserID          string
	Model           string
	Matches         []TransactionMatch
	Steps           []StepSummary
	PatternsLearned []string
	Stats           RunStats
	ProcessingTime  time.Duration
	Batches         int
}
