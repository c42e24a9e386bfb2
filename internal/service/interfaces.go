// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/shopspring/decimal"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	Status *model.ReconciliationStatus
	UserID string
	Limit  int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.TransactionWithMatch, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.TransactionWithMatch, error)
	GetUnmatchedTransactionIDs(ctx context.Context, userID string) ([]string, error)

	// Match operations
	AttachMatch(ctx context.Context, match *model.TransactionMatch, status model.ReconciliationStatus) error
	DetachMatch(ctx context.Context, transactionID string) error
	UpdateStatus(ctx context.Context, transactionID string, status model.ReconciliationStatus) error
	UpdateCategory(ctx context.Context, transactionID, category string) error

	// Document operations
	SaveDocuments(ctx context.Context, documents []model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	GetDocuments(ctx context.Context, userID string, docType model.DocumentType, limit int) ([]model.Document, error)

	// Run history
	SaveRun(ctx context.Context, run *model.ReconciliationRun) error
	GetRuns(ctx context.Context, userID string, limit int) ([]model.ReconciliationRun, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// MatchBatchRequest is one bounded invocation of the remote matcher. The
// first call of a run carries the full transaction-identifier set; later
// calls carry the continuation cursor instead.
type MatchBatchRequest struct {
	AccumulatedStats     *model.RunStats `json:"accumulatedStats,omitempty"`
	ProgressID           string          `json:"progressId"`
	Cursor               string          `json:"cursor,omitempty"`
	TransactionIDs       []string        `json:"transactionIds,omitempty"`
	AutoConfirmThreshold int             `json:"autoConfirmThreshold"`
	BatchNumber          int             `json:"batchNumber,omitempty"`
}

// MatchBatchResponse is the matcher's result for one batch of work.
type MatchBatchResponse struct {
	Model            string                   `json:"model"`
	Cursor           string                   `json:"cursor,omitempty"`
	Matches          []model.TransactionMatch `json:"matches"`
	Steps            []model.StepSummary      `json:"steps"`
	PatternsLearned  []string                 `json:"patternsLearned"`
	Stats            model.RunStats           `json:"stats"`
	ProcessingTimeMs int64                    `json:"processingTimeMs"`
	BatchNumber      int                      `json:"batchNumber,omitempty"`
	HasMore          bool                     `json:"hasMore,omitempty"`
}

// ConfirmMatchRequest promotes a suggested match to a persisted one.
type ConfirmMatchRequest struct {
	FXRate          *decimal.Decimal   `json:"fxRate,omitempty"`
	TransactionID   string             `json:"transactionId"`
	DocumentID      string             `json:"documentId"`
	DocumentType    model.DocumentType `json:"documentType"`
	MatchMethod     string             `json:"matchMethod"`
	MatchConfidence int                `json:"matchConfidence"`
}

// CategorizeRequest assigns a category to a transaction without matching it
// to a document.
type CategorizeRequest struct {
	TransactionID string `json:"transactionId"`
	Category      string `json:"category"`
}

// Matcher is the remote matching engine consumed by the orchestrator. The
// matching algorithm itself lives server-side; this contract only moves work
// and results.
type Matcher interface {
	MatchBatch(ctx context.Context, req MatchBatchRequest) (*MatchBatchResponse, error)
	ConfirmMatch(ctx context.Context, req ConfirmMatchRequest) error
	Categorize(ctx context.Context, req CategorizeRequest) error
}

// ProgressSource delivers ever-growing progress snapshots for a run. The
// returned cancel function releases the subscription; it is safe to call more
// than once. The channel closes once the subscription ends.
type ProgressSource interface {
	Subscribe(ctx context.Context, runID string) (<-chan model.ProgressSnapshot, func(), error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// ReviewStats shows the results of an interactive review session.
type ReviewStats struct {
	Confirmed   int
	Rejected    int
	Categorized int
	Skipped     int
	Duration    time.Duration
}
