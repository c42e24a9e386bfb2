package model

import "time"

// EventCategory classifies one line of the run transcript.
type EventCategory string

// Event category constants.
const (
	EventStep     EventCategory = "step"
	EventAnalyze  EventCategory = "analyze"
	EventSearch   EventCategory = "search"
	EventMatch    EventCategory = "match"
	EventFX       EventCategory = "fx"
	EventConfirm  EventCategory = "confirm"
	EventClassify EventCategory = "classify"
	EventEscalate EventCategory = "escalate"
	EventLearn    EventCategory = "learn"
	EventInfo     EventCategory = "info"
)

// ProgressEvent is one append-only line in the human-readable execution log
// of a run.
type ProgressEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Category  EventCategory `json:"category"`
	Message   string        `json:"message"`
	Step      string        `json:"step,omitempty"`
}

// ProgressSnapshot is the full progress record for a run as of one delivery.
// Snapshots always carry the complete event history to date, never deltas;
// consumers must diff by length.
type ProgressSnapshot struct {
	RunID             string          `json:"runId"`
	TotalTransactions int             `json:"totalTransactions"`
	TotalBills        int             `json:"totalBills"`
	TotalInvoices     int             `json:"totalInvoices"`
	Events            []ProgressEvent `json:"events"`
}
