package progress

import (
	"sync"

	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
)

// Subscriber folds snapshot deliveries into an append-only transcript.
// Snapshots carry the full event history to date, so only events beyond the
// last-seen length are emitted; a snapshot with no new events is a no-op.
type Subscriber struct {
	onEvent     func(model.ProgressEvent)
	onSummary   func(transactions, bills, invoices int)
	mu          sync.Mutex
	seen        int
	summarySeen bool
}

// NewSubscriber creates a subscriber. onEvent receives each newly-visible
// event in order; onSummary fires once, the first time a snapshot carries
// the run's document counts. Either callback may be nil.
func NewSubscriber(onEvent func(model.ProgressEvent), onSummary func(transactions, bills, invoices int)) *Subscriber {
	return &Subscriber{
		onEvent:   onEvent,
		onSummary: onSummary,
	}
}

// Apply processes one snapshot delivery.
func (s *Subscriber) Apply(snap model.ProgressSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.summarySeen && (snap.TotalTransactions > 0 || snap.TotalBills > 0 || snap.TotalInvoices > 0) {
		s.summarySeen = true
		if s.onSummary != nil {
			s.onSummary(snap.TotalTransactions, snap.TotalBills, snap.TotalInvoices)
		}
	}

	if len(snap.Events) <= s.seen {
		return
	}

	if s.onEvent != nil {
		for _, ev := range snap.Events[s.seen:] {
			s.onEvent(ev)
		}
	}
	s.seen = len(snap.Events)
}

// Seen returns how many events have been rendered so far.
func (s *Subscriber) Seen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}
