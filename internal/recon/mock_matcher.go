package recon

import (
	"context"
	"sync"

	"github.com/AiMakers-co/smartinvoice-recon/internal/model"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
)

// MockMatcher is a test implementation of the service.Matcher interface. It
// replays scripted batch responses and records every request it receives.
type MockMatcher struct {
	confirmErr     error
	categorizeErr  error
	onBatch        func(call int)
	batches        []batchScript
	batchReqs      []service.MatchBatchRequest
	confirmReqs    []service.ConfirmMatchRequest
	categorizeReqs []service.CategorizeRequest
	mu             sync.Mutex
}

type batchScript struct {
	resp *service.MatchBatchResponse
	err  error
}

// NewMockMatcher creates a mock matcher with no scripted batches.
func NewMockMatcher() *MockMatcher {
	return &MockMatcher{}
}

// QueueBatch scripts the response for the next unanswered batch call.
func (m *MockMatcher) QueueBatch(resp *service.MatchBatchResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batchScript{resp: resp})
}

// QueueBatchError scripts a failure for the next unanswered batch call.
func (m *MockMatcher) QueueBatchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batchScript{err: err})
}

// OnBatch installs a hook invoked at the start of every batch call with the
// zero-based call index.
func (m *MockMatcher) OnBatch(fn func(call int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onBatch = fn
}

// SetConfirmError makes every ConfirmMatch call fail with err.
func (m *MockMatcher) SetConfirmError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmErr = err
}

// SetCategorizeError makes every Categorize call fail with err.
func (m *MockMatcher) SetCategorizeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categorizeErr = err
}

// MatchBatch replays the next scripted batch.
func (m *MockMatcher) MatchBatch(_ context.Context, req service.MatchBatchRequest) (*service.MatchBatchResponse, error) {
	m.mu.Lock()
	call := len(m.batchReqs)
	m.batchReqs = append(m.batchReqs, req)
	hook := m.onBatch
	var script batchScript
	if call < len(m.batches) {
		script = m.batches[call]
	} else {
		script = batchScript{resp: &service.MatchBatchResponse{}}
	}
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	if script.err != nil {
		return nil, script.err
	}
	return script.resp, nil
}

// ConfirmMatch records the request and returns the configured error, if any.
func (m *MockMatcher) ConfirmMatch(_ context.Context, req service.ConfirmMatchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmReqs = append(m.confirmReqs, req)
	return m.confirmErr
}

// Categorize records the request and returns the configured error, if any.
func (m *MockMatcher) Categorize(_ context.Context, req service.CategorizeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categorizeReqs = append(m.categorizeReqs, req)
	return m.categorizeErr
}

// BatchRequests returns a copy of all recorded batch requests.
func (m *MockMatcher) BatchRequests() []service.MatchBatchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := make([]service.MatchBatchRequest, len(m.batchReqs))
	copy(reqs, m.batchReqs)
	return reqs
}

// ConfirmRequests returns a copy of all recorded confirm requests.
func (m *MockMatcher) ConfirmRequests() []service.ConfirmMatchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := make([]service.ConfirmMatchRequest, len(m.confirmReqs))
	copy(reqs, m.confirmReqs)
	return reqs
}

// CategorizeRequests returns a copy of all recorded categorize requests.
func (m *MockMatcher) CategorizeRequests() []service.CategorizeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := make([]service.CategorizeRequest, len(m.categorizeReqs))
	copy(reqs, m.categorizeReqs)
	return reqs
}

// CallCount returns how many batch calls were made.
func (m *MockMatcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batchReqs)
}

// MockProgressSource is a test implementation of service.ProgressSource that
// delivers pre-queued snapshots to each subscriber.
type MockProgressSource struct {
	queued     []model.ProgressSnapshot
	subscribed []string
	mu         sync.Mutex
}

// NewMockProgressSource creates an empty mock progress source.
func NewMockProgressSource() *MockProgressSource {
	return &MockProgressSource{}
}

// QueueSnapshot adds a snapshot delivered to future subscribers.
func (s *MockProgressSource) QueueSnapshot(snap model.ProgressSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, snap)
}

// Subscribe delivers the queued snapshots and closes on cancel.
func (s *MockProgressSource) Subscribe(_ context.Context, runID string) (<-chan model.ProgressSnapshot, func(), error) {
	s.mu.Lock()
	s.subscribed = append(s.subscribed, runID)
	snaps := make([]model.ProgressSnapshot, len(s.queued))
	copy(snaps, s.queued)
	s.mu.Unlock()

	ch := make(chan model.ProgressSnapshot, len(snaps)+1)
	for _, snap := range snaps {
		ch <- snap
	}

	cancel := sync.OnceFunc(func() { close(ch) })
	return ch, cancel, nil
}

// Subscriptions returns the run IDs subscribed to so far.
func (s *MockProgressSource) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make([]string, len(s.subscribed))
	copy(subs, s.subscribed)
	return subs
}

// RecordingSink is an EventSink that records everything for assertions.
type RecordingSink struct {
	Transcripts      []model.ProgressEvent
	Notices          []string
	BatchStats       []model.RunStats
	SummaryTxns      int
	SummaryBills     int
	SummaryInvoices  int
	SuggestionsFired int
	mu               sync.Mutex
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Transcript implements EventSink.
func (r *RecordingSink) Transcript(ev model.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Transcripts = append(r.Transcripts, ev)
}

// Summary implements EventSink.
func (r *RecordingSink) Summary(transactions, bills, invoices int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SummaryTxns = transactions
	r.SummaryBills = bills
	r.SummaryInvoices = invoices
}

// BatchDone implements EventSink.
func (r *RecordingSink) BatchDone(_, _ int, stats model.RunStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.BatchStats = append(r.BatchStats, stats)
}

// SuggestionsReady implements EventSink.
func (r *RecordingSink) SuggestionsReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SuggestionsFired++
}

// Notice implements EventSink.
func (r *RecordingSink) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notices = append(r.Notices, msg)
}

// TranscriptMessages returns the recorded transcript lines.
func (r *RecordingSink) TranscriptMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := make([]string, len(r.Transcripts))
	for i, ev := range r.Transcripts {
		msgs[i] = ev.Message
	}
	return msgs
}
