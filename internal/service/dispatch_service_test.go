package service_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/bulk-dispatcher/internal/errors"
	"github.com/unclebandit/bulk-dispatcher/internal/model"
	"github.com/unclebandit/bulk-dispatcher/internal/queue"
	"github.com/unclebandit/bulk-dispatcher/internal/repository"
	"github.com/unclebandit/bulk-dispatcher/internal/service"
)

// --- Mocks ---

type MockSender struct {
	mu       sync.Mutex
	payloads []model.Payload
	tokens   []string

	inflight    atomic.Int32
	maxInflight atomic.Int32

	started chan struct{} // signalled on every call when set
	release chan struct{} // calls block until closed when set
	delay   time.Duration
	outcome func(p model.Payload) model.Outcome
}

func (m *MockSender) Send(ctx context.Context, p model.Payload, endpoint, token string) model.Outcome {
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		peak := m.maxInflight.Load()
		if n <= peak || m.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}

	m.mu.Lock()
	m.payloads = append(m.payloads, p)
	m.tokens = append(m.tokens, endpoint+"/"+token)
	m.mu.Unlock()

	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.outcome != nil {
		return m.outcome(p)
	}
	return model.Outcome{Kind: model.Delivered, StatusCode: 200, Body: "ok"}
}

func (m *MockSender) Phones() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.payloads {
		out = append(out, p.To)
	}
	return out
}

func (m *MockSender) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

type MockLedger struct {
	loadErr   error
	recordErr error
	records   atomic.Int32
}

func (m *MockLedger) AlreadySent(ctx context.Context) (map[string]struct{}, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return map[string]struct{}{}, nil
}

func (m *MockLedger) Record(ctx context.Context, phone, status, details string) error {
	m.records.Add(1)
	return m.recordErr
}

// --- Helpers ---

var (
	nameMapping = model.ColumnMapping{{Column: "nome", Variable: "nome"}}
	oneTemplate = model.Profile{Name: "bm", PhoneNumberID: "1001", Token: "tok", Templates: []string{"T1"}}
)

func recipients(phones ...string) []model.Recipient {
	out := make([]model.Recipient, 0, len(phones))
	for _, p := range phones {
		out = append(out, model.Recipient{"telefone": p, "nome": "n" + p})
	}
	return out
}

func newDispatcher(l repository.Ledger, s service.Sender) *service.DispatchService {
	return &service.DispatchService{
		Ledger:    l,
		Sender:    s,
		Log:       zerolog.Nop(),
		Namespace: "ns",
	}
}

func runAsync(t *testing.T, svc *service.DispatchService, state *service.RunState, recs []model.Recipient, opts service.RunOptions) <-chan *model.Summary {
	t.Helper()
	done := make(chan *model.Summary, 1)
	go func() {
		sum, err := svc.Run(context.Background(), state, recs, nameMapping, oneTemplate, opts)
		assert.NoError(t, err)
		done <- sum
	}()
	return done
}

func waitSummary(t *testing.T, ch <-chan *model.Summary) *model.Summary {
	t.Helper()
	select {
	case sum := <-ch:
		return sum
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not finish")
	}
	return nil
}

func statuses(entries []model.LedgerEntry) map[string]string {
	out := map[string]string{}
	for _, e := range entries {
		out[e.Phone] = e.Status
	}
	return out
}

// --- Tests ---

func TestRunSendsEveryRecipientOnce(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	sender := &MockSender{}
	var trace bytes.Buffer
	svc := newDispatcher(ledger, sender)
	svc.Out = &trace

	sum, err := svc.Run(context.Background(), nil, recipients("1", "2", "3"), nameMapping, oneTemplate, service.RunOptions{Workers: 2})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"1", "2", "3"}, sender.Phones())
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 3, sum.Submitted)
	assert.Equal(t, 3, sum.Delivered)
	assert.Equal(t, 3, sum.Sent())
	assert.Equal(t, 3, sum.ByStatus[model.StatusDelivered])

	entries := ledger.Entries()
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, model.StatusDelivered, e.Status)
		assert.Equal(t, "ok", e.Details)
	}
	for _, tok := range sender.tokens {
		assert.Equal(t, "1001/tok", tok)
	}

	assert.Contains(t, trace.String(), "Using namespace: ns")
	assert.Contains(t, trace.String(), "2: 200 | ok | namespace=ns")
}

func TestRunSkipsAlreadySent(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	first := &MockSender{}
	_, err := newDispatcher(ledger, first).Run(context.Background(), nil, recipients("A", "B"), nameMapping, oneTemplate, service.RunOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, first.Phones())

	second := &MockSender{}
	sum, err := newDispatcher(ledger, second).Run(context.Background(), nil, recipients("A", "B", "C"), nameMapping, oneTemplate, service.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"C"}, second.Phones())
	assert.Equal(t, 2, sum.Filtered)
	assert.Equal(t, 1, sum.Submitted)
}

func TestRunFailedAttemptsAreNotRetried(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	sender := &MockSender{outcome: func(p model.Payload) model.Outcome {
		return model.Outcome{Kind: model.Rejected, StatusCode: 400, Body: `{"error":"bad"}`}
	}}
	_, err := newDispatcher(ledger, sender).Run(context.Background(), nil, recipients("A"), nameMapping, oneTemplate, service.RunOptions{})
	require.NoError(t, err)

	again := &MockSender{}
	_, err = newDispatcher(ledger, again).Run(context.Background(), nil, recipients("A"), nameMapping, oneTemplate, service.RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, again.Calls())
}

func TestRunClassifiesOutcomes(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	sender := &MockSender{outcome: func(p model.Payload) model.Outcome {
		switch p.To {
		case "rejected":
			return model.Outcome{Kind: model.Rejected, StatusCode: 400, Body: "bad request"}
		case "broken":
			return model.Outcome{Kind: model.TransportError, Err: "connection refused"}
		}
		return model.Outcome{Kind: model.Delivered, StatusCode: 200, Body: "ok"}
	}}

	sum, err := newDispatcher(ledger, sender).Run(context.Background(), nil, recipients("fine", "rejected", "broken"), nameMapping, oneTemplate, service.RunOptions{Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Delivered)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 1, sum.Errors)

	got := statuses(ledger.Entries())
	assert.Equal(t, model.StatusDelivered, got["fine"])
	assert.Equal(t, "error_400", got["rejected"])
	assert.Equal(t, model.StatusException, got["broken"])
	for _, e := range ledger.Entries() {
		if e.Phone == "broken" {
			assert.Equal(t, "connection refused", e.Details)
		}
	}
}

func TestRunSkipsIncompleteRecipients(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	sender := &MockSender{}
	recs := []model.Recipient{
		{"nome": "no phone"},
		{"telefone": "1", "nome": "no template"},
		{"telefone": "2", "nome": "ok", "template_name": "own"},
	}

	sum, err := newDispatcher(ledger, sender).Run(context.Background(), nil, recs, nameMapping, model.Profile{PhoneNumberID: "1001"}, service.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, sender.Phones())
	assert.Equal(t, "own", sender.payloads[0].Template.Name)
	assert.Equal(t, 2, sum.Skipped)

	entries := ledger.Entries()
	require.Len(t, entries, 3)
	details := map[string]string{}
	for _, e := range entries {
		if e.Status == model.StatusSkipped {
			details[e.Phone] = e.Details
		}
	}
	assert.Equal(t, map[string]string{"": "no phone", "1": "no template_name"}, details)
}

func TestRunRotatesTemplates(t *testing.T) {
	sender := &MockSender{}
	profile := model.Profile{PhoneNumberID: "1001", Templates: []string{"T1", "T2"}}

	_, err := newDispatcher(repository.NewMemoryLedger(), sender).Run(context.Background(), nil, recipients("1", "2", "3", "4", "5"), nameMapping, profile, service.RunOptions{Workers: 1})
	require.NoError(t, err)

	var names []string
	for _, p := range sender.payloads {
		names = append(names, p.Template.Name)
	}
	assert.Equal(t, []string{"T1", "T2", "T1", "T2", "T1"}, names)
}

func TestRunRandomized(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	sender := &MockSender{}
	svc := newDispatcher(ledger, sender)
	svc.Shuffle = func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	recs := append(recipients("1", "2", "3"), model.Recipient{"nome": "no phone"})

	sum, err := svc.Run(context.Background(), nil, recs, nameMapping, oneTemplate, service.RunOptions{Workers: 1, Randomize: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"3", "2", "1"}, sender.Phones())
	assert.Equal(t, 1, sum.Skipped)

	entries := ledger.Entries()
	require.Len(t, entries, 3, "skip entries are not recorded in randomized runs")
	for _, e := range entries {
		assert.Equal(t, model.StatusDelivered, e.Status)
		assert.Empty(t, e.Details)
	}
}

func TestRunRespectsWorkerBound(t *testing.T) {
	sender := &MockSender{delay: 5 * time.Millisecond}
	phones := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}

	sum, err := newDispatcher(repository.NewMemoryLedger(), sender).Run(context.Background(), nil, recipients(phones...), nameMapping, oneTemplate, service.RunOptions{Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, 12, sender.Calls())
	assert.Equal(t, 12, sum.Delivered)
	assert.LessOrEqual(t, sender.maxInflight.Load(), int32(3))
}

func TestRunLedgerWriteFailureDoesNotAbort(t *testing.T) {
	ledger := &MockLedger{recordErr: errors.New("disk full")}
	sender := &MockSender{}
	var trace bytes.Buffer
	svc := newDispatcher(ledger, sender)
	svc.Out = &trace

	sum, err := svc.Run(context.Background(), nil, recipients("1", "2"), nameMapping, oneTemplate, service.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, sender.Calls())
	assert.Equal(t, 2, sum.Delivered)
	assert.Equal(t, int32(2), ledger.records.Load())
	assert.Contains(t, trace.String(), "ledger write failed")
}

func TestRunLedgerLoadFailureAborts(t *testing.T) {
	sender := &MockSender{}
	_, err := newDispatcher(&MockLedger{loadErr: errors.New("permission denied")}, sender).
		Run(context.Background(), nil, recipients("1"), nameMapping, oneTemplate, service.RunOptions{})

	var loadErr *appErrors.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "ledger", loadErr.Source)
	assert.Zero(t, sender.Calls())
}

func TestRunRejectsInvalidMapping(t *testing.T) {
	sender := &MockSender{}
	_, err := newDispatcher(repository.NewMemoryLedger(), sender).
		Run(context.Background(), nil, recipients("1"), nil, oneTemplate, service.RunOptions{})

	assert.ErrorIs(t, err, appErrors.ErrInvalidMapping)
	assert.Zero(t, sender.Calls())
}

func TestRunPauseBlocksUntilResume(t *testing.T) {
	sender := &MockSender{}
	state := service.NewRunState()
	state.Pause()

	done := runAsync(t, newDispatcher(repository.NewMemoryLedger(), sender), state, recipients("1", "2", "3"), service.RunOptions{Workers: 1})

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sender.Calls())
	assert.Equal(t, service.StatePaused, state.State())

	state.Resume()
	sum := waitSummary(t, done)
	assert.Equal(t, 3, sender.Calls())
	assert.Equal(t, 3, sum.Delivered)
	assert.Equal(t, service.StateDrained, state.State())
}

func TestRunCancelDrainsInFlight(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	sender := &MockSender{started: make(chan struct{}, 10), release: make(chan struct{})}
	state := service.NewRunState()

	done := runAsync(t, newDispatcher(ledger, sender), state, recipients("1", "2", "3", "4", "5"), service.RunOptions{Workers: 2})

	for i := 0; i < 2; i++ {
		select {
		case <-sender.started:
		case <-time.After(5 * time.Second):
			t.Fatal("sends did not start")
		}
	}
	state.Cancel()
	close(sender.release)

	sum := waitSummary(t, done)
	assert.Equal(t, 2, sender.Calls())
	assert.Equal(t, 2, sum.Submitted)
	assert.Equal(t, 2, sum.Delivered)
	assert.Len(t, ledger.Entries(), 2)
}

func TestRunCancelWhilePausedSendsNothing(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	sender := &MockSender{}
	state := service.NewRunState()
	state.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *model.Summary, 1)
	go func() {
		sum, err := newDispatcher(ledger, sender).Run(ctx, state, recipients("1", "2"), nameMapping, oneTemplate, service.RunOptions{Workers: 1})
		assert.NoError(t, err)
		done <- sum
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	sum := waitSummary(t, done)
	assert.Zero(t, sender.Calls())
	assert.Equal(t, 1, sum.Cancelled)
	assert.Empty(t, ledger.Entries())
	assert.True(t, state.Cancelled())
}

func TestRunPublishesOutcomes(t *testing.T) {
	q := queue.NewInMemoryQueue(zerolog.Nop())
	var mu sync.Mutex
	got := map[string]string{}
	require.NoError(t, q.Subscribe(service.DefaultOutcomeTopic, func(payload any) error {
		e, err := queue.DecodeEntry(payload)
		if err != nil {
			return err
		}
		mu.Lock()
		got[e.Phone] = e.Status
		mu.Unlock()
		return nil
	}))

	svc := newDispatcher(repository.NewMemoryLedger(), &MockSender{})
	svc.Queue = q
	_, err := svc.Run(context.Background(), nil, recipients("1", "2"), nameMapping, oneTemplate, service.RunOptions{Workers: 2})
	require.NoError(t, err)
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{"1": model.StatusDelivered, "2": model.StatusDelivered}, got)
}

func TestFilterSent(t *testing.T) {
	recs := []model.Recipient{{"telefone": "A"}, {"telefone": ""}, {"telefone": "B"}, {"telefone": "C"}}

	got := service.FilterSent(recs, map[string]struct{}{"B": {}, "": {}})

	assert.Equal(t, []model.Recipient{{"telefone": "A"}, {"telefone": ""}, {"telefone": "C"}}, got)
}

func TestFormatSummary(t *testing.T) {
	sum := model.NewSummary("ns")
	sum.Total, sum.Filtered, sum.Submitted, sum.Delivered, sum.Rejected = 5, 1, 4, 3, 1

	out := service.FormatSummary(sum)

	assert.Contains(t, out, "namespace=ns total=5 already_sent=1 submitted=4")
	assert.Contains(t, out, "delivered=3 rejected=1 errors=0 skipped=0 cancelled=0")
}

func TestRunPauseHoldsSkipEntries(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	sender := &MockSender{}
	state := service.NewRunState()
	state.Pause()

	recs := []model.Recipient{{"nome": "x"}, {"telefone": "1", "nome": "y"}}
	done := runAsync(t, newDispatcher(ledger, sender), state, recs, service.RunOptions{Workers: 1})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, ledger.Entries(), "nothing is written while paused")
	assert.Zero(t, sender.Calls())

	state.Resume()
	sum := waitSummary(t, done)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Delivered)
	assert.Len(t, ledger.Entries(), 2)
}

func TestRunCancelWhilePausedWritesNoSkipEntries(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	state := service.NewRunState()
	state.Pause()

	done := runAsync(t, newDispatcher(ledger, &MockSender{}), state, []model.Recipient{{"nome": "no phone"}}, service.RunOptions{Workers: 1})

	time.Sleep(30 * time.Millisecond)
	state.Cancel()

	sum := waitSummary(t, done)
	assert.Equal(t, 1, sum.Cancelled)
	assert.Zero(t, sum.Skipped)
	assert.Empty(t, ledger.Entries())
}

func TestRunPanicIsRecordedAsException(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	sender := &MockSender{outcome: func(p model.Payload) model.Outcome {
		if p.To == "boom" {
			panic("sender exploded")
		}
		return model.Outcome{Kind: model.Delivered, StatusCode: 200, Body: "ok"}
	}}

	sum, err := newDispatcher(ledger, sender).Run(context.Background(), nil, recipients("boom", "fine"), nameMapping, oneTemplate, service.RunOptions{Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 1, sum.Delivered)

	var found bool
	for _, e := range ledger.Entries() {
		if e.Phone == "boom" {
			found = true
			assert.Equal(t, model.StatusException, e.Status)
			assert.Contains(t, e.Details, "sender exploded")
		}
	}
	assert.True(t, found, "panicking recipient has a ledger entry")
}

func TestRunSeparatorInPhoneIsNotResent(t *testing.T) {
	ledger := repository.NewFileLedger(filepath.Join(t.TempDir(), "sent_log.csv"))

	first := &MockSender{}
	_, err := newDispatcher(ledger, first).Run(context.Background(), nil, recipients("55,11"), nameMapping, oneTemplate, service.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Calls())

	second := &MockSender{}
	sum, err := newDispatcher(ledger, second).Run(context.Background(), nil, recipients("55,11"), nameMapping, oneTemplate, service.RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, second.Calls())
	assert.Equal(t, 1, sum.Filtered)
}

func TestFilterSentMatchesSanitizedPhone(t *testing.T) {
	recs := []model.Recipient{{"telefone": "a,b"}, {"telefone": "c"}}

	got := service.FilterSent(recs, map[string]struct{}{"a;b": {}})

	assert.Equal(t, []model.Recipient{{"telefone": "c"}}, got)
}
