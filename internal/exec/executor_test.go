package exec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"crypto-client/internal/alerts"
	"crypto-client/internal/core"
	"crypto-client/internal/journal"
	"crypto-client/internal/metrics"
	"crypto-client/internal/retry"
	"crypto-client/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }

type mockTrader struct {
	mu       sync.Mutex
	calls    int
	errs     []error
	id       core.OrderIdentifier
	canceled []core.OrderIdentifier
	cloids   []string
	delay    time.Duration
	queries  int
	queryErr []error
}

func (m *mockTrader) PlaceOrder(_ context.Context, _ string, intent core.OrderIntent) (core.OrderIdentifier, error) {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.cloids = append(m.cloids, intent.ClientOrderID)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return core.OrderIdentifier{}, err
		}
	}
	return m.id, nil
}

func (m *mockTrader) CancelOrder(_ context.Context, _, _ string, id core.OrderIdentifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled = append(m.canceled, id)
	return nil
}

func (m *mockTrader) QueryOrder(_ context.Context, _, _ string, id core.OrderIdentifier) (*core.OrderState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if len(m.queryErr) > 0 {
		err := m.queryErr[0]
		m.queryErr = m.queryErr[1:]
		return nil, err
	}
	return &core.OrderState{ID: id.OrderID, Status: core.OrderOpen}, nil
}

func (m *mockTrader) QueryAllBalances(_ context.Context, _ string) ([]core.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	return []core.Balance{{Asset: "EOS", Available: decimal.NewFromInt(1)}}, nil
}

type countingVenue struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingVenue) Inc(venue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[venue]++
}

func (c *countingVenue) get(venue string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[venue]
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []alerts.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event alerts.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type recordingJournal struct {
	mu     sync.Mutex
	events []journal.OrderEvent
}

func (r *recordingJournal) Record(event journal.OrderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type harness struct {
	store    *memoryStore
	placed   *countingVenue
	failed   *countingVenue
	partial  *countingVenue
	canceled *countingVenue
	notifier *recordingNotifier
	journal  *recordingJournal
}

func newHarness() *harness {
	return &harness{
		store:    newMemoryStore(),
		placed:   &countingVenue{},
		failed:   &countingVenue{},
		partial:  &countingVenue{},
		canceled: &countingVenue{},
		notifier: &recordingNotifier{},
		journal:  &recordingJournal{},
	}
}

func (h *harness) executor(trader Trader, reads retry.Policy) *Executor {
	m := metrics.NewNoop()
	m.OrdersPlaced = h.placed
	m.OrdersFailed = h.failed
	m.PartialSuccesses = h.partial
	m.OrdersCanceled = h.canceled
	e := New(trader, Options{
		Store:     h.store,
		Metrics:   m,
		Notifier:  h.notifier,
		Journal:   h.journal,
		ReadRetry: reads,
	}, zap.NewNop())
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return e
}

func order(cloid string) core.OrderIntent {
	return core.OrderIntent{
		Pair:          "eidos_eos",
		Price:         decimal.RequireFromString("0.00121"),
		Quantity:      decimal.RequireFromString("9.2644"),
		Side:          core.Buy,
		ClientOrderID: cloid,
	}
}

func TestExecutorIdempotentPlacement(t *testing.T) {
	h := newHarness()
	trader := &mockTrader{id: core.OrderIdentifier{OrderID: "oid-1"}}
	executor := h.executor(trader, retry.Policy{})
	ctx := context.Background()

	first, err := executor.PlaceOrder(ctx, "Kraken", order("abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := executor.PlaceOrder(ctx, "kraken", order("abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second || first.OrderID != "oid-1" {
		t.Fatalf("expected same receipt, got %+v and %+v", first, second)
	}
	if trader.calls != 1 {
		t.Fatalf("expected 1 placement, got %d", trader.calls)
	}
	if h.placed.get("kraken") != 1 || len(h.journal.events) != 1 {
		t.Fatalf("expected one placed metric and journal event")
	}

	restarted := h.executor(&mockTrader{id: core.OrderIdentifier{OrderID: "oid-2"}}, retry.Policy{})
	third, err := restarted.PlaceOrder(ctx, "kraken", order("abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.OrderID != "oid-1" {
		t.Fatalf("expected stored order id oid-1, got %s", third.OrderID)
	}
}

func TestExecutorGeneratesClientOrderID(t *testing.T) {
	h := newHarness()
	trader := &mockTrader{id: core.OrderIdentifier{OrderID: "oid"}}
	executor := h.executor(trader, retry.Policy{})
	receipt, err := executor.PlaceOrder(context.Background(), "kraken", order(""))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(receipt.ClientOrderID) != 36 || trader.cloids[0] != receipt.ClientOrderID {
		t.Fatalf("expected generated uuid passed to the venue, got %q", receipt.ClientOrderID)
	}
	if receipt.Pair != "EIDOS_EOS" || receipt.CreatedAtMS != 1700000000000 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestExecutorRecordsPartialSuccess(t *testing.T) {
	h := newHarness()
	partial := &core.PartialSuccessError{TxID: "tx-1", Err: core.Shapef("2 action traces")}
	trader := &mockTrader{errs: []error{partial}}
	executor := h.executor(trader, retry.Policy{Attempts: 3, Backoff: time.Millisecond, Retryable: RetryNetworkOnly})
	ctx := context.Background()

	receipt, err := executor.PlaceOrder(ctx, "newdex", order("p1"))
	if got, ok := core.AsPartialSuccess(err); !ok || got.TxID != "tx-1" {
		t.Fatalf("expected partial success, got %v", err)
	}
	if receipt.Status != state.ReceiptPartial || receipt.TxID != "tx-1" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if trader.calls != 1 {
		t.Fatalf("expected partial success not retried, got %d calls", trader.calls)
	}
	if h.partial.get("newdex") != 1 || len(h.notifier.events) != 1 {
		t.Fatalf("expected partial metric and alert")
	}
	if h.notifier.events[0].TxID != "tx-1" || h.notifier.events[0].Kind != alerts.PartialSuccess {
		t.Fatalf("unexpected alert %+v", h.notifier.events[0])
	}

	restarted := h.executor(&mockTrader{id: core.OrderIdentifier{OrderID: "other"}}, retry.Policy{})
	again, err := restarted.PlaceOrder(ctx, "newdex", order("p1"))
	if got, ok := core.AsPartialSuccess(err); !ok || got.TxID != "tx-1" {
		t.Fatalf("expected stored partial success, got %v", err)
	}
	if again.TxID != "tx-1" {
		t.Fatalf("expected stored tx id, got %+v", again)
	}
}

func TestExecutorFailureIsNotRecorded(t *testing.T) {
	h := newHarness()
	trader := &mockTrader{errs: []error{core.ErrInvalidOrder}, id: core.OrderIdentifier{OrderID: "oid"}}
	executor := h.executor(trader, retry.Policy{})
	ctx := context.Background()

	if _, err := executor.PlaceOrder(ctx, "kraken", order("f1")); !errors.Is(err, core.ErrInvalidOrder) {
		t.Fatalf("expected invalid order, got %v", err)
	}
	if h.failed.get("kraken") != 1 || h.journal.events[0].Kind != journal.EventFailed {
		t.Fatalf("expected failure metric and journal event")
	}
	if len(h.notifier.events) != 0 {
		t.Fatalf("expected no alert for a rejected intent, got %+v", h.notifier.events)
	}
	if _, err := executor.PlaceOrder(ctx, "kraken", order("f1")); err != nil {
		t.Fatalf("expected second attempt to place, got %v", err)
	}
	if trader.calls != 2 {
		t.Fatalf("expected 2 placements, got %d", trader.calls)
	}
}

func TestExecutorNeverResendsTimedOutPlacement(t *testing.T) {
	h := newHarness()
	timeout := fmt.Errorf("%w: push_transaction: context deadline exceeded", core.ErrNetwork)
	trader := &mockTrader{errs: []error{timeout}, id: core.OrderIdentifier{OrderID: "oid"}}
	executor := h.executor(trader, retry.Policy{Attempts: 3, Backoff: time.Millisecond, Retryable: RetryNetworkOnly})
	if _, err := executor.PlaceOrder(context.Background(), "newdex", order("n1")); !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if trader.calls != 1 {
		t.Fatalf("expected a single send, got %d", trader.calls)
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0].Kind != alerts.OrderFailed {
		t.Fatalf("expected order failed alert, got %+v", h.notifier.events)
	}
	if !errors.Is(h.notifier.events[0].Err, core.ErrNetwork) {
		t.Fatalf("alert lost its cause: %v", h.notifier.events[0].Err)
	}
}

func TestExecutorRetriesReads(t *testing.T) {
	h := newHarness()
	trader := &mockTrader{queryErr: []error{core.ErrNetwork, core.ErrNetwork}}
	executor := h.executor(trader, retry.Policy{Attempts: 3, Backoff: time.Millisecond, Retryable: RetryNetworkOnly})
	state, err := executor.QueryOrder(context.Background(), "huobi", "EOS_USDT", core.OrderIdentifier{OrderID: "7"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if state.ID != "7" || trader.queries != 3 {
		t.Fatalf("unexpected state %+v after %d queries", state, trader.queries)
	}

	trader.queryErr = []error{core.ErrInvalidOrder}
	if _, err := executor.QueryOrder(context.Background(), "huobi", "EOS_USDT", core.OrderIdentifier{}); !errors.Is(err, core.ErrInvalidOrder) {
		t.Fatalf("expected invalid order, got %v", err)
	}
	if trader.queries != 4 {
		t.Fatalf("expected non-network error not retried, got %d queries", trader.queries)
	}
}

func TestExecutorConcurrentPlacementsShareOneOrder(t *testing.T) {
	h := newHarness()
	trader := &mockTrader{id: core.OrderIdentifier{OrderID: "oid"}, delay: 50 * time.Millisecond}
	executor := h.executor(trader, retry.Policy{})

	var wg sync.WaitGroup
	receipts := make([]state.Receipt, 4)
	errs := make([]error, 4)
	for i := range receipts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i], errs[i] = executor.PlaceOrder(context.Background(), "kraken", order("same"))
		}(i)
	}
	wg.Wait()

	trader.mu.Lock()
	calls := trader.calls
	trader.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one placement for one cloid, got %d", calls)
	}
	for i := range receipts {
		if errs[i] != nil || receipts[i].OrderID != "oid" {
			t.Fatalf("caller %d got %+v err=%v", i, receipts[i], errs[i])
		}
	}
	if h.placed.get("kraken") != 1 {
		t.Fatalf("expected one placed metric, got %d", h.placed.get("kraken"))
	}
}

func TestExecutorCancelByClientID(t *testing.T) {
	h := newHarness()
	trader := &mockTrader{id: core.OrderIdentifier{OrderID: "812", TxID: "tx", PairID: "35"}}
	executor := h.executor(trader, retry.Policy{})
	ctx := context.Background()
	if _, err := executor.PlaceOrder(ctx, "newdex", order("c1")); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := executor.CancelByClientID(ctx, "newdex", "c1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(trader.canceled) != 1 || trader.canceled[0].OrderID != "812" || trader.canceled[0].PairID != "35" {
		t.Fatalf("unexpected cancel %+v", trader.canceled)
	}
	if err := executor.CancelByClientID(ctx, "newdex", "c1"); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if len(trader.canceled) != 1 {
		t.Fatalf("expected canceled receipt to short-circuit, got %d cancels", len(trader.canceled))
	}
	receipt, ok, err := state.LoadReceipt(ctx, h.store, "newdex", "c1")
	if err != nil || !ok || receipt.Status != state.ReceiptCanceled {
		t.Fatalf("expected canceled receipt, got %+v ok=%v err=%v", receipt, ok, err)
	}
	if h.canceled.get("newdex") != 1 {
		t.Fatalf("expected cancel metric")
	}
	if err := executor.CancelByClientID(ctx, "newdex", "missing"); !errors.Is(err, core.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
