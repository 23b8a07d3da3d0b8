package newdex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crypto-client/internal/core"
	"crypto-client/internal/eosio"

	"github.com/shopspring/decimal"
)

const (
	testWIF   = "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3"
	testChain = "aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906"
)

const executedRecord = `{
  "id": "tx1",
  "trx": {"receipt": {"status": "executed"}},
  "execution_trace": {"action_traces": [{
    "act": {"account": "eosio.token", "name": "transfer", "data": {}},
    "inline_traces": [
      {"act": {"account": "eosio.token", "name": "transfer", "data": {}}},
      {"act": {"account": "newdexpocket", "name": "transfer", "data": {}},
       "inline_traces": [{"act": {"account": "newdexlogs", "name": "buyorder", "data": {"order_id": 812, "pair_id": "35"}}}]}
    ]
  }]}
}`

type fakeChain struct {
	mu      sync.Mutex
	record  string
	tables  map[string]string
	pushed  []eosio.SignedTransaction
	queries []eosio.TableQuery
}

func (f *fakeChain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/v1/chain/get_info":
		_, _ = w.Write([]byte(`{"chain_id":"` + testChain + `","head_block_num":100,"head_block_time":"2019-06-01T10:00:00.000","last_irreversible_block_num":90,"last_irreversible_block_id":"0000005a0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c"}`))
	case "/v1/chain/push_transaction":
		var tx eosio.SignedTransaction
		_ = json.NewDecoder(r.Body).Decode(&tx)
		f.pushed = append(f.pushed, tx)
		_, _ = w.Write([]byte(`{"transaction_id":"tx1"}`))
	case "/v1/chain/get_table_rows":
		var q eosio.TableQuery
		_ = json.NewDecoder(r.Body).Decode(&q)
		f.queries = append(f.queries, q)
		body, ok := f.tables[q.Table]
		if !ok {
			body = `{"rows":[],"more":false}`
		}
		_, _ = w.Write([]byte(body))
	case "/v1/history/get_transaction":
		_, _ = w.Write([]byte(f.record))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, chain *fakeChain, signing core.SigningContext) *Client {
	t.Helper()
	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)
	rpc, err := eosio.NewClient([]string{srv.URL}, testChain, time.Second, nil)
	if err != nil {
		t.Fatalf("rpc: %v", err)
	}
	explorer, err := eosio.NewExplorer([]string{srv.URL}, time.Second, nil)
	if err != nil {
		t.Fatalf("explorer: %v", err)
	}
	client, err := New(rpc, explorer, signing, Options{PollInterval: 10 * time.Millisecond, ResolveTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return client
}

func signingContext() core.SigningContext {
	return core.SigningContext{EOSAccount: "alice", EOSPrivateKey: testWIF}
}

func TestPlaceOrderResolvesOrderID(t *testing.T) {
	chain := &fakeChain{record: executedRecord}
	client := newTestClient(t, chain, signingContext())
	id, err := client.PlaceOrder(context.Background(), eidosPair(), core.OrderIntent{
		Pair:     "EIDOS_EOS",
		Price:    decimal.RequireFromString("0.00121"),
		Quantity: decimal.RequireFromString("9.2644"),
		Side:     core.Buy,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id.TxID != "tx1" || id.OrderID != "812" || id.PairID != "35" {
		t.Fatalf("unexpected identifier %+v", id)
	}
	if len(chain.pushed) != 1 {
		t.Fatalf("expected one push, got %d", len(chain.pushed))
	}
}

func TestPlaceOrderReportsPartialSuccess(t *testing.T) {
	chain := &fakeChain{record: `{"id":"tx1","trx":{"receipt":{"status":"hard_fail"}},"execution_trace":{"action_traces":[]}}`}
	client := newTestClient(t, chain, signingContext())
	id, err := client.PlaceOrder(context.Background(), eidosPair(), core.OrderIntent{
		Price:    decimal.RequireFromString("0.00121"),
		Quantity: decimal.RequireFromString("9.2644"),
		Side:     core.Buy,
	})
	partial, ok := core.AsPartialSuccess(err)
	if !ok {
		t.Fatalf("expected partial success, got %v", err)
	}
	if partial.TxID != "tx1" || id.TxID != "tx1" {
		t.Fatalf("transaction id lost: %+v %+v", partial, id)
	}
	if !errors.Is(err, core.ErrProtocolShape) {
		t.Fatalf("expected protocol shape cause, got %v", err)
	}
}

func TestBuildUsesReferralAndOrderKind(t *testing.T) {
	client := newTestClient(t, &fakeChain{}, signingContext())
	client.opts.Referral = "desk"

	limit, err := client.build(eidosPair(), core.OrderIntent{
		Price:         decimal.RequireFromString("0.00121"),
		Quantity:      decimal.RequireFromString("9.2644"),
		Side:          core.Buy,
		ClientOrderID: "5f0c9a4e-client",
	})
	if err != nil {
		t.Fatalf("limit: %v", err)
	}
	if limit.Memo.Type != BuyLimit || limit.Memo.Ref != "desk" {
		t.Fatalf("unexpected limit memo %+v", limit.Memo)
	}

	market, err := client.build(eidosPair(), core.OrderIntent{
		Quantity: decimal.RequireFromString("1.5"),
		Side:     core.Sell,
		Kind:     core.Market,
	})
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if market.Memo.Type != SellMarket || market.Memo.Price != "" || market.Quantity.String() != "1.5000 EIDOS" {
		t.Fatalf("unexpected market order %+v", market)
	}

	if _, err := client.build(eidosPair(), core.OrderIntent{Side: core.Buy, Kind: "stop"}); !errors.Is(err, core.ErrInvalidOrder) {
		t.Fatalf("expected invalid order kind, got %v", err)
	}
}

func TestPlaceOrderRequiresKey(t *testing.T) {
	chain := &fakeChain{}
	client := newTestClient(t, chain, core.SigningContext{EOSAccount: "alice"})
	_, err := client.PlaceOrder(context.Background(), eidosPair(), core.OrderIntent{Side: core.Buy})
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if len(chain.pushed) != 0 {
		t.Fatalf("nothing should be pushed")
	}
}

func TestResolveRecordRejectsUnexpectedTraceCount(t *testing.T) {
	var record eosio.TransactionRecord
	if err := json.Unmarshal([]byte(executedRecord), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := ResolveRecord(record); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
	record.ExecutionTrace.ActionTraces = append(record.ExecutionTrace.ActionTraces, record.ExecutionTrace.ActionTraces[0])
	if _, err := ResolveRecord(record); !errors.Is(err, core.ErrProtocolShape) {
		t.Fatalf("expected protocol shape error, got %v", err)
	}
	record.ExecutionTrace.ActionTraces = nil
	if _, err := ResolveRecord(record); !errors.Is(err, core.ErrProtocolShape) {
		t.Fatalf("expected protocol shape error for empty traces, got %v", err)
	}
}

func TestResolveRecordRejectsMissingIDs(t *testing.T) {
	raw := strings.Replace(executedRecord, `"order_id": 812, `, ``, 1)
	var record eosio.TransactionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := ResolveRecord(record); !errors.Is(err, core.ErrProtocolShape) {
		t.Fatalf("expected protocol shape error, got %v", err)
	}
}

func TestResolveRejectsMultipleTransactions(t *testing.T) {
	client := newTestClient(t, &fakeChain{}, signingContext())
	if _, err := client.Resolve(context.Background(), "a", "b"); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestQueryOrderFallsBackToBuyTable(t *testing.T) {
	chain := &fakeChain{tables: map[string]string{
		"buyorder": `{"rows":[{"id":812,"owner":"alice","price":"0.00121000","quantity":"9.2644 EIDOS","remain_quantity":"4.0000 EIDOS"}],"more":false}`,
	}}
	client := newTestClient(t, chain, signingContext())
	state, err := client.QueryOrder(context.Background(), eidosPair(), core.OrderIdentifier{OrderID: "812", PairID: "35"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if state == nil || state.Side != core.Buy || state.Status != core.OrderPartiallyFilled {
		t.Fatalf("unexpected state %+v", state)
	}
	if !state.Filled.Equal(decimal.RequireFromString("5.2644")) {
		t.Fatalf("unexpected filled %s", state.Filled)
	}
	if len(chain.queries) != 2 || chain.queries[0].Table != "sellorder" {
		t.Fatalf("expected sell then buy lookups, got %+v", chain.queries)
	}
	q := chain.queries[1]
	if q.Scope != "35" || q.LowerBound != "812" || q.UpperBound != "813" || q.Code != PublicContract {
		t.Fatalf("unexpected query %+v", q)
	}
}

func TestQueryOrderNotFoundIsNil(t *testing.T) {
	client := newTestClient(t, &fakeChain{}, signingContext())
	state, err := client.QueryOrder(context.Background(), eidosPair(), core.OrderIdentifier{OrderID: "1", PairID: "2"})
	if err != nil || state != nil {
		t.Fatalf("expected nil state and error, got %+v %v", state, err)
	}
}

func TestCancelOrderPushesCancelAction(t *testing.T) {
	chain := &fakeChain{}
	client := newTestClient(t, chain, signingContext())
	if err := client.CancelOrder(context.Background(), eidosPair(), core.OrderIdentifier{OrderID: "812"}); err != nil {
		t.Fatalf("cancel without pair id: %v", err)
	}
	if len(chain.pushed) != 1 {
		t.Fatalf("expected one push, got %d", len(chain.pushed))
	}
}

func TestQueryAllBalances(t *testing.T) {
	chain := &fakeChain{tables: map[string]string{
		"accounts": `{"rows":[{"balance":"12.3456 EOS"}],"more":false}`,
	}}
	client := newTestClient(t, chain, signingContext())
	balances, err := client.QueryAllBalances(context.Background())
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 1 || balances[0].Asset != "EOS" || !balances[0].Available.Equal(decimal.RequireFromString("12.3456")) {
		t.Fatalf("unexpected balances %+v", balances)
	}
}
