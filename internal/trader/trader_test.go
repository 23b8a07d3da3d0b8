package trader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"crypto-client/internal/core"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeVenue struct {
	name     string
	placed   atomic.Int32
	placeErr error
	id       core.OrderIdentifier
	state    *core.OrderState
	lastPair core.TradingPair
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) PlaceOrder(ctx context.Context, pair core.TradingPair, intent core.OrderIntent) (core.OrderIdentifier, error) {
	f.placed.Add(1)
	f.lastPair = pair
	return f.id, f.placeErr
}

func (f *fakeVenue) CancelOrder(ctx context.Context, pair core.TradingPair, id core.OrderIdentifier) error {
	f.lastPair = pair
	return nil
}

func (f *fakeVenue) QueryOrder(ctx context.Context, pair core.TradingPair, id core.OrderIdentifier) (*core.OrderState, error) {
	return f.state, nil
}

func (f *fakeVenue) QueryAllBalances(ctx context.Context) ([]core.Balance, error) {
	return []core.Balance{{Asset: "EOS", Available: decimal.NewFromInt(3)}}, nil
}

type countingPairs struct {
	calls atomic.Int32
}

func (c *countingPairs) PairInfo(ctx context.Context, venue, pair string) (core.TradingPair, error) {
	c.calls.Add(1)
	base, quote, err := core.SplitPair(pair)
	if err != nil {
		return core.TradingPair{}, err
	}
	return core.TradingPair{Venue: venue, Normalized: pair, BaseSymbol: base, QuoteSymbol: quote}, nil
}

var eosSigning = core.SigningContext{EOSAccount: "trader1", EOSPrivateKey: "5Kkey"}

func intent(pair string) core.OrderIntent {
	return core.OrderIntent{
		Pair:     pair,
		Price:    decimal.RequireFromString("0.00121"),
		Quantity: decimal.RequireFromString("9.2644"),
		Side:     core.Buy,
	}
}

func TestPlaceOrderDispatchesByVenue(t *testing.T) {
	pairs := &countingPairs{}
	kraken := &fakeVenue{name: "kraken", id: core.OrderIdentifier{OrderID: "OABC"}}
	newdex := &fakeVenue{name: "newdex", id: core.OrderIdentifier{TxID: "tx", OrderID: "812"}}
	tr := New(pairs, eosSigning, zap.NewNop(), kraken, newdex)

	id, err := tr.PlaceOrder(context.Background(), "Kraken", intent("xbt_usd"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id.OrderID != "OABC" || kraken.placed.Load() != 1 || newdex.placed.Load() != 0 {
		t.Fatalf("expected kraken dispatch, got id=%+v", id)
	}
	if kraken.lastPair.Normalized != "XBT_USD" {
		t.Fatalf("expected normalized pair, got %q", kraken.lastPair.Normalized)
	}
	if _, err := tr.PlaceOrder(context.Background(), "newdex", intent("EIDOS_EOS")); err != nil {
		t.Fatalf("place newdex: %v", err)
	}
	if got := tr.Venues(); len(got) != 2 || got[0] != "kraken" || got[1] != "newdex" {
		t.Fatalf("unexpected venues %v", got)
	}
}

func TestValidationHappensBeforeIO(t *testing.T) {
	pairs := &countingPairs{}
	newdex := &fakeVenue{name: "newdex"}
	tr := New(pairs, core.SigningContext{}, zap.NewNop(), newdex)

	cases := []struct {
		venue string
		pair  string
	}{
		{"binance", "BTC_USDT"},
		{"kraken", "XBT_USD"},
		{"newdex", "EIDOSEOS"},
		{"newdex", "A_B_C"},
		{"newdex", "EIDOS_EOS"},
	}
	for _, tc := range cases {
		_, err := tr.PlaceOrder(context.Background(), tc.venue, intent(tc.pair))
		if !errors.Is(err, core.ErrConfiguration) {
			t.Fatalf("%s %s: expected configuration error, got %v", tc.venue, tc.pair, err)
		}
	}
	if pairs.calls.Load() != 0 || newdex.placed.Load() != 0 {
		t.Fatalf("expected no I/O, got %d pair lookups and %d placements", pairs.calls.Load(), newdex.placed.Load())
	}
	if _, err := tr.PlaceOrder(context.Background(), "newdex", intent("EIDOS_USDT")); err != nil {
		t.Fatalf("expected non-EOS quote to skip key check, got %v", err)
	}
}

func TestErrorsPassThroughUnchanged(t *testing.T) {
	partial := &core.PartialSuccessError{TxID: "tx1", Err: core.ErrProtocolShape}
	newdex := &fakeVenue{name: "newdex", id: core.OrderIdentifier{TxID: "tx1"}, placeErr: partial}
	tr := New(&countingPairs{}, eosSigning, zap.NewNop(), newdex)

	id, err := tr.PlaceOrder(context.Background(), "newdex", intent("EIDOS_EOS"))
	if err != error(partial) {
		t.Fatalf("expected the adapter error unchanged, got %v", err)
	}
	if id.TxID != "tx1" {
		t.Fatalf("expected tx id alongside partial success, got %+v", id)
	}
}

func TestQueryCancelAndBalances(t *testing.T) {
	kraken := &fakeVenue{name: "kraken"}
	tr := New(&countingPairs{}, core.SigningContext{}, zap.NewNop(), kraken)
	state, err := tr.QueryOrder(context.Background(), "kraken", "XBT_USD", core.OrderIdentifier{OrderID: "x"})
	if err != nil || state != nil {
		t.Fatalf("expected not found as nil state, got %+v err=%v", state, err)
	}
	if err := tr.CancelOrder(context.Background(), "kraken", "XBT_USD", core.OrderIdentifier{OrderID: "x"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	balances, err := tr.QueryAllBalances(context.Background(), "kraken")
	if err != nil || len(balances) != 1 {
		t.Fatalf("unexpected balances %+v err=%v", balances, err)
	}
	if _, err := tr.QueryAllBalances(context.Background(), "huobi"); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("expected configuration error for unregistered venue, got %v", err)
	}
}
