package whaleex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crypto-client/internal/core"
	"crypto-client/internal/eosio"
	"crypto-client/internal/venue/rest"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	transport, err := rest.New(Venue, srv.URL, time.Second, nil)
	if err != nil {
		t.Fatalf("rest: %v", err)
	}
	client, err := New(transport, core.SigningContext{
		EOSAccount:    "alice",
		EOSPrivateKey: testWIF,
		APIKeys:       map[string]core.APICredentials{Venue: {Key: "key", Secret: "secret"}},
	}, Options{}, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	client.now = func() time.Time { return time.Unix(1556000000, 0) }
	return client
}

func TestPlaceOrderSignsWithPooledID(t *testing.T) {
	var placed placeRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Signature") == "" || r.URL.Query().Get("APIKey") != "key" {
			t.Errorf("request not signed: %s", r.URL.RawQuery)
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/order/orderIds"):
			_, _ = w.Write([]byte(`{"returnCode":"0","result":{"list":["9001","9002"],"remark":"x"}}`))
		case strings.HasSuffix(r.URL.Path, "/order/orders/place"):
			_ = json.NewDecoder(r.Body).Decode(&placed)
			_, _ = w.Write([]byte(`{"returnCode":"0","result":"9001"}`))
		default:
			http.NotFound(w, r)
		}
	})
	id, err := client.PlaceOrder(context.Background(), testPair(), core.OrderIntent{
		Price:    decimal.RequireFromString("0.001234"),
		Quantity: decimal.RequireFromString("100.5"),
		Side:     core.Buy,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id.OrderID != "9001" || placed.OrderID != "9001" {
		t.Fatalf("unexpected ids %+v %+v", id, placed)
	}
	if placed.Amount != "100.500" || placed.Price != "0.001234" || placed.Symbol != "IQEOS" {
		t.Fatalf("unexpected request %+v", placed)
	}
	sig, err := eosio.ParseSignature(placed.Sig)
	if err != nil {
		t.Fatalf("signature: %v", err)
	}
	expected, _ := client.signer.Sign(Order{
		OrderID:   9001,
		Timestamp: time.Unix(1556000000, 0),
		Type:      BuyLimit,
		Pair:      testPair(),
		Price:     decimal.RequireFromString("0.001234"),
		Quantity:  decimal.RequireFromString("100.5"),
	})
	if sig.String() != expected {
		t.Fatalf("signature does not cover the submitted order")
	}
}

func TestPlaceMarketBuySignsMarketOrder(t *testing.T) {
	var placed placeRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/order/orderIds"):
			_, _ = w.Write([]byte(`{"returnCode":"0","result":{"list":["9001"],"remark":"x"}}`))
		case strings.HasSuffix(r.URL.Path, "/order/orders/place"):
			_ = json.NewDecoder(r.Body).Decode(&placed)
			_, _ = w.Write([]byte(`{"returnCode":"0","result":"9001"}`))
		default:
			http.NotFound(w, r)
		}
	})
	if _, err := client.PlaceOrder(context.Background(), testPair(), core.OrderIntent{
		Quantity: decimal.RequireFromString("2.5"),
		Side:     core.Buy,
		Kind:     core.Market,
	}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if placed.Type != "market" || placed.Price != "" || placed.Amount != "2.5000" {
		t.Fatalf("unexpected request %+v", placed)
	}
	expected, _ := client.signer.Sign(Order{
		OrderID:   9001,
		Timestamp: time.Unix(1556000000, 0),
		Type:      BuyMarket,
		Pair:      testPair(),
		Quantity:  decimal.RequireFromString("2.5"),
	})
	sig, err := eosio.ParseSignature(placed.Sig)
	if err != nil || sig.String() != expected {
		t.Fatalf("signature does not cover the market order: %v", err)
	}
}

func TestQueryOrderNotFoundIsNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"returnCode":"1004","message":"Order not found"}`))
	})
	state, err := client.QueryOrder(context.Background(), testPair(), core.OrderIdentifier{OrderID: "1"})
	if err != nil || state != nil {
		t.Fatalf("expected nil state and error, got %+v %v", state, err)
	}
}

func TestQueryOrderParsesState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"returnCode":"0","result":{"orderId":"7","side":"SELL","price":"0.0012","origQty":"10","executedQty":"4","status":"PARTIALLY_FILLED"}}`))
	})
	state, err := client.QueryOrder(context.Background(), testPair(), core.OrderIdentifier{OrderID: "7"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if state.Side != core.Sell || state.Status != core.OrderPartiallyFilled || !state.Remaining.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestVenueErrorsAreClassified(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"returnCode":"2001","message":"Insufficient balance"}`))
	})
	err := client.CancelOrder(context.Background(), testPair(), core.OrderIdentifier{OrderID: "7"})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	venueErr, ok := core.AsVenueError(err)
	if !ok || venueErr.Code != "2001" {
		t.Fatalf("expected venue error payload, got %v", err)
	}
}

func TestQueryAllBalances(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"returnCode":"0","result":{"list":[{"currency":"eos","availableAmount":"1.5","frozenAmount":"0.5"}]}}`))
	})
	balances, err := client.QueryAllBalances(context.Background())
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 1 || balances[0].Asset != "EOS" || !balances[0].Total().Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected balances %+v", balances)
	}
}

func TestNewRequiresAPICredentials(t *testing.T) {
	transport, _ := rest.New(Venue, "http://localhost", time.Second, nil)
	_, err := New(transport, core.SigningContext{EOSAccount: "alice", EOSPrivateKey: testWIF}, Options{}, nil)
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
