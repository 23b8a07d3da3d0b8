package whaleex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"crypto-client/internal/core"

	"github.com/shopspring/decimal"
)

const testWIF = "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3"

func testPair() core.TradingPair {
	return core.TradingPair{
		Venue:          Venue,
		Normalized:     "IQ_EOS",
		Raw:            "IQEOS",
		BaseSymbol:     "IQ",
		QuoteSymbol:    "EOS",
		BaseContract:   "everipediaiq",
		QuoteContract:  "eosio.token",
		BasePrecision:  3,
		QuotePrecision: 4,
		PricePrecision: 6,
	}
}

func testOrder() Order {
	return Order{
		Account:   "alice",
		OrderID:   1234567,
		Timestamp: time.Unix(1556000000, 0),
		Type:      BuyLimit,
		Pair:      testPair(),
		Price:     decimal.RequireFromString("0.001234"),
		Quantity:  decimal.RequireFromString("100.5"),
	}
}

func TestPackLayout(t *testing.T) {
	packed, err := testOrder().Pack()
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	var want bytes.Buffer
	want.WriteString("alice")
	want.WriteString("whaleexchang")
	_ = binary.Write(&want, binary.LittleEndian, uint64(1234567))
	_ = binary.Write(&want, binary.LittleEndian, uint32(1556000000))
	// buyer pays ceil(0.001234 * 100.5 * 10^4) = ceil(1240.17) EOS units
	want.WriteString("eosio.tokenEOS")
	_ = binary.Write(&want, binary.LittleEndian, uint64(1241))
	want.WriteString("everipediaiqIQ")
	_ = binary.Write(&want, binary.LittleEndian, uint64(100500))
	_ = binary.Write(&want, binary.LittleEndian, uint16(10))
	_ = binary.Write(&want, binary.LittleEndian, uint16(10))
	if !bytes.Equal(packed, want.Bytes()) {
		t.Fatalf("unexpected layout\n got %x\nwant %x", packed, want.Bytes())
	}
}

func TestPackSellTruncatesProceeds(t *testing.T) {
	order := testOrder()
	order.Type = SellLimit
	give, receive, err := order.legs()
	if err != nil {
		t.Fatalf("legs: %v", err)
	}
	if give.symbol != "IQ" || give.amount != 100500 {
		t.Fatalf("unexpected give leg %+v", give)
	}
	if receive.symbol != "EOS" || receive.amount != 1240 {
		t.Fatalf("unexpected receive leg %+v", receive)
	}
}

func TestPackMarketOrders(t *testing.T) {
	order := testOrder()
	order.Type = BuyMarket
	order.Quantity = decimal.RequireFromString("1.23456")
	give, receive, err := order.legs()
	if err != nil {
		t.Fatalf("legs: %v", err)
	}
	if give.symbol != "EOS" || give.amount != 12346 || receive.amount != 0 {
		t.Fatalf("unexpected market buy legs %+v %+v", give, receive)
	}
	order.Type = SellMarket
	give, receive, err = order.legs()
	if err != nil {
		t.Fatalf("legs: %v", err)
	}
	if give.symbol != "IQ" || give.amount != 1234 || receive.symbol != "EOS" {
		t.Fatalf("unexpected market sell legs %+v %+v", give, receive)
	}
}

func TestPackRejectsUnknownType(t *testing.T) {
	order := testOrder()
	order.Type = "stop"
	if _, err := order.Pack(); !errors.Is(err, core.ErrInvalidOrder) {
		t.Fatalf("expected invalid order, got %v", err)
	}
}

func TestOrderTypeFor(t *testing.T) {
	cases := []struct {
		side core.Side
		kind core.OrderKind
		want OrderType
	}{
		{core.Buy, "", BuyLimit},
		{core.Sell, core.Limit, SellLimit},
		{core.Buy, core.Market, BuyMarket},
		{core.Sell, core.Market, SellMarket},
	}
	for _, tc := range cases {
		got, err := OrderTypeFor(core.OrderIntent{Side: tc.side, Kind: tc.kind})
		if err != nil || got != tc.want {
			t.Fatalf("OrderTypeFor(%s, %q) = %q, %v", tc.side, tc.kind, got, err)
		}
	}
	if _, err := OrderTypeFor(core.OrderIntent{Side: core.Buy, Kind: "stop"}); !errors.Is(err, core.ErrInvalidOrder) {
		t.Fatalf("expected invalid order kind, got %v", err)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	signer, err := NewSigner(core.SigningContext{EOSAccount: "alice", EOSPrivateKey: testWIF})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	first, err := signer.Sign(testOrder())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	second, err := signer.Sign(testOrder())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if first != second {
		t.Fatalf("signatures differ: %s %s", first, second)
	}
}

func TestSignChangesWithEveryField(t *testing.T) {
	signer, _ := NewSigner(core.SigningContext{EOSAccount: "alice", EOSPrivateKey: testWIF})
	base, _ := signer.Sign(testOrder())
	mutations := map[string]func(*Order){
		"amount":    func(o *Order) { o.Quantity = o.Quantity.Add(decimal.RequireFromString("0.001")) },
		"order id":  func(o *Order) { o.OrderID++ },
		"timestamp": func(o *Order) { o.Timestamp = o.Timestamp.Add(time.Second) },
		"price":     func(o *Order) { o.Price = decimal.RequireFromString("0.002") },
		"type":      func(o *Order) { o.Type = SellLimit },
	}
	for name, mutate := range mutations {
		order := testOrder()
		mutate(&order)
		sig, err := signer.Sign(order)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if sig == base {
			t.Fatalf("changing %s did not change the signature", name)
		}
	}
}

func TestNewSignerRequiresCredentials(t *testing.T) {
	if _, err := NewSigner(core.SigningContext{EOSAccount: "alice"}); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
