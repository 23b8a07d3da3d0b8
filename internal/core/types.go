package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type OrderStatus string

const (
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCanceled        OrderStatus = "canceled"
	OrderUnknown         OrderStatus = "unknown"
)

// TradingPair is venue reference data for one market. Values are loaded once
// and shared read-only.
type TradingPair struct {
	Venue          string
	Normalized     string
	Raw            string
	BaseSymbol     string
	QuoteSymbol    string
	BaseContract   string
	QuoteContract  string
	BasePrecision  int32
	QuotePrecision int32
	PricePrecision int32
	MinOrderVolume decimal.Decimal
}

// OrderKind selects limit or market execution. The zero value is a limit
// order.
type OrderKind string

const (
	Limit  OrderKind = "limit"
	Market OrderKind = "market"
)

// OrderIntent is one order to place. For a market order Price is ignored and
// Quantity is the amount given up: the quote to spend on a buy, the base to
// sell on a sell.
type OrderIntent struct {
	Pair          string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Side          Side
	Kind          OrderKind
	ClientOrderID string
}

func (o OrderIntent) IsSell() bool {
	return o.Side == Sell
}

func (o OrderIntent) IsMarket() bool {
	return o.Kind == Market
}

// CheckKind rejects an unknown order kind, and a market order on a venue
// that only takes limit orders.
func (o OrderIntent) CheckKind(venue string, marketOK bool) error {
	switch o.Kind {
	case "", Limit:
		return nil
	case Market:
		if !marketOK {
			return fmt.Errorf("%w: %s takes limit orders only", ErrUnsupported, venue)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown order kind %q", ErrInvalidOrder, o.Kind)
	}
}

// OrderIdentifier is either a plain venue order id or, for on-chain venues,
// the transaction id together with the order/pair ids recovered from it.
type OrderIdentifier struct {
	OrderID string
	TxID    string
	PairID  string
}

func (id OrderIdentifier) String() string {
	if id.TxID == "" {
		return id.OrderID
	}
	if id.OrderID == "" {
		return id.TxID
	}
	return id.TxID + ":" + id.OrderID
}

type OrderState struct {
	ID        string
	Pair      string
	Side      Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Filled    decimal.Decimal
	Remaining decimal.Decimal
	Status    OrderStatus
}

type Balance struct {
	Asset     string
	Available decimal.Decimal
	Locked    decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

// SplitPair splits a normalized pair such as EIDOS_EOS into its base and
// quote symbols.
func SplitPair(pair string) (string, string, error) {
	parts := strings.Split(pair, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", InvalidPairError(pair)
	}
	return parts[0], parts[1], nil
}

// ParseAmount parses a decimal string from a venue reply. Empty means zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, Shapef("invalid number %q", s)
	}
	return d, nil
}
