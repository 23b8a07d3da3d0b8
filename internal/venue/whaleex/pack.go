// Package whaleex talks to the WhaleEx exchange. Orders are authorized with an
// EOS key signature over a fixed binary layout and submitted over REST.
package whaleex

import (
	"encoding/binary"
	"fmt"
	"time"

	"crypto-client/internal/core"
	"crypto-client/internal/numfmt"

	"github.com/shopspring/decimal"
)

const (
	Venue = "whaleex"
	// Exchange is the counter-account every order is signed against.
	Exchange = "whaleexchang"
)

// Fee markers trail every packed order.
const (
	makerMarker uint16 = 10
	takerMarker uint16 = 10
)

type OrderType string

const (
	BuyLimit   OrderType = "buy-limit"
	SellLimit  OrderType = "sell-limit"
	BuyMarket  OrderType = "buy-market"
	SellMarket OrderType = "sell-market"
)

// Order is what gets signed. For market buys Quantity is the quote amount to
// spend and Price is ignored.
type Order struct {
	Account   string
	OrderID   uint64
	Timestamp time.Time
	Type      OrderType
	Pair      core.TradingPair
	Price     decimal.Decimal
	Quantity  decimal.Decimal
}

type leg struct {
	contract string
	symbol   string
	amount   uint64
}

// Pack serializes o for signing: account, counter-account, order id (u64 LE),
// timestamp (u32 LE seconds), the give and receive legs, then the markers.
func (o Order) Pack() ([]byte, error) {
	if o.Account == "" {
		return nil, core.Configf("whaleex account is required")
	}
	give, receive, err := o.legs()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 128)
	buf = append(buf, o.Account...)
	buf = append(buf, Exchange...)
	buf = binary.LittleEndian.AppendUint64(buf, o.OrderID)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(o.Timestamp.Unix()))
	for _, l := range []leg{give, receive} {
		buf = append(buf, l.contract...)
		buf = append(buf, l.symbol...)
		buf = binary.LittleEndian.AppendUint64(buf, l.amount)
	}
	buf = binary.LittleEndian.AppendUint16(buf, makerMarker)
	buf = binary.LittleEndian.AppendUint16(buf, takerMarker)
	return buf, nil
}

func (o Order) legs() (leg, leg, error) {
	p := o.Pair
	base := func(amount uint64) leg { return leg{p.BaseContract, p.BaseSymbol, amount} }
	quote := func(amount uint64) leg { return leg{p.QuoteContract, p.QuoteSymbol, amount} }
	volume := o.Price.Mul(o.Quantity)
	switch o.Type {
	case BuyLimit:
		pay, err := numfmt.Scaled(volume, p.QuotePrecision, true)
		if err != nil {
			return leg{}, leg{}, err
		}
		get, err := numfmt.Scaled(o.Quantity, p.BasePrecision, false)
		return quote(pay), base(get), err
	case SellLimit:
		pay, err := numfmt.Scaled(o.Quantity, p.BasePrecision, false)
		if err != nil {
			return leg{}, leg{}, err
		}
		get, err := numfmt.Scaled(volume, p.QuotePrecision, false)
		return base(pay), quote(get), err
	case BuyMarket:
		pay, err := numfmt.Scaled(o.Quantity, p.QuotePrecision, true)
		return quote(pay), base(0), err
	case SellMarket:
		pay, err := numfmt.Scaled(o.Quantity, p.BasePrecision, false)
		return base(pay), quote(0), err
	default:
		return leg{}, leg{}, fmt.Errorf("%w: unknown whaleex order type %q", core.ErrInvalidOrder, o.Type)
	}
}

// OrderTypeFor maps an intent's side and kind to its order type.
func OrderTypeFor(intent core.OrderIntent) (OrderType, error) {
	if err := intent.CheckKind(Venue, true); err != nil {
		return "", err
	}
	market := intent.IsMarket()
	switch {
	case intent.Side == core.Buy && market:
		return BuyMarket, nil
	case intent.Side == core.Buy:
		return BuyLimit, nil
	case intent.Side == core.Sell && market:
		return SellMarket, nil
	case intent.Side == core.Sell:
		return SellLimit, nil
	default:
		return "", fmt.Errorf("%w: unknown side %q", core.ErrInvalidOrder, intent.Side)
	}
}
