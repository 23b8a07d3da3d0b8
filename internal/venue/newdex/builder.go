// Package newdex places orders on the Newdex on-chain exchange. Orders are
// token transfers to the exchange's custodial account with the order encoded
// in the transfer memo.
package newdex

import (
	"encoding/json"
	"fmt"
	"strings"

	"crypto-client/internal/core"
	"crypto-client/internal/eosio"
	"crypto-client/internal/numfmt"

	"github.com/shopspring/decimal"
)

const (
	Venue          = "newdex"
	Custodian      = "newdexpocket"
	PublicContract = "newdexpublic"
	Channel        = "dapp"

	EOSSymbol    = "EOS"
	EOSPrecision = 4
)

type OrderType string

const (
	BuyLimit   OrderType = "buy-limit"
	SellLimit  OrderType = "sell-limit"
	BuyMarket  OrderType = "buy-market"
	SellMarket OrderType = "sell-market"
)

type Memo struct {
	Type    OrderType `json:"type"`
	Symbol  string    `json:"symbol"`
	Price   string    `json:"price,omitempty"`
	Channel string    `json:"channel"`
	Ref     string    `json:"ref,omitempty"`
}

// TransferAction is one order, ready to be signed. It is consumed once.
type TransferAction struct {
	Contract string
	From     string
	To       string
	Quantity eosio.Asset
	Memo     Memo
}

func (t TransferAction) MemoString() (string, error) {
	raw, err := json.Marshal(t.Memo)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (t TransferAction) Action() (eosio.Action, error) {
	memo, err := t.MemoString()
	if err != nil {
		return eosio.Action{}, err
	}
	return eosio.TransferAction(t.Contract, eosio.Transfer{
		From:     t.From,
		To:       t.To,
		Quantity: t.Quantity,
		Memo:     memo,
	})
}

// BuildOrder builds a limit order. A buy transfers price*quantity of the quote
// token rounded up; a sell transfers quantity of the base token.
func BuildOrder(account string, pair core.TradingPair, price, quantity decimal.Decimal, side core.Side, ref string) (TransferAction, error) {
	if err := checkPair(account, pair); err != nil {
		return TransferAction{}, err
	}
	if !price.IsPositive() || !quantity.IsPositive() {
		return TransferAction{}, fmt.Errorf("%w: price and quantity must be positive", core.ErrInvalidOrder)
	}
	if pair.MinOrderVolume.IsPositive() && price.Mul(quantity).LessThan(pair.MinOrderVolume) {
		return TransferAction{}, fmt.Errorf("%w: volume %s below minimum %s", core.ErrInvalidOrder, price.Mul(quantity), pair.MinOrderVolume)
	}
	priceText, err := numfmt.NumberToString(price, pair.PricePrecision, false)
	if err != nil {
		return TransferAction{}, err
	}
	var (
		orderType OrderType
		quantityA eosio.Asset
	)
	switch side {
	case core.Buy:
		orderType = BuyLimit
		quantityA, err = asset(price.Mul(quantity), pair.QuoteSymbol, pair.QuotePrecision, true)
	case core.Sell:
		orderType = SellLimit
		quantityA, err = asset(quantity, pair.BaseSymbol, pair.BasePrecision, false)
	default:
		return TransferAction{}, fmt.Errorf("%w: unknown side %q", core.ErrInvalidOrder, side)
	}
	if err != nil {
		return TransferAction{}, err
	}
	return newTransfer(account, pair, side, quantityA, Memo{
		Type:    orderType,
		Symbol:  pair.Raw,
		Price:   priceText,
		Channel: Channel,
		Ref:     ref,
	}), nil
}

// BuildMarketOrder builds a market order. For a buy amount is the quote to
// spend, for a sell the base to sell.
func BuildMarketOrder(account string, pair core.TradingPair, amount decimal.Decimal, side core.Side, ref string) (TransferAction, error) {
	if err := checkPair(account, pair); err != nil {
		return TransferAction{}, err
	}
	if !amount.IsPositive() {
		return TransferAction{}, fmt.Errorf("%w: amount must be positive", core.ErrInvalidOrder)
	}
	var (
		orderType OrderType
		quantityA eosio.Asset
		err       error
	)
	switch side {
	case core.Buy:
		orderType = BuyMarket
		quantityA, err = asset(amount, pair.QuoteSymbol, pair.QuotePrecision, true)
	case core.Sell:
		orderType = SellMarket
		quantityA, err = asset(amount, pair.BaseSymbol, pair.BasePrecision, false)
	default:
		return TransferAction{}, fmt.Errorf("%w: unknown side %q", core.ErrInvalidOrder, side)
	}
	if err != nil {
		return TransferAction{}, err
	}
	return newTransfer(account, pair, side, quantityA, Memo{
		Type:    orderType,
		Symbol:  pair.Raw,
		Channel: Channel,
		Ref:     ref,
	}), nil
}

func newTransfer(account string, pair core.TradingPair, side core.Side, quantity eosio.Asset, memo Memo) TransferAction {
	contract := pair.QuoteContract
	if side == core.Sell {
		contract = pair.BaseContract
	}
	return TransferAction{
		Contract: contract,
		From:     account,
		To:       Custodian,
		Quantity: quantity,
		Memo:     memo,
	}
}

func checkPair(account string, pair core.TradingPair) error {
	if strings.TrimSpace(account) == "" {
		return core.Configf("eos account is required")
	}
	if pair.Raw == "" || pair.BaseContract == "" || pair.QuoteContract == "" {
		return core.Configf("pair %s is missing on-chain symbol or contracts", pair.Normalized)
	}
	if pair.QuoteSymbol == EOSSymbol && pair.QuotePrecision != EOSPrecision {
		return core.Configf("pair %s quote precision %d does not match EOS precision %d", pair.Normalized, pair.QuotePrecision, EOSPrecision)
	}
	return nil
}

func asset(amount decimal.Decimal, symbol string, precision int32, roundUp bool) (eosio.Asset, error) {
	text, err := numfmt.NumberToString(amount, precision, roundUp)
	if err != nil {
		return eosio.Asset{}, err
	}
	out, err := eosio.NewAsset(text, eosio.Symbol{Precision: uint8(precision), Code: symbol})
	if err != nil {
		return eosio.Asset{}, core.Configf("%v", err)
	}
	if out.Amount <= 0 {
		return eosio.Asset{}, fmt.Errorf("%w: %s rounds to zero at precision %d", core.ErrInvalidOrder, amount, precision)
	}
	return out, nil
}
