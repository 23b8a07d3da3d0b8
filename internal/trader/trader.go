// Package trader is the single entry point for order placement, cancellation,
// order queries and balance reads across every venue.
package trader

import (
	"context"
	"sort"
	"strings"

	"crypto-client/internal/config"
	"crypto-client/internal/core"

	"go.uber.org/zap"
)

// Venue is implemented by every venue adapter.
type Venue interface {
	Name() string
	PlaceOrder(ctx context.Context, pair core.TradingPair, intent core.OrderIntent) (core.OrderIdentifier, error)
	CancelOrder(ctx context.Context, pair core.TradingPair, id core.OrderIdentifier) error
	QueryOrder(ctx context.Context, pair core.TradingPair, id core.OrderIdentifier) (*core.OrderState, error)
	QueryAllBalances(ctx context.Context) ([]core.Balance, error)
}

type PairSource interface {
	PairInfo(ctx context.Context, venue, pair string) (core.TradingPair, error)
}

// eosQuoteVenues sign an EOS transaction for every order quoted in EOS.
var eosQuoteVenues = map[string]bool{config.Newdex: true}

// Trader dispatches by venue name. It never retries; errors from adapters
// are returned unchanged.
type Trader struct {
	venues  map[string]Venue
	pairs   PairSource
	signing core.SigningContext
	log     *zap.Logger
}

func New(pairs PairSource, signing core.SigningContext, log *zap.Logger, venues ...Venue) *Trader {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Trader{
		venues:  make(map[string]Venue, len(venues)),
		pairs:   pairs,
		signing: signing,
		log:     log,
	}
	for _, v := range venues {
		t.venues[strings.ToLower(v.Name())] = v
	}
	return t
}

// Venues lists the registered venue names.
func (t *Trader) Venues() []string {
	out := make([]string, 0, len(t.venues))
	for name := range t.venues {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (t *Trader) PlaceOrder(ctx context.Context, venue string, intent core.OrderIntent) (core.OrderIdentifier, error) {
	v, pair, err := t.resolve(ctx, venue, intent.Pair)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	id, err := v.PlaceOrder(ctx, pair, intent)
	if err != nil {
		t.log.Warn("place order failed",
			zap.String("venue", v.Name()),
			zap.String("pair", pair.Normalized),
			zap.String("side", string(intent.Side)),
			zap.Error(err),
		)
		return id, err
	}
	t.log.Info("order placed",
		zap.String("venue", v.Name()),
		zap.String("pair", pair.Normalized),
		zap.String("side", string(intent.Side)),
		zap.String("order_id", id.String()),
	)
	return id, nil
}

func (t *Trader) CancelOrder(ctx context.Context, venue, pair string, id core.OrderIdentifier) error {
	v, info, err := t.resolve(ctx, venue, pair)
	if err != nil {
		return err
	}
	return v.CancelOrder(ctx, info, id)
}

// QueryOrder returns nil without error when the venue does not know the order.
func (t *Trader) QueryOrder(ctx context.Context, venue, pair string, id core.OrderIdentifier) (*core.OrderState, error) {
	v, info, err := t.resolve(ctx, venue, pair)
	if err != nil {
		return nil, err
	}
	return v.QueryOrder(ctx, info, id)
}

func (t *Trader) QueryAllBalances(ctx context.Context, venue string) ([]core.Balance, error) {
	v, err := t.venue(venue)
	if err != nil {
		return nil, err
	}
	return v.QueryAllBalances(ctx)
}

func (t *Trader) venue(name string) (Venue, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !config.IsVenue(name) {
		return nil, core.Configf("venue %q is not supported", name)
	}
	v, ok := t.venues[name]
	if !ok {
		return nil, core.Configf("venue %s is not configured", name)
	}
	return v, nil
}

// resolve runs every check that needs no I/O before loading pair data.
func (t *Trader) resolve(ctx context.Context, venue, pair string) (Venue, core.TradingPair, error) {
	v, err := t.venue(venue)
	if err != nil {
		return nil, core.TradingPair{}, err
	}
	pair = strings.ToUpper(strings.TrimSpace(pair))
	_, quote, err := core.SplitPair(pair)
	if err != nil {
		return nil, core.TradingPair{}, err
	}
	name := strings.ToLower(v.Name())
	if eosQuoteVenues[name] && quote == "EOS" {
		if err := t.signing.RequireEOS(); err != nil {
			return nil, core.TradingPair{}, err
		}
	}
	info, err := t.pairs.PairInfo(ctx, name, pair)
	if err != nil {
		return nil, core.TradingPair{}, err
	}
	return v, info, nil
}
