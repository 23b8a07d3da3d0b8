// Package bitstamp is the Bitstamp v2 REST adapter.
package bitstamp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"crypto-client/internal/core"
	"crypto-client/internal/numfmt"
	"crypto-client/internal/signing"
	"crypto-client/internal/venue/rest"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const Venue = "bitstamp"

var errorKinds = map[string]error{
	"order not found":    core.ErrOrderNotFound,
	"you have only":      core.ErrInsufficientBalance,
	"you need":           core.ErrInsufficientBalance,
	"minimum order size": core.ErrInvalidOrder,
}

type Client struct {
	rest   *rest.Client
	creds  core.APICredentials
	nonces *signing.NonceSource
	log    *zap.Logger
}

func New(transport *rest.Client, signingCtx core.SigningContext, log *zap.Logger) (*Client, error) {
	creds, err := signingCtx.Credentials(Venue)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(creds.CustomerID) == "" {
		return nil, core.Configf("bitstamp customer id is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	nonces := signing.NewNonceSource(Venue, creds.Key)
	nonces.SetLogger(log)
	return &Client{rest: transport, creds: creds, nonces: nonces, log: log}, nil
}

func (c *Client) Name() string {
	return Venue
}

func (c *Client) Nonces() *signing.NonceSource {
	return c.nonces
}

// errorReply covers both error shapes Bitstamp uses: {"error": ...} and
// {"status":"error","reason":...}.
type errorReply struct {
	Status string          `json:"status"`
	Reason json.RawMessage `json:"reason"`
	Error  json.RawMessage `json:"error"`
	Code   string          `json:"code"`
}

func (e errorReply) failed() bool {
	return e.Status == "error" || len(e.Error) > 0
}

func (e errorReply) message() string {
	raw := e.Reason
	if len(raw) == 0 {
		raw = e.Error
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var fields map[string][]string
	if err := json.Unmarshal(raw, &fields); err == nil {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			parts = append(parts, strings.Join(fields[k], " "))
		}
		return strings.Join(parts, "; ")
	}
	return string(raw)
}

func (c *Client) private(ctx context.Context, path string, form url.Values, out any) error {
	if form == nil {
		form = url.Values{}
	}
	nonce := c.nonces.Next()
	sig, err := signing.Bitstamp(c.creds.Secret, c.creds.CustomerID, c.creds.Key, nonce)
	if err != nil {
		return core.Configf("%v", err)
	}
	form.Set("key", c.creds.Key)
	form.Set("signature", sig)
	form.Set("nonce", strconv.FormatUint(nonce, 10))
	var raw json.RawMessage
	if err := c.rest.Do(ctx, rest.Request{Method: http.MethodPost, Path: path, Form: form}, &raw); err != nil {
		return err
	}
	var reply errorReply
	if err := json.Unmarshal(raw, &reply); err == nil && reply.failed() {
		return core.ClassifyVenueError(core.VenueError{
			Venue:   Venue,
			Code:    reply.Code,
			Message: reply.message(),
			Payload: string(raw),
		}, errorKinds)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return core.Shapef("bitstamp %s: %v", path, err)
	}
	return nil
}

func (c *Client) PlaceOrder(ctx context.Context, pair core.TradingPair, intent core.OrderIntent) (core.OrderIdentifier, error) {
	if intent.Side != core.Buy && intent.Side != core.Sell {
		return core.OrderIdentifier{}, fmt.Errorf("%w: unknown side %q", core.ErrInvalidOrder, intent.Side)
	}
	if err := intent.CheckKind(Venue, false); err != nil {
		return core.OrderIdentifier{}, err
	}
	price, err := numfmt.NumberToString(intent.Price, pair.PricePrecision, false)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	amount, err := numfmt.NumberToString(intent.Quantity, pair.BasePrecision, false)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	path := fmt.Sprintf("/api/v2/%s/%s/", intent.Side, strings.ToLower(pair.Raw))
	var result struct {
		ID json.Number `json:"id"`
	}
	if err := c.private(ctx, path, url.Values{"amount": {amount}, "price": {price}}, &result); err != nil {
		return core.OrderIdentifier{}, err
	}
	if result.ID == "" {
		return core.OrderIdentifier{}, core.Shapef("bitstamp order reply has no id")
	}
	c.log.Info("bitstamp order placed", zap.String("pair", pair.Normalized), zap.String("order_id", result.ID.String()))
	return core.OrderIdentifier{OrderID: result.ID.String()}, nil
}

func (c *Client) CancelOrder(ctx context.Context, _ core.TradingPair, id core.OrderIdentifier) error {
	if id.OrderID == "" {
		return fmt.Errorf("%w: order id is required", core.ErrInvalidOrder)
	}
	var result struct {
		ID json.Number `json:"id"`
	}
	return c.private(ctx, "/api/v2/cancel_order/", url.Values{"id": {id.OrderID}}, &result)
}

type statusReply struct {
	Status          string     `json:"status"`
	AmountRemaining string     `json:"amount_remaining"`
	Transactions    []statusTx `json:"transactions"`
}

// statusTx is one fill. Amounts are keyed by lower-case currency code.
type statusTx map[string]json.RawMessage

func (t statusTx) amount(key string) (decimal.Decimal, error) {
	raw, ok := t[key]
	if !ok {
		return decimal.Zero, nil
	}
	return core.ParseAmount(strings.Trim(string(raw), `"`))
}

// QueryOrder maps order_status. Bitstamp does not report the original size,
// so Quantity is the filled base amount plus what remains.
func (c *Client) QueryOrder(ctx context.Context, pair core.TradingPair, id core.OrderIdentifier) (*core.OrderState, error) {
	if id.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", core.ErrInvalidOrder)
	}
	var reply statusReply
	if err := c.private(ctx, "/api/v2/order_status/", url.Values{"id": {id.OrderID}}, &reply); err != nil {
		if errors.Is(err, core.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	remaining, err := core.ParseAmount(reply.AmountRemaining)
	if err != nil {
		return nil, err
	}
	state := &core.OrderState{ID: id.OrderID, Pair: pair.Normalized, Remaining: remaining}
	switch strings.ToLower(reply.Status) {
	case "open", "in queue":
		state.Status = core.OrderOpen
		if len(reply.Transactions) > 0 {
			state.Status = core.OrderPartiallyFilled
		}
	case "finished":
		state.Status = core.OrderFilled
	case "canceled":
		state.Status = core.OrderCanceled
	default:
		state.Status = core.OrderUnknown
	}
	base := strings.ToLower(pair.BaseSymbol)
	for i, tx := range reply.Transactions {
		if i == 0 {
			if state.Price, err = tx.amount("price"); err != nil {
				return nil, err
			}
		}
		filled, err := tx.amount(base)
		if err != nil {
			return nil, err
		}
		state.Filled = state.Filled.Add(filled)
	}
	state.Quantity = state.Filled.Add(remaining)
	return state, nil
}

func (c *Client) QueryAllBalances(ctx context.Context) ([]core.Balance, error) {
	var result map[string]string
	if err := c.private(ctx, "/api/v2/balance/", nil, &result); err != nil {
		return nil, err
	}
	byAsset := make(map[string]*core.Balance)
	for key, value := range result {
		asset, kind, ok := strings.Cut(key, "_")
		if !ok || (kind != "available" && kind != "reserved") {
			continue
		}
		amount, err := core.ParseAmount(value)
		if err != nil {
			return nil, err
		}
		b, ok := byAsset[asset]
		if !ok {
			b = &core.Balance{Asset: strings.ToUpper(asset)}
			byAsset[asset] = b
		}
		if kind == "available" {
			b.Available = amount
		} else {
			b.Locked = amount
		}
	}
	out := make([]core.Balance, 0, len(byAsset))
	for _, b := range byAsset {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}
