// Package huobi is the Huobi spot REST adapter.
package huobi

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
	"sync"
	"time"

	"crypto-client/internal/core"
	"crypto-client/internal/numfmt"
	"crypto-client/internal/signing"
	"crypto-client/internal/venue/rest"

	"go.uber.org/zap"
)

const Venue = "huobi"

var errorKinds = map[string]error{
	"insufficient":        core.ErrInsufficientBalance,
	"base-record-invalid": core.ErrOrderNotFound,
	"order-not-found":     core.ErrOrderNotFound,
	"invalid-amount":      core.ErrInvalidOrder,
	"invalid-price":       core.ErrInvalidOrder,
}

type Client struct {
	rest  *rest.Client
	creds core.APICredentials
	now   func() time.Time
	log   *zap.Logger

	mu        sync.Mutex
	accountID string
}

func New(transport *rest.Client, signingCtx core.SigningContext, log *zap.Logger) (*Client, error) {
	creds, err := signingCtx.Credentials(Venue)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{rest: transport, creds: creds, now: time.Now, log: log}, nil
}

func (c *Client) Name() string {
	return Venue
}

type envelope struct {
	Status  string          `json:"status"`
	ErrCode string          `json:"err-code"`
	ErrMsg  string          `json:"err-msg"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) call(ctx context.Context, method, path string, params map[string]string, body any, out any) error {
	signed := signing.HuobiParams(method, c.rest.Host(), path, c.creds.Key, c.creds.Secret, params, c.now())
	query := signing.CanonicalQuery(signed)
	var env envelope
	if err := c.rest.Do(ctx, rest.Request{Method: method, Path: path, RawQuery: query, JSON: body}, &env); err != nil {
		return err
	}
	if env.Status != "ok" {
		// Kinds are matched against err-code as well as err-msg.
		return core.ClassifyVenueError(core.VenueError{
			Venue:   Venue,
			Code:    env.ErrCode,
			Message: env.ErrCode + ": " + env.ErrMsg,
			Payload: string(env.Data),
		}, errorKinds)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return core.Shapef("huobi %s data: %v", path, err)
	}
	return nil
}

// spotAccount returns the id of the spot account, looked up once.
func (c *Client) spotAccount(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accountID != "" {
		return c.accountID, nil
	}
	var accounts []struct {
		ID    int64  `json:"id"`
		Type  string `json:"type"`
		State string `json:"state"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/account/accounts", nil, nil, &accounts); err != nil {
		return "", err
	}
	for _, account := range accounts {
		if account.Type == "spot" && account.State == "working" {
			c.accountID = strconv.FormatInt(account.ID, 10)
			return c.accountID, nil
		}
	}
	return "", core.Configf("huobi has no working spot account")
}

type placeRequest struct {
	AccountID string `json:"account-id"`
	Amount    string `json:"amount"`
	Price     string `json:"price,omitempty"`
	Source    string `json:"source"`
	Symbol    string `json:"symbol"`
	Type      string `json:"type"`
}

func (c *Client) PlaceOrder(ctx context.Context, pair core.TradingPair, intent core.OrderIntent) (core.OrderIdentifier, error) {
	if intent.Side != core.Buy && intent.Side != core.Sell {
		return core.OrderIdentifier{}, fmt.Errorf("%w: unknown side %q", core.ErrInvalidOrder, intent.Side)
	}
	if err := intent.CheckKind(Venue, true); err != nil {
		return core.OrderIdentifier{}, err
	}
	req := placeRequest{
		Source: "api",
		Symbol: strings.ToLower(pair.Raw),
		Type:   string(intent.Side) + "-limit",
	}
	// A market buy is sized in quote.
	amountPrecision := pair.BasePrecision
	if intent.IsMarket() {
		req.Type = string(intent.Side) + "-market"
		if !intent.IsSell() {
			amountPrecision = pair.QuotePrecision
		}
	} else {
		price, err := numfmt.NumberToString(intent.Price, pair.PricePrecision, false)
		if err != nil {
			return core.OrderIdentifier{}, err
		}
		req.Price = price
	}
	amount, err := numfmt.NumberToString(intent.Quantity, amountPrecision, false)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	req.Amount = amount
	accountID, err := c.spotAccount(ctx)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	req.AccountID = accountID
	var orderID string
	if err := c.call(ctx, http.MethodPost, "/v1/order/orders/place", nil, req, &orderID); err != nil {
		return core.OrderIdentifier{}, err
	}
	c.log.Info("huobi order placed", zap.String("pair", pair.Normalized), zap.String("order_id", orderID))
	return core.OrderIdentifier{OrderID: orderID}, nil
}

func (c *Client) CancelOrder(ctx context.Context, _ core.TradingPair, id core.OrderIdentifier) error {
	if id.OrderID == "" {
		return fmt.Errorf("%w: order id is required", core.ErrInvalidOrder)
	}
	return c.call(ctx, http.MethodPost, "/v1/order/orders/"+url.PathEscape(id.OrderID)+"/submitcancel", nil, nil, nil)
}

type orderData struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Price       string `json:"price"`
	Amount      string `json:"amount"`
	FieldAmount string `json:"field-amount"`
	State       string `json:"state"`
}

func (c *Client) QueryOrder(ctx context.Context, pair core.TradingPair, id core.OrderIdentifier) (*core.OrderState, error) {
	if id.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", core.ErrInvalidOrder)
	}
	var data orderData
	if err := c.call(ctx, http.MethodGet, "/v1/order/orders/"+url.PathEscape(id.OrderID), nil, nil, &data); err != nil {
		if errors.Is(err, core.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	side, _, _ := strings.Cut(data.Type, "-")
	state := &core.OrderState{ID: id.OrderID, Pair: pair.Normalized, Side: core.Side(side)}
	var err error
	if state.Price, err = core.ParseAmount(data.Price); err != nil {
		return nil, err
	}
	if state.Quantity, err = core.ParseAmount(data.Amount); err != nil {
		return nil, err
	}
	if state.Filled, err = core.ParseAmount(data.FieldAmount); err != nil {
		return nil, err
	}
	state.Remaining = state.Quantity.Sub(state.Filled)
	switch data.State {
	case "created", "submitted":
		state.Status = core.OrderOpen
	case "partial-filled":
		state.Status = core.OrderPartiallyFilled
	case "filled":
		state.Status = core.OrderFilled
	case "canceled", "partial-canceled":
		state.Status = core.OrderCanceled
	default:
		state.Status = core.OrderUnknown
	}
	return state, nil
}

func (c *Client) QueryAllBalances(ctx context.Context) ([]core.Balance, error) {
	accountID, err := c.spotAccount(ctx)
	if err != nil {
		return nil, err
	}
	var data struct {
		List []struct {
			Currency string `json:"currency"`
			Type     string `json:"type"`
			Balance  string `json:"balance"`
		} `json:"list"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/account/accounts/"+accountID+"/balance", nil, nil, &data); err != nil {
		return nil, err
	}
	byAsset := make(map[string]*core.Balance)
	for _, row := range data.List {
		amount, err := core.ParseAmount(row.Balance)
		if err != nil {
			return nil, err
		}
		if amount.IsZero() {
			continue
		}
		b, ok := byAsset[row.Currency]
		if !ok {
			b = &core.Balance{Asset: strings.ToUpper(row.Currency)}
			byAsset[row.Currency] = b
		}
		switch row.Type {
		case "trade":
			b.Available = b.Available.Add(amount)
		case "frozen":
			b.Locked = b.Locked.Add(amount)
		}
	}
	out := make([]core.Balance, 0, len(byAsset))
	for _, b := range byAsset {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}
