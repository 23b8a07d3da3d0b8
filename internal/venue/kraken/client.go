// Package kraken is the Kraken spot REST adapter.
package kraken

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

	"go.uber.org/zap"
)

const Venue = "kraken"

var errorKinds = map[string]error{
	"insufficient funds": core.ErrInsufficientBalance,
	"unknown order":      core.ErrOrderNotFound,
	"invalid order":      core.ErrInvalidOrder,
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

// Nonces exposes the nonce source so it can be attached to a persistent store.
func (c *Client) Nonces() *signing.NonceSource {
	return c.nonces
}

type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *Client) private(ctx context.Context, method string, form url.Values, out any) error {
	path := "/0/private/" + method
	if form == nil {
		form = url.Values{}
	}
	nonce := c.nonces.Next()
	form.Set("nonce", strconv.FormatUint(nonce, 10))
	postData := form.Encode()
	sig, err := signing.Kraken(c.creds.Secret, path, nonce, postData)
	if err != nil {
		return core.Configf("%v", err)
	}
	var env envelope
	err = c.rest.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   path,
		Form:   form,
		Header: http.Header{"API-Key": {c.creds.Key}, "API-Sign": {sig}},
	}, &env)
	if err != nil {
		return err
	}
	if len(env.Error) > 0 {
		return core.ClassifyVenueError(core.VenueError{
			Venue:   Venue,
			Code:    env.Error[0],
			Message: strings.Join(env.Error, "; "),
		}, errorKinds)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return core.Shapef("kraken %s result: %v", method, err)
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
	volume, err := numfmt.NumberToString(intent.Quantity, pair.BasePrecision, false)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	form := url.Values{
		"pair":      {pair.Raw},
		"type":      {string(intent.Side)},
		"ordertype": {"limit"},
		"price":     {price},
		"volume":    {volume},
	}
	var result struct {
		TxID []string `json:"txid"`
	}
	if err := c.private(ctx, "AddOrder", form, &result); err != nil {
		return core.OrderIdentifier{}, err
	}
	switch len(result.TxID) {
	case 0:
		return core.OrderIdentifier{}, core.Shapef("kraken AddOrder returned no txid")
	case 1:
	default:
		return core.OrderIdentifier{}, fmt.Errorf("%w: kraken AddOrder returned %d txids", core.ErrUnsupported, len(result.TxID))
	}
	c.log.Info("kraken order placed", zap.String("pair", pair.Normalized), zap.String("order_id", result.TxID[0]))
	return core.OrderIdentifier{OrderID: result.TxID[0]}, nil
}

func (c *Client) CancelOrder(ctx context.Context, _ core.TradingPair, id core.OrderIdentifier) error {
	if id.OrderID == "" {
		return fmt.Errorf("%w: order id is required", core.ErrInvalidOrder)
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := c.private(ctx, "CancelOrder", url.Values{"txid": {id.OrderID}}, &result); err != nil {
		return err
	}
	if result.Count == 0 {
		return fmt.Errorf("%w: kraken canceled nothing for %s", core.ErrOrderNotFound, id.OrderID)
	}
	return nil
}

type orderInfo struct {
	Status  string `json:"status"`
	Vol     string `json:"vol"`
	VolExec string `json:"vol_exec"`
	Descr   struct {
		Type  string `json:"type"`
		Price string `json:"price"`
	} `json:"descr"`
}

func (c *Client) QueryOrder(ctx context.Context, pair core.TradingPair, id core.OrderIdentifier) (*core.OrderState, error) {
	if id.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", core.ErrInvalidOrder)
	}
	var result map[string]orderInfo
	if err := c.private(ctx, "QueryOrders", url.Values{"txid": {id.OrderID}}, &result); err != nil {
		if errors.Is(err, core.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	info, ok := result[id.OrderID]
	if !ok {
		return nil, nil
	}
	state := &core.OrderState{ID: id.OrderID, Pair: pair.Normalized, Side: core.Side(info.Descr.Type)}
	var err error
	if state.Price, err = core.ParseAmount(info.Descr.Price); err != nil {
		return nil, err
	}
	if state.Quantity, err = core.ParseAmount(info.Vol); err != nil {
		return nil, err
	}
	if state.Filled, err = core.ParseAmount(info.VolExec); err != nil {
		return nil, err
	}
	state.Remaining = state.Quantity.Sub(state.Filled)
	switch info.Status {
	case "pending", "open":
		state.Status = core.OrderOpen
		if state.Filled.IsPositive() {
			state.Status = core.OrderPartiallyFilled
		}
	case "closed":
		state.Status = core.OrderFilled
	case "canceled", "expired":
		state.Status = core.OrderCanceled
	default:
		state.Status = core.OrderUnknown
	}
	return state, nil
}

func (c *Client) QueryAllBalances(ctx context.Context) ([]core.Balance, error) {
	var result map[string]string
	if err := c.private(ctx, "Balance", nil, &result); err != nil {
		return nil, err
	}
	out := make([]core.Balance, 0, len(result))
	for asset, amount := range result {
		available, err := core.ParseAmount(amount)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Balance{Asset: asset, Available: available})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}
