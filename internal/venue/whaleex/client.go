package whaleex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-client/internal/core"
	"crypto-client/internal/numfmt"
	"crypto-client/internal/signing"
	"crypto-client/internal/venue/rest"

	"go.uber.org/zap"
)

const (
	apiPrefix   = "/BUSINESS/api/v1"
	idBatchSize = 20
)

var errorKinds = map[string]error{
	"not found":    core.ErrOrderNotFound,
	"not exist":    core.ErrOrderNotFound,
	"insufficient": core.ErrInsufficientBalance,
	"balance":      core.ErrInsufficientBalance,
}

type Options struct {
	Pool PoolOptions
}

type Client struct {
	rest   *rest.Client
	creds  core.APICredentials
	signer *Signer
	pool   *IdentifierPool
	now    func() time.Time
	log    *zap.Logger
}

// New builds a client. Both the API credentials and the EOS account and key
// are required because every order carries an EOS signature.
func New(transport *rest.Client, signingCtx core.SigningContext, opts Options, log *zap.Logger) (*Client, error) {
	creds, err := signingCtx.Credentials(Venue)
	if err != nil {
		return nil, err
	}
	signer, err := NewSigner(signingCtx)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{rest: transport, creds: creds, signer: signer, now: time.Now, log: log}
	c.pool = NewIdentifierPool(c.fetchIDs, opts.Pool)
	return c, nil
}

func (c *Client) Name() string {
	return Venue
}

type envelope struct {
	ReturnCode string          `json:"returnCode"`
	Message    string          `json:"message"`
	Result     json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method, path string, params map[string]string, body any, out any) error {
	signed := signing.WhaleExParams(method, c.rest.Host(), path, c.creds.Key, c.creds.Secret, params, c.now())
	query := signing.CanonicalQuery(signed)
	var env envelope
	if err := c.rest.Do(ctx, rest.Request{Method: method, Path: path, RawQuery: query, JSON: body}, &env); err != nil {
		return err
	}
	if env.ReturnCode != "0" {
		return core.ClassifyVenueError(core.VenueError{
			Venue:   Venue,
			Code:    env.ReturnCode,
			Message: env.Message,
			Payload: string(env.Result),
		}, errorKinds)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return core.Shapef("whaleex %s result: %v", path, err)
	}
	return nil
}

func (c *Client) fetchIDs(ctx context.Context, remark string) (Batch, error) {
	params := map[string]string{"size": strconv.Itoa(idBatchSize)}
	if remark != "" {
		params["remark"] = remark
	}
	var result struct {
		List   []string `json:"list"`
		Remark string   `json:"remark"`
	}
	if err := c.call(ctx, http.MethodGet, apiPrefix+"/order/orderIds", params, nil, &result); err != nil {
		return Batch{}, err
	}
	batch := Batch{Remark: result.Remark, IDs: make([]uint64, 0, len(result.List))}
	for _, raw := range result.List {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Batch{}, core.Shapef("whaleex order id %q", raw)
		}
		batch.IDs = append(batch.IDs, id)
	}
	c.log.Debug("whaleex order ids fetched", zap.Int("count", len(batch.IDs)))
	return batch, nil
}

type placeRequest struct {
	OrderID   string `json:"orderId"`
	Amount    string `json:"amount"`
	Price     string `json:"price,omitempty"`
	Symbol    string `json:"symbol"`
	Type      string `json:"type"`
	Side      string `json:"side"`
	Timestamp int64  `json:"timestamp"`
	Sig       string `json:"sig"`
}

func (c *Client) PlaceOrder(ctx context.Context, pair core.TradingPair, intent core.OrderIntent) (core.OrderIdentifier, error) {
	orderType, err := OrderTypeFor(intent)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	if !intent.Quantity.IsPositive() || (!intent.IsMarket() && !intent.Price.IsPositive()) {
		return core.OrderIdentifier{}, fmt.Errorf("%w: price and quantity must be positive", core.ErrInvalidOrder)
	}
	req := placeRequest{
		Symbol: pair.Raw,
		Type:   string(core.Limit),
		Side:   string(intent.Side),
	}
	// A market buy is sized in quote.
	amountPrecision := pair.BasePrecision
	if orderType == BuyMarket {
		amountPrecision = pair.QuotePrecision
	}
	if intent.IsMarket() {
		req.Type = string(core.Market)
	} else if req.Price, err = numfmt.NumberToString(intent.Price, pair.PricePrecision, false); err != nil {
		return core.OrderIdentifier{}, err
	}
	if req.Amount, err = numfmt.NumberToString(intent.Quantity, amountPrecision, false); err != nil {
		return core.OrderIdentifier{}, err
	}
	id, err := c.pool.Pop(ctx)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	order := Order{
		OrderID:   id,
		Timestamp: c.now(),
		Type:      orderType,
		Pair:      pair,
		Price:     intent.Price,
		Quantity:  intent.Quantity,
	}
	sig, err := c.signer.Sign(order)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	req.OrderID = strconv.FormatUint(id, 10)
	req.Timestamp = order.Timestamp.Unix()
	req.Sig = sig
	if err := c.call(ctx, http.MethodPost, apiPrefix+"/order/orders/place", nil, req, nil); err != nil {
		return core.OrderIdentifier{}, err
	}
	c.log.Info("whaleex order placed", zap.String("pair", pair.Normalized), zap.Uint64("order_id", id))
	return core.OrderIdentifier{OrderID: req.OrderID}, nil
}

func (c *Client) CancelOrder(ctx context.Context, _ core.TradingPair, id core.OrderIdentifier) error {
	if id.OrderID == "" {
		return fmt.Errorf("%w: order id is required", core.ErrInvalidOrder)
	}
	path := apiPrefix + "/order/orders/" + url.PathEscape(id.OrderID) + "/submitcancel"
	return c.call(ctx, http.MethodPost, path, nil, nil, nil)
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	Status      string `json:"status"`
}

func (c *Client) QueryOrder(ctx context.Context, pair core.TradingPair, id core.OrderIdentifier) (*core.OrderState, error) {
	if id.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", core.ErrInvalidOrder)
	}
	var result orderResult
	err := c.call(ctx, http.MethodGet, apiPrefix+"/order/orders/"+url.PathEscape(id.OrderID), nil, nil, &result)
	if err != nil {
		if errors.Is(err, core.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	state := &core.OrderState{
		ID:     result.OrderID,
		Pair:   pair.Normalized,
		Side:   core.Side(strings.ToLower(result.Side)),
		Status: orderStatus(result.Status),
	}
	if state.Price, err = core.ParseAmount(result.Price); err != nil {
		return nil, err
	}
	if state.Quantity, err = core.ParseAmount(result.OrigQty); err != nil {
		return nil, err
	}
	if state.Filled, err = core.ParseAmount(result.ExecutedQty); err != nil {
		return nil, err
	}
	state.Remaining = state.Quantity.Sub(state.Filled)
	return state, nil
}

func (c *Client) QueryAllBalances(ctx context.Context) ([]core.Balance, error) {
	var result struct {
		List []struct {
			Currency        string `json:"currency"`
			AvailableAmount string `json:"availableAmount"`
			FrozenAmount    string `json:"frozenAmount"`
		} `json:"list"`
	}
	if err := c.call(ctx, http.MethodGet, apiPrefix+"/assets", nil, nil, &result); err != nil {
		return nil, err
	}
	out := make([]core.Balance, 0, len(result.List))
	for _, row := range result.List {
		available, err := core.ParseAmount(row.AvailableAmount)
		if err != nil {
			return nil, err
		}
		locked, err := core.ParseAmount(row.FrozenAmount)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Balance{Asset: strings.ToUpper(row.Currency), Available: available, Locked: locked})
	}
	return out, nil
}

func orderStatus(s string) core.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW", "OPEN":
		return core.OrderOpen
	case "PARTIALLY_FILLED":
		return core.OrderPartiallyFilled
	case "FILLED":
		return core.OrderFilled
	case "CANCELED", "CANCELLED":
		return core.OrderCanceled
	default:
		return core.OrderUnknown
	}
}
