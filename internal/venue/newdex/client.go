package newdex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crypto-client/internal/core"
	"crypto-client/internal/eosio"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPollInterval   = time.Second
	defaultResolveTimeout = 30 * time.Second
)

type Options struct {
	PollInterval   time.Duration
	ResolveTimeout time.Duration
	// TokenContracts lists the contracts QueryAllBalances reads. eosio.token
	// is always included.
	TokenContracts []string
	// Referral is the memo ref tag. Empty omits it.
	Referral string
}

// Resolution is the exchange's view of a placement transaction.
type Resolution struct {
	OrderID uint64
	PairID  uint64
}

type Client struct {
	rpc      *eosio.Client
	explorer *eosio.Explorer
	account  string
	key      *eosio.PrivateKey
	opts     Options
	log      *zap.Logger
}

// New builds a client. Signing credentials are optional; operations that
// need them fail with a configuration error when they are missing.
func New(rpc *eosio.Client, explorer *eosio.Explorer, signing core.SigningContext, opts Options, log *zap.Logger) (*Client, error) {
	if rpc == nil {
		return nil, core.Configf("newdex requires an eos rpc client")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}
	c := &Client{rpc: rpc, explorer: explorer, account: strings.TrimSpace(signing.EOSAccount), opts: opts, log: log}
	if signing.HasEOS() {
		key, err := eosio.ParsePrivateKey(signing.EOSPrivateKey)
		if err != nil {
			return nil, core.Configf("eos private key: %v", err)
		}
		c.key = key
	}
	return c, nil
}

func (c *Client) Name() string {
	return Venue
}

func (c *Client) requireKey() error {
	if c.account == "" {
		return core.Configf("eos account is required")
	}
	if c.key == nil {
		return core.Configf("eos private key is required")
	}
	return nil
}

// PlaceOrder builds, signs and broadcasts a limit order, then resolves the
// transaction into the exchange's order and pair ids. When broadcast succeeds
// but resolution fails the transaction id is returned inside a
// *core.PartialSuccessError.
func (c *Client) PlaceOrder(ctx context.Context, pair core.TradingPair, intent core.OrderIntent) (core.OrderIdentifier, error) {
	if err := c.requireKey(); err != nil {
		return core.OrderIdentifier{}, err
	}
	action, err := c.build(pair, intent)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	txID, err := c.Submit(ctx, action)
	if err != nil {
		return core.OrderIdentifier{}, err
	}
	id := core.OrderIdentifier{TxID: txID}
	resolution, err := c.Resolve(ctx, txID)
	if err != nil {
		return id, &core.PartialSuccessError{TxID: txID, Err: err}
	}
	id.OrderID = strconv.FormatUint(resolution.OrderID, 10)
	id.PairID = strconv.FormatUint(resolution.PairID, 10)
	c.log.Info("newdex order placed",
		zap.String("pair", pair.Normalized),
		zap.String("tx_id", txID),
		zap.String("order_id", id.OrderID),
	)
	return id, nil
}

func (c *Client) build(pair core.TradingPair, intent core.OrderIntent) (TransferAction, error) {
	if err := intent.CheckKind(Venue, true); err != nil {
		return TransferAction{}, err
	}
	if intent.IsMarket() {
		return BuildMarketOrder(c.account, pair, intent.Quantity, intent.Side, c.opts.Referral)
	}
	return BuildOrder(c.account, pair, intent.Price, intent.Quantity, intent.Side, c.opts.Referral)
}

func (c *Client) Submit(ctx context.Context, action TransferAction) (string, error) {
	if err := c.requireKey(); err != nil {
		return "", err
	}
	act, err := action.Action()
	if err != nil {
		return "", err
	}
	return c.rpc.Transact(ctx, c.key, act)
}

// Resolve waits for the explorer to index the transactions and extracts the
// order they created. Exactly one transaction id is supported.
func (c *Client) Resolve(ctx context.Context, txIDs ...string) (Resolution, error) {
	switch {
	case len(txIDs) == 0:
		return Resolution{}, errors.New("transaction id is required")
	case len(txIDs) > 1:
		return Resolution{}, fmt.Errorf("%w: placement produced %d transaction ids", core.ErrUnsupported, len(txIDs))
	}
	if c.explorer == nil {
		return Resolution{}, core.Configf("newdex requires an explorer endpoint to resolve orders")
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.ResolveTimeout)
	defer cancel()
	record, err := c.explorer.WaitTransaction(ctx, txIDs[0], c.opts.PollInterval)
	if err != nil {
		return Resolution{}, err
	}
	return ResolveRecord(record)
}

// ResolveRecord extracts the order created by a placement transaction. The
// trace must have the shape the exchange contract produces: one transfer
// action whose second inline trace is the exchange's own handler, whose first
// inline trace is the order log.
func ResolveRecord(record eosio.TransactionRecord) (Resolution, error) {
	if status := record.Status(); status != "executed" {
		return Resolution{}, core.Shapef("transaction %s status %q, want executed", record.ID, status)
	}
	traces := record.ExecutionTrace.ActionTraces
	if len(traces) != 1 {
		return Resolution{}, core.Shapef("transaction %s has %d action traces, want 1", record.ID, len(traces))
	}
	inline := traces[0].InlineTraces
	if len(inline) != 2 {
		return Resolution{}, core.Shapef("transaction %s has %d inline traces, want 2", record.ID, len(inline))
	}
	handler := inline[1]
	if len(handler.InlineTraces) == 0 {
		return Resolution{}, core.Shapef("transaction %s exchange handler has no order log", record.ID)
	}
	var data struct {
		OrderID flexUint `json:"order_id"`
		PairID  flexUint `json:"pair_id"`
	}
	if err := json.Unmarshal(handler.InlineTraces[0].Act.Data, &data); err != nil {
		return Resolution{}, core.Shapef("transaction %s order log: %v", record.ID, err)
	}
	if data.OrderID == 0 || data.PairID == 0 {
		return Resolution{}, core.Shapef("transaction %s order log has no order_id or pair_id", record.ID)
	}
	return Resolution{OrderID: uint64(data.OrderID), PairID: uint64(data.PairID)}, nil
}

type orderRow struct {
	ID             flexUint `json:"id"`
	Owner          string   `json:"owner"`
	Price          string   `json:"price"`
	Quantity       string   `json:"quantity"`
	RemainQuantity string   `json:"remain_quantity"`
}

// QueryOrder reads the order from the sell table, then the buy table. An
// order in neither table is closed and yields a nil state with a nil error.
func (c *Client) QueryOrder(ctx context.Context, pair core.TradingPair, id core.OrderIdentifier) (*core.OrderState, error) {
	orderID, pairID, err := parseIdentifier(id)
	if err != nil {
		return nil, err
	}
	for _, table := range []struct {
		name string
		side core.Side
	}{{"sellorder", core.Sell}, {"buyorder", core.Buy}} {
		rows, err := c.rpc.GetTableRows(ctx, eosio.TableQuery{
			Code:       PublicContract,
			Scope:      strconv.FormatUint(pairID, 10),
			Table:      table.name,
			LowerBound: strconv.FormatUint(orderID, 10),
			UpperBound: strconv.FormatUint(orderID+1, 10),
			Limit:      1,
		})
		if err != nil {
			return nil, err
		}
		for _, raw := range rows.Rows {
			var row orderRow
			if err := json.Unmarshal(raw, &row); err != nil {
				return nil, core.Shapef("%s row: %v", table.name, err)
			}
			if uint64(row.ID) != orderID {
				continue
			}
			return row.state(pair, table.side)
		}
	}
	return nil, nil
}

func (r orderRow) state(pair core.TradingPair, side core.Side) (*core.OrderState, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(r.Price))
	if err != nil {
		return nil, core.Shapef("order %d price %q", r.ID, r.Price)
	}
	quantity, err := eosio.ParseAsset(r.Quantity)
	if err != nil {
		return nil, core.Shapef("order %d quantity: %v", r.ID, err)
	}
	remaining := quantity
	if r.RemainQuantity != "" {
		if remaining, err = eosio.ParseAsset(r.RemainQuantity); err != nil {
			return nil, core.Shapef("order %d remain_quantity: %v", r.ID, err)
		}
	}
	state := &core.OrderState{
		ID:        strconv.FormatUint(uint64(r.ID), 10),
		Pair:      pair.Normalized,
		Side:      side,
		Price:     price,
		Quantity:  quantity.Decimal(),
		Remaining: remaining.Decimal(),
		Status:    core.OrderOpen,
	}
	state.Filled = state.Quantity.Sub(state.Remaining)
	if state.Filled.IsPositive() {
		state.Status = core.OrderPartiallyFilled
	}
	return state, nil
}

// CancelOrder pushes newdexpublic::cancelorder for an open order.
func (c *Client) CancelOrder(ctx context.Context, _ core.TradingPair, id core.OrderIdentifier) error {
	if err := c.requireKey(); err != nil {
		return err
	}
	orderID, err := parseOrderID(id)
	if err != nil {
		return err
	}
	enc := eosio.NewEncoder()
	enc.Name(c.account)
	enc.Uint64(orderID)
	if err := enc.Err(); err != nil {
		return err
	}
	txID, err := c.rpc.Transact(ctx, c.key, eosio.Action{
		Account:       PublicContract,
		Name:          "cancelorder",
		Authorization: []eosio.PermissionLevel{{Actor: c.account, Permission: eosio.ActiveAuth}},
		Data:          enc.Bytes(),
	})
	if err != nil {
		return err
	}
	c.log.Info("newdex order canceled", zap.Uint64("order_id", orderID), zap.String("tx_id", txID))
	return nil
}

// QueryAllBalances reads the account's row from every configured token
// contract's accounts table.
func (c *Client) QueryAllBalances(ctx context.Context) ([]core.Balance, error) {
	if c.account == "" {
		return nil, core.Configf("eos account is required")
	}
	contracts := []string{eosio.TokenContract}
	for _, contract := range c.opts.TokenContracts {
		if contract != "" && !contains(contracts, contract) {
			contracts = append(contracts, contract)
		}
	}
	var out []core.Balance
	for _, contract := range contracts {
		rows, err := c.rpc.GetTableRows(ctx, eosio.TableQuery{
			Code:  contract,
			Scope: c.account,
			Table: "accounts",
			Limit: 100,
		})
		if err != nil {
			return nil, fmt.Errorf("%s balances: %w", contract, err)
		}
		for _, raw := range rows.Rows {
			var row struct {
				Balance string `json:"balance"`
			}
			if err := json.Unmarshal(raw, &row); err != nil {
				return nil, core.Shapef("%s accounts row: %v", contract, err)
			}
			balance, err := eosio.ParseAsset(row.Balance)
			if err != nil {
				return nil, core.Shapef("%s accounts row: %v", contract, err)
			}
			out = append(out, core.Balance{Asset: balance.Symbol.Code, Available: balance.Decimal()})
		}
	}
	return out, nil
}

func parseOrderID(id core.OrderIdentifier) (uint64, error) {
	orderID, err := strconv.ParseUint(strings.TrimSpace(id.OrderID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: newdex order id %q", core.ErrInvalidOrder, id.OrderID)
	}
	return orderID, nil
}

func parseIdentifier(id core.OrderIdentifier) (uint64, uint64, error) {
	orderID, err := parseOrderID(id)
	if err != nil {
		return 0, 0, err
	}
	pairID, err := strconv.ParseUint(strings.TrimSpace(id.PairID), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: newdex pair id %q", core.ErrInvalidOrder, id.PairID)
	}
	return orderID, pairID, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// flexUint accepts both JSON numbers and numeric strings.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return err
	}
	*f = flexUint(v)
	return nil
}
