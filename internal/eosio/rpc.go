package eosio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-client/internal/core"
	"crypto-client/internal/race"

	"go.uber.org/zap"
)

type ChainInfo struct {
	ChainID                  string `json:"chain_id"`
	HeadBlockNum             uint32 `json:"head_block_num"`
	HeadBlockTime            string `json:"head_block_time"`
	LastIrreversibleBlockNum uint32 `json:"last_irreversible_block_num"`
	LastIrreversibleBlockID  string `json:"last_irreversible_block_id"`
}

type TableQuery struct {
	Code       string `json:"code"`
	Scope      string `json:"scope"`
	Table      string `json:"table"`
	LowerBound string `json:"lower_bound,omitempty"`
	UpperBound string `json:"upper_bound,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	JSON       bool   `json:"json"`
}

type TableRows struct {
	Rows []json.RawMessage `json:"rows"`
	More bool              `json:"-"`
}

func (r *TableRows) UnmarshalJSON(data []byte) error {
	var raw struct {
		Rows []json.RawMessage `json:"rows"`
		More json.RawMessage   `json:"more"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Rows == nil {
		return core.Shapef("table rows response has no rows field")
	}
	r.Rows = raw.Rows
	more := strings.TrimSpace(string(raw.More))
	r.More = more == "true" || (strings.HasPrefix(more, `"`) && more != `""`)
	return nil
}

// Client talks to a set of redundant chain API endpoints. Every call is raced
// across all endpoints and the first success wins.
type Client struct {
	endpoints []string
	chainID   string
	http      *http.Client
	opts      race.Options
	log       *zap.Logger
	onFailure func(endpoint string, err error)
}

func NewClient(endpoints []string, chainID string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	clean := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/"); endpoint != "" {
			clean = append(clean, endpoint)
		}
	}
	if len(clean) == 0 {
		return nil, core.Configf("at least one eos api endpoint is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		endpoints: clean,
		chainID:   strings.ToLower(strings.TrimSpace(chainID)),
		http:      &http.Client{},
		opts: race.Options{
			Timeout: timeout,
			Stop:    func(err error) bool { return errors.Is(err, core.ErrProtocolShape) },
		},
		log: log,
	}, nil
}

// OnEndpointFailure registers a hook called for every failed endpoint attempt.
func (c *Client) OnEndpointFailure(fn func(endpoint string, err error)) {
	c.onFailure = fn
}

func (c *Client) Endpoints() []string {
	return append([]string(nil), c.endpoints...)
}

func (c *Client) GetInfo(ctx context.Context) (ChainInfo, error) {
	info, _, err := race.First(ctx, c.endpoints, c.opts, func(ctx context.Context, endpoint string) (ChainInfo, error) {
		var out ChainInfo
		if err := c.call(ctx, endpoint, "/v1/chain/get_info", nil, &out); err != nil {
			return ChainInfo{}, err
		}
		if out.LastIrreversibleBlockID == "" || out.HeadBlockTime == "" {
			return ChainInfo{}, fmt.Errorf("%w: get_info missing block data", core.ErrNetwork)
		}
		return out, nil
	})
	return info, err
}

// PushTransaction broadcasts a signed transaction and returns its id. A reply
// without an id is fatal: the transaction may already be on chain, so it is
// never sent again.
func (c *Client) PushTransaction(ctx context.Context, tx SignedTransaction) (string, error) {
	txID, endpoint, err := race.First(ctx, c.endpoints, c.opts, func(ctx context.Context, endpoint string) (string, error) {
		var out map[string]json.RawMessage
		if err := c.call(ctx, endpoint, "/v1/chain/push_transaction", tx, &out); err != nil {
			var decodeErr *decodeError
			if errors.As(err, &decodeErr) {
				return "", core.Shapef("%v", decodeErr)
			}
			return "", err
		}
		return transactionIDFromReply(out)
	})
	if err != nil {
		return "", err
	}
	c.log.Info("transaction broadcast", zap.String("tx_id", txID), zap.String("endpoint", endpoint))
	return txID, nil
}

func (c *Client) GetTableRows(ctx context.Context, query TableQuery) (TableRows, error) {
	query.JSON = true
	rows, _, err := race.First(ctx, c.endpoints, c.opts, func(ctx context.Context, endpoint string) (TableRows, error) {
		var out TableRows
		if err := c.call(ctx, endpoint, "/v1/chain/get_table_rows", query, &out); err != nil {
			return TableRows{}, err
		}
		return out, nil
	})
	return rows, err
}

// Transact anchors, signs and broadcasts actions in one transaction.
func (c *Client) Transact(ctx context.Context, key *PrivateKey, actions ...Action) (string, error) {
	if key == nil {
		return "", core.Configf("eos private key is required")
	}
	if len(actions) == 0 {
		return "", errors.New("at least one action is required")
	}
	info, err := c.GetInfo(ctx)
	if err != nil {
		return "", err
	}
	chainID := c.chainID
	if chainID == "" {
		chainID = info.ChainID
	} else if info.ChainID != "" && !strings.EqualFold(info.ChainID, chainID) {
		return "", core.Configf("endpoint chain id %s does not match configured %s", info.ChainID, chainID)
	}
	refNum, refPrefix, head, err := TaposFromInfo(info)
	if err != nil {
		return "", err
	}
	tx := Transaction{
		Expiration:     head.Add(DefaultExpiration),
		RefBlockNum:    refNum,
		RefBlockPrefix: refPrefix,
		Actions:        actions,
	}
	signed, _, err := SignTransaction(tx, chainID, key)
	if err != nil {
		return "", err
	}
	return c.PushTransaction(ctx, signed)
}

func transactionIDFromReply(reply map[string]json.RawMessage) (string, error) {
	for _, key := range []string{"transaction_id", "id"} {
		raw, ok := reply[key]
		if !ok {
			continue
		}
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			return id, nil
		}
	}
	return "", core.Shapef("push_transaction reply has neither transaction_id nor id")
}

func (c *Client) call(ctx context.Context, endpoint, path string, req any, out any) error {
	err := postJSON(ctx, c.http, endpoint+path, req, out)
	if err != nil {
		c.log.Debug("eos endpoint failed", zap.String("endpoint", endpoint), zap.String("path", path), zap.Error(err))
		if c.onFailure != nil {
			c.onFailure(endpoint, err)
		}
	}
	return err
}

// postJSON posts req and decodes a 2xx reply into out. Transport failures and
// non-2xx replies are network errors for the caller's race.
func postJSON(ctx context.Context, client *http.Client, url string, req any, out any) error {
	var body io.Reader = http.NoBody
	if req != nil {
		payload, err := json.Marshal(req)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return errors.Join(core.ErrNetwork, core.VenueError{
			Venue:   "eos",
			Code:    strconv.Itoa(resp.StatusCode),
			Message: http.StatusText(resp.StatusCode),
			Payload: strings.TrimSpace(string(payload)),
		})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{url: url, err: err}
	}
	return nil
}

type decodeError struct {
	url string
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.url, e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}
