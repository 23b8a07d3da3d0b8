package eosio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"crypto-client/internal/core"
	"crypto-client/internal/race"

	"go.uber.org/zap"
)

var ErrTransactionNotFound = errors.New("transaction not found")

type TransactionRecord struct {
	ID       string `json:"id"`
	BlockNum uint32 `json:"block_num"`
	Trx      struct {
		Receipt struct {
			Status string `json:"status"`
		} `json:"receipt"`
	} `json:"trx"`
	ExecutionTrace ExecutionTrace `json:"execution_trace"`
}

func (r TransactionRecord) Status() string {
	return r.Trx.Receipt.Status
}

type ExecutionTrace struct {
	ActionTraces []ActionTrace `json:"action_traces"`
}

type ActionTrace struct {
	Receiver     string        `json:"receiver"`
	Act          ActTrace      `json:"act"`
	InlineTraces []ActionTrace `json:"inline_traces"`
}

type ActTrace struct {
	Account string          `json:"account"`
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data"`
}

// Explorer reads historical transactions from block explorer style history
// endpoints.
type Explorer struct {
	endpoints []string
	http      *http.Client
	opts      race.Options
	log       *zap.Logger
}

func NewExplorer(endpoints []string, timeout time.Duration, log *zap.Logger) (*Explorer, error) {
	clean := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/"); endpoint != "" {
			clean = append(clean, endpoint)
		}
	}
	if len(clean) == 0 {
		return nil, core.Configf("at least one explorer endpoint is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Explorer{
		endpoints: clean,
		http:      &http.Client{},
		opts:      race.Options{Timeout: timeout},
		log:       log,
	}, nil
}

func (e *Explorer) GetTransaction(ctx context.Context, txID string) (TransactionRecord, error) {
	if strings.TrimSpace(txID) == "" {
		return TransactionRecord{}, errors.New("transaction id is required")
	}
	record, _, err := race.First(ctx, e.endpoints, e.opts, func(ctx context.Context, endpoint string) (TransactionRecord, error) {
		var out TransactionRecord
		err := postJSON(ctx, e.http, endpoint+"/v1/history/get_transaction", map[string]string{"id": txID}, &out)
		if err != nil {
			if venueErr, ok := core.AsVenueError(err); ok && venueErr.Code == "404" {
				return TransactionRecord{}, ErrTransactionNotFound
			}
			return TransactionRecord{}, err
		}
		if out.ID == "" {
			return TransactionRecord{}, ErrTransactionNotFound
		}
		return out, nil
	})
	return record, err
}

// WaitTransaction polls GetTransaction until the explorer has indexed txID or
// ctx ends. Errors other than not-found are returned immediately.
func (e *Explorer) WaitTransaction(ctx context.Context, txID string, interval time.Duration) (TransactionRecord, error) {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		record, err := e.GetTransaction(ctx, txID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, ErrTransactionNotFound) {
			return TransactionRecord{}, err
		}
		e.log.Debug("transaction not indexed yet", zap.String("tx_id", txID))
		select {
		case <-ctx.Done():
			return TransactionRecord{}, errors.Join(ctx.Err(), err)
		case <-time.After(interval):
		}
	}
}
