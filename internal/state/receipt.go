package state

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"crypto-client/internal/core"

	"github.com/vmihailenco/msgpack/v5"
)

const receiptPrefix = "receipt:"

// ReceiptStatus is the outcome of a placement. A partial receipt has a
// transaction id whose order could not be resolved.
type ReceiptStatus string

const (
	ReceiptPlaced   ReceiptStatus = "placed"
	ReceiptPartial  ReceiptStatus = "partial"
	ReceiptCanceled ReceiptStatus = "canceled"
)

// Receipt records one placement so a retried call with the same client order
// id returns the original result instead of placing again.
type Receipt struct {
	Venue         string        `msgpack:"venue"`
	Pair          string        `msgpack:"pair"`
	Side          string        `msgpack:"side"`
	ClientOrderID string        `msgpack:"cloid"`
	OrderID       string        `msgpack:"oid,omitempty"`
	TxID          string        `msgpack:"txid,omitempty"`
	PairID        string        `msgpack:"pair_id,omitempty"`
	Status        ReceiptStatus `msgpack:"status"`
	Error         string        `msgpack:"error,omitempty"`
	CreatedAtMS   int64         `msgpack:"created_at_ms"`
}

func (r Receipt) Identifier() core.OrderIdentifier {
	return core.OrderIdentifier{OrderID: r.OrderID, TxID: r.TxID, PairID: r.PairID}
}

func ReceiptKey(venue, clientOrderID string) string {
	return receiptPrefix + strings.ToLower(venue) + ":" + clientOrderID
}

func LoadReceipt(ctx context.Context, store Store, venue, clientOrderID string) (Receipt, bool, error) {
	if store == nil {
		return Receipt{}, false, nil
	}
	raw, ok, err := store.Get(ctx, ReceiptKey(venue, clientOrderID))
	if err != nil {
		return Receipt{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Receipt{}, false, nil
	}
	receipt, err := decodeReceipt(raw)
	if err != nil {
		return Receipt{}, false, fmt.Errorf("receipt %s/%s: %w", venue, clientOrderID, err)
	}
	return receipt, true, nil
}

func SaveReceipt(ctx context.Context, store Store, receipt Receipt) error {
	if store == nil {
		return nil
	}
	if receipt.ClientOrderID == "" {
		return fmt.Errorf("receipt for %s has no client order id", receipt.Venue)
	}
	payload, err := msgpack.Marshal(receipt)
	if err != nil {
		return err
	}
	return store.Set(ctx, ReceiptKey(receipt.Venue, receipt.ClientOrderID), base64.StdEncoding.EncodeToString(payload))
}

// ListReceipts returns all receipts, oldest first. Pass an empty venue for
// every venue.
func ListReceipts(ctx context.Context, store Store, venue string) ([]Receipt, error) {
	if store == nil {
		return nil, nil
	}
	prefix := receiptPrefix
	if venue != "" {
		prefix += strings.ToLower(venue) + ":"
	}
	rows, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Receipt, 0, len(rows))
	for key, raw := range rows {
		receipt, err := decodeReceipt(raw)
		if err != nil {
			return nil, fmt.Errorf("receipt %s: %w", key, err)
		}
		out = append(out, receipt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtMS != out[j].CreatedAtMS {
			return out[i].CreatedAtMS < out[j].CreatedAtMS
		}
		return out[i].ClientOrderID < out[j].ClientOrderID
	})
	return out, nil
}

func decodeReceipt(raw string) (Receipt, error) {
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Receipt{}, err
	}
	var receipt Receipt
	if err := msgpack.Unmarshal(payload, &receipt); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}
