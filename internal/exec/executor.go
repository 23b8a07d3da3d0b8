// Package exec makes placements idempotent per client order id and records
// their outcome in the state store, metrics, journal and alerts.
package exec

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"crypto-client/internal/alerts"
	"crypto-client/internal/core"
	"crypto-client/internal/journal"
	"crypto-client/internal/metrics"
	"crypto-client/internal/retry"
	"crypto-client/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Trader is the façade the executor drives.
type Trader interface {
	PlaceOrder(ctx context.Context, venue string, intent core.OrderIntent) (core.OrderIdentifier, error)
	CancelOrder(ctx context.Context, venue, pair string, id core.OrderIdentifier) error
	QueryOrder(ctx context.Context, venue, pair string, id core.OrderIdentifier) (*core.OrderState, error)
	QueryAllBalances(ctx context.Context, venue string) ([]core.Balance, error)
}

type Journal interface {
	Record(event journal.OrderEvent)
}

type Options struct {
	Store    state.Store
	Metrics  *metrics.Metrics
	Notifier alerts.Notifier
	Journal  Journal
	// ReadRetry applies to queries. Placements and cancels are sent once: a
	// timed out request may still have reached the venue.
	ReadRetry retry.Policy
}

type Executor struct {
	trader   Trader
	store    state.Store
	metrics  *metrics.Metrics
	notifier alerts.Notifier
	journal  Journal
	reads    retry.Policy
	log      *zap.Logger
	now      func() time.Time

	// inflight holds one placement per receipt key from lookup to remember.
	inflight singleflight.Group
	mu       sync.Mutex
	cache    map[string]state.Receipt
}

func New(trader Trader, opts Options, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Notifier == nil {
		opts.Notifier = alerts.Nop{}
	}
	return &Executor{
		trader:   trader,
		store:    opts.Store,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		journal:  opts.Journal,
		reads:    opts.ReadRetry,
		log:      log,
		now:      time.Now,
		cache:    make(map[string]state.Receipt),
	}
}

// RetryNetworkOnly retries transport failures but never a partial success.
func RetryNetworkOnly(err error) bool {
	if _, ok := core.AsPartialSuccess(err); ok {
		return false
	}
	return errors.Is(err, core.ErrNetwork)
}

// PlaceOrder places intent once per (venue, client order id). A missing
// client order id is generated. A repeated or concurrent call returns the
// stored receipt, together with a *core.PartialSuccessError when the
// original placement was only partially successful.
func (e *Executor) PlaceOrder(ctx context.Context, venue string, intent core.OrderIntent) (state.Receipt, error) {
	venue = strings.ToLower(strings.TrimSpace(venue))
	intent.Pair = strings.ToUpper(strings.TrimSpace(intent.Pair))
	if intent.ClientOrderID == "" {
		intent.ClientOrderID = uuid.NewString()
	}
	v, err, shared := e.inflight.Do(state.ReceiptKey(venue, intent.ClientOrderID), func() (any, error) {
		return e.placeOnce(ctx, venue, intent)
	})
	if shared {
		e.log.Debug("placement shared with a concurrent call", zap.String("cloid", intent.ClientOrderID))
	}
	return v.(state.Receipt), err
}

func (e *Executor) placeOnce(ctx context.Context, venue string, intent core.OrderIntent) (state.Receipt, error) {
	if receipt, ok, err := e.lookup(ctx, venue, intent.ClientOrderID); err != nil {
		return state.Receipt{}, err
	} else if ok {
		e.log.Info("placement already recorded",
			zap.String("venue", venue),
			zap.String("cloid", intent.ClientOrderID),
			zap.String("status", string(receipt.Status)),
		)
		return receipt, receiptError(receipt)
	}

	id, err := e.trader.PlaceOrder(ctx, venue, intent)
	receipt := state.Receipt{
		Venue:         venue,
		Pair:          intent.Pair,
		Side:          string(intent.Side),
		ClientOrderID: intent.ClientOrderID,
		OrderID:       id.OrderID,
		TxID:          id.TxID,
		PairID:        id.PairID,
		Status:        state.ReceiptPlaced,
		CreatedAtMS:   e.now().UnixMilli(),
	}
	event := journal.OrderEvent{
		Kind:          journal.EventPlaced,
		Venue:         venue,
		Pair:          intent.Pair,
		Side:          string(intent.Side),
		ClientOrderID: intent.ClientOrderID,
		OrderID:       id.OrderID,
		TxID:          id.TxID,
		Price:         intent.Price.String(),
		Quantity:      intent.Quantity.String(),
	}
	alert := alerts.Event{
		Kind:          alerts.OrderFailed,
		Venue:         venue,
		Pair:          intent.Pair,
		Side:          string(intent.Side),
		ClientOrderID: intent.ClientOrderID,
	}
	if err != nil {
		partial, ok := core.AsPartialSuccess(err)
		if !ok {
			e.metrics.OrdersFailed.Inc(venue)
			event.Kind = journal.EventFailed
			event.Error = err.Error()
			e.record(event)
			// Rejections raised before any request are the caller's to fix.
			if !errors.Is(err, core.ErrInvalidOrder) && !errors.Is(err, core.ErrConfiguration) {
				alert.Err = err
				e.notify(ctx, alert)
			}
			return receipt, err
		}
		receipt.Status = state.ReceiptPartial
		receipt.TxID = partial.TxID
		if partial.Err != nil {
			receipt.Error = partial.Err.Error()
		}
		e.metrics.PartialSuccesses.Inc(venue)
		event.Kind = journal.EventPartial
		event.TxID = partial.TxID
		event.Error = receipt.Error
		e.record(event)
		e.remember(ctx, receipt)
		alert.Kind = alerts.PartialSuccess
		alert.TxID = partial.TxID
		alert.Err = partial.Err
		e.notify(ctx, alert)
		return receipt, err
	}
	if id.OrderID == "" && id.TxID == "" {
		e.metrics.OrdersFailed.Inc(venue)
		return receipt, core.Shapef("%s returned an empty order id", venue)
	}
	e.metrics.OrdersPlaced.Inc(venue)
	e.record(event)
	e.remember(ctx, receipt)
	return receipt, nil
}

func (e *Executor) CancelOrder(ctx context.Context, venue, pair string, id core.OrderIdentifier) error {
	venue = strings.ToLower(strings.TrimSpace(venue))
	if err := e.trader.CancelOrder(ctx, venue, pair, id); err != nil {
		return err
	}
	e.metrics.OrdersCanceled.Inc(venue)
	e.record(journal.OrderEvent{
		Kind:    journal.EventCanceled,
		Venue:   venue,
		Pair:    strings.ToUpper(pair),
		OrderID: id.OrderID,
		TxID:    id.TxID,
	})
	return nil
}

// CancelByClientID cancels the order recorded for a client order id.
func (e *Executor) CancelByClientID(ctx context.Context, venue, clientOrderID string) error {
	venue = strings.ToLower(strings.TrimSpace(venue))
	receipt, ok, err := e.lookup(ctx, venue, clientOrderID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Join(core.ErrOrderNotFound, core.Configf("no placement recorded for %s/%s", venue, clientOrderID))
	}
	if receipt.OrderID == "" {
		return core.Configf("placement %s/%s has no resolved order id", venue, clientOrderID)
	}
	if receipt.Status == state.ReceiptCanceled {
		return nil
	}
	if err := e.CancelOrder(ctx, venue, receipt.Pair, receipt.Identifier()); err != nil {
		return err
	}
	receipt.Status = state.ReceiptCanceled
	e.remember(ctx, receipt)
	return nil
}

func (e *Executor) QueryOrder(ctx context.Context, venue, pair string, id core.OrderIdentifier) (*core.OrderState, error) {
	return retry.Value(ctx, e.reads, func(ctx context.Context) (*core.OrderState, error) {
		return e.trader.QueryOrder(ctx, venue, pair, id)
	})
}

func (e *Executor) QueryAllBalances(ctx context.Context, venue string) ([]core.Balance, error) {
	return retry.Value(ctx, e.reads, func(ctx context.Context) ([]core.Balance, error) {
		return e.trader.QueryAllBalances(ctx, venue)
	})
}

func (e *Executor) lookup(ctx context.Context, venue, clientOrderID string) (state.Receipt, bool, error) {
	key := state.ReceiptKey(venue, clientOrderID)
	e.mu.Lock()
	if receipt, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return receipt, true, nil
	}
	e.mu.Unlock()
	receipt, ok, err := state.LoadReceipt(ctx, e.store, venue, clientOrderID)
	if err != nil || !ok {
		return state.Receipt{}, false, err
	}
	e.mu.Lock()
	e.cache[key] = receipt
	e.mu.Unlock()
	return receipt, true, nil
}

func (e *Executor) remember(ctx context.Context, receipt state.Receipt) {
	if err := state.SaveReceipt(ctx, e.store, receipt); err != nil {
		e.log.Warn("failed to persist receipt", zap.String("cloid", receipt.ClientOrderID), zap.Error(err))
	}
	e.mu.Lock()
	e.cache[state.ReceiptKey(receipt.Venue, receipt.ClientOrderID)] = receipt
	e.mu.Unlock()
}

func (e *Executor) notify(ctx context.Context, event alerts.Event) {
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.log.Warn("order alert failed", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

func (e *Executor) record(event journal.OrderEvent) {
	if e.journal == nil {
		return
	}
	event.Time = e.now().UTC()
	e.journal.Record(event)
}

func receiptError(receipt state.Receipt) error {
	if receipt.Status != state.ReceiptPartial {
		return nil
	}
	return &core.PartialSuccessError{TxID: receipt.TxID, Err: errors.New(receipt.Error)}
}
