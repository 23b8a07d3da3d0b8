// Package journal appends order events to Postgres. A Timescale hypertable is
// created when the extension is available.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"crypto-client/internal/config"
	"crypto-client/internal/core"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	writeTimeout     = 3 * time.Second
	defaultQueueSize = 256
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

type EventKind string

const (
	EventPlaced   EventKind = "placed"
	EventPartial  EventKind = "partial"
	EventFailed   EventKind = "failed"
	EventCanceled EventKind = "canceled"
)

type OrderEvent struct {
	Time          time.Time
	Kind          EventKind
	Venue         string
	Pair          string
	Side          string
	ClientOrderID string
	OrderID       string
	TxID          string
	Price         string
	Quantity      string
	Error         string
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Writer queues events and inserts them from one goroutine. A nil *Writer
// accepts and drops everything.
type Writer struct {
	db      execer
	closer  func() error
	table   string
	log     *zap.Logger
	events  chan OrderEvent
	started atomic.Bool
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
}

// Open connects when cfg.Enabled and returns nil otherwise.
func Open(ctx context.Context, cfg config.JournalConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, core.Configf("journal dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: journal: %w", core.ErrNetwork, err)
	}
	w, err := newWriter(db, cfg.Table, defaultQueueSize, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	w.closer = db.Close
	if err := w.ensureSchema(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func newWriter(db execer, table string, queueSize int, log *zap.Logger) (*Writer, error) {
	if table == "" {
		table = "order_events"
	}
	if !tableName.MatchString(table) {
		return nil, core.Configf("journal table %q is not a valid identifier", table)
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:     db,
		table:  table,
		log:    log,
		events: make(chan OrderEvent, queueSize),
		done:   make(chan struct{}),
	}, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

// Record enqueues an event without blocking.
func (w *Writer) Record(event OrderEvent) {
	if w == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	select {
	case w.events <- event:
	default:
		if w.dropped.Add(1) == 1 {
			w.log.Warn("journal queue full")
		}
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

// Close drains queued events after the writer was started, then closes the
// connection.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	var err error
	w.once.Do(func() {
		if w.started.Load() {
			close(w.events)
			<-w.done
		}
		if w.closer != nil {
			err = w.closer()
		}
	})
	return err
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.events:
			if !ok {
				return
			}
			w.write(ctx, event)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		kind TEXT NOT NULL,
		venue TEXT NOT NULL,
		pair TEXT NOT NULL,
		side TEXT NOT NULL DEFAULT '',
		cloid TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		tx_id TEXT NOT NULL DEFAULT '',
		price NUMERIC,
		quantity NUMERIC,
		error TEXT NOT NULL DEFAULT ''
	)`, w.table)); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table)); err != nil {
		w.log.Warn("journal hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) write(ctx context.Context, event OrderEvent) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, kind, venue, pair, side, cloid, order_id, tx_id, price, quantity, error
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	)`, w.table)
	if _, err := w.db.ExecContext(ctx, query,
		event.Time,
		string(event.Kind),
		event.Venue,
		event.Pair,
		event.Side,
		event.ClientOrderID,
		event.OrderID,
		event.TxID,
		nullable(event.Price),
		nullable(event.Quantity),
		event.Error,
	); err != nil {
		w.log.Warn("journal insert failed", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
