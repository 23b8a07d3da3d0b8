// Package app wires configuration into a ready trader, executor and their
// supporting stores.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"crypto-client/internal/alerts"
	"crypto-client/internal/config"
	"crypto-client/internal/core"
	"crypto-client/internal/eosio"
	"crypto-client/internal/exec"
	"crypto-client/internal/journal"
	"crypto-client/internal/metrics"
	"crypto-client/internal/refdata"
	"crypto-client/internal/retry"
	"crypto-client/internal/signing"
	"crypto-client/internal/state"
	"crypto-client/internal/state/sqlite"
	"crypto-client/internal/trader"
	"crypto-client/internal/venue/bitstamp"
	"crypto-client/internal/venue/huobi"
	"crypto-client/internal/venue/kraken"
	"crypto-client/internal/venue/newdex"
	"crypto-client/internal/venue/rest"
	"crypto-client/internal/venue/whaleex"

	"go.uber.org/zap"
)

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *sqlite.Store
	prom     *metrics.Prometheus
	metrics  *metrics.Metrics
	journal  *journal.Writer
	pairs    *refdata.Provider
	trader   *trader.Trader
	executor *exec.Executor
	server   *http.Server
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.State.SQLitePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
			return nil, err
		}
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, store: store, metrics: metrics.NewNoop()}
	if cfg.Metrics.EnabledValue() {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
	}
	venues, err := a.buildVenues(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	static, err := refdata.NewStatic(cfg.Pairs)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.pairs = refdata.New(static, log)
	a.trader = trader.New(a.pairs, cfg.SigningContext(), log, venues...)

	writer, err := journal.Open(ctx, cfg.Journal, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.journal = writer
	a.journal.Start(ctx)

	opts := exec.Options{
		Store:    store,
		Metrics:  a.metrics,
		Notifier: alerts.NewTelegram(cfg.Telegram, log),
		ReadRetry: retry.Policy{
			Attempts:  3,
			Backoff:   500 * time.Millisecond,
			Retryable: exec.RetryNetworkOnly,
		},
	}
	if writer != nil {
		opts.Journal = writer
	}
	a.executor = exec.New(a.trader, opts, log)
	log.Info("app initialized", zap.Strings("venues", a.trader.Venues()))
	return a, nil
}

func (a *App) Trader() *trader.Trader {
	return a.trader
}

func (a *App) Executor() *exec.Executor {
	return a.executor
}

// Pairs lists the reference data configured for venue.
func (a *App) Pairs(ctx context.Context, venue string) ([]core.TradingPair, error) {
	return a.pairs.Pairs(ctx, venue)
}

// Receipts lists recorded placements for venue, or all venues when empty.
func (a *App) Receipts(ctx context.Context, venue string) ([]state.Receipt, error) {
	return state.ListReceipts(ctx, a.store, venue)
}

// ServeMetrics exposes /metrics until ctx is done. It is a no-op when metrics
// are disabled.
func (a *App) ServeMetrics(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	a.server = &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}()
}

func (a *App) Close() error {
	var errs []error
	if err := a.journal.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// buildVenues registers every venue whose credentials are present. Venues
// left out report a configuration error when used.
func (a *App) buildVenues(ctx context.Context) ([]trader.Venue, error) {
	sc := a.cfg.SigningContext()
	var venues []trader.Venue

	dex, err := a.buildNewdex(sc)
	if err != nil {
		return nil, err
	}
	venues = append(venues, dex)

	for _, name := range []string{config.Kraken, config.Bitstamp, config.Huobi, config.WhaleEx} {
		if _, err := sc.Credentials(name); err != nil {
			a.log.Debug("venue skipped", zap.String("venue", name), zap.Error(err))
			continue
		}
		vc := a.cfg.Venues[name]
		transport, err := rest.New(name, vc.BaseURL, vc.Timeout, a.log)
		if err != nil {
			return nil, err
		}
		switch name {
		case config.Kraken:
			c, err := kraken.New(transport, sc, a.log)
			if err != nil {
				return nil, err
			}
			if err := a.attachNonces(ctx, c.Nonces()); err != nil {
				return nil, err
			}
			venues = append(venues, c)
		case config.Bitstamp:
			c, err := bitstamp.New(transport, sc, a.log)
			if err != nil {
				return nil, err
			}
			if err := a.attachNonces(ctx, c.Nonces()); err != nil {
				return nil, err
			}
			venues = append(venues, c)
		case config.Huobi:
			c, err := huobi.New(transport, sc, a.log)
			if err != nil {
				return nil, err
			}
			venues = append(venues, c)
		case config.WhaleEx:
			if !sc.HasEOS() {
				a.log.Debug("venue skipped", zap.String("venue", name), zap.String("reason", "eos account required"))
				continue
			}
			refills := a.metrics.IDPoolRefills
			c, err := whaleex.New(transport, sc, whaleex.Options{
				Pool: whaleex.PoolOptions{OnRefill: func(int) { refills.Inc() }},
			}, a.log)
			if err != nil {
				return nil, err
			}
			venues = append(venues, c)
		}
	}
	return venues, nil
}

func (a *App) buildNewdex(sc core.SigningContext) (*newdex.Client, error) {
	eos := a.cfg.EOS
	rpc, err := eosio.NewClient(eos.Endpoints, eos.ChainID, eos.Timeout, a.log)
	if err != nil {
		return nil, err
	}
	failures := a.metrics.EndpointFailures
	rpc.OnEndpointFailure(func(endpoint string, err error) {
		failures.Inc()
		a.log.Debug("eos endpoint failed", zap.String("endpoint", endpoint), zap.Error(err))
	})
	explorer, err := eosio.NewExplorer(eos.ExplorerEndpoints, eos.Timeout, a.log)
	if err != nil {
		return nil, err
	}
	var contracts []string
	seen := make(map[string]bool)
	for _, p := range a.cfg.Pairs {
		if p.Venue != config.Newdex || p.BaseContract == "" || seen[p.BaseContract] {
			continue
		}
		seen[p.BaseContract] = true
		contracts = append(contracts, p.BaseContract)
	}
	return newdex.New(rpc, explorer, sc, newdex.Options{
		PollInterval:   eos.PollInterval,
		ResolveTimeout: eos.ResolveTimeout,
		TokenContracts: contracts,
		Referral:       eos.Referral,
	}, a.log)
}

func (a *App) attachNonces(ctx context.Context, nonces *signing.NonceSource) error {
	nonces.SetLogger(a.log)
	return nonces.Attach(ctx, a.store)
}
