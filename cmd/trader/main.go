// Command trader places, cancels and queries orders on any configured venue.
//
//	trader [-config path] place    -venue newdex -pair EIDOS_EOS -side buy -price 0.00121 -quantity 9.2644
//	trader [-config path] place    -venue whaleex -pair IQ_EOS -side buy -type market -quantity 2.5
//	trader [-config path] cancel   -venue kraken -pair XBT_USD -id OABC
//	trader [-config path] cancel   -venue newdex -pair EIDOS_EOS -id 812
//	trader [-config path] cancel   -venue newdex -cloid 5f0c...
//	trader [-config path] query    -venue newdex -pair EIDOS_EOS -id 812 -pair-id 35
//	trader [-config path] balances -venue huobi
//	trader [-config path] receipts [-venue whaleex]
//	trader [-config path] pairs    -venue newdex
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"crypto-client/internal/app"
	"crypto-client/internal/config"
	"crypto-client/internal/core"
	"crypto-client/internal/logging"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	defer application.Close()
	application.ServeMetrics(ctx)

	result, err := run(ctx, application, flag.Arg(0), flag.Args()[1:])
	if result != nil {
		printJSON(result)
	}
	if err != nil {
		if partial, ok := core.AsPartialSuccess(err); ok {
			log.Error("order submitted but not resolved", zap.String("tx_id", partial.TxID), zap.Error(partial.Err))
		}
		fmt.Fprintln(os.Stderr, err)
		_ = application.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, command string, args []string) (any, error) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	venue := fs.String("venue", "", "venue name")
	pair := fs.String("pair", "", "normalized pair, e.g. EIDOS_EOS")
	side := fs.String("side", "buy", "buy or sell")
	kind := fs.String("type", "limit", "limit or market")
	price := fs.String("price", "", "limit price")
	quantity := fs.String("quantity", "", "base quantity")
	cloid := fs.String("cloid", "", "client order id")
	orderID := fs.String("id", "", "venue order id")
	txID := fs.String("tx", "", "transaction id")
	pairID := fs.String("pair-id", "", "on-chain pair id")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	id := core.OrderIdentifier{OrderID: *orderID, TxID: *txID, PairID: *pairID}

	switch command {
	case "place":
		var p decimal.Decimal
		if core.OrderKind(*kind) != core.Market {
			var err error
			if p, err = decimal.NewFromString(*price); err != nil {
				return nil, fmt.Errorf("%w: price: %w", core.ErrInvalidOrder, err)
			}
		}
		q, err := decimal.NewFromString(*quantity)
		if err != nil {
			return nil, fmt.Errorf("%w: quantity: %w", core.ErrInvalidOrder, err)
		}
		intent := core.OrderIntent{
			Pair:          *pair,
			Price:         p,
			Quantity:      q,
			Side:          core.Side(*side),
			Kind:          core.OrderKind(*kind),
			ClientOrderID: *cloid,
		}
		if intent.Side != core.Buy && intent.Side != core.Sell {
			return nil, fmt.Errorf("%w: side must be buy or sell", core.ErrInvalidOrder)
		}
		receipt, err := a.Executor().PlaceOrder(ctx, *venue, intent)
		if _, partial := core.AsPartialSuccess(err); err != nil && !partial {
			return nil, err
		}
		return receipt, err
	case "cancel":
		if *cloid != "" {
			return nil, a.Executor().CancelByClientID(ctx, *venue, *cloid)
		}
		return nil, a.Executor().CancelOrder(ctx, *venue, *pair, id)
	case "query":
		state, err := a.Executor().QueryOrder(ctx, *venue, *pair, id)
		if err != nil {
			return nil, err
		}
		if state == nil {
			return nil, core.ErrOrderNotFound
		}
		return state, nil
	case "balances":
		balances, err := a.Executor().QueryAllBalances(ctx, *venue)
		if err != nil {
			return nil, err
		}
		return balances, nil
	case "pairs":
		pairs, err := a.Pairs(ctx, *venue)
		if err != nil {
			return nil, err
		}
		return pairs, nil
	case "receipts":
		receipts, err := a.Receipts(ctx, *venue)
		if err != nil {
			return nil, err
		}
		return receipts, nil
	default:
		return nil, errors.New("unknown command " + command)
	}
}

func printJSON(v any) {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(pretty))
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config path] [-env file] place|cancel|query|balances|receipts|pairs [flags]\n", os.Args[0])
	flag.PrintDefaults()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
