package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"crypto-client/internal/config"
	"crypto-client/internal/core"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const pairsYAML = `
pairs:
  - venue: newdex
    pair: EIDOS_EOS
    raw: eidosonecoin-eidos-eos
    base_contract: eidosonecoin
    quote_contract: eosio.token
    base_precision: 4
    quote_precision: 4
    price_precision: 8
  - venue: kraken
    pair: XBT_USD
    raw: XXBTZUSD
    base_precision: 8
    quote_precision: 1
    price_precision: 1
`

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	doc := "state:\n  sqlite_path: " + path + "\n" + pairsYAML
	cfg, err := config.Parse([]byte(doc), func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func TestNewRegistersVenuesWithCredentials(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"KRAKEN_API_KEY":    "key",
		"KRAKEN_API_SECRET": "c2VjcmV0",
	})
	a, err := New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	got := a.Trader().Venues()
	if len(got) != 2 || got[0] != "kraken" || got[1] != "newdex" {
		t.Fatalf("expected kraken and newdex, got %v", got)
	}
	if _, err := a.Trader().QueryAllBalances(context.Background(), "huobi"); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("expected configuration error for venue without keys, got %v", err)
	}
}

func TestNewdexOrderWithoutKeyFailsBeforeIO(t *testing.T) {
	cfg := loadConfig(t, nil)
	a, err := New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	intent := core.OrderIntent{
		Pair:          "EIDOS_EOS",
		Price:         decimal.RequireFromString("0.00121"),
		Quantity:      decimal.RequireFromString("9.2644"),
		Side:          core.Buy,
		ClientOrderID: "c1",
	}
	if _, err := a.Executor().PlaceOrder(context.Background(), "newdex", intent); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	receipts, err := a.Receipts(context.Background(), "")
	if err != nil {
		t.Fatalf("receipts: %v", err)
	}
	if len(receipts) != 0 {
		t.Fatalf("expected failed placement to leave no receipt, got %+v", receipts)
	}
}

func TestPairsListsConfiguredReferenceData(t *testing.T) {
	cfg := loadConfig(t, nil)
	a, err := New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	pairs, err := a.Pairs(context.Background(), "newdex")
	if err != nil {
		t.Fatalf("pairs: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Normalized != "EIDOS_EOS" || pairs[0].BaseContract != "eidosonecoin" {
		t.Fatalf("unexpected pairs %+v", pairs)
	}
}
