package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"crypto-client/internal/core"

	"gopkg.in/yaml.v3"
)

const (
	Kraken   = "kraken"
	Bitstamp = "bitstamp"
	Huobi    = "huobi"
	WhaleEx  = "whaleex"
	Newdex   = "newdex"
)

// Venues lists every venue the client can dispatch to.
var Venues = []string{Kraken, Bitstamp, Huobi, WhaleEx, Newdex}

const EOSMainnetChainID = "aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906"

type Config struct {
	Log      LoggingConfig          `yaml:"log"`
	EOS      EOSConfig              `yaml:"eos"`
	Venues   map[string]VenueConfig `yaml:"venues"`
	Pairs    []PairConfig           `yaml:"pairs"`
	State    StateConfig            `yaml:"state"`
	Metrics  MetricsConfig          `yaml:"metrics"`
	Telegram TelegramConfig         `yaml:"telegram"`
	Journal  JournalConfig          `yaml:"journal"`

	signing core.SigningContext
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type EOSConfig struct {
	Endpoints         []string      `yaml:"endpoints"`
	ExplorerEndpoints []string      `yaml:"explorer_endpoints"`
	ChainID           string        `yaml:"chain_id"`
	Timeout           time.Duration `yaml:"timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ResolveTimeout    time.Duration `yaml:"resolve_timeout"`
	// Referral is the ref tag written into Newdex order memos.
	Referral string `yaml:"referral"`
}

type VenueConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PairConfig is the reference data for one market on one venue.
type PairConfig struct {
	Venue          string  `yaml:"venue"`
	Pair           string  `yaml:"pair"`
	Raw            string  `yaml:"raw"`
	BaseContract   string  `yaml:"base_contract"`
	QuoteContract  string  `yaml:"quote_contract"`
	BasePrecision  int32   `yaml:"base_precision"`
	QuotePrecision int32   `yaml:"quote_precision"`
	PricePrecision int32   `yaml:"price_precision"`
	MinOrderVolume Decimal `yaml:"min_order_volume"`
}

func (p PairConfig) TradingPair() (core.TradingPair, error) {
	base, quote, err := core.SplitPair(p.Pair)
	if err != nil {
		return core.TradingPair{}, err
	}
	raw := p.Raw
	if raw == "" {
		raw = base + quote
	}
	return core.TradingPair{
		Venue:          p.Venue,
		Normalized:     p.Pair,
		Raw:            raw,
		BaseSymbol:     base,
		QuoteSymbol:    quote,
		BaseContract:   p.BaseContract,
		QuoteContract:  p.QuoteContract,
		BasePrecision:  p.BasePrecision,
		QuotePrecision: p.QuotePrecision,
		PricePrecision: p.PricePrecision,
		MinOrderVolume: p.MinOrderVolume.Decimal,
	}, nil
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes a YAML document and applies defaults and environment
// overrides from lookup.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg, lookup)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SigningContext returns the secrets read from the environment.
func (c *Config) SigningContext() core.SigningContext {
	return c.signing
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 50
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 10
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 14
		}
	}
	if len(cfg.EOS.Endpoints) == 0 {
		cfg.EOS.Endpoints = []string{
			"https://eos.greymass.com",
			"https://api.eosnewyork.io",
			"https://eos.eosphere.io",
		}
	}
	if len(cfg.EOS.ExplorerEndpoints) == 0 {
		cfg.EOS.ExplorerEndpoints = []string{"https://api.eossweden.org"}
	}
	if cfg.EOS.ChainID == "" {
		cfg.EOS.ChainID = EOSMainnetChainID
	}
	if cfg.EOS.Timeout == 0 {
		cfg.EOS.Timeout = 8 * time.Second
	}
	if cfg.EOS.PollInterval == 0 {
		cfg.EOS.PollInterval = time.Second
	}
	if cfg.EOS.ResolveTimeout == 0 {
		cfg.EOS.ResolveTimeout = 30 * time.Second
	}
	if cfg.Venues == nil {
		cfg.Venues = make(map[string]VenueConfig)
	}
	defaultURLs := map[string]string{
		Kraken:   "https://api.kraken.com",
		Bitstamp: "https://www.bitstamp.net",
		Huobi:    "https://api.huobi.pro",
		WhaleEx:  "https://api.whaleex.com",
	}
	for venue, url := range defaultURLs {
		v := cfg.Venues[venue]
		if v.BaseURL == "" {
			v.BaseURL = url
		}
		if v.Timeout == 0 {
			v.Timeout = 10 * time.Second
		}
		cfg.Venues[venue] = v
	}
	for i := range cfg.Pairs {
		cfg.Pairs[i].Venue = strings.ToLower(strings.TrimSpace(cfg.Pairs[i].Venue))
		cfg.Pairs[i].Pair = strings.ToUpper(strings.TrimSpace(cfg.Pairs[i].Pair))
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/crypto-client.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := false
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9102"
	}
	if cfg.Journal.Table == "" {
		cfg.Journal.Table = "order_events"
	}
}

// applyEnvOverrides reads secrets, which never live in the YAML file.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	cfg.signing = core.SigningContext{
		EOSAccount:    get("EOS_ACCOUNT"),
		EOSPrivateKey: get("EOS_PRIVATE_KEY"),
		APIKeys:       make(map[string]core.APICredentials),
	}
	for _, venue := range Venues {
		prefix := strings.ToUpper(venue)
		creds := core.APICredentials{
			Key:    get(prefix + "_API_KEY"),
			Secret: get(prefix + "_API_SECRET"),
		}
		if venue == Bitstamp {
			creds.CustomerID = get("BITSTAMP_CUSTOMER_ID")
		}
		if creds.Key != "" || creds.Secret != "" {
			cfg.signing.APIKeys[venue] = creds
		}
	}
	if token := get("TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := get("TELEGRAM_CHAT_ID"); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if dsn := get("JOURNAL_DSN"); dsn != "" {
		cfg.Journal.DSN = dsn
	}
}

func validate(cfg *Config) error {
	var errs []error
	if cfg.EOS.Timeout < 0 {
		errs = append(errs, errors.New("eos.timeout must be >= 0"))
	}
	for venue := range cfg.Venues {
		if !IsVenue(venue) {
			errs = append(errs, fmt.Errorf("venues.%s is not a supported venue", venue))
		}
	}
	seen := make(map[string]bool)
	for i, p := range cfg.Pairs {
		if !IsVenue(p.Venue) {
			errs = append(errs, fmt.Errorf("pairs[%d].venue %q is not supported", i, p.Venue))
		}
		if _, _, err := core.SplitPair(p.Pair); err != nil {
			errs = append(errs, fmt.Errorf("pairs[%d]: %w", i, err))
		}
		if p.BasePrecision < 0 || p.QuotePrecision < 0 || p.PricePrecision < 0 {
			errs = append(errs, fmt.Errorf("pairs[%d] precisions must be >= 0", i))
		}
		key := p.Venue + "/" + p.Pair
		if seen[key] {
			errs = append(errs, fmt.Errorf("pairs[%d] duplicates %s", i, key))
		}
		seen[key] = true
	}
	if cfg.Journal.Enabled && strings.TrimSpace(cfg.Journal.DSN) == "" {
		errs = append(errs, errors.New("journal.dsn is required when journal is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

func IsVenue(name string) bool {
	for _, v := range Venues {
		if v == name {
			return true
		}
	}
	return false
}
