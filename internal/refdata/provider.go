package refdata

import (
	"context"
	"sort"
	"strings"
	"sync"

	"crypto-client/internal/core"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader fetches every pair a venue lists.
type Loader interface {
	Load(ctx context.Context, venue string) ([]core.TradingPair, error)
}

type LoaderFunc func(ctx context.Context, venue string) ([]core.TradingPair, error)

func (f LoaderFunc) Load(ctx context.Context, venue string) ([]core.TradingPair, error) {
	return f(ctx, venue)
}

// Provider loads each venue's pairs once per process and serves them
// read-only afterwards. Failed loads are not cached.
type Provider struct {
	loader Loader
	log    *zap.Logger
	group  singleflight.Group

	mu     sync.RWMutex
	venues map[string]map[string]core.TradingPair
}

func New(loader Loader, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{
		loader: loader,
		log:    log,
		venues: make(map[string]map[string]core.TradingPair),
	}
}

func (p *Provider) PairInfo(ctx context.Context, venue, pair string) (core.TradingPair, error) {
	pairs, err := p.venue(ctx, venue)
	if err != nil {
		return core.TradingPair{}, err
	}
	info, ok := pairs[strings.ToUpper(pair)]
	if !ok {
		return core.TradingPair{}, core.Configf("pair %s is not listed on %s", pair, venue)
	}
	return info, nil
}

// Pairs returns the venue's pairs sorted by normalized name.
func (p *Provider) Pairs(ctx context.Context, venue string) ([]core.TradingPair, error) {
	pairs, err := p.venue(ctx, venue)
	if err != nil {
		return nil, err
	}
	out := make([]core.TradingPair, 0, len(pairs))
	for _, info := range pairs {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Normalized < out[j].Normalized })
	return out, nil
}

func (p *Provider) venue(ctx context.Context, venue string) (map[string]core.TradingPair, error) {
	venue = strings.ToLower(venue)
	p.mu.RLock()
	pairs, ok := p.venues[venue]
	p.mu.RUnlock()
	if ok {
		return pairs, nil
	}
	v, err, _ := p.group.Do(venue, func() (any, error) {
		p.mu.RLock()
		cached, ok := p.venues[venue]
		p.mu.RUnlock()
		if ok {
			return cached, nil
		}
		list, err := p.loader.Load(ctx, venue)
		if err != nil {
			return nil, err
		}
		loaded := make(map[string]core.TradingPair, len(list))
		for _, info := range list {
			loaded[strings.ToUpper(info.Normalized)] = info
		}
		p.mu.Lock()
		p.venues[venue] = loaded
		p.mu.Unlock()
		p.log.Info("reference data loaded", zap.String("venue", venue), zap.Int("pairs", len(loaded)))
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]core.TradingPair), nil
}
