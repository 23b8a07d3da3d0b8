package refdata

import (
	"context"
	"fmt"

	"crypto-client/internal/config"
	"crypto-client/internal/core"
)

// Static serves pairs declared in the config file.
type Static struct {
	byVenue map[string][]core.TradingPair
}

func NewStatic(pairs []config.PairConfig) (*Static, error) {
	s := &Static{byVenue: make(map[string][]core.TradingPair)}
	for i, p := range pairs {
		info, err := p.TradingPair()
		if err != nil {
			return nil, fmt.Errorf("pairs[%d]: %w", i, err)
		}
		s.byVenue[info.Venue] = append(s.byVenue[info.Venue], info)
	}
	return s, nil
}

func (s *Static) Load(_ context.Context, venue string) ([]core.TradingPair, error) {
	pairs, ok := s.byVenue[venue]
	if !ok {
		return nil, core.Configf("no pairs configured for %s", venue)
	}
	return pairs, nil
}
