package gateway

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"execution-core/pkg/config"
	exchange "execution-core/pkg/exchanges/common"
	"execution-core/pkg/exchanges/paper"
)

// Venue bundles what the core needs from one venue backend.
type Venue struct {
	Name    string
	Gateway exchange.Gateway
	Session exchange.Session
	Closer  io.Closer

	// Background runs venue-side workers such as a quote feed. May be nil.
	Background func(ctx context.Context)
}

// DefaultFactory creates the venue selected by cfg.Venue.
func DefaultFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Venue, error) {
	switch cfg.Venue {
	case "paper":
		return paperVenue(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported venue: %s", cfg.Venue)
	}
}

func paperVenue(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Venue, error) {
	pcfg := paper.DefaultConfig()
	pcfg.Balance = cfg.PaperBalance
	pcfg.Leverage = cfg.PaperLeverage

	known := make(map[string]exchange.SymbolInfo, len(pcfg.Symbols))
	for _, s := range pcfg.Symbols {
		known[s.Symbol] = s
	}
	prices := cfg.PaperPrices()
	if len(prices) > 0 {
		pcfg.Symbols = pcfg.Symbols[:0]
		for sym := range prices {
			spec, ok := known[sym]
			if !ok {
				spec = exchange.SymbolInfo{Symbol: sym, Point: 0.00001, Digits: 5, ContractSize: 100000, TickValue: 1, TickSize: 0.00001}
			}
			pcfg.Symbols = append(pcfg.Symbols, spec)
		}
	}

	v, err := paper.New(ctx, pcfg, logger.Named("paper"))
	if err != nil {
		return nil, fmt.Errorf("paper venue: %w", err)
	}

	out := &Venue{Name: "paper", Gateway: v, Session: v, Closer: v}
	if cfg.PaperFeed {
		points := make(map[string]float64, len(pcfg.Symbols))
		for _, s := range pcfg.Symbols {
			points[s.Symbol] = s.Point
		}
		seeds := make(map[string]float64, len(prices))
		for sym, p := range prices {
			if p > 0 {
				seeds[sym] = p
			}
		}
		feed := &paper.Feed{
			Venue:    v,
			Logger:   logger.Named("paper_feed"),
			Prices:   seeds,
			Point:    points,
			Interval: cfg.PaperFeedTick,
		}
		out.Background = feed.Run
	}
	return out, nil
}
