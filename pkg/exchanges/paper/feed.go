package paper

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	exchange "execution-core/pkg/exchanges/common"
)

// Quoter receives synthetic quotes. *Venue satisfies it.
type Quoter interface {
	SetTick(t exchange.Tick)
}

// Feed generates random-walk quotes for local development.
type Feed struct {
	Venue    Quoter
	Logger   *zap.Logger
	Prices   map[string]float64 // symbol -> initial mid price
	Point    map[string]float64 // symbol -> point size; defaults to 0.00001
	Step     float64            // max mid move per interval, in points
	Spread   float64            // ask-bid distance, in points
	Interval time.Duration
}

// Run seeds one quote per symbol immediately and then walks prices until ctx ends.
func (f *Feed) Run(ctx context.Context) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if f.Venue == nil || len(f.Prices) == 0 {
		logger.Info("paper feed not configured; skipping")
		return
	}
	step := f.Step
	if step == 0 {
		step = 5
	}
	spread := f.Spread
	if spread == 0 {
		spread = 2
	}
	interval := f.Interval
	if interval == 0 {
		interval = time.Second
	}

	mids := make(map[string]float64, len(f.Prices))
	for sym, price := range f.Prices {
		mids[sym] = price
		f.Venue.SetTick(f.quote(sym, price, spread))
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for sym, mid := range mids {
				// simple random walk
				mid += (rand.Float64()*2 - 1) * step * f.point(sym)
				mids[sym] = mid
				f.Venue.SetTick(f.quote(sym, mid, spread))
			}
		}
	}
}

func (f *Feed) point(sym string) float64 {
	if p, ok := f.Point[sym]; ok && p > 0 {
		return p
	}
	return 0.00001
}

func (f *Feed) quote(sym string, mid, spread float64) exchange.Tick {
	pt := decimal.NewFromFloat(f.point(sym))
	half := decimal.NewFromFloat(spread).Mul(pt).Div(decimal.NewFromInt(2))
	m := decimal.NewFromFloat(mid).Div(pt).Round(0).Mul(pt)
	ask, _ := m.Add(half).Div(pt).Round(0).Mul(pt).Float64()
	bid, _ := m.Sub(half).Div(pt).Round(0).Mul(pt).Float64()
	return exchange.Tick{Symbol: sym, Ask: ask, Bid: bid, TimeMs: time.Now().UnixMilli()}
}
