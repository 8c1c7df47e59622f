package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"execution-core/internal/venuetest"
	"execution-core/pkg/cache"
	exchange "execution-core/pkg/exchanges/common"
)

type countingSymbols struct {
	exchange.Gateway
	calls atomic.Int32
}

func (g *countingSymbols) GetSymbolInfo(ctx context.Context, symbol string) (exchange.SymbolInfo, error) {
	g.calls.Add(1)
	return g.Gateway.GetSymbolInfo(ctx, symbol)
}

func TestSymbolCachingGateway(t *testing.T) {
	venue := venuetest.New()
	venue.SetSymbol(exchange.SymbolInfo{Symbol: "EURUSD", Point: 0.00001})
	inner := &countingSymbols{Gateway: venue}
	gw := NewSymbolCachingGateway(inner, cache.NewShardedSymbolCache(0, 0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := gw.GetSymbolInfo(ctx, "EURUSD")
		if err != nil || info.Point != 0.00001 {
			t.Fatalf("info=%+v err=%v, expected EURUSD point", info, err)
		}
	}
	if n := inner.calls.Load(); n != 1 {
		t.Fatalf("venue calls=%d, expected 1", n)
	}

	if _, err := gw.GetSymbolInfo(ctx, "NOPE"); err == nil {
		t.Fatalf("expected an error for an unknown symbol")
	}
	if _, err := gw.GetSymbolInfo(ctx, "NOPE"); err == nil {
		t.Fatalf("failed lookups must not be cached")
	}
	if n := inner.calls.Load(); n != 3 {
		t.Fatalf("venue calls=%d, expected 3", n)
	}

	// other calls pass straight through
	if _, err := gw.GetPosition(ctx, 1); !errors.Is(err, exchange.ErrPositionNotFound) {
		t.Fatalf("err=%v, expected ErrPositionNotFound", err)
	}
}
