package common_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"execution-core/internal/venuetest"
	exchange "execution-core/pkg/exchanges/common"
)

func TestRateLimitedGatewayPassesThrough(t *testing.T) {
	venue := venuetest.New()
	venue.SetTicks("EURUSD", exchange.Tick{Ask: 1.1, Bid: 1.0999})
	gw := exchange.NewRateLimitedGateway(venue, 0, 0, nil)

	for i := 0; i < 50; i++ {
		if _, err := gw.GetTick(context.Background(), "EURUSD"); err != nil {
			t.Fatalf("GetTick: %v", err)
		}
	}
	if venue.TickCalls() != 50 {
		t.Fatalf("TickCalls=%d, expected 50", venue.TickCalls())
	}
}

func TestRateLimitedGatewayThrottles(t *testing.T) {
	venue := venuetest.New()
	venue.SetTicks("EURUSD", exchange.Tick{Ask: 1.1, Bid: 1.0999})
	gw := exchange.NewRateLimitedGateway(venue, 20, 1, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := gw.GetTick(context.Background(), "EURUSD"); err != nil {
			t.Fatalf("GetTick: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("elapsed=%v, expected the limiter to space calls", elapsed)
	}
}

func TestRateLimitedGatewayHonorsContext(t *testing.T) {
	venue := venuetest.New()
	gw := exchange.NewRateLimitedGateway(venue, 0.001, 1, nil)
	ctx := context.Background()

	if _, err := gw.GetAccountInfo(ctx); err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err := gw.SubmitOrder(cctx, exchange.OrderRequest{Symbol: "EURUSD"})
	if err == nil {
		t.Fatalf("expected a limiter error once the context cannot wait")
	}
	if len(venue.Requests()) != 0 {
		t.Fatalf("requests=%d, expected the order to be held back", len(venue.Requests()))
	}
	if errors.Is(err, exchange.ErrSessionUnavailable) {
		t.Fatalf("err=%v, limiter errors must not look like a session loss", err)
	}
}
