package gateway

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"execution-core/pkg/config"
)

func TestDefaultFactoryPaper(t *testing.T) {
	cfg := &config.Config{
		Venue:         "paper",
		PaperBalance:  5000,
		PaperLeverage: 50,
		PaperSymbols:  []string{"EURUSD=1.085", "USDJPY=150.25"},
		PaperFeed:     true,
		PaperFeedTick: time.Hour,
	}
	ctx := context.Background()
	venue, err := DefaultFactory(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("DefaultFactory returned error: %v", err)
	}
	defer venue.Closer.Close()

	if venue.Name != "paper" || venue.Background == nil {
		t.Fatalf("venue=%+v, expected paper with a feed", venue)
	}
	if err := venue.Session.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	acct, err := venue.Gateway.GetAccountInfo(ctx)
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if acct.Balance != 5000 || acct.Leverage != 50 {
		t.Fatalf("account=%+v, expected balance 5000 leverage 50", acct)
	}
	info, err := venue.Gateway.GetSymbolInfo(ctx, "USDJPY")
	if err != nil {
		t.Fatalf("GetSymbolInfo: %v", err)
	}
	if info.Point <= 0 {
		t.Fatalf("USDJPY point=%v, expected a positive point", info.Point)
	}
}

func TestDefaultFactoryWithoutFeed(t *testing.T) {
	cfg := &config.Config{Venue: "paper", PaperBalance: 1000, PaperLeverage: 100}
	venue, err := DefaultFactory(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("DefaultFactory returned error: %v", err)
	}
	defer venue.Closer.Close()
	if venue.Background != nil {
		t.Fatalf("Background set with the feed disabled")
	}
}

func TestDefaultFactoryUnsupported(t *testing.T) {
	cfg := &config.Config{Venue: "mt5"}
	if _, err := DefaultFactory(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected error for an unsupported venue")
	}
}
