package order

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"execution-core/internal/botconfig"
	"execution-core/internal/venuetest"
	exchange "execution-core/pkg/exchanges/common"
)

func testBot() botconfig.BotConfig {
	return botconfig.BotConfig{
		BotID:     "bot-1",
		Symbol:    "EURUSD",
		Volume:    0.1,
		Deviation: 20,
		Magic:     7,
		Comment:   "unit",
	}.WithDefaults()
}

func TestBuildBindsSidePrice(t *testing.T) {
	tests := []struct {
		side      string
		wantSide  exchange.Side
		wantPrice float64
	}{
		{side: "buy", wantSide: exchange.SideBuy, wantPrice: 1.1002},
		{side: "BUY", wantSide: exchange.SideBuy, wantPrice: 1.1002},
		{side: "sell", wantSide: exchange.SideSell, wantPrice: 1.1000},
		{side: " Sell ", wantSide: exchange.SideSell, wantPrice: 1.1000},
	}

	for _, tt := range tests {
		t.Run(tt.side, func(t *testing.T) {
			gw := venuetest.New()
			gw.SetTicks("EURUSD", exchange.Tick{Ask: 1.1002, Bid: 1.1000})

			req, err := Build(context.Background(), gw, testBot(), tt.side, Overrides{})
			if err != nil {
				t.Fatalf("Build returned error: %v", err)
			}
			if req.Side != tt.wantSide {
				t.Fatalf("Side=%v, expected %v", req.Side, tt.wantSide)
			}
			if req.Price != tt.wantPrice {
				t.Fatalf("Price=%v, expected %v", req.Price, tt.wantPrice)
			}
			if req.Action != exchange.ActionDeal || req.Volume != 0.1 || req.Magic != 7 {
				t.Fatalf("req=%+v, expected DEAL volume 0.1 magic 7", req)
			}
			if req.TimePolicy != exchange.TimeGTC || req.FillPolicy != exchange.FillReturn {
				t.Fatalf("policies=%v/%v, expected GTC/RETURN", req.TimePolicy, req.FillPolicy)
			}
		})
	}
}

func TestBuildInvalidSideSkipsTick(t *testing.T) {
	gw := venuetest.New()
	gw.SetTicks("EURUSD", exchange.Tick{Ask: 1.1002, Bid: 1.1000})

	_, err := Build(context.Background(), gw, testBot(), "hold", Overrides{})
	var sideErr *InvalidSideError
	if !errors.As(err, &sideErr) {
		t.Fatalf("err=%v, expected *InvalidSideError", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err=%v, expected to match ErrValidation", err)
	}
	if gw.TickCalls() != 0 {
		t.Fatalf("TickCalls=%d, expected 0", gw.TickCalls())
	}
}

func TestBuildOverridesAndOmittedStops(t *testing.T) {
	gw := venuetest.New()
	gw.SetTicks("EURUSD", exchange.Tick{Ask: 1.1002, Bid: 1.1000})

	req, err := Build(context.Background(), gw, testBot(), "buy", Overrides{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if req.StopLoss != nil || req.TakeProfit != nil {
		t.Fatalf("sl=%v tp=%v, expected both unset", req.StopLoss, req.TakeProfit)
	}
	raw, _ := json.Marshal(req)
	if strings.Contains(string(raw), `"sl"`) || strings.Contains(string(raw), `"tp"`) {
		t.Fatalf("payload %s must not carry sl/tp", raw)
	}

	req, err = Build(context.Background(), gw, testBot(), "buy", Overrides{Volume: 0.5, StopLoss: 1.09, TakeProfit: 1.12})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if req.Volume != 0.5 {
		t.Fatalf("Volume=%v, expected 0.5", req.Volume)
	}
	if req.StopLoss == nil || *req.StopLoss != 1.09 || req.TakeProfit == nil || *req.TakeProfit != 1.12 {
		t.Fatalf("sl=%v tp=%v, expected 1.09/1.12", req.StopLoss, req.TakeProfit)
	}
}

func TestBuildRejectsNegativeOverrides(t *testing.T) {
	tests := []struct {
		name  string
		ov    Overrides
		field string
	}{
		{"volume", Overrides{Volume: -1}, "volume"},
		{"sl", Overrides{StopLoss: -0.1}, "sl"},
		{"tp", Overrides{TakeProfit: -0.1}, "tp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := venuetest.New()
			_, err := Build(context.Background(), gw, testBot(), "buy", tt.ov)
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tt.field {
				t.Fatalf("err=%v, expected ValidationError on %s", err, tt.field)
			}
		})
	}
}

func TestBuildSessionError(t *testing.T) {
	gw := venuetest.New()
	gw.SetTickErr(exchange.ErrSessionUnavailable)

	_, err := Build(context.Background(), gw, testBot(), "buy", Overrides{})
	if !errors.Is(err, ErrSession) {
		t.Fatalf("err=%v, expected session error", err)
	}
}

func TestCloseRequestInvertsSide(t *testing.T) {
	gw := venuetest.New()
	gw.SetTicks("EURUSD", exchange.Tick{Ask: 1.1002, Bid: 1.1000})

	pos := exchange.Position{Ticket: 11, Symbol: "EURUSD", Side: exchange.SideSell, Volume: 0.3, Magic: 9}
	req, err := closeRequest(context.Background(), gw, pos, 20, exchange.FillIOC)
	if err != nil {
		t.Fatalf("closeRequest returned error: %v", err)
	}
	if req.Side != exchange.SideBuy || req.Price != 1.1002 {
		t.Fatalf("side=%v price=%v, expected BUY at ask 1.1002", req.Side, req.Price)
	}
	if req.Volume != 0.3 || req.Position != 11 || req.Magic != 9 {
		t.Fatalf("req=%+v, expected full volume against ticket 11", req)
	}
}
