package common

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"BUY", SideBuy, false},
		{"buy", SideBuy, false},
		{" Sell ", SideSell, false},
		{"long", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSide(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseSide(%q) err=%v, expected error=%v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseSide(%q)=%v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestSideOppositeAndPrice(t *testing.T) {
	tick := Tick{Ask: 1.2, Bid: 1.1}
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Fatalf("Opposite does not invert sides")
	}
	if tick.PriceFor(SideBuy) != 1.2 || tick.PriceFor(SideSell) != 1.1 {
		t.Fatalf("PriceFor buy=%v sell=%v, expected ask then bid", tick.PriceFor(SideBuy), tick.PriceFor(SideSell))
	}
}

func TestOrderRequestOmitsUnsetStops(t *testing.T) {
	req := OrderRequest{Action: ActionDeal, Symbol: "EURUSD", Side: SideBuy, Volume: 0.1}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(raw), `"sl"`) || strings.Contains(string(raw), `"tp"`) {
		t.Fatalf("payload=%s, expected no sl/tp keys", raw)
	}

	req.StopLoss = Float(0)
	raw, _ = json.Marshal(req)
	if !strings.Contains(string(raw), `"sl":0`) {
		t.Fatalf("payload=%s, expected an explicit zero sl", raw)
	}
}

func TestRetCodeString(t *testing.T) {
	if RetCodeDone.String() != "DONE" {
		t.Fatalf("String=%v, expected DONE", RetCodeDone.String())
	}
	if got := RetCode(42).String(); got != "RETCODE_42" {
		t.Fatalf("String=%v, expected RETCODE_42", got)
	}
	if !(OrderResult{RetCode: RetCodeDone}).Accepted() || (OrderResult{RetCode: RetCodeRequote}).Accepted() {
		t.Fatalf("Accepted must hold only for DONE")
	}
}
