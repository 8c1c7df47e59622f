package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TRAIL_INTERVAL", "")
	t.Setenv("SUBMIT_MAX_ATTEMPTS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port=%v, expected 8080", cfg.Port)
	}
	if cfg.TrailInterval != 5*time.Second {
		t.Fatalf("TrailInterval=%v, expected 5s", cfg.TrailInterval)
	}
	if cfg.SubmitMaxAttempts != 3 {
		t.Fatalf("SubmitMaxAttempts=%v, expected 3", cfg.SubmitMaxAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRAIL_INTERVAL", "250ms")
	t.Setenv("SUBMIT_MAX_ATTEMPTS", "5")
	t.Setenv("VENUE", "PAPER")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.TrailInterval != 250*time.Millisecond {
		t.Fatalf("TrailInterval=%v, expected 250ms", cfg.TrailInterval)
	}
	if cfg.SubmitMaxAttempts != 5 {
		t.Fatalf("SubmitMaxAttempts=%v, expected 5", cfg.SubmitMaxAttempts)
	}
	if cfg.Venue != "paper" {
		t.Fatalf("Venue=%v, expected paper", cfg.Venue)
	}
}

func TestLoadRejectsNonPositiveAttempts(t *testing.T) {
	t.Setenv("SUBMIT_MAX_ATTEMPTS", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero attempts")
	}
}

func TestPaperPrices(t *testing.T) {
	cfg := &Config{PaperSymbols: []string{"eurusd=1.1", "XAUUSD = 2350.5", "GBPUSD"}}
	got := cfg.PaperPrices()
	want := map[string]float64{"EURUSD": 1.1, "XAUUSD": 2350.5, "GBPUSD": 0}
	for sym, price := range want {
		if got[sym] != price {
			t.Fatalf("price[%s]=%v, expected %v", sym, got[sym], price)
		}
	}
}
