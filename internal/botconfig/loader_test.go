package botconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	exchange "execution-core/pkg/exchanges/common"
)

const sampleBots = `
bots:
  - id: scalper
    symbol: EURUSD
    volume: 0.2
    deviation: 5
    magic: 1001
    comment: scalper-v1
    type_time: GTC
    type_filling: IOC
  - id: gold
    symbol: XAUUSD
`

func TestParseAppliesDefaults(t *testing.T) {
	cfgs, err := Parse([]byte(sampleBots))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("len=%d, expected 2", len(cfgs))
	}
	if cfgs[0].Volume != 0.2 || cfgs[0].FillPolicy != exchange.FillIOC || cfgs[0].Magic != 1001 {
		t.Fatalf("scalper=%+v, expected explicit fields kept", cfgs[0])
	}
	gold := cfgs[1]
	if gold.Volume != DefaultVolume || gold.Deviation != DefaultDeviation {
		t.Fatalf("gold=%+v, expected default volume and deviation", gold)
	}
	if gold.TimePolicy != exchange.TimeGTC || gold.FillPolicy != exchange.FillReturn {
		t.Fatalf("gold=%+v, expected GTC/RETURN defaults", gold)
	}
	if gold.Comment != DefaultComment || cfgs[0].Comment != "scalper-v1" {
		t.Fatalf("comments=%q/%q, expected default and explicit", gold.Comment, cfgs[0].Comment)
	}
}

func TestExplicitZeroDeviationKept(t *testing.T) {
	tests := []struct {
		name   string
		decode func() (BotConfig, error)
	}{
		{"yaml", func() (BotConfig, error) {
			cfgs, err := Parse([]byte("bots:\n  - id: exact\n    symbol: EURUSD\n    deviation: 0\n    comment: \"\"\n"))
			if err != nil || len(cfgs) != 1 {
				return BotConfig{}, err
			}
			return cfgs[0], nil
		}},
		{"json", func() (BotConfig, error) {
			var cfg BotConfig
			err := json.Unmarshal([]byte(`{"id":"exact","symbol":"EURUSD","deviation":0,"comment":""}`), &cfg)
			return cfg.WithDefaults(), err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.decode()
			if err != nil {
				t.Fatalf("decode returned error: %v", err)
			}
			if cfg.Deviation != 0 || cfg.Comment != "" {
				t.Fatalf("deviation=%d comment=%q, expected explicit zero values kept", cfg.Deviation, cfg.Comment)
			}
			if cfg.Volume != DefaultVolume || cfg.FillPolicy != exchange.FillReturn {
				t.Fatalf("cfg=%+v, expected absent fields defaulted", cfg)
			}
			if err := NewRegistry().Register(cfg); err != nil {
				t.Fatalf("Register returned error: %v", err)
			}
		})
	}
}

func TestJSONAbsentDeviationDefaults(t *testing.T) {
	var cfg BotConfig
	if err := json.Unmarshal([]byte(`{"id":"b","symbol":"EURUSD"}`), &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cfg.Deviation != DefaultDeviation || cfg.Comment != DefaultComment {
		t.Fatalf("cfg=%+v, expected default deviation and comment", cfg)
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("bots: [")); err == nil {
		t.Fatalf("expected a decode error")
	}
}

func TestLoadFileAndRegisterAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots.yaml")
	if err := os.WriteFile(path, []byte(sampleBots), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfgs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}

	r := NewRegistry()
	if err := r.RegisterAll(cfgs); err != nil {
		t.Fatalf("RegisterAll returned error: %v", err)
	}
	if ids := r.IDs(); len(ids) != 2 || ids[0] != "gold" || ids[1] != "scalper" {
		t.Fatalf("IDs=%v, expected [gold scalper]", ids)
	}
	if err := r.RegisterAll(cfgs); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Fatalf("err=%v, expected a not-exist error", err)
	}
}
