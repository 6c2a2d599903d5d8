package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mmu-quoter/order"
	"mmu-quoter/strategy"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
exchange:
  symbol: ETH-USD
credentials:
  token: tok
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Exchange.Symbol != "ETH-USD" || cfg.Exchange.TimeInForce != "alo" || cfg.Exchange.Chain != "bsc" {
		t.Fatalf("unexpected exchange values: %+v", cfg.Exchange)
	}
	q := cfg.Quote
	if q.TargetBps != 9 || *q.MinBps != 4.5 || q.MaxBps != 9.2 || q.LadderLevels != 1 {
		t.Fatalf("unexpected quote defaults: %+v", q)
	}
	if q.LoopMs != 15000 || *q.MinRefreshMs != 20000 || q.OrderCheckMs != 15000 {
		t.Fatalf("unexpected timing defaults: %+v", q)
	}
	if q.StopOnFill == nil || !*q.StopOnFill || q.OwnershipTag != "MMU" || *q.MinIntervalCeiling != 10 {
		t.Fatalf("unexpected policy defaults: %+v", q)
	}
	if cfg.Log.Level != "info" || cfg.Credentials.KeyFile != "standx_ed25519.json" {
		t.Fatalf("unexpected ambient defaults: %+v %+v", cfg.Log, cfg.Credentials)
	}
}

func TestUSDModeDerivesBand(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
quote:
  absSpreadUsd: 1000
  ladderLevels: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *cfg.Quote.AbsMinUSD != 300 || cfg.Quote.AbsMaxUSD != 1500 || *cfg.Quote.MinIntervalCeiling != 1500 {
		t.Fatalf("unexpected usd band: %+v", cfg.Quote)
	}

	small := Default()
	small.Quote = QuoteConfig{AbsSpreadUSD: 20}
	ApplyDefaults(&small)
	if *small.Quote.AbsMinUSD != 50 || small.Quote.AbsMaxUSD != 70 {
		t.Fatalf("small spread band: min=%v max=%v", *small.Quote.AbsMinUSD, small.Quote.AbsMaxUSD)
	}

	ec := cfg.EngineConfig()
	if ec.Ladder.Mode != strategy.ModeUSD || ec.Band.Mode != strategy.ModeUSD {
		t.Fatalf("expected usd mode")
	}
	if ec.Band.Min.String() != "300" || ec.Band.Max.String() != "1500" || ec.Ladder.AbsStep.String() != "100" {
		t.Fatalf("unexpected band %+v ladder %+v", ec.Band, ec.Ladder)
	}
}

func TestEngineConfig(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
exchange:
  reduceOnly: true
quote:
  qty: 0.0002
  qtyMax: 0.0003
  stopOnFill: false
  revalidateLadder: false
  ladderLevels: 3
alert:
  errorCycles: 7
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ec := cfg.EngineConfig()
	if ec.Symbol != "BTC-USD" || !ec.ReduceOnly || ec.LoopInterval != 15*time.Second {
		t.Fatalf("unexpected engine config: %+v", ec)
	}
	if ec.QtyBase.String() != "0.0002" || ec.QtyMin != nil || ec.QtyMax == nil || ec.QtyMax.String() != "0.0003" {
		t.Fatalf("unexpected qty: base=%s min=%v max=%v", ec.QtyBase, ec.QtyMin, ec.QtyMax)
	}
	if ec.Reconcile.Policy != order.PolicyContinue || ec.Reconcile.Depth != 3 || ec.Reconcile.Interval != 15*time.Second {
		t.Fatalf("unexpected reconcile config: %+v", ec.Reconcile)
	}
	if ec.RevalidateLadder || ec.ErrorAlertAfter != 7 {
		t.Fatalf("unexpected flags: %+v", ec)
	}
	if ec.Ladder.TargetBps.String() != "9" || ec.Band.Ceiling.String() != "10" || ec.Band.MinRefreshInterval != 20*time.Second {
		t.Fatalf("unexpected ladder/band: %+v %+v", ec.Ladder, ec.Band)
	}
}

func TestExplicitZerosSurviveDefaults(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
quote:
  minBps: 0
  ladderStepBps: 0
  minIntervalCeiling: 0
  minRefreshMs: 0
  ladderLevels: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := cfg.Quote
	if *q.MinBps != 0 || *q.LadderStepBps != 0 || *q.MinIntervalCeiling != 0 || *q.MinRefreshMs != 0 {
		t.Fatalf("explicit zeros replaced by defaults: %+v", q)
	}
	ec := cfg.EngineConfig()
	if !ec.Band.Min.IsZero() || !ec.Band.Ceiling.IsZero() || ec.Band.MinRefreshInterval != 0 {
		t.Fatalf("unexpected band: %+v", ec.Band)
	}
	if !ec.Ladder.StepBps.IsZero() || ec.Ladder.TargetBps.String() != "9" {
		t.Fatalf("unexpected ladder: %+v", ec.Ladder)
	}

	usd := writeTempConfig(t, `
env: dev
quote:
  absSpreadUsd: 200
  absMinUsd: 0
  absStepUsd: 0
`)
	cfg, err = Load(usd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ec = cfg.EngineConfig()
	if !ec.Band.Min.IsZero() || ec.Band.Max.String() != "300" || !ec.Ladder.AbsStep.IsZero() {
		t.Fatalf("unexpected usd band %+v ladder %+v", ec.Band, ec.Ladder)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
credentials:
  token: file-token
`)
	t.Setenv("STANDX_TOKEN", "env-token")
	t.Setenv("SYMBOL", "SOL-USD")
	t.Setenv("SESSION_ID", "sess-1")
	cfg, err := LoadWithEnvOverrides(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Credentials.Token != "env-token" || cfg.Exchange.Symbol != "SOL-USD" || cfg.Exchange.SessionID != "sess-1" {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Credentials, cfg.Exchange)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	path := writeTempConfig(t, "env: dev\n")
	envPath := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envPath, []byte("WALLET_PRIVATE_KEY=0xabc\nCHAIN=bsc-test\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("WALLET_PRIVATE_KEY")
		os.Unsetenv("CHAIN")
	})
	cfg, err := LoadWithEnvOverrides(path, envPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Credentials.WalletPrivateKey != "0xabc" || cfg.Exchange.Chain != "bsc-test" {
		t.Fatalf(".env not applied: %+v %+v", cfg.Credentials, cfg.Exchange)
	}
	if err := RequireCredentials(cfg); err != nil {
		t.Fatalf("credentials should be satisfied: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"tif":        func(c *AppConfig) { c.Exchange.TimeInForce = "fok" },
		"qty":        func(c *AppConfig) { c.Quote.Qty = -1 },
		"jitter":     func(c *AppConfig) { c.Quote.QtyJitterPct = 1 },
		"band":       func(c *AppConfig) { c.Quote.MaxBps = 3 },
		"levels":     func(c *AppConfig) { c.Quote.LadderLevels = -1 },
		"tag":        func(c *AppConfig) { c.Quote.OwnershipTag = "M M" },
		"rest rate":  func(c *AppConfig) { c.REST.Rate = -1 },
		"usd band":   func(c *AppConfig) { c.Quote.AbsSpreadUSD = 100; c.Quote.AbsMinUSD = float64Ptr(200); c.Quote.AbsMaxUSD = 150 },
		"loop":       func(c *AppConfig) { c.Quote.LoopMs = -5 },
		"rest burst": func(c *AppConfig) { c.REST.Burst = -1 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateParamsErrInvalid(t *testing.T) {
	q := Default().Quote
	q.TargetBps = -1
	var inv ErrInvalid
	if err := ValidateParams(q); !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestRequireCredentials(t *testing.T) {
	if err := RequireCredentials(Default()); err == nil {
		t.Fatalf("expected missing credentials error")
	}
}
