package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDirectionalDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Strategy.Directional.EntryThreshold != 0.005 {
		t.Fatalf("expected entry threshold 0.005, got %f", cfg.Strategy.Directional.EntryThreshold)
	}
	if cfg.Strategy.Directional.ExitThreshold != 0.002 {
		t.Fatalf("expected exit threshold 0.002, got %f", cfg.Strategy.Directional.ExitThreshold)
	}
	if cfg.Strategy.Directional.MaxPositionUSD != 50000 {
		t.Fatalf("expected max position 50000, got %f", cfg.Strategy.Directional.MaxPositionUSD)
	}
}

func TestManagerDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Manager.MaxTotalExposureUSD != 5000000 {
		t.Fatalf("expected exposure ceiling 5000000, got %f", cfg.Manager.MaxTotalExposureUSD)
	}
	if cfg.Manager.MaxPositionsPerStrategy != 3 {
		t.Fatalf("expected per-strategy cap 3, got %d", cfg.Manager.MaxPositionsPerStrategy)
	}
	if cfg.Manager.MinExpectedReturn["simple_directional"] != 0.005 {
		t.Fatalf("expected directional min return default")
	}
	if cfg.Manager.MaxRiskScore["implied_apr_bands"] != 0.7 {
		t.Fatalf("expected bands max risk default")
	}
	if cfg.Manager.MaxPositionAge.Std() != 7*24*time.Hour {
		t.Fatalf("expected 7d position age default, got %v", cfg.Manager.MaxPositionAge)
	}
	if cfg.Manager.MinHealthFactor != 1.1 {
		t.Fatalf("expected health factor default 1.1, got %f", cfg.Manager.MinHealthFactor)
	}
}

func TestManagerThresholdOverridesKept(t *testing.T) {
	cfg := &Config{Manager: ManagerConfig{MinExpectedReturn: map[string]float64{"simple_directional": 0.02}}}
	applyDefaults(cfg)
	if cfg.Manager.MinExpectedReturn["simple_directional"] != 0.02 {
		t.Fatalf("expected explicit min return kept")
	}
	if cfg.Manager.MinExpectedReturn["implied_apr_bands"] != 0.01 {
		t.Fatalf("expected bands min return default filled in")
	}
}

func TestValidateThresholdOrdering(t *testing.T) {
	cfg := &Config{Strategy: StrategyConfig{Directional: DirectionalConfig{
		EntryThreshold: 0.002,
		ExitThreshold:  0.005,
	}}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error when exit threshold >= entry threshold")
	}
}

func TestValidateFeedSource(t *testing.T) {
	cfg := &Config{Feed: FeedConfig{Source: "carrier-pigeon"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown feed source")
	}
	cfg = &Config{Feed: FeedConfig{Source: "ws"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for ws source without url")
	}
}

func TestLoadMergesBandOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
strategy:
  bands:
    symbols:
      ETHUSDT:
        long_entry: 0.055
        max_adds: 5
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	override, ok := cfg.Strategy.Bands.Symbols["ETHUSDT"]
	if !ok {
		t.Fatalf("expected ETHUSDT override")
	}
	if override.LongEntry == nil || *override.LongEntry != 0.055 {
		t.Fatalf("expected long_entry override 0.055")
	}
	if override.ShortEntry != nil {
		t.Fatalf("expected unset short_entry to stay nil")
	}
	if override.MaxAdds == nil || *override.MaxAdds != 5 {
		t.Fatalf("expected max_adds override 5")
	}
}

func TestLoadParsesDurations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
feed:
  refresh_interval: 45m
alerts:
  cooldown: 10m
manager:
  max_position_age: 72h
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Feed.RefreshInterval.Std() != 45*time.Minute {
		t.Fatalf("expected 45m refresh interval, got %v", cfg.Feed.RefreshInterval)
	}
	if cfg.Alerts.Cooldown.Std() != 10*time.Minute {
		t.Fatalf("expected 10m cooldown, got %v", cfg.Alerts.Cooldown)
	}
	if cfg.Manager.MaxPositionAge.Std() != 72*time.Hour {
		t.Fatalf("expected 72h position age, got %v", cfg.Manager.MaxPositionAge)
	}
}

func TestLoadEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	data := "FOO_FROM_FILE=file\nALREADY_SET=file\n# comment\nQUOTED='value'\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("ALREADY_SET", "env")
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("FOO_FROM_FILE"); got != "file" {
		t.Fatalf("expected FOO_FROM_FILE=file, got %q", got)
	}
	if got := os.Getenv("ALREADY_SET"); got != "env" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
	if got := os.Getenv("QUOTED"); got != "value" {
		t.Fatalf("expected quotes stripped, got %q", got)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}
