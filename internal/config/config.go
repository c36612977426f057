package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts yaml scalars in time.ParseDuration form ("30m",
// "168h") as well as plain integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	State     StateConfig     `yaml:"state"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Manager   ManagerConfig   `yaml:"manager"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type FeedConfig struct {
	Source          string   `yaml:"source"`
	Path            string   `yaml:"path"`
	URL             string   `yaml:"url"`
	ReconnectDelay  Duration `yaml:"reconnect_delay"`
	RefreshInterval Duration `yaml:"refresh_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type StrategyConfig struct {
	Directional DirectionalConfig `yaml:"directional"`
	Bands       BandsConfig       `yaml:"bands"`
}

type DirectionalConfig struct {
	EntryThreshold float64 `yaml:"entry_threshold"`
	ExitThreshold  float64 `yaml:"exit_threshold"`
	MaxPositionUSD float64 `yaml:"max_position_usd"`
}

// BandOverride carries per-symbol band levels. Pointer fields distinguish
// "not set" from an explicit zero so overrides merge over the defaults
// instead of replacing them wholesale.
type BandOverride struct {
	LongEntry  *float64 `yaml:"long_entry"`
	LongExit   *float64 `yaml:"long_exit"`
	ShortEntry *float64 `yaml:"short_entry"`
	ShortExit  *float64 `yaml:"short_exit"`
	DCAStep    *float64 `yaml:"dca_step"`
	MaxAdds    *int     `yaml:"max_adds"`
}

type BandsConfig struct {
	Sensitivity       float64                 `yaml:"sensitivity"`
	LiquidityFraction float64                 `yaml:"liquidity_fraction"`
	MaxPositionUSD    float64                 `yaml:"max_position_usd"`
	Symbols           map[string]BandOverride `yaml:"symbols"`
}

type ManagerConfig struct {
	MaxTotalExposureUSD     float64            `yaml:"max_total_exposure_usd"`
	MaxPositionsPerStrategy int                `yaml:"max_positions_per_strategy"`
	MinExpectedReturn       map[string]float64 `yaml:"min_expected_return"`
	MaxRiskScore            map[string]float64 `yaml:"max_risk_score"`
	MaxPositionAge          Duration           `yaml:"max_position_age"`
	MinHealthFactor         float64            `yaml:"min_health_factor"`
}

type AlertsConfig struct {
	Cooldown Duration       `yaml:"cooldown"`
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled == nil || *m.Enabled
}

type TimescaleConfig struct {
	Enabled         bool     `yaml:"enabled"`
	DSN             string   `yaml:"dsn"`
	Schema          string   `yaml:"schema"`
	QueueSize       int      `yaml:"queue_size"`
	FlushInterval   Duration `yaml:"flush_interval"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Feed.Source == "" {
		cfg.Feed.Source = "file"
	}
	if cfg.Feed.Path == "" {
		cfg.Feed.Path = "data/rates.json"
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = Duration(3 * time.Second)
	}
	if cfg.Feed.RefreshInterval == 0 {
		cfg.Feed.RefreshInterval = Duration(30 * time.Minute)
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/apr-signal-bot.db"
	}
	if cfg.Strategy.Directional.EntryThreshold == 0 {
		cfg.Strategy.Directional.EntryThreshold = 0.005
	}
	if cfg.Strategy.Directional.ExitThreshold == 0 {
		cfg.Strategy.Directional.ExitThreshold = 0.002
	}
	if cfg.Strategy.Directional.MaxPositionUSD == 0 {
		cfg.Strategy.Directional.MaxPositionUSD = 50000
	}
	if cfg.Strategy.Bands.Sensitivity == 0 {
		cfg.Strategy.Bands.Sensitivity = 4.0
	}
	if cfg.Strategy.Bands.LiquidityFraction == 0 {
		cfg.Strategy.Bands.LiquidityFraction = 0.03
	}
	if cfg.Strategy.Bands.MaxPositionUSD == 0 {
		cfg.Strategy.Bands.MaxPositionUSD = 250000
	}
	if cfg.Manager.MaxTotalExposureUSD == 0 {
		cfg.Manager.MaxTotalExposureUSD = 5000000
	}
	if cfg.Manager.MaxPositionsPerStrategy == 0 {
		cfg.Manager.MaxPositionsPerStrategy = 3
	}
	if cfg.Manager.MinExpectedReturn == nil {
		cfg.Manager.MinExpectedReturn = map[string]float64{}
	}
	if _, ok := cfg.Manager.MinExpectedReturn["simple_directional"]; !ok {
		cfg.Manager.MinExpectedReturn["simple_directional"] = 0.005
	}
	if _, ok := cfg.Manager.MinExpectedReturn["implied_apr_bands"]; !ok {
		cfg.Manager.MinExpectedReturn["implied_apr_bands"] = 0.01
	}
	if cfg.Manager.MaxRiskScore == nil {
		cfg.Manager.MaxRiskScore = map[string]float64{}
	}
	if _, ok := cfg.Manager.MaxRiskScore["simple_directional"]; !ok {
		cfg.Manager.MaxRiskScore["simple_directional"] = 0.5
	}
	if _, ok := cfg.Manager.MaxRiskScore["implied_apr_bands"]; !ok {
		cfg.Manager.MaxRiskScore["implied_apr_bands"] = 0.7
	}
	if cfg.Manager.MaxPositionAge == 0 {
		cfg.Manager.MaxPositionAge = Duration(7 * 24 * time.Hour)
	}
	if cfg.Manager.MinHealthFactor == 0 {
		cfg.Manager.MinHealthFactor = 1.1
	}
	if cfg.Alerts.Cooldown == 0 {
		cfg.Alerts.Cooldown = Duration(30 * time.Minute)
	}
	if cfg.Alerts.Discord.WebhookURL == "" {
		cfg.Alerts.Discord.WebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	}
	if cfg.Alerts.Telegram.Token == "" {
		cfg.Alerts.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
	if cfg.Timescale.FlushInterval == 0 {
		cfg.Timescale.FlushInterval = Duration(5 * time.Second)
	}
}

func validate(cfg *Config) error {
	switch cfg.Feed.Source {
	case "file":
		if cfg.Feed.Path == "" {
			return errors.New("feed.path is required for the file source")
		}
	case "ws":
		if cfg.Feed.URL == "" {
			return errors.New("feed.url is required for the ws source")
		}
	default:
		return fmt.Errorf("feed.source must be file or ws, got %q", cfg.Feed.Source)
	}
	if cfg.Strategy.Directional.EntryThreshold <= 0 {
		return errors.New("strategy.directional.entry_threshold must be > 0")
	}
	if cfg.Strategy.Directional.ExitThreshold <= 0 {
		return errors.New("strategy.directional.exit_threshold must be > 0")
	}
	if cfg.Strategy.Directional.ExitThreshold >= cfg.Strategy.Directional.EntryThreshold {
		return errors.New("strategy.directional.exit_threshold must be below entry_threshold")
	}
	if cfg.Manager.MaxTotalExposureUSD <= 0 {
		return errors.New("manager.max_total_exposure_usd must be > 0")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}
