package strategy

import (
	"context"
	"fmt"
	"math"

	"apr-signal-bot/internal/config"
	"apr-signal-bot/internal/market"

	"go.uber.org/zap"
)

const (
	bandLongRisk  = 0.5
	bandShortRisk = 0.6
	bandExitRisk  = 0.1
)

// BandConfig defines one symbol's mean-reversion zone. Levels are
// annualized rates (0.06 = 6%). DCAStep and MaxAdds are advisory scaling
// guidance surfaced on opportunities, not executed by the engine.
type BandConfig struct {
	LongEntry  float64
	LongExit   float64
	ShortEntry float64
	ShortExit  float64
	DCAStep    float64
	MaxAdds    int
}

func DefaultBandConfig() BandConfig {
	return BandConfig{
		LongEntry:  0.0600,
		LongExit:   0.0680,
		ShortEntry: 0.0800,
		ShortExit:  0.0680,
		DCAStep:    0.0025,
		MaxAdds:    2,
	}
}

// Bands trades the absolute implied-rate level against configured bands.
// It keeps no per-cycle state of its own; de-duplication of repeated
// entry signals happens in the alert gate, and exits are driven by the
// manager through ExitSignal.
type Bands struct {
	defaults          BandConfig
	bySymbol          map[string]BandConfig
	sensitivity       float64
	liquidityFraction float64
	maxPositionUSD    float64
	log               *zap.Logger
}

func NewBands(cfg config.BandsConfig, log *zap.Logger) *Bands {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bands{
		defaults:          DefaultBandConfig(),
		bySymbol:          make(map[string]BandConfig, len(cfg.Symbols)),
		sensitivity:       cfg.Sensitivity,
		liquidityFraction: cfg.LiquidityFraction,
		maxPositionUSD:    cfg.MaxPositionUSD,
		log:               log,
	}
	if b.sensitivity <= 0 {
		b.sensitivity = 4.0
	}
	if b.liquidityFraction <= 0 {
		b.liquidityFraction = 0.03
	}
	if b.maxPositionUSD <= 0 {
		b.maxPositionUSD = 250000
	}
	for symbol, override := range cfg.Symbols {
		merged := mergeBands(b.defaults, override)
		if err := merged.check(); err != nil {
			// Malformed overrides never break evaluation; the symbol
			// falls back to the defaults.
			log.Warn("band override ignored", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		b.bySymbol[symbol] = merged
	}
	return b
}

func mergeBands(base BandConfig, override config.BandOverride) BandConfig {
	if override.LongEntry != nil {
		base.LongEntry = *override.LongEntry
	}
	if override.LongExit != nil {
		base.LongExit = *override.LongExit
	}
	if override.ShortEntry != nil {
		base.ShortEntry = *override.ShortEntry
	}
	if override.ShortExit != nil {
		base.ShortExit = *override.ShortExit
	}
	if override.DCAStep != nil {
		base.DCAStep = *override.DCAStep
	}
	if override.MaxAdds != nil {
		base.MaxAdds = *override.MaxAdds
	}
	return base
}

func (c BandConfig) check() error {
	if c.LongEntry <= 0 || c.LongExit <= 0 || c.ShortEntry <= 0 || c.ShortExit <= 0 {
		return fmt.Errorf("band levels must be > 0")
	}
	if c.LongExit <= c.LongEntry {
		return fmt.Errorf("long_exit %.4f must be above long_entry %.4f", c.LongExit, c.LongEntry)
	}
	if c.ShortExit >= c.ShortEntry {
		return fmt.Errorf("short_exit %.4f must be below short_entry %.4f", c.ShortExit, c.ShortEntry)
	}
	return nil
}

// Config returns the symbol's merged band config, falling back to the
// defaults for symbols without an override.
func (b *Bands) Config(symbol string) BandConfig {
	if cfg, ok := b.bySymbol[symbol]; ok {
		return cfg
	}
	return b.defaults
}

func (b *Bands) Kind() Kind { return KindImpliedAPRBands }

func (b *Bands) Evaluate(ctx context.Context, snap market.Snapshot) (*Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := b.Config(snap.Symbol)
	apr := snap.ImpliedRate
	switch {
	case apr <= cfg.LongEntry:
		move := math.Max(0, cfg.LongExit-apr)
		return b.entry(snap, cfg, ActionEnterLong, "long", cfg.LongExit, move, bandLongRisk), nil
	case apr >= cfg.ShortEntry:
		move := math.Max(0, apr-cfg.ShortExit)
		return b.entry(snap, cfg, ActionEnterShort, "short", cfg.ShortExit, move, bandShortRisk), nil
	default:
		return nil, nil
	}
}

func (b *Bands) entry(snap market.Snapshot, cfg BandConfig, action Action, positionType string, target, move, risk float64) *Opportunity {
	return &Opportunity{
		Kind:                KindImpliedAPRBands,
		Symbol:              snap.Symbol,
		Action:              action,
		PositionType:        positionType,
		ExpectedReturn:      move * b.sensitivity,
		RiskScore:           risk,
		MaxPositionSize:     math.Min(snap.Liquidity*b.liquidityFraction, b.maxPositionUSD),
		RecommendedLeverage: 1.0,
		Rationale:           fmt.Sprintf("implied %.2f%% outside band, target %.2f%%", snap.ImpliedRate*100, target*100),
		CurrentRate:         snap.ImpliedRate,
		TargetRate:          target,
		ExpectedMove:        move,
		DCAStep:             cfg.DCAStep,
		MaxAdds:             cfg.MaxAdds,
	}
}

// ExitSignal reports whether an open band position has crossed its target
// in the favorable direction: a long exits once the implied rate has risen
// to or past long_exit, a short once it has fallen to or past short_exit.
func (b *Bands) ExitSignal(snap market.Snapshot, positionType string) (*Opportunity, bool) {
	cfg := b.Config(snap.Symbol)
	apr := snap.ImpliedRate
	var action Action
	var target float64
	switch positionType {
	case "long":
		if apr < cfg.LongExit {
			return nil, false
		}
		action, target = ActionExitLong, cfg.LongExit
	case "short":
		if apr > cfg.ShortExit {
			return nil, false
		}
		action, target = ActionExitShort, cfg.ShortExit
	default:
		return nil, false
	}
	return &Opportunity{
		Kind:                KindImpliedAPRBands,
		Symbol:              snap.Symbol,
		Action:              action,
		PositionType:        positionType,
		RiskScore:           bandExitRisk,
		RecommendedLeverage: 1.0,
		Rationale:           fmt.Sprintf("implied %.2f%% reached target %.2f%%", apr*100, target*100),
		CurrentRate:         apr,
		TargetRate:          target,
	}, true
}
