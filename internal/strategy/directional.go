package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"apr-signal-bot/internal/config"
	"apr-signal-bot/internal/market"
	"apr-signal-bot/internal/state"

	"go.uber.org/zap"
)

const (
	directionalEntryRisk = 0.3
	directionalExitRisk  = 0.1
)

// Directional trades the sign of the reference-minus-implied spread with
// hysteresis: enter when |spread| reaches the entry threshold, exit when
// it narrows to the exit threshold. The per-symbol side lives in the
// position book and survives restarts.
type Directional struct {
	book           *state.PositionBook
	entry          float64
	exit           float64
	maxPositionUSD float64
	log            *zap.Logger
}

func NewDirectional(cfg config.DirectionalConfig, book *state.PositionBook, log *zap.Logger) (*Directional, error) {
	if cfg.EntryThreshold <= 0 || cfg.ExitThreshold <= 0 {
		return nil, errors.New("directional thresholds must be > 0")
	}
	if cfg.ExitThreshold >= cfg.EntryThreshold {
		return nil, errors.New("directional exit threshold must be below entry threshold")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Directional{
		book:           book,
		entry:          cfg.EntryThreshold,
		exit:           cfg.ExitThreshold,
		maxPositionUSD: cfg.MaxPositionUSD,
		log:            log,
	}, nil
}

func (d *Directional) Kind() Kind { return KindSimpleDirectional }

// Evaluate applies the transition table under the book lock, so the state
// write and the returned opportunity are one atomic unit per symbol. A
// failed store write suppresses the signal.
func (d *Directional) Evaluate(ctx context.Context, snap market.Snapshot) (*Opportunity, error) {
	spread := snap.Spread()
	absSpread := math.Abs(spread)
	prev, next, err := d.book.Transition(ctx, snap.Symbol, func(cur state.Side) state.Side {
		return nextSide(cur, spread, absSpread, d.entry, d.exit)
	})
	if err != nil {
		return nil, fmt.Errorf("persist %s transition: %w", snap.Symbol, err)
	}
	if next == prev {
		return nil, nil
	}
	return d.opportunity(snap, prev, next, spread, absSpread), nil
}

func nextSide(cur state.Side, spread, absSpread, entry, exit float64) state.Side {
	switch cur {
	case state.SideLong, state.SideShort:
		if absSpread <= exit {
			return state.SideNone
		}
		return cur
	default:
		if absSpread >= entry {
			if spread > 0 {
				return state.SideLong
			}
			return state.SideShort
		}
		return state.SideNone
	}
}

func (d *Directional) opportunity(snap market.Snapshot, prev, next state.Side, spread, absSpread float64) *Opportunity {
	opp := &Opportunity{
		Kind:                KindSimpleDirectional,
		Symbol:              snap.Symbol,
		RecommendedLeverage: 1.0,
		Spread:              spread,
		AbsSpread:           absSpread,
		CurrentRate:         snap.ImpliedRate,
	}
	if next == state.SideNone {
		opp.Action = ActionExitLong
		if prev == state.SideShort {
			opp.Action = ActionExitShort
		}
		opp.PositionType = strings.ToLower(string(prev))
		opp.RiskScore = directionalExitRisk
		opp.Rationale = fmt.Sprintf("spread narrowed to %.2f%%, approaching crossover", absSpread*100)
		return opp
	}
	opp.RiskScore = directionalEntryRisk
	opp.ExpectedReturn = absSpread
	opp.MaxPositionSize = d.maxPositionUSD
	opp.PositionType = strings.ToLower(string(next))
	if next == state.SideLong {
		opp.Action = ActionEnterLong
		opp.Rationale = fmt.Sprintf("reference (%.2f%%) above implied (%.2f%%)", snap.ReferenceRate*100, snap.ImpliedRate*100)
	} else {
		opp.Action = ActionEnterShort
		opp.Rationale = fmt.Sprintf("implied (%.2f%%) above reference (%.2f%%)", snap.ImpliedRate*100, snap.ReferenceRate*100)
	}
	return opp
}
