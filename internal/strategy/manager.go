package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"apr-signal-bot/internal/config"
	"apr-signal-bot/internal/market"

	"go.uber.org/zap"
)

// Admission rejection sentinels. Callers treat any of these as "skip this
// opportunity", never as an evaluation failure.
var (
	ErrPositionCap     = errors.New("per-strategy position cap reached")
	ErrExposureCeiling = errors.New("total exposure ceiling exceeded")
	ErrReturnTooLow    = errors.New("expected return below strategy minimum")
	ErrRiskTooHigh     = errors.New("risk score above strategy maximum")
)

// Fallbacks for strategies without configured thresholds, and for
// opportunities missing risk or leverage: always the conservative side.
const (
	fallbackMinReturn = 0.10
	fallbackMaxRisk   = 0.6
	worstRiskScore    = 1.0
	defaultLeverage   = 1.0
	initialHealth     = 1.5
	sizingDerate      = 0.5
)

// Position is the manager's bookkeeping record for an admitted and
// executed opportunity. No exchange is involved.
type Position struct {
	Kind           Kind
	Symbol         string
	PositionType   string
	Size           float64
	EntryRate      float64
	EntryTime      time.Time
	Leverage       float64
	Collateral     float64
	ExpectedReturn float64
	HealthFactor   float64
}

func (p Position) ExposureUSD() float64 {
	return p.Size * p.Leverage
}

type Limits struct {
	MaxTotalExposureUSD     float64
	MaxPositionsPerStrategy int
	MinExpectedReturn       map[Kind]float64
	MaxRiskScore            map[Kind]float64
	MaxPositionAge          time.Duration
	MinHealthFactor         float64
}

func LimitsFromConfig(cfg config.ManagerConfig) Limits {
	limits := Limits{
		MaxTotalExposureUSD:     cfg.MaxTotalExposureUSD,
		MaxPositionsPerStrategy: cfg.MaxPositionsPerStrategy,
		MinExpectedReturn:       make(map[Kind]float64, len(cfg.MinExpectedReturn)),
		MaxRiskScore:            make(map[Kind]float64, len(cfg.MaxRiskScore)),
		MaxPositionAge:          cfg.MaxPositionAge.Std(),
		MinHealthFactor:         cfg.MinHealthFactor,
	}
	for kind, min := range cfg.MinExpectedReturn {
		limits.MinExpectedReturn[Kind(kind)] = min
	}
	for kind, max := range cfg.MaxRiskScore {
		limits.MaxRiskScore[Kind(kind)] = max
	}
	return limits
}

// Manager runs the registered strategies in order, applies the admission
// gates, and tracks notional open positions.
type Manager struct {
	mu         sync.Mutex
	strategies []Strategy
	limits     Limits
	log        *zap.Logger
	positions  []Position
	now        func() time.Time
}

func NewManager(limits Limits, log *zap.Logger, strategies ...Strategy) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		strategies: strategies,
		limits:     limits,
		log:        log,
		now:        time.Now,
	}
}

// EvaluateAll runs every strategy against the snapshot in registration
// order. A failing strategy is logged and skipped; the rest still
// evaluate.
func (m *Manager) EvaluateAll(ctx context.Context, snap market.Snapshot) []Opportunity {
	var opps []Opportunity
	for _, st := range m.strategies {
		opp, err := st.Evaluate(ctx, snap)
		if err != nil {
			m.log.Warn("strategy evaluation failed",
				zap.String("strategy", string(st.Kind())),
				zap.String("symbol", snap.Symbol),
				zap.Error(err))
			continue
		}
		if opp == nil {
			continue
		}
		opp.Kind = st.Kind()
		opps = append(opps, *opp)
	}
	return opps
}

// ShouldExecute applies the four admission gates. All gates are pure
// boolean checks; missing opportunity fields default to the conservative
// value instead of failing.
func (m *Manager) ShouldExecute(opp Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := 0
	for _, pos := range m.positions {
		if pos.Kind == opp.Kind {
			open++
		}
	}
	if m.limits.MaxPositionsPerStrategy > 0 && open >= m.limits.MaxPositionsPerStrategy {
		return fmt.Errorf("%w: %d open for %s", ErrPositionCap, open, opp.Kind)
	}

	newExposure := opp.MaxPositionSize * leverageOrDefault(opp.RecommendedLeverage)
	if total := m.totalExposureLocked() + newExposure; total > m.limits.MaxTotalExposureUSD {
		return fmt.Errorf("%w: %.0f > %.0f", ErrExposureCeiling, total, m.limits.MaxTotalExposureUSD)
	}

	minReturn, ok := m.limits.MinExpectedReturn[opp.Kind]
	if !ok {
		minReturn = fallbackMinReturn
	}
	if opp.ExpectedReturn < minReturn {
		return fmt.Errorf("%w: %.4f < %.4f", ErrReturnTooLow, opp.ExpectedReturn, minReturn)
	}

	maxRisk, ok := m.limits.MaxRiskScore[opp.Kind]
	if !ok {
		maxRisk = fallbackMaxRisk
	}
	if riskOrWorst(opp.RiskScore) > maxRisk {
		return fmt.Errorf("%w: %.2f > %.2f", ErrRiskTooHigh, riskOrWorst(opp.RiskScore), maxRisk)
	}
	return nil
}

// Execute books a position for an admitted opportunity, derating size by
// inverse risk. Bookkeeping only.
func (m *Manager) Execute(opp Opportunity, snap market.Snapshot) Position {
	leverage := leverageOrDefault(opp.RecommendedLeverage)
	size := opp.MaxPositionSize * (1 - riskOrWorst(opp.RiskScore)) * sizingDerate
	pos := Position{
		Kind:           opp.Kind,
		Symbol:         opp.Symbol,
		PositionType:   opp.PositionType,
		Size:           size,
		EntryRate:      snap.ImpliedRate,
		EntryTime:      m.now(),
		Leverage:       leverage,
		Collateral:     size / leverage,
		ExpectedReturn: opp.ExpectedReturn,
		HealthFactor:   initialHealth,
	}
	m.mu.Lock()
	m.positions = append(m.positions, pos)
	m.mu.Unlock()
	m.log.Info("position booked",
		zap.String("strategy", string(pos.Kind)),
		zap.String("symbol", pos.Symbol),
		zap.String("side", pos.PositionType),
		zap.Float64("size_usd", pos.Size),
		zap.Float64("expected_return", pos.ExpectedReturn))
	return pos
}

// Open returns the open positions for one strategy kind.
func (m *Manager) Open(kind Kind) []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Position
	for _, pos := range m.positions {
		if pos.Kind == kind {
			out = append(out, pos)
		}
	}
	return out
}

// Close drops every open position matching kind and symbol and returns
// the removed records.
func (m *Manager) Close(kind Kind, symbol string) []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept, closed []Position
	for _, pos := range m.positions {
		if pos.Kind == kind && pos.Symbol == symbol {
			closed = append(closed, pos)
			continue
		}
		kept = append(kept, pos)
	}
	m.positions = kept
	return closed
}

// Flag marks a position needing external attention. The manager never
// closes positions on its own.
type Flag struct {
	Position Position
	Reason   string
}

const (
	FlagStale     = "stale"
	FlagUnhealthy = "unhealthy"
)

func (m *Manager) Monitor(now time.Time) []Flag {
	m.mu.Lock()
	defer m.mu.Unlock()
	var flags []Flag
	for _, pos := range m.positions {
		if m.limits.MinHealthFactor > 0 && pos.HealthFactor < m.limits.MinHealthFactor {
			flags = append(flags, Flag{Position: pos, Reason: FlagUnhealthy})
			continue
		}
		if m.limits.MaxPositionAge > 0 && now.Sub(pos.EntryTime) > m.limits.MaxPositionAge {
			flags = append(flags, Flag{Position: pos, Reason: FlagStale})
		}
	}
	return flags
}

type Summary struct {
	TotalPositions         int
	TotalExposureUSD       float64
	TotalCollateralUSD     float64
	WeightedExpectedReturn float64
	Utilization            float64
	ExposureByStrategy     map[Kind]float64
}

func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := Summary{
		TotalPositions:     len(m.positions),
		ExposureByStrategy: make(map[Kind]float64),
	}
	var totalSize, weighted float64
	for _, pos := range m.positions {
		summary.TotalExposureUSD += pos.ExposureUSD()
		summary.TotalCollateralUSD += pos.Collateral
		summary.ExposureByStrategy[pos.Kind] += pos.ExposureUSD()
		totalSize += pos.Size
		weighted += pos.ExpectedReturn * pos.Size
	}
	if totalSize > 0 {
		summary.WeightedExpectedReturn = weighted / totalSize
	}
	if m.limits.MaxTotalExposureUSD > 0 {
		summary.Utilization = summary.TotalExposureUSD / m.limits.MaxTotalExposureUSD
	}
	return summary
}

func (m *Manager) totalExposureLocked() float64 {
	var total float64
	for _, pos := range m.positions {
		total += pos.ExposureUSD()
	}
	return total
}

func leverageOrDefault(lev float64) float64 {
	if lev <= 0 {
		return defaultLeverage
	}
	return lev
}

func riskOrWorst(risk float64) float64 {
	if risk <= 0 {
		return worstRiskScore
	}
	return risk
}
