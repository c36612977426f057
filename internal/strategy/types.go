package strategy

import (
	"context"
	"strings"

	"apr-signal-bot/internal/market"
)

type Kind string

const (
	KindSimpleDirectional Kind = "simple_directional"
	KindImpliedAPRBands   Kind = "implied_apr_bands"
)

type Action string

const (
	ActionEnterLong  Action = "ENTER_LONG"
	ActionEnterShort Action = "ENTER_SHORT"
	ActionExitLong   Action = "EXIT_LONG"
	ActionExitShort  Action = "EXIT_SHORT"
)

// IsExit reports whether the action closes a position. Exit signals are a
// safety property downstream: they bypass admission and cooldown.
func (a Action) IsExit() bool {
	return strings.HasPrefix(string(a), "EXIT")
}

// Opportunity is one strategy's signal for one symbol in one evaluation
// cycle. It is transient; only the position book persists decisions.
// Kind tags which variant produced it and therefore which of the
// strategy-specific fields are meaningful.
type Opportunity struct {
	Kind                Kind
	Symbol              string
	Action              Action
	PositionType        string
	ExpectedReturn      float64
	RiskScore           float64
	MaxPositionSize     float64
	RecommendedLeverage float64
	Rationale           string

	// Directional fields.
	Spread    float64
	AbsSpread float64

	// Band fields.
	CurrentRate  float64
	TargetRate   float64
	ExpectedMove float64
	DCAStep      float64
	MaxAdds      int
}

// Strategy evaluates one market snapshot into at most one opportunity.
// Implementations must be safe for repeated invocation; any cross-cycle
// state lives in the position book, not the strategy value.
type Strategy interface {
	Kind() Kind
	Evaluate(ctx context.Context, snap market.Snapshot) (*Opportunity, error)
}
