package alerts

import (
	"context"
	"fmt"
	"strings"

	"apr-signal-bot/internal/strategy"
)

// Alert is a channel-agnostic rendered signal. Notifiers format it for
// their transport; Discord uses Color, Telegram flattens to text.
type Alert struct {
	Title  string
	Body   string
	Color  int
	Symbol string
	Kind   strategy.Kind
	Action strategy.Action
}

// Notifier delivers one rendered alert. Implementations return nil when
// disabled so callers never branch on channel configuration.
type Notifier interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

const (
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
	colorOrange = 0xe67e22
)

// Render formats an opportunity into an alert. Rates render as percent
// with two decimals; sizes as whole dollars.
func Render(opp strategy.Opportunity) Alert {
	alert := Alert{
		Title:  fmt.Sprintf("%s %s %s", opp.Symbol, opp.Kind, opp.Action),
		Symbol: opp.Symbol,
		Kind:   opp.Kind,
		Action: opp.Action,
	}
	switch {
	case opp.Action.IsExit():
		alert.Color = colorOrange
	case opp.Action == strategy.ActionEnterLong:
		alert.Color = colorGreen
	default:
		alert.Color = colorRed
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\n", opp.Action)
	switch opp.Kind {
	case strategy.KindSimpleDirectional:
		fmt.Fprintf(&b, "Spread: %.2f%%\n", opp.Spread*100)
	case strategy.KindImpliedAPRBands:
		fmt.Fprintf(&b, "Implied APR: %.2f%%\n", opp.CurrentRate*100)
		fmt.Fprintf(&b, "Target: %.2f%%\n", opp.TargetRate*100)
		if !opp.Action.IsExit() {
			fmt.Fprintf(&b, "Expected move: %.2f%%\n", opp.ExpectedMove*100)
		}
	}
	if !opp.Action.IsExit() {
		fmt.Fprintf(&b, "Expected return: %.2f%%\n", opp.ExpectedReturn*100)
		fmt.Fprintf(&b, "Risk score: %.2f\n", opp.RiskScore)
		fmt.Fprintf(&b, "Max size: $%.0f\n", opp.MaxPositionSize)
		if opp.DCAStep > 0 && opp.MaxAdds > 0 {
			fmt.Fprintf(&b, "DCA: %.2f%% step, up to %d adds\n", opp.DCAStep*100, opp.MaxAdds)
		}
	}
	if opp.Rationale != "" {
		fmt.Fprintf(&b, "Why: %s\n", opp.Rationale)
	}
	alert.Body = strings.TrimRight(b.String(), "\n")
	return alert
}
