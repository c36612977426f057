package alerts

import (
	"strings"
	"testing"

	"apr-signal-bot/internal/strategy"
)

func TestRenderDirectionalEntry(t *testing.T) {
	alert := Render(strategy.Opportunity{
		Kind:            strategy.KindSimpleDirectional,
		Symbol:          "ETHUSDT",
		Action:          strategy.ActionEnterLong,
		PositionType:    "long",
		Spread:          0.04,
		ExpectedReturn:  0.04,
		RiskScore:       0.3,
		MaxPositionSize: 50000,
		Rationale:       "reference (9.00%) above implied (5.00%)",
	})
	if alert.Title != "ETHUSDT simple_directional ENTER_LONG" {
		t.Fatalf("unexpected title %q", alert.Title)
	}
	if alert.Color != colorGreen {
		t.Fatalf("expected green for long entry, got %#x", alert.Color)
	}
	for _, want := range []string{"Spread: 4.00%", "Expected return: 4.00%", "Risk score: 0.30", "Max size: $50000", "Why: reference"} {
		if !strings.Contains(alert.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, alert.Body)
		}
	}
}

func TestRenderBandEntryCarriesLevels(t *testing.T) {
	alert := Render(strategy.Opportunity{
		Kind:            strategy.KindImpliedAPRBands,
		Symbol:          "ETHUSDT",
		Action:          strategy.ActionEnterShort,
		CurrentRate:     0.09,
		TargetRate:      0.068,
		ExpectedMove:    0.022,
		ExpectedReturn:  0.088,
		RiskScore:       0.6,
		MaxPositionSize: 30000,
		DCAStep:         0.0025,
		MaxAdds:         2,
	})
	if alert.Color != colorRed {
		t.Fatalf("expected red for short entry, got %#x", alert.Color)
	}
	for _, want := range []string{"Implied APR: 9.00%", "Target: 6.80%", "Expected move: 2.20%", "DCA: 0.25% step, up to 2 adds"} {
		if !strings.Contains(alert.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, alert.Body)
		}
	}
}

func TestRenderExitOmitsSizing(t *testing.T) {
	alert := Render(strategy.Opportunity{
		Kind:        strategy.KindImpliedAPRBands,
		Symbol:      "ETHUSDT",
		Action:      strategy.ActionExitLong,
		CurrentRate: 0.0685,
		TargetRate:  0.068,
	})
	if alert.Color != colorOrange {
		t.Fatalf("expected orange for exit, got %#x", alert.Color)
	}
	for _, absent := range []string{"Expected return", "Risk score", "Max size", "Expected move"} {
		if strings.Contains(alert.Body, absent) {
			t.Fatalf("exit body must not carry %q:\n%s", absent, alert.Body)
		}
	}
	if !strings.Contains(alert.Body, "Target: 6.80%") {
		t.Fatalf("exit body missing target:\n%s", alert.Body)
	}
}
