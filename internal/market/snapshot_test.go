package market

import (
	"math"
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func TestSelectPicksHighestImpliedPerSymbol(t *testing.T) {
	now := time.Now()
	records := []Record{
		{Market: "ETHUSDT", Implied: f(5.2), Underlying: f(6.0), Days: 30},
		{Market: "ETHUSDT", Implied: f(6.33), Underlying: f(8.5), Days: 90},
		{Market: "BTCUSDT", Implied: f(4.0), Underlying: f(4.1)},
	}
	snaps := Select(records, now)
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Symbol != "BTCUSDT" || snaps[1].Symbol != "ETHUSDT" {
		t.Fatalf("expected sorted symbols, got %s %s", snaps[0].Symbol, snaps[1].Symbol)
	}
	eth := snaps[1]
	if math.Abs(eth.ImpliedRate-0.0633) > 1e-9 {
		t.Fatalf("expected highest-implied record kept, got implied %f", eth.ImpliedRate)
	}
	if math.Abs(eth.Spread()-(0.085-0.0633)) > 1e-9 {
		t.Fatalf("unexpected spread %f", eth.Spread())
	}
	if eth.TimeToSettlement != 90*24*time.Hour {
		t.Fatalf("expected 90d settlement horizon, got %v", eth.TimeToSettlement)
	}
}

func TestSelectSkipsMalformedRecords(t *testing.T) {
	nan := math.NaN()
	records := []Record{
		{Market: "", Implied: f(5), Underlying: f(6)},
		{Market: "XRPUSDT", Implied: nil, Underlying: f(6)},
		{Market: "DOGEUSDT", Implied: &nan, Underlying: f(6)},
		{Market: "ETHUSDT", Implied: f(5), Underlying: f(9)},
	}
	snaps := Select(records, time.Now())
	if len(snaps) != 1 || snaps[0].Symbol != "ETHUSDT" {
		t.Fatalf("expected only ETHUSDT to survive, got %v", snaps)
	}
}

func TestSelectAppliesSizingDefaults(t *testing.T) {
	snaps := Select([]Record{{Market: "ETHUSDT", Implied: f(5), Underlying: f(9)}}, time.Now())
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if snaps[0].Liquidity != defaultLiquidityUSD {
		t.Fatalf("expected default liquidity, got %f", snaps[0].Liquidity)
	}
	if snaps[0].Volatility != defaultVolatility {
		t.Fatalf("expected default volatility, got %f", snaps[0].Volatility)
	}
	if snaps[0].TimeToSettlement != defaultSettlement {
		t.Fatalf("expected default settlement horizon, got %v", snaps[0].TimeToSettlement)
	}
}

func TestSpreadSignConvention(t *testing.T) {
	snap := Snapshot{ImpliedRate: 0.05, ReferenceRate: 0.09}
	if math.Abs(snap.Spread()-0.04) > 1e-12 {
		t.Fatalf("expected +0.04 spread, got %f", snap.Spread())
	}
	snap = Snapshot{ImpliedRate: 0.09, ReferenceRate: 0.05}
	if snap.Spread() >= 0 {
		t.Fatalf("expected negative spread, got %f", snap.Spread())
	}
}
