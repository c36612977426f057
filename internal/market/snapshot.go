package market

import (
	"math"
	"sort"
	"time"
)

// Snapshot is one market's rates at one point in time. Rates are annualized
// decimals (0.05 = 5%). Spread sign follows the reference-minus-implied
// convention; every downstream rule depends on it.
type Snapshot struct {
	Symbol           string
	ImpliedRate      float64
	ReferenceRate    float64
	Liquidity        float64
	Volatility       float64
	TimeToSettlement time.Duration
	ObservedAt       time.Time
}

// Spread is reference rate minus implied rate, sign preserved. Positive
// means the reference rate exceeds the implied rate.
func (s Snapshot) Spread() float64 {
	return s.ReferenceRate - s.ImpliedRate
}

// Record is a raw feed row. Rates arrive as percent values; required
// numerics are pointers so a missing field is distinguishable from zero.
type Record struct {
	Market       string   `json:"market"`
	Implied      *float64 `json:"implied"`
	Underlying   *float64 `json:"underlying"`
	Days         float64  `json:"days"`
	LiquidityUSD float64  `json:"liquidity_usd"`
	Volatility   float64  `json:"volatility"`
}

const (
	defaultLiquidityUSD = 1_000_000
	defaultVolatility   = 0.3
	defaultSettlement   = 4 * time.Hour
)

func (r Record) valid() bool {
	if r.Market == "" || r.Implied == nil || r.Underlying == nil {
		return false
	}
	for _, v := range []float64{*r.Implied, *r.Underlying} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Select reduces a raw batch to one snapshot per symbol. A symbol may carry
// multiple records (one per maturity); the record with the highest implied
// rate wins. Malformed records are dropped without failing the batch.
// Output is sorted by symbol so evaluation order is stable.
func Select(records []Record, observedAt time.Time) []Snapshot {
	best := make(map[string]Record)
	for _, rec := range records {
		if !rec.valid() {
			continue
		}
		cur, ok := best[rec.Market]
		if !ok || *rec.Implied > *cur.Implied {
			best[rec.Market] = rec
		}
	}
	snaps := make([]Snapshot, 0, len(best))
	for _, rec := range best {
		snaps = append(snaps, toSnapshot(rec, observedAt))
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Symbol < snaps[j].Symbol })
	return snaps
}

func toSnapshot(rec Record, observedAt time.Time) Snapshot {
	snap := Snapshot{
		Symbol:           rec.Market,
		ImpliedRate:      *rec.Implied / 100,
		ReferenceRate:    *rec.Underlying / 100,
		Liquidity:        rec.LiquidityUSD,
		Volatility:       rec.Volatility,
		TimeToSettlement: defaultSettlement,
		ObservedAt:       observedAt,
	}
	if snap.Liquidity <= 0 {
		snap.Liquidity = defaultLiquidityUSD
	}
	if snap.Volatility <= 0 {
		snap.Volatility = defaultVolatility
	}
	if rec.Days > 0 {
		snap.TimeToSettlement = time.Duration(rec.Days * 24 * float64(time.Hour))
	}
	return snap
}
