// Package balancer computes the signed trade amount needed to move the
// portfolio's value-weighted allocation to a configured target fraction,
// gated by minimum-volume and fee-breakeven rules.
package balancer

import (
	"math"

	"github.com/shopspring/decimal"
)

// Suppression reasons returned by Compute alongside a zero amount.
const (
	ReasonBelowMinVolume = "required amount is below minimum transaction volume"
	ReasonFeesNotCovered = "expected revenue does not cover transaction fees"
)

// Config holds the allocation tunables.
type Config struct {
	TargetFrac    float64 // target fraction of portfolio value in the base asset, in (0,1)
	MinVolume     float64 // exchange minimum transaction volume (base units)
	FeeRate       float64 // per-transaction fee rate, e.g. 0.0026
	FeeMultiplier float64 // breakeven multiplier on FeeRate, nominally 2-4 for round-trip cost
}

// Compute returns the signed base-asset amount that would move the
// portfolio to the target allocation at the given price, and a reason when
// the amount is suppressed to zero. Positive means buy, negative sell.
//
// Pure function: no I/O, deterministic.
func Compute(price, base, quote float64, cfg Config) (float64, string) {
	required := round5((base+quote/price)*cfg.TargetFrac - base)

	if math.Abs(required) < cfg.MinVolume {
		return 0, ReasonBelowMinVolume
	}

	// Compare the average acquisition level implied by current holdings
	// with the current price: if the move is within the fee breakeven
	// band, trading it would lose money on the round trip.
	if base != 0 && math.Abs((quote/base-price)/price) <= cfg.FeeRate*cfg.FeeMultiplier {
		return 0, ReasonFeesNotCovered
	}

	return required, ""
}

// round5 rounds to 5 decimal places, the finest volume granularity the
// exchange accepts.
func round5(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(5).Float64()
	return f
}
