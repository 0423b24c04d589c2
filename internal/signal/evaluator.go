// Package signal classifies the latest indicator values into discrete
// trade intents.
//
// Two rules are evaluated independently each cycle: a trend-crossover rule
// on the EWMA differential and a threshold rule on the oscillator. The
// decision loop decides precedence between them.
package signal

import (
	"math"

	"spot-botv1/internal/indicator"
	"spot-botv1/internal/model"
)

// Config holds the signal rule tunables.
type Config struct {
	TrendLength int     // trailing differential window for crossover detection
	Oversold    float64 // oscillator level below which the rule says buy
	Overbought  float64 // oscillator level above which the rule says sell
}

// Evaluator applies both signal rules to indicator series.
type Evaluator struct {
	cfg Config
}

// New creates an Evaluator with the given rule configuration.
func New(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate runs both rules against the latest values of the series.
func (e *Evaluator) Evaluate(s indicator.Series) (trend, osc model.Action) {
	n := s.Len()
	if n == 0 {
		return model.ActionNone, model.ActionNone
	}

	trend = model.ActionNone
	if n > e.cfg.TrendLength {
		last := s.TrendDiff[n-1]
		previous := s.TrendDiff[n-1-e.cfg.TrendLength : n-1]
		trend = e.TrendSignal(last, previous)
	}

	osc = e.OscillatorSignal(s.Oscillator[n-1])
	return trend, osc
}

// TrendSignal detects a crossover: a unanimous strictly-positive run of
// previous differentials followed by a negative last value means sell, the
// mirrored case means buy. Mixed signs never trigger — a deliberately
// conservative detector that suppresses noise (and repeated re-entry).
func (e *Evaluator) TrendSignal(last float64, previous []float64) model.Action {
	if len(previous) == 0 || math.IsNaN(last) {
		return model.ActionNone
	}
	if allPositive(previous) && last < 0 {
		return model.ActionSell
	}
	if allNegative(previous) && last > 0 {
		return model.ActionBuy
	}
	return model.ActionNone
}

// OscillatorSignal says buy below the oversold level and sell above the
// overbought level.
func (e *Evaluator) OscillatorSignal(osc float64) model.Action {
	if math.IsNaN(osc) {
		return model.ActionNone
	}
	switch {
	case osc < e.cfg.Oversold:
		return model.ActionBuy
	case osc > e.cfg.Overbought:
		return model.ActionSell
	default:
		return model.ActionNone
	}
}

func allPositive(values []float64) bool {
	for _, v := range values {
		if !(v > 0) { // NaN fails unanimity too
			return false
		}
	}
	return true
}

func allNegative(values []float64) bool {
	for _, v := range values {
		if !(v < 0) {
			return false
		}
	}
	return true
}
