package indicator

import (
	"math"

	"spot-botv1/internal/model"
)

// Compute derives the full indicator series from an ordered candle series.
// The output is aligned to candles; indices before cfg.WarmUp() are NaN.
func Compute(candles []model.Candle, cfg Config) Series {
	n := len(candles)
	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}

	short := ewmaSeries(closes, cfg.ShortWindow)
	long := ewmaSeries(closes, cfg.LongWindow)

	diff := make([]float64, n)
	for i := 0; i < n; i++ {
		diff[i] = short[i] - long[i]
	}

	osc := oscillatorSeries(closes, cfg.OscWindow, cfg.OscSmoothing)

	// Mask everything before the warm-up window. The recurrences above are
	// seeded from index 0, so later values are exact, but early ones carry
	// too little history to act on.
	warm := cfg.WarmUp()
	for i := 0; i < n && i < warm; i++ {
		short[i] = math.NaN()
		long[i] = math.NaN()
		diff[i] = math.NaN()
		osc[i] = math.NaN()
	}

	return Series{ShortEWMA: short, LongEWMA: long, TrendDiff: diff, Oscillator: osc}
}

// ewmaSeries computes an exponentially weighted moving average with the
// given span (alpha = 2/(span+1)). Weights are renormalized over the
// observations seen so far, so early values are unbiased rather than
// dragged toward the seed.
func ewmaSeries(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if span <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	decay := 1.0 - alpha

	var num, den float64
	for i, v := range values {
		num = v + decay*num
		den = 1 + decay*den
		out[i] = num / den
	}
	return out
}

// rollingMean computes a simple moving average over a fixed window.
// Indices before window-1 are NaN.
func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// oscillatorSeries computes the RSI-style oscillator: per-step deltas are
// split into gains and losses, each smoothed over window, and combined as
// 100 − 100/(1 + avgGain/avgLoss).
//
// When the smoothed losses are zero the ratio is unbounded; the oscillator
// is defined as 100 (fully overbought) by convention instead of raising a
// division error.
func oscillatorSeries(closes []float64, window int, smoothing Smoothing) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n < 2 || window <= 0 {
		return out
	}

	// Deltas exist from index 1 onward.
	gains := make([]float64, n-1)
	losses := make([]float64, n-1)
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}

	var avgGain, avgLoss []float64
	switch smoothing {
	case SmoothingSimple:
		avgGain = rollingMean(gains, window)
		avgLoss = rollingMean(losses, window)
	default:
		avgGain = ewmaSeries(gains, window)
		avgLoss = ewmaSeries(losses, window)
	}

	for i := 0; i < n-1; i++ {
		g, l := avgGain[i], avgLoss[i]
		if math.IsNaN(g) || math.IsNaN(l) {
			continue
		}
		if l == 0 {
			out[i+1] = 100.0
			continue
		}
		rs := g / l
		out[i+1] = 100.0 - (100.0 / (1.0 + rs))
	}
	return out
}
