// Package indicator turns an ordered candle series into derived signal
// series: short/long exponentially weighted moving averages, their
// difference (the trend differential), and an RSI-style oscillator.
//
// All computations are pure functions of their inputs. Output series are
// aligned to the input candle series; entries before the warm-up window
// are NaN rather than spurious numeric values.
package indicator

import "math"

// Smoothing selects how oscillator gain/loss averages are smoothed.
type Smoothing string

const (
	// SmoothingExponential smooths gains/losses with an EWMA of the
	// configured span.
	SmoothingExponential Smoothing = "ewm"
	// SmoothingSimple smooths gains/losses with a rolling mean over the
	// configured window.
	SmoothingSimple Smoothing = "sma"
)

// Config holds the window sizes for indicator computation.
type Config struct {
	ShortWindow  int       // EWMA span of the fast average
	LongWindow   int       // EWMA span of the slow average
	OscWindow    int       // oscillator gain/loss window
	OscSmoothing Smoothing // exponential or simple
}

// WarmUp returns the number of leading candles for which indicator values
// are undefined: max(short, long, oscillator window).
func (c Config) WarmUp() int {
	w := c.ShortWindow
	if c.LongWindow > w {
		w = c.LongWindow
	}
	if c.OscWindow > w {
		w = c.OscWindow
	}
	return w
}

// Series holds indicator values aligned index-for-index with the candle
// series they were computed from. Entries before the warm-up window are NaN.
type Series struct {
	ShortEWMA  []float64
	LongEWMA   []float64
	TrendDiff  []float64 // ShortEWMA − LongEWMA
	Oscillator []float64 // bounded [0,100]
}

// Len returns the series length (equal to the input candle count).
func (s Series) Len() int { return len(s.TrendDiff) }

// Defined reports whether the value at index i exists (post warm-up).
func Defined(v float64) bool { return !math.IsNaN(v) }
