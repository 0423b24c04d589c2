package model

// Action represents a trade intent produced by a signal rule and the
// side of a submitted order.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionNone Action = "no-action"
)

// SignalOrigin identifies which rule triggered an order.
type SignalOrigin string

const (
	OriginTrend      SignalOrigin = "EWM"
	OriginOscillator SignalOrigin = "RSI"
)
