package model

import "time"

// Order status values. StatusCreated is the only status written at
// submission time; every other value is exchange-reported and terminal
// from this process's point of view.
const (
	StatusCreated = "created"
	StatusClosed  = "closed"
)

// Order represents a submitted exchange order and its reconciliation state.
// Identity is the exchange-assigned order id; the ledger owns these rows.
type Order struct {
	ID            int64        `json:"id"`
	OrderID       string       `json:"order_id"` // exchange txid
	CreatedAt     time.Time    `json:"created_at"`
	Pair          string       `json:"pair"`
	Side          Action       `json:"side"` // buy, sell
	SignalOrigin  SignalOrigin `json:"signal_origin"`
	ExpectedPrice float64      `json:"expected_price"`
	Status        string       `json:"status"`
	ActualPrice   float64      `json:"actual_price"`
	ActualAmount  float64      `json:"actual_amount"`
}

// OrderUpdate is the exchange's authoritative view of an order,
// returned by a batched order query during reconciliation.
type OrderUpdate struct {
	Price      float64 `json:"price"`
	Status     string  `json:"status"`
	VolumeExec float64 `json:"vol_exec"`
}
