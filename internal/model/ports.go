package model

import (
	"context"
	"time"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the decision and reconciliation loops from the
// concrete exchange transport and ledger storage. Each implementation
// satisfies one or more of these interfaces.

// MarketDataProvider fetches price history for a trading pair.
type MarketDataProvider interface {
	// FetchCandles returns the ordered candle series for pair, one candle
	// per interval, starting at since.
	FetchCandles(ctx context.Context, pair string, interval time.Duration, since time.Time) ([]Candle, error)
}

// ExchangeClient is the authenticated exchange surface used by the loops.
type ExchangeClient interface {
	// GetBalance returns the current base/quote holdings.
	GetBalance(ctx context.Context) (Balance, error)

	// GetPrice returns the last trade price for pair.
	GetPrice(ctx context.Context, pair string) (float64, error)

	// SubmitMarketOrder places a market order and returns the
	// exchange-assigned order id.
	SubmitMarketOrder(ctx context.Context, pair string, side Action, volume float64) (string, error)

	// QueryOrders returns the authoritative state of the given order ids.
	QueryOrders(ctx context.Context, ids []string) (map[string]OrderUpdate, error)

	// CancelAllOpenOrders cancels every open order on the account.
	CancelAllOpenOrders(ctx context.Context) error
}

// OrderStore is the durable ledger of submitted orders.
type OrderStore interface {
	// RecordOrder inserts one row with status "created". Never overwrites
	// an existing order id.
	RecordOrder(ctx context.Context, orderID, pair string, side Action, expectedPrice, amount float64, origin SignalOrigin) error

	// ListUnreconciled returns ids of orders still in status "created"
	// that were created within the last maxAge.
	ListUnreconciled(ctx context.Context, maxAge time.Duration) ([]string, error)

	// ApplyReconciliation updates the matching row with the exchange's
	// reported price, status and executed amount. An unknown id is a no-op.
	ApplyReconciliation(ctx context.Context, orderID string, actualPrice float64, status string, actualAmount float64) error
}
