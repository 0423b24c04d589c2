// Package reconcile periodically polls the exchange for unresolved orders
// and updates the ledger with their authoritative outcome.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"spot-botv1/internal/metrics"
	"spot-botv1/internal/model"
)

// OrderQuerier is the slice of the exchange client this loop needs.
type OrderQuerier interface {
	QueryOrders(ctx context.Context, ids []string) (map[string]model.OrderUpdate, error)
}

// Config holds the reconciliation tunables.
type Config struct {
	// MaxAge caps how far back the unreconciled query reaches. Orders
	// older than this stay in storage but are no longer polled.
	MaxAge time.Duration
}

// Loop reconciles ledger rows against the exchange's order records.
type Loop struct {
	cfg     Config
	querier OrderQuerier
	store   model.OrderStore
	prom    *metrics.Metrics // may be nil
}

// New creates a reconciliation loop.
func New(cfg Config, querier OrderQuerier, store model.OrderStore, prom *metrics.Metrics) *Loop {
	if cfg.MaxAge == 0 {
		cfg.MaxAge = time.Hour
	}
	return &Loop{cfg: cfg, querier: querier, store: store, prom: prom}
}

// RunCycle polls once. An empty unresolved set performs zero exchange
// queries. One batched query covers all ids; the payload grows with order
// volume, acceptable at this polling frequency.
func (l *Loop) RunCycle(ctx context.Context) error {
	ids, err := l.store.ListUnreconciled(ctx, l.cfg.MaxAge)
	if err != nil {
		return fmt.Errorf("reconcile: list unreconciled: %w", err)
	}
	if l.prom != nil {
		l.prom.UnreconciledCount.Set(float64(len(ids)))
	}
	if len(ids) == 0 {
		return nil
	}

	updates, err := l.querier.QueryOrders(ctx, ids)
	if err != nil {
		return fmt.Errorf("reconcile: query %d orders: %w", len(ids), err)
	}

	reconciled := 0
	for _, id := range ids {
		update, ok := updates[id]
		if !ok {
			log.Printf("[reconcile] order %s missing from exchange response", id)
			continue
		}
		// Only a terminal status moves the row out of "created"; an order
		// still working on the exchange is polled again next cycle.
		if !isTerminal(update.Status) {
			continue
		}
		if err := l.store.ApplyReconciliation(ctx, id, update.Price, update.Status, update.VolumeExec); err != nil {
			return fmt.Errorf("reconcile: apply %s: %w", id, err)
		}
		reconciled++
	}

	if reconciled > 0 {
		log.Printf("[reconcile] reconciled %d of %d open orders", reconciled, len(ids))
		if l.prom != nil {
			l.prom.OrdersReconciled.Add(float64(reconciled))
		}
	}
	return nil
}

// isTerminal reports whether an exchange-reported status ends the order's
// lifecycle. Working statuses (pending, open) keep the row eligible for
// the next poll.
func isTerminal(status string) bool {
	switch status {
	case "closed", "canceled", "cancelled", "expired":
		return true
	}
	return false
}
