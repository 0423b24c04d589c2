package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"spot-botv1/internal/model"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordOrder_RoundTrip(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if err := l.RecordOrder(ctx, "TX-1", "XXBTZUSD", model.ActionBuy, 50000, 0.25, model.OriginTrend); err != nil {
		t.Fatalf("record order: %v", err)
	}

	ids, err := l.ListUnreconciled(ctx, time.Hour)
	if err != nil {
		t.Fatalf("list unreconciled: %v", err)
	}
	if len(ids) != 1 || ids[0] != "TX-1" {
		t.Fatalf("expected [TX-1], got %v", ids)
	}

	orders, err := l.GetOrders(ctx, 10)
	if err != nil {
		t.Fatalf("get orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	o := orders[0]
	if o.Status != model.StatusCreated || o.Side != model.ActionBuy || o.SignalOrigin != model.OriginTrend {
		t.Errorf("unexpected order row: %+v", o)
	}
	if o.ExpectedPrice != 50000 || o.ActualAmount != 0.25 {
		t.Errorf("unexpected prices: %+v", o)
	}
}

func TestRecordOrder_NeverOverwrites(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if err := l.RecordOrder(ctx, "TX-1", "XXBTZUSD", model.ActionBuy, 50000, 0.25, model.OriginTrend); err != nil {
		t.Fatalf("record order: %v", err)
	}
	if err := l.RecordOrder(ctx, "TX-1", "XXBTZUSD", model.ActionSell, 51000, 0.3, model.OriginOscillator); err == nil {
		t.Fatal("expected duplicate order id to be rejected")
	}

	orders, _ := l.GetOrders(ctx, 10)
	if len(orders) != 1 || orders[0].Side != model.ActionBuy {
		t.Fatalf("original row must be untouched, got %+v", orders)
	}
}

func TestApplyReconciliation_ExcludesTerminal(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if err := l.RecordOrder(ctx, "TX-1", "XXBTZUSD", model.ActionSell, 50000, 0.25, model.OriginOscillator); err != nil {
		t.Fatalf("record order: %v", err)
	}
	if err := l.ApplyReconciliation(ctx, "TX-1", 49990, model.StatusClosed, 0.25); err != nil {
		t.Fatalf("apply reconciliation: %v", err)
	}

	ids, err := l.ListUnreconciled(ctx, time.Hour)
	if err != nil {
		t.Fatalf("list unreconciled: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("terminal order must not be polled again, got %v", ids)
	}

	orders, _ := l.GetOrders(ctx, 10)
	if orders[0].Status != model.StatusClosed || orders[0].ActualPrice != 49990 {
		t.Errorf("reconciliation not applied: %+v", orders[0])
	}
}

func TestApplyReconciliation_UnknownIDIsNoOp(t *testing.T) {
	l := openTestLedger(t)
	if err := l.ApplyReconciliation(context.Background(), "MISSING", 1, model.StatusClosed, 1); err != nil {
		t.Fatalf("unknown id must be a benign no-op, got %v", err)
	}
}

func TestListUnreconciled_AgeWindow(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if err := l.RecordOrder(ctx, "TX-OLD", "XXBTZUSD", model.ActionBuy, 50000, 0.25, model.OriginTrend); err != nil {
		t.Fatalf("record order: %v", err)
	}

	// A zero-length window excludes even a freshly created row: stale rows
	// remain stored but are no longer polled.
	ids, err := l.ListUnreconciled(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("list unreconciled: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected rows outside the window to be excluded, got %v", ids)
	}

	orders, _ := l.GetOrders(ctx, 10)
	if len(orders) != 1 {
		t.Fatalf("stale row must remain in storage, got %d rows", len(orders))
	}
}

func TestOpen_IdempotentSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trades.db")

	l1, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := l1.RecordOrder(context.Background(), "TX-1", "XXBTZUSD", model.ActionBuy, 1, 1, model.OriginTrend); err != nil {
		t.Fatalf("record order: %v", err)
	}
	l1.Close()

	// Second open re-runs CREATE TABLE IF NOT EXISTS without error or
	// data loss.
	l2, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer l2.Close()

	orders, err := l2.GetOrders(context.Background(), 10)
	if err != nil {
		t.Fatalf("get orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected data to survive reopen, got %d rows", len(orders))
	}
}
