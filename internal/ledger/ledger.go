// Package ledger persists submitted orders and their reconciliation state
// to SQLite. It is the only owner of order rows: the decision loop inserts
// new rows fire-and-forget, the reconciliation loop drives the single
// created → terminal status transition.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"spot-botv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Ledger is a single-writer SQLite order store. Each insert/update runs as
// one atomic statement; no cross-row transactions are needed.
type Ledger struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the ledger database and ensures the schema
// exists. Schema creation is idempotent.
func Open(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger open: %w", err)
	}

	// Single-writer model: reconciliation and decision loops share one
	// connection so per-statement atomicity is all we rely on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger schema: %w", err)
	}

	log.Printf("[ledger] opened order ledger at %s", dbPath)
	return &Ledger{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS trades (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id       TEXT NOT NULL UNIQUE,
		created_at     DATETIME NOT NULL,
		pair           TEXT NOT NULL,
		side           TEXT NOT NULL,
		signal_origin  TEXT,
		expected_price REAL,
		status         TEXT NOT NULL DEFAULT 'created',
		actual_price   REAL DEFAULT 0,
		actual_amount  REAL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(pair);
	`)
	return err
}

// RecordOrder inserts one row in status "created" with the current
// timestamp. An existing order id is never overwritten; re-inserting one
// is an error.
func (l *Ledger) RecordOrder(ctx context.Context, orderID, pair string, side model.Action, expectedPrice, amount float64, origin model.SignalOrigin) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO trades (order_id, created_at, pair, side, signal_origin, expected_price, status, actual_amount)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		orderID,
		time.Now().UTC().Format(time.RFC3339),
		pair,
		string(side),
		string(origin),
		expectedPrice,
		model.StatusCreated,
		amount,
	)
	if err != nil {
		return fmt.Errorf("ledger record order %s: %w", orderID, err)
	}
	return nil
}

// ListUnreconciled returns ids of orders still in status "created" that
// were created within the last maxAge. The status filter is the
// correctness mechanism; the age bound only caps the reconciliation query
// batch, so older unresolved rows stay in storage un-polled.
func (l *Ledger) ListUnreconciled(ctx context.Context, maxAge time.Duration) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
	rows, err := l.db.QueryContext(ctx,
		`SELECT order_id FROM trades WHERE status = ? AND created_at > ?`,
		model.StatusCreated, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ledger list unreconciled: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ledger scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ApplyReconciliation updates the matching row with the exchange-reported
// price, status and executed amount. An unknown order id is a benign
// no-op: the update may race with ledger creation latency.
func (l *Ledger) ApplyReconciliation(ctx context.Context, orderID string, actualPrice float64, status string, actualAmount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		`UPDATE trades SET actual_price = ?, status = ?, actual_amount = ? WHERE order_id = ?`,
		actualPrice, status, actualAmount, orderID)
	if err != nil {
		return fmt.Errorf("ledger reconcile %s: %w", orderID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		log.Printf("[ledger] reconcile for unknown order %s, skipping", orderID)
	}
	return nil
}

// GetOrders returns the last limit orders, newest first. Audit helper.
func (l *Ledger) GetOrders(ctx context.Context, limit int) ([]model.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, order_id, created_at, pair, side, signal_origin, expected_price, status, actual_price, actual_amount
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger get orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var createdAt, side, origin string
		if err := rows.Scan(&o.ID, &o.OrderID, &createdAt, &o.Pair, &side, &origin,
			&o.ExpectedPrice, &o.Status, &o.ActualPrice, &o.ActualAmount); err != nil {
			return nil, fmt.Errorf("ledger scan order: %w", err)
		}
		o.Side = model.Action(side)
		o.SignalOrigin = model.SignalOrigin(origin)
		o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// DB exposes the underlying handle for liveness checks.
func (l *Ledger) DB() *sql.DB { return l.db }

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
