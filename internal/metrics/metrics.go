package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading agent.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec // labels: job (decision, reconcile)
	CycleErrorsTotal *prometheus.CounterVec // labels: job
	CycleDur         *prometheus.HistogramVec

	OrdersSubmitted     *prometheus.CounterVec // labels: side, origin
	OrderFailures       prometheus.Counter
	LedgerWriteFailures prometheus.Counter

	OrdersReconciled  prometheus.Counter
	UnreconciledCount prometheus.Gauge

	LastPrice         prometheus.Gauge
	ActualAllocation  prometheus.Gauge
	VirtualAllocation prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_cycles_total",
			Help: "Total scheduled cycles executed (by job)",
		}, []string{"job"}),
		CycleErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_cycle_errors_total",
			Help: "Cycles abandoned due to an error (by job)",
		}, []string{"job"}),
		CycleDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bot_cycle_duration_seconds",
			Help:    "Cycle wall-clock duration (by job)",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),

		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_orders_submitted_total",
			Help: "Market orders submitted to the exchange (by side and signal origin)",
		}, []string{"side", "origin"}),
		OrderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_order_failures_total",
			Help: "Order submissions rejected or failed",
		}),
		LedgerWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_ledger_write_failures_total",
			Help: "Submitted orders whose ledger row could not be written (untracked orders)",
		}),

		OrdersReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_orders_reconciled_total",
			Help: "Orders updated with their exchange-reported terminal state",
		}),
		UnreconciledCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_unreconciled_orders",
			Help: "Orders still awaiting reconciliation at the last poll",
		}),

		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_last_price",
			Help: "Last observed trade price for the trading pair",
		}),
		ActualAllocation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_actual_allocation_pct",
			Help: "Fraction of real portfolio value held in the risk asset",
		}),
		VirtualAllocation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_virtual_allocation_pct",
			Help: "Fraction of leveraged (virtual) portfolio value held in the risk asset",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleErrorsTotal,
		m.CycleDur,
		m.OrdersSubmitted,
		m.OrderFailures,
		m.LedgerWriteFailures,
		m.OrdersReconciled,
		m.UnreconciledCount,
		m.LastPrice,
		m.ActualAllocation,
		m.VirtualAllocation,
	)

	return m
}

// HealthStatus represents the process health.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK       bool      `json:"sqlite_ok"`
	RedisConnected bool      `json:"redis_connected"`
	LastDecisionAt time.Time `json:"last_decision_at"`

	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastDecisionAt(t time.Time) {
	h.mu.Lock()
	h.LastDecisionAt = t
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if db != nil {
					h.CheckSQLite(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RedisConnected  bool    `json:"redis_connected"`
		LastDecisionAt  string  `json:"last_decision_at"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisConnected:  h.RedisConnected,
		LastDecisionAt:  h.LastDecisionAt.Format(time.RFC3339),
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
