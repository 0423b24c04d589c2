package balancer

import (
	"context"
	"errors"
	"math"
	"testing"

	"spot-botv1/internal/model"
)

func testConfig() Config {
	return Config{
		TargetFrac:    0.5,
		MinVolume:     0.001,
		FeeRate:       0.0026,
		FeeMultiplier: 4,
	}
}

func TestCompute_RebalanceToTarget(t *testing.T) {
	// price=100, base=1, quote=50 → (1 + 0.5)*0.5 − 1 = −0.25 (sell).
	amount, reason := Compute(100, 1, 50, testConfig())
	if math.Abs(amount-(-0.25)) > 1e-9 {
		t.Fatalf("expected -0.25, got %v", amount)
	}
	if reason != "" {
		t.Fatalf("expected no reason, got %q", reason)
	}
}

func TestCompute_BelowMinVolume(t *testing.T) {
	cfg := testConfig()
	cfg.MinVolume = 0.5
	amount, reason := Compute(100, 1, 50, cfg)
	if amount != 0 {
		t.Fatalf("expected suppressed amount, got %v", amount)
	}
	if reason != ReasonBelowMinVolume {
		t.Fatalf("expected min-volume reason, got %q", reason)
	}
}

func TestCompute_FeeBreakevenSuppression(t *testing.T) {
	// Large unsuppressed amount, but quote/base ≈ price, so the implied
	// move sits inside the fee band and must be suppressed.
	cfg := testConfig()
	cfg.TargetFrac = 0.9
	price := 100.0
	base := 1.0
	quote := 100.5 // |(100.5 − 100)/100| = 0.005 ≤ 0.0026*4

	unsuppressed := (base+quote/price)*cfg.TargetFrac - base
	if math.Abs(unsuppressed) < 0.5 {
		t.Fatalf("test setup: expected a large raw amount, got %v", unsuppressed)
	}

	amount, reason := Compute(price, base, quote, cfg)
	if amount != 0 {
		t.Fatalf("expected fee suppression, got %v", amount)
	}
	if reason != ReasonFeesNotCovered {
		t.Fatalf("expected fee reason, got %q", reason)
	}
}

func TestCompute_ZeroBaseSkipsFeeCheck(t *testing.T) {
	// base == 0 would divide by zero in the fee ratio; the rule only
	// applies to a non-empty position.
	amount, reason := Compute(100, 0, 100, testConfig())
	if amount != 0.5 {
		t.Fatalf("expected 0.5, got %v", amount)
	}
	if reason != "" {
		t.Fatalf("expected no reason, got %q", reason)
	}
}

func TestCompute_RoundsToFiveDecimals(t *testing.T) {
	cfg := testConfig()
	cfg.MinVolume = 0
	cfg.FeeRate = 0
	amount, _ := Compute(3, 0, 1, cfg) // (1/3)*0.5 = 0.1666666...
	if amount != 0.16667 {
		t.Fatalf("expected 0.16667, got %v", amount)
	}
}

type stubExchange struct {
	model.ExchangeClient
	balance model.Balance
	price   float64
	err     error
}

func (s *stubExchange) GetBalance(ctx context.Context) (model.Balance, error) {
	return s.balance, s.err
}

func (s *stubExchange) GetPrice(ctx context.Context, pair string) (float64, error) {
	return s.price, s.err
}

func TestInitVirtualBalance(t *testing.T) {
	exch := &stubExchange{balance: model.Balance{Base: 1, Quote: 100}, price: 100}

	// total = 200, power 2 → leveraged 400; target 0.5 → 200 per side.
	offset, err := InitVirtualBalance(context.Background(), exch, "XXBTZUSD", 2, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(offset.Base-1.0) > 1e-9 { // 400*0.5/100 − 1
		t.Errorf("expected base offset 1.0, got %v", offset.Base)
	}
	if math.Abs(offset.Quote-100.0) > 1e-9 { // 400*0.5 − 100
		t.Errorf("expected quote offset 100.0, got %v", offset.Quote)
	}
}

func TestInitVirtualBalance_PowerOne(t *testing.T) {
	exch := &stubExchange{err: errors.New("should not be called")}
	offset, err := InitVirtualBalance(context.Background(), exch, "XXBTZUSD", 1, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != (model.Balance{}) {
		t.Errorf("expected zero offset for power=1, got %+v", offset)
	}
}

func TestInitVirtualBalance_ExchangeError(t *testing.T) {
	exch := &stubExchange{err: errors.New("network down")}
	if _, err := InitVirtualBalance(context.Background(), exch, "XXBTZUSD", 3, 0.5); err == nil {
		t.Fatal("expected error when the exchange is unreachable")
	}
}
