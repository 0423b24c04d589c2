package decision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"spot-botv1/internal/balancer"
	"spot-botv1/internal/indicator"
	"spot-botv1/internal/model"
)

// ── fakes ──

type fakeMarket struct {
	candles []model.Candle
	err     error
}

func (f *fakeMarket) FetchCandles(ctx context.Context, pair string, interval time.Duration, since time.Time) ([]model.Candle, error) {
	return f.candles, f.err
}

type fakeExchange struct {
	model.ExchangeClient

	balance   model.Balance
	orderID   string
	submitErr error

	submitted     bool
	submittedSide model.Action
	submittedVol  float64
}

func (f *fakeExchange) GetBalance(ctx context.Context) (model.Balance, error) {
	return f.balance, nil
}

func (f *fakeExchange) SubmitMarketOrder(ctx context.Context, pair string, side model.Action, volume float64) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = true
	f.submittedSide = side
	f.submittedVol = volume
	return f.orderID, nil
}

type fakeStore struct {
	model.OrderStore

	recordErr error
	recorded  []model.Order
}

func (f *fakeStore) RecordOrder(ctx context.Context, orderID, pair string, side model.Action, expectedPrice, amount float64, origin model.SignalOrigin) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, model.Order{
		OrderID:       orderID,
		Pair:          pair,
		Side:          side,
		ExpectedPrice: expectedPrice,
		ActualAmount:  amount,
		SignalOrigin:  origin,
	})
	return nil
}

type fakeEvaluator struct {
	trend, osc model.Action
}

func (f *fakeEvaluator) Evaluate(s indicator.Series) (model.Action, model.Action) {
	return f.trend, f.osc
}

type capturedEvent struct {
	ev  *Event
	err error
}

func (c *capturedEvent) PublishDecision(ctx context.Context, ev Event) error {
	c.ev = &ev
	return c.err
}

// ── helpers ──

func candlesAt(price float64) []model.Candle {
	candles := make([]model.Candle, 10)
	for i := range candles {
		candles[i] = model.Candle{TS: time.Now().Add(time.Duration(i) * time.Minute), Close: price}
	}
	return candles
}

func testLoop(balance model.Balance, eval *fakeEvaluator, exch *fakeExchange, store *fakeStore, pub EventPublisher) *Loop {
	cfg := Config{
		TradingPair:   "XXBTZUSD",
		TrendPair:     "XXBTZUSD",
		Interval:      time.Minute,
		HistoryWindow: 60,
	}
	indCfg := indicator.Config{ShortWindow: 2, LongWindow: 3, OscWindow: 3, OscSmoothing: indicator.SmoothingSimple}
	allocCfg := balancer.Config{TargetFrac: 0.5, MinVolume: 0.001, FeeRate: 0, FeeMultiplier: 4}

	exch.balance = balance
	return New(cfg, indCfg, allocCfg, model.Balance{}, Deps{
		Market:    &fakeMarket{candles: candlesAt(100)},
		Exchange:  exch,
		Evaluator: eval,
		Store:     store,
		Publisher: pub,
	})
}

// ── tests ──

func TestRunCycle_NoSignalNoOrder(t *testing.T) {
	exch := &fakeExchange{orderID: "TX-1"}
	store := &fakeStore{}
	pub := &capturedEvent{}
	// Allocation is off-target, but no rule fired.
	l := testLoop(model.Balance{Base: 0, Quote: 100}, &fakeEvaluator{model.ActionNone, model.ActionNone}, exch, store, pub)

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if exch.submitted {
		t.Error("no order must be submitted without a signal")
	}
	if pub.ev == nil || pub.ev.Reason != "no trade signal" {
		t.Errorf("expected 'no trade signal' event, got %+v", pub.ev)
	}
}

func TestRunCycle_SuppressedAmountNoOrder(t *testing.T) {
	exch := &fakeExchange{orderID: "TX-1"}
	store := &fakeStore{}
	pub := &capturedEvent{}
	// Portfolio already at target: required = 0 regardless of signal.
	l := testLoop(model.Balance{Base: 1, Quote: 100}, &fakeEvaluator{model.ActionBuy, model.ActionNone}, exch, store, pub)

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if exch.submitted {
		t.Error("zero amount must suppress the order regardless of signal")
	}
	if pub.ev == nil || pub.ev.Reason == "" {
		t.Error("expected a suppression reason in the published event")
	}
}

func TestRunCycle_TrendBuySubmits(t *testing.T) {
	exch := &fakeExchange{orderID: "TX-1"}
	store := &fakeStore{}
	pub := &capturedEvent{}
	// Empty base position at price 100 with 100 quote → buy 0.5.
	l := testLoop(model.Balance{Base: 0, Quote: 100}, &fakeEvaluator{model.ActionBuy, model.ActionNone}, exch, store, pub)

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if !exch.submitted || exch.submittedSide != model.ActionBuy || exch.submittedVol != 0.5 {
		t.Fatalf("expected buy 0.5, got %+v", exch)
	}
	if len(store.recorded) != 1 {
		t.Fatalf("expected 1 ledger row, got %d", len(store.recorded))
	}
	row := store.recorded[0]
	if row.OrderID != "TX-1" || row.SignalOrigin != model.OriginTrend || row.ActualAmount != 0.5 {
		t.Errorf("unexpected ledger row: %+v", row)
	}
	if pub.ev.OrderID != "TX-1" || pub.ev.Origin != model.OriginTrend {
		t.Errorf("unexpected event: %+v", pub.ev)
	}
}

func TestRunCycle_OscillatorBuyTagged(t *testing.T) {
	exch := &fakeExchange{orderID: "TX-2"}
	store := &fakeStore{}
	l := testLoop(model.Balance{Base: 0, Quote: 100}, &fakeEvaluator{model.ActionNone, model.ActionBuy}, exch, store, nil)

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(store.recorded) != 1 || store.recorded[0].SignalOrigin != model.OriginOscillator {
		t.Fatalf("expected oscillator-tagged order, got %+v", store.recorded)
	}
}

func TestRunCycle_BuySignalNegativeAmount(t *testing.T) {
	exch := &fakeExchange{orderID: "TX-1"}
	store := &fakeStore{}
	pub := &capturedEvent{}
	// Overweight base: required is negative while the signal says buy.
	l := testLoop(model.Balance{Base: 1, Quote: 50}, &fakeEvaluator{model.ActionBuy, model.ActionNone}, exch, store, pub)

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if exch.submitted {
		t.Error("disagreeing signal and allocation must not trade")
	}
	if pub.ev.Reason != "overbought relative to target" {
		t.Errorf("expected overbought reason, got %q", pub.ev.Reason)
	}
}

func TestRunCycle_TrendSellSubmits(t *testing.T) {
	exch := &fakeExchange{orderID: "TX-3"}
	store := &fakeStore{}
	// Overweight base: required = −0.25 at price 100.
	l := testLoop(model.Balance{Base: 1, Quote: 50}, &fakeEvaluator{model.ActionSell, model.ActionNone}, exch, store, nil)

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if !exch.submitted || exch.submittedSide != model.ActionSell || exch.submittedVol != 0.25 {
		t.Fatalf("expected sell 0.25, got %+v", exch)
	}
}

func TestRunCycle_SellSignalPositiveAmount(t *testing.T) {
	exch := &fakeExchange{orderID: "TX-1"}
	store := &fakeStore{}
	pub := &capturedEvent{}
	l := testLoop(model.Balance{Base: 0, Quote: 100}, &fakeEvaluator{model.ActionSell, model.ActionNone}, exch, store, pub)

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if exch.submitted {
		t.Error("sell signal with a positive required amount must not trade")
	}
	if pub.ev.Reason != "oversold relative to target" {
		t.Errorf("expected oversold reason, got %q", pub.ev.Reason)
	}
}

func TestRunCycle_SubmitFailureWritesNoRow(t *testing.T) {
	exch := &fakeExchange{submitErr: errors.New("insufficient funds")}
	store := &fakeStore{}
	l := testLoop(model.Balance{Base: 0, Quote: 100}, &fakeEvaluator{model.ActionBuy, model.ActionNone}, exch, store, nil)

	err := l.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected submission failure to surface")
	}
	if len(store.recorded) != 0 {
		t.Error("no ledger row may be written on a failed submission")
	}
}

func TestRunCycle_LedgerFailureIsReported(t *testing.T) {
	exch := &fakeExchange{orderID: "TX-1"}
	store := &fakeStore{recordErr: errors.New("disk full")}
	l := testLoop(model.Balance{Base: 0, Quote: 100}, &fakeEvaluator{model.ActionBuy, model.ActionNone}, exch, store, nil)

	err := l.RunCycle(context.Background())
	if err == nil {
		t.Fatal("a submitted-but-untracked order must be reported")
	}
	if !strings.Contains(err.Error(), "not recorded") {
		t.Errorf("unexpected error: %v", err)
	}
	if !exch.submitted {
		t.Error("the exchange-side order was already placed")
	}
}

func TestRunCycle_EmptyHistory(t *testing.T) {
	l := testLoop(model.Balance{}, &fakeEvaluator{model.ActionNone, model.ActionNone}, &fakeExchange{}, &fakeStore{}, nil)
	l.deps.Market = &fakeMarket{candles: nil}

	if err := l.RunCycle(context.Background()); err == nil {
		t.Fatal("expected an error on missing price history")
	}
}
