// Package decision composes the signal evaluator and the allocation
// balancer into one buy/sell/no-action verdict per scheduled cycle, and
// submits at most one market order per cycle.
//
// Each invocation is independent and stateless except for the injected
// virtual balance offset and whatever the ledger and exchange hold.
package decision

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"spot-botv1/internal/balancer"
	"spot-botv1/internal/indicator"
	"spot-botv1/internal/metrics"
	"spot-botv1/internal/model"
	"spot-botv1/internal/notification"
	"spot-botv1/internal/signal"
)

// Config holds the decision loop tunables.
type Config struct {
	TradingPair   string        // pair orders are placed on
	TrendPair     string        // pair candle history is sampled from
	Interval      time.Duration // candle sampling interval
	HistoryWindow int           // number of intervals fetched per cycle
}

// Event is the outcome of one decision cycle, published for dashboards.
type Event struct {
	TS          time.Time          `json:"ts"`
	Pair        string             `json:"pair"`
	Price       float64            `json:"price"`
	TrendSignal model.Action       `json:"trend_signal"`
	OscSignal   model.Action       `json:"osc_signal"`
	Amount      float64            `json:"amount"`
	Reason      string             `json:"reason,omitempty"`
	OrderID     string             `json:"order_id,omitempty"`
	Side        model.Action       `json:"side,omitempty"`
	Origin      model.SignalOrigin `json:"origin,omitempty"`
	ActualPct   float64            `json:"actual_pct"`
	VirtualPct  float64            `json:"virtual_pct"`
}

// EventPublisher receives the outcome of each cycle. Optional; publishing
// is best-effort and never affects the verdict.
type EventPublisher interface {
	PublishDecision(ctx context.Context, ev Event) error
}

// Evaluator classifies the latest indicator values into trade intents.
// Satisfied by *signal.Evaluator.
type Evaluator interface {
	Evaluate(s indicator.Series) (trend, osc model.Action)
}

var _ Evaluator = (*signal.Evaluator)(nil)

// Deps are the decision loop's collaborators. Metrics, Notifier and
// Publisher may be nil.
type Deps struct {
	Market    model.MarketDataProvider
	Exchange  model.ExchangeClient
	Evaluator Evaluator
	Store     model.OrderStore
	Metrics   *metrics.Metrics
	Notifier  notification.Notifier
	Publisher EventPublisher
}

// Loop runs one decision cycle at a time.
type Loop struct {
	cfg      Config
	indCfg   indicator.Config
	allocCfg balancer.Config
	offset   model.Balance // virtual balance, fixed for the process lifetime
	deps     Deps
}

// New creates a decision loop. offset is the virtual balance computed once
// at startup (zero when leverage is disabled).
func New(cfg Config, indCfg indicator.Config, allocCfg balancer.Config, offset model.Balance, deps Deps) *Loop {
	return &Loop{cfg: cfg, indCfg: indCfg, allocCfg: allocCfg, offset: offset, deps: deps}
}

// RunCycle executes one full decision cycle: fetch history, derive
// signals, check the allocation, and submit at most one market order.
// Safe to invoke repeatedly on a fixed interval.
func (l *Loop) RunCycle(ctx context.Context) error {
	since := time.Now().Add(-time.Duration(l.cfg.HistoryWindow) * l.cfg.Interval)
	candles, err := l.deps.Market.FetchCandles(ctx, l.cfg.TrendPair, l.cfg.Interval, since)
	if err != nil {
		return fmt.Errorf("decision: fetch candles: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("decision: no price history for %s", l.cfg.TrendPair)
	}

	series := indicator.Compute(candles, l.indCfg)
	trendSig, oscSig := l.deps.Evaluator.Evaluate(series)
	price := candles[len(candles)-1].Close

	balance, err := l.deps.Exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("decision: get balance: %w", err)
	}

	actualPct := balance.AllocationPct(price)
	virtual := balance.Add(l.offset)
	virtualPct := virtual.AllocationPct(price)

	amount, reason := balancer.Compute(price, virtual.Base, virtual.Quote, l.allocCfg)

	log.Printf("[decision] EWM signal: %s, RSI signal: %s, actual balance: %.2f%%, virtual balance: %.2f%%",
		trendSig, oscSig, actualPct*100, virtualPct*100)

	if m := l.deps.Metrics; m != nil {
		m.LastPrice.Set(price)
		m.ActualAllocation.Set(actualPct)
		m.VirtualAllocation.Set(virtualPct)
	}

	ev := Event{
		TS:          time.Now().UTC(),
		Pair:        l.cfg.TradingPair,
		Price:       price,
		TrendSignal: trendSig,
		OscSignal:   oscSig,
		Amount:      amount,
		ActualPct:   actualPct,
		VirtualPct:  virtualPct,
	}

	// Verdict precedence: no signal at all, then a suppressed amount, then
	// the buy branch, then the sell branch. The trend rule wins over the
	// oscillator rule inside each branch.
	var cycleErr error
	switch {
	case trendSig == model.ActionNone && oscSig == model.ActionNone:
		ev.Reason = "no trade signal"
		log.Printf("[decision] no action: no trade signal")

	case amount == 0:
		ev.Reason = reason
		log.Printf("[decision] no action: %s", reason)

	case trendSig == model.ActionBuy || oscSig == model.ActionBuy:
		switch {
		case amount > 0 && trendSig == model.ActionBuy:
			cycleErr = l.submit(ctx, &ev, model.ActionBuy, amount, model.OriginTrend, price)
		case amount > 0 && oscSig == model.ActionBuy:
			cycleErr = l.submit(ctx, &ev, model.ActionBuy, amount, model.OriginOscillator, price)
		default:
			// Signal and allocation direction disagree.
			ev.Reason = "overbought relative to target"
			log.Printf("[decision] no action: overbought relative to target")
		}

	case trendSig == model.ActionSell || oscSig == model.ActionSell:
		switch {
		case amount < 0 && trendSig == model.ActionSell:
			cycleErr = l.submit(ctx, &ev, model.ActionSell, amount, model.OriginTrend, price)
		case amount < 0 && oscSig == model.ActionSell:
			cycleErr = l.submit(ctx, &ev, model.ActionSell, amount, model.OriginOscillator, price)
		default:
			ev.Reason = "oversold relative to target"
			log.Printf("[decision] no action: oversold relative to target")
		}
	}

	l.publish(ctx, ev)
	return cycleErr
}

// submit places one market order and records it in the ledger. The ledger
// write is fire-and-forget from the verdict's point of view: a failed
// write leaves the exchange-side order untracked, which is reported
// loudly but cannot be undone here.
func (l *Loop) submit(ctx context.Context, ev *Event, side model.Action, amount float64, origin model.SignalOrigin, price float64) error {
	volume := math.Abs(amount)

	orderID, err := l.deps.Exchange.SubmitMarketOrder(ctx, l.cfg.TradingPair, side, volume)
	if err != nil {
		if m := l.deps.Metrics; m != nil {
			m.OrderFailures.Inc()
		}
		l.alert(ctx, notification.AlertWarning, "Order submission failed",
			fmt.Sprintf("%s %.5f %s: %v", side, volume, l.cfg.TradingPair, err))
		return fmt.Errorf("decision: submit %s order: %w", side, err)
	}

	log.Printf("[decision] submitted %s order %s: volume=%.5f expected price=%.2f signal=%s",
		side, orderID, volume, price, origin)

	ev.OrderID = orderID
	ev.Side = side
	ev.Origin = origin

	if m := l.deps.Metrics; m != nil {
		m.OrdersSubmitted.WithLabelValues(string(side), string(origin)).Inc()
	}
	l.alert(ctx, notification.AlertInfo, "Order submitted",
		fmt.Sprintf("%s %.5f %s @ ~%.2f (%s)", side, volume, l.cfg.TradingPair, price, origin))

	if err := l.deps.Store.RecordOrder(ctx, orderID, l.cfg.TradingPair, side, price, volume, origin); err != nil {
		if m := l.deps.Metrics; m != nil {
			m.LedgerWriteFailures.Inc()
		}
		l.alert(ctx, notification.AlertCritical, "Order untracked",
			fmt.Sprintf("order %s submitted but ledger write failed: %v", orderID, err))
		return fmt.Errorf("decision: order %s submitted but not recorded: %w", orderID, err)
	}
	return nil
}

func (l *Loop) alert(ctx context.Context, level notification.AlertLevel, title, msg string) {
	if l.deps.Notifier == nil {
		return
	}
	if err := l.deps.Notifier.Send(ctx, notification.Alert{Level: level, Pair: l.cfg.TradingPair, Title: title, Message: msg}); err != nil {
		log.Printf("[decision] alert delivery failed: %v", err)
	}
}

func (l *Loop) publish(ctx context.Context, ev Event) {
	if l.deps.Publisher == nil {
		return
	}
	if err := l.deps.Publisher.PublishDecision(ctx, ev); err != nil {
		log.Printf("[decision] event publish failed: %v", err)
	}
}
