// cmd/bot — the spot-trading agent.
//
// Samples candle history on a fixed interval, evaluates trend and
// oscillator signals, rebalances the portfolio toward the target
// allocation via market orders, and reconciles submitted orders against
// the exchange's authoritative record. Serves Prometheus metrics and a
// health endpoint on METRICS_ADDR.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"spot-botv1/config"
	"spot-botv1/internal/balancer"
	"spot-botv1/internal/decision"
	"spot-botv1/internal/exchange"
	"spot-botv1/internal/indicator"
	"spot-botv1/internal/ledger"
	"spot-botv1/internal/logger"
	"spot-botv1/internal/marketdata"
	"spot-botv1/internal/metrics"
	"spot-botv1/internal/notification"
	"spot-botv1/internal/reconcile"
	"spot-botv1/internal/scheduler"
	evaluator "spot-botv1/internal/signal"
	redisstore "spot-botv1/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("spot-bot", slog.LevelInfo)
	log.Println("[bot] starting...")

	cfg := config.Load()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Exchange client ----
	kraken, err := exchange.New(exchange.Config{
		BaseURL:    cfg.KrakenAPIURL,
		Key:        cfg.KrakenAPIKey,
		Secret:     cfg.KrakenAPISecret,
		TOTPSecret: cfg.KrakenTOTPSecret,
		BaseAsset:  cfg.BaseAsset,
		QuoteAsset: cfg.QuoteAsset,
	})
	if err != nil {
		log.Fatalf("[bot] exchange init failed: %v", err)
	}

	if cfg.CancelOnStart {
		if err := kraken.CancelAllOpenOrders(ctx); err != nil {
			log.Printf("[bot] WARNING: startup cancel-all failed: %v", err)
		} else {
			log.Println("[bot] cancelled all open orders at startup")
		}
	}

	// ---- Trade ledger ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := ledger.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[bot] ledger init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)
	log.Println("[bot] trade ledger ready")

	health.StartLivenessChecker(ctx, store.DB(), 10*time.Second)

	// ---- Virtual balance (leverage simulation) ----
	offset, err := balancer.InitVirtualBalance(ctx, kraken, cfg.TradingPair, cfg.Power, cfg.TargetFrac)
	if err != nil {
		log.Fatalf("[bot] virtual balance init failed: %v", err)
	}

	// ---- Alerts ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	notifier := notification.NewMulti(backends...)

	// ---- Optional Redis event publisher ----
	var publisher decision.EventPublisher
	var redisPub *redisstore.Publisher
	if cfg.RedisAddr != "" {
		redisPub, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[bot] WARNING: redis init failed: %v (continuing without publisher)", err)
			health.SetRedisConnected(false)
		} else {
			defer redisPub.Close()
			health.SetRedisConnected(true)
			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				log.Printf("[bot] redis circuit %s -> %s", from, to)
			}
			publisher = redisstore.NewBufferedPublisher(redisPub, cb, 10000)
		}
	}

	// ---- Optional WebSocket ticker feed ----
	if cfg.WSFeedEnabled {
		feed := marketdata.NewFeed(marketdata.FeedConfig{Pairs: []string{cfg.WSPair}})
		tickCh := make(chan marketdata.Tick, 256)
		go feed.Start(ctx, tickCh)
		go func() {
			for tick := range tickCh {
				prom.LastPrice.Set(tick.Price)
				if redisPub != nil {
					if err := redisPub.PublishPrice(ctx, tick.Pair, tick.Price, tick.TS); err != nil {
						log.Printf("[bot] price publish failed: %v", err)
					}
				}
			}
		}()
	}

	// ---- Decision loop ----
	loop := decision.New(
		decision.Config{
			TradingPair:   cfg.TradingPair,
			TrendPair:     cfg.TrendPair,
			Interval:      cfg.CandleInterval,
			HistoryWindow: cfg.HistoryWindow,
		},
		indicator.Config{
			ShortWindow:  cfg.ShortWindow,
			LongWindow:   cfg.LongWindow,
			OscWindow:    cfg.OscWindow,
			OscSmoothing: indicator.Smoothing(cfg.OscSmoothing),
		},
		balancer.Config{
			TargetFrac:    cfg.TargetFrac,
			MinVolume:     cfg.MinVolume,
			FeeRate:       cfg.FeeRate,
			FeeMultiplier: cfg.FeeMultiplier,
		},
		offset,
		decision.Deps{
			Market:   kraken,
			Exchange: kraken,
			Evaluator: evaluator.New(evaluator.Config{
				TrendLength: cfg.TrendLength,
				Oversold:    cfg.Oversold,
				Overbought:  cfg.Overbought,
			}),
			Store:     store,
			Metrics:   prom,
			Notifier:  notifier,
			Publisher: publisher,
		},
	)

	// ---- Reconciliation loop ----
	rec := reconcile.New(
		reconcile.Config{MaxAge: cfg.ReconcileMaxAge},
		kraken,
		store,
		prom,
	)

	// ---- Schedule jobs ----
	sched := scheduler.New(prom)
	sched.Add(scheduler.Job{
		Name:     "decision",
		Interval: cfg.DecisionInterval,
		Timeout:  cfg.DecisionInterval,
		Run: func(ctx context.Context) error {
			err := loop.RunCycle(ctx)
			if err == nil {
				health.SetLastDecisionAt(time.Now().UTC())
			}
			return err
		},
	})
	sched.Add(scheduler.Job{
		Name:     "reconcile",
		Interval: cfg.ReconcileInterval,
		Timeout:  cfg.ReconcileInterval,
		Run:      rec.RunCycle,
	})

	go sched.Run(ctx)
	log.Printf("[bot] running: decision every %s, reconcile every %s", cfg.DecisionInterval, cfg.ReconcileInterval)

	// ---- Wait for shutdown ----
	sig := <-sigCh
	log.Printf("[bot] received %s, shutting down...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[bot] shutdown complete")
}
