// Package redis publishes decision-cycle events to Redis so that
// dashboards and other consumers can follow the bot without touching
// the trade ledger.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"spot-botv1/internal/decision"
)

const (
	// Stream trimming: roughly a week of 1-minute decision cycles.
	decisionStreamMaxLen = 11000
	latestTTL            = 30 * time.Minute
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes decision events to a Redis stream, keeps a "latest"
// key per pair, and fans out over pubsub.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishDecision writes one cycle outcome: XADD to the decision stream,
// SET the latest-decision key with a TTL, and PUBLISH for live listeners.
// All three go out in a single pipeline.
func (p *Publisher) PublishDecision(ctx context.Context, ev decision.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal decision event: %w", err)
	}
	payload := string(data)

	streamKey := "bot:decisions:" + ev.Pair
	latestKey := "bot:decision:latest:" + ev.Pair
	pubsubCh := "pub:decision:" + ev.Pair

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: decisionStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": payload},
	})
	pipe.Set(ctx, latestKey, payload, latestTTL)
	pipe.Publish(ctx, pubsubCh, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis decision pipeline: %w", err)
	}
	return nil
}

// PublishPrice keeps a short-lived last-price key per pair, refreshed by
// the market data feed.
func (p *Publisher) PublishPrice(ctx context.Context, pair string, price float64, ts time.Time) error {
	payload, err := json.Marshal(map[string]interface{}{
		"pair":  pair,
		"price": price,
		"ts":    ts.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal price: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, "bot:price:latest:"+pair, payload, latestTTL)
	pipe.Publish(ctx, "pub:price:"+pair, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis price pipeline: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (p *Publisher) Close() error { return p.client.Close() }
