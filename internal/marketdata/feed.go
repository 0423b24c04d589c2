// Package marketdata streams live ticker prices from the Kraken
// WebSocket API. The feed is a supplementary price source: the decision
// loop works from REST candles, while the feed keeps last-price gauges
// and the Redis latest-price key fresh between cycles.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultURL is the public Kraken WebSocket endpoint.
const DefaultURL = "wss://ws.kraken.com"

// Tick is one last-trade price observation for a pair.
type Tick struct {
	Pair  string
	Price float64
	TS    time.Time
}

// FeedConfig holds configuration for the ticker feed.
type FeedConfig struct {
	URL   string   // WebSocket endpoint; DefaultURL if empty
	Pairs []string // WS pair names, e.g. "ETH/EUR"

	// Reconnect backoff. Zero values default to 1s initial / 1m cap.
	ReconnectDelay time.Duration
	MaxReconnect   time.Duration
}

// Feed maintains a subscription to Kraken ticker channels and pushes
// normalized ticks into a channel. Reconnects with exponential backoff.
type Feed struct {
	cfg FeedConfig

	// Optional metrics hook, called on every reconnect attempt.
	OnReconnect func()
}

// NewFeed creates a ticker feed.
func NewFeed(cfg FeedConfig) *Feed {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnect <= 0 {
		cfg.MaxReconnect = time.Minute
	}
	return &Feed{cfg: cfg}
}

// Start connects and streams ticks into tickCh until ctx is cancelled.
// Connection loss triggers a reconnect; Start only returns on ctx done.
func (f *Feed) Start(ctx context.Context, tickCh chan<- Tick) error {
	delay := f.cfg.ReconnectDelay

	for {
		err := f.runConn(ctx, tickCh)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[marketdata] connection lost: %v, reconnecting in %s", err, delay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.cfg.MaxReconnect {
			delay = f.cfg.MaxReconnect
		}
	}
}

// runConn dials, subscribes, and reads frames until the connection drops.
func (f *Feed) runConn(ctx context.Context, tickCh chan<- Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.cfg.URL, err)
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"event":        "subscribe",
		"pair":         f.cfg.Pairs,
		"subscription": map[string]string{"name": "ticker"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("[marketdata] connected to %s, subscribed pairs=%v", f.cfg.URL, f.cfg.Pairs)

	// Unblock ReadMessage when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		tick, ok, err := parseFrame(raw)
		if err != nil {
			log.Printf("[marketdata] parse error: %v", err)
			continue
		}
		if !ok {
			continue // heartbeat or status event
		}

		select {
		case tickCh <- tick:
		default:
			log.Println("[marketdata] tick channel full, dropping tick")
		}
	}
}

// parseFrame decodes one WS frame. Data frames are JSON arrays
// [channelID, payload, "ticker", pair]; everything else is an event
// object (heartbeat, systemStatus, subscriptionStatus).
func parseFrame(raw []byte) (Tick, bool, error) {
	if len(raw) == 0 {
		return Tick{}, false, nil
	}
	if raw[0] != '[' {
		var ev struct {
			Event        string `json:"event"`
			Status       string `json:"status"`
			ErrorMessage string `json:"errorMessage"`
		}
		if err := json.Unmarshal(raw, &ev); err != nil {
			return Tick{}, false, fmt.Errorf("event frame: %w", err)
		}
		if ev.Event == "subscriptionStatus" && ev.Status == "error" {
			return Tick{}, false, fmt.Errorf("subscription rejected: %s", ev.ErrorMessage)
		}
		return Tick{}, false, nil
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Tick{}, false, fmt.Errorf("data frame: %w", err)
	}
	if len(frame) < 4 {
		return Tick{}, false, nil
	}

	var channel string
	if err := json.Unmarshal(frame[2], &channel); err != nil || channel != "ticker" {
		return Tick{}, false, nil
	}

	var pair string
	if err := json.Unmarshal(frame[3], &pair); err != nil {
		return Tick{}, false, fmt.Errorf("pair field: %w", err)
	}

	// Ticker payload: "c" holds [last trade price, lot volume].
	var payload struct {
		C []string `json:"c"`
	}
	if err := json.Unmarshal(frame[1], &payload); err != nil {
		return Tick{}, false, fmt.Errorf("ticker payload: %w", err)
	}
	if len(payload.C) == 0 {
		return Tick{}, false, fmt.Errorf("ticker payload missing close field")
	}

	price, err := strconv.ParseFloat(payload.C[0], 64)
	if err != nil {
		return Tick{}, false, fmt.Errorf("price %q: %w", payload.C[0], err)
	}

	return Tick{Pair: pair, Price: price, TS: time.Now().UTC()}, true, nil
}
