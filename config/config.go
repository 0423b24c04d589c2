// Package config loads all bot configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Kraken credentials
	KrakenAPIKey     string
	KrakenAPISecret  string // base64, as issued by Kraken
	KrakenTOTPSecret string // optional second factor
	KrakenAPIURL     string

	// Market
	TradingPair string // pair orders are placed on, e.g. "XETHZEUR"
	TrendPair   string // pair candle history is sampled from
	WSPair      string // WebSocket pair name, e.g. "ETH/EUR"
	BaseAsset   string // risk asset balance key, e.g. "XETH"
	QuoteAsset  string // cash asset balance key, e.g. "ZEUR"

	// Indicators
	CandleInterval time.Duration // candle sampling interval
	HistoryWindow  int           // candles fetched per decision cycle
	ShortWindow    int           // short EWMA span
	LongWindow     int           // long EWMA span
	TrendLength    int           // trailing run length for the crossover rule
	OscWindow      int           // oscillator lookback
	OscSmoothing   string        // "ewm" or "sma"
	Oversold       float64
	Overbought     float64

	// Allocation
	TargetFrac    float64 // target risk-asset fraction of portfolio value
	MinVolume     float64 // exchange minimum order size, base asset
	FeeRate       float64 // taker fee per transaction
	FeeMultiplier float64 // breakeven margin, multiples of FeeRate
	Power         float64 // virtual-balance leverage multiplier; 1 disables

	// Jobs
	DecisionInterval  time.Duration
	ReconcileInterval time.Duration
	ReconcileMaxAge   time.Duration
	CancelOnStart     bool // cancel all open orders at startup

	// Infrastructure
	SQLitePath    string
	MetricsAddr   string
	RedisAddr     string // empty disables the event publisher
	RedisPassword string
	WSFeedEnabled bool

	// Alerts (all optional)
	WebhookURL     string
	TelegramToken  string
	TelegramChatID string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged first, without overriding real env vars.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env file")
	}

	return &Config{
		KrakenAPIKey:     mustEnv("KRAKEN_API_KEY"),
		KrakenAPISecret:  mustEnv("KRAKEN_API_SECRET"),
		KrakenTOTPSecret: getEnv("KRAKEN_TOTP_SECRET", ""),
		KrakenAPIURL:     getEnv("KRAKEN_API_URL", "https://api.kraken.com"),

		TradingPair: getEnv("TRADING_PAIR", "XETHZEUR"),
		TrendPair:   getEnv("TREND_PAIR", "ETHEUR"),
		WSPair:      getEnv("WS_PAIR", "ETH/EUR"),
		BaseAsset:   getEnv("BASE_ASSET", "XETH"),
		QuoteAsset:  getEnv("QUOTE_ASSET", "ZEUR"),

		CandleInterval: getDuration("CANDLE_INTERVAL", 60*time.Minute),
		HistoryWindow:  getInt("HISTORY_WINDOW", 60),
		ShortWindow:    getInt("SHORT_WINDOW", 10),
		LongWindow:     getInt("LONG_WINDOW", 20),
		TrendLength:    getInt("TREND_LENGTH", 5),
		OscWindow:      getInt("OSC_WINDOW", 14),
		OscSmoothing:   getEnv("OSC_SMOOTHING", "ewm"),
		Oversold:       getFloat("OVERSOLD_LEVEL", 30),
		Overbought:     getFloat("OVERBOUGHT_LEVEL", 70),

		TargetFrac:    getFloat("TARGET_FRACTION", 0.5),
		MinVolume:     getFloat("MIN_VOLUME", 0.002),
		FeeRate:       getFloat("FEE_RATE", 0.0026),
		FeeMultiplier: getFloat("FEE_MULTIPLIER", 4),
		Power:         getFloat("POWER", 1),

		DecisionInterval:  getDuration("DECISION_INTERVAL", time.Minute),
		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 10*time.Minute),
		ReconcileMaxAge:   getDuration("RECONCILE_MAX_AGE", time.Hour),
		CancelOnStart:     getBool("CANCEL_ON_START", false),

		SQLitePath:    getEnv("SQLITE_PATH", "data/trades.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		WSFeedEnabled: getBool("WS_FEED_ENABLED", true),

		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
