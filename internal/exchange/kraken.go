// Package exchange implements the Kraken REST client used for market data,
// account queries and order entry.
//
// Public endpoints are plain GETs; private endpoints are form POSTs signed
// with HMAC-SHA512 over the URI path and the SHA256 of nonce+postdata.
// When a TOTP secret is configured, a one-time password is attached to
// every private call (API keys with two-factor enabled require it).
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"spot-botv1/internal/model"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
)

const defaultBaseURL = "https://api.kraken.com"

// Config holds the exchange client settings.
type Config struct {
	BaseURL    string // override for tests; defaults to the Kraken API
	Key        string
	Secret     string // base64-encoded private key
	TOTPSecret string // optional second factor for private calls

	BaseAsset  string // balance key of the risk asset, e.g. "XXBT"
	QuoteAsset string // balance key of the cash asset, e.g. "ZUSD"

	Timeout time.Duration
}

// Kraken is the authenticated exchange client. It satisfies both
// model.ExchangeClient and model.MarketDataProvider.
type Kraken struct {
	cfg    Config
	http   *resty.Client
	secret []byte

	nonceMu   sync.Mutex
	lastNonce int64
}

// New creates a Kraken client. The API secret is decoded once up front so
// a malformed key fails fast instead of on the first private call.
func New(cfg Config) (*Kraken, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	var secret []byte
	if cfg.Secret != "" {
		var err error
		secret, err = base64.StdEncoding.DecodeString(cfg.Secret)
		if err != nil {
			return nil, fmt.Errorf("kraken: decode api secret: %w", err)
		}
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "spot-botv1")

	return &Kraken{cfg: cfg, http: client, secret: secret}, nil
}

// response is the Kraken API envelope.
type response struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// FetchCandles requests OHLC history for pair since the given time, one
// candle per interval, ordered chronologically.
func (k *Kraken) FetchCandles(ctx context.Context, pair string, interval time.Duration, since time.Time) ([]model.Candle, error) {
	result, err := k.public(ctx, "OHLC", map[string]string{
		"pair":     pair,
		"interval": strconv.Itoa(int(interval.Minutes())),
		"since":    strconv.FormatInt(since.Unix(), 10),
	})
	if err != nil {
		return nil, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("kraken ohlc: decode result: %w", err)
	}
	raw, ok := payload[pair]
	if !ok {
		return nil, fmt.Errorf("kraken ohlc: pair %s missing from response", pair)
	}

	var rows [][]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("kraken ohlc: decode rows: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		// [time, open, high, low, close, vwap, volume, count]
		if len(row) < 8 {
			return nil, fmt.Errorf("kraken ohlc: short row (%d fields)", len(row))
		}
		candles = append(candles, model.Candle{
			TS:     time.Unix(int64(toFloat(row[0])), 0).UTC(),
			Open:   toFloat(row[1]),
			High:   toFloat(row[2]),
			Low:    toFloat(row[3]),
			Close:  toFloat(row[4]),
			VWAP:   toFloat(row[5]),
			Volume: toFloat(row[6]),
			Count:  int64(toFloat(row[7])),
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].TS.Before(candles[j].TS) })
	return candles, nil
}

// GetPrice returns the last trade close for pair from the Ticker endpoint.
func (k *Kraken) GetPrice(ctx context.Context, pair string) (float64, error) {
	result, err := k.public(ctx, "Ticker", map[string]string{"pair": pair})
	if err != nil {
		return 0, err
	}

	var payload map[string]struct {
		C []string `json:"c"` // [price, lot volume]
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return 0, fmt.Errorf("kraken ticker: decode result: %w", err)
	}
	info, ok := payload[pair]
	if !ok || len(info.C) == 0 {
		return 0, fmt.Errorf("kraken ticker: pair %s missing from response", pair)
	}
	price, err := strconv.ParseFloat(info.C[0], 64)
	if err != nil {
		return 0, fmt.Errorf("kraken ticker: parse price %q: %w", info.C[0], err)
	}
	return price, nil
}

// GetBalance returns the configured base/quote asset holdings.
// Assets absent from the account balance are treated as zero.
func (k *Kraken) GetBalance(ctx context.Context) (model.Balance, error) {
	result, err := k.private(ctx, "Balance", url.Values{})
	if err != nil {
		return model.Balance{}, err
	}

	var payload map[string]string
	if err := json.Unmarshal(result, &payload); err != nil {
		return model.Balance{}, fmt.Errorf("kraken balance: decode result: %w", err)
	}

	balance := model.Balance{}
	if v, ok := payload[k.cfg.BaseAsset]; ok {
		balance.Base, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := payload[k.cfg.QuoteAsset]; ok {
		balance.Quote, _ = strconv.ParseFloat(v, 64)
	}
	return balance, nil
}

// SubmitMarketOrder places an immediate market order and returns the
// exchange-assigned transaction id. A client order id is attached so a
// retried submission can be traced on the exchange side.
func (k *Kraken) SubmitMarketOrder(ctx context.Context, pair string, side model.Action, volume float64) (string, error) {
	params := url.Values{}
	params.Set("pair", pair)
	params.Set("type", string(side))
	params.Set("ordertype", "market")
	params.Set("volume", strconv.FormatFloat(volume, 'f', -1, 64))
	params.Set("trading_agreement", "agree")
	params.Set("cl_ord_id", uuid.New().String())

	result, err := k.private(ctx, "AddOrder", params)
	if err != nil {
		return "", err
	}

	var payload struct {
		TxID []string `json:"txid"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", fmt.Errorf("kraken add order: decode result: %w", err)
	}
	if len(payload.TxID) == 0 {
		return "", fmt.Errorf("kraken add order: no txid in response")
	}
	return payload.TxID[0], nil
}

// QueryOrders batch-queries the authoritative state of the given order
// ids in a single call with a comma-joined id list.
func (k *Kraken) QueryOrders(ctx context.Context, ids []string) (map[string]model.OrderUpdate, error) {
	params := url.Values{}
	params.Set("txid", strings.Join(ids, ","))

	result, err := k.private(ctx, "QueryOrders", params)
	if err != nil {
		return nil, err
	}

	var payload map[string]struct {
		Price   string `json:"price"`
		Status  string `json:"status"`
		VolExec string `json:"vol_exec"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("kraken query orders: decode result: %w", err)
	}

	updates := make(map[string]model.OrderUpdate, len(payload))
	for id, info := range payload {
		price, _ := strconv.ParseFloat(info.Price, 64)
		vol, _ := strconv.ParseFloat(info.VolExec, 64)
		updates[id] = model.OrderUpdate{Price: price, Status: info.Status, VolumeExec: vol}
	}
	return updates, nil
}

// CancelAllOpenOrders cancels every open order on the account.
func (k *Kraken) CancelAllOpenOrders(ctx context.Context) error {
	_, err := k.private(ctx, "CancelAll", url.Values{})
	return err
}

func (k *Kraken) public(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	var env response
	resp, err := k.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&env).
		Get("/0/public/" + method)
	if err != nil {
		return nil, fmt.Errorf("kraken %s: %w", method, err)
	}
	return k.unwrap(method, resp, &env)
}

func (k *Kraken) private(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	params.Set("nonce", strconv.FormatInt(k.nonce(), 10))
	if k.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(k.cfg.TOTPSecret, time.Now())
		if err != nil {
			return nil, fmt.Errorf("kraken %s: generate otp: %w", method, err)
		}
		params.Set("otp", code)
	}

	path := "/0/private/" + method
	body := params.Encode()

	var env response
	resp, err := k.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("API-Key", k.cfg.Key).
		SetHeader("API-Sign", k.sign(path, params.Get("nonce"), body)).
		SetBody(body).
		SetResult(&env).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("kraken %s: %w", method, err)
	}
	return k.unwrap(method, resp, &env)
}

func (k *Kraken) unwrap(method string, resp *resty.Response, env *response) (json.RawMessage, error) {
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("kraken %s: unexpected status %d", method, resp.StatusCode())
	}
	if len(env.Error) > 0 {
		return nil, fmt.Errorf("kraken %s: %s", method, strings.Join(env.Error, "; "))
	}
	return env.Result, nil
}

// sign computes the API-Sign header: HMAC-SHA512 of (path || SHA256(nonce
// || postdata)) keyed with the decoded secret, base64-encoded.
func (k *Kraken) sign(path, nonce, body string) string {
	digest := sha256.Sum256([]byte(nonce + body))
	mac := hmac.New(sha512.New, k.secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// nonce returns a strictly increasing nonce even when private calls land
// in the same nanosecond.
func (k *Kraken) nonce() int64 {
	k.nonceMu.Lock()
	defer k.nonceMu.Unlock()
	n := time.Now().UnixNano()
	if n <= k.lastNonce {
		n = k.lastNonce + 1
	}
	k.lastNonce = n
	return n
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}
