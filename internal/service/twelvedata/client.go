// Package twelvedata is the market-data source backed by the Twelve Data REST API.
package twelvedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"FxSignal/internal/domain/models"
	"FxSignal/internal/domain/repository"
	"FxSignal/internal/service/ratelimit"
	"FxSignal/pkg/cache"
	pkghttp "FxSignal/pkg/http"
	"FxSignal/pkg/logger"
	"FxSignal/pkg/metrics"
	"FxSignal/pkg/util"
)

const (
	DefaultBaseURL  = "https://api.twelvedata.com"
	DefaultCacheTTL = 5 * time.Minute
)

// APIError is an error payload returned with a 200 status.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twelvedata error %d: %s", e.Code, e.Message)
}

// Client implements repository.MarketDataSource. Every call takes one key from
// the pool; price lookups always go upstream, everything else is cached.
type Client struct {
	http     *pkghttp.Client
	baseURL  string
	keys     *ratelimit.KeyPool
	cache    cache.Service
	cacheTTL time.Duration
	metrics  repository.Metrics
	log      *logger.Logger
	now      func() time.Time
}

var _ repository.MarketDataSource = (*Client)(nil)

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithCache enables response caching. A zero ttl uses DefaultCacheTTL.
func WithCache(svc cache.Service, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = svc
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

func WithHTTPClient(h *pkghttp.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithMetrics(m repository.Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l.With("twelvedata") }
}

func New(keys *ratelimit.KeyPool, opts ...Option) *Client {
	c := &Client{
		http:     pkghttp.NewClient(pkghttp.WithTimeout(10 * time.Second)),
		baseURL:  DefaultBaseURL,
		keys:     keys,
		cacheTTL: DefaultCacheTTL,
		metrics:  metrics.Nop{},
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Price returns the latest traded price. A missing or malformed price field is
// reported as NaN rather than an error.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	var body map[string]any
	if err := c.get(ctx, "price", "price", url.Values{"symbol": {symbol}}, false, &body); err != nil {
		return 0, err
	}
	p, ok := field(body, "price")
	if !ok {
		return math.NaN(), nil
	}
	return p, nil
}

// Quote returns the daily quote. Unparseable fields are left at zero.
func (c *Client) Quote(ctx context.Context, symbol string) (models.MarketQuote, error) {
	var body map[string]any
	if err := c.get(ctx, "quote", "quote", url.Values{"symbol": {symbol}}, true, &body); err != nil {
		return models.MarketQuote{}, err
	}
	f := func(k string) float64 {
		v, _ := field(body, k)
		return v
	}
	q := models.MarketQuote{
		Price:         f("close"),
		Change:        f("change"),
		PercentChange: f("percent_change"),
		High:          f("high"),
		Low:           f("low"),
		Volume:        f("volume"),
	}
	if v, ok := field(body, "bid"); ok {
		q.Bid = &v
	}
	if v, ok := field(body, "ask"); ok {
		q.Ask = &v
	}
	return q, nil
}

type seriesBody struct {
	Values []map[string]any `json:"values"`
}

// TimeSeries returns up to size candles, oldest first.
func (c *Client) TimeSeries(ctx context.Context, symbol string, interval models.Timeframe, size int) ([]models.Candle, error) {
	params := url.Values{
		"symbol":     {symbol},
		"interval":   {string(interval)},
		"outputsize": {strconv.Itoa(size)},
	}
	var body seriesBody
	if err := c.get(ctx, "time_series", "time_series", params, true, &body); err != nil {
		return nil, err
	}

	out := make([]models.Candle, 0, len(body.Values))
	for _, row := range body.Values {
		ts, ok := rowTime(row)
		if !ok {
			continue
		}
		cl, ok := field(row, "close")
		if !ok {
			continue
		}
		o, _ := field(row, "open")
		h, _ := field(row, "high")
		l, _ := field(row, "low")
		v, _ := field(row, "volume")
		out = append(out, models.Candle{Timestamp: ts, Open: o, High: h, Low: l, Close: cl, Volume: v})
	}
	// upstream sends newest first
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// get performs one upstream call. Cacheable responses are stored only when the
// payload is not an error.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, cacheable bool, dest any) (err error) {
	key := cache.Key("td", path, params.Encode())
	if cacheable && c.cache != nil {
		if raw, cerr := c.cache.Get(ctx, key); cerr == nil {
			if jerr := json.Unmarshal(raw, dest); jerr == nil {
				return nil
			}
		} else if !errors.Is(cerr, cache.ErrCacheMiss) {
			c.log.Warn("cache read failed", logger.String("key", key), logger.Error(cerr))
		}
	}

	apiKey, err := c.keys.Next()
	if err != nil {
		c.metrics.RecordKeysExhausted()
		c.log.Warn("api keys exhausted", logger.String("op", op))
		return fmt.Errorf("%s: %w", op, err)
	}

	start := c.now()
	defer func() {
		c.metrics.RecordFetch(op, c.now().Sub(start).Seconds(), err)
	}()

	q := make(url.Values, len(params)+1)
	for k, v := range params {
		q[k] = v
	}
	q.Set("apikey", apiKey)

	c.log.Debug("fetch",
		logger.String("op", op),
		logger.String("symbol", params.Get("symbol")),
		logger.String("key", util.MaskKey(apiKey, 6)),
	)

	var raw []byte
	err = c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:      pkghttp.MethodGet,
		URL:         c.baseURL + "/" + path,
		QueryParams: q,
	}, &raw)
	if err != nil {
		var se *pkghttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
			return fmt.Errorf("%s: %w", op, ratelimit.ErrUpstreamLimited)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var status struct {
		Status  string `json:"status"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if jerr := json.Unmarshal(raw, &status); jerr != nil {
		return fmt.Errorf("%s: decode: %w", op, jerr)
	}
	if status.Status == "error" {
		if status.Code == http.StatusTooManyRequests {
			return fmt.Errorf("%s: %w", op, ratelimit.ErrUpstreamLimited)
		}
		return fmt.Errorf("%s: %w", op, &APIError{Code: status.Code, Message: status.Message})
	}
	if err = json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}

	if cacheable && c.cache != nil {
		if cerr := c.cache.Set(ctx, key, raw, c.cacheTTL); cerr != nil {
			c.log.Warn("cache write failed", logger.String("key", key), logger.Error(cerr))
		}
	}
	return nil
}

// field reads a numeric value that may be encoded as a string.
func field(row map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := row[k].(type) {
		case string:
			if f, ok := util.ParseFloat(v); ok {
				return f, true
			}
		case float64:
			return v, true
		}
	}
	return 0, false
}

func rowTime(row map[string]any) (time.Time, bool) {
	s, _ := row["datetime"].(string)
	return util.ParseTime(s)
}
