package twelvedata

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"

	"FxSignal/internal/domain/models"
	"FxSignal/pkg/logger"
)

// indicator describes one upstream indicator endpoint and how its row maps onto
// the snapshot.
type indicator struct {
	name   string
	period int
	apply  func(row map[string]any, s *models.IndicatorSnapshot)
}

// orDefault sets *dst from the first parseable key, falling back to def for a
// missing or zero value.
func orDefault(dst *float64, def float64, keys ...string) func(map[string]any) {
	return func(row map[string]any) {
		v, _ := field(row, keys...)
		*dst = models.OrDefault(v, def)
	}
}

// keepZero is like orDefault but a parsed zero is kept.
func keepZero(dst *float64, def float64, keys ...string) func(map[string]any) {
	return func(row map[string]any) {
		if v, ok := field(row, keys...); ok {
			*dst = v
			return
		}
		*dst = def
	}
}

var indicators = []indicator{
	{name: "rsi", period: 14, apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.RSI, models.DefaultRSI, "rsi")(r)
	}},
	{name: "stoch", apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.Stoch, models.DefaultStoch, "slow_k")(r)
	}},
	{name: "willr", apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		keepZero(&s.Williams, models.DefaultWilliams, "willr")(r)
	}},
	{name: "cci", apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.CCI, 0, "cci")(r)
	}},
	{name: "atr", apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.ATR, models.DefaultATR, "atr")(r)
	}},
	{name: "sma", period: 14, apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.SMA, models.DefaultSMA, "sma")(r)
	}},
	{name: "ema", period: 14, apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.EMA, models.DefaultEMA, "ema")(r)
	}},
	{name: "mom", period: 10, apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		keepZero(&s.Momentum, 0, "mom")(r)
	}},
	{name: "macd", apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.MACD, 0, "macd")(r)
		orDefault(&s.MACDSignal, 0, "macd_signal", "signal")(r)
		orDefault(&s.MACDHist, 0, "macd_hist", "histogram")(r)
	}},
	{name: "bbands", apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.BBUpper, 0, "upper_band", "upper")(r)
		orDefault(&s.BBLower, 0, "lower_band", "lower")(r)
		orDefault(&s.BBMiddle, 0, "middle_band", "middle")(r)
	}},
	{name: "adx", apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.ADX, models.DefaultADX, "adx")(r)
	}},
	{name: "obv", apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.OBV, 0, "obv")(r)
	}},
	{name: "mfi", apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.MFI, models.DefaultMFI, "mfi")(r)
	}},
	{name: "stochrsi", apply: func(r map[string]any, s *models.IndicatorSnapshot) {
		orDefault(&s.StochRSI, models.DefaultStochRSI, "stochrsi", "k")(r)
	}},
}

type seriesResult struct {
	ind  indicator
	rows []map[string]any
	err  error
}

// fetchAll requests every indicator concurrently. An error payload for one
// indicator leaves its fields at their defaults; transport failures abort.
func (c *Client) fetchAll(ctx context.Context, symbol string, interval models.Timeframe, size int) ([]seriesResult, error) {
	ch := make(chan seriesResult, len(indicators))
	var wg sync.WaitGroup
	for _, ind := range indicators {
		wg.Add(1)
		go func(ind indicator) {
			defer wg.Done()
			params := url.Values{"symbol": {symbol}, "interval": {string(interval)}}
			if ind.period > 0 {
				params.Set("time_period", strconv.Itoa(ind.period))
			}
			if size > 0 {
				params.Set("outputsize", strconv.Itoa(size))
			}
			var body seriesBody
			err := c.get(ctx, ind.name, ind.name, params, true, &body)
			ch <- seriesResult{ind: ind, rows: body.Values, err: err}
		}(ind)
	}
	go func() { wg.Wait(); close(ch) }()

	out := make([]seriesResult, 0, len(indicators))
	var firstErr error
	for r := range ch {
		var apiErr *APIError
		switch {
		case r.err == nil:
		case errors.As(r.err, &apiErr):
			c.log.Warn("indicator unavailable, using defaults",
				logger.String("indicator", r.ind.name),
				logger.String("symbol", symbol),
				logger.Error(r.err),
			)
			r.rows = nil
		default:
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		out = append(out, r)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// Indicators returns the latest value of every indicator with defaults applied.
func (c *Client) Indicators(ctx context.Context, symbol string, interval models.Timeframe) (models.IndicatorSnapshot, error) {
	results, err := c.fetchAll(ctx, symbol, interval, 0)
	if err != nil {
		return models.IndicatorSnapshot{}, err
	}
	snap := models.DefaultIndicators()
	for _, r := range results {
		// newest row first
		if len(r.rows) > 0 {
			r.ind.apply(r.rows[0], &snap)
		}
	}
	return snap.Normalize(), nil
}

// IndicatorSeries returns one snapshot per candle. Rows are matched to candles by
// datetime; candles with no matching row keep the defaults for that indicator.
func (c *Client) IndicatorSeries(ctx context.Context, symbol string, interval models.Timeframe, candles []models.Candle) (models.IndicatorSeries, error) {
	series := make(models.IndicatorSeries, len(candles))
	for i := range series {
		series[i] = models.DefaultIndicators()
	}
	if len(candles) == 0 {
		return series, nil
	}

	results, err := c.fetchAll(ctx, symbol, interval, len(candles))
	if err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(candles))
	for i, cd := range candles {
		index[cd.Timestamp.Unix()] = i
	}
	for _, r := range results {
		for _, row := range r.rows {
			ts, ok := rowTime(row)
			if !ok {
				continue
			}
			if i, ok := index[ts.Unix()]; ok {
				r.ind.apply(row, &series[i])
			}
		}
	}
	for i := range series {
		series[i] = series[i].Normalize()
	}
	return series, nil
}
