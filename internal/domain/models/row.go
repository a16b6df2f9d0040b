package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"FxSignal/pkg/util"
)

// ErrInvalidRow marks a ledger row that cannot be turned into a Signal.
var ErrInvalidRow = errors.New("invalid signal row")

// SignalColumns is the positional layout of a ledger row.
var SignalColumns = []string{
	"id", "pair", "direction", "entryPrice", "stopLoss", "takeProfit", "timeframe",
	"confidence", "timestamp", "currentPrice", "reasoning", "status", "exitPrice",
	"pnl", "pnlPercent", "checkedAt",
	"rsi", "stoch", "williams", "cci", "atr", "sma", "ema", "momentum", "macd",
	"macdSignal", "macdHist", "bbUpper", "bbLower", "bbMiddle", "adx", "obv", "mfi", "stochrsi",
}

// ParseSignalValues maps a positional row onto SignalColumns and parses it.
func ParseSignalValues(vals []any) (Signal, error) {
	raw := make(map[string]any, len(vals))
	for i, v := range vals {
		if i >= len(SignalColumns) {
			break
		}
		raw[SignalColumns[i]] = v
	}
	return ParseSignalRow(raw)
}

// ParseSignalRow converts a loosely typed ledger row into a Signal. Indicator values
// may be nested under "indicators" or flat on the row; missing ones take their
// neutral default. Rows without id, pair, direction, entry price or a parseable
// timestamp are rejected with ErrInvalidRow.
func ParseSignalRow(raw map[string]any) (Signal, error) {
	if raw == nil {
		return Signal{}, fmt.Errorf("%w: empty row", ErrInvalidRow)
	}
	id := str(raw["id"])
	pair := str(raw["pair"])
	dir := Direction(strings.ToUpper(str(raw["direction"])))
	entry, _ := num(raw["entryPrice"])
	ts, tsOK := parseTime(raw["timestamp"])

	switch {
	case id == "":
		return Signal{}, fmt.Errorf("%w: missing id", ErrInvalidRow)
	case pair == "":
		return Signal{}, fmt.Errorf("%w: missing pair (id=%s)", ErrInvalidRow, id)
	case dir != Buy && dir != Sell:
		return Signal{}, fmt.Errorf("%w: bad direction %q (id=%s)", ErrInvalidRow, dir, id)
	case entry == 0:
		return Signal{}, fmt.Errorf("%w: missing entry price (id=%s)", ErrInvalidRow, id)
	case !tsOK:
		return Signal{}, fmt.Errorf("%w: bad timestamp (id=%s)", ErrInvalidRow, id)
	}

	s := Signal{
		ID:         id,
		Pair:       pair,
		Direction:  dir,
		EntryPrice: entry,
		Timeframe:  Timeframe(str(raw["timeframe"])),
		CreatedAt:  ts,
		Rationale:  str(raw["reasoning"]),
		Status:     Status(strings.ToUpper(str(raw["status"]))),
	}
	s.StopLoss, _ = num(raw["stopLoss"])
	s.TakeProfit, _ = num(raw["takeProfit"])
	s.CurrentPrice, _ = num(raw["currentPrice"])
	if c, ok := num(raw["confidence"]); ok {
		s.Confidence = int(c)
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	if v, ok := num(raw["exitPrice"]); ok {
		s.ExitPrice = &v
	}
	if v, ok := num(raw["pnl"]); ok {
		s.PnL = &v
	}
	if v, ok := num(raw["pnlPercent"]); ok {
		s.PnLPercent = &v
	}
	if t, ok := parseTime(raw["checkedAt"]); ok {
		s.ResolvedAt = &t
	}

	src := raw
	if nested, ok := raw["indicators"].(map[string]any); ok {
		src = nested
	}
	s.Indicators = parseIndicators(src)
	return s, nil
}

func parseIndicators(src map[string]any) IndicatorSnapshot {
	f := func(key string, def float64) float64 {
		v, _ := num(src[key])
		return OrDefault(v, def)
	}
	// williams and momentum keep a genuine zero
	kept := func(key string, def float64) float64 {
		if v, ok := num(src[key]); ok {
			return v
		}
		return def
	}
	return IndicatorSnapshot{
		RSI:        f("rsi", DefaultRSI),
		Stoch:      f("stoch", DefaultStoch),
		Williams:   kept("williams", DefaultWilliams),
		CCI:        f("cci", 0),
		ATR:        f("atr", DefaultATR),
		SMA:        f("sma", DefaultSMA),
		EMA:        f("ema", DefaultEMA),
		Momentum:   kept("momentum", 0),
		MACD:       f("macd", 0),
		MACDSignal: f("macdSignal", 0),
		MACDHist:   f("macdHist", 0),
		BBUpper:    f("bbUpper", 0),
		BBLower:    f("bbLower", 0),
		BBMiddle:   f("bbMiddle", 0),
		ADX:        f("adx", DefaultADX),
		OBV:        f("obv", 0),
		MFI:        f("mfi", DefaultMFI),
		StochRSI:   f("stochrsi", DefaultStochRSI),
	}
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// num parses numbers that may arrive as JSON numbers or strings. Empty strings and
// NaN are reported as missing.
func num(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case float64:
		return unixAny(int64(t)), t > 0
	case int64:
		return unixAny(t), t > 0
	case string:
		return util.ParseTime(strings.TrimSpace(t))
	default:
		return time.Time{}, false
	}
}

// unixAny accepts seconds or milliseconds.
func unixAny(ts int64) time.Time {
	if ts > 1e11 {
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}
