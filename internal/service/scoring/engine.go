// Package scoring turns a market quote and indicator snapshot into a directional
// recommendation with a confidence score.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"FxSignal/internal/domain/models"
)

// Weights are the points each rule adds to the buy or sell side.
type Weights struct {
	RSI       float64 `yaml:"rsi" default:"10"`
	Stoch     float64 `yaml:"stoch" default:"8"`
	Williams  float64 `yaml:"williams" default:"6"`
	CCI       float64 `yaml:"cci" default:"8"`
	Trend     float64 `yaml:"trend" default:"10"`
	PriceSMA  float64 `yaml:"price_sma" default:"6"`
	Momentum  float64 `yaml:"momentum" default:"5"`
	Change    float64 `yaml:"change" default:"4"`
	MACD      float64 `yaml:"macd" default:"8"`
	Bollinger float64 `yaml:"bollinger" default:"6"`
	OBV       float64 `yaml:"obv" default:"4"`
	MFI       float64 `yaml:"mfi" default:"4"`
	StochRSI  float64 `yaml:"stochrsi" default:"4"`
}

func DefaultWeights() Weights {
	return Weights{
		RSI: 10, Stoch: 8, Williams: 6, CCI: 8, Trend: 10, PriceSMA: 6, Momentum: 5,
		Change: 4, MACD: 8, Bollinger: 6, OBV: 4, MFI: 4, StochRSI: 4,
	}
}

// Override returns w with the named weights replaced. Keys use the yaml names.
func (w Weights) Override(m map[string]float64) (Weights, error) {
	if len(m) == 0 {
		return w, nil
	}
	b, err := yaml.Marshal(m)
	if err != nil {
		return w, err
	}
	out := w
	if err := yaml.Unmarshal(b, &out); err != nil {
		return w, fmt.Errorf("weights: %w", err)
	}
	return out, nil
}

const (
	baseConfidence = 50
	// MinStrength is the score gap below which a signal is considered noise.
	MinStrength = 3.0

	lowVolume         = 100_000
	highVolatilityATR = 0.002
	minHistory        = 3
	similarWindow     = 10
)

// Result is the outcome of scoring one snapshot.
type Result struct {
	Direction      models.Direction `json:"direction"`
	Confidence     int              `json:"confidence"`
	Rationale      string           `json:"reasoning"`
	Reasons        []string         `json:"reasons"`
	SignalStrength float64          `json:"signalStrength"`
	BuyScore       float64          `json:"buyScore"`
	SellScore      float64          `json:"sellScore"`
}

// Weak reports whether the buy and sell scores are too close to act on.
func (r Result) Weak() bool { return r.SignalStrength < MinStrength }

type Engine struct {
	weights Weights
}

type Option func(*Engine)

func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

func New(opts ...Option) *Engine {
	e := &Engine{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score evaluates the weighted rules and then adjusts confidence from base 50 using
// volume, rule agreement, volatility, ledger history and indicator extremes. The
// ledger is only read. Direction is BUY only when the buy score strictly exceeds the
// sell score.
func (e *Engine) Score(q models.MarketQuote, ind models.IndicatorSnapshot, pair string, tf models.Timeframe, ledger []models.Signal) Result {
	ind = ind.Normalize()
	w := e.weights
	var (
		buy, sell float64
		reasons   []string
	)
	side := func(buyCond, sellCond bool, weight float64, buyMsg, sellMsg string) {
		switch {
		case buyCond:
			buy += weight
			reasons = append(reasons, buyMsg)
		case sellCond:
			sell += weight
			reasons = append(reasons, sellMsg)
		}
	}

	side(ind.RSI < 30, ind.RSI > 70, w.RSI,
		fmt.Sprintf("RSI oversold (%.1f)", ind.RSI), fmt.Sprintf("RSI overbought (%.1f)", ind.RSI))
	side(ind.Stoch < 20, ind.Stoch > 80, w.Stoch,
		fmt.Sprintf("Stochastic oversold (%.1f)", ind.Stoch), fmt.Sprintf("Stochastic overbought (%.1f)", ind.Stoch))
	side(ind.Williams < -80, ind.Williams > -20, w.Williams,
		fmt.Sprintf("Williams %%R oversold (%.1f)", ind.Williams), fmt.Sprintf("Williams %%R overbought (%.1f)", ind.Williams))
	side(ind.CCI < -100, ind.CCI > 100, w.CCI,
		fmt.Sprintf("CCI oversold (%.1f)", ind.CCI), fmt.Sprintf("CCI overbought (%.1f)", ind.CCI))
	side(ind.EMA > ind.SMA, ind.EMA < ind.SMA, w.Trend, "EMA above SMA", "EMA below SMA")
	side(q.Price > ind.SMA, q.Price < ind.SMA, w.PriceSMA, "price above SMA", "price below SMA")
	side(ind.Momentum > 0, ind.Momentum < 0, w.Momentum, "positive momentum", "negative momentum")
	side(q.PercentChange > 0.3, q.PercentChange < -0.3, w.Change,
		fmt.Sprintf("price up %.2f%%", q.PercentChange), fmt.Sprintf("price down %.2f%%", q.PercentChange))
	// agreement only looks at the oscillator and trend rules above
	agreeBuy, agreeSell := buy, sell
	side(ind.MACD > ind.MACDSignal, ind.MACD < ind.MACDSignal, w.MACD,
		"MACD above signal line", "MACD below signal line")
	side(q.Price < ind.BBLower, q.Price > ind.BBUpper, w.Bollinger,
		"price below lower Bollinger band", "price above upper Bollinger band")
	side(ind.OBV > 0, ind.OBV < 0, w.OBV, "OBV rising", "OBV falling")
	side(ind.MFI < 20, ind.MFI > 80, w.MFI,
		fmt.Sprintf("MFI oversold (%.1f)", ind.MFI), fmt.Sprintf("MFI overbought (%.1f)", ind.MFI))
	side(ind.StochRSI < 0.2, ind.StochRSI > 0.8, w.StochRSI,
		fmt.Sprintf("StochRSI oversold (%.2f)", ind.StochRSI), fmt.Sprintf("StochRSI overbought (%.2f)", ind.StochRSI))

	dir := models.Sell
	if buy > sell {
		dir = models.Buy
	}

	conf := baseConfidence
	if q.Volume > 0 && q.Volume < lowVolume {
		conf -= 7
		reasons = append(reasons, "low volume")
	}
	switch {
	case agreeBuy > 0 && agreeSell > 0:
		conf -= 10
		reasons = append(reasons, "mixed indicators")
	case agreeBuy > 0 || agreeSell > 0:
		conf += 10
		reasons = append(reasons, "indicators agree")
	}
	if ind.ATR > highVolatilityATR {
		conf -= 5
		reasons = append(reasons, "high volatility")
	}

	resolved := resolvedSignals(ledger)
	conf += historyAdjust(filter(resolved, func(s models.Signal) bool { return s.Pair == pair }), 10, "pair", &reasons)
	conf += historyAdjust(filter(resolved, func(s models.Signal) bool { return s.Timeframe == tf }), 6, "timeframe", &reasons)
	running := conf
	similar := filter(resolved, func(s models.Signal) bool {
		return s.Direction == dir && math.Abs(float64(s.Confidence-running)) < similarWindow
	})
	conf += historyAdjust(similar, 10, "similar setups", &reasons)

	if ind.RSI < 20 || ind.RSI > 80 {
		conf += 5
		reasons = append(reasons, "extreme RSI")
	}
	if math.Abs(ind.MACDHist) > 0.5 {
		conf += 3
		reasons = append(reasons, "strong MACD histogram")
	}
	switch {
	case ind.ADX > 25:
		conf += 5
		reasons = append(reasons, fmt.Sprintf("strong trend (ADX %.1f)", ind.ADX))
	case ind.ADX < 15:
		conf -= 5
		reasons = append(reasons, fmt.Sprintf("weak trend (ADX %.1f)", ind.ADX))
	}

	conf = clamp(conf, 0, 100)
	strength := math.Abs(buy - sell)
	if strength < MinStrength {
		conf = 0
		reasons = append(reasons, "signal too weak")
	}

	return Result{
		Direction:      dir,
		Confidence:     conf,
		Rationale:      strings.Join(reasons, ", "),
		Reasons:        reasons,
		SignalStrength: strength,
		BuyScore:       buy,
		SellScore:      sell,
	}
}

// historyAdjust returns ±bonus when at least minHistory samples exist and their win
// rate is above 60 or below 40 percent.
func historyAdjust(samples []models.Signal, bonus int, label string, reasons *[]string) int {
	if len(samples) < minHistory {
		return 0
	}
	wins := 0
	for _, s := range samples {
		if s.Status == models.StatusWin {
			wins++
		}
	}
	rate := float64(wins) / float64(len(samples)) * 100
	switch {
	case rate > 60:
		*reasons = append(*reasons, fmt.Sprintf("%s win rate %.0f%%", label, rate))
		return bonus
	case rate < 40:
		*reasons = append(*reasons, fmt.Sprintf("%s win rate %.0f%%", label, rate))
		return -bonus
	}
	return 0
}

func resolvedSignals(ledger []models.Signal) []models.Signal {
	return filter(ledger, func(s models.Signal) bool { return s.Status.Resolved() })
}

func filter(in []models.Signal, keep func(models.Signal) bool) []models.Signal {
	var out []models.Signal
	for _, s := range in {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
