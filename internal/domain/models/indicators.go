package models

import "math"

// Neutral values used when an indicator is missing from the market-data response.
const (
	DefaultRSI      = 50.0
	DefaultStoch    = 50.0
	DefaultWilliams = -50.0
	DefaultATR      = 0.001
	DefaultSMA      = 1.0
	DefaultEMA      = 1.0
	DefaultADX      = 20.0
	DefaultMFI      = 50.0
	DefaultStochRSI = 0.5
)

// IndicatorSnapshot is a point-in-time set of technical indicator values.
// Field names are the persisted contract and must not change.
type IndicatorSnapshot struct {
	RSI        float64 `json:"rsi"`
	Stoch      float64 `json:"stoch"`
	Williams   float64 `json:"williams"`
	CCI        float64 `json:"cci"`
	ATR        float64 `json:"atr"`
	SMA        float64 `json:"sma"`
	EMA        float64 `json:"ema"`
	Momentum   float64 `json:"momentum"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macdSignal"`
	MACDHist   float64 `json:"macdHist"`
	BBUpper    float64 `json:"bbUpper"`
	BBLower    float64 `json:"bbLower"`
	BBMiddle   float64 `json:"bbMiddle"`
	ADX        float64 `json:"adx"`
	OBV        float64 `json:"obv"`
	MFI        float64 `json:"mfi"`
	StochRSI   float64 `json:"stochrsi"`
}

// DefaultIndicators returns a snapshot where every field holds its neutral value.
func DefaultIndicators() IndicatorSnapshot {
	return IndicatorSnapshot{
		RSI:      DefaultRSI,
		Stoch:    DefaultStoch,
		Williams: DefaultWilliams,
		ATR:      DefaultATR,
		SMA:      DefaultSMA,
		EMA:      DefaultEMA,
		ADX:      DefaultADX,
		MFI:      DefaultMFI,
		StochRSI: DefaultStochRSI,
	}
}

// Normalize replaces every non-finite field with its neutral value.
func (s IndicatorSnapshot) Normalize() IndicatorSnapshot {
	d := DefaultIndicators()
	s.RSI = finiteOr(s.RSI, d.RSI)
	s.Stoch = finiteOr(s.Stoch, d.Stoch)
	s.Williams = finiteOr(s.Williams, d.Williams)
	s.CCI = finiteOr(s.CCI, d.CCI)
	s.ATR = finiteOr(s.ATR, d.ATR)
	s.SMA = finiteOr(s.SMA, d.SMA)
	s.EMA = finiteOr(s.EMA, d.EMA)
	s.Momentum = finiteOr(s.Momentum, d.Momentum)
	s.MACD = finiteOr(s.MACD, d.MACD)
	s.MACDSignal = finiteOr(s.MACDSignal, d.MACDSignal)
	s.MACDHist = finiteOr(s.MACDHist, d.MACDHist)
	s.BBUpper = finiteOr(s.BBUpper, d.BBUpper)
	s.BBLower = finiteOr(s.BBLower, d.BBLower)
	s.BBMiddle = finiteOr(s.BBMiddle, d.BBMiddle)
	s.ADX = finiteOr(s.ADX, d.ADX)
	s.OBV = finiteOr(s.OBV, d.OBV)
	s.MFI = finiteOr(s.MFI, d.MFI)
	s.StochRSI = finiteOr(s.StochRSI, d.StochRSI)
	return s
}

// OrDefault returns v when it is finite and non-zero, def otherwise.
// Upstream payloads encode missing values as empty strings that parse to zero.
func OrDefault(v, def float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// IsFinite reports whether v is a usable price.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
