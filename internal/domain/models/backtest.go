package models

import "time"

// Candle represents one OHLCV bar, oldest first when in a slice.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// BacktestTrade is one simulated entry/exit pair.
type BacktestTrade struct {
	Index      int       `json:"index"`
	Timestamp  time.Time `json:"date"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entryPrice"`
	ExitPrice  float64   `json:"exitPrice"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnlPercent"`
	Confidence int       `json:"confidence"`
	Outcome    Status    `json:"outcome"`
}

// BacktestSummary aggregates a replay run. EquityCurve holds one cumulative
// (non-compounding) percentage per trade in replay order.
type BacktestSummary struct {
	TotalTrades    int       `json:"totalTrades"`
	WinRate        float64   `json:"winRate"`
	AvgProfitPct   float64   `json:"avgProfitPct"`
	MaxDrawdownPct float64   `json:"maxDrawdownPct"`
	EquityCurve    []float64 `json:"equityCurve"`

	WinTrades    int     `json:"winTrades"`
	LossTrades   int     `json:"lossTrades"`
	TotalPnLPct  float64 `json:"totalPnL"`
	AvgWinPct    float64 `json:"avgWin"`
	AvgLossPct   float64 `json:"avgLoss"`
	ProfitFactor float64 `json:"profitFactor"`

	Trades []BacktestTrade `json:"trades,omitempty"`
}

// PerformanceStats is the roll-up view over the signal ledger.
type PerformanceStats struct {
	TotalSignals       int     `json:"totalSignals"`
	ActiveSignals      int     `json:"activeSignals"`
	CompletedSignals   int     `json:"completedSignals"`
	WinRate            float64 `json:"winRate"`
	AvgConfidence      float64 `json:"avgConfidence"`
	ConfidenceAccuracy float64 `json:"confidenceAccuracy"`
	BestPair           string  `json:"bestPair"`
	BestTimeframe      string  `json:"bestTimeframe"`
}

// IndicatorSeries holds one snapshot per candle, index-aligned with the candle slice.
type IndicatorSeries []IndicatorSnapshot

// At returns the snapshot for candle i, or the neutral snapshot when none exists.
func (s IndicatorSeries) At(i int) IndicatorSnapshot {
	if i < 0 || i >= len(s) {
		return DefaultIndicators()
	}
	return s[i]
}
