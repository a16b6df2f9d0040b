// Package backtest replays a scoring function over historical candles.
package backtest

import (
	"math"

	"FxSignal/internal/domain/models"
	"FxSignal/internal/service/scoring"
)

// ScoreFunc scores candle idx of candles. ok=false skips the candle.
type ScoreFunc func(c models.Candle, idx int, candles []models.Candle) (dir models.Direction, confidence int, ok bool)

// Run enters at each scored candle's close and exits at the next close. Profit is
// measured long-side for every trade, the equity curve is a running sum of trade
// percentages, and the last two candles never open a trade.
func Run(candles []models.Candle, score ScoreFunc) models.BacktestSummary {
	sum := models.BacktestSummary{EquityCurve: []float64{}, Trades: []models.BacktestTrade{}}
	var (
		equity, maxEquity, minEquity float64
		totalProfit                  float64
		wins                         int
		winSum, lossSum              float64
	)

	for i := 0; i < len(candles)-2; i++ {
		dir, conf, ok := score(candles[i], i, candles)
		if !ok {
			continue
		}
		entry, exit := candles[i].Close, candles[i+1].Close
		pct := CalcProfitPct(entry, exit)

		equity += pct
		sum.EquityCurve = append(sum.EquityCurve, equity)
		maxEquity = math.Max(maxEquity, equity)
		minEquity = math.Min(minEquity, equity)
		totalProfit += pct

		outcome := models.StatusLoss
		if pct > 0 {
			wins++
			winSum += pct
			outcome = models.StatusWin
		} else {
			lossSum += pct
		}
		sum.Trades = append(sum.Trades, models.BacktestTrade{
			Index:      i,
			Timestamp:  candles[i].Timestamp,
			Direction:  dir,
			EntryPrice: entry,
			ExitPrice:  exit,
			PnL:        exit - entry,
			PnLPercent: pct,
			Confidence: conf,
			Outcome:    outcome,
		})
	}

	n := len(sum.Trades)
	sum.TotalTrades = n
	if n == 0 {
		return sum
	}
	sum.WinRate = float64(wins) / float64(n) * 100
	sum.AvgProfitPct = totalProfit / float64(n)
	if maxEquity != 0 {
		sum.MaxDrawdownPct = (minEquity - maxEquity) / math.Abs(maxEquity) * 100
	}

	sum.WinTrades = wins
	sum.LossTrades = n - wins
	sum.TotalPnLPct = totalProfit
	if sum.WinTrades > 0 {
		sum.AvgWinPct = winSum / float64(sum.WinTrades)
	}
	if sum.LossTrades > 0 {
		sum.AvgLossPct = math.Abs(lossSum / float64(sum.LossTrades))
	}
	if sum.AvgLossPct != 0 && sum.LossTrades != 0 {
		sum.ProfitFactor = (sum.AvgWinPct * float64(sum.WinTrades)) / (sum.AvgLossPct * float64(sum.LossTrades))
	}
	return sum
}

// CalcProfitPct is the long-side percentage move from entry to exit, 0 when entry is 0.
func CalcProfitPct(entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	return (exit - entry) / entry * 100
}

// ScoringScorer adapts the scoring engine to a ScoreFunc. Each candle is scored with
// its aligned indicator snapshot and a quote built from the candle itself. Weak
// results and results under minConfidence are skipped.
func ScoringScorer(engine *scoring.Engine, pair string, tf models.Timeframe, series models.IndicatorSeries, minConfidence int) ScoreFunc {
	return func(c models.Candle, idx int, _ []models.Candle) (models.Direction, int, bool) {
		q := models.MarketQuote{
			Price:  c.Close,
			Change: c.Close - c.Open,
			High:   c.High,
			Low:    c.Low,
			Volume: c.Volume,
		}
		if c.Open != 0 {
			q.PercentChange = (c.Close - c.Open) / c.Open * 100
		}
		r := engine.Score(q, series.At(idx), pair, tf, nil)
		if scoring.Accept(r, minConfidence) != nil {
			return r.Direction, r.Confidence, false
		}
		return r.Direction, r.Confidence, true
	}
}
