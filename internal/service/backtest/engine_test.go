package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FxSignal/internal/domain/models"
	"FxSignal/internal/service/scoring"
)

func closes(vals ...float64) []models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(vals))
	for i, v := range vals {
		out[i] = models.Candle{Timestamp: base.Add(time.Duration(i) * time.Hour), Open: v, High: v, Low: v, Close: v}
	}
	return out
}

func always(dir models.Direction) ScoreFunc {
	return func(models.Candle, int, []models.Candle) (models.Direction, int, bool) { return dir, 70, true }
}

func TestRunEmpty(t *testing.T) {
	for _, c := range [][]models.Candle{nil, closes(1), closes(1, 2)} {
		s := Run(c, always(models.Buy))
		assert.Zero(t, s.TotalTrades)
		assert.Zero(t, s.WinRate)
		assert.Zero(t, s.AvgProfitPct)
		assert.Zero(t, s.MaxDrawdownPct)
		assert.Empty(t, s.EquityCurve)
	}
}

func TestRunSingleTrade(t *testing.T) {
	s := Run(closes(100, 110, 120), always(models.Buy))

	require.Equal(t, 1, s.TotalTrades)
	assert.InDelta(t, 10.0, s.AvgProfitPct, 1e-9)
	assert.Equal(t, 100.0, s.WinRate)
	require.Len(t, s.EquityCurve, 1)
	assert.InDelta(t, 10.0, s.EquityCurve[0], 1e-9)
	assert.Zero(t, s.MaxDrawdownPct)
	assert.Equal(t, models.StatusWin, s.Trades[0].Outcome)
}

func TestRunSellIsStillLongSide(t *testing.T) {
	s := Run(closes(100, 110, 120), always(models.Sell))
	assert.InDelta(t, 10.0, s.AvgProfitPct, 1e-9)
	assert.Equal(t, models.Sell, s.Trades[0].Direction)
}

func TestRunEquityAndDrawdown(t *testing.T) {
	// trades: +10%, -10%, +0% (flat counts as a loss)
	s := Run(closes(100, 110, 99, 99, 50), always(models.Buy))

	require.Equal(t, 3, s.TotalTrades)
	assert.InDeltaSlice(t, []float64{10, 0, 0}, s.EquityCurve, 1e-9)
	assert.InDelta(t, 100.0/3, s.WinRate, 1e-9)
	assert.InDelta(t, -100.0, s.MaxDrawdownPct, 1e-9)
	assert.Equal(t, 1, s.WinTrades)
	assert.Equal(t, 2, s.LossTrades)
	assert.InDelta(t, 10.0, s.AvgWinPct, 1e-9)
	assert.InDelta(t, 5.0, s.AvgLossPct, 1e-9)
	assert.InDelta(t, 1.0, s.ProfitFactor, 1e-9)
}

func TestRunProfitFactorGuard(t *testing.T) {
	s := Run(closes(100, 110, 121, 130), always(models.Buy))
	assert.Equal(t, 0, s.LossTrades)
	assert.Zero(t, s.ProfitFactor)
}

func TestRunSkipsUnscored(t *testing.T) {
	skipOdd := func(_ models.Candle, i int, _ []models.Candle) (models.Direction, int, bool) {
		return models.Buy, 50, i%2 == 0
	}
	s := Run(closes(100, 101, 102, 103, 104, 105), skipOdd)
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 0, s.Trades[0].Index)
	assert.Equal(t, 2, s.Trades[1].Index)
}

func TestRunDrawdownNeverPositiveWithoutGains(t *testing.T) {
	s := Run(closes(100, 90, 80, 70), always(models.Buy))
	assert.Zero(t, s.MaxDrawdownPct)
	assert.Equal(t, 0.0, s.WinRate)
}

func TestCalcProfitPct(t *testing.T) {
	assert.Zero(t, CalcProfitPct(0, 10))
	assert.InDelta(t, -50.0, CalcProfitPct(10, 5), 1e-9)
}

func TestScoringScorer(t *testing.T) {
	candles := closes(1.1, 1.1, 1.1, 1.1)
	bull := models.DefaultIndicators()
	bull.RSI = 25
	bull.Stoch = 10
	bull.EMA = 1.1
	bull.SMA = 0.9
	series := models.IndicatorSeries{bull}

	score := ScoringScorer(scoring.New(), "EUR/USD", models.TF1H, series, 30)

	dir, conf, ok := score(candles[0], 0, candles)
	assert.True(t, ok)
	assert.Equal(t, models.Buy, dir)
	assert.Equal(t, 60, conf)

	_, _, ok = score(candles[1], 1, candles)
	assert.False(t, ok, "missing snapshot scores neutral and is skipped")
}
