package usecase

import (
	"context"
	"fmt"
	"time"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
	"FxSignal/internal/service/backtest"
	"FxSignal/internal/service/scoring"
	"FxSignal/pkg/logger"
)

type BacktestParams struct {
	Pair          string
	Timeframe     models.Timeframe
	Size          int
	MinConfidence int
}

// BacktestRunner replays the scoring engine over historical candles.
type BacktestRunner struct {
	market  domrepo.MarketDataSource
	engine  *scoring.Engine
	log     *logger.Logger
	timeout time.Duration
}

func NewBacktestRunner(market domrepo.MarketDataSource, engine *scoring.Engine, log *logger.Logger, timeout time.Duration) *BacktestRunner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BacktestRunner{market: market, engine: engine, log: log.With("backtest"), timeout: timeout}
}

// Run fetches candles and their indicator series, then replays them. Any fetch
// failure or the run timeout aborts the run with a TransportError.
func (b *BacktestRunner) Run(ctx context.Context, p BacktestParams) (models.BacktestSummary, error) {
	if p.Size < 3 {
		return models.BacktestSummary{}, fmt.Errorf("size must be at least 3, got %d", p.Size)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	candles, err := b.market.TimeSeries(ctx, p.Pair, p.Timeframe, p.Size)
	if err != nil {
		return models.BacktestSummary{}, &TransportError{Op: "time_series", Err: err}
	}
	series, err := b.market.IndicatorSeries(ctx, p.Pair, p.Timeframe, candles)
	if err != nil {
		return models.BacktestSummary{}, &TransportError{Op: "indicator_series", Err: err}
	}

	sum := backtest.Run(candles, backtest.ScoringScorer(b.engine, p.Pair, p.Timeframe, series, p.MinConfidence))
	b.log.Info("backtest finished",
		logger.String("pair", p.Pair),
		logger.String("timeframe", string(p.Timeframe)),
		logger.Int("candles", len(candles)),
		logger.Int("trades", sum.TotalTrades),
		logger.Float64("win_rate", sum.WinRate),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return sum, nil
}
