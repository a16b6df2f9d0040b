package repository

import (
	"context"
	"errors"
	"time"

	"FxSignal/internal/domain/models"
)

// MarketDataSource fetches prices, quotes and indicator values for a currency pair.
type MarketDataSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
	Quote(ctx context.Context, symbol string) (models.MarketQuote, error)
	Indicators(ctx context.Context, symbol string, interval models.Timeframe) (models.IndicatorSnapshot, error)
	// TimeSeries returns candles oldest first.
	TimeSeries(ctx context.Context, symbol string, interval models.Timeframe, size int) ([]models.Candle, error)
	// IndicatorSeries returns snapshots aligned with the given candles.
	IndicatorSeries(ctx context.Context, symbol string, interval models.Timeframe, candles []models.Candle) (models.IndicatorSeries, error)
}

// ErrSignalNotFound is returned when no signal has the requested id.
var ErrSignalNotFound = errors.New("signal not found")

// SignalLedger is the durable store of signals.
type SignalLedger interface {
	Create(ctx context.Context, s models.Signal) error
	Update(ctx context.Context, s models.Signal) error
	// List returns raw rows; callers parse them with models.ParseSignalRow.
	List(ctx context.Context) ([]map[string]any, error)
	Delete(ctx context.Context, id string) error
}

type EventPublisher interface {
	PublishSignalEvent(ctx context.Context, ev models.SignalEvent) error
	Close() error
}

// SignalLogStore keeps one analytics row per resolved signal.
type SignalLogStore interface {
	Append(ctx context.Context, e models.SignalLogEntry) error
	Recent(ctx context.Context, n int) ([]models.SignalLogEntry, error)
}

// Locker serializes work across instances. TryLock returns false when another
// holder owns key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordSignalGenerated(pair string, direction models.Direction)
	RecordSignalRejected(reason string)
	RecordResolution(status models.Status)
	RecordFetch(op string, seconds float64, err error)
	RecordMonitorPass(seconds float64, checked int)
	RecordKeysExhausted()
}
