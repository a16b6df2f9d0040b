package models

import "time"

// Timeframe is the candle interval a signal was generated on.
type Timeframe string

const (
	TF1Min  Timeframe = "1min"
	TF5Min  Timeframe = "5min"
	TF15Min Timeframe = "15min"
	TF30Min Timeframe = "30min"
	TF1H    Timeframe = "1h"
	TF4H    Timeframe = "4h"
	TF1Day  Timeframe = "1day"
)

// Timeframes lists every supported timeframe, shortest first.
var Timeframes = []Timeframe{TF1Min, TF5Min, TF15Min, TF30Min, TF1H, TF4H, TF1Day}

// IsValid returns true if tf is a supported timeframe.
func (tf Timeframe) IsValid() bool {
	switch tf {
	case TF1Min, TF5Min, TF15Min, TF30Min, TF1H, TF4H, TF1Day:
		return true
	default:
		return false
	}
}

// HoldingWindow is how long a signal on tf stays open before it is force-resolved.
// Unknown timeframes hold for an hour.
func (tf Timeframe) HoldingWindow() time.Duration {
	switch tf {
	case TF1Min:
		return time.Minute
	case TF5Min:
		return 5 * time.Minute
	case TF15Min:
		return 15 * time.Minute
	case TF30Min:
		return 30 * time.Minute
	case TF1H:
		return 60 * time.Minute
	case TF4H:
		return 240 * time.Minute
	case TF1Day:
		return 1440 * time.Minute
	default:
		return 60 * time.Minute
	}
}
