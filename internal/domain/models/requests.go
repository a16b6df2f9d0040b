package models

// Requests for signal HTTP endpoints. Defined in domain for consistency and reuse.

type GenerateSignalRequest struct {
	Pair      string `json:"pair" validate:"required,fxpair"`
	Timeframe string `json:"timeframe" default:"1h" validate:"oneof=1min 5min 15min 30min 1h 4h 1day"`
}

type ListSignalsRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=ACTIVE WIN LOSS EXPIRED"`
	Pair   string `query:"pair" validate:"omitempty,fxpair"`
}

type SignalIDRequest struct {
	ID string `param:"id" validate:"required"`
}

type BacktestRequest struct {
	Pair          string `json:"pair" validate:"required,fxpair"`
	Timeframe     string `json:"timeframe" default:"1h" validate:"oneof=1min 5min 15min 30min 1h 4h 1day"`
	Size          int    `json:"size" default:"50" validate:"gte=3,lte=5000"`
	MinConfidence int    `json:"minConfidence" default:"0" validate:"gte=0,lte=100"`
}

type RecentLogRequest struct {
	N int `query:"n" default:"20" validate:"gte=1,lte=500"`
}
