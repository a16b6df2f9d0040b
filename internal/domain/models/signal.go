package models

import "time"

// Direction is the side of a trade recommendation.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Status is the lifecycle state of a signal.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusWin     Status = "WIN"
	StatusLoss    Status = "LOSS"
	StatusExpired Status = "EXPIRED"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusWin || s == StatusLoss || s == StatusExpired
}

// Resolved reports whether s counts as a completed trade for statistics.
func (s Status) Resolved() bool {
	return s == StatusWin || s == StatusLoss
}

// MarketQuote is the market state fed into the scoring engine.
type MarketQuote struct {
	Price         float64  `json:"price"`
	Change        float64  `json:"change"`
	PercentChange float64  `json:"changePercent"`
	High          float64  `json:"high"`
	Low           float64  `json:"low"`
	Volume        float64  `json:"volume"`
	Bid           *float64 `json:"bid,omitempty"`
	Ask           *float64 `json:"ask,omitempty"`
}

// Signal is a directional recommendation with fixed bounds and a lifecycle status.
// JSON names match rows already persisted by the ledger.
type Signal struct {
	ID           string            `json:"id"`
	Pair         string            `json:"pair"`
	Direction    Direction         `json:"direction"`
	EntryPrice   float64           `json:"entryPrice"`
	StopLoss     float64           `json:"stopLoss"`
	TakeProfit   float64           `json:"takeProfit"`
	Timeframe    Timeframe         `json:"timeframe"`
	Confidence   int               `json:"confidence"`
	CreatedAt    time.Time         `json:"timestamp"`
	CurrentPrice float64           `json:"currentPrice"`
	Indicators   IndicatorSnapshot `json:"indicators"`
	Rationale    string            `json:"reasoning"`
	Status       Status            `json:"status"`
	ExitPrice    *float64          `json:"exitPrice,omitempty"`
	PnL          *float64          `json:"pnl,omitempty"`
	PnLPercent   *float64          `json:"pnlPercent,omitempty"`
	ResolvedAt   *time.Time        `json:"checkedAt,omitempty"`
}

// IsActive reports whether the signal is still open.
func (s *Signal) IsActive() bool { return s.Status == StatusActive }

// SignalEvent is published when a signal is created, resolved or deleted.
type SignalEvent struct {
	Type      string    `json:"type"`
	Signal    Signal    `json:"signal"`
	Timestamp time.Time `json:"ts"`
}

const (
	EventSignalCreated  = "signal.created"
	EventSignalResolved = "signal.resolved"
	EventSignalDeleted  = "signal.deleted"
)

// SignalLogEntry is one analytics row per resolved signal.
type SignalLogEntry struct {
	SignalID   string    `json:"signalId"`
	Timestamp  time.Time `json:"timestamp"`
	Pair       string    `json:"pair"`
	Direction  Direction `json:"direction"`
	Entry      float64   `json:"entry"`
	Exit       float64   `json:"exit"`
	ProfitPct  float64   `json:"profitPct"`
	Confidence int       `json:"confidence"`
	Result     Status    `json:"result"`
}

// LogEntryFromSignal builds the analytics row for a resolved signal.
func LogEntryFromSignal(s Signal) SignalLogEntry {
	e := SignalLogEntry{
		SignalID:   s.ID,
		Timestamp:  s.CreatedAt,
		Pair:       s.Pair,
		Direction:  s.Direction,
		Entry:      s.EntryPrice,
		Confidence: s.Confidence,
		Result:     s.Status,
	}
	if s.ExitPrice != nil {
		e.Exit = *s.ExitPrice
	}
	if s.PnLPercent != nil {
		e.ProfitPct = *s.PnLPercent
	}
	return e
}
