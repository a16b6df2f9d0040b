// Package lifecycle decides when an open signal resolves.
package lifecycle

import (
	"time"

	"FxSignal/internal/domain/models"
)

// Decision is the outcome of evaluating one signal against a price.
type Decision struct {
	Status     models.Status
	ExitPrice  float64
	PnL        float64
	PnLPercent float64
	Resolved   bool
}

// Evaluate applies stop-loss, take-profit and holding-window rules. Inside the window
// the stop is checked before the target; once the window has elapsed the target is
// checked first and the trade otherwise closes at price by the sign of its pnl.
// A non-finite price keeps the signal open inside the window and expires it after.
func Evaluate(s models.Signal, price float64, now time.Time) Decision {
	if !s.IsActive() {
		return Decision{Status: s.Status}
	}
	if now.Sub(s.CreatedAt) >= s.Timeframe.HoldingWindow() {
		return forceResolve(s, price)
	}
	if !models.IsFinite(price) {
		return Decision{Status: models.StatusActive}
	}

	if s.Direction == models.Buy {
		switch {
		case price <= s.StopLoss:
			return resolve(s, models.StatusLoss, s.StopLoss)
		case price >= s.TakeProfit:
			return resolve(s, models.StatusWin, s.TakeProfit)
		}
	} else {
		switch {
		case price >= s.StopLoss:
			return resolve(s, models.StatusLoss, s.StopLoss)
		case price <= s.TakeProfit:
			return resolve(s, models.StatusWin, s.TakeProfit)
		}
	}
	return Decision{Status: models.StatusActive}
}

// Seal closes an active signal at price regardless of elapsed time.
func Seal(s models.Signal, price float64) Decision {
	if !s.IsActive() {
		return Decision{Status: s.Status}
	}
	return forceResolve(s, price)
}

func forceResolve(s models.Signal, price float64) Decision {
	if !models.IsFinite(price) {
		return Decision{Status: models.StatusExpired, ExitPrice: s.EntryPrice, Resolved: true}
	}
	if s.Direction == models.Buy {
		switch {
		case price >= s.TakeProfit:
			return resolve(s, models.StatusWin, s.TakeProfit)
		case price <= s.StopLoss:
			return resolve(s, models.StatusLoss, s.StopLoss)
		}
	} else {
		switch {
		case price <= s.TakeProfit:
			return resolve(s, models.StatusWin, s.TakeProfit)
		case price >= s.StopLoss:
			return resolve(s, models.StatusLoss, s.StopLoss)
		}
	}
	d := resolve(s, models.StatusWin, price)
	if d.PnL < 0 {
		d.Status = models.StatusLoss
	}
	return d
}

func resolve(s models.Signal, status models.Status, exit float64) Decision {
	pnl := PnL(s.Direction, s.EntryPrice, exit)
	return Decision{
		Status:     status,
		ExitPrice:  exit,
		PnL:        pnl,
		PnLPercent: PnLPercent(pnl, s.EntryPrice),
		Resolved:   true,
	}
}

// PnL is the signed price difference in the trade's favour.
func PnL(dir models.Direction, entry, exit float64) float64 {
	if dir == models.Buy {
		return exit - entry
	}
	return entry - exit
}

func PnLPercent(pnl, entry float64) float64 {
	if entry == 0 {
		return 0
	}
	return pnl / entry * 100
}

// Apply returns a copy of s carrying the decision's outcome. Unresolved decisions
// return s unchanged.
func Apply(s models.Signal, d Decision, now time.Time) models.Signal {
	if !d.Resolved || !s.IsActive() {
		return s
	}
	exit, pnl, pct, at := d.ExitPrice, d.PnL, d.PnLPercent, now
	s.Status = d.Status
	s.ExitPrice = &exit
	s.PnL = &pnl
	s.PnLPercent = &pct
	s.ResolvedAt = &at
	s.CurrentPrice = exit
	return s
}

// Remaining is the whole number of minutes left in the holding window, never negative.
func Remaining(s models.Signal, now time.Time) int {
	left := s.Timeframe.HoldingWindow() - now.Sub(s.CreatedAt)
	if left <= 0 {
		return 0
	}
	return int(left / time.Minute)
}

// LivePnL is the unrealised pnl of an open signal at price.
func LivePnL(s models.Signal, price float64) float64 {
	return PnL(s.Direction, s.EntryPrice, price)
}
