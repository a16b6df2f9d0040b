package scoring

import (
	"github.com/shopspring/decimal"

	"FxSignal/internal/domain/models"
)

const (
	DefaultSLMultiplier = 1.5
	DefaultTPMultiplier = 2.5

	pricePlaces = 5
)

// Levels places stop-loss and take-profit at ATR multiples away from price,
// rounded to pip precision. A non-positive ATR uses the neutral default.
func Levels(dir models.Direction, price, atr, slMult, tpMult float64) (stopLoss, takeProfit float64) {
	if atr <= 0 || !models.IsFinite(atr) {
		atr = models.DefaultATR
	}
	p := decimal.NewFromFloat(price)
	a := decimal.NewFromFloat(atr)
	slDist := a.Mul(decimal.NewFromFloat(slMult))
	tpDist := a.Mul(decimal.NewFromFloat(tpMult))

	var sl, tp decimal.Decimal
	if dir == models.Buy {
		sl, tp = p.Sub(slDist), p.Add(tpDist)
	} else {
		sl, tp = p.Add(slDist), p.Sub(tpDist)
	}
	return round(sl), round(tp)
}

// SimSLTP derives long-side levels from percentage distances.
func SimSLTP(entry, slPct, tpPct float64) (slPrice, tpPrice float64) {
	hundred := decimal.NewFromInt(100)
	e := decimal.NewFromFloat(entry)
	one := decimal.NewFromInt(1)
	sl := e.Mul(one.Sub(decimal.NewFromFloat(slPct).Div(hundred)))
	tp := e.Mul(one.Add(decimal.NewFromFloat(tpPct).Div(hundred)))
	return sl.InexactFloat64(), tp.InexactFloat64()
}

func round(d decimal.Decimal) float64 {
	return d.Round(pricePlaces).InexactFloat64()
}
