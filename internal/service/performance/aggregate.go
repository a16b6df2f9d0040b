// Package performance summarizes the signal ledger.
package performance

import (
	"sort"

	"FxSignal/internal/domain/models"
)

// NotAvailable is reported for best pair or timeframe when no group qualifies.
const NotAvailable = "N/A"

// HighConfidence is the threshold for ConfidenceAccuracy.
const HighConfidence = 80

// Aggregate computes ledger statistics. Only WIN and LOSS count as completed; a best
// pair or timeframe needs a win rate above zero, and ties go to the alphabetically
// first key.
func Aggregate(signals []models.Signal) models.PerformanceStats {
	stats := models.PerformanceStats{
		TotalSignals:  len(signals),
		BestPair:      NotAvailable,
		BestTimeframe: NotAvailable,
	}

	var (
		wins, confSum  int
		highN, highWin int
		byPair         = map[string]*tally{}
		byTF           = map[string]*tally{}
	)
	for _, s := range signals {
		if s.Status == models.StatusActive {
			stats.ActiveSignals++
		}
		if !s.Status.Resolved() {
			continue
		}
		stats.CompletedSignals++
		win := s.Status == models.StatusWin
		if win {
			wins++
		}
		confSum += s.Confidence
		if s.Confidence >= HighConfidence {
			highN++
			if win {
				highWin++
			}
		}
		add(byPair, s.Pair, win)
		add(byTF, string(s.Timeframe), win)
	}

	if stats.CompletedSignals == 0 {
		return stats
	}
	stats.WinRate = pct(wins, stats.CompletedSignals)
	stats.AvgConfidence = float64(confSum) / float64(stats.CompletedSignals)
	if highN > 0 {
		stats.ConfidenceAccuracy = pct(highWin, highN)
	}
	stats.BestPair = best(byPair)
	stats.BestTimeframe = best(byTF)
	return stats
}

type tally struct{ total, wins int }

func add(m map[string]*tally, key string, win bool) {
	t, ok := m[key]
	if !ok {
		t = &tally{}
		m[key] = t
	}
	t.total++
	if win {
		t.wins++
	}
}

func best(m map[string]*tally) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	winner, rate := NotAvailable, 0.0
	for _, k := range keys {
		if r := pct(m[k].wins, m[k].total); r > rate {
			winner, rate = k, r
		}
	}
	return winner
}

func pct(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}
