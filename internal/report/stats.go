package report

import (
	"sort"

	"perpRiskBot/internal/domain"
)

// TradeStats summarizes closed trades.
type TradeStats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	AvgWin        float64
	AvgLoss       float64
	TotalPnL      float64
	MaxDrawdown   float64 // largest peak-to-trough drop of cumulative PnL, in quote
	ByReason      []ReasonStats
}

// ReasonStats aggregates closed trades sharing an exit reason.
type ReasonStats struct {
	Reason   domain.ExitReason
	Count    int
	TotalPnL float64
}

// AvgPnL returns the mean PnL per trade.
func (r ReasonStats) AvgPnL() float64 {
	if r.Count == 0 {
		return 0
	}
	return r.TotalPnL / float64(r.Count)
}

// CalculateTradeStats computes statistics over the closed trades, in the
// given order. Open trades are ignored.
func CalculateTradeStats(trades []*domain.Trade) TradeStats {
	var stats TradeStats
	var winningPnL, losingPnL, equity, peak float64
	byReason := make(map[domain.ExitReason]*ReasonStats)

	for _, trade := range trades {
		if trade == nil || trade.IsOpen() {
			continue
		}
		stats.TotalTrades++
		stats.TotalPnL += trade.PNL

		equity += trade.PNL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > stats.MaxDrawdown {
			stats.MaxDrawdown = dd
		}

		if trade.PNL > 0 {
			stats.WinningTrades++
			winningPnL += trade.PNL
		} else {
			stats.LosingTrades++
			losingPnL += trade.PNL
		}

		rs, ok := byReason[trade.ExitReason]
		if !ok {
			rs = &ReasonStats{Reason: trade.ExitReason}
			byReason[trade.ExitReason] = rs
		}
		rs.Count++
		rs.TotalPnL += trade.PNL
	}

	if stats.TotalTrades == 0 {
		return stats
	}
	if stats.WinningTrades > 0 {
		stats.AvgWin = winningPnL / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = losingPnL / float64(stats.LosingTrades)
	}
	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades)

	for _, rs := range byReason {
		stats.ByReason = append(stats.ByReason, *rs)
	}
	sort.Slice(stats.ByReason, func(i, j int) bool {
		return stats.ByReason[i].Reason < stats.ByReason[j].Reason
	})
	return stats
}
