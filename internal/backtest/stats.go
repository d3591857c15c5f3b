package backtest

import (
	"sort"

	"ortrader/internal/domain"
)

// Aggregate folds a trade-record collection into run statistics. It is pure
// and order-independent: the input is copied and sorted by (date, symbol,
// entry time) before summation, so permuting the input cannot perturb
// floating-point results. An empty collection yields the zero Statistics
// value.
func Aggregate(trades []domain.TradeRecord) domain.Statistics {
	var stats domain.Statistics
	if len(trades) == 0 {
		return stats
	}

	sorted := make([]domain.TradeRecord, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TradeDate != b.TradeDate {
			return a.TradeDate < b.TradeDate
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.EntryTime.Before(b.EntryTime)
	})

	var totalHolding float64
	for i, t := range sorted {
		stats.TotalTrades++
		if t.PnLPct > 0 {
			stats.WinningTrades++
		} else {
			// Zero PnL counts as a loss.
			stats.LosingTrades++
		}

		stats.TotalPnLPct += t.PnLPct
		totalHolding += float64(t.HoldingMinutes)

		if i == 0 || t.PnLPct > stats.MaxWinPct {
			stats.MaxWinPct = t.PnLPct
		}
		if i == 0 || t.PnLPct < stats.MaxLossPct {
			stats.MaxLossPct = t.PnLPct
		}

		switch t.ExitReason {
		case domain.ExitTakeProfit:
			stats.TakeProfitCount++
		case domain.ExitStopLoss:
			stats.StopLossCount++
		case domain.ExitMarketClose:
			stats.MarketCloseCount++
		}
	}

	n := float64(stats.TotalTrades)
	stats.WinRate = float64(stats.WinningTrades) / n
	stats.AvgPnLPct = stats.TotalPnLPct / n
	stats.AvgHoldingMinutes = totalHolding / n
	return stats
}
