// Package backtest is the day-level simulation engine: it replays historical
// bars against a signal policy under strict temporal causality, manages
// simulated positions with stop-loss, take-profit, and trailing-stop logic,
// and aggregates trade records into reproducible run statistics.
package backtest

import (
	"fmt"
	"time"

	"ortrader/internal/domain"
)

// InvariantError reports a causality or data-integrity violation inside one
// session: a future bar leaking into a snapshot, a non-positive entry price.
// It is a bug signal, not a runtime condition; the session that raised it is
// failed loudly and excluded from the run rather than silently producing a
// corrupt record.
type InvariantError struct {
	Symbol    string
	TradeDate string
	Err       error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation %s %s: %v", e.Symbol, e.TradeDate, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// BuildSnapshot assembles the decision snapshot for one (symbol, session):
// prior-day intraday history plus exactly the opening-range bar from the
// trade date, with higher-timeframe context truncated to strictly before the
// trade date. The returned snapshot has been validated; any violation comes
// back as an *InvariantError.
//
// priorIntraday must contain only bars from days strictly before tradeDate,
// ascending. daily and weekly may extend past the trade date; they are
// truncated here so callers can pass full fetched series.
func BuildSnapshot(symbol, tradeDate string, decisionTime time.Time, openingBar domain.Bar, priorIntraday, daily, weekly []domain.Bar) (*domain.DecisionSnapshot, error) {
	dayStart, err := time.ParseInLocation("2006-01-02", tradeDate, decisionTime.Location())
	if err != nil {
		return nil, &InvariantError{Symbol: symbol, TradeDate: tradeDate,
			Err: fmt.Errorf("bad trade date: %w", err)}
	}

	intraday := make([]domain.Bar, 0, len(priorIntraday)+1)
	intraday = append(intraday, priorIntraday...)
	intraday = append(intraday, openingBar)

	snap := &domain.DecisionSnapshot{
		Symbol:       symbol,
		TradeDate:    tradeDate,
		DecisionTime: decisionTime,
		OpeningBar:   openingBar,
		Intraday:     intraday,
		Daily:        truncateBefore(daily, dayStart),
		Weekly:       truncateBefore(weekly, dayStart),
		CurrentPrice: openingBar.Close,
	}
	if err := snap.Validate(); err != nil {
		return nil, &InvariantError{Symbol: symbol, TradeDate: tradeDate, Err: err}
	}
	return snap, nil
}

// truncateBefore returns the prefix of bars strictly before cutoff. Bars are
// assumed ascending, so a single scan from the end suffices.
func truncateBefore(bars []domain.Bar, cutoff time.Time) []domain.Bar {
	i := len(bars)
	for i > 0 && !bars[i-1].Timestamp.Before(cutoff) {
		i--
	}
	return bars[:i]
}
