// Package domain defines the value types shared across the ortrader
// platform: OHLCV bars, decision snapshots, policy intents, trade and daily
// records, and run-level aggregates. All types are plain structs with fixed
// fields so that invariants can be checked at construction time and records
// serialize losslessly.
package domain

import (
	"fmt"
	"sort"
	"time"
)

// ---------------------------------------------------------------------------
// Markets and timeframes
// ---------------------------------------------------------------------------

// Market identifies an exchange universe.
type Market string

const (
	MarketUS Market = "us"
)

// Timeframe identifies a bar aggregation interval.
type Timeframe string

const (
	Timeframe15Min  Timeframe = "15m"
	TimeframeDaily  Timeframe = "1d"
	TimeframeWeekly Timeframe = "1w"
)

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// Bar is a single immutable OHLCV sample. Timestamps are always localized to
// exchange time (America/New_York) at the provider boundary; no naive or UTC
// timestamps flow through the simulation.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// TradeDate returns the calendar date of the bar in its own location,
// formatted as YYYY-MM-DD.
func (b Bar) TradeDate() string {
	return b.Timestamp.Format("2006-01-02")
}

// ---------------------------------------------------------------------------
// Decision snapshot
// ---------------------------------------------------------------------------

// DecisionSnapshot is the point-in-time view handed to a signal policy. It
// contains intraday history strictly prior to the trade date plus exactly one
// same-day bar (the opening-range bar), and optional higher-timeframe context
// truncated the same way. The policy receives only this value, never a handle
// to the full dataset, which is what makes look-ahead structurally impossible.
type DecisionSnapshot struct {
	Symbol       string
	TradeDate    string    // YYYY-MM-DD, exchange local
	DecisionTime time.Time // cutoff; typically session open + 15m
	OpeningBar   Bar       // the sole same-day bar, fully observed
	Intraday     []Bar     // prior-day intraday history, OpeningBar appended last
	Daily        []Bar     // optional, all strictly before TradeDate
	Weekly       []Bar     // optional, all strictly before TradeDate
	CurrentPrice float64   // OpeningBar close; the entry anchor
}

// Validate checks the anti-look-ahead invariant: no bar in the snapshot may
// carry a timestamp at or after the decision time, the intraday series must
// be ascending, and the opening-range bar must be its final element. A
// violation here is a programming or data bug that would silently corrupt
// every downstream statistic, so callers must treat a non-nil error as fatal
// for the session.
func (s *DecisionSnapshot) Validate() error {
	if len(s.Intraday) == 0 {
		return fmt.Errorf("snapshot %s %s: empty intraday series", s.Symbol, s.TradeDate)
	}
	if !sort.SliceIsSorted(s.Intraday, func(i, j int) bool {
		return s.Intraday[i].Timestamp.Before(s.Intraday[j].Timestamp)
	}) {
		return fmt.Errorf("snapshot %s %s: intraday series not ascending", s.Symbol, s.TradeDate)
	}
	last := s.Intraday[len(s.Intraday)-1]
	if !last.Timestamp.Equal(s.OpeningBar.Timestamp) {
		return fmt.Errorf("snapshot %s %s: opening-range bar %s is not the final intraday element (%s)",
			s.Symbol, s.TradeDate, s.OpeningBar.Timestamp, last.Timestamp)
	}
	for _, b := range s.Intraday {
		if !b.Timestamp.Before(s.DecisionTime) {
			return fmt.Errorf("snapshot %s %s: intraday bar %s at or after decision time %s",
				s.Symbol, s.TradeDate, b.Timestamp, s.DecisionTime)
		}
	}
	dayStart, err := time.ParseInLocation("2006-01-02", s.TradeDate, s.DecisionTime.Location())
	if err != nil {
		return fmt.Errorf("snapshot %s: bad trade date %q: %w", s.Symbol, s.TradeDate, err)
	}
	for _, b := range s.Daily {
		if !b.Timestamp.Before(dayStart) {
			return fmt.Errorf("snapshot %s %s: daily context bar %s not strictly before trade date",
				s.Symbol, s.TradeDate, b.Timestamp)
		}
	}
	for _, b := range s.Weekly {
		if !b.Timestamp.Before(dayStart) {
			return fmt.Errorf("snapshot %s %s: weekly context bar %s not strictly before trade date",
				s.Symbol, s.TradeDate, b.Timestamp)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Policy output
// ---------------------------------------------------------------------------

// IntentAction is a signal policy's verdict for a session.
type IntentAction string

const (
	ActionEnter IntentAction = "ENTER"
	ActionWait  IntentAction = "WAIT"
)

// TradeIntent is the output of a signal policy for one decision snapshot.
// Entry, stop, and target are absolute price levels fixed at decision time.
// The stop may later be tightened (never loosened) by the simulator's
// trailing logic.
type TradeIntent struct {
	Action     IntentAction `json:"action"`
	EntryPrice float64      `json:"entry_price"`
	StopLoss   float64      `json:"stop_loss"`
	TakeProfit float64      `json:"take_profit"`
	Confidence float64      `json:"confidence"`
	Rationale  string       `json:"rationale"`
}

// ---------------------------------------------------------------------------
// Trade and daily records
// ---------------------------------------------------------------------------

// ExitReason classifies how a simulated position was closed.
type ExitReason string

const (
	ExitTakeProfit  ExitReason = "TAKE_PROFIT"
	ExitStopLoss    ExitReason = "STOP_LOSS"
	ExitMarketClose ExitReason = "MARKET_CLOSE"
)

// TradeRecord is the immutable result of one completed session trade. It is
// created exactly once per traded session and never mutated afterwards; it is
// the unit the statistics aggregator folds over.
type TradeRecord struct {
	Symbol         string     `json:"symbol"`
	TradeDate      string     `json:"trade_date"` // YYYY-MM-DD
	EntryTime      time.Time  `json:"entry_time"`
	EntryPrice     float64    `json:"entry_price"`
	EntryReason    string     `json:"entry_reason,omitempty"`
	ExitTime       time.Time  `json:"exit_time"`
	ExitPrice      float64    `json:"exit_price"`
	ExitReason     ExitReason `json:"exit_reason"`
	StopLoss       float64    `json:"stop_loss"`
	TakeProfit     float64    `json:"take_profit"`
	PnLPct         float64    `json:"pnl_pct"`
	HoldingMinutes int        `json:"holding_minutes"`
}

// DailyAction is the per-(symbol, day) outcome recorded whether or not a
// trade occurred. EnterNotSelected is distinct from Wait: the policy signaled
// entry but the daily selection cap excluded the symbol.
type DailyAction string

const (
	DailyEnter            DailyAction = "ENTER"
	DailyWait             DailyAction = "WAIT"
	DailyEnterNotSelected DailyAction = "ENTER_NOT_SELECTED"
	DailyNoData           DailyAction = "NO_DATA"
)

// DailyRecord is one row per (symbol, day): the decision outcome, the
// opening-range stats, and the maximum favorable excursion observed after the
// opening range (for ex-post missed-opportunity analysis). Created once by
// the orchestrator, read-only thereafter.
type DailyRecord struct {
	Symbol    string      `json:"symbol"`
	TradeDate string      `json:"trade_date"`
	Action    DailyAction `json:"action"`
	Reason    string      `json:"reason"`

	ORHigh  float64 `json:"or_high"`
	ORLow   float64 `json:"or_low"`
	ORClose float64 `json:"or_close"`

	DayHighAfterOR  float64 `json:"day_high_after_or"`
	MaxPotentialPct float64 `json:"max_potential_pct"`

	Confidence float64 `json:"confidence,omitempty"`

	Traded     bool       `json:"traded"`
	EntryPrice float64    `json:"entry_price,omitempty"`
	ExitPrice  float64    `json:"exit_price,omitempty"`
	ExitReason ExitReason `json:"exit_reason,omitempty"`
	PnLPct     float64    `json:"pnl_pct,omitempty"`
}

// ---------------------------------------------------------------------------
// Run-level aggregates
// ---------------------------------------------------------------------------

// Statistics is the pure aggregate over a trade-record collection. All
// fields are zero-valued for an empty collection; aggregation never divides
// by zero and never depends on insertion order.
type Statistics struct {
	TotalTrades   int `json:"total_trades"`
	WinningTrades int `json:"winning_trades"`
	LosingTrades  int `json:"losing_trades"`

	WinRate     float64 `json:"win_rate"` // 0..1
	TotalPnLPct float64 `json:"total_pnl_pct"`
	AvgPnLPct   float64 `json:"avg_pnl_pct"`
	MaxWinPct   float64 `json:"max_win_pct"`
	MaxLossPct  float64 `json:"max_loss_pct"`

	AvgHoldingMinutes float64 `json:"avg_holding_minutes"`

	TakeProfitCount  int `json:"take_profit_count"`
	StopLossCount    int `json:"stop_loss_count"`
	MarketCloseCount int `json:"market_close_count"`
}

// BacktestRun is the top-level aggregate of one backtest: the requested
// grid, the produced records, and the derived statistics.
type BacktestRun struct {
	ID        string    `json:"id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Symbols   []string  `json:"symbols"`
	CreatedAt time.Time `json:"created_at"`

	Trades  []TradeRecord `json:"trades"`
	Dailies []DailyRecord `json:"dailies"`
	Stats   Statistics    `json:"stats"`

	// SkippedSymbolDays counts (symbol, day) pairs skipped for missing or
	// insufficient data. Reported in run output; does not fail the run.
	SkippedSymbolDays int `json:"skipped_symbol_days"`
}

// ---------------------------------------------------------------------------
// Orders, positions, accounts (live/paper trading)
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Order is a brokerage order as tracked by the live engine.
type Order struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Qty            float64     `json:"qty"`
	LimitPrice     float64     `json:"limit_price,omitempty"`
	Status         OrderStatus `json:"status"`
	FilledQty      float64     `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// PositionSide is the direction of a held position.
type PositionSide string

const (
	PositionSideLong PositionSide = "long"
)

// BrokerPosition is a position held at a brokerage (live/paper trading). It
// is unrelated to the simulator's session-scoped position, which never
// leaves the backtest package.
type BrokerPosition struct {
	Symbol        string       `json:"symbol"`
	Qty           float64      `json:"qty"`
	Side          PositionSide `json:"side"`
	AvgEntryPrice float64      `json:"avg_entry_price"`
	MarketValue   float64      `json:"market_value"`
	UnrealizedPct float64      `json:"unrealized_pct"`
}

// AccountInfo is a snapshot of account-level financials.
type AccountInfo struct {
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buying_power"`
}
