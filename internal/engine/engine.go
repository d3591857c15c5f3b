// Package engine runs the live (or paper) counterpart of the backtest: at
// the decision cutoff each trading day it evaluates the watchlist against
// the signal policy, ranks the entries under the same daily cap, applies
// risk checks, and submits orders through a broker.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ortrader/internal/backtest"
	"ortrader/internal/broker"
	"ortrader/internal/config"
	"ortrader/internal/domain"
	"ortrader/internal/marketdata"
	"ortrader/internal/policy"
	"ortrader/internal/util"
)

// DailyEngine evaluates the watchlist once per session and executes the
// selected entries. Selection semantics match the backtest orchestrator so
// live behavior can be validated against simulated results.
type DailyEngine struct {
	provider marketdata.Provider
	pol      policy.Policy
	broker   broker.Broker
	clock    *util.SessionClock
	risk     *RiskManager
	cfg      config.BacktestConfig
	log      *slog.Logger
}

// NewDailyEngine creates a DailyEngine wired with the given dependencies.
func NewDailyEngine(provider marketdata.Provider, pol policy.Policy, b broker.Broker, clock *util.SessionClock, risk *RiskManager, cfg config.BacktestConfig) *DailyEngine {
	return &DailyEngine{
		provider: provider,
		pol:      pol,
		broker:   b,
		clock:    clock,
		risk:     risk,
		cfg:      cfg,
		log:      slog.Default().With("component", "engine"),
	}
}

// Candidate is one watchlist symbol's evaluation at the cutoff.
type Candidate struct {
	Symbol string
	Intent domain.TradeIntent
	Err    error // evaluation failure; candidate is skipped
}

// EvaluateWatchlist builds a cutoff snapshot for every watchlist symbol on
// the given trade date and runs the policy. Evaluation failures are captured
// per candidate, never propagated.
func (e *DailyEngine) EvaluateWatchlist(ctx context.Context, watchlist []string, tradeDate string) []Candidate {
	decisionTime, err := e.clock.DecisionTime(tradeDate)
	if err != nil {
		out := make([]Candidate, len(watchlist))
		for i, s := range watchlist {
			out[i] = Candidate{Symbol: s, Err: err}
		}
		return out
	}
	open, _, _ := e.clock.Window(tradeDate)
	historyStart := open.AddDate(0, 0, -e.historyDays())

	candidates := make([]Candidate, 0, len(watchlist))
	for _, symbol := range watchlist {
		candidates = append(candidates, e.evaluate(ctx, symbol, tradeDate, historyStart, decisionTime))
	}
	return candidates
}

func (e *DailyEngine) evaluate(ctx context.Context, symbol, tradeDate string, historyStart, decisionTime time.Time) Candidate {
	c := Candidate{Symbol: symbol}

	// Fetch through the decision time only; the provider may already have
	// later bars on a live day and they must not reach the snapshot.
	bars, err := e.provider.GetBars(ctx, symbol, domain.Timeframe15Min, historyStart, decisionTime.Add(-time.Nanosecond))
	if err != nil {
		c.Err = fmt.Errorf("fetching bars: %w", err)
		return c
	}

	var session, prior []domain.Bar
	for _, b := range bars {
		if !e.clock.InSession(b.Timestamp) {
			continue
		}
		if e.clock.TradeDate(b.Timestamp) == tradeDate {
			session = append(session, b)
		} else {
			prior = append(prior, b)
		}
	}
	if len(session) == 0 {
		c.Err = fmt.Errorf("no opening-range bar for %s", tradeDate)
		return c
	}

	snap, err := backtest.BuildSnapshot(symbol, tradeDate, decisionTime, session[0], prior, nil, nil)
	if err != nil {
		c.Err = err
		return c
	}
	intent, err := e.pol.Evaluate(ctx, snap)
	if err != nil {
		c.Err = fmt.Errorf("policy: %w", err)
		return c
	}
	c.Intent = intent
	return c
}

// SelectTop ranks the ENTER candidates with the backtest's tie-break policy
// (priority list, then confidence descending, then symbol) and returns the
// top-K.
func (e *DailyEngine) SelectTop(candidates []Candidate) []Candidate {
	var entries []Candidate
	for _, c := range candidates {
		if c.Err == nil && c.Intent.Action == domain.ActionEnter {
			entries = append(entries, c)
		}
	}

	prio := make(map[string]int, len(e.cfg.Priority))
	for i, s := range e.cfg.Priority {
		prio[s] = i
	}
	rank := func(c Candidate) int {
		if r, ok := prio[c.Symbol]; ok {
			return r
		}
		return len(prio)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := rank(entries[i]), rank(entries[j])
		if ri != rj {
			return ri < rj
		}
		if entries[i].Intent.Confidence != entries[j].Intent.Confidence {
			return entries[i].Intent.Confidence > entries[j].Intent.Confidence
		}
		return entries[i].Symbol < entries[j].Symbol
	})

	k := e.cfg.MaxDailyTrades
	if k < 1 {
		k = 1
	}
	if len(entries) > k {
		entries = entries[:k]
	}
	return entries
}

// RunOnce performs one full daily cycle: evaluate, select, risk-check, and
// submit market buys for the selected symbols. It returns the submitted
// orders; per-symbol failures are logged and skipped.
func (e *DailyEngine) RunOnce(ctx context.Context, watchlist []string, tradeDate string) ([]domain.Order, error) {
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	e.risk.StartDay(account.Equity)

	candidates := e.EvaluateWatchlist(ctx, watchlist, tradeDate)
	for _, c := range candidates {
		if c.Err != nil {
			e.log.Warn("candidate skipped", "symbol", c.Symbol, "err", c.Err)
		}
	}
	selected := e.SelectTop(candidates)
	if len(selected) == 0 {
		e.log.Info("no entries selected", "date", tradeDate, "watchlist", len(watchlist))
		return nil, nil
	}

	// Equal notional allocation across the day's slots.
	slots := e.cfg.MaxDailyTrades
	if slots < 1 {
		slots = 1
	}
	allocation := account.Cash / float64(slots)

	var submitted []domain.Order
	for _, c := range selected {
		if c.Intent.EntryPrice <= 0 {
			e.log.Warn("entry without price", "symbol", c.Symbol)
			continue
		}
		qty := float64(int(allocation / c.Intent.EntryPrice))
		if qty < 1 {
			e.log.Warn("allocation too small", "symbol", c.Symbol, "price", c.Intent.EntryPrice)
			continue
		}

		order := &domain.Order{
			Symbol: c.Symbol,
			Side:   domain.OrderSideBuy,
			Type:   domain.OrderTypeMarket,
			Qty:    qty,
		}
		if err := e.risk.CheckOrder(ctx, order, qty*c.Intent.EntryPrice, account); err != nil {
			e.log.Warn("risk check failed", "symbol", c.Symbol, "err", err)
			continue
		}

		placed, err := e.broker.SubmitOrder(ctx, order)
		if err != nil {
			e.log.Error("order failed", "symbol", c.Symbol, "err", err)
			continue
		}
		e.log.Info("entered",
			"symbol", c.Symbol, "qty", qty,
			"confidence", c.Intent.Confidence,
			"stop", c.Intent.StopLoss, "target", c.Intent.TakeProfit)
		submitted = append(submitted, *placed)

		// Refresh account so later allocations see spent cash.
		if refreshed, err := e.broker.GetAccount(ctx); err == nil {
			account = refreshed
		}
	}
	return submitted, nil
}

// FlattenAll closes every open position with a market sell. The strategy is
// intraday only, so the scheduler calls this just before the session close.
// It returns the first error after attempting all positions.
func (e *DailyEngine) FlattenAll(ctx context.Context) error {
	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetching positions: %w", err)
	}
	var firstErr error
	for _, p := range positions {
		order := &domain.Order{
			Symbol: p.Symbol,
			Side:   domain.OrderSideSell,
			Type:   domain.OrderTypeMarket,
			Qty:    p.Qty,
		}
		if _, err := e.broker.SubmitOrder(ctx, order); err != nil {
			e.log.Error("flatten failed", "symbol", p.Symbol, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.log.Info("flattened", "symbol", p.Symbol, "qty", p.Qty, "unrealized_pct", p.UnrealizedPct)
	}
	return firstErr
}

func (e *DailyEngine) historyDays() int {
	if e.cfg.HistoryDays > 0 {
		return e.cfg.HistoryDays
	}
	return 30
}
