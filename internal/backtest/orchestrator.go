package backtest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ortrader/internal/config"
	"ortrader/internal/domain"
	"ortrader/internal/marketdata"
	"ortrader/internal/util"
)

// Orchestrator drives the SessionSimulator across a multi-day, multi-symbol
// grid: it derives the trading calendar from observed data, evaluates every
// symbol every day, applies the daily selection cap, and assembles the
// run-level record collections.
type Orchestrator struct {
	provider marketdata.Provider
	sim      *SessionSimulator
	clock    *util.SessionClock
	cfg      config.BacktestConfig
	log      *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given provider, session
// simulator, and session clock.
func NewOrchestrator(provider marketdata.Provider, sim *SessionSimulator, clock *util.SessionClock, cfg config.BacktestConfig) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		sim:      sim,
		clock:    clock,
		cfg:      cfg,
		log:      slog.Default().With("component", "orchestrator"),
	}
}

// symbolData is one symbol's fetched and session-filtered history for the
// whole run.
type symbolData struct {
	symbol   string
	rth      []domain.Bar            // session-filtered 15m bars, ascending
	byDate   map[string][]domain.Bar // rth grouped by trade date
	startIdx map[string]int          // index of each date's first bar in rth
	daily    []domain.Bar
	weekly   []domain.Bar
	fetchErr error
}

// evaluation is the per-(symbol, day) outcome of the signal phase, produced
// before the selection cap is applied.
type evaluation struct {
	symbol      string
	snap        *domain.DecisionSnapshot
	sessionBars []domain.Bar
	intent      domain.TradeIntent
	skipReason  string // non-empty means no snapshot was built
}

// Run executes the backtest over [startDate, endDate] (inclusive, both
// YYYY-MM-DD). It returns a finalized run; per-symbol-day failures are
// absorbed into DailyRecords and the skipped counter, never aborting the
// run. Run fails outright only when no symbol yields any data at all.
func (o *Orchestrator) Run(ctx context.Context, symbols []string, startDate, endDate string) (*domain.BacktestRun, error) {
	if len(symbols) == 0 {
		return nil, errors.New("no symbols given")
	}
	startOpen, _, err := o.clock.Window(startDate)
	if err != nil {
		return nil, err
	}
	_, endClose, err := o.clock.Window(endDate)
	if err != nil {
		return nil, err
	}
	if endClose.Before(startOpen) {
		return nil, fmt.Errorf("end date %s before start date %s", endDate, startDate)
	}

	data := o.fetchAll(ctx, symbols, startOpen, endClose)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	calendar := o.calendar(data, startDate, endDate)
	if len(calendar) == 0 {
		return nil, fmt.Errorf("no trading days with data in [%s, %s]", startDate, endDate)
	}
	o.log.Info("calendar derived", "days", len(calendar), "first", calendar[0], "last", calendar[len(calendar)-1])

	run := &domain.BacktestRun{
		ID:        newRunID(),
		StartDate: startDate,
		EndDate:   endDate,
		Symbols:   append([]string(nil), symbols...),
		CreatedAt: time.Now().UTC(),
	}

	for _, day := range calendar {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trades, dailies, skipped := o.runDay(ctx, data, symbols, day)
		run.Trades = append(run.Trades, trades...)
		run.Dailies = append(run.Dailies, dailies...)
		run.SkippedSymbolDays += skipped
	}

	run.Stats = Aggregate(run.Trades)
	o.log.Info("run complete",
		"id", run.ID,
		"trades", run.Stats.TotalTrades,
		"win_rate", fmt.Sprintf("%.2f", run.Stats.WinRate),
		"total_pnl_pct", fmt.Sprintf("%.2f", run.Stats.TotalPnLPct),
		"skipped_symbol_days", run.SkippedSymbolDays)
	return run, nil
}

// fetchAll fetches intraday and context history for every symbol. A fetch
// failure is captured per symbol; the run proceeds without that symbol's
// data.
func (o *Orchestrator) fetchAll(ctx context.Context, symbols []string, startOpen, endClose time.Time) map[string]*symbolData {
	warmup := o.cfg.HistoryDays
	if warmup <= 0 {
		warmup = 30
	}
	fetchStart := startOpen.AddDate(0, 0, -warmup)

	data := make(map[string]*symbolData, len(symbols))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, o.workers(len(symbols)))

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sd := &symbolData{symbol: symbol}
			bars, err := o.provider.GetBars(ctx, symbol, domain.Timeframe15Min, fetchStart, endClose)
			if err != nil {
				o.log.Warn("intraday fetch failed", "symbol", symbol, "err", err)
				sd.fetchErr = err
			} else {
				sd.rth = o.sessionFilter(bars)
				sd.byDate = make(map[string][]domain.Bar)
				sd.startIdx = make(map[string]int)
				for i, b := range sd.rth {
					d := o.clock.TradeDate(b.Timestamp)
					if _, seen := sd.startIdx[d]; !seen {
						sd.startIdx[d] = i
					}
					sd.byDate[d] = append(sd.byDate[d], b)
				}

				// Context fetch failures degrade the snapshot, not the run.
				if daily, err := o.provider.GetBars(ctx, symbol, domain.TimeframeDaily, fetchStart.AddDate(0, 0, -180), endClose); err == nil {
					sd.daily = daily
				} else {
					o.log.Warn("daily context fetch failed", "symbol", symbol, "err", err)
				}
				if weekly, err := o.provider.GetBars(ctx, symbol, domain.TimeframeWeekly, fetchStart.AddDate(-2, 0, 0), endClose); err == nil {
					sd.weekly = weekly
				} else {
					o.log.Warn("weekly context fetch failed", "symbol", symbol, "err", err)
				}
			}

			mu.Lock()
			data[symbol] = sd
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return data
}

// sessionFilter keeps only regular-session bars, preserving order.
func (o *Orchestrator) sessionFilter(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if o.clock.InSession(b.Timestamp) {
			out = append(out, b)
		}
	}
	return out
}

// calendar returns the sorted distinct trade dates observed across all
// symbols within [startDate, endDate]. The calendar is derived from data,
// not hardcoded: a holiday simply never appears.
func (o *Orchestrator) calendar(data map[string]*symbolData, startDate, endDate string) []string {
	seen := make(map[string]struct{})
	for _, sd := range data {
		for d := range sd.byDate {
			if d >= startDate && d <= endDate {
				seen[d] = struct{}{}
			}
		}
	}
	days := make([]string, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// runDay evaluates every symbol for one trading day, applies the selection
// cap, simulates the selected entries, and emits the day's records.
func (o *Orchestrator) runDay(ctx context.Context, data map[string]*symbolData, symbols []string, day string) ([]domain.TradeRecord, []domain.DailyRecord, int) {
	decisionTime, err := o.clock.DecisionTime(day)
	if err != nil {
		o.log.Error("bad calendar day", "day", day, "err", err)
		return nil, nil, len(symbols)
	}

	// Signal phase: every symbol is evaluated, in parallel, before any
	// selection happens. The wait below is the synchronization barrier
	// between evaluation and the top-K cut.
	evals := make([]*evaluation, len(symbols))
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.workers(len(symbols)))
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			evals[i] = o.evaluateSymbol(ctx, data[symbol], symbol, day, decisionTime)
		}(i, symbol)
	}
	wg.Wait()

	// Rank the entries: priority list first, confidence descending, symbol
	// ascending as the final deterministic tie-break.
	var candidates []*evaluation
	for _, ev := range evals {
		if ev.skipReason == "" && ev.intent.Action == domain.ActionEnter {
			candidates = append(candidates, ev)
		}
	}
	prio := make(map[string]int, len(o.cfg.Priority))
	for i, s := range o.cfg.Priority {
		prio[s] = i
	}
	rank := func(ev *evaluation) int {
		if r, ok := prio[ev.symbol]; ok {
			return r
		}
		return len(prio)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := rank(candidates[i]), rank(candidates[j])
		if ri != rj {
			return ri < rj
		}
		if candidates[i].intent.Confidence != candidates[j].intent.Confidence {
			return candidates[i].intent.Confidence > candidates[j].intent.Confidence
		}
		return candidates[i].symbol < candidates[j].symbol
	})

	maxTrades := o.cfg.MaxDailyTrades
	if maxTrades < 1 {
		maxTrades = 1
	}
	selected := make(map[string]bool, maxTrades)
	for i, ev := range candidates {
		if i >= maxTrades {
			break
		}
		selected[ev.symbol] = true
	}

	// Exit-walk phase for the selected symbols, then one DailyRecord per
	// evaluated symbol regardless of outcome.
	var (
		trades  []domain.TradeRecord
		dailies []domain.DailyRecord
		skipped int
	)
	for _, ev := range evals {
		if ev.skipReason != "" {
			skipped++
			dailies = append(dailies, domain.DailyRecord{
				Symbol:    ev.symbol,
				TradeDate: day,
				Action:    domain.DailyNoData,
				Reason:    ev.skipReason,
			})
			continue
		}

		daily := o.newDailyRecord(ev, day)

		switch {
		case ev.intent.Action != domain.ActionEnter:
			daily.Action = domain.DailyWait
			daily.Reason = ev.intent.Rationale

		case !selected[ev.symbol]:
			daily.Action = domain.DailyEnterNotSelected
			daily.Reason = fmt.Sprintf("signaled entry but ranked below daily cap %d", maxTrades)

		default:
			rec, err := o.sim.Simulate(ctx, ev.snap, ev.sessionBars, ev.intent)
			if err != nil {
				o.log.Error("session failed", "symbol", ev.symbol, "day", day, "err", err)
				skipped++
				daily.Action = domain.DailyNoData
				daily.Reason = fmt.Sprintf("session failed: %v", err)
				break
			}
			trades = append(trades, *rec)
			daily.Action = domain.DailyEnter
			daily.Reason = ev.intent.Rationale
			daily.Traded = true
			daily.EntryPrice = rec.EntryPrice
			daily.ExitPrice = rec.ExitPrice
			daily.ExitReason = rec.ExitReason
			daily.PnLPct = rec.PnLPct
		}

		dailies = append(dailies, daily)
	}
	return trades, dailies, skipped
}

// evaluateSymbol builds one symbol's snapshot for the day and asks the
// policy for its intent. All failure modes collapse into a skip reason.
func (o *Orchestrator) evaluateSymbol(ctx context.Context, sd *symbolData, symbol, day string, decisionTime time.Time) *evaluation {
	ev := &evaluation{symbol: symbol}
	if sd == nil || sd.fetchErr != nil {
		ev.skipReason = "data unavailable: fetch failed"
		return ev
	}

	sessionBars := sd.byDate[day]
	if len(sessionBars) < 2 {
		ev.skipReason = fmt.Sprintf("insufficient session data: %d bars", len(sessionBars))
		return ev
	}
	ev.sessionBars = sessionBars

	prior := sd.rth[:sd.startIdx[day]]
	snap, err := BuildSnapshot(symbol, day, decisionTime, sessionBars[0], prior, sd.daily, sd.weekly)
	if err != nil {
		o.log.Error("snapshot rejected", "symbol", symbol, "day", day, "err", err)
		ev.skipReason = fmt.Sprintf("snapshot rejected: %v", err)
		return ev
	}
	ev.snap = snap
	ev.intent = o.sim.Evaluate(ctx, snap)
	return ev
}

// newDailyRecord fills the parts of a DailyRecord that do not depend on the
// decision outcome: opening-range stats and the ex-post maximum favorable
// excursion.
func (o *Orchestrator) newDailyRecord(ev *evaluation, day string) domain.DailyRecord {
	opening := ev.sessionBars[0]
	dayHigh := opening.High
	for _, b := range ev.sessionBars[1:] {
		if b.High > dayHigh {
			dayHigh = b.High
		}
	}
	var maxPotential float64
	if opening.Close > 0 {
		maxPotential = (dayHigh - opening.Close) / opening.Close * 100
	}
	return domain.DailyRecord{
		Symbol:          ev.symbol,
		TradeDate:       day,
		ORHigh:          opening.High,
		ORLow:           opening.Low,
		ORClose:         opening.Close,
		DayHighAfterOR:  dayHigh,
		MaxPotentialPct: maxPotential,
		Confidence:      ev.intent.Confidence,
	}
}

func (o *Orchestrator) workers(n int) int {
	w := o.cfg.MaxWorkers
	if w < 1 {
		w = 1
	}
	if w > n && n > 0 {
		w = n
	}
	return w
}

// newRunID returns a unique, sortable run identifier.
func newRunID() string {
	var suffix [3]byte
	rand.Read(suffix[:])
	return fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102-150405"), hex.EncodeToString(suffix[:]))
}
