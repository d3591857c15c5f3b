package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"ortrader/internal/broker"
	"ortrader/internal/config"
	"ortrader/internal/domain"
	"ortrader/internal/policy"
	"ortrader/internal/util"
)

func newClock(t *testing.T) *util.SessionClock {
	t.Helper()
	clock, err := util.NewSessionClock("America/New_York", "09:30", "16:00", 15)
	if err != nil {
		t.Fatalf("NewSessionClock: %v", err)
	}
	return clock
}

// fakeProvider serves canned bars per symbol and optional per-symbol errors.
type fakeProvider struct {
	bars map[string][]domain.Bar
	errs map[string]error
}

func (p *fakeProvider) GetBars(_ context.Context, symbol string, _ domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	if err := p.errs[symbol]; err != nil {
		return nil, err
	}
	var out []domain.Bar
	for _, b := range p.bars[symbol] {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// scriptedPolicy returns a fixed intent per symbol; unknown symbols wait.
type scriptedPolicy struct {
	intents map[string]domain.TradeIntent
}

func (p *scriptedPolicy) Name() string { return "scripted" }

func (p *scriptedPolicy) Evaluate(_ context.Context, snap *domain.DecisionSnapshot) (domain.TradeIntent, error) {
	if intent, ok := p.intents[snap.Symbol]; ok {
		return intent, nil
	}
	return domain.TradeIntent{Action: domain.ActionWait, Rationale: "no script"}, nil
}

var _ policy.Policy = (*scriptedPolicy)(nil)

// symbolDay produces a prior trading day of flat bars plus the opening-range
// bar on the trade date, priced at entry.
func symbolDay(t *testing.T, clock *util.SessionClock, symbol, priorDate, tradeDate string, entry float64) []domain.Bar {
	t.Helper()
	var bars []domain.Bar
	priorOpen, _, err := clock.Window(priorDate)
	if err != nil {
		t.Fatalf("Window(%s): %v", priorDate, err)
	}
	for i := 0; i < 26; i++ {
		ts := priorOpen.Add(time.Duration(i) * 15 * time.Minute)
		bars = append(bars, domain.Bar{
			Symbol: symbol, Timestamp: ts,
			Open: entry, High: entry, Low: entry, Close: entry, Volume: 1000,
		})
	}
	open, _, err := clock.Window(tradeDate)
	if err != nil {
		t.Fatalf("Window(%s): %v", tradeDate, err)
	}
	bars = append(bars, domain.Bar{
		Symbol: symbol, Timestamp: open,
		Open: entry, High: entry * 1.01, Low: entry * 0.995, Close: entry, Volume: 5000,
	})
	return bars
}

func enterIntent(entry, confidence float64) domain.TradeIntent {
	return domain.TradeIntent{
		Action:     domain.ActionEnter,
		EntryPrice: entry,
		StopLoss:   entry * 0.98,
		TakeProfit: entry * 1.04,
		Confidence: confidence,
		Rationale:  "scripted entry",
	}
}

func newEngine(provider *fakeProvider, pol policy.Policy, b broker.Broker, clock *util.SessionClock, cfg config.BacktestConfig) *DailyEngine {
	risk := NewRiskManager(0.5, 0.03)
	return NewDailyEngine(provider, pol, b, clock, risk, cfg)
}

func TestRunOnceSubmitsSelectedEntries(t *testing.T) {
	clock := newClock(t)
	const priorDate, tradeDate = "2024-06-12", "2024-06-13"

	provider := &fakeProvider{bars: map[string][]domain.Bar{
		"AAPL": symbolDay(t, clock, "AAPL", priorDate, tradeDate, 100),
		"TSLA": symbolDay(t, clock, "TSLA", priorDate, tradeDate, 200),
		"MSFT": symbolDay(t, clock, "MSFT", priorDate, tradeDate, 400),
	}}
	pol := &scriptedPolicy{intents: map[string]domain.TradeIntent{
		"AAPL": enterIntent(100, 0.9),
		"TSLA": enterIntent(200, 0.7),
		// MSFT waits
	}}
	paper := broker.NewPaperBroker(100000)
	paper.SetMark("AAPL", 100)
	paper.SetMark("TSLA", 200)

	eng := newEngine(provider, pol, paper, clock, config.BacktestConfig{MaxDailyTrades: 2, HistoryDays: 5})

	orders, err := eng.RunOnce(context.Background(), []string{"AAPL", "MSFT", "TSLA"}, tradeDate)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("submitted %d orders, want 2: %+v", len(orders), orders)
	}
	if orders[0].Symbol != "AAPL" || orders[1].Symbol != "TSLA" {
		t.Errorf("order symbols = %s, %s; want AAPL, TSLA", orders[0].Symbol, orders[1].Symbol)
	}
	for _, o := range orders {
		if o.Status != domain.OrderStatusFilled {
			t.Errorf("%s status = %s, want filled", o.Symbol, o.Status)
		}
		if o.Side != domain.OrderSideBuy || o.Type != domain.OrderTypeMarket {
			t.Errorf("%s order = %s %s, want buy market", o.Symbol, o.Side, o.Type)
		}
	}

	positions, err := paper.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 2 {
		t.Errorf("positions = %d, want 2", len(positions))
	}
}

func TestRunOnceSelectionCapAndRanking(t *testing.T) {
	clock := newClock(t)
	const priorDate, tradeDate = "2024-06-12", "2024-06-13"

	provider := &fakeProvider{bars: map[string][]domain.Bar{
		"AAPL": symbolDay(t, clock, "AAPL", priorDate, tradeDate, 100),
		"TSLA": symbolDay(t, clock, "TSLA", priorDate, tradeDate, 200),
	}}
	pol := &scriptedPolicy{intents: map[string]domain.TradeIntent{
		"AAPL": enterIntent(100, 0.9),
		"TSLA": enterIntent(200, 0.7),
	}}
	paper := broker.NewPaperBroker(100000)
	paper.SetMark("AAPL", 100)
	paper.SetMark("TSLA", 200)

	// TSLA is lower confidence but listed in Priority, and the cap is 1.
	eng := newEngine(provider, pol, paper, clock, config.BacktestConfig{
		MaxDailyTrades: 1,
		Priority:       []string{"TSLA"},
		HistoryDays:    5,
	})

	orders, err := eng.RunOnce(context.Background(), []string{"AAPL", "TSLA"}, tradeDate)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(orders) != 1 || orders[0].Symbol != "TSLA" {
		t.Fatalf("orders = %+v, want single TSLA entry", orders)
	}
}

func TestRunOnceSkipsFailedCandidates(t *testing.T) {
	clock := newClock(t)
	const priorDate, tradeDate = "2024-06-12", "2024-06-13"

	provider := &fakeProvider{
		bars: map[string][]domain.Bar{
			"AAPL": symbolDay(t, clock, "AAPL", priorDate, tradeDate, 100),
		},
		errs: map[string]error{
			"NFLX": errors.New("upstream unavailable"),
		},
	}
	pol := &scriptedPolicy{intents: map[string]domain.TradeIntent{
		"AAPL": enterIntent(100, 0.9),
		"NFLX": enterIntent(600, 0.95),
		"GOOG": enterIntent(150, 0.95), // no bars at all
	}}
	paper := broker.NewPaperBroker(100000)
	paper.SetMark("AAPL", 100)

	eng := newEngine(provider, pol, paper, clock, config.BacktestConfig{MaxDailyTrades: 3, HistoryDays: 5})

	orders, err := eng.RunOnce(context.Background(), []string{"AAPL", "NFLX", "GOOG"}, tradeDate)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(orders) != 1 || orders[0].Symbol != "AAPL" {
		t.Fatalf("orders = %+v, want only AAPL", orders)
	}
}

func TestRunOnceRiskLimitBlocksOversizedOrder(t *testing.T) {
	clock := newClock(t)
	const priorDate, tradeDate = "2024-06-12", "2024-06-13"

	provider := &fakeProvider{bars: map[string][]domain.Bar{
		"AAPL": symbolDay(t, clock, "AAPL", priorDate, tradeDate, 100),
	}}
	pol := &scriptedPolicy{intents: map[string]domain.TradeIntent{
		"AAPL": enterIntent(100, 0.9),
	}}
	paper := broker.NewPaperBroker(10000)
	paper.SetMark("AAPL", 100)

	// With one slot the full cash allocation would be 100 shares, but the
	// position cap is 10% of equity.
	risk := NewRiskManager(0.10, 0.03)
	eng := NewDailyEngine(provider, pol, paper, clock, risk, config.BacktestConfig{MaxDailyTrades: 1, HistoryDays: 5})

	orders, err := eng.RunOnce(context.Background(), []string{"AAPL"}, tradeDate)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("orders = %+v, want none past the risk limit", orders)
	}
	if acct, _ := paper.GetAccount(context.Background()); acct.Cash != 10000 {
		t.Errorf("Cash = %v, blocked order moved money", acct.Cash)
	}
}

func TestEvaluateWatchlistNeverSeesLaterBars(t *testing.T) {
	clock := newClock(t)
	const priorDate, tradeDate = "2024-06-12", "2024-06-13"

	bars := symbolDay(t, clock, "AAPL", priorDate, tradeDate, 100)
	// Live providers can already have post-cutoff bars mid-session.
	open, _, _ := clock.Window(tradeDate)
	bars = append(bars, domain.Bar{
		Symbol: "AAPL", Timestamp: open.Add(15 * time.Minute),
		Open: 999, High: 999, Low: 999, Close: 999, Volume: 1,
	})
	provider := &fakeProvider{bars: map[string][]domain.Bar{"AAPL": bars}}

	var seen *domain.DecisionSnapshot
	pol := &capturePolicy{onEvaluate: func(snap *domain.DecisionSnapshot) {
		seen = snap
	}}

	eng := newEngine(provider, pol, broker.NewPaperBroker(1000), clock, config.BacktestConfig{MaxDailyTrades: 1, HistoryDays: 5})
	candidates := eng.EvaluateWatchlist(context.Background(), []string{"AAPL"}, tradeDate)
	if len(candidates) != 1 || candidates[0].Err != nil {
		t.Fatalf("candidates = %+v", candidates)
	}
	if seen == nil {
		t.Fatal("policy never evaluated")
	}
	decisionTime, _ := clock.DecisionTime(tradeDate)
	for _, b := range seen.Intraday {
		if !b.Timestamp.Before(decisionTime) {
			t.Errorf("snapshot leaked bar at %s, decision time %s", b.Timestamp, decisionTime)
		}
	}
	if seen.OpeningBar.Close != 100 {
		t.Errorf("OpeningBar.Close = %v, want 100", seen.OpeningBar.Close)
	}
}

type capturePolicy struct {
	onEvaluate func(*domain.DecisionSnapshot)
}

func (p *capturePolicy) Name() string { return "capture" }

func (p *capturePolicy) Evaluate(_ context.Context, snap *domain.DecisionSnapshot) (domain.TradeIntent, error) {
	p.onEvaluate(snap)
	return domain.TradeIntent{Action: domain.ActionWait, Rationale: "observer"}, nil
}

func TestRiskManagerDailyLossHalt(t *testing.T) {
	rm := NewRiskManager(0.5, 0.03)
	rm.StartDay(10000)

	order := &domain.Order{Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Qty: 1}
	healthy := &domain.AccountInfo{Equity: 9900, Cash: 9900}
	if err := rm.CheckOrder(context.Background(), order, 100, healthy); err != nil {
		t.Fatalf("CheckOrder at 1%% drawdown: %v", err)
	}

	drawnDown := &domain.AccountInfo{Equity: 9600, Cash: 9600}
	err := rm.CheckOrder(context.Background(), order, 100, drawnDown)
	if err == nil {
		t.Fatal("expected halt at 4% daily loss")
	}
	if !strings.Contains(err.Error(), "halted") {
		t.Errorf("err = %v, want trading-halted message", err)
	}

	// Exits pass regardless of drawdown.
	sell := &domain.Order{Symbol: "AAPL", Side: domain.OrderSideSell, Type: domain.OrderTypeMarket, Qty: 1}
	if err := rm.CheckOrder(context.Background(), sell, 100, drawnDown); err != nil {
		t.Errorf("CheckOrder sell: %v", err)
	}
}

func TestRiskManagerPositionAndCashLimits(t *testing.T) {
	rm := NewRiskManager(0.20, 0)
	rm.StartDay(10000)
	account := &domain.AccountInfo{Equity: 10000, Cash: 1500}
	order := &domain.Order{Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Qty: 1}

	cases := []struct {
		name     string
		notional float64
		wantErr  bool
	}{
		{"within limits", 1000, false},
		{"beyond position cap", 2500, true},
		{"beyond cash", 1800, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := rm.CheckOrder(context.Background(), order, tc.notional, account)
			if (err != nil) != tc.wantErr {
				t.Errorf("CheckOrder(%v) err = %v, wantErr %v", tc.notional, err, tc.wantErr)
			}
		})
	}
}

func TestFlattenAllClosesPositions(t *testing.T) {
	clock := newClock(t)
	paper := broker.NewPaperBroker(10000)
	paper.SetMark("AAPL", 100)
	paper.SetMark("TSLA", 200)
	ctx := context.Background()

	for _, o := range []*domain.Order{
		{Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Qty: 10},
		{Symbol: "TSLA", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Qty: 5},
	} {
		if _, err := paper.SubmitOrder(ctx, o); err != nil {
			t.Fatalf("SubmitOrder(%s): %v", o.Symbol, err)
		}
	}

	eng := newEngine(&fakeProvider{}, &scriptedPolicy{}, paper, clock, config.BacktestConfig{MaxDailyTrades: 2})
	if err := eng.FlattenAll(ctx); err != nil {
		t.Fatalf("FlattenAll: %v", err)
	}

	positions, _ := paper.GetPositions(ctx)
	if len(positions) != 0 {
		t.Errorf("positions after flatten = %+v", positions)
	}
	if acct, _ := paper.GetAccount(ctx); acct.Cash != 10000 {
		t.Errorf("Cash = %v, want 10000 after round trip at flat marks", acct.Cash)
	}
}

func TestSelectTopTieBreaksBySymbol(t *testing.T) {
	clock := newClock(t)
	eng := newEngine(&fakeProvider{}, &scriptedPolicy{}, broker.NewPaperBroker(0), clock,
		config.BacktestConfig{MaxDailyTrades: 2})

	equal := func(sym string) Candidate {
		return Candidate{Symbol: sym, Intent: enterIntent(100, 0.8)}
	}
	selected := eng.SelectTop([]Candidate{equal("MSFT"), equal("AAPL"), equal("TSLA")})
	if len(selected) != 2 {
		t.Fatalf("selected %d, want 2", len(selected))
	}
	got := fmt.Sprintf("%s,%s", selected[0].Symbol, selected[1].Symbol)
	if got != "AAPL,MSFT" {
		t.Errorf("selected = %s, want AAPL,MSFT", got)
	}
}
