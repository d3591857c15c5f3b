package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"ortrader/internal/config"
	"ortrader/internal/domain"
	"ortrader/internal/policy"
	"ortrader/internal/util"
)

// Position is the ephemeral state of one simulated session trade. It lives
// only inside a single Simulate call and is converted into a TradeRecord on
// exit.
type Position struct {
	Symbol         string
	EntryTime      time.Time
	EntryPrice     float64
	StopLoss       float64
	TakeProfit     float64
	TrailingActive bool
}

// SessionSimulator simulates one (symbol, day) session: it asks the policy
// for a decision at the cutoff and, on ENTER, walks the remaining session
// bars applying the exit state machine.
type SessionSimulator struct {
	clock       *util.SessionClock
	policy      policy.Policy
	stopsFor    func(symbol string) config.StopConfig
	slippagePct float64
	log         *slog.Logger
}

// NewSessionSimulator creates a SessionSimulator. stopsFor resolves the
// per-symbol stop parameters used when the policy's own levels are absent or
// inconsistent; slippagePct is deducted from every trade's PnL percent.
func NewSessionSimulator(clock *util.SessionClock, pol policy.Policy, stopsFor func(string) config.StopConfig, slippagePct float64) *SessionSimulator {
	return &SessionSimulator{
		clock:       clock,
		policy:      pol,
		stopsFor:    stopsFor,
		slippagePct: slippagePct,
		log:         slog.Default().With("component", "session"),
	}
}

// SessionBars filters bars to the regular trading session of tradeDate,
// preserving order. Bars from other dates or outside session hours are
// dropped.
func (s *SessionSimulator) SessionBars(bars []domain.Bar, tradeDate string) []domain.Bar {
	var out []domain.Bar
	for _, b := range bars {
		if s.clock.TradeDate(b.Timestamp) != tradeDate {
			continue
		}
		if !s.clock.InSession(b.Timestamp) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Evaluate invokes the policy on a snapshot with panic and error recovery:
// any failure degrades to a WAIT intent carrying the error as rationale, so
// one misbehaving policy call can never abort a run.
func (s *SessionSimulator) Evaluate(ctx context.Context, snap *domain.DecisionSnapshot) (intent domain.TradeIntent) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("policy panicked", "symbol", snap.Symbol, "date", snap.TradeDate, "panic", r)
			intent = domain.TradeIntent{
				Action:    domain.ActionWait,
				Rationale: fmt.Sprintf("policy panic: %v", r),
			}
		}
	}()

	intent, err := s.policy.Evaluate(ctx, snap)
	if err != nil {
		s.log.Warn("policy error", "symbol", snap.Symbol, "date", snap.TradeDate, "err", err)
		return domain.TradeIntent{
			Action:    domain.ActionWait,
			Rationale: fmt.Sprintf("policy error: %v", err),
		}
	}
	return intent
}

// Simulate opens a position from an ENTER intent and walks the session bars
// until an exit fires or the session ends. sessionBars must be the full
// regular-session series for the trade date, opening-range bar first, at
// least two bars long. The returned record is final; it is never mutated
// afterwards.
//
// The policy's stop and target levels are authoritative when they bracket
// the entry price; otherwise the configured percent parameters rebuild them
// from the entry anchor. The entry price itself is always the observed
// opening-range close, never the policy's requested level.
func (s *SessionSimulator) Simulate(ctx context.Context, snap *domain.DecisionSnapshot, sessionBars []domain.Bar, intent domain.TradeIntent) (*domain.TradeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(sessionBars) < 2 {
		return nil, &InvariantError{Symbol: snap.Symbol, TradeDate: snap.TradeDate,
			Err: fmt.Errorf("simulate called with %d session bars, need >= 2", len(sessionBars))}
	}
	if intent.Action != domain.ActionEnter {
		return nil, &InvariantError{Symbol: snap.Symbol, TradeDate: snap.TradeDate,
			Err: fmt.Errorf("simulate called with %s intent", intent.Action)}
	}

	opening := sessionBars[0]
	entryPrice := opening.Close
	if entryPrice <= 0 || math.IsNaN(entryPrice) {
		return nil, &InvariantError{Symbol: snap.Symbol, TradeDate: snap.TradeDate,
			Err: fmt.Errorf("non-positive entry price %v", entryPrice)}
	}

	stops := s.stopsFor(snap.Symbol)
	stopLoss, takeProfit := resolveLevels(entryPrice, intent, stops)

	pos := Position{
		Symbol:     snap.Symbol,
		EntryTime:  snap.DecisionTime,
		EntryPrice: entryPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}

	var (
		exitPrice  float64
		exitReason domain.ExitReason
		exitTime   = sessionBars[len(sessionBars)-1].Timestamp
	)

walk:
	for _, bar := range sessionBars[1:] {
		pnlPct := (bar.Close - pos.EntryPrice) / pos.EntryPrice * 100

		// Trailing ratchet first: the stop may rise on this very bar's
		// close, never fall.
		if !pos.TrailingActive && pnlPct >= stops.TrailingActivationPct && stops.TrailingActivationPct > 0 {
			pos.TrailingActive = true
		}
		if pos.TrailingActive {
			if candidate := bar.Close * (1 - stops.TrailingDistancePct/100); candidate > pos.StopLoss {
				pos.StopLoss = candidate
			}
		}

		// Take-profit wins over stop-loss when a single bar spans both.
		switch {
		case bar.High >= pos.TakeProfit:
			exitPrice = pos.TakeProfit
			exitReason = domain.ExitTakeProfit
			exitTime = bar.Timestamp
			break walk
		case bar.Low <= pos.StopLoss:
			exitPrice = pos.StopLoss
			exitReason = domain.ExitStopLoss
			exitTime = bar.Timestamp
			break walk
		}
	}

	if exitReason == "" {
		last := sessionBars[len(sessionBars)-1]
		exitPrice = last.Close
		exitReason = domain.ExitMarketClose
		exitTime = last.Timestamp
	}

	pnlPct := (exitPrice-pos.EntryPrice)/pos.EntryPrice*100 - s.slippagePct
	holding := int(exitTime.Sub(pos.EntryTime).Minutes())
	if holding < 0 {
		holding = 0
	}

	rec := &domain.TradeRecord{
		Symbol:         snap.Symbol,
		TradeDate:      snap.TradeDate,
		EntryTime:      pos.EntryTime,
		EntryPrice:     pos.EntryPrice,
		EntryReason:    intent.Rationale,
		ExitTime:       exitTime,
		ExitPrice:      exitPrice,
		ExitReason:     exitReason,
		StopLoss:       stopLoss,
		TakeProfit:     takeProfit,
		PnLPct:         pnlPct,
		HoldingMinutes: holding,
	}
	s.log.Debug("session closed",
		"symbol", rec.Symbol, "date", rec.TradeDate,
		"reason", rec.ExitReason, "pnl_pct", fmt.Sprintf("%.2f", rec.PnLPct))
	return rec, nil
}

// resolveLevels picks the authoritative stop and target. Policy levels win
// when they properly bracket the entry; anything else falls back to the
// configured percent distances.
func resolveLevels(entry float64, intent domain.TradeIntent, stops config.StopConfig) (stopLoss, takeProfit float64) {
	stopLoss = intent.StopLoss
	takeProfit = intent.TakeProfit
	if !(stopLoss > 0 && stopLoss < entry && takeProfit > entry) {
		stopLoss = entry * (1 - stops.StopLossPct/100)
		takeProfit = entry * (1 + stops.TakeProfitPct/100)
	}
	return stopLoss, takeProfit
}
