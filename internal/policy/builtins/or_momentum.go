// Package builtins provides the signal policies that ship with ortrader.
package builtins

import (
	"context"
	"fmt"
	"math"
	"strings"

	"ortrader/internal/domain"
	"ortrader/internal/indicator"
	"ortrader/internal/policy"
)

// Compile-time interface check.
var _ policy.Policy = (*ORMomentum)(nil)

// ORMomentum is the opening-range momentum policy: it enters long when the
// intraday trend, RSI, MACD, relative volume, and the opening-range bar
// itself all lean bullish at the decision cutoff. Stop and target are ATR
// multiples anchored at the opening-range close, with the stop distance
// clamped to a sane percentage band.
type ORMomentum struct {
	emaFast   int
	emaSlow   int
	rsiPeriod int
	rsiMin    float64
	rsiMax    float64
	atrPeriod int

	stopATR   float64 // stop distance in ATRs
	targetATR float64 // target distance in ATRs
	minStop   float64 // stop distance floor, pct of entry
	maxStop   float64 // stop distance ceiling, pct of entry

	volLookback int
	minRelVol   float64

	minConfidence float64
}

// NewORMomentum creates an ORMomentum policy with the standard parameters:
// EMA 9/21 trend filter, RSI(14) in [50, 70], MACD histogram positive,
// relative volume ≥ 1.2 over a 20-bar baseline, ATR(14) stops at 1.5x with
// the distance clamped to 1-4% and targets at 2.5x.
func NewORMomentum() *ORMomentum {
	return &ORMomentum{
		emaFast:   9,
		emaSlow:   21,
		rsiPeriod: 14,
		rsiMin:    50,
		rsiMax:    70,
		atrPeriod: 14,

		stopATR:   1.5,
		targetATR: 2.5,
		minStop:   1.0,
		maxStop:   4.0,

		volLookback: 20,
		minRelVol:   1.2,

		minConfidence: 0.6,
	}
}

// Name returns "or-momentum".
func (p *ORMomentum) Name() string { return "or-momentum" }

// minBars is the shortest intraday history Evaluate can score: the slow EMA
// plus the MACD signal warmup, whichever is larger, plus one for deltas.
func (p *ORMomentum) minBars() int {
	return max(p.emaSlow, 26+9) + 1
}

// Evaluate scores the snapshot's intraday series. Every signal that passes
// adds its weight to the confidence; the policy enters when confidence
// reaches the threshold.
func (p *ORMomentum) Evaluate(_ context.Context, snap *domain.DecisionSnapshot) (domain.TradeIntent, error) {
	if len(snap.Intraday) < p.minBars() {
		return wait(fmt.Sprintf("insufficient history: %d bars, need %d", len(snap.Intraday), p.minBars())), nil
	}

	closes := indicator.Closes(snap.Intraday)
	entry := snap.CurrentPrice
	if entry <= 0 {
		return domain.TradeIntent{}, fmt.Errorf("%s %s: non-positive entry anchor %v", snap.Symbol, snap.TradeDate, entry)
	}

	type signal struct {
		name   string
		weight float64
		pass   bool
	}

	emaFast := indicator.EMA(closes, p.emaFast)
	emaSlow := indicator.EMA(closes, p.emaSlow)
	rsi := indicator.RSI(closes, p.rsiPeriod)
	_, _, macdHist := indicator.MACD(closes, 12, 26, 9)
	relVol := indicator.RelativeVolume(snap.Intraday, p.volLookback)
	orBar := snap.OpeningBar

	signals := []signal{
		{"trend", 0.30, emaFast > emaSlow},
		{"rsi", 0.20, rsi >= p.rsiMin && rsi <= p.rsiMax},
		{"macd", 0.20, macdHist > 0},
		{"volume", 0.15, !math.IsNaN(relVol) && relVol >= p.minRelVol},
		{"or_bar", 0.15, orBar.Close > orBar.Open && orBar.Close > (orBar.High+orBar.Low)/2},
	}

	var confidence float64
	var passed, failed []string
	for _, s := range signals {
		if s.pass {
			confidence += s.weight
			passed = append(passed, s.name)
		} else {
			failed = append(failed, s.name)
		}
	}
	confidence = math.Round(confidence*100) / 100

	if confidence < p.minConfidence {
		return wait(fmt.Sprintf("confidence %.2f below %.2f; failed: %s",
			confidence, p.minConfidence, strings.Join(failed, ","))), nil
	}

	atr := indicator.ATR(snap.Intraday, p.atrPeriod)
	if math.IsNaN(atr) || atr <= 0 {
		return wait("atr unavailable"), nil
	}

	stopDist := clamp(p.stopATR*atr, entry*p.minStop/100, entry*p.maxStop/100)
	targetDist := p.targetATR * atr
	// Keep the reward:risk ratio from degenerating when the stop clamps up.
	if targetDist < stopDist*1.5 {
		targetDist = stopDist * 1.5
	}

	return domain.TradeIntent{
		Action:     domain.ActionEnter,
		EntryPrice: entry,
		StopLoss:   entry - stopDist,
		TakeProfit: entry + targetDist,
		Confidence: confidence,
		Rationale:  "passed: " + strings.Join(passed, ","),
	}, nil
}

func wait(rationale string) domain.TradeIntent {
	return domain.TradeIntent{
		Action:    domain.ActionWait,
		Rationale: rationale,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
