package engine

import (
	"context"
	"fmt"

	"ortrader/internal/domain"
)

// RiskManager enforces pre-trade risk rules: per-position sizing limits and
// a daily loss circuit breaker.
type RiskManager struct {
	maxPositionPct  float64 // max fraction of equity in one position
	maxDailyLossPct float64 // max fraction of equity lost in one day
	dayStartEquity  float64
}

// NewRiskManager creates a RiskManager with the specified thresholds, e.g.
// 0.20 for a 20% position cap and 0.03 for a 3% daily loss limit.
func NewRiskManager(maxPositionPct, maxDailyLossPct float64) *RiskManager {
	return &RiskManager{
		maxPositionPct:  maxPositionPct,
		maxDailyLossPct: maxDailyLossPct,
	}
}

// StartDay records the equity baseline against which the daily loss limit is
// measured. Call once at the start of each trading day.
func (rm *RiskManager) StartDay(equity float64) {
	rm.dayStartEquity = equity
}

// CheckOrder evaluates whether a proposed buy complies with the configured
// limits given the current account state and the order's expected notional
// value.
func (rm *RiskManager) CheckOrder(_ context.Context, order *domain.Order, notional float64, account *domain.AccountInfo) error {
	if order.Side != domain.OrderSideBuy {
		return nil // exits are never blocked
	}
	if account.Equity <= 0 {
		return fmt.Errorf("account equity %.2f, refusing to trade", account.Equity)
	}
	if rm.maxPositionPct > 0 && notional > account.Equity*rm.maxPositionPct {
		return fmt.Errorf("order notional %.2f exceeds %.0f%% position limit (equity %.2f)",
			notional, rm.maxPositionPct*100, account.Equity)
	}
	if notional > account.Cash {
		return fmt.Errorf("order notional %.2f exceeds cash %.2f", notional, account.Cash)
	}
	if rm.maxDailyLossPct > 0 && rm.dayStartEquity > 0 {
		loss := (rm.dayStartEquity - account.Equity) / rm.dayStartEquity
		if loss >= rm.maxDailyLossPct {
			return fmt.Errorf("daily loss %.2f%% at or beyond %.2f%% limit, trading halted",
				loss*100, rm.maxDailyLossPct*100)
		}
	}
	return nil
}
