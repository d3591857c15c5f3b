package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ortrader/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*PaperBroker)(nil)

// PaperBroker implements the Broker interface in memory for dry runs. Market
// orders fill immediately at the caller-supplied mark price; positions and
// cash are tracked so the daily engine behaves identically against paper and
// live endpoints.
type PaperBroker struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*domain.BrokerPosition
	orders    map[string]*domain.Order
	marks     map[string]float64
	seq       int
}

// NewPaperBroker creates a PaperBroker with the given starting cash.
func NewPaperBroker(startingCash float64) *PaperBroker {
	return &PaperBroker{
		cash:      startingCash,
		positions: make(map[string]*domain.BrokerPosition),
		orders:    make(map[string]*domain.Order),
		marks:     make(map[string]float64),
	}
}

// Name returns "paper".
func (b *PaperBroker) Name() string {
	return "paper"
}

// SetMark sets the fill price used for market orders on a symbol.
func (b *PaperBroker) SetMark(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks[symbol] = price
}

// SubmitOrder fills market orders immediately at the symbol's mark price and
// limit orders at their limit price. Buys without a usable price or with
// insufficient cash are rejected.
func (b *PaperBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	price := b.marks[order.Symbol]
	if order.Type == domain.OrderTypeLimit {
		price = order.LimitPrice
	}
	if price <= 0 {
		return nil, fmt.Errorf("no mark price for %s", order.Symbol)
	}

	b.seq++
	now := time.Now().UTC()
	out := *order
	out.ID = fmt.Sprintf("paper-%d", b.seq)
	out.CreatedAt = now
	out.UpdatedAt = now

	notional := price * order.Qty
	switch order.Side {
	case domain.OrderSideBuy:
		if notional > b.cash {
			out.Status = domain.OrderStatusRejected
			b.orders[out.ID] = &out
			return &out, fmt.Errorf("insufficient cash: need %.2f, have %.2f", notional, b.cash)
		}
		b.cash -= notional
		pos, ok := b.positions[order.Symbol]
		if !ok {
			pos = &domain.BrokerPosition{Symbol: order.Symbol, Side: domain.PositionSideLong}
			b.positions[order.Symbol] = pos
		}
		total := pos.AvgEntryPrice*pos.Qty + notional
		pos.Qty += order.Qty
		pos.AvgEntryPrice = total / pos.Qty
		pos.MarketValue = price * pos.Qty

	case domain.OrderSideSell:
		pos, ok := b.positions[order.Symbol]
		if !ok || pos.Qty < order.Qty {
			out.Status = domain.OrderStatusRejected
			b.orders[out.ID] = &out
			return &out, fmt.Errorf("no position to sell: %s x%v", order.Symbol, order.Qty)
		}
		b.cash += notional
		pos.Qty -= order.Qty
		pos.MarketValue = price * pos.Qty
		if pos.Qty == 0 {
			delete(b.positions, order.Symbol)
		}

	default:
		return nil, fmt.Errorf("unknown order side %q", order.Side)
	}

	out.Status = domain.OrderStatusFilled
	out.FilledQty = order.Qty
	out.FilledAvgPrice = price
	b.orders[out.ID] = &out
	return &out, nil
}

// CancelOrder marks an order cancelled. Filled orders cannot be cancelled.
func (b *PaperBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if o.Status == domain.OrderStatusFilled {
		return fmt.Errorf("order %s already filled", orderID)
	}
	o.Status = domain.OrderStatusCancelled
	return nil
}

// GetPositions returns copies of all open paper positions.
func (b *PaperBroker) GetPositions(_ context.Context) ([]domain.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	positions := make([]domain.BrokerPosition, 0, len(b.positions))
	for _, p := range b.positions {
		positions = append(positions, *p)
	}
	return positions, nil
}

// GetAccount returns the paper account: cash plus marked position value.
func (b *PaperBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	equity := b.cash
	for _, p := range b.positions {
		equity += p.MarketValue
	}
	return &domain.AccountInfo{
		Equity:      equity,
		Cash:        b.cash,
		BuyingPower: b.cash,
	}, nil
}
