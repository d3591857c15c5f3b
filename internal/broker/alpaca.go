package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"ortrader/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// AlpacaBroker implements the Broker interface against the Alpaca trading
// API. Point baseURL at the paper endpoint for paper trading.
type AlpacaBroker struct {
	client *alpaca.Client
	log    *slog.Logger
}

// NewAlpacaBroker creates an AlpacaBroker with the given credentials and API
// endpoint.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string) *AlpacaBroker {
	return &AlpacaBroker{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		log: slog.Default().With("broker", "alpaca"),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// SubmitOrder places a day order through the Alpaca API and returns the
// accepted order with the broker-assigned ID.
func (b *AlpacaBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	qty := decimal.NewFromFloat(order.Qty)
	req := alpaca.PlaceOrderRequest{
		Symbol:      order.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(order.Side),
		Type:        alpaca.OrderType(order.Type),
		TimeInForce: alpaca.Day,
	}
	if order.Type == domain.OrderTypeLimit {
		limit := decimal.NewFromFloat(order.LimitPrice)
		req.LimitPrice = &limit
	}

	placed, err := b.client.PlaceOrder(req)
	if err != nil {
		return nil, fmt.Errorf("placing %s %s x%v: %w", order.Side, order.Symbol, order.Qty, err)
	}

	out := *order
	out.ID = placed.ID
	out.Status = domain.OrderStatus(placed.Status)
	out.CreatedAt = placed.CreatedAt
	out.UpdatedAt = placed.UpdatedAt
	out.FilledQty = placed.FilledQty.InexactFloat64()
	if placed.FilledAvgPrice != nil {
		out.FilledAvgPrice = placed.FilledAvgPrice.InexactFloat64()
	}
	b.log.Info("order submitted", "id", out.ID, "symbol", out.Symbol, "side", out.Side, "status", out.Status)
	return &out, nil
}

// CancelOrder requests cancellation of an open order.
func (b *AlpacaBroker) CancelOrder(_ context.Context, orderID string) error {
	if err := b.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("cancelling order %s: %w", orderID, err)
	}
	return nil
}

// GetPositions returns all open positions in the account.
func (b *AlpacaBroker) GetPositions(_ context.Context) ([]domain.BrokerPosition, error) {
	raw, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	positions := make([]domain.BrokerPosition, 0, len(raw))
	for _, p := range raw {
		pos := domain.BrokerPosition{
			Symbol:        p.Symbol,
			Qty:           p.Qty.InexactFloat64(),
			Side:          domain.PositionSide(p.Side),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
		}
		if p.MarketValue != nil {
			pos.MarketValue = p.MarketValue.InexactFloat64()
		}
		if p.UnrealizedPLPC != nil {
			pos.UnrealizedPct = p.UnrealizedPLPC.InexactFloat64() * 100
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// GetAccount returns the current account equity, cash, and buying power.
func (b *AlpacaBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	acct, err := b.client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	return &domain.AccountInfo{
		Equity:      acct.Equity.InexactFloat64(),
		Cash:        acct.Cash.InexactFloat64(),
		BuyingPower: acct.BuyingPower.InexactFloat64(),
	}, nil
}
