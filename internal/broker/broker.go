// Package broker defines the Broker interface and provides implementations
// for executing orders and managing accounts: a live Alpaca client and an
// in-memory paper simulator.
package broker

import (
	"context"
	"errors"

	"ortrader/internal/domain"
)

// ErrOrderNotFound is returned when a cancel or lookup names an unknown
// order.
var ErrOrderNotFound = errors.New("order not found")

// Broker abstracts brokerage operations for order execution and account
// management.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "paper").
	Name() string

	// SubmitOrder sends an order for execution and returns the accepted
	// order with its broker-assigned ID and status.
	SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error

	// GetPositions returns all current positions held at the brokerage.
	GetPositions(ctx context.Context) ([]domain.BrokerPosition, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}
