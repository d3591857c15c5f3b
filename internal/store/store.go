// Package store defines storage interfaces for persisting and retrieving
// domain objects: OHLCV bars in Parquet files and backtest runs in SQLite.
package store

import (
	"context"
	"errors"
	"time"

	"ortrader/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data for one timeframe at a time.
type BarStore interface {
	// WriteBars persists a batch of bars under the given timeframe.
	WriteBars(ctx context.Context, timeframe domain.Timeframe, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and timeframe within
	// [start, end], sorted by timestamp ascending. A symbol with no stored
	// data yields an empty slice, not an error.
	ReadBars(ctx context.Context, symbol string, timeframe domain.Timeframe, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols stored for the timeframe.
	ListSymbols(ctx context.Context, timeframe domain.Timeframe) ([]string, error)
}

// RunStore persists completed backtest runs and serves them back to the
// report writers and the HTTP API.
type RunStore interface {
	// SaveRun persists a run with all its trades and daily records in one
	// transaction.
	SaveRun(ctx context.Context, run *domain.BacktestRun) error

	// GetRun retrieves a run header (without trades and dailies) by ID.
	GetRun(ctx context.Context, id string) (*domain.BacktestRun, error)

	// ListRuns returns run headers ordered newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]domain.BacktestRun, error)

	// TradesForRun returns the trade records of a run ordered by entry time.
	TradesForRun(ctx context.Context, runID string) ([]domain.TradeRecord, error)

	// DailiesForRun returns the daily records of a run ordered by date then
	// symbol.
	DailiesForRun(ctx context.Context, runID string) ([]domain.DailyRecord, error)
}
