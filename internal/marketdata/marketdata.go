// Package marketdata fetches OHLCV bar history for US equities. The Alpaca
// market-data API is the upstream source; a Parquet-backed caching layer
// keeps repeated backtests off the network.
package marketdata

import (
	"context"
	"time"

	"ortrader/internal/domain"
)

// Provider serves historical bars for a symbol and timeframe. A symbol with
// no data in the window yields an empty slice, not an error; errors are
// reserved for transport and storage failures.
type Provider interface {
	// GetBars returns bars within [start, end], sorted ascending by
	// timestamp with no duplicates.
	GetBars(ctx context.Context, symbol string, timeframe domain.Timeframe, start, end time.Time) ([]domain.Bar, error)
}
