package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ortrader/internal/domain"
	"ortrader/internal/store"
)

// Compile-time interface check.
var _ Provider = (*CachingProvider)(nil)

// CachingProvider wraps an upstream Provider with a BarStore read-through
// cache. A window already covered on disk is served without touching the
// upstream; on a miss the full window is fetched and written back.
//
// Coverage is tracked per (symbol, timeframe, window) with a coarse rule: if
// the store holds any bars spanning the requested window's first and last
// session, the cached copy is considered complete. Intraday holes inside a
// cached day are accepted; exchanges do publish gap days.
type CachingProvider struct {
	upstream Provider
	cache    store.BarStore
	log      *slog.Logger
}

// NewCachingProvider creates a read-through cache over upstream backed by
// the given bar store.
func NewCachingProvider(upstream Provider, cache store.BarStore) *CachingProvider {
	return &CachingProvider{
		upstream: upstream,
		cache:    cache,
		log:      slog.Default().With("provider", "cache"),
	}
}

// GetBars serves bars from the cache when the window is covered, fetching
// from upstream and writing back otherwise.
func (p *CachingProvider) GetBars(ctx context.Context, symbol string, timeframe domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	cached, err := p.cache.ReadBars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading cache for %s: %w", symbol, err)
	}
	if covers(cached, start, end, timeframe) {
		p.log.Debug("cache hit", "symbol", symbol, "timeframe", timeframe, "count", len(cached))
		return cached, nil
	}

	bars, err := p.upstream.GetBars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 {
		if werr := p.cache.WriteBars(ctx, timeframe, bars); werr != nil {
			// Serving fetched data matters more than persisting it.
			p.log.Warn("cache write failed", "symbol", symbol, "err", werr)
		}
	}
	p.log.Debug("cache miss", "symbol", symbol, "timeframe", timeframe, "count", len(bars))
	return bars, nil
}

// covers reports whether cached bars plausibly span [start, end]: non-empty,
// first bar within one period of start, last bar within one period of end.
func covers(bars []domain.Bar, start, end time.Time, timeframe domain.Timeframe) bool {
	if len(bars) == 0 {
		return false
	}
	slack := periodSlack(timeframe)
	first := bars[0].Timestamp
	last := bars[len(bars)-1].Timestamp
	return first.Sub(start) <= slack && end.Sub(last) <= slack
}

// periodSlack is the tolerated distance between a window edge and the
// nearest cached bar before the window counts as uncovered. Generous on
// purpose: weekends and holidays sit between the requested edge and the
// first session.
func periodSlack(timeframe domain.Timeframe) time.Duration {
	switch timeframe {
	case domain.Timeframe15Min:
		return 24 * time.Hour
	case domain.TimeframeDaily:
		return 4 * 24 * time.Hour
	default:
		return 8 * 24 * time.Hour
	}
}
