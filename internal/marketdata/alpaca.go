package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"ortrader/internal/domain"
	"ortrader/internal/util"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches bars from the Alpaca market-data API. Responses are
// normalized: symbols uppercased, bars sorted ascending and deduplicated by
// timestamp.
type AlpacaProvider struct {
	client  *marketdata.Client
	feed    string
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials.
// dataURL and feed may be empty to use the API defaults; rateLimitPerMin
// caps outgoing request frequency.
func NewAlpacaProvider(apiKey, apiSecret, dataURL, feed string, rateLimitPerMin int) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "iex"
	}
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 200
	}
	return &AlpacaProvider{
		client:  marketdata.NewClient(opts),
		feed:    feed,
		limiter: util.NewRateLimiterBurst(rateLimitPerMin, 10),
		log:     slog.Default().With("provider", "alpaca"),
	}
}

// GetBars fetches bars for one symbol within [start, end].
func (p *AlpacaProvider) GetBars(ctx context.Context, symbol string, timeframe domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	tf, err := alpacaTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	var raw []marketdata.Bar
	err = util.Retry(ctx, 3, time.Second, func() error {
		var ferr error
		raw, ferr = p.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: tf,
			Start:     start,
			End:       end,
			Feed:      marketdata.Feed(p.feed),
		})
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s %s: %w", symbol, timeframe, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  ab.Timestamp,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	bars = normalize(bars)
	p.log.Debug("fetched bars", "symbol", symbol, "timeframe", timeframe, "count", len(bars))
	return bars, nil
}

func alpacaTimeframe(tf domain.Timeframe) (marketdata.TimeFrame, error) {
	switch tf {
	case domain.Timeframe15Min:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case domain.TimeframeDaily:
		return marketdata.OneDay, nil
	case domain.TimeframeWeekly:
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", tf)
	}
}

// normalize sorts bars ascending by timestamp and drops duplicates in place.
func normalize(bars []domain.Bar) []domain.Bar {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	out := bars[:0]
	var prev time.Time
	for _, b := range bars {
		if !prev.IsZero() && b.Timestamp.Equal(prev) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
		prev = b.Timestamp
	}
	return out
}
