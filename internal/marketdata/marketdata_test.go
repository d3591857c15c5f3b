package marketdata

import (
	"context"
	"testing"
	"time"

	"ortrader/internal/domain"
	"ortrader/internal/store"
)

// fakeProvider counts calls and serves a canned bar slice.
type fakeProvider struct {
	calls int
	bars  []domain.Bar
	err   error
}

func (f *fakeProvider) GetBars(_ context.Context, _ string, _ domain.Timeframe, _, _ time.Time) ([]domain.Bar, error) {
	f.calls++
	return f.bars, f.err
}

func sessionBars(symbol string, day time.Time, n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: day.Add(time.Duration(i) * 15 * time.Minute),
			Open:      100, High: 101, Low: 99, Close: 100,
			Volume: 1000,
		}
	}
	return bars
}

func TestCachingProviderFetchesOnMissAndServesFromCache(t *testing.T) {
	ctx := context.Background()
	open := time.Date(2024, 3, 15, 13, 30, 0, 0, time.UTC)
	end := open.Add(7 * time.Hour)

	upstream := &fakeProvider{bars: sessionBars("AAPL", open, 26)}
	cache := store.NewParquetStore(t.TempDir())
	p := NewCachingProvider(upstream, cache)

	got, err := p.GetBars(ctx, "AAPL", domain.Timeframe15Min, open, end)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(got) != 26 {
		t.Fatalf("got %d bars, want 26", len(got))
	}
	if upstream.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", upstream.calls)
	}

	// Second identical request is served from the Parquet cache.
	got, err = p.GetBars(ctx, "AAPL", domain.Timeframe15Min, open, end)
	if err != nil {
		t.Fatalf("GetBars (cached): %v", err)
	}
	if len(got) != 26 {
		t.Fatalf("cached read returned %d bars, want 26", len(got))
	}
	if upstream.calls != 1 {
		t.Errorf("upstream calls = %d after cached read, want 1", upstream.calls)
	}
}

func TestCachingProviderEmptyUpstreamIsNotCached(t *testing.T) {
	ctx := context.Background()
	open := time.Date(2024, 3, 15, 13, 30, 0, 0, time.UTC)

	upstream := &fakeProvider{}
	p := NewCachingProvider(upstream, store.NewParquetStore(t.TempDir()))

	got, err := p.GetBars(ctx, "ZZZZ", domain.Timeframe15Min, open, open.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bars for empty symbol, want 0", len(got))
	}
	// Empty windows are refetched: absence is indistinguishable from a
	// never-populated cache.
	if _, err := p.GetBars(ctx, "ZZZZ", domain.Timeframe15Min, open, open.Add(time.Hour)); err != nil {
		t.Fatalf("GetBars second: %v", err)
	}
	if upstream.calls != 2 {
		t.Errorf("upstream calls = %d, want 2", upstream.calls)
	}
}

func TestNormalizeSortsAndDeduplicates(t *testing.T) {
	open := time.Date(2024, 3, 15, 13, 30, 0, 0, time.UTC)
	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: open.Add(30 * time.Minute), Close: 3},
		{Symbol: "AAPL", Timestamp: open, Close: 1},
		{Symbol: "AAPL", Timestamp: open.Add(15 * time.Minute), Close: 2},
		{Symbol: "AAPL", Timestamp: open.Add(15 * time.Minute), Close: 2.5}, // duplicate timestamp, later wins
	}
	got := normalize(bars)
	if len(got) != 3 {
		t.Fatalf("got %d bars, want 3", len(got))
	}
	if got[0].Close != 1 || got[1].Close != 2.5 || got[2].Close != 3 {
		t.Errorf("normalized closes = %v, %v, %v", got[0].Close, got[1].Close, got[2].Close)
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Timestamp.Before(got[i].Timestamp) {
			t.Errorf("timestamps not strictly ascending at %d", i)
		}
	}
}

func TestAlpacaTimeframeMapping(t *testing.T) {
	for _, tf := range []domain.Timeframe{domain.Timeframe15Min, domain.TimeframeDaily, domain.TimeframeWeekly} {
		if _, err := alpacaTimeframe(tf); err != nil {
			t.Errorf("alpacaTimeframe(%s): %v", tf, err)
		}
	}
	if _, err := alpacaTimeframe(domain.Timeframe("3h")); err == nil {
		t.Error("expected error for unsupported timeframe")
	}
}
