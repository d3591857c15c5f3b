package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ortrader/internal/domain"
)

func makeBars(symbol string, start time.Time, n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      100, High: 101, Low: 99, Close: 100.5,
			Volume: 1000, TradeCount: 50, VWAP: 100.2,
		}
	}
	return bars
}

func TestParquetStoreRoundTrip(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()
	start := time.Date(2024, 3, 15, 13, 30, 0, 0, time.UTC)

	bars := makeBars("AAPL", start, 5)
	if err := s.WriteBars(ctx, domain.Timeframe15Min, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "AAPL", domain.Timeframe15Min, start, start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("ReadBars returned %d bars, want 5", len(got))
	}
	if !got[0].Timestamp.Equal(start) {
		t.Errorf("first timestamp = %v, want %v", got[0].Timestamp, start)
	}
	if got[2].Close != 100.5 || got[2].Volume != 1000 {
		t.Errorf("bar fields not preserved: %+v", got[2])
	}
}

func TestParquetStoreMergeDeduplicates(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()
	start := time.Date(2024, 3, 15, 13, 30, 0, 0, time.UTC)

	if err := s.WriteBars(ctx, domain.Timeframe15Min, makeBars("AAPL", start, 3)); err != nil {
		t.Fatalf("first WriteBars: %v", err)
	}
	// Overlapping rewrite with a corrected close on the middle bar.
	updated := makeBars("AAPL", start, 3)
	updated[1].Close = 200
	if err := s.WriteBars(ctx, domain.Timeframe15Min, updated); err != nil {
		t.Fatalf("second WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "AAPL", domain.Timeframe15Min, start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d bars after merge, want 3", len(got))
	}
	if got[1].Close != 200 {
		t.Errorf("incoming record did not win merge: close = %v", got[1].Close)
	}
}

func TestParquetStoreTimeframesAreIsolated(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()
	start := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	if err := s.WriteBars(ctx, domain.TimeframeDaily, makeBars("MSFT", start, 2)); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "MSFT", domain.Timeframe15Min, start, start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("15m read returned %d daily bars, want 0", len(got))
	}

	symbols, err := s.ListSymbols(ctx, domain.TimeframeDaily)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "MSFT" {
		t.Errorf("ListSymbols = %v, want [MSFT]", symbols)
	}
}

func sampleRun() *domain.BacktestRun {
	entry := time.Date(2024, 3, 15, 13, 46, 0, 0, time.UTC)
	exit := time.Date(2024, 3, 15, 15, 30, 0, 0, time.UTC)
	return &domain.BacktestRun{
		ID:        "run-001",
		StartDate: "2024-03-11",
		EndDate:   "2024-03-15",
		Symbols:   []string{"AAPL", "TSLA"},
		CreatedAt: time.Date(2024, 3, 16, 1, 0, 0, 0, time.UTC),
		Trades: []domain.TradeRecord{
			{
				Symbol: "AAPL", TradeDate: "2024-03-15",
				EntryTime: entry, EntryPrice: 100,
				ExitTime: exit, ExitPrice: 104, ExitReason: domain.ExitTakeProfit,
				StopLoss: 98, TakeProfit: 104, PnLPct: 4, HoldingMinutes: 104,
			},
		},
		Dailies: []domain.DailyRecord{
			{
				Symbol: "AAPL", TradeDate: "2024-03-15", Action: domain.DailyEnter,
				ORHigh: 101, ORLow: 99, ORClose: 100,
				DayHighAfterOR: 105, MaxPotentialPct: 5, Confidence: 0.8,
				Traded: true, EntryPrice: 100, ExitPrice: 104,
				ExitReason: domain.ExitTakeProfit, PnLPct: 4,
			},
			{
				Symbol: "TSLA", TradeDate: "2024-03-15", Action: domain.DailyWait,
				Reason: "rsi out of band", ORHigh: 201, ORLow: 198, ORClose: 199,
				DayHighAfterOR: 202, MaxPotentialPct: 1.5,
			},
		},
		Stats: domain.Statistics{
			TotalTrades: 1, WinningTrades: 1, WinRate: 1,
			TotalPnLPct: 4, AvgPnLPct: 4, MaxWinPct: 4,
			AvgHoldingMinutes: 104, TakeProfitCount: 1,
		},
		SkippedSymbolDays: 2,
	}
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreSaveAndGetRun(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	run := sampleRun()

	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.StartDate != run.StartDate || got.EndDate != run.EndDate {
		t.Errorf("date range = %s..%s, want %s..%s", got.StartDate, got.EndDate, run.StartDate, run.EndDate)
	}
	if len(got.Symbols) != 2 || got.Symbols[1] != "TSLA" {
		t.Errorf("Symbols = %v", got.Symbols)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, run.CreatedAt)
	}
	if got.Stats != run.Stats {
		t.Errorf("Stats = %+v, want %+v", got.Stats, run.Stats)
	}
	if got.SkippedSymbolDays != 2 {
		t.Errorf("SkippedSymbolDays = %d, want 2", got.SkippedSymbolDays)
	}
}

func TestSQLiteStoreChildRecords(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	run := sampleRun()

	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	trades, err := s.TradesForRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("TradesForRun: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	want := run.Trades[0]
	got := trades[0]
	if got.Symbol != want.Symbol || got.ExitReason != want.ExitReason ||
		got.PnLPct != want.PnLPct || got.HoldingMinutes != want.HoldingMinutes {
		t.Errorf("trade = %+v, want %+v", got, want)
	}
	if !got.EntryTime.Equal(want.EntryTime) || !got.ExitTime.Equal(want.ExitTime) {
		t.Errorf("times = %v/%v, want %v/%v", got.EntryTime, got.ExitTime, want.EntryTime, want.ExitTime)
	}

	dailies, err := s.DailiesForRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("DailiesForRun: %v", err)
	}
	if len(dailies) != 2 {
		t.Fatalf("got %d dailies, want 2", len(dailies))
	}
	// Ordered by date then symbol.
	if dailies[0].Symbol != "AAPL" || dailies[1].Symbol != "TSLA" {
		t.Errorf("daily order = %s, %s", dailies[0].Symbol, dailies[1].Symbol)
	}
	if !dailies[0].Traded || dailies[1].Traded {
		t.Errorf("Traded flags = %v, %v", dailies[0].Traded, dailies[1].Traded)
	}
	if dailies[1].Action != domain.DailyWait || dailies[1].Reason != "rsi out of band" {
		t.Errorf("wait daily = %+v", dailies[1])
	}
}

func TestSQLiteStoreGetRunNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first := sampleRun()
	second := sampleRun()
	second.ID = "run-002"
	second.CreatedAt = first.CreatedAt.Add(time.Hour)
	second.Trades = nil
	second.Dailies = nil

	if err := s.SaveRun(ctx, first); err != nil {
		t.Fatalf("SaveRun first: %v", err)
	}
	if err := s.SaveRun(ctx, second); err != nil {
		t.Fatalf("SaveRun second: %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	// Newest first.
	if runs[0].ID != "run-002" || runs[1].ID != "run-001" {
		t.Errorf("order = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestSQLiteStoreDuplicateRunFails(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	run := sampleRun()

	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(ctx, run); err == nil {
		t.Error("expected error saving duplicate run ID")
	}
}
