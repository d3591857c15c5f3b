package domain

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	// Verify TradeRecord can be instantiated with zero values.
	rec := TradeRecord{}
	if rec.Symbol != "" || rec.TradeDate != "" {
		t.Error("expected empty identifiers for zero-value TradeRecord")
	}
	if rec.ExitReason != "" {
		t.Error("expected empty ExitReason for zero-value TradeRecord")
	}

	// Verify enum constants have their wire values.
	if ExitTakeProfit != "TAKE_PROFIT" || ExitStopLoss != "STOP_LOSS" || ExitMarketClose != "MARKET_CLOSE" {
		t.Error("ExitReason constants have unexpected values")
	}
	if ActionEnter != "ENTER" || ActionWait != "WAIT" {
		t.Error("IntentAction constants have unexpected values")
	}
	if DailyEnterNotSelected != "ENTER_NOT_SELECTED" {
		t.Errorf("DailyEnterNotSelected = %q, want %q", DailyEnterNotSelected, "ENTER_NOT_SELECTED")
	}
	if MarketUS != "us" {
		t.Error("Market constants have unexpected values")
	}
}

func TestBarTradeDate(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading ET: %v", err)
	}
	b := Bar{Timestamp: time.Date(2026, 3, 2, 9, 30, 0, 0, et)}
	if got := b.TradeDate(); got != "2026-03-02" {
		t.Errorf("TradeDate = %q, want %q", got, "2026-03-02")
	}
}

func TestTradeRecordRoundTrip(t *testing.T) {
	et, _ := time.LoadLocation("America/New_York")
	rec := TradeRecord{
		Symbol:         "AAPL",
		TradeDate:      "2026-01-12",
		EntryTime:      time.Date(2026, 1, 12, 9, 45, 0, 0, et),
		EntryPrice:     185.42,
		EntryReason:    "uptrend, rvol 2.1",
		ExitTime:       time.Date(2026, 1, 12, 11, 30, 0, 0, et),
		ExitPrice:      188.10,
		ExitReason:     ExitTakeProfit,
		StopLoss:       183.00,
		TakeProfit:     188.10,
		PnLPct:         1.4454,
		HoldingMinutes: 105,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back TradeRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// time.Time equality across a JSON round trip needs Equal, not ==.
	if !back.EntryTime.Equal(rec.EntryTime) || !back.ExitTime.Equal(rec.ExitTime) {
		t.Fatalf("timestamps did not survive round trip: %v / %v", back.EntryTime, back.ExitTime)
	}
	back.EntryTime, rec.EntryTime = time.Time{}, time.Time{}
	back.ExitTime, rec.ExitTime = time.Time{}, time.Time{}
	if !reflect.DeepEqual(back, rec) {
		t.Errorf("round trip mismatch:\n  got  %+v\n  want %+v", back, rec)
	}
}

func TestSnapshotValidate(t *testing.T) {
	et, _ := time.LoadLocation("America/New_York")
	day := time.Date(2026, 1, 12, 0, 0, 0, 0, et)
	bar := func(d time.Time, hour, min int) Bar {
		return Bar{
			Symbol:    "TEST",
			Timestamp: time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, et),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1000,
		}
	}
	prev := day.AddDate(0, 0, -3) // a Friday
	opening := bar(day, 9, 30)

	base := func() DecisionSnapshot {
		return DecisionSnapshot{
			Symbol:       "TEST",
			TradeDate:    "2026-01-12",
			DecisionTime: time.Date(2026, 1, 12, 9, 45, 0, 0, et),
			OpeningBar:   opening,
			Intraday:     []Bar{bar(prev, 15, 45), opening},
			Daily:        []Bar{bar(prev, 0, 0)},
			CurrentPrice: opening.Close,
		}
	}

	t.Run("valid", func(t *testing.T) {
		s := base()
		if err := s.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("future intraday bar", func(t *testing.T) {
		s := base()
		s.Intraday = append(s.Intraday, bar(day, 10, 0))
		if err := s.Validate(); err == nil {
			t.Error("expected error for bar after decision time")
		}
	})

	t.Run("opening bar not last", func(t *testing.T) {
		s := base()
		s.Intraday = []Bar{opening, bar(prev, 15, 45)}
		if err := s.Validate(); err == nil {
			t.Error("expected error for unsorted series")
		}
	})

	t.Run("same-day daily context", func(t *testing.T) {
		s := base()
		s.Daily = append(s.Daily, bar(day, 0, 0))
		if err := s.Validate(); err == nil {
			t.Error("expected error for daily bar on the trade date")
		}
	})

	t.Run("empty intraday", func(t *testing.T) {
		s := base()
		s.Intraday = nil
		if err := s.Validate(); err == nil {
			t.Error("expected error for empty intraday series")
		}
	})
}
