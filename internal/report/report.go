// Package report serializes finished backtest runs to CSV and JSON files
// and renders the terminal summary. It consumes plain run data and never
// reaches into engine internals.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ortrader/internal/domain"
)

// Writer writes one directory per run under its output root:
//
//	<outDir>/<runID>/run.json     full run with stats
//	<outDir>/<runID>/trades.csv   one row per trade
//	<outDir>/<runID>/dailies.csv  one row per (symbol, day)
type Writer struct {
	outDir string
	log    *slog.Logger
}

// NewWriter creates a Writer rooted at outDir.
func NewWriter(outDir string) *Writer {
	return &Writer{
		outDir: outDir,
		log:    slog.Default().With("component", "report"),
	}
}

// WriteAll writes every artifact for the run and returns the run directory.
func (w *Writer) WriteAll(run *domain.BacktestRun) (string, error) {
	dir := filepath.Join(w.outDir, run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	if err := w.writeRunJSON(filepath.Join(dir, "run.json"), run); err != nil {
		return "", err
	}
	if err := w.writeTradesCSV(filepath.Join(dir, "trades.csv"), run.Trades); err != nil {
		return "", err
	}
	if err := w.writeDailiesCSV(filepath.Join(dir, "dailies.csv"), run.Dailies); err != nil {
		return "", err
	}
	w.log.Info("reports written", "dir", dir,
		"trades", len(run.Trades), "dailies", len(run.Dailies))
	return dir, nil
}

func (w *Writer) writeRunJSON(path string, run *domain.BacktestRun) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (w *Writer) writeTradesCSV(path string, trades []domain.TradeRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	header := []string{
		"symbol", "trade_date", "entry_time", "entry_price",
		"exit_time", "exit_price", "exit_reason",
		"stop_loss", "take_profit", "pnl_pct", "holding_minutes",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Symbol,
			t.TradeDate,
			t.EntryTime.Format(time.RFC3339),
			formatPrice(t.EntryPrice),
			t.ExitTime.Format(time.RFC3339),
			formatPrice(t.ExitPrice),
			string(t.ExitReason),
			formatPrice(t.StopLoss),
			formatPrice(t.TakeProfit),
			formatPct(t.PnLPct),
			strconv.Itoa(t.HoldingMinutes),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) writeDailiesCSV(path string, dailies []domain.DailyRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	header := []string{
		"symbol", "trade_date", "action", "reason",
		"or_high", "or_low", "or_close",
		"day_high_after_or", "max_potential_pct", "confidence",
		"traded", "entry_price", "exit_price", "exit_reason", "pnl_pct",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, d := range dailies {
		row := []string{
			d.Symbol,
			d.TradeDate,
			string(d.Action),
			d.Reason,
			formatPrice(d.ORHigh),
			formatPrice(d.ORLow),
			formatPrice(d.ORClose),
			formatPrice(d.DayHighAfterOR),
			formatPct(d.MaxPotentialPct),
			formatPct(d.Confidence),
			strconv.FormatBool(d.Traded),
			formatPrice(d.EntryPrice),
			formatPrice(d.ExitPrice),
			string(d.ExitReason),
			formatPct(d.PnLPct),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Summary renders the human-readable run summary printed at the end of a
// backtest.
func Summary(run *domain.BacktestRun) string {
	s := run.Stats
	var b strings.Builder
	fmt.Fprintf(&b, "Backtest %s  %s .. %s  (%d symbols)\n", run.ID, run.StartDate, run.EndDate, len(run.Symbols))
	fmt.Fprintf(&b, "  trades:          %d  (win %d / loss %d, win rate %.1f%%)\n",
		s.TotalTrades, s.WinningTrades, s.LosingTrades, s.WinRate*100)
	fmt.Fprintf(&b, "  pnl:             total %+.2f%%  avg %+.2f%%  best %+.2f%%  worst %+.2f%%\n",
		s.TotalPnLPct, s.AvgPnLPct, s.MaxWinPct, s.MaxLossPct)
	fmt.Fprintf(&b, "  holding:         avg %.0f min\n", s.AvgHoldingMinutes)
	fmt.Fprintf(&b, "  exits:           TP %d  SL %d  close %d\n",
		s.TakeProfitCount, s.StopLossCount, s.MarketCloseCount)
	if run.SkippedSymbolDays > 0 {
		fmt.Fprintf(&b, "  skipped:         %d symbol-days (missing data)\n", run.SkippedSymbolDays)
	}
	return b.String()
}
