package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ortrader/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database. One row per
// run plus child tables for trades and daily records.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                  TEXT PRIMARY KEY,
	start_date          TEXT NOT NULL,
	end_date            TEXT NOT NULL,
	symbols             TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	skipped_symbol_days INTEGER NOT NULL DEFAULT 0,
	stats               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	symbol          TEXT NOT NULL,
	trade_date      TEXT NOT NULL,
	entry_time      TEXT NOT NULL,
	entry_price     REAL NOT NULL,
	entry_reason    TEXT NOT NULL DEFAULT '',
	exit_time       TEXT NOT NULL,
	exit_price      REAL NOT NULL,
	exit_reason     TEXT NOT NULL,
	stop_loss       REAL NOT NULL,
	take_profit     REAL NOT NULL,
	pnl_pct         REAL NOT NULL,
	holding_minutes INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, entry_time);

CREATE TABLE IF NOT EXISTS dailies (
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	symbol            TEXT NOT NULL,
	trade_date        TEXT NOT NULL,
	action            TEXT NOT NULL,
	reason            TEXT NOT NULL DEFAULT '',
	or_high           REAL NOT NULL,
	or_low            REAL NOT NULL,
	or_close          REAL NOT NULL,
	day_high_after_or REAL NOT NULL,
	max_potential_pct REAL NOT NULL,
	confidence        REAL NOT NULL DEFAULT 0,
	traded            INTEGER NOT NULL DEFAULT 0,
	entry_price       REAL NOT NULL DEFAULT 0,
	exit_price        REAL NOT NULL DEFAULT 0,
	exit_reason       TEXT NOT NULL DEFAULT '',
	pnl_pct           REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_dailies_run ON dailies(run_id, trade_date, symbol);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun persists the run header with all trades and dailies in a single
// transaction. Saving an already-existing run ID fails.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.BacktestRun) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, start_date, end_date, symbols, created_at, skipped_symbol_days, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartDate, run.EndDate,
		strings.Join(run.Symbols, ","),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		run.SkippedSymbolDays,
		string(stats),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, symbol, trade_date, entry_time, entry_price, entry_reason,
			exit_time, exit_price, exit_reason, stop_loss, take_profit, pnl_pct, holding_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing trade insert: %w", err)
	}
	defer tradeStmt.Close()

	for _, t := range run.Trades {
		_, err := tradeStmt.ExecContext(ctx,
			run.ID, t.Symbol, t.TradeDate,
			t.EntryTime.UTC().Format(time.RFC3339Nano), t.EntryPrice, t.EntryReason,
			t.ExitTime.UTC().Format(time.RFC3339Nano), t.ExitPrice, string(t.ExitReason),
			t.StopLoss, t.TakeProfit, t.PnLPct, t.HoldingMinutes,
		)
		if err != nil {
			return fmt.Errorf("inserting trade %s/%s: %w", t.Symbol, t.TradeDate, err)
		}
	}

	dailyStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dailies (run_id, symbol, trade_date, action, reason,
			or_high, or_low, or_close, day_high_after_or, max_potential_pct,
			confidence, traded, entry_price, exit_price, exit_reason, pnl_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing daily insert: %w", err)
	}
	defer dailyStmt.Close()

	for _, d := range run.Dailies {
		traded := 0
		if d.Traded {
			traded = 1
		}
		_, err := dailyStmt.ExecContext(ctx,
			run.ID, d.Symbol, d.TradeDate, string(d.Action), d.Reason,
			d.ORHigh, d.ORLow, d.ORClose, d.DayHighAfterOR, d.MaxPotentialPct,
			d.Confidence, traded, d.EntryPrice, d.ExitPrice, string(d.ExitReason), d.PnLPct,
		)
		if err != nil {
			return fmt.Errorf("inserting daily %s/%s: %w", d.Symbol, d.TradeDate, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run header by ID. Trades and Dailies are not loaded;
// use TradesForRun and DailiesForRun.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.BacktestRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, start_date, end_date, symbols, created_at, skipped_symbol_days, stats
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns run headers ordered newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.BacktestRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_date, end_date, symbols, created_at, skipped_symbol_days, stats
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.BacktestRun, error) {
	var (
		run       domain.BacktestRun
		symbols   string
		createdAt string
		stats     string
	)
	if err := row.Scan(&run.ID, &run.StartDate, &run.EndDate, &symbols, &createdAt, &run.SkippedSymbolDays, &stats); err != nil {
		return nil, err
	}
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		run.CreatedAt = ts
	}
	if err := json.Unmarshal([]byte(stats), &run.Stats); err != nil {
		return nil, fmt.Errorf("unmarshaling stats: %w", err)
	}
	return &run, nil
}

// TradesForRun returns the trade records of a run ordered by entry time.
func (s *SQLiteStore) TradesForRun(ctx context.Context, runID string) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, trade_date, entry_time, entry_price, entry_reason,
			exit_time, exit_price, exit_reason, stop_loss, take_profit, pnl_pct, holding_minutes
		FROM trades WHERE run_id = ? ORDER BY entry_time, symbol`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying trades for run %s: %w", runID, err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t          domain.TradeRecord
			entryTime  string
			exitTime   string
			exitReason string
		)
		if err := rows.Scan(&t.Symbol, &t.TradeDate, &entryTime, &t.EntryPrice, &t.EntryReason,
			&exitTime, &t.ExitPrice, &exitReason, &t.StopLoss, &t.TakeProfit, &t.PnLPct, &t.HoldingMinutes); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		t.ExitReason = domain.ExitReason(exitReason)
		if ts, err := time.Parse(time.RFC3339Nano, entryTime); err == nil {
			t.EntryTime = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, exitTime); err == nil {
			t.ExitTime = ts
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// DailiesForRun returns the daily records of a run ordered by date then symbol.
func (s *SQLiteStore) DailiesForRun(ctx context.Context, runID string) ([]domain.DailyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, trade_date, action, reason,
			or_high, or_low, or_close, day_high_after_or, max_potential_pct,
			confidence, traded, entry_price, exit_price, exit_reason, pnl_pct
		FROM dailies WHERE run_id = ? ORDER BY trade_date, symbol`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying dailies for run %s: %w", runID, err)
	}
	defer rows.Close()

	var dailies []domain.DailyRecord
	for rows.Next() {
		var (
			d          domain.DailyRecord
			action     string
			exitReason string
			traded     int
		)
		if err := rows.Scan(&d.Symbol, &d.TradeDate, &action, &d.Reason,
			&d.ORHigh, &d.ORLow, &d.ORClose, &d.DayHighAfterOR, &d.MaxPotentialPct,
			&d.Confidence, &traded, &d.EntryPrice, &d.ExitPrice, &exitReason, &d.PnLPct); err != nil {
			return nil, fmt.Errorf("scanning daily: %w", err)
		}
		d.Action = domain.DailyAction(action)
		d.ExitReason = domain.ExitReason(exitReason)
		d.Traded = traded != 0
		dailies = append(dailies, d)
	}
	return dailies, rows.Err()
}
