package httpapi

import (
	"time"

	"ortrader/internal/domain"
)

// RunSummary is the JSON representation of a run header: identity, requested
// grid, and aggregate statistics, without the per-trade detail.
type RunSummary struct {
	ID                string            `json:"id"`
	StartDate         string            `json:"start_date"`
	EndDate           string            `json:"end_date"`
	Symbols           []string          `json:"symbols"`
	CreatedAt         time.Time         `json:"created_at"`
	SkippedSymbolDays int               `json:"skipped_symbol_days"`
	Stats             domain.Statistics `json:"stats"`
}

// RunsResponse lists run summaries, newest first.
type RunsResponse struct {
	Runs []RunSummary `json:"runs"`
}

// TradesResponse holds all trade records of one run.
type TradesResponse struct {
	RunID  string               `json:"run_id"`
	Trades []domain.TradeRecord `json:"trades"`
}

// DailiesResponse holds all daily records of one run.
type DailiesResponse struct {
	RunID   string               `json:"run_id"`
	Dailies []domain.DailyRecord `json:"dailies"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toRunSummary(run *domain.BacktestRun) RunSummary {
	return RunSummary{
		ID:                run.ID,
		StartDate:         run.StartDate,
		EndDate:           run.EndDate,
		Symbols:           run.Symbols,
		CreatedAt:         run.CreatedAt,
		SkippedSymbolDays: run.SkippedSymbolDays,
		Stats:             run.Stats,
	}
}
