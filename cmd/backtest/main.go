// Command backtest runs the opening-range strategy over a historical window
// and writes the results to the report directory and the run database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ortrader/internal/backtest"
	"ortrader/internal/config"
	"ortrader/internal/marketdata"
	"ortrader/internal/policy/builtins"
	"ortrader/internal/report"
	"ortrader/internal/store"
	"ortrader/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "config file path (default config/ortrader.yaml)")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default: config watchlist)")
	startFlag := flag.String("start", "", "start date YYYY-MM-DD")
	endFlag := flag.String("end", "", "end date YYYY-MM-DD (default: start of today)")
	daysFlag := flag.Int("days", 0, "backtest the last N calendar days instead of -start/-end")
	outFlag := flag.String("out", "reports", "report output directory")
	flag.Parse()

	path := *cfgPath
	if path == "" {
		path = "config/ortrader.yaml"
		if p := os.Getenv("ORTRADER_CONFIG"); p != "" {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	symbols := cfg.Symbols.Watchlist
	if *symbolsFlag != "" {
		symbols = nil
		for _, s := range strings.Split(*symbolsFlag, ",") {
			if s = strings.TrimSpace(strings.ToUpper(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols: pass -symbols or set symbols.watchlist in config")
	}

	startDate, endDate, err := resolveWindow(*startFlag, *endFlag, *daysFlag)
	if err != nil {
		log.Fatalf("bad date range: %v", err)
	}

	clock, err := util.NewSessionClock(cfg.Session.Timezone, cfg.Session.Open, cfg.Session.Close, cfg.Session.CutoffMinutes)
	if err != nil {
		log.Fatalf("bad session config: %v", err)
	}

	upstream := marketdata.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, "iex", 200)
	provider := marketdata.NewCachingProvider(upstream, store.NewParquetStore(cfg.Storage.DataDir))

	sim := backtest.NewSessionSimulator(clock, builtins.NewORMomentum(), cfg.StopsFor, cfg.Backtest.SlippagePct)
	orch := backtest.NewOrchestrator(provider, sim, clock, cfg.Backtest)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting backtest", "symbols", symbols, "start", startDate, "end", endDate)
	run, err := orch.Run(ctx, symbols, startDate, endDate)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	runDir, err := report.NewWriter(*outFlag).WriteAll(run)
	if err != nil {
		log.Fatalf("writing report: %v", err)
	}

	if cfg.Storage.SQLitePath != "" {
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening run database: %v", err)
		}
		defer db.Close()
		if err := db.SaveRun(ctx, run); err != nil {
			log.Fatalf("saving run: %v", err)
		}
	}

	fmt.Println(report.Summary(run))
	fmt.Printf("report written to %s\n", runDir)
}

// resolveWindow turns the -start/-end/-days flags into a concrete date range.
func resolveWindow(start, end string, days int) (string, string, error) {
	const layout = "2006-01-02"
	now := time.Now()

	if days > 0 {
		if start != "" || end != "" {
			return "", "", fmt.Errorf("-days is exclusive with -start/-end")
		}
		return now.AddDate(0, 0, -days).Format(layout), now.Format(layout), nil
	}
	if start == "" {
		return "", "", fmt.Errorf("pass -start or -days")
	}
	if _, err := time.Parse(layout, start); err != nil {
		return "", "", fmt.Errorf("start: %w", err)
	}
	if end == "" {
		end = now.Format(layout)
	} else if _, err := time.Parse(layout, end); err != nil {
		return "", "", fmt.Errorf("end: %w", err)
	}
	if end < start {
		return "", "", fmt.Errorf("end %s before start %s", end, start)
	}
	return start, end, nil
}
