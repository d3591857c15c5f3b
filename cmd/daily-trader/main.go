// Command daily-trader runs the live daily cycle: every trading day at the
// decision cutoff it evaluates the watchlist and submits entries through the
// Alpaca trading API. With paper_mode enabled it points at the Alpaca paper
// endpoint, so the full order path is exercised without real money.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ortrader/internal/broker"
	"ortrader/internal/config"
	"ortrader/internal/engine"
	"ortrader/internal/marketdata"
	"ortrader/internal/policy/builtins"
	"ortrader/internal/store"
	"ortrader/internal/util"
)

const paperBaseURL = "https://paper-api.alpaca.markets"

func main() {
	cfgPath := flag.String("config", "", "config file path (default config/ortrader.yaml)")
	testRun := flag.Bool("test", false, "run one cycle for today immediately and exit")
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

	// Dual logger: stdout + /tmp log file, so a detached daemon stays
	// inspectable after the terminal goes away.
	logFileName := fmt.Sprintf("/tmp/daily-trader-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	clock, err := util.NewSessionClock(cfg.Session.Timezone, cfg.Session.Open, cfg.Session.Close, cfg.Session.CutoffMinutes)
	if err != nil {
		log.Fatalf("bad session config: %v", err)
	}

	baseURL := cfg.Alpaca.BaseURL
	if cfg.Trading.PaperMode {
		baseURL = paperBaseURL
	}
	b := broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, baseURL)

	upstream := marketdata.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, "iex", 200)
	provider := marketdata.NewCachingProvider(upstream, store.NewParquetStore(cfg.Storage.DataDir))

	risk := engine.NewRiskManager(cfg.Trading.MaxPositionPct, cfg.Trading.MaxDailyLossPct)
	eng := engine.NewDailyEngine(provider, builtins.NewORMomentum(), b, clock, risk, cfg.Backtest)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("daily-trader starting",
		"paper", cfg.Trading.PaperMode,
		"watchlist", len(cfg.Symbols.Watchlist),
		"test", *testRun)

	if *testRun {
		runCycle(ctx, eng, clock, cfg.Symbols.Watchlist, time.Now())
		return
	}

	for {
		next := nextDecision(clock, time.Now())
		logger.Info("sleeping until next decision", "at", next)
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-time.After(time.Until(next)):
		}
		runCycle(ctx, eng, clock, cfg.Symbols.Watchlist, next)

		// Intraday strategy: flatten shortly before the close.
		_, sessionClose, err := clock.Window(clock.TradeDate(next))
		if err != nil {
			continue
		}
		flattenAt := sessionClose.Add(-5 * time.Minute)
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-time.After(time.Until(flattenAt)):
		}
		if err := eng.FlattenAll(ctx); err != nil {
			logger.Error("flatten", "err", err)
		}
	}
}

func runCycle(ctx context.Context, eng *engine.DailyEngine, clock *util.SessionClock, watchlist []string, at time.Time) {
	tradeDate := clock.TradeDate(at)
	orders, err := eng.RunOnce(ctx, watchlist, tradeDate)
	if err != nil {
		log.Printf("cycle failed for %s: %v", tradeDate, err)
		return
	}
	log.Printf("cycle complete for %s: %d orders submitted", tradeDate, len(orders))
}

// nextDecision returns the next weekday decision cutoff strictly after now.
// Exchange holidays are not modelled; a holiday cycle finds no bars and
// submits nothing.
func nextDecision(clock *util.SessionClock, now time.Time) time.Time {
	day := now.In(clock.Location())
	for {
		if clock.IsWeekday(day) {
			cutoff, err := clock.DecisionTime(clock.TradeDate(day))
			if err == nil && cutoff.After(now) {
				return cutoff
			}
		}
		day = day.AddDate(0, 0, 1)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, clock.Location())
	}
}
