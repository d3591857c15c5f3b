// Command fetch-bars prefills the Parquet bar cache so backtests can run
// offline. It fetches intraday, daily, and weekly history for the watchlist
// up to the latest finished trading day.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ortrader/internal/config"
	"ortrader/internal/domain"
	"ortrader/internal/marketdata"
	"ortrader/internal/store"
	"ortrader/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "config file path (default config/ortrader.yaml)")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default: config watchlist)")
	daysFlag := flag.Int("days", 90, "calendar days of intraday history to fetch")
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

	end, err := marketdata.LatestFinishedTradingDay(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	if err != nil {
		log.Fatalf("resolving latest trading day: %v", err)
	}
	end = end.Add(24 * time.Hour) // include the full final session

	upstream := marketdata.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, "iex", 200)
	provider := marketdata.NewCachingProvider(upstream, store.NewParquetStore(cfg.Storage.DataDir))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	windows := []struct {
		timeframe domain.Timeframe
		start     time.Time
	}{
		{domain.Timeframe15Min, end.AddDate(0, 0, -*daysFlag)},
		{domain.TimeframeDaily, end.AddDate(0, 0, -365)},
		{domain.TimeframeWeekly, end.AddDate(-2, 0, 0)},
	}

	for _, symbol := range symbols {
		for _, w := range windows {
			bars, err := provider.GetBars(ctx, symbol, w.timeframe, w.start, end)
			if err != nil {
				if ctx.Err() != nil {
					logger.Info("interrupted")
					return
				}
				logger.Error("fetch failed", "symbol", symbol, "timeframe", w.timeframe, "err", err)
				continue
			}
			logger.Info("cached", "symbol", symbol, "timeframe", w.timeframe, "bars", len(bars))
		}
	}
}
