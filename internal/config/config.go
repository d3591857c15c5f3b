package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the ortrader platform. Every
// value the simulation core consumes is injected from here at run start;
// nothing inside the core reads the environment.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Session  SessionConfig  `yaml:"session"`
	Backtest BacktestConfig `yaml:"backtest"`
	Stops    StopConfig     `yaml:"stops"`
	Symbols  SymbolsConfig  `yaml:"symbols"`
	Trading  TradingConfig  `yaml:"trading"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration for the results API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// SessionConfig defines the regular trading session and the decision cutoff.
// Times are wall-clock in the session timezone (exchange local time).
type SessionConfig struct {
	Timezone      string `yaml:"timezone"`       // e.g. "America/New_York"
	Open          string `yaml:"open"`           // "09:30"
	Close         string `yaml:"close"`          // "16:00"
	CutoffMinutes int    `yaml:"cutoff_minutes"` // decision offset from open, e.g. 15
	Timeframe     string `yaml:"timeframe"`      // execution bar interval, e.g. "15m"
}

// BacktestConfig holds orchestration parameters.
type BacktestConfig struct {
	// MaxDailyTrades is the daily selection cap K: at most this many symbols
	// are simulated through the full exit walk per day.
	MaxDailyTrades int `yaml:"max_daily_trades"`
	// Priority ranks symbols ahead of confidence when the cap binds; symbols
	// earlier in the list win ties deterministically.
	Priority []string `yaml:"priority"`
	// HistoryDays is the warmup window fetched before the start date so
	// indicators have enough context on day one.
	HistoryDays int `yaml:"history_days"`
	// SlippagePct is deducted from every trade's PnL percent.
	SlippagePct float64 `yaml:"slippage_pct"`
	// MaxWorkers bounds per-day symbol evaluation concurrency.
	MaxWorkers int `yaml:"max_workers"`
}

// StopConfig parameterizes exit levels. The policy's returned levels are
// authoritative; these percentages are the fallback when a policy returns
// zero levels, plus the trailing-stop behaviour which is always owned by the
// simulator.
type StopConfig struct {
	StopLossPct           float64 `yaml:"stop_loss_pct"`           // e.g. 2.0
	TakeProfitPct         float64 `yaml:"take_profit_pct"`         // e.g. 4.0
	TrailingActivationPct float64 `yaml:"trailing_activation_pct"` // unrealized gain that arms the trail
	TrailingDistancePct   float64 `yaml:"trailing_distance_pct"`   // ratchet distance below close
}

// SymbolsConfig is the symbol universe plus per-symbol parameter overrides.
// Overrides keep the session simulator symbol-agnostic: they are resolved
// once at run start, never special-cased inside the core.
type SymbolsConfig struct {
	Watchlist []string              `yaml:"watchlist"`
	Overrides map[string]StopConfig `yaml:"overrides"`
}

// TradingConfig defines live/paper execution risk parameters.
type TradingConfig struct {
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
	PaperMode       bool    `yaml:"paper_mode"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config with the stock parameters of the opening-range
// strategy: NYSE regular hours, a 15-minute decision cutoff, and a cap of
// five positions per day.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/ortrader.db",
		},
		Server: Server{Host: "127.0.0.1", Port: 8750},
		Logging: Logging{Level: "info", Format: "text"},
		Session: SessionConfig{
			Timezone:      "America/New_York",
			Open:          "09:30",
			Close:         "16:00",
			CutoffMinutes: 15,
			Timeframe:     "15m",
		},
		Backtest: BacktestConfig{
			MaxDailyTrades: 5,
			HistoryDays:    30,
			SlippagePct:    0.05,
			MaxWorkers:     4,
		},
		Stops: StopConfig{
			StopLossPct:           2.0,
			TakeProfitPct:         4.0,
			TrailingActivationPct: 2.0,
			TrailingDistancePct:   1.5,
		},
		Trading: TradingConfig{
			MaxPositionPct:  0.20,
			MaxDailyLossPct: 0.03,
			PaperMode:       true,
		},
	}
}

// Load reads the YAML configuration file at the given path on top of the
// defaults, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StopsFor resolves the effective stop parameters for a symbol: the
// per-symbol override when present, otherwise the global defaults. Zero
// fields in an override fall back to the global value so partial overrides
// stay convenient.
func (c *Config) StopsFor(symbol string) StopConfig {
	s := c.Stops
	o, ok := c.Symbols.Overrides[symbol]
	if !ok {
		return s
	}
	if o.StopLossPct > 0 {
		s.StopLossPct = o.StopLossPct
	}
	if o.TakeProfitPct > 0 {
		s.TakeProfitPct = o.TakeProfitPct
	}
	if o.TrailingActivationPct > 0 {
		s.TrailingActivationPct = o.TrailingActivationPct
	}
	if o.TrailingDistancePct > 0 {
		s.TrailingDistancePct = o.TrailingDistancePct
	}
	return s
}

func (c *Config) validate() error {
	if c.Backtest.MaxDailyTrades < 1 {
		return fmt.Errorf("backtest.max_daily_trades must be >= 1, got %d", c.Backtest.MaxDailyTrades)
	}
	if c.Session.CutoffMinutes < 0 {
		return fmt.Errorf("session.cutoff_minutes must be >= 0, got %d", c.Session.CutoffMinutes)
	}
	if c.Stops.TrailingDistancePct < 0 || c.Stops.TrailingActivationPct < 0 {
		return fmt.Errorf("stops trailing parameters must be >= 0")
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("ORTRADER_MAX_DAILY_TRADES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Backtest.MaxDailyTrades = n
		}
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
