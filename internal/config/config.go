package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for foresight.
type Config struct {
	Storage    Storage    `yaml:"storage"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	Providers  Providers  `yaml:"providers"`
	FX         FX         `yaml:"fx"`
	Simulation Simulation `yaml:"simulation"`
	Refresh    Refresh    `yaml:"refresh"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Addr returns host:port.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Providers configures the upstream price-history sources.
type Providers struct {
	CoinGecko     CoinGecko     `yaml:"coingecko"`
	CryptoCompare CryptoCompare `yaml:"cryptocompare"`
	Alpaca        Alpaca        `yaml:"alpaca"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	StaleOK       bool          `yaml:"stale_ok"`
}

// CoinGecko holds the CoinGecko market-chart endpoint settings.
type CoinGecko struct {
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// CryptoCompare holds the CryptoCompare histoday endpoint settings.
type CryptoCompare struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Alpaca holds credentials for the Alpaca market-data API. Equity history is
// disabled when no key is configured.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// FX configures the currency rate provider.
type FX struct {
	Currencies []string      `yaml:"currencies"`
	TTL        time.Duration `yaml:"ttl"`
}

// Simulation holds request limits and Monte-Carlo settings.
type Simulation struct {
	DefaultPaths     int     `yaml:"default_paths"`
	MinPaths         int     `yaml:"min_paths"`
	MaxPaths         int     `yaml:"max_paths"`
	MaxForecastDays  int     `yaml:"max_forecast_days"`
	MaxScenarioYears float64 `yaml:"max_scenario_years"`
	Workers          int     `yaml:"workers"`
	SampleEvery      int     `yaml:"sample_every"`
	// Seed fixes the random streams; 0 draws a fresh seed at startup.
	Seed uint64 `yaml:"seed"`
}

// Refresh configures the periodic history refresh job.
type Refresh struct {
	Schedule  string   `yaml:"schedule"`
	Assets    []string `yaml:"assets"`
	RangeDays int      `yaml:"range_days"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/foresight.db",
		},
		Server: Server{
			Host:       "0.0.0.0",
			Port:       8080,
			CORSOrigin: "*",
		},
		Logging: Logging{Level: "info", Format: "json"},
		Providers: Providers{
			CoinGecko: CoinGecko{
				BaseURL:         "https://api.coingecko.com",
				RateLimitPerMin: 30,
			},
			CryptoCompare: CryptoCompare{BaseURL: "https://min-api.cryptocompare.com"},
			Alpaca:        Alpaca{Feed: "iex"},
			CacheTTL:      10 * time.Minute,
			StaleOK:       true,
		},
		FX: FX{
			Currencies: []string{"EUR", "GBP", "INR", "JPY"},
			TTL:        time.Hour,
		},
		Simulation: Simulation{
			DefaultPaths:     300,
			MinPaths:         50,
			MaxPaths:         1000,
			MaxForecastDays:  180,
			MaxScenarioYears: 20,
			SampleEvery:      30,
		},
		Refresh: Refresh{
			Schedule:  "0 30 2 * * *",
			RangeDays: 365,
		},
	}
}

// Load reads the YAML configuration file at the given path over the defaults,
// then applies environment variable overrides and validates the result.
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to the defaults (plus
// environment overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// Path returns the config file path from FORESIGHT_CONFIG, or the default.
func Path() string {
	if p := os.Getenv("FORESIGHT_CONFIG"); p != "" {
		return p
	}
	return "config/foresight.yaml"
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	s := c.Simulation
	if s.MinPaths < 1 || s.MaxPaths < s.MinPaths {
		errs = append(errs, fmt.Errorf("simulation paths range [%d, %d] invalid", s.MinPaths, s.MaxPaths))
	}
	if s.DefaultPaths < s.MinPaths || s.DefaultPaths > s.MaxPaths {
		errs = append(errs, fmt.Errorf("simulation.default_paths %d outside [%d, %d]", s.DefaultPaths, s.MinPaths, s.MaxPaths))
	}
	if s.MaxForecastDays < 1 || s.MaxForecastDays > 180 {
		errs = append(errs, fmt.Errorf("simulation.max_forecast_days %d outside [1, 180]", s.MaxForecastDays))
	}
	if s.MaxScenarioYears <= 0 {
		errs = append(errs, fmt.Errorf("simulation.max_scenario_years must be positive"))
	}
	if c.Refresh.RangeDays < 2 {
		errs = append(errs, fmt.Errorf("refresh.range_days %d must be at least 2", c.Refresh.RangeDays))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("FRONTEND_ORIGIN"); v != "" {
		cfg.Server.CORSOrigin = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("CG_KEY"); v != "" {
		cfg.Providers.CoinGecko.APIKey = v
	}

	if v := os.Getenv("CRYPTOCOMPARE_API_KEY"); v != "" {
		cfg.Providers.CryptoCompare.APIKey = v
	}

	if v := os.Getenv("REFRESH_ASSETS"); v != "" {
		cfg.Refresh.Assets = strings.Split(v, ",")
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Providers.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Providers.Alpaca.APISecret = v
	}
}
