// Package config loads the application configuration from an optional
// JSON file, then applies environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mt5-fvg-bot/internal/cache"
	"mt5-fvg-bot/internal/confluence"
	"mt5-fvg-bot/internal/controller"
	"mt5-fvg-bot/internal/fvg"
	"mt5-fvg-bot/internal/quality"
	"mt5-fvg-bot/internal/risk"
	"mt5-fvg-bot/internal/session"
	"mt5-fvg-bot/internal/signal"
	"mt5-fvg-bot/internal/sizing"
	"mt5-fvg-bot/internal/store"
)

// Config is the full application configuration.
type Config struct {
	Bridge     BridgeConfig        `json:"bridge"`
	Controller controller.Config   `json:"controller"`
	Detector   fvg.DetectorConfig  `json:"detector"`
	Confluence confluence.Config   `json:"confluence"`
	Quality    quality.Weights     `json:"quality_weights"`
	Signal     signal.Config       `json:"signal"`
	Risk       risk.Config         `json:"risk"`
	Sizing     sizing.Config       `json:"sizing"`
	Sessions   []session.Window    `json:"sessions"`
	Cycle      session.CycleConfig `json:"cycle"`
	Database   DatabaseConfig      `json:"database"`
	Redis      RedisConfig         `json:"redis"`
	Server     ServerConfig        `json:"server"`
	Logging    LoggingConfig       `json:"logging"`
	ModelPath  string              `json:"model_path"`
}

// BridgeConfig points at the local MT5 bridge.
type BridgeConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MockMode       bool   `json:"mock_mode"` // simulated data, no terminal needed
}

// DatabaseConfig holds PostgreSQL settings; disabled skips the store
// entirely.
type DatabaseConfig struct {
	Enabled bool `json:"enabled"`
	store.Config
}

// RedisConfig holds cache settings.
type RedisConfig struct {
	Enabled bool `json:"enabled"`
	cache.Config
}

// ServerConfig holds the API listener settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // console writer when false
}

// Load reads config.json when present and applies env overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}
	cfg := defaults()
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Bridge: BridgeConfig{
			BaseURL:        "http://127.0.0.1:5555",
			TimeoutSeconds: 10,
		},
		Controller: controller.DefaultConfig(),
		Detector:   fvg.DefaultDetectorConfig(),
		Confluence: confluence.DefaultConfig(),
		Quality:    quality.DefaultWeights(),
		Signal:     signal.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
		Sizing:     sizing.DefaultConfig(),
		Sessions:   session.DefaultWindows(),
		Cycle:      session.DefaultCycleConfig(),
		Database:   DatabaseConfig{Config: store.DefaultConfig()},
		Redis:      RedisConfig{Config: cache.DefaultConfig()},
		Server:     ServerConfig{Host: "127.0.0.1", Port: 8080},
		Logging:    LoggingConfig{Level: "info", JSONFormat: true},
		ModelPath:  "fill_model.json",
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Bridge.BaseURL = getEnvOrDefault("MT5_BRIDGE_URL", cfg.Bridge.BaseURL)
	cfg.Bridge.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.Bridge.MockMode)
	cfg.Controller.DryRun = getEnvBoolOrDefault("TRADING_DRY_RUN", cfg.Controller.DryRun)

	if symbols := os.Getenv("TRADING_SYMBOLS"); symbols != "" {
		cfg.Controller.Symbols = splitTrim(symbols)
	}

	cfg.Database.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnvOrDefault("DATABASE_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DATABASE_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DATABASE_NAME", cfg.Database.Database)

	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Server.Host = getEnvOrDefault("WEB_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvIntOrDefault("WEB_PORT", cfg.Server.Port)

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)

	cfg.ModelPath = getEnvOrDefault("FILL_MODEL_PATH", cfg.ModelPath)
}

// Validate rejects configurations that would misbehave at runtime.
func (c *Config) Validate() error {
	if err := c.Quality.Validate(); err != nil {
		return err
	}
	if err := session.ValidateWindows(c.Sessions); err != nil {
		return err
	}
	if c.Signal.MinQuality < 0 || c.Signal.MinQuality > 1 {
		return fmt.Errorf("signal min_quality %.2f outside [0,1]", c.Signal.MinQuality)
	}
	if c.Signal.MinProbability < 0 || c.Signal.MinProbability > 1 {
		return fmt.Errorf("signal min_probability %.2f outside [0,1]", c.Signal.MinProbability)
	}
	if c.Signal.MaxPerHour <= 0 {
		return fmt.Errorf("signal max_per_hour must be positive")
	}
	if len(c.Controller.Symbols) == 0 {
		return fmt.Errorf("no trading symbols configured")
	}
	for _, tf := range c.Controller.Timeframes {
		if !tf.Valid() {
			return fmt.Errorf("unknown timeframe %q", tf)
		}
	}
	if c.Sizing.RiskPerTradePct <= 0 || c.Sizing.RiskPerTradePct > 5 {
		return fmt.Errorf("risk_per_trade_pct %.2f outside (0,5]", c.Sizing.RiskPerTradePct)
	}
	return nil
}

// BridgeTimeout returns the bridge HTTP timeout as a duration.
func (c *Config) BridgeTimeout() time.Duration {
	return time.Duration(c.Bridge.TimeoutSeconds) * time.Second
}

// GenerateSample writes a fully populated config file for operators to
// edit.
func GenerateSample(path string) error {
	data, err := json.MarshalIndent(defaults(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBoolOrDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
