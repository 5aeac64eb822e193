// Package config provides configuration management for options-lab.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/logging"
	"options-lab/internal/models"
	"options-lab/internal/pricing"
	"options-lab/internal/risk"
	"options-lab/internal/validation"
)

// EnvPrefix prefixes every environment override, e.g. OPTLAB_ANALYSIS_RISK_FREE_RATE.
const EnvPrefix = "OPTLAB"

// Config holds all application configuration.
type Config struct {
	Analysis   AnalysisConfig `mapstructure:"analysis"`
	Options    OptionsConfig  `mapstructure:"options"`
	Pricing    pricing.Config `mapstructure:"pricing"`
	Simulation risk.Config    `mapstructure:"simulation"`
	Strategy   StrategyConfig `mapstructure:"strategy"`
	Risk       RiskConfig     `mapstructure:"risk"`
	Market     MarketConfig   `mapstructure:"market"`
	Store      StoreConfig    `mapstructure:"store"`
	Server     ServerConfig   `mapstructure:"server"`
	Logging    LoggingConfig  `mapstructure:"logging"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// AnalysisConfig holds market defaults used when a snapshot lacks a value.
type AnalysisConfig struct {
	RiskFreeRate          float64 `mapstructure:"risk_free_rate" default:"0.05" validate:"gte=0,lte=1"`
	DefaultVolatility     float64 `mapstructure:"default_volatility" default:"0.30" validate:"gte=0,lte=5"`
	HistoricalVolFallback float64 `mapstructure:"historical_vol_fallback" default:"0.2" validate:"gt=0,lte=5"`
	HistoricalWindow      int     `mapstructure:"historical_window" default:"252" validate:"gte=2"`
}

// OptionsConfig bounds the expirations accepted by the CLI and API.
type OptionsConfig struct {
	MinDaysToExpiration     int `mapstructure:"min_days_to_expiration" default:"1" validate:"gte=0"`
	MaxDaysToExpiration     int `mapstructure:"max_days_to_expiration" default:"365" validate:"gtefield=MinDaysToExpiration"`
	DefaultDaysToExpiration int `mapstructure:"default_days_to_expiration" default:"30" validate:"gtefield=MinDaysToExpiration,ltefield=MaxDaysToExpiration"`
}

// StrategyConfig holds strike ladder and share defaults.
type StrategyConfig struct {
	StrikeRange float64 `mapstructure:"strike_range" default:"0.2" validate:"gt=0,lt=1"`
	NumStrikes  int     `mapstructure:"num_strikes" default:"5" validate:"gte=2"`
	Shares      int     `mapstructure:"shares" default:"100" validate:"gte=100"`
}

// RiskConfig holds stress scenarios and report settings. ScenariosFile,
// when set, replaces the inline list. VaRConfidence lists the tail
// probabilities of a report's VaR/CVaR table.
type RiskConfig struct {
	Scenarios           []models.StressScenario `mapstructure:"scenarios"`
	ScenariosFile       string                  `mapstructure:"scenarios_file"`
	VaRConfidence       []float64               `mapstructure:"var_confidence_levels"`
	PortfolioVolatility float64                 `mapstructure:"portfolio_volatility" default:"0.30" validate:"gt=0,lte=5"`
}

// MarketConfig controls snapshot loading and caching.
type MarketConfig struct {
	Symbol        string        `mapstructure:"symbol" default:"GGAL" validate:"required"`
	SnapshotDir   string        `mapstructure:"snapshot_dir"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" default:"60s" validate:"gte=0"`
	Timeout       time.Duration `mapstructure:"timeout" default:"30s" validate:"gt=0"`
	RetryAttempts int           `mapstructure:"retry_attempts" default:"3" validate:"gte=1"`
	HistoryDays   int           `mapstructure:"history_days" default:"365" validate:"gte=2"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// RedisConfig enables the Redis snapshot cache when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Prefix   string `mapstructure:"prefix" default:"optlab:snapshot:"`
}

// StoreConfig locates the SQLite database. A relative path is resolved
// against the config directory.
type StoreConfig struct {
	Path string `mapstructure:"path" default:"optlab.db" validate:"required"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host" default:"127.0.0.1"`
	Port         int           `mapstructure:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" default:"15s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" default:"60s"`
	RateLimit    float64       `mapstructure:"rate_limit" default:"20" validate:"gt=0"`
	Burst        int           `mapstructure:"burst" default:"40" validate:"gte=1"`
}

// LoggingConfig mirrors logging.LogConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level" default:"info" validate:"oneof=trace debug info warn error disabled"`
	JSON       bool   `mapstructure:"json"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size" default:"100" validate:"gte=1"`
	MaxBackups int    `mapstructure:"max_backups" default:"7" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" default:"30" validate:"gte=0"`
}

// LogConfig converts the section into a logging configuration.
func (l LoggingConfig) LogConfig(configDir string) logging.LogConfig {
	cfg := logging.DefaultLogConfig()
	cfg.Level = l.Level
	cfg.JSON = l.JSON
	cfg.File = l.File
	if l.FilePath != "" {
		cfg.FilePath = l.FilePath
	} else if configDir != "" {
		cfg.FilePath = filepath.Join(configDir, "logs", "optlab.log")
	}
	cfg.MaxSize = l.MaxSize
	cfg.MaxBackups = l.MaxBackups
	cfg.MaxAge = l.MaxAge
	return cfg
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.Risk.Scenarios = risk.DefaultScenarios()
	cfg.Risk.VaRConfidence = []float64{0.01, 0.05, 0.10}
	return cfg
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "options-lab")
	}
	return filepath.Join(home, ".config", "options-lab")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by the commented template and defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env in the config dir, then the working directory; existing
	// variables win.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	cfg := Default()
	cfg.Dir = configDir

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func newViper(configDir, name string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := newViper(configDir, name)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	// Decoding into a populated slice keeps trailing defaults.
	if v.IsSet("risk.scenarios") {
		target.Risk.Scenarios = nil
	}
	if v.IsSet("risk.var_confidence_levels") {
		target.Risk.VaRConfidence = nil
	}
	return v.Unmarshal(target)
}

// AutomaticEnv only applies to keys viper already knows, so every scalar
// key is registered up front.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"analysis.risk_free_rate", "analysis.default_volatility", "analysis.historical_vol_fallback",
		"analysis.historical_window",
		"pricing.fallback_volatility", "pricing.tolerance", "pricing.max_iterations",
		"simulation.default_paths", "simulation.max_paths", "simulation.steps", "simulation.seed",
		"simulation.workers",
		"strategy.strike_range", "strategy.num_strikes", "strategy.shares",
		"risk.scenarios_file",
		"market.symbol", "market.snapshot_dir", "market.cache_ttl", "market.redis.addr",
		"market.redis.password", "market.redis.db",
		"store.path",
		"server.host", "server.port",
		"logging.level", "logging.json", "logging.file", "logging.file_path",
	} {
		_ = v.BindEnv(key)
	}
}

// resolve expands relative paths and loads the scenarios file.
func (c *Config) resolve() error {
	if c.Store.Path != "" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(c.Dir, c.Store.Path)
	}
	if c.Market.SnapshotDir == "" {
		c.Market.SnapshotDir = filepath.Join(c.Dir, "snapshots")
	} else if !filepath.IsAbs(c.Market.SnapshotDir) {
		c.Market.SnapshotDir = filepath.Join(c.Dir, c.Market.SnapshotDir)
	}
	if c.Risk.ScenariosFile != "" {
		path := c.Risk.ScenariosFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.Dir, path)
		}
		scenarios, err := risk.LoadScenarios(path)
		if err != nil {
			return fmt.Errorf("loading stress scenarios: %w", err)
		}
		c.Risk.Scenarios = scenarios
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, err)
	}
	if c.Simulation.MaxPaths < 1000 {
		return fmt.Errorf("%w: simulation.max_paths must be at least 1000", apperrors.ErrConfigInvalid)
	}
	for _, level := range c.Risk.VaRConfidence {
		if level <= 0 || level >= 1 {
			return fmt.Errorf("%w: var confidence level %v must be in (0, 1)", apperrors.ErrConfigInvalid, level)
		}
	}
	if err := risk.ValidateScenarios(c.Risk.Scenarios); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, err)
	}
	return nil
}

// ServerAddr returns host:port.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
