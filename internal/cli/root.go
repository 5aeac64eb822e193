// Package cli provides the command-line interface of options-lab.
package cli

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-lab/internal/analysis/indicators"
	"options-lab/internal/config"
	"options-lab/internal/logging"
	"options-lab/internal/marketdata"
	"options-lab/internal/metrics"
	"options-lab/internal/performance"
	"options-lab/internal/pricing"
	"options-lab/internal/risk"
	"options-lab/internal/store"
	"options-lab/internal/strategy"
	"options-lab/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. It is populated by the root
// command once flags are parsed.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Metrics    *metrics.Recorder
	Pricing    *pricing.Engine
	Composer   *strategy.Composer
	Simulator  *risk.Simulator
	Indicators *indicators.Engine
	Store      store.DataStore
	Market     marketdata.Source

	pool  *performance.WorkerPool
	cache marketdata.Cache
	now   func() time.Time
}

// NewApp wires every component from cfg. A store that cannot be opened is
// logged and left nil; commands that need it report that.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		now:     time.Now,
	}

	engine, err := pricing.NewEngine(cfg.Pricing, logger, app.Metrics)
	if err != nil {
		return nil, err
	}
	app.Pricing = engine
	app.Composer = strategy.NewComposer(logger, app.Metrics, cfg.Strategy.Shares)

	sim, err := risk.NewSimulator(cfg.Simulation, logger, app.Metrics)
	if err != nil {
		return nil, err
	}
	app.Simulator = sim

	app.pool = performance.NewWorkerPool(0)
	app.pool.Start()
	app.Indicators = indicators.NewDefaultEngine(app.pool)

	dataStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Store.Path).Msg("Failed to initialize store, some features may be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Store.Path).Msg("SQLite store initialized")
	}

	var candles marketdata.CandleReader
	if app.Store != nil {
		candles = app.Store
	}
	files := marketdata.NewFileSource(marketdata.FileConfig{
		Dir:         cfg.Market.SnapshotDir,
		DefaultRate: cfg.Analysis.RiskFreeRate,
		HistoryDays: cfg.Market.HistoryDays,
		HVWindow:    cfg.Analysis.HistoricalWindow,
		HVFallback:  cfg.Analysis.HistoricalVolFallback,
	}, candles, app.Indicators, logger)

	if cfg.Market.Redis.Addr != "" {
		app.cache = marketdata.NewRedisCache(marketdata.RedisConfig{
			Addr:     cfg.Market.Redis.Addr,
			Password: cfg.Market.Redis.Password,
			DB:       cfg.Market.Redis.DB,
			Prefix:   cfg.Market.Redis.Prefix,
		})
		logger.Debug().Str("addr", cfg.Market.Redis.Addr).Msg("Redis snapshot cache configured")
	} else {
		app.cache = marketdata.NewMemoryCache()
	}

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Market.RetryAttempts
	app.Market = marketdata.NewCachedSource(files, app.cache, cfg.Market.CacheTTL, retry, logger, app.Metrics)

	return app, nil
}

// Close releases the worker pools, cache and store.
func (a *App) Close() error {
	if a.Simulator != nil {
		a.Simulator.Close()
	}
	if a.pool != nil {
		a.pool.Stop()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// NewRootCmd creates the root command for the CLI. Configuration is loaded
// from --config before any subcommand runs.
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "optlab",
		Short: "Options pricing, strategy and risk analytics",
		Long: `optlab prices European options, composes multi-leg strategies and
measures their risk with Monte Carlo simulation and stress scenarios.

Market inputs come from flags or from snapshot files in the configured
snapshot directory (see 'optlab config show').`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}

			logger := logging.NewLoggerWithConfig(cfg.Logging.LogConfig(cfg.Dir))
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logger = logger.Level(zerolog.DebugLevel)
			}

			wired, err := NewApp(cfg, logger)
			if err != nil {
				return err
			}
			*app = *wired
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-lab)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addOptionsCommands(rootCmd, app)
	addStrategyCommands(rootCmd, app)
	addRiskCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	rootCmd.AddCommand(newServeCmd(app))
	addHelpCommands(rootCmd)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("optlab v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.ConfigFile(app.Config.Dir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"dir": app.Config.Dir, "file": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Analysis")
	output.Printf("  Risk-free rate:     %s\n", FormatRate(cfg.Analysis.RiskFreeRate))
	output.Printf("  Default vol:        %s\n", FormatRate(cfg.Analysis.DefaultVolatility))
	output.Printf("  HV window:          %d days (fallback %s)\n", cfg.Analysis.HistoricalWindow, FormatRate(cfg.Analysis.HistoricalVolFallback))
	output.Printf("  Expiration days:    %d..%d (default %d)\n", cfg.Options.MinDaysToExpiration, cfg.Options.MaxDaysToExpiration, cfg.Options.DefaultDaysToExpiration)
	output.Println()

	output.Bold("Pricing")
	output.Printf("  IV bounds:          %.3f..%.1f\n", cfg.Pricing.VolLowerBound, cfg.Pricing.VolUpperBound)
	output.Printf("  IV fallback:        %s\n", FormatRate(cfg.Pricing.FallbackVolatility))
	output.Println()

	output.Bold("Simulation")
	output.Printf("  Paths:              %d (max %d)\n", cfg.Simulation.DefaultPaths, cfg.Simulation.MaxPaths)
	output.Printf("  Steps:              %d\n", cfg.Simulation.Steps)
	if cfg.Simulation.Seed != 0 {
		output.Printf("  Seed:               %d\n", cfg.Simulation.Seed)
	}
	output.Println()

	output.Bold("Strategy")
	output.Printf("  Strike ladder:      %d strikes, ±%.0f%%\n", cfg.Strategy.NumStrikes, cfg.Strategy.StrikeRange*100)
	output.Printf("  Shares:             %d\n", cfg.Strategy.Shares)
	output.Println()

	output.Bold("Risk")
	for _, sc := range cfg.Risk.Scenarios {
		output.Printf("  %-18s  price %+.0f%%  vol %+.0f%%\n", sc.Name, sc.PriceChange*100, sc.VolChange*100)
	}
	output.Println()

	output.Bold("Market data")
	output.Printf("  Default symbol:     %s\n", cfg.Market.Symbol)
	output.Printf("  Snapshots:          %s\n", cfg.Market.SnapshotDir)
	output.Printf("  Cache TTL:          %s\n", cfg.Market.CacheTTL)
	if cfg.Market.Redis.Addr != "" {
		output.Printf("  Redis:              %s\n", cfg.Market.Redis.Addr)
	}
	output.Printf("  Store:              %s\n", cfg.Store.Path)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:            %s\n", cfg.ServerAddr())
	output.Printf("  Log level:          %s\n", cfg.Logging.Level)
}
