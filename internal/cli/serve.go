package cli

import (
	"github.com/spf13/cobra"

	"options-lab/internal/server"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pricing, strategy and risk API over HTTP",
		Long: `Start the JSON API. Pricing, strategy and risk endpoints live under
/api/v1; /healthz reports readiness and /metrics exposes Prometheus metrics.
The server stops gracefully on SIGINT or SIGTERM.`,
		Example: `  optlab serve
  optlab serve --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srvCfg := app.Config.Server
			if cmd.Flags().Changed("host") {
				srvCfg.Host, _ = cmd.Flags().GetString("host")
			}
			if cmd.Flags().Changed("port") {
				srvCfg.Port, _ = cmd.Flags().GetInt("port")
			}

			srv := server.New(server.Config{
				Host:         srvCfg.Host,
				Port:         srvCfg.Port,
				ReadTimeout:  srvCfg.ReadTimeout,
				WriteTimeout: srvCfg.WriteTimeout,
				RateLimit:    srvCfg.RateLimit,
				Burst:        srvCfg.Burst,
			}, app.serverDeps())

			output := NewOutput(cmd)
			if !output.IsJSON() {
				output.Info("Listening on http://%s", srv.Addr())
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().String("host", "", "listen host (default from config)")
	cmd.Flags().Int("port", 0, "listen port (default from config)")
	return cmd
}

func (a *App) serverDeps() server.Deps {
	cfg := a.Config
	return server.Deps{
		Pricing:   a.Pricing,
		Composer:  a.Composer,
		Simulator: a.Simulator,
		Market:    a.Market,
		Store:     a.Store,
		Metrics:   a.Metrics,
		Logger:    a.Logger,
		Defaults: server.Defaults{
			Rate:                cfg.Analysis.RiskFreeRate,
			Volatility:          cfg.Analysis.DefaultVolatility,
			Days:                cfg.Options.DefaultDaysToExpiration,
			MinDays:             cfg.Options.MinDaysToExpiration,
			MaxDays:             cfg.Options.MaxDaysToExpiration,
			StrikeRange:         cfg.Strategy.StrikeRange,
			NumStrikes:          cfg.Strategy.NumStrikes,
			PortfolioVolatility: cfg.Risk.PortfolioVolatility,
			Scenarios:           cfg.Risk.Scenarios,
			TailLevels:          cfg.Risk.VaRConfidence,
		},
	}
}
