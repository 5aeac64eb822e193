package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"options-lab/internal/analysis/indicators"
	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/risk"
	"options-lab/internal/store"
)

// addRiskCommands adds Monte Carlo, stress and portfolio commands.
func addRiskCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Simulate, stress test and report on strategy risk",
	}
	cmd.AddCommand(newSimulateCmd(app))
	cmd.AddCommand(newStressCmd(app))
	cmd.AddCommand(newPortfolioCmd(app))
	cmd.AddCommand(newReportCmd(app))
	cmd.AddCommand(newReportsCmd(app))
	cmd.AddCommand(newCorrelationCmd(app))
	rootCmd.AddCommand(cmd)
}

func addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("paths", "n", 0, "Monte Carlo paths (default from config)")
	cmd.Flags().Uint64("seed", 0, "random seed, 0 for a fresh one (default from config)")
}

// simulate runs the Monte Carlo analysis of s with the command's path and
// seed flags.
func (a *App) simulate(ctx context.Context, cmd *cobra.Command, s *models.Strategy, in *marketInputs) (*models.SimulationResult, error) {
	paths, _ := cmd.Flags().GetInt("paths")
	sim := a.Simulator
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetUint64("seed")
		sim = sim.WithSeed(seed)
	}
	return sim.Analyze(ctx, s, in.Spot, in.Rate, in.Volatility, in.Years, paths)
}

func (a *App) scenarios(cmd *cobra.Command) ([]models.StressScenario, error) {
	if path, _ := cmd.Flags().GetString("scenarios"); path != "" {
		return risk.LoadScenarios(path)
	}
	return a.Config.Risk.Scenarios, nil
}

func newSimulateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <strategy>",
		Short: "Monte Carlo payoff distribution of a strategy",
		Example: `  optlab risk simulate long_straddle --spot 100 --vol 0.3 --days 91 --seed 42
  optlab risk simulate iron_condor --symbol GGAL --paths 10000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			in, err := app.resolveMarket(ctx, cmd)
			if err != nil {
				return err
			}
			s, err := app.buildStrategy(cmd, args[0], in)
			if err != nil {
				return err
			}
			res, err := app.simulate(ctx, cmd, s, in)
			if err != nil {
				return err
			}
			if raw, _ := cmd.Flags().GetBool("raw"); !raw {
				res.Payoffs, res.FinalPrices = nil, nil
			}

			if output.IsJSON() {
				return output.JSON(res)
			}
			in.describe(output)
			output.Println()
			displaySimulation(output, s.Name, res)
			return nil
		},
	}
	addStrategyFlags(cmd)
	addSimulationFlags(cmd)
	cmd.Flags().Bool("raw", false, "include every simulated payoff and final price in JSON output")
	return cmd
}

func displaySimulation(output *Output, name string, res *models.SimulationResult) {
	output.Box(fmt.Sprintf("%s: %d paths × %d steps", name, res.Paths, res.Steps), []string{
		fmt.Sprintf("Expected P&L   %s", output.Money(res.Mean)),
		fmt.Sprintf("Std deviation  %s", FormatMoney(res.StdDev)),
		fmt.Sprintf("Sharpe         %.3f", res.Sharpe),
		fmt.Sprintf("VaR 95%%        %s", FormatMoney(res.VaR95)),
		fmt.Sprintf("VaR 99%%        %s", FormatMoney(res.VaR99)),
		fmt.Sprintf("CVaR 95%%       %s", FormatMoney(res.CVaR95)),
		fmt.Sprintf("P(profit)      %s", FormatProbability(res.ProbProfit)),
		fmt.Sprintf("P(loss)        %s", FormatProbability(res.ProbLoss)),
		fmt.Sprintf("P(breakeven)   %s", FormatProbability(res.ProbBreakeven)),
	})
	p := res.Percentiles
	output.Printf("Percentiles  5%% %s  25%% %s  50%% %s  75%% %s  95%% %s\n",
		FormatPnL(p.P5), FormatPnL(p.P25), FormatPnL(p.P50), FormatPnL(p.P75), FormatPnL(p.P95))
	output.Dim("Seed %d", res.Seed)
}

func newStressCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress <strategy>",
		Short: "Revalue a strategy under price shock scenarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			in, err := app.resolveMarket(ctx, cmd)
			if err != nil {
				return err
			}
			s, err := app.buildStrategy(cmd, args[0], in)
			if err != nil {
				return err
			}
			scenarios, err := app.scenarios(cmd)
			if err != nil {
				return err
			}
			results, err := risk.StressTest(s, in.Spot, scenarios)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(results)
			}
			in.describe(output)
			output.Println()
			displayStress(output, scenarios, results)
			return nil
		},
	}
	addStrategyFlags(cmd)
	cmd.Flags().String("scenarios", "", "YAML file of stress scenarios (default from config)")
	return cmd
}

func displayStress(output *Output, scenarios []models.StressScenario, results map[string]models.StressResult) {
	table := NewTable(output, "Scenario", "Price move", "Price", "P&L", "Return")
	for _, sc := range scenarios {
		r, ok := results[sc.Name]
		if !ok {
			continue
		}
		table.AddRow(
			sc.Name,
			FormatPercent(sc.PriceChange*100),
			FormatPrice(r.ScenarioPrice),
			output.Money(r.TotalPnL),
			output.PnL(r.ReturnPct, FormatPercent(r.ReturnPct)),
		)
	}
	table.Render()
}

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio <positions-file>",
		Short: "Aggregate Greeks, value and hedge of a position file",
		Long: `Read positions from a YAML or JSON file and aggregate their Greeks and
value at the current spot. Quantities are in units of the underlying, so one
100-share contract is quantity 100.

  positions:
    - {symbol: GGAL, kind: stock, quantity: 100}
    - {symbol: GGAL, kind: call, quantity: -100, strike: 110, expiration: 2026-12-18}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			positions, err := risk.LoadPositions(args[0])
			if err != nil {
				return err
			}
			in, err := app.resolveMarket(ctx, cmd)
			if err != nil {
				return err
			}
			market := in.conditions()
			if in.Snapshot == nil && !cmd.Flags().Changed("vol") {
				market.HistoricalVolatility = 0
			}
			res, err := risk.PortfolioRisk(positions, market, in.AsOf, app.Config.Risk.PortfolioVolatility)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			displayPortfolio(output, len(positions), res)
			return nil
		},
	}
	addMarketFlags(cmd)
	return cmd
}

func displayPortfolio(output *Output, n int, res *models.PortfolioRisk) {
	output.Bold("Portfolio of %d position(s)", n)
	output.Printf("  Value:           %s\n", FormatMoney(res.Value))
	output.Printf("  Net Greeks:      %s\n", FormatGreeks(res.Net))
	output.Printf("  Delta hedge:     %+.2f shares (%s)\n", res.HedgeShares, FormatMoney(res.HedgeCost))
	output.Printf("  Gamma risk 1%%:   %s\n", FormatMoney(res.GammaRisk1Pct))
	output.Printf("  Theta per day:   %s\n", output.Money(res.DailyTheta))
	output.Printf("  Vega risk 1%%:    %s\n", FormatMoney(res.VegaRisk1Pct))
	output.Printf("  Delta neutral:   %s\n", yesNo(output, res.DeltaNeutral))
	output.Printf("  Gamma neutral:   %s\n", yesNo(output, res.GammaNeutral))
	if res.Expired > 0 {
		output.Warning("%d expired position(s) ignored", res.Expired)
	}
}

func yesNo(output *Output, v bool) string {
	if v {
		return output.Green("yes")
	}
	return output.Yellow("no")
}

func newReportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <strategy>",
		Short: "Generate and journal a full risk report",
		Long: `Build a strategy and combine its basic metrics, a Monte Carlo
simulation and the configured stress scenarios into one report. Reports are
saved in the SQLite journal unless --save=false.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			in, err := app.resolveMarket(ctx, cmd)
			if err != nil {
				return err
			}
			s, err := app.buildStrategy(cmd, args[0], in)
			if err != nil {
				return err
			}
			var sim *models.SimulationResult
			if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
				if sim, err = app.simulate(ctx, cmd, s, in); err != nil {
					return err
				}
			}
			scenarios, err := app.scenarios(cmd)
			if err != nil {
				return err
			}
			report, err := risk.GenerateReport(s, in.conditions(), sim, scenarios, app.Config.Risk.VaRConfidence, app.now())
			if err != nil {
				return err
			}

			if save, _ := cmd.Flags().GetBool("save"); save {
				if app.Store == nil {
					output.Warning("Store unavailable; report not saved")
				} else if err := app.Store.SaveReport(ctx, in.Symbol, report); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			displayReport(output, report, scenarios)
			return nil
		},
	}
	addStrategyFlags(cmd)
	addSimulationFlags(cmd)
	cmd.Flags().String("scenarios", "", "YAML file of stress scenarios (default from config)")
	cmd.Flags().Bool("simulate", true, "include Monte Carlo metrics")
	cmd.Flags().Bool("save", true, "journal the report in the store")
	return cmd
}

func displayReport(output *Output, r *models.RiskReport, scenarios []models.StressScenario) {
	m := r.Market
	output.Bold("Risk report %s", r.ID)
	output.Dim("%s  generated %s", r.StrategyName, FormatDateTime(r.GeneratedAt))
	output.Printf("  Market:      %s spot %s  rate %s  vol %s\n", orDash(m.Symbol), FormatPrice(m.Spot), FormatRate(m.Rate), FormatRate(m.HistoricalVolatility))
	output.Println()

	b := r.Basic
	output.Bold("Basic metrics")
	output.Printf("  Net cost:    %s\n", FormatMoney(b.NetCost))
	output.Printf("  Max profit:  %s\n", FormatBound(b.MaxProfit))
	output.Printf("  Max loss:    %s\n", FormatBound(b.MaxLoss))
	output.Printf("  Breakevens:  %s\n", FormatLevels(b.Breakevens))
	output.Printf("  P(profit):   %s (%s)\n", FormatProbability(b.ProbabilityOfProfit), b.ProbabilityMethod)

	if r.Risk != nil {
		output.Println()
		output.Bold("Monte Carlo")
		output.Printf("  Expected:    %s\n", output.Money(r.Risk.ExpectedReturn))
		output.Printf("  Volatility:  %s\n", FormatMoney(r.Risk.Volatility))
		output.Printf("  VaR 95%%:     %s\n", FormatMoney(r.Risk.VaR95))
		output.Printf("  CVaR 95%%:    %s\n", FormatMoney(r.Risk.CVaR95))
		output.Printf("  P(profit):   %s\n", FormatProbability(r.Risk.ProbProfit))
		for _, tr := range r.Risk.Tail {
			label := FormatProbability(tr.Confidence)
			output.Printf("  %-12s %s VaR / %s CVaR\n", label+":", FormatMoney(tr.VaR), FormatMoney(tr.CVaR))
		}
	}

	output.Println()
	output.Bold("Stress tests")
	if scenarios == nil {
		scenarios = scenariosOf(r.StressTests)
	}
	displayStress(output, scenarios, r.StressTests)
}

// scenariosOf lists the scenarios of stored results in name order.
func scenariosOf(results map[string]models.StressResult) []models.StressScenario {
	out := make([]models.StressScenario, 0, len(results))
	for _, r := range results {
		out = append(out, r.Scenario)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newReportsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports [id]",
		Short: "List journaled reports, or show one by ID",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			if app.Store == nil {
				return apperrors.Wrap(apperrors.ErrDatabaseError, "store unavailable")
			}

			if len(args) == 1 {
				report, err := app.Store.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(report)
				}
				displayReport(output, report, nil)
				return nil
			}

			filter := store.ReportFilter{}
			filter.Symbol, _ = cmd.Flags().GetString("symbol")
			filter.Strategy, _ = cmd.Flags().GetString("strategy")
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			if days, _ := cmd.Flags().GetInt("days"); days > 0 {
				filter.StartDate = app.now().AddDate(0, 0, -days)
			}

			rows, err := app.Store.ListReports(ctx, filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if rows == nil {
					rows = []store.ReportSummary{}
				}
				return output.JSON(rows)
			}
			if len(rows) == 0 {
				output.Info("No reports found")
				return nil
			}
			table := NewTable(output, "ID", "Generated", "Symbol", "Strategy", "Net cost", "P(profit)")
			for _, r := range rows {
				table.AddRow(r.ID, FormatDateTime(r.GeneratedAt), orDash(r.Symbol), r.StrategyName, FormatMoney(r.NetCost), FormatProbability(r.ProbProfit))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringP("symbol", "s", "", "filter by symbol")
	cmd.Flags().String("strategy", "", "filter by strategy name")
	cmd.Flags().Int("days", 0, "only reports from the last N days")
	cmd.Flags().Int("limit", 20, "maximum rows")
	return cmd
}

func newCorrelationCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correlation <symbol> <symbol>...",
		Short: "Correlation and diversification of stored daily returns",
		Long: `Correlate the daily log returns of two or more symbols over the dates
every symbol has a stored candle for. Import history with 'optlab data import'.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			if app.Store == nil {
				return apperrors.Wrap(apperrors.ErrDatabaseError, "store unavailable")
			}
			days, _ := cmd.Flags().GetInt("days")
			to := app.now()
			from := to.AddDate(0, 0, -days)

			names := make([]string, len(args))
			history := make([][]models.Candle, len(args))
			for i, symbol := range args {
				names[i] = strings.ToUpper(symbol)
				candles, err := app.Store.GetCandles(ctx, symbol, from, to)
				if err != nil {
					return err
				}
				if len(candles) == 0 {
					return apperrors.NewDataError("correlation", names[i], "no stored candles", apperrors.ErrDataNotFound)
				}
				history[i] = candles
			}

			res, err := risk.Correlate(names, alignedReturns(history))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			displayCorrelation(output, res)
			return nil
		},
	}
	cmd.Flags().Int("days", 365, "history window in days")
	return cmd
}

// alignedReturns keeps the dates present in every history and returns the
// log returns of each series over them.
func alignedReturns(history [][]models.Candle) [][]float64 {
	count := map[string]int{}
	for _, candles := range history {
		seen := map[string]bool{}
		for _, c := range candles {
			day := FormatDate(c.Timestamp.UTC())
			if !seen[day] {
				seen[day] = true
				count[day]++
			}
		}
	}

	out := make([][]float64, len(history))
	for i, candles := range history {
		seen := map[string]bool{}
		var closes []float64
		for _, c := range candles {
			day := FormatDate(c.Timestamp.UTC())
			if count[day] == len(history) && !seen[day] {
				seen[day] = true
				closes = append(closes, c.Close)
			}
		}
		out[i] = indicators.LogReturns(closes)
	}
	return out
}

func displayCorrelation(output *Output, res *models.CorrelationResult) {
	headers := append([]string{""}, res.Names...)
	table := NewTable(output, headers...)
	for i, name := range res.Names {
		row := []string{name}
		for _, v := range res.Matrix[i] {
			row = append(row, fmt.Sprintf("%+.3f", v))
		}
		table.AddRow(row...)
	}
	table.Render()
	output.Println()
	output.Printf("Diversification ratio: %.3f\n", res.DiversificationRatio)
	output.Printf("Correlation range:     %+.3f .. %+.3f\n", res.MinCorrelation, res.MaxCorrelation)
	eig := make([]string, len(res.Eigenvalues))
	for i, v := range res.Eigenvalues {
		eig[i] = fmt.Sprintf("%.3f", v)
	}
	output.Dim("Eigenvalues: %s", strings.Join(eig, ", "))
}
