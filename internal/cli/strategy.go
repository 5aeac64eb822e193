package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/strategy"
)

// addStrategyCommands adds strategy composition commands.
func addStrategyCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "strategy",
		Aliases: []string{"strat"},
		Short:   "Compose and compare multi-leg option strategies",
	}
	cmd.AddCommand(newStrategyListCmd())
	cmd.AddCommand(newStrategyBuildCmd(app))
	cmd.AddCommand(newStrategyAnalyzeCmd(app))
	cmd.AddCommand(newStrategyPayoffCmd(app))
	rootCmd.AddCommand(cmd)
}

func addStrategyFlags(cmd *cobra.Command) {
	addMarketFlags(cmd)
	cmd.Flags().Float64SliceP("strikes", "k", nil, "strikes, comma separated (default: ladder around spot)")
	cmd.Flags().Int("shares", 0, "shares for stock strategies, a multiple of 100 (default from config)")
	cmd.Flags().String("option-kind", "call", "option kind for butterflies")
}

// buildStrategy builds the named strategy from the command's flags. Missing
// strikes are taken from an evenly spaced ladder around spot.
func (a *App) buildStrategy(cmd *cobra.Command, name string, in *marketInputs) (*models.Strategy, error) {
	info, ok := strategy.Lookup(name)
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrUnknownStrategy, "%q (see 'optlab strategy list')", name)
	}

	strikes, _ := cmd.Flags().GetFloat64Slice("strikes")
	if len(strikes) == 0 {
		var err error
		strikes, err = defaultStrikes(info, in.Spot, a.Config.Strategy.StrikeRange)
		if err != nil {
			return nil, err
		}
	}
	shares, _ := cmd.Flags().GetInt("shares")
	rawKind, _ := cmd.Flags().GetString("option-kind")
	kind, err := models.ParseKind(rawKind)
	if err != nil || !kind.IsOption() {
		return nil, apperrors.NewValidationError("option-kind", rawKind, "must be call or put")
	}

	return a.Composer.Build(strategy.Request{
		Name:       name,
		Market:     in.strategyMarket(),
		Strikes:    strikes,
		Shares:     shares,
		OptionKind: kind,
	})
}

func defaultStrikes(info strategy.Info, spot, rangePct float64) ([]float64, error) {
	if info.Strikes == 1 {
		return []float64{math.Round(spot*100) / 100}, nil
	}
	return strategy.StrikeLadder(spot, info.Strikes, rangePct)
}

const descriptionWidth = 60

func newStrategyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available strategies and ranking criteria",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"strategies": strategy.Catalog(),
					"criteria":   strategy.Criteria(),
				})
			}
			table := NewTable(output, "Strategy", "Strikes", "Stock", "Description")
			for _, info := range strategy.Catalog() {
				stock := ""
				if info.UsesShares {
					stock = "yes"
				}
				table.AddRow(info.Name, fmt.Sprintf("%d", info.Strikes), stock, TruncateString(info.Description, descriptionWidth))
			}
			table.Render()
			output.Println()
			output.Dim("Ranking criteria: %s", strings.Join(strategy.Criteria(), ", "))
			return nil
		},
	}
}

func newStrategyBuildCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <strategy>",
		Short: "Build a strategy and show its payoff profile",
		Example: `  optlab strategy build covered_call --spot 100 --strikes 105
  optlab strategy build iron_condor --symbol GGAL --strikes 85,95,105,115 --chart`,
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
			if output.IsJSON() {
				return output.JSON(s)
			}
			in.describe(output)
			output.Println()
			displayStrategy(output, s)
			if chart, _ := cmd.Flags().GetBool("chart"); chart {
				output.Println()
				for _, line := range PayoffChart(s.Prices, s.Payoffs, in.Spot, 60, 15) {
					output.Println(line)
				}
			}
			return nil
		},
	}
	addStrategyFlags(cmd)
	cmd.Flags().Bool("chart", false, "draw the payoff at expiration")
	return cmd
}

func displayStrategy(output *Output, s *models.Strategy) {
	lines := []string{s.Description, ""}
	for _, leg := range s.Legs {
		lines = append(lines, describeLeg(leg))
	}
	output.Box(s.Name, lines)

	output.Printf("  Net cost:      %s\n", FormatMoney(s.NetCost))
	output.Printf("  Max profit:    %s\n", output.Green(FormatBound(s.MaxProfit)))
	output.Printf("  Max loss:      %s\n", output.Red(FormatBound(s.MaxLoss)))
	output.Printf("  Breakevens:    %s\n", FormatLevels(s.Breakevens))
	output.Printf("  Risk/reward:   %s\n", formatRiskReward(strategy.RiskReward(s)))
	pop := FormatProbability(s.ProbabilityOfProfit)
	if s.ProbabilityMethod == models.ProbabilityPlaceholder {
		pop = output.Yellow(pop + " (placeholder)")
	}
	output.Printf("  P(profit):     %s\n", pop)
}

func describeLeg(leg models.OptionLeg) string {
	side := "Long "
	if leg.Quantity < 0 {
		side = "Short"
	}
	qty := math.Abs(leg.Quantity)
	if leg.Kind == models.KindStock {
		return fmt.Sprintf("%s %g shares @ %s", side, qty, FormatPrice(leg.Premium))
	}
	return fmt.Sprintf("%s %g %s %s @ %s", side, qty, leg.Kind, FormatPrice(leg.Strike), FormatPrice(leg.Premium))
}

func formatRiskReward(b models.Bound) string {
	if !b.IsFinite() {
		return b.String()
	}
	return fmt.Sprintf("%.2f", b.Value)
}

type rankedResult struct {
	Criterion string            `json:"criterion"`
	Strikes   []float64         `json:"strikes"`
	Ranked    []strategy.Ranked `json:"ranked"`
}

func newStrategyAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Build the standard strategy set over a strike ladder and rank it",
		Example: `  optlab strategy analyze --symbol GGAL
  optlab strategy analyze --spot 100 --strikes 90,95,100,105,110 --rank probability`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			in, err := app.resolveMarket(ctx, cmd)
			if err != nil {
				return err
			}
			strikes, _ := cmd.Flags().GetFloat64Slice("strikes")
			if len(strikes) == 0 {
				strikes, err = strategy.StrikeLadder(in.Spot, app.Config.Strategy.NumStrikes, app.Config.Strategy.StrikeRange)
				if err != nil {
					return err
				}
			}
			criterion, _ := cmd.Flags().GetString("rank")

			all, err := app.Composer.AnalyzeAll(in.strategyMarket(), strikes)
			if err != nil {
				return err
			}
			ranked, err := strategy.Rank(all, criterion)
			if err != nil {
				return err
			}
			if top, _ := cmd.Flags().GetInt("top"); top > 0 && top < len(ranked) {
				ranked = ranked[:top]
			}

			if output.IsJSON() {
				return output.JSON(rankedResult{Criterion: criterion, Strikes: strikes, Ranked: ranked})
			}
			in.describe(output)
			output.Println()
			table := NewTable(output, "#", "Strategy", "Net cost", "Max profit", "Max loss", "Breakevens", "P(profit)", "Score")
			for i, r := range ranked {
				s := r.Strategy
				table.AddRow(
					fmt.Sprintf("%d", i+1),
					r.Key,
					FormatMoney(s.NetCost),
					FormatBound(s.MaxProfit),
					FormatBound(s.MaxLoss),
					FormatLevels(s.Breakevens),
					FormatProbability(s.ProbabilityOfProfit),
					formatRiskReward(r.Score),
				)
			}
			table.Render()
			output.Dim("Ranked by %s", criterion)
			return nil
		},
	}
	addMarketFlags(cmd)
	cmd.Flags().Float64SliceP("strikes", "k", nil, "strike ladder (default from config)")
	cmd.Flags().String("rank", strategy.CriterionRiskReward, "ranking criterion: "+strings.Join(strategy.Criteria(), ", "))
	cmd.Flags().Int("top", 0, "show only the best N strategies")
	return cmd
}

type payoffPoint struct {
	Price  float64 `json:"price"`
	Payoff float64 `json:"payoff"`
}

func newStrategyPayoffCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payoff <strategy>",
		Short: "Tabulate a strategy's P&L at expiration over a price range",
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
			low, _ := cmd.Flags().GetFloat64("low")
			high, _ := cmd.Flags().GetFloat64("high")
			points, _ := cmd.Flags().GetInt("points")
			if !cmd.Flags().Changed("low") {
				low = in.Spot * 0.7
			}
			if !cmd.Flags().Changed("high") {
				high = in.Spot * 1.3
			}

			prices, payoffs, err := strategy.PayoffCurve(s.Legs, s.Multiplier, low, high, points)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				curve := make([]payoffPoint, len(prices))
				for i := range prices {
					curve[i] = payoffPoint{Price: prices[i], Payoff: payoffs[i]}
				}
				return output.JSON(map[string]interface{}{"strategy": s.Name, "curve": curve})
			}

			for _, line := range PayoffChart(prices, payoffs, in.Spot, 60, 15) {
				output.Println(line)
			}
			output.Println()
			table := NewTable(output, "Price", "P&L")
			for i := range prices {
				table.AddRow(FormatPrice(prices[i]), output.Money(payoffs[i]))
			}
			table.Render()
			return nil
		},
	}
	addStrategyFlags(cmd)
	cmd.Flags().Float64("low", 0, "lowest price (default: 70% of spot)")
	cmd.Flags().Float64("high", 0, "highest price (default: 130% of spot)")
	cmd.Flags().Int("points", 13, "number of prices")
	return cmd
}
