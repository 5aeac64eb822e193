package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/pricing"
	"options-lab/internal/risk"
)

// addOptionsCommands adds single-option pricing commands.
func addOptionsCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "options",
		Aliases: []string{"opt"},
		Short:   "Price options and analyze option chains",
	}
	cmd.AddCommand(newPriceCmd(app))
	cmd.AddCommand(newGreeksCmd(app))
	cmd.AddCommand(newIVCmd(app))
	cmd.AddCommand(newProbCmd(app))
	cmd.AddCommand(newChainCmd(app))
	rootCmd.AddCommand(cmd)
}

func commandContext(cmd *cobra.Command, app *App) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, app.Config.Market.Timeout)
}

func kindFlag(cmd *cobra.Command) (models.Kind, error) {
	raw, _ := cmd.Flags().GetString("kind")
	kind, err := models.ParseKind(raw)
	if err != nil || !kind.IsOption() {
		return "", apperrors.NewValidationError("kind", raw, "must be call or put")
	}
	return kind, nil
}

func strikeFlag(cmd *cobra.Command, in *marketInputs) float64 {
	if cmd.Flags().Changed("strike") {
		k, _ := cmd.Flags().GetFloat64("strike")
		return k
	}
	return in.Spot
}

type priceResult struct {
	Params    pricing.Params `json:"params"`
	Call      float64        `json:"call"`
	Put       float64        `json:"put"`
	CallValue valueSplit     `json:"call_value"`
	PutValue  valueSplit     `json:"put_value"`
}

type valueSplit struct {
	Intrinsic float64 `json:"intrinsic"`
	Time      float64 `json:"time"`
}

func newPriceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Black-Scholes call and put prices",
		Example: `  optlab options price --spot 100 --strike 100 --days 91 --vol 0.3
  optlab options price --symbol GGAL --strike 110 --expiry 2026-12-18`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			in, err := app.resolveMarket(ctx, cmd)
			if err != nil {
				return err
			}
			p := in.params(strikeFlag(cmd, in))

			call, err := app.Pricing.Price(models.KindCall, p)
			if err != nil {
				return err
			}
			put, err := app.Pricing.Price(models.KindPut, p)
			if err != nil {
				return err
			}
			res := priceResult{Params: p, Call: call, Put: put}
			res.CallValue.Intrinsic = pricing.Intrinsic(models.KindCall, p.Spot, p.Strike)
			res.CallValue.Time = call - res.CallValue.Intrinsic
			res.PutValue.Intrinsic = pricing.Intrinsic(models.KindPut, p.Spot, p.Strike)
			res.PutValue.Time = put - res.PutValue.Intrinsic

			if output.IsJSON() {
				return output.JSON(res)
			}
			in.describe(output)
			output.Println()
			table := NewTable(output, "", "Price", "Intrinsic", "Time value", "Moneyness")
			table.AddRow("Call", output.BoldText(FormatPrice(call)), FormatPrice(res.CallValue.Intrinsic), FormatPrice(res.CallValue.Time), pricing.ClassifyMoneyness(models.KindCall, p.Spot, p.Strike))
			table.AddRow("Put", output.BoldText(FormatPrice(put)), FormatPrice(res.PutValue.Intrinsic), FormatPrice(res.PutValue.Time), pricing.ClassifyMoneyness(models.KindPut, p.Spot, p.Strike))
			table.Render()
			return nil
		},
	}
	addMarketFlags(cmd)
	cmd.Flags().Float64P("strike", "k", 0, "strike price (default: spot)")
	return cmd
}

func newGreeksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "greeks",
		Short: "Delta, gamma, theta (per day), vega (per vol point) and rho",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			in, err := app.resolveMarket(ctx, cmd)
			if err != nil {
				return err
			}
			kind, err := kindFlag(cmd)
			if err != nil {
				return err
			}
			p := in.params(strikeFlag(cmd, in))
			g, err := app.Pricing.Greeks(kind, p)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"kind": kind, "params": p, "greeks": g})
			}
			in.describe(output)
			output.Println()
			output.Box(fmt.Sprintf("%s %s", kind, FormatPrice(p.Strike)), []string{
				fmt.Sprintf("Delta  %10.4f", g.Delta),
				fmt.Sprintf("Gamma  %10.4f", g.Gamma),
				fmt.Sprintf("Theta  %10.4f  per day", g.Theta),
				fmt.Sprintf("Vega   %10.4f  per 1%% vol", g.Vega),
				fmt.Sprintf("Rho    %10.4f  per 1%% rate", g.Rho),
			})
			return nil
		},
	}
	addMarketFlags(cmd)
	cmd.Flags().Float64P("strike", "k", 0, "strike price (default: spot)")
	cmd.Flags().String("kind", "call", "option kind: call or put")
	return cmd
}

func newIVCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iv",
		Short: "Implied volatility from a market price",
		Example: `  optlab options iv --spot 100 --strike 100 --days 91 --price 6.58`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			in, err := app.resolveMarket(ctx, cmd)
			if err != nil {
				return err
			}
			kind, err := kindFlag(cmd)
			if err != nil {
				return err
			}
			price, _ := cmd.Flags().GetFloat64("price")
			strike := strikeFlag(cmd, in)

			est, err := app.Pricing.ImpliedVolatility(price, in.Spot, strike, in.Years, in.Rate, kind)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(est)
			}
			if est.Fallback {
				output.Warning("No volatility reproduces %s; using fallback %s", FormatPrice(price), FormatRate(est.Volatility))
				return nil
			}
			output.Printf("Implied volatility: %s\n", output.BoldText(FormatRate(est.Volatility)))
			output.Dim("Residual %.2e after %d iterations", est.Residual, est.Iterations)
			return nil
		},
	}
	addMarketFlags(cmd)
	cmd.Flags().Float64P("strike", "k", 0, "strike price (default: spot)")
	cmd.Flags().String("kind", "call", "option kind: call or put")
	cmd.Flags().Float64P("price", "p", 0, "observed option price")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newProbCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prob",
		Short: "Risk-neutral probabilities of finishing in the money and touching the strike",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			in, err := app.resolveMarket(ctx, cmd)
			if err != nil {
				return err
			}
			p := in.params(strikeFlag(cmd, in))
			probs, err := app.Pricing.Probabilities(p)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"params": p, "probabilities": probs})
			}
			in.describe(output)
			output.Printf("  Call ITM:  %s\n", FormatProbability(probs.ITMCall))
			output.Printf("  Put ITM:   %s\n", FormatProbability(probs.ITMPut))
			output.Printf("  Touch:     %s\n", FormatProbability(probs.Touch))
			return nil
		},
	}
	addMarketFlags(cmd)
	cmd.Flags().Float64P("strike", "k", 0, "strike price (default: spot)")
	return cmd
}

type chainResult struct {
	*models.ChainAnalysis
	Liquidity models.LiquidityAssessment `json:"liquidity"`
}

func newChainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain [symbol]",
		Short: "Analyze an option chain from a snapshot",
		Long: `Compute implied volatility, Greeks and moneyness for every quote of one
expiration in the symbol's snapshot. Rows whose price is unusable are
skipped and listed.`,
		Example: `  optlab options chain GGAL
  optlab options chain GGAL --expiry 2026-12-18 --kind put`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			symbol := app.Config.Market.Symbol
			if len(args) == 1 {
				symbol = args[0]
			}
			expiry, _ := cmd.Flags().GetString("expiry")
			kindFilter, _ := cmd.Flags().GetString("kind")

			snap, err := app.Market.Snapshot(ctx, symbol)
			if err != nil {
				return err
			}
			quotes, exp, err := snap.Chain(expiry)
			if err != nil {
				return err
			}
			analysis, err := app.Pricing.AnalyzeChain(quotes, snap.Spot, snap.Rate, exp, snap.AsOf)
			if err != nil {
				return err
			}
			if kindFilter != "" {
				kind, err := models.ParseKind(kindFilter)
				if err != nil {
					return apperrors.NewValidationError("kind", kindFilter, "must be call or put")
				}
				rows := analysis.Rows[:0]
				for _, r := range analysis.Rows {
					if r.Kind == kind {
						rows = append(rows, r)
					}
				}
				analysis.Rows = rows
			}
			res := chainResult{ChainAnalysis: analysis, Liquidity: risk.AssessLiquidity(analysis.Rows)}

			if output.IsJSON() {
				return output.JSON(res)
			}
			displayChain(output, snap.Symbol, res)
			return nil
		},
	}
	cmd.Flags().String("expiry", "", "expiration YYYY-MM-DD (default: nearest)")
	cmd.Flags().String("kind", "", "only show calls or puts")
	return cmd
}

func displayChain(output *Output, symbol string, res chainResult) {
	output.Bold("%s  %s  spot %s  (%.0f days)", symbol, FormatDate(res.Expiration), FormatPrice(res.Spot), res.Years*pricing.DaysPerYear)
	output.Println()

	table := NewTable(output, "Kind", "Strike", "Mkt", "Theo", "IV", "Delta", "Gamma", "Theta", "P(ITM)", "Class", "Liquidity")
	for _, r := range res.Rows {
		iv := FormatRate(r.VolatilityUsed)
		if r.IVFallback {
			iv = output.Yellow(iv + "*")
		}
		table.AddRow(
			string(r.Kind),
			FormatPrice(r.Strike),
			FormatPrice(r.MarketPrice),
			FormatPrice(r.TheoreticalPrice),
			iv,
			fmt.Sprintf("%.3f", r.Greeks.Delta),
			fmt.Sprintf("%.4f", r.Greeks.Gamma),
			fmt.Sprintf("%.3f", r.Greeks.Theta),
			FormatProbability(r.ProbITM),
			r.MoneynessClass,
			risk.ClassifyLiquidity(r.Volume, r.OpenInterest, r.SpreadPct),
		)
	}
	table.Render()

	output.Println()
	liq := res.Liquidity
	output.Printf("Liquidity: avg volume %.0f  avg OI %.0f  avg spread %.2f%%  high %.0f%%\n",
		liq.AvgVolume, liq.AvgOpenInterest, liq.AvgSpreadPct, liq.HighLiquidityPct)
	if len(res.Skipped) > 0 {
		output.Warning("%d row(s) skipped:", len(res.Skipped))
		for _, s := range res.Skipped {
			output.Dim("  #%d %s: %s", s.Index, s.ContractSymbol, s.Reason)
		}
	}
	if hasFallback(res.Rows) {
		output.Dim("* implied volatility did not converge; fallback used")
	}
}

func hasFallback(rows []models.ChainRow) bool {
	for _, r := range rows {
		if r.IVFallback {
			return true
		}
	}
	return false
}
