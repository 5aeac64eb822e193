package cli

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/marketdata"
	"options-lab/internal/models"
	"options-lab/internal/pricing"
	"options-lab/internal/strategy"
)

// marketInputs are the resolved pricing inputs of a command.
type marketInputs struct {
	Symbol     string
	Spot       float64
	Rate       float64
	Volatility float64
	Days       int
	Years      float64
	Expiration time.Time
	AsOf       time.Time
	Snapshot   *marketdata.Snapshot
}

func (m *marketInputs) strategyMarket() strategy.Market {
	return strategy.Market{Spot: m.Spot, Years: m.Years, Rate: m.Rate, Volatility: m.Volatility}
}

func (m *marketInputs) conditions() models.MarketConditions {
	return models.MarketConditions{
		Symbol:               m.Symbol,
		Spot:                 m.Spot,
		Rate:                 m.Rate,
		HistoricalVolatility: m.Volatility,
		AsOf:                 m.AsOf,
	}
}

func (m *marketInputs) params(strike float64) pricing.Params {
	return pricing.Params{Spot: m.Spot, Strike: strike, Years: m.Years, Rate: m.Rate, Volatility: m.Volatility}
}

// addMarketFlags registers the market input flags shared by pricing,
// strategy and risk commands.
func addMarketFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("symbol", "s", "", "load spot, rate and volatility from the symbol's snapshot")
	cmd.Flags().Float64("spot", 0, "underlying price")
	cmd.Flags().Float64("rate", 0, "annual risk-free rate (default from config)")
	cmd.Flags().Float64("vol", 0, "annual volatility (default from snapshot or config)")
	cmd.Flags().IntP("days", "d", 0, "days to expiration (default from config)")
	cmd.Flags().String("expiry", "", "expiration date YYYY-MM-DD, overrides --days")
}

// resolveMarket combines explicit flags, the symbol snapshot when --symbol
// is given, and configuration defaults, in that order of precedence.
func (a *App) resolveMarket(ctx context.Context, cmd *cobra.Command) (*marketInputs, error) {
	flags := cmd.Flags()
	in := &marketInputs{
		Rate:       a.Config.Analysis.RiskFreeRate,
		Volatility: a.Config.Analysis.DefaultVolatility,
		AsOf:       a.now().UTC(),
	}

	if symbol, _ := flags.GetString("symbol"); symbol != "" {
		snap, err := a.Market.Snapshot(ctx, symbol)
		if err != nil {
			return nil, err
		}
		in.Symbol = snap.Symbol
		in.Snapshot = snap
		in.Spot = snap.Spot
		in.Rate = snap.Rate
		in.Volatility = snap.HistoricalVolatility
		in.AsOf = snap.AsOf
	}

	if flags.Changed("spot") {
		in.Spot, _ = flags.GetFloat64("spot")
	}
	if flags.Changed("rate") {
		in.Rate, _ = flags.GetFloat64("rate")
	}
	if flags.Changed("vol") {
		in.Volatility, _ = flags.GetFloat64("vol")
	}
	if !(in.Spot > 0) || math.IsInf(in.Spot, 0) {
		return nil, apperrors.NewValidationError("spot", in.Spot, "is required: pass --spot or --symbol")
	}

	if err := a.resolveExpiration(cmd, in); err != nil {
		return nil, err
	}
	return in, nil
}

func (a *App) resolveExpiration(cmd *cobra.Command, in *marketInputs) error {
	opts := a.Config.Options
	flags := cmd.Flags()

	if expiry, _ := flags.GetString("expiry"); expiry != "" {
		exp, err := pricing.ParseExpiration(expiry)
		if err != nil {
			return err
		}
		in.Expiration = exp
		in.Years = pricing.TimeToExpiration(exp, in.AsOf)
		in.Days = int(math.Ceil(exp.Sub(in.AsOf).Hours() / 24))
	} else {
		in.Days = opts.DefaultDaysToExpiration
		if flags.Changed("days") {
			in.Days, _ = flags.GetInt("days")
		}
		in.Expiration = in.AsOf.AddDate(0, 0, in.Days)
		in.Years = float64(in.Days) / pricing.DaysPerYear
	}

	if in.Days < opts.MinDaysToExpiration || in.Days > opts.MaxDaysToExpiration {
		return apperrors.NewValidationError("days", in.Days,
			fmt.Sprintf("must be between %d and %d", opts.MinDaysToExpiration, opts.MaxDaysToExpiration))
	}
	return nil
}

// describe prints the resolved inputs as a dim header line.
func (m *marketInputs) describe(output *Output) {
	source := "flags"
	if m.Snapshot != nil {
		source = m.Symbol + " snapshot " + FormatDateTime(m.AsOf)
	}
	output.Dim("Spot %s  rate %s  vol %s  %d days (%s)  [%s]",
		FormatPrice(m.Spot), FormatRate(m.Rate), FormatRate(m.Volatility), m.Days, FormatDate(m.Expiration), source)
}
