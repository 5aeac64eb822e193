// Package strategy composes option and stock legs into named strategies and
// derives their payoff curves and closed-form risk bounds.
package strategy

import (
	"math"

	"gonum.org/v1/gonum/floats"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/validation"
)

// Market is the pricing context shared by every leg of a strategy.
type Market struct {
	Spot       float64 `json:"spot" validate:"gt=0,finite"`
	Years      float64 `json:"years" validate:"gte=0,finite"`
	Rate       float64 `json:"rate" validate:"gte=-1,lte=1"`
	Volatility float64 `json:"volatility" validate:"gt=0,lte=10"`
}

// Validate checks the market inputs.
func (m Market) Validate() error {
	return validation.Struct(m)
}

// Grid returns n evenly spaced prices from lo to hi inclusive.
func Grid(lo, hi float64, n int) []float64 {
	if n < 2 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// PayoffCurve evaluates the terminal P&L of legs over an n-point grid.
func PayoffCurve(legs []models.OptionLeg, multiplier, lo, hi float64, n int) (prices, payoffs []float64, err error) {
	if lo <= 0 || hi <= lo {
		return nil, nil, apperrors.NewValidationError("price_range", [2]float64{lo, hi}, "must satisfy 0 < low < high")
	}
	if n < 2 {
		return nil, nil, apperrors.NewValidationError("points", n, "must be at least 2")
	}
	prices = Grid(lo, hi, n)
	payoffs = make([]float64, n)
	for i, p := range prices {
		payoffs[i] = models.LegsPnL(legs, multiplier, p)
	}
	return prices, payoffs, nil
}

// multiplierFor returns the contract multiplier used when options are mixed
// with stock, and 1 for pure option strategies.
func multiplierFor(legs []models.OptionLeg) float64 {
	for _, l := range legs {
		if l.Kind == models.KindStock {
			return models.ContractMultiplier
		}
	}
	return 1
}

// assemble fills the grid, payoffs and net cost of a strategy from its legs.
func assemble(s *models.Strategy, lo, hi float64, n int) (*models.Strategy, error) {
	s.Multiplier = multiplierFor(s.Legs)
	prices, payoffs, err := PayoffCurve(s.Legs, s.Multiplier, lo, hi, n)
	if err != nil {
		return nil, apperrors.NewStrategyError(s.Name, "building payoff grid", err)
	}
	s.Prices = prices
	s.Payoffs = payoffs
	s.NetCost = models.LegsCost(s.Legs, s.Multiplier)
	s.ProbabilityOfProfit = clamp01(s.ProbabilityOfProfit)
	return s, nil
}

func clamp01(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(1, p))
}
