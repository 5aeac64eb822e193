package pricing

import (
	"math"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/validation"
)

// IVEstimate is the outcome of an implied volatility search. When Fallback is
// set, Volatility is the configured fallback and not a solution.
type IVEstimate struct {
	Volatility float64 `json:"volatility"`
	Fallback   bool    `json:"fallback"`
	Residual   float64 `json:"residual"`
	Iterations int     `json:"iterations"`
}

// ImpliedVolatility finds σ such that the model price matches marketPrice by
// minimising |price(σ) - marketPrice| over the configured bounds.
func (e *Engine) ImpliedVolatility(marketPrice, S, K, T, r float64, kind models.Kind) (IVEstimate, error) {
	if !kind.IsOption() {
		return IVEstimate{}, apperrors.NewValidationError("kind", kind, "must be call or put")
	}
	if err := validation.Var("market_price", marketPrice, "gt=0,finite"); err != nil {
		return IVEstimate{}, err
	}
	if err := validation.Var("spot", S, "gt=0,finite"); err != nil {
		return IVEstimate{}, err
	}
	if err := validation.Var("strike", K, "gt=0,finite"); err != nil {
		return IVEstimate{}, err
	}
	if T <= 0 {
		return IVEstimate{}, apperrors.Wrapf(apperrors.ErrExpired, "implied volatility for strike %.2f", K)
	}

	objective := func(sigma float64) float64 {
		return math.Abs(Price(kind, S, K, T, r, sigma) - marketPrice)
	}
	res := minimizeBounded(objective, e.cfg.VolLowerBound, e.cfg.VolUpperBound, e.cfg.Tolerance, e.cfg.MaxIterations)

	reason := ""
	switch {
	case !res.Converged:
		reason = "search did not converge"
	case math.IsNaN(res.X) || math.IsInf(res.X, 0):
		reason = "non-finite solution"
	case res.F > e.cfg.MaxResidual*math.Max(marketPrice, 1):
		reason = "no volatility inside bounds reproduces the price"
	}

	if reason != "" {
		e.logger.Warn().
			Str("kind", string(kind)).
			Float64("market_price", marketPrice).
			Float64("strike", K).
			Float64("residual", res.F).
			Float64("fallback", e.cfg.FallbackVolatility).
			Msg("Implied volatility fell back: " + reason)
		e.metrics.RecordIVFallback(string(kind))
		return IVEstimate{
			Volatility: e.cfg.FallbackVolatility,
			Fallback:   true,
			Residual:   res.F,
			Iterations: res.Iterations,
		}, nil
	}

	return IVEstimate{
		Volatility: res.X,
		Residual:   res.F,
		Iterations: res.Iterations,
	}, nil
}

// Price validates p and returns the option price.
func (e *Engine) Price(kind models.Kind, p Params) (float64, error) {
	if err := validateParams(p); err != nil {
		return 0, err
	}
	return Price(kind, p.Spot, p.Strike, p.Years, p.Rate, p.Volatility), nil
}

// Greeks validates p and returns the option Greeks.
func (e *Engine) Greeks(kind models.Kind, p Params) (models.Greeks, error) {
	if err := validateParams(p); err != nil {
		return models.Greeks{}, err
	}
	return ComputeGreeks(kind, p.Spot, p.Strike, p.Years, p.Rate, p.Volatility), nil
}

// Probabilities validates p and returns ITM and touch probabilities.
func (e *Engine) Probabilities(p Params) (Probabilities, error) {
	if err := validateParams(p); err != nil {
		return Probabilities{}, err
	}
	return ComputeProbabilities(p.Spot, p.Strike, p.Years, p.Rate, p.Volatility), nil
}

func validateParams(p Params) error {
	return validation.Struct(p)
}
