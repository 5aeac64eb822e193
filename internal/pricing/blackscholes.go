// Package pricing implements Black-Scholes pricing, Greeks, implied
// volatility and option chain analysis for European options.
package pricing

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"options-lab/internal/models"
)

// DaysPerYear converts annual theta into calendar-day decay.
const DaysPerYear = 365.0

// Params holds the inputs of a single pricing call.
type Params struct {
	Spot       float64 `json:"spot" validate:"gt=0,finite"`
	Strike     float64 `json:"strike" validate:"gt=0,finite"`
	Years      float64 `json:"years" validate:"gte=0,finite"`
	Rate       float64 `json:"rate" validate:"gte=-1,lte=1"`
	Volatility float64 `json:"volatility" validate:"gt=0,lte=10"`
}

// NormCDF is the standard normal cumulative distribution function.
func NormCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

// d1d2 returns the Black-Scholes intermediate terms. ok is false when σ√T is
// zero and the terms are undefined.
func d1d2(S, K, T, r, sigma float64) (d1, d2 float64, ok bool) {
	volSqrtT := sigma * math.Sqrt(T)
	if T <= 0 || volSqrtT == 0 {
		return 0, 0, false
	}
	d1 = (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / volSqrtT
	d2 = d1 - volSqrtT
	return d1, d2, true
}

// CallPrice returns the Black-Scholes price of a European call. At or after
// expiry it returns intrinsic value; with zero volatility it returns the
// discounted intrinsic value.
func CallPrice(S, K, T, r, sigma float64) float64 {
	if T <= 0 {
		return math.Max(S-K, 0)
	}
	d1, d2, ok := d1d2(S, K, T, r, sigma)
	if !ok {
		return math.Max(S-K*math.Exp(-r*T), 0)
	}
	price := S*NormCDF(d1) - K*math.Exp(-r*T)*NormCDF(d2)
	return math.Max(price, 0)
}

// PutPrice returns the Black-Scholes price of a European put.
func PutPrice(S, K, T, r, sigma float64) float64 {
	if T <= 0 {
		return math.Max(K-S, 0)
	}
	d1, d2, ok := d1d2(S, K, T, r, sigma)
	if !ok {
		return math.Max(K*math.Exp(-r*T)-S, 0)
	}
	price := K*math.Exp(-r*T)*NormCDF(-d2) - S*NormCDF(-d1)
	return math.Max(price, 0)
}

// Price dispatches on kind. Stock legs are worth the spot price.
func Price(kind models.Kind, S, K, T, r, sigma float64) float64 {
	switch kind {
	case models.KindCall:
		return CallPrice(S, K, T, r, sigma)
	case models.KindPut:
		return PutPrice(S, K, T, r, sigma)
	default:
		return S
	}
}

// ComputeGreeks returns delta, gamma, theta (per day), vega and rho (per 1%).
// Expired options and the σ√T == 0 case have zero Greeks.
func ComputeGreeks(kind models.Kind, S, K, T, r, sigma float64) models.Greeks {
	if kind == models.KindStock {
		return models.Greeks{Delta: 1}
	}
	d1, d2, ok := d1d2(S, K, T, r, sigma)
	if !ok {
		return models.Greeks{}
	}

	sqrtT := math.Sqrt(T)
	pdf := NormPDF(d1)
	discount := math.Exp(-r * T)

	g := models.Greeks{
		Gamma: pdf / (S * sigma * sqrtT),
		Vega:  S * pdf * sqrtT / 100,
	}

	decay := -S * pdf * sigma / (2 * sqrtT)
	if kind == models.KindPut {
		g.Delta = NormCDF(d1) - 1
		g.Theta = (decay + r*K*discount*NormCDF(-d2)) / DaysPerYear
		g.Rho = -K * T * discount * NormCDF(-d2) / 100
	} else {
		g.Delta = NormCDF(d1)
		g.Theta = (decay - r*K*discount*NormCDF(d2)) / DaysPerYear
		g.Rho = K * T * discount * NormCDF(d2) / 100
	}
	return g
}

// Intrinsic returns the exercise value of an option at spot S.
func Intrinsic(kind models.Kind, S, K float64) float64 {
	switch kind {
	case models.KindPut:
		return math.Max(K-S, 0)
	case models.KindCall:
		return math.Max(S-K, 0)
	default:
		return S
	}
}

// WeightedGreeks is a position's per-unit Greeks and signed quantity.
type WeightedGreeks struct {
	Quantity float64
	Greeks   models.Greeks
}

// PortfolioGreeks sums quantity-weighted Greeks.
func PortfolioGreeks(positions []WeightedGreeks) models.Greeks {
	var total models.Greeks
	for _, p := range positions {
		total = total.Add(p.Greeks.Scale(p.Quantity))
	}
	return total
}
