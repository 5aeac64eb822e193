package pricing

import (
	"math"
	"sort"
	"time"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
)

// DaysPerYearExpiry is the day count used to turn an expiry date into years.
const DaysPerYearExpiry = 365.25

// ExpirationLayout is the date format of expiration strings.
const ExpirationLayout = "2006-01-02"

// ATMBand is the fractional distance from the strike treated as at-the-money.
const ATMBand = 0.02

// Probabilities are risk-neutral terminal and barrier probabilities.
type Probabilities struct {
	ITMCall float64 `json:"prob_itm_call"`
	ITMPut  float64 `json:"prob_itm_put"`
	Touch   float64 `json:"prob_touch"`
}

// ComputeProbabilities returns N(d2), N(-d2) and the reflection-principle
// probability of touching the strike, capped at 1. At expiry the ITM values
// are indicators and the touch probability is zero.
func ComputeProbabilities(S, K, T, r, sigma float64) Probabilities {
	_, d2, ok := d1d2(S, K, T, r, sigma)
	if !ok {
		p := Probabilities{}
		if S > K {
			p.ITMCall = 1
		} else if S < K {
			p.ITMPut = 1
		}
		return p
	}

	touch := 2 * NormCDF(-math.Abs(math.Log(S/K))/(sigma*math.Sqrt(T)))
	return Probabilities{
		ITMCall: NormCDF(d2),
		ITMPut:  NormCDF(-d2),
		Touch:   math.Min(touch, 1),
	}
}

// ProbabilityAbove returns the risk-neutral probability that the terminal
// price finishes above level.
func ProbabilityAbove(S, level, T, r, sigma float64) float64 {
	if level <= 0 {
		return 1
	}
	return ComputeProbabilities(S, level, T, r, sigma).ITMCall
}

// ProbabilityBelow returns the risk-neutral probability that the terminal
// price finishes below level.
func ProbabilityBelow(S, level, T, r, sigma float64) float64 {
	if level <= 0 {
		return 0
	}
	return ComputeProbabilities(S, level, T, r, sigma).ITMPut
}

// TimeToExpiration returns the years between now and expiry, floored at zero.
func TimeToExpiration(expiry, now time.Time) float64 {
	days := expiry.Sub(now).Hours() / 24
	if days <= 0 {
		return 0
	}
	return days / DaysPerYearExpiry
}

// ParseExpiration parses a YYYY-MM-DD expiration date.
func ParseExpiration(s string) (time.Time, error) {
	t, err := time.Parse(ExpirationLayout, s)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError("expiration", s, "expected YYYY-MM-DD")
	}
	return t, nil
}

// ClassifyMoneyness returns ITM, ATM or OTM using a ±2% band around the strike.
func ClassifyMoneyness(kind models.Kind, S, K float64) string {
	above := S > K*(1+ATMBand)
	below := S < K*(1-ATMBand)
	if kind == models.KindPut {
		above, below = below, above
	}
	switch {
	case above:
		return models.MoneynessITM
	case below:
		return models.MoneynessOTM
	default:
		return models.MoneynessATM
	}
}

// VolPoint is one point of a volatility smile.
type VolPoint struct {
	Strike     float64
	Volatility float64
}

// InterpolateVolatility linearly interpolates the smile at strike. Points
// outside the smile are flat-extrapolated; an empty smile returns fallback.
func InterpolateVolatility(points []VolPoint, strike, fallback float64) float64 {
	valid := make([]VolPoint, 0, len(points))
	for _, p := range points {
		if p.Volatility > 0 && !math.IsNaN(p.Volatility) {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return fallback
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Strike < valid[j].Strike })

	if strike <= valid[0].Strike {
		return valid[0].Volatility
	}
	last := valid[len(valid)-1]
	if strike >= last.Strike {
		return last.Volatility
	}
	for i := 1; i < len(valid); i++ {
		lo, hi := valid[i-1], valid[i]
		if strike <= hi.Strike {
			if hi.Strike == lo.Strike {
				return hi.Volatility
			}
			w := (strike - lo.Strike) / (hi.Strike - lo.Strike)
			return lo.Volatility + w*(hi.Volatility-lo.Volatility)
		}
	}
	return last.Volatility
}
