package models

import "math"

// ContractMultiplier is the number of shares one listed option contract controls.
const ContractMultiplier = 100

// Greeks represents option sensitivities per unit of underlying. Theta is per
// calendar day; vega and rho are per one percentage point.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Scale returns the Greeks multiplied by a position quantity.
func (g Greeks) Scale(qty float64) Greeks {
	return Greeks{
		Delta: g.Delta * qty,
		Gamma: g.Gamma * qty,
		Theta: g.Theta * qty,
		Vega:  g.Vega * qty,
		Rho:   g.Rho * qty,
	}
}

// Add returns the sum of two Greeks records.
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
		Rho:   g.Rho + o.Rho,
	}
}

// OptionLeg is one component of a strategy. For stock legs Strike is zero and
// Premium is the entry price; Quantity is shares for stock and contracts for
// options. Positive quantity is long.
type OptionLeg struct {
	Kind     Kind    `json:"kind"`
	Strike   float64 `json:"strike,omitempty"`
	Quantity float64 `json:"quantity"`
	Premium  float64 `json:"premium"`
}

// Intrinsic returns the leg's per-unit terminal value at price.
func (l OptionLeg) Intrinsic(price float64) float64 {
	switch l.Kind {
	case KindCall:
		return math.Max(price-l.Strike, 0)
	case KindPut:
		return math.Max(l.Strike-price, 0)
	default:
		return price
	}
}

// PnL returns the leg's terminal profit at price. Option legs are scaled by
// multiplier; stock legs are already in shares.
func (l OptionLeg) PnL(price, multiplier float64) float64 {
	if l.Kind == KindStock {
		return l.Quantity * (price - l.Premium)
	}
	return l.Quantity * multiplier * (l.Intrinsic(price) - l.Premium)
}

// Cost returns the cash paid to open the leg; negative for credits.
func (l OptionLeg) Cost(multiplier float64) float64 {
	if l.Kind == KindStock {
		return l.Quantity * l.Premium
	}
	return l.Quantity * multiplier * l.Premium
}

// LegsPnL sums the terminal profit of every leg at price.
func LegsPnL(legs []OptionLeg, multiplier, price float64) float64 {
	var total float64
	for _, leg := range legs {
		total += leg.PnL(price, multiplier)
	}
	return total
}

// LegsCost sums the opening cash flow of every leg.
func LegsCost(legs []OptionLeg, multiplier float64) float64 {
	var total float64
	for _, leg := range legs {
		total += leg.Cost(multiplier)
	}
	return total
}

// ProbabilityMethod labels how a strategy's probability of profit was obtained.
type ProbabilityMethod string

const (
	// ProbabilityRiskNeutral is an exact risk-neutral lognormal probability.
	ProbabilityRiskNeutral ProbabilityMethod = "risk_neutral"
	// ProbabilityDriftless ignores drift and uses ln(BE/S)/(σ√T) as a z-score.
	ProbabilityDriftless ProbabilityMethod = "driftless_approx"
	// ProbabilityPlaceholder is a fixed 0.5, not a model output.
	ProbabilityPlaceholder ProbabilityMethod = "placeholder"
)

// Strategy is a named combination of legs with its payoff curve and summary.
type Strategy struct {
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	Legs                []OptionLeg       `json:"legs"`
	Multiplier          float64           `json:"multiplier"`
	Prices              []float64         `json:"prices"`
	Payoffs             []float64         `json:"payoffs"`
	MaxProfit           Bound             `json:"max_profit"`
	MaxLoss             Bound             `json:"max_loss"`
	Breakevens          []float64         `json:"breakevens"`
	NetCost             float64           `json:"net_cost"`
	ProbabilityOfProfit float64           `json:"probability_of_profit"`
	ProbabilityMethod   ProbabilityMethod `json:"probability_method"`
}

// PayoffAt replays the strategy's legs at a terminal price.
func (s *Strategy) PayoffAt(price float64) float64 {
	return LegsPnL(s.Legs, s.Multiplier, price)
}
