package strategy

import (
	"fmt"
	"math"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/pricing"
)

// Strategy names accepted by Build.
const (
	CoveredCallName   = "covered_call"
	ProtectivePutName = "protective_put"
	LongStraddleName  = "long_straddle"
	IronCondorName    = "iron_condor"
	ButterflyName     = "butterfly"
	CollarName        = "collar"
)

func checkShares(name string, shares int) (contracts float64, err error) {
	if shares <= 0 || shares%models.ContractMultiplier != 0 {
		return 0, apperrors.NewStrategyError(name, "invalid share count",
			apperrors.NewValidationError("shares", shares, "must be a positive multiple of 100"))
	}
	return float64(shares / models.ContractMultiplier), nil
}

func checkStrikes(name string, strikes ...float64) error {
	for i, k := range strikes {
		if !(k > 0) || math.IsInf(k, 0) {
			return apperrors.NewStrategyError(name, "invalid strike",
				apperrors.NewValidationError(fmt.Sprintf("strike[%d]", i), k, "must be positive"))
		}
		if i > 0 && k <= strikes[i-1] {
			return apperrors.NewStrategyError(name, "strikes must be strictly increasing",
				apperrors.NewValidationError(fmt.Sprintf("strike[%d]", i), k, fmt.Sprintf("must exceed %.2f", strikes[i-1])))
		}
	}
	return nil
}

// CoveredCall is long stock plus one short call per 100 shares. The maximum
// loss is the stock cost basis net of premium, not an unbounded value.
func CoveredCall(m Market, K float64, shares int) (*models.Strategy, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := checkStrikes(CoveredCallName, K); err != nil {
		return nil, err
	}
	contracts, err := checkShares(CoveredCallName, shares)
	if err != nil {
		return nil, err
	}

	S, n := m.Spot, float64(shares)
	c := pricing.CallPrice(S, K, m.Years, m.Rate, m.Volatility)
	premium := n * c
	breakeven := S - c

	s := &models.Strategy{
		Name:        CoveredCallName,
		Description: fmt.Sprintf("Own %d shares and sell %d call(s) at %.2f", shares, int(contracts), K),
		Legs: []models.OptionLeg{
			{Kind: models.KindStock, Quantity: n, Premium: S},
			{Kind: models.KindCall, Strike: K, Quantity: -contracts, Premium: c},
		},
		MaxProfit:           models.Finite(premium + n*(K-S)),
		MaxLoss:             models.Finite(n*S - premium),
		Breakevens:          []float64{breakeven},
		ProbabilityOfProfit: pricing.ProbabilityAbove(S, breakeven, m.Years, m.Rate, m.Volatility),
		ProbabilityMethod:   models.ProbabilityRiskNeutral,
	}
	return assemble(s, 0.7*S, 1.3*S, 50)
}

// ProtectivePut is long stock plus one long put per 100 shares.
func ProtectivePut(m Market, K float64, shares int) (*models.Strategy, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := checkStrikes(ProtectivePutName, K); err != nil {
		return nil, err
	}
	contracts, err := checkShares(ProtectivePutName, shares)
	if err != nil {
		return nil, err
	}

	S, n := m.Spot, float64(shares)
	p := pricing.PutPrice(S, K, m.Years, m.Rate, m.Volatility)
	breakeven := S + p

	s := &models.Strategy{
		Name:        ProtectivePutName,
		Description: fmt.Sprintf("Own %d shares and buy %d put(s) at %.2f", shares, int(contracts), K),
		Legs: []models.OptionLeg{
			{Kind: models.KindStock, Quantity: n, Premium: S},
			{Kind: models.KindPut, Strike: K, Quantity: contracts, Premium: p},
		},
		MaxProfit:           models.Unlimited(1),
		MaxLoss:             models.Finite(n*(S-K) + n*p),
		Breakevens:          []float64{breakeven},
		ProbabilityOfProfit: pricing.ProbabilityAbove(S, breakeven, m.Years, m.Rate, m.Volatility),
		ProbabilityMethod:   models.ProbabilityRiskNeutral,
	}
	return assemble(s, 0.5*S, 1.5*S, 50)
}

// LongStraddle buys a call and a put at the same strike.
func LongStraddle(m Market, K float64) (*models.Strategy, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := checkStrikes(LongStraddleName, K); err != nil {
		return nil, err
	}

	S := m.Spot
	c := pricing.CallPrice(S, K, m.Years, m.Rate, m.Volatility)
	p := pricing.PutPrice(S, K, m.Years, m.Rate, m.Volatility)
	premium := c + p
	down, up := K-premium, K+premium

	s := &models.Strategy{
		Name:        LongStraddleName,
		Description: fmt.Sprintf("Buy a call and a put at %.2f", K),
		Legs: []models.OptionLeg{
			{Kind: models.KindCall, Strike: K, Quantity: 1, Premium: c},
			{Kind: models.KindPut, Strike: K, Quantity: 1, Premium: p},
		},
		MaxProfit:  models.Unlimited(1),
		MaxLoss:    models.Finite(premium),
		Breakevens: []float64{down, up},
		ProbabilityOfProfit: pricing.ProbabilityAbove(S, up, m.Years, m.Rate, m.Volatility) +
			pricing.ProbabilityBelow(S, down, m.Years, m.Rate, m.Volatility),
		ProbabilityMethod: models.ProbabilityRiskNeutral,
	}
	return assemble(s, 0.6*S, 1.4*S, 50)
}

// IronCondor sells the K1/K2 put spread and the K3/K4 call spread.
// Probability of profit uses the driftless approximation
// N(ln(BEup/S)/(σ√T)) - N(ln(BEdown/S)/(σ√T)).
func IronCondor(m Market, K1, K2, K3, K4 float64) (*models.Strategy, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := checkStrikes(IronCondorName, K1, K2, K3, K4); err != nil {
		return nil, err
	}

	S, T, r, sigma := m.Spot, m.Years, m.Rate, m.Volatility
	p1 := pricing.PutPrice(S, K1, T, r, sigma)
	p2 := pricing.PutPrice(S, K2, T, r, sigma)
	c3 := pricing.CallPrice(S, K3, T, r, sigma)
	c4 := pricing.CallPrice(S, K4, T, r, sigma)

	credit := (p2 - p1) + (c3 - c4)
	down, up := K2-credit, K3+credit

	s := &models.Strategy{
		Name:        IronCondorName,
		Description: fmt.Sprintf("Sell the %.2f/%.2f put spread and the %.2f/%.2f call spread", K1, K2, K3, K4),
		Legs: []models.OptionLeg{
			{Kind: models.KindPut, Strike: K1, Quantity: 1, Premium: p1},
			{Kind: models.KindPut, Strike: K2, Quantity: -1, Premium: p2},
			{Kind: models.KindCall, Strike: K3, Quantity: -1, Premium: c3},
			{Kind: models.KindCall, Strike: K4, Quantity: 1, Premium: c4},
		},
		MaxProfit:           models.Finite(credit),
		MaxLoss:             models.Finite(math.Min(K2-K1, K4-K3) - credit),
		Breakevens:          []float64{down, up},
		ProbabilityOfProfit: driftlessRangeProbability(S, down, up, T, sigma),
		ProbabilityMethod:   models.ProbabilityDriftless,
	}
	return assemble(s, 0.9*K1, 1.1*K4, 100)
}

// driftlessRangeProbability approximates P(lo < S_T < hi) treating
// ln(level/S)/(σ√T) as a standard normal score.
func driftlessRangeProbability(S, lo, hi, T, sigma float64) float64 {
	volSqrtT := sigma * math.Sqrt(T)
	if T <= 0 || volSqrtT == 0 {
		if S > lo && S < hi {
			return 1
		}
		return 0
	}
	score := func(level float64) float64 {
		if level <= 0 {
			return math.Inf(-1)
		}
		return math.Log(level/S) / volSqrtT
	}
	return pricing.NormCDF(score(hi)) - pricing.NormCDF(score(lo))
}

// Butterfly buys K1, sells two K2 and buys K3 options of the same kind.
// Probability of profit is a fixed 0.5 placeholder.
func Butterfly(m Market, K1, K2, K3 float64, kind models.Kind) (*models.Strategy, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if !kind.IsOption() {
		return nil, apperrors.NewStrategyError(ButterflyName, "invalid option kind",
			apperrors.NewValidationError("option_kind", kind, "must be call or put"))
	}
	if err := checkStrikes(ButterflyName, K1, K2, K3); err != nil {
		return nil, err
	}

	S, T, r, sigma := m.Spot, m.Years, m.Rate, m.Volatility
	v1 := pricing.Price(kind, S, K1, T, r, sigma)
	v2 := pricing.Price(kind, S, K2, T, r, sigma)
	v3 := pricing.Price(kind, S, K3, T, r, sigma)
	cost := v1 - 2*v2 + v3

	s := &models.Strategy{
		Name:        ButterflyName,
		Description: fmt.Sprintf("Buy %s %.2f, sell two %ss %.2f, buy %s %.2f", kind, K1, kind, K2, kind, K3),
		Legs: []models.OptionLeg{
			{Kind: kind, Strike: K1, Quantity: 1, Premium: v1},
			{Kind: kind, Strike: K2, Quantity: -2, Premium: v2},
			{Kind: kind, Strike: K3, Quantity: 1, Premium: v3},
		},
		MaxProfit:           models.Finite((K2 - K1) - cost),
		MaxLoss:             models.Finite(cost),
		Breakevens:          []float64{K1 + cost, K3 - cost},
		ProbabilityOfProfit: 0.5,
		ProbabilityMethod:   models.ProbabilityPlaceholder,
	}
	return assemble(s, 0.9*K1, 1.1*K3, 100)
}

// Collar is long stock, long a Kp put and short a Kc call per 100 shares.
// Probability of profit is a fixed 0.5 placeholder.
func Collar(m Market, putStrike, callStrike float64, shares int) (*models.Strategy, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := checkStrikes(CollarName, putStrike, callStrike); err != nil {
		return nil, err
	}
	contracts, err := checkShares(CollarName, shares)
	if err != nil {
		return nil, err
	}

	S, n := m.Spot, float64(shares)
	p := pricing.PutPrice(S, putStrike, m.Years, m.Rate, m.Volatility)
	c := pricing.CallPrice(S, callStrike, m.Years, m.Rate, m.Volatility)

	s := &models.Strategy{
		Name:        CollarName,
		Description: fmt.Sprintf("Own %d shares, buy put %.2f and sell call %.2f", shares, putStrike, callStrike),
		Legs: []models.OptionLeg{
			{Kind: models.KindStock, Quantity: n, Premium: S},
			{Kind: models.KindPut, Strike: putStrike, Quantity: contracts, Premium: p},
			{Kind: models.KindCall, Strike: callStrike, Quantity: -contracts, Premium: c},
		},
		MaxProfit:           models.Finite(n*(callStrike-S) + n*(c-p)),
		MaxLoss:             models.Finite(n*(S-putStrike) + n*(p-c)),
		Breakevens:          []float64{S + p - c},
		ProbabilityOfProfit: 0.5,
		ProbabilityMethod:   models.ProbabilityPlaceholder,
	}
	return assemble(s, 0.6*S, 1.4*S, 50)
}
