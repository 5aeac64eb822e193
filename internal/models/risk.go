package models

import "time"

// Percentiles is the fixed percentile ladder of a payoff distribution.
type Percentiles struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// SimulationResult summarises a Monte Carlo payoff distribution.
type SimulationResult struct {
	Seed          uint64      `json:"seed"`
	Paths         int         `json:"paths"`
	Steps         int         `json:"steps"`
	Payoffs       []float64   `json:"payoffs,omitempty"`
	FinalPrices   []float64   `json:"final_prices,omitempty"`
	Mean          float64     `json:"expected_return"`
	StdDev        float64     `json:"volatility"`
	Sharpe        float64     `json:"sharpe_ratio"`
	VaR95         float64     `json:"var_95"`
	VaR99         float64     `json:"var_99"`
	CVaR95        float64     `json:"cvar_95"`
	ProbProfit    float64     `json:"prob_profit"`
	ProbLoss      float64     `json:"prob_loss"`
	ProbBreakeven float64     `json:"prob_breakeven"`
	Percentiles   Percentiles `json:"percentiles"`
}

// StressScenario is a deterministic price shock. VolChange and TimeDecayDays
// are carried for reporting; stress P&L is intrinsic-value only.
type StressScenario struct {
	Name          string  `json:"name" yaml:"name" mapstructure:"name"`
	PriceChange   float64 `json:"price_change" yaml:"price_change" mapstructure:"price_change"`
	VolChange     float64 `json:"vol_change" yaml:"vol_change" mapstructure:"vol_change"`
	TimeDecayDays int     `json:"time_decay_days" yaml:"time_decay_days" mapstructure:"time_decay_days"`
}

// StressResult is the outcome of one stress scenario.
type StressResult struct {
	Scenario      StressScenario `json:"scenario"`
	ScenarioPrice float64        `json:"scenario_price"`
	TotalPnL      float64        `json:"total_pnl"`
	ReturnPct     float64        `json:"return_pct"`
}

// Position is a holding used for portfolio Greeks aggregation. Expiration is
// required for options; ImpliedVol overrides the market volatility when > 0.
type Position struct {
	Symbol     string  `json:"symbol" yaml:"symbol"`
	Kind       Kind    `json:"kind" yaml:"kind" validate:"required,oneof=call put stock"`
	Quantity   float64 `json:"quantity" yaml:"quantity"`
	Strike     float64 `json:"strike,omitempty" yaml:"strike"`
	Expiration string  `json:"expiration,omitempty" yaml:"expiration"`
	ImpliedVol float64 `json:"implied_vol,omitempty" yaml:"implied_vol"`
}

// PortfolioRisk is the aggregated Greeks view of a set of positions.
type PortfolioRisk struct {
	Value         float64 `json:"portfolio_value"`
	Net           Greeks  `json:"net_greeks"`
	HedgeShares   float64 `json:"delta_hedge_shares"`
	HedgeCost     float64 `json:"delta_hedge_cost"`
	GammaRisk1Pct float64 `json:"gamma_risk_1pct"`
	DailyTheta    float64 `json:"daily_theta_decay"`
	VegaRisk1Pct  float64 `json:"vega_risk_1pct"`
	DeltaNeutral  bool    `json:"delta_neutral"`
	GammaNeutral  bool    `json:"gamma_neutral"`
	Expired       int     `json:"expired_positions"`
}

// BasicMetrics are the closed-form metrics copied from a strategy into a report.
type BasicMetrics struct {
	MaxProfit           Bound             `json:"max_profit"`
	MaxLoss             Bound             `json:"max_loss"`
	Breakevens          []float64         `json:"breakevens"`
	NetCost             float64           `json:"net_cost"`
	ProbabilityOfProfit float64           `json:"probability_of_profit"`
	ProbabilityMethod   ProbabilityMethod `json:"probability_method"`
}

// RiskMetrics are the Monte Carlo figures copied into a report.
type RiskMetrics struct {
	ExpectedReturn float64    `json:"expected_return"`
	Volatility     float64    `json:"volatility"`
	VaR95          float64    `json:"var_95"`
	CVaR95         float64    `json:"cvar_95"`
	ProbProfit     float64    `json:"prob_profit"`
	Tail           []TailRisk `json:"tail,omitempty"`
}

// TailRisk is the VaR and CVaR of a payoff sample at one tail probability,
// e.g. Level 0.05 for 95% confidence.
type TailRisk struct {
	Level      float64 `json:"level"`
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
}

// RiskReport is a complete risk summary of one strategy.
type RiskReport struct {
	ID           string                  `json:"id"`
	StrategyName string                  `json:"strategy_name"`
	GeneratedAt  time.Time               `json:"generated_at"`
	Market       MarketConditions        `json:"market_conditions"`
	Basic        BasicMetrics            `json:"basic_metrics"`
	Risk         *RiskMetrics            `json:"risk_metrics,omitempty"`
	StressTests  map[string]StressResult `json:"stress_tests"`
}

// Liquidity classes.
const (
	LiquidityHigh   = "high"
	LiquidityMedium = "medium"
	LiquidityLow    = "low"
)

// LiquidityAssessment summarises chain liquidity.
type LiquidityAssessment struct {
	Rows             int            `json:"rows"`
	AvgVolume        float64        `json:"avg_volume"`
	AvgOpenInterest  float64        `json:"avg_open_interest"`
	AvgSpreadPct     float64        `json:"avg_spread_pct"`
	Distribution     map[string]int `json:"distribution"`
	HighLiquidityPct float64        `json:"high_liquidity_pct"`
}

// CorrelationResult is the output of the standalone correlation helper.
type CorrelationResult struct {
	Names                []string    `json:"names"`
	Matrix               [][]float64 `json:"correlation_matrix"`
	Eigenvalues          []float64   `json:"eigenvalues"`
	DiversificationRatio float64     `json:"diversification_ratio"`
	MaxCorrelation       float64     `json:"max_correlation"`
	MinCorrelation       float64     `json:"min_correlation"`
}
