package models

import "time"

// Moneyness classes.
const (
	MoneynessITM = "ITM"
	MoneynessATM = "ATM"
	MoneynessOTM = "OTM"
)

// ChainQuote is one raw row of an option chain snapshot. Kind is optional and
// is inferred from ContractSymbol when empty.
type ChainQuote struct {
	ContractSymbol    string  `json:"contract_symbol,omitempty" yaml:"contract_symbol"`
	Kind              Kind    `json:"kind,omitempty" yaml:"kind"`
	Strike            float64 `json:"strike" yaml:"strike"`
	LastPrice         float64 `json:"last_price" yaml:"last_price"`
	Bid               float64 `json:"bid" yaml:"bid"`
	Ask               float64 `json:"ask" yaml:"ask"`
	Volume            int64   `json:"volume" yaml:"volume"`
	OpenInterest      int64   `json:"open_interest" yaml:"open_interest"`
	ImpliedVolatility float64 `json:"implied_volatility,omitempty" yaml:"implied_volatility"`
}

// ChainRow is an analysed chain row. ImpliedVol is nil when the solver fell
// back to the configured volatility; VolatilityUsed is what priced the row.
type ChainRow struct {
	ContractSymbol   string   `json:"contract_symbol,omitempty"`
	Kind             Kind     `json:"kind"`
	KindInferred     bool     `json:"kind_inferred"`
	Strike           float64  `json:"strike"`
	LastPrice        float64  `json:"last_price"`
	Bid              float64  `json:"bid"`
	Ask              float64  `json:"ask"`
	MarketPrice      float64  `json:"market_price"`
	Midpoint         float64  `json:"midpoint"`
	Spread           float64  `json:"spread"`
	SpreadPct        float64  `json:"spread_pct"`
	Volume           int64    `json:"volume"`
	OpenInterest     int64    `json:"open_interest"`
	ImpliedVol       *float64 `json:"implied_vol"`
	VolatilityUsed   float64  `json:"volatility_used"`
	IVFallback       bool     `json:"iv_fallback"`
	TheoreticalPrice float64  `json:"theoretical_price"`
	Greeks           Greeks   `json:"greeks"`
	ProbITM          float64  `json:"prob_itm"`
	Moneyness        float64  `json:"moneyness"`
	MoneynessClass   string   `json:"moneyness_class"`
	IntrinsicValue   float64  `json:"intrinsic_value"`
	TimeValue        float64  `json:"time_value"`
}

// SkippedRow records a chain row that was left out of the analysis.
type SkippedRow struct {
	Index          int    `json:"index"`
	ContractSymbol string `json:"contract_symbol,omitempty"`
	Reason         string `json:"reason"`
}

// ChainAnalysis is the result of a batch chain analysis.
type ChainAnalysis struct {
	Spot       float64      `json:"spot"`
	Rate       float64      `json:"rate"`
	Expiration time.Time    `json:"expiration"`
	Years      float64      `json:"years"`
	Rows       []ChainRow   `json:"rows"`
	Skipped    []SkippedRow `json:"skipped"`
}

// SkippedCount returns the number of rows left out of the analysis.
func (a *ChainAnalysis) SkippedCount() int {
	return len(a.Skipped)
}
