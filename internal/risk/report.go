package risk

import (
	"time"

	"github.com/google/uuid"

	"options-lab/internal/models"
)

// DefaultTailLevels are the tail probabilities reported when none are
// configured.
func DefaultTailLevels() []float64 {
	return []float64{0.01, 0.05, 0.10}
}

// GenerateReport assembles a risk report for a strategy. sim is optional;
// scenarios defaults to DefaultScenarios and tailLevels to DefaultTailLevels
// when nil. The tail table needs the simulated payoffs.
func GenerateReport(s *models.Strategy, market models.MarketConditions, sim *models.SimulationResult, scenarios []models.StressScenario, tailLevels []float64, now time.Time) (*models.RiskReport, error) {
	stress, err := StressTest(s, market.Spot, scenarios)
	if err != nil {
		return nil, err
	}

	report := &models.RiskReport{
		ID:           uuid.NewString(),
		StrategyName: s.Name,
		GeneratedAt:  now.UTC(),
		Market:       market,
		Basic: models.BasicMetrics{
			MaxProfit:           s.MaxProfit,
			MaxLoss:             s.MaxLoss,
			Breakevens:          append([]float64(nil), s.Breakevens...),
			NetCost:             s.NetCost,
			ProbabilityOfProfit: s.ProbabilityOfProfit,
			ProbabilityMethod:   s.ProbabilityMethod,
		},
		StressTests: stress,
	}
	if sim != nil {
		report.Risk = &models.RiskMetrics{
			ExpectedReturn: sim.Mean,
			Volatility:     sim.StdDev,
			VaR95:          sim.VaR95,
			CVaR95:         sim.CVaR95,
			ProbProfit:     sim.ProbProfit,
		}
		if tailLevels == nil {
			tailLevels = DefaultTailLevels()
		}
		if len(sim.Payoffs) > 0 {
			for _, level := range tailLevels {
				report.Risk.Tail = append(report.Risk.Tail, models.TailRisk{
					Level:      level,
					Confidence: 1 - level,
					VaR:        ValueAtRisk(sim.Payoffs, level),
					CVaR:       ConditionalValueAtRisk(sim.Payoffs, level),
				})
			}
		}
	}
	return report, nil
}
