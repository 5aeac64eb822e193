package risk

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"options-lab/internal/strategy"
)

// Property: for any seed and market, the payoff tail statistics are ordered
// CVaR95 <= VaR95 <= median and VaR99 <= VaR95.
func TestPropertyTailOrdering(t *testing.T) {
	sim, err := NewSimulator(Config{Steps: 4, Workers: 4}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	defer sim.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("tail ordering", prop.ForAll(
		func(seed uint64, sigma, T float64) bool {
			m := strategy.Market{Spot: 100, Years: T, Rate: 0.03, Volatility: sigma}
			s, err := strategy.IronCondor(m, 85, 95, 105, 115)
			if err != nil {
				t.Logf("IronCondor: %v", err)
				return false
			}
			res, err := sim.WithSeed(seed|1).Analyze(context.Background(), s, 100, 0.03, sigma, T, 500)
			if err != nil {
				t.Logf("Analyze: %v", err)
				return false
			}
			p := res.Percentiles
			return res.CVaR95 <= res.VaR95 &&
				res.VaR99 <= res.VaR95 &&
				p.P5 <= p.P25 && p.P25 <= p.P50 && p.P50 <= p.P75 && p.P75 <= p.P95 &&
				res.ProbProfit >= 0 && res.ProbProfit <= 1
		},
		gen.UInt64(),
		gen.Float64Range(0.05, 1),
		gen.Float64Range(0.02, 2),
	))

	properties.TestingRun(t)
}

// Property: terminal prices depend only on the seed, never on the worker count.
func TestPropertyWorkerCountInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("same seed, same paths", prop.ForAll(
		func(seed uint64, workers int) bool {
			a, err := NewSimulator(Config{Seed: seed | 1, Workers: 1, ChunkSize: 7}, zerolog.Nop(), nil)
			if err != nil {
				return false
			}
			defer a.Close()
			b, err := NewSimulator(Config{Seed: seed | 1, Workers: workers, ChunkSize: 13}, zerolog.Nop(), nil)
			if err != nil {
				return false
			}
			defer b.Close()

			ctx := context.Background()
			x, err1 := a.SimulatePaths(ctx, 50, 0.02, 0.4, 1, 200, 8)
			y, err2 := b.SimulatePaths(ctx, 50, 0.02, 0.4, 1, 200, 8)
			if err1 != nil || err2 != nil {
				return false
			}
			for i := range x {
				if x[i] != y[i] {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
		gen.IntRange(2, 16),
	))

	properties.TestingRun(t)
}
