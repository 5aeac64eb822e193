package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"options-lab/internal/models"
	"options-lab/internal/performance"
)

// scratch holds the sort buffers used for quantiles.
var scratch = performance.NewObjectPool(func() *[]float64 {
	buf := make([]float64, 0, 1024)
	return &buf
})

// withSorted calls fn with a sorted copy of xs that is only valid during
// the call.
func withSorted(xs []float64, fn func(sorted []float64)) {
	buf := scratch.Get()
	sorted := append((*buf)[:0], xs...)
	sort.Float64s(sorted)
	fn(sorted)
	*buf = sorted[:0]
	scratch.Put(buf)
}

// ValueAtRisk returns the empirical level-quantile of payoffs, e.g. level
// 0.05 for 95% VaR. The result is always one of the observed payoffs.
func ValueAtRisk(payoffs []float64, level float64) float64 {
	if len(payoffs) == 0 {
		return 0
	}
	var v float64
	withSorted(payoffs, func(sorted []float64) {
		v = stat.Quantile(level, stat.Empirical, sorted, nil)
	})
	return v
}

// ConditionalValueAtRisk returns the mean of payoffs at or below the
// level-quantile.
func ConditionalValueAtRisk(payoffs []float64, level float64) float64 {
	if len(payoffs) == 0 {
		return 0
	}
	var v float64
	withSorted(payoffs, func(sorted []float64) {
		v = tailMean(sorted, stat.Quantile(level, stat.Empirical, sorted, nil))
	})
	return v
}

// tailMean averages the sorted values <= cutoff.
func tailMean(sorted []float64, cutoff float64) float64 {
	n := sort.Search(len(sorted), func(i int) bool { return sorted[i] > cutoff })
	if n == 0 {
		return cutoff
	}
	// a plateau's mean can round one ulp above the cutoff
	return math.Min(stat.Mean(sorted[:n], nil), cutoff)
}

// summarize computes the distribution statistics of a payoff sample.
func summarize(payoffs []float64) *models.SimulationResult {
	res := &models.SimulationResult{Payoffs: payoffs}
	if len(payoffs) == 0 {
		return res
	}

	withSorted(payoffs, func(sorted []float64) {
		q := func(p float64) float64 {
			return stat.Quantile(p, stat.Empirical, sorted, nil)
		}
		res.VaR95 = q(0.05)
		res.VaR99 = q(0.01)
		res.CVaR95 = tailMean(sorted, res.VaR95)
		res.Percentiles = models.Percentiles{
			P5:  res.VaR95,
			P25: q(0.25),
			P50: q(0.50),
			P75: q(0.75),
			P95: q(0.95),
		}
	})

	res.Mean, res.StdDev = stat.PopMeanStdDev(payoffs, nil)
	if res.StdDev > 0 && !math.IsNaN(res.StdDev) {
		res.Sharpe = res.Mean / res.StdDev
	}

	var profit, loss, flat int
	for _, p := range payoffs {
		switch {
		case p > 0:
			profit++
		case p < 0:
			loss++
		default:
			flat++
		}
	}
	n := float64(len(payoffs))
	res.ProbProfit = float64(profit) / n
	res.ProbLoss = float64(loss) / n
	res.ProbBreakeven = float64(flat) / n
	return res
}
