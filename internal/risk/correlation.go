package risk

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
)

// Correlate analyses equally long return series, one per name: the
// correlation matrix, its eigenvalues in descending order, the equal-weight
// diversification ratio Σwσ / √(wᵀΣw) and the extreme off-diagonal
// correlations.
func Correlate(names []string, series [][]float64) (*models.CorrelationResult, error) {
	k := len(series)
	if k < 2 {
		return nil, apperrors.NewValidationError("series", k, "need at least two series")
	}
	if len(names) != k {
		return nil, apperrors.NewValidationError("names", len(names), fmt.Sprintf("expected %d names", k))
	}
	n := len(series[0])
	if n < 2 {
		return nil, apperrors.NewValidationError("series", n, "need at least two observations")
	}

	x := mat.NewDense(n, k, nil)
	for j, s := range series {
		if len(s) != n {
			return nil, apperrors.NewValidationError(names[j], len(s), fmt.Sprintf("expected %d observations", n))
		}
		if _, sd := stat.MeanStdDev(s, nil); !(sd > 0) {
			return nil, apperrors.NewValidationError(names[j], sd, "series has no variance")
		}
		x.SetCol(j, s)
	}

	var corr, cov mat.SymDense
	stat.CorrelationMatrix(&corr, x, nil)
	stat.CovarianceMatrix(&cov, x, nil)

	var eig mat.EigenSym
	if !eig.Factorize(&corr, false) {
		return nil, apperrors.Wrap(apperrors.ErrInputValidation, "correlation matrix eigendecomposition failed")
	}
	values := eig.Values(nil)
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))

	w := 1 / float64(k)
	weights := mat.NewVecDense(k, nil)
	var weightedVol float64
	for j := 0; j < k; j++ {
		weights.SetVec(j, w)
		weightedVol += w * math.Sqrt(cov.At(j, j))
	}
	portfolioVar := mat.Inner(weights, &cov, weights)

	out := &models.CorrelationResult{
		Names:          append([]string(nil), names...),
		Matrix:         make([][]float64, k),
		Eigenvalues:    values,
		MaxCorrelation: math.Inf(-1),
		MinCorrelation: math.Inf(1),
	}
	if portfolioVar > 0 {
		out.DiversificationRatio = weightedVol / math.Sqrt(portfolioVar)
	}
	for i := 0; i < k; i++ {
		out.Matrix[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			c := corr.At(i, j)
			out.Matrix[i][j] = c
			if i != j {
				out.MaxCorrelation = math.Max(out.MaxCorrelation, c)
				out.MinCorrelation = math.Min(out.MinCorrelation, c)
			}
		}
	}
	return out, nil
}
