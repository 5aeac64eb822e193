package risk

import "options-lab/internal/models"

// ClassifyLiquidity grades a single chain row by volume, open interest and
// bid/ask spread as a percentage of the midpoint.
func ClassifyLiquidity(volume, openInterest int64, spreadPct float64) string {
	switch {
	case volume > 100 && openInterest > 500 && spreadPct < 5:
		return models.LiquidityHigh
	case volume > 10 && openInterest > 100 && spreadPct < 10:
		return models.LiquidityMedium
	default:
		return models.LiquidityLow
	}
}

// AssessLiquidity summarises the liquidity of analysed chain rows. Each row
// is classified with its own spread.
func AssessLiquidity(rows []models.ChainRow) models.LiquidityAssessment {
	out := models.LiquidityAssessment{
		Rows:         len(rows),
		Distribution: map[string]int{},
	}
	if len(rows) == 0 {
		return out
	}

	var vol, oi, spread float64
	for _, row := range rows {
		vol += float64(row.Volume)
		oi += float64(row.OpenInterest)
		spread += row.SpreadPct
		out.Distribution[ClassifyLiquidity(row.Volume, row.OpenInterest, row.SpreadPct)]++
	}
	n := float64(len(rows))
	out.AvgVolume = vol / n
	out.AvgOpenInterest = oi / n
	out.AvgSpreadPct = spread / n
	out.HighLiquidityPct = float64(out.Distribution[models.LiquidityHigh]) / n * 100
	return out
}
