package indicators

import (
	"fmt"
	"math"

	"options-lab/internal/models"
)

// TradingDaysPerYear annualises daily volatility.
const TradingDaysPerYear = 252

// ATR calculates the Average True Range.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < a.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	tr := make([]float64, n)

	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < n; i++ {
		tr[i] = trueRange(candles[i], candles[i-1])
	}

	// Seed with the SMA of TR, then Wilder smoothing.
	result[a.period-1] = mean(tr[:a.period])
	for i := a.period; i < n; i++ {
		result[i] = (result[i-1]*float64(a.period-1) + tr[i]) / float64(a.period)
	}

	return result, nil
}

// BollingerBands calculates Bollinger Bands around an SMA using the sample
// standard deviation of the window.
type BollingerBands struct {
	period    int
	stdDevMul float64
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(period int, stdDevMul float64) *BollingerBands {
	return &BollingerBands{period: period, stdDevMul: stdDevMul}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BB_%d_%.1f", b.period, b.stdDevMul)
}

func (b *BollingerBands) Period() int {
	return b.period
}

// Calculate returns "upper", "middle" and "lower" series.
func (b *BollingerBands) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if b.period < 2 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < b.period {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	closes := closePrices(candles)
	upper := make([]float64, n)
	middle := make([]float64, n)
	lower := make([]float64, n)

	for i := b.period - 1; i < n; i++ {
		window := closes[i-b.period+1 : i+1]
		m := mean(window)
		sd := sampleStdDev(window)
		middle[i] = m
		upper[i] = m + b.stdDevMul*sd
		lower[i] = m - b.stdDevMul*sd
	}

	return map[string][]float64{
		"upper":  upper,
		"middle": middle,
		"lower":  lower,
	}, nil
}

// HistoricalVolatility annualises the sample standard deviation of daily log
// returns over the most recent window.
type HistoricalVolatility struct {
	window   int
	fallback float64
}

// NewHistoricalVolatility creates an estimator over the last window returns.
// fallback is reported when fewer than two returns are available.
func NewHistoricalVolatility(window int, fallback float64) *HistoricalVolatility {
	return &HistoricalVolatility{window: window, fallback: fallback}
}

func (h *HistoricalVolatility) Name() string {
	return fmt.Sprintf("HV_%d", h.window)
}

func (h *HistoricalVolatility) Period() int {
	return h.window
}

// Estimate returns the annualised volatility as a decimal and whether it was
// computed from data rather than the fallback. A window longer than the
// available history is clamped to it.
func (h *HistoricalVolatility) Estimate(candles []models.Candle) (float64, bool) {
	returns := LogReturns(closePrices(candles))
	if len(returns) < 2 || h.window < 2 {
		return h.fallback, false
	}
	w := min(h.window, len(returns))
	sd := sampleStdDev(returns[len(returns)-w:])
	vol := sd * math.Sqrt(TradingDaysPerYear)
	if math.IsNaN(vol) || math.IsInf(vol, 0) {
		return h.fallback, false
	}
	return vol, true
}

// Calculate returns the rolling estimate for every candle once window returns
// are available.
func (h *HistoricalVolatility) Calculate(candles []models.Candle) ([]float64, error) {
	if h.window < 2 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < h.window+1 {
		return nil, ErrInsufficientData
	}
	closes := closePrices(candles)
	result := make([]float64, len(candles))
	for i := h.window; i < len(candles); i++ {
		returns := LogReturns(closes[i-h.window : i+1])
		result[i] = sampleStdDev(returns) * math.Sqrt(TradingDaysPerYear)
	}
	return result, nil
}
