package indicators

import (
	"fmt"

	"options-lab/internal/models"
)

// closeSeries is an indicator computed from closing prices alone. Values
// before the first complete lookback are zero.
type closeSeries struct {
	label  string
	period int
	// minimum candles needed for one value
	need int
	calc func(closes []float64, period int) []float64
}

func (c *closeSeries) Name() string { return fmt.Sprintf("%s_%d", c.label, c.period) }

func (c *closeSeries) Period() int { return c.period }

func (c *closeSeries) Calculate(candles []models.Candle) ([]float64, error) {
	if c.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < c.need {
		return nil, ErrInsufficientData
	}
	return c.calc(closePrices(candles), c.period), nil
}

// NewSMA returns the simple moving average of closes over period candles.
func NewSMA(period int) Indicator {
	return &closeSeries{label: "SMA", period: period, need: period, calc: rollingMean}
}

func rollingMean(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}
