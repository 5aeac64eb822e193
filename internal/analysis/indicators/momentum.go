package indicators

// NewRSI returns the relative strength index over period candles with
// Wilder smoothing.
func NewRSI(period int) Indicator {
	return &closeSeries{label: "RSI", period: period, need: period + 1, calc: wilderRSI}
}

func wilderRSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	p := float64(period)

	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		gain, loss := 0.0, 0.0
		if d := closes[i] - closes[i-1]; d > 0 {
			gain = d
		} else {
			loss = -d
		}

		switch {
		case i < period:
			avgGain += gain
			avgLoss += loss
			continue
		case i == period:
			avgGain = (avgGain + gain) / p
			avgLoss = (avgLoss + loss) / p
		default:
			avgGain = (avgGain*(p-1) + gain) / p
			avgLoss = (avgLoss*(p-1) + loss) / p
		}
		out[i] = strength(avgGain, avgLoss)
	}
	return out
}

// strength maps average gain and loss to 0..100; a flat series reads 50.
func strength(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
