package indicators

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"options-lab/internal/models"
	"options-lab/internal/performance"
)

func closesToCandles(closes ...float64) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func ramp(n int, from, step float64) []models.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = from + float64(i)*step
	}
	return closesToCandles(closes...)
}

func TestSMA(t *testing.T) {
	values, err := NewSMA(3).Calculate(closesToCandles(1, 2, 3, 4, 5))
	if err != nil {
		t.Fatalf("SMA: %v", err)
	}
	want := []float64{0, 0, 2, 3, 4}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("SMA[%d] = %v, want %v", i, values[i], want[i])
		}
	}

	if _, err := NewSMA(10).Calculate(closesToCandles(1, 2)); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("short series error = %v", err)
	}
	if _, err := NewSMA(0).Calculate(closesToCandles(1, 2)); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("zero period error = %v", err)
	}
}

func TestRSI(t *testing.T) {
	up, err := NewRSI(14).Calculate(ramp(20, 100, 1))
	if err != nil {
		t.Fatalf("RSI: %v", err)
	}
	if got := up[len(up)-1]; got != 100 {
		t.Errorf("rising RSI = %v, want 100", got)
	}

	down, _ := NewRSI(14).Calculate(ramp(20, 100, -1))
	if got := down[len(down)-1]; got != 0 {
		t.Errorf("falling RSI = %v, want 0", got)
	}

	flat, _ := NewRSI(14).Calculate(ramp(20, 100, 0))
	if got := flat[len(flat)-1]; got != 50 {
		t.Errorf("flat RSI = %v, want 50", got)
	}
}

func TestATR(t *testing.T) {
	values, err := NewATR(3).Calculate(ramp(10, 100, 0))
	if err != nil {
		t.Fatalf("ATR: %v", err)
	}
	if got := values[len(values)-1]; math.Abs(got-2) > 1e-12 {
		t.Errorf("ATR = %v, want 2", got)
	}
}

func TestBollingerBands(t *testing.T) {
	bands, err := NewBollingerBands(4, 2).Calculate(closesToCandles(1, 2, 3, 4))
	if err != nil {
		t.Fatalf("Bollinger: %v", err)
	}
	sd := math.Sqrt(5.0 / 3.0)
	if got := bands["middle"][3]; got != 2.5 {
		t.Errorf("middle = %v, want 2.5", got)
	}
	if got := bands["upper"][3]; math.Abs(got-(2.5+2*sd)) > 1e-12 {
		t.Errorf("upper = %v, want %v", got, 2.5+2*sd)
	}
	if got := bands["lower"][3]; math.Abs(got-(2.5-2*sd)) > 1e-12 {
		t.Errorf("lower = %v, want %v", got, 2.5-2*sd)
	}
}

func TestHistoricalVolatility(t *testing.T) {
	hv := NewHistoricalVolatility(TradingDaysPerYear, 0.2)

	t.Run("constant growth has zero volatility", func(t *testing.T) {
		closes := make([]float64, 30)
		for i := range closes {
			closes[i] = 100 * math.Pow(1.01, float64(i))
		}
		vol, ok := hv.Estimate(closesToCandles(closes...))
		if !ok || vol > 1e-9 {
			t.Errorf("Estimate = %v, %v; want ~0, true", vol, ok)
		}
	})

	t.Run("alternating returns", func(t *testing.T) {
		closes := []float64{100, 110, 100, 110, 100}
		vol, ok := hv.Estimate(closesToCandles(closes...))
		r := math.Log(1.1)
		// Returns are +r,-r,+r,-r: sample std = r*sqrt(4/3).
		want := r * math.Sqrt(4.0/3.0) * math.Sqrt(252)
		if !ok || math.Abs(vol-want) > 1e-9 {
			t.Errorf("Estimate = %v, want %v", vol, want)
		}
	})

	t.Run("fallback on short history", func(t *testing.T) {
		vol, ok := hv.Estimate(closesToCandles(100, 101))
		if ok || vol != 0.2 {
			t.Errorf("Estimate = %v, %v; want 0.2, false", vol, ok)
		}
	})

	t.Run("window clamps to recent returns", func(t *testing.T) {
		closes := []float64{100, 150, 50, 100, 101, 102.01}
		vol, ok := NewHistoricalVolatility(2, 0.2).Estimate(closesToCandles(closes...))
		if !ok || vol > 1e-9 {
			t.Errorf("Estimate = %v, want ~0 over last two returns", vol)
		}
	})
}

func TestEngineTechnicals(t *testing.T) {
	pool := performance.NewWorkerPool(2)
	pool.Start()
	defer pool.Stop()
	engine := NewDefaultEngine(pool)

	if got := len(engine.ListIndicators()); got != 5 {
		t.Fatalf("registered %d indicators, want 5", got)
	}

	tech, err := engine.Technicals(context.Background(), ramp(30, 100, 1))
	if err != nil {
		t.Fatalf("Technicals: %v", err)
	}
	if tech.RSI14 == nil || *tech.RSI14 != 100 {
		t.Errorf("RSI14 = %v", tech.RSI14)
	}
	if tech.SMA20 == nil || *tech.SMA20 != 119.5 {
		t.Errorf("SMA20 = %v, want 119.5", tech.SMA20)
	}
	if tech.SMA50 != nil {
		t.Errorf("SMA50 = %v, want nil with 30 candles", *tech.SMA50)
	}
	if tech.BollingerUpper == nil || tech.BollingerLower == nil || *tech.BollingerLower >= *tech.BollingerUpper {
		t.Errorf("Bollinger bands = %v / %v", tech.BollingerLower, tech.BollingerUpper)
	}
	if tech.ATR14 == nil {
		t.Error("ATR14 missing")
	}

	if _, err := engine.Calculate(context.Background(), "nope", nil); err == nil {
		t.Error("unknown indicator should fail")
	}
}

func TestEngineCancelled(t *testing.T) {
	pool := performance.NewWorkerPool(1)
	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDefaultEngine(pool).Technicals(ctx, ramp(30, 100, 1)); err == nil {
		t.Error("cancelled context should fail")
	}
}
