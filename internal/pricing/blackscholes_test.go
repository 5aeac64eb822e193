package pricing

import (
	"math"
	"testing"
	"time"

	"options-lab/internal/models"
)

const tolerance = 1e-4

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestBlackScholesReferenceValues(t *testing.T) {
	S, K, T, r, sigma := 100.0, 100.0, 0.25, 0.05, 0.30

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"call price", CallPrice(S, K, T, r, sigma), 6.583084},
		{"put price", PutPrice(S, K, T, r, sigma), 5.340865},
		{"call delta", ComputeGreeks(models.KindCall, S, K, T, r, sigma).Delta, 0.562903},
		{"put delta", ComputeGreeks(models.KindPut, S, K, T, r, sigma).Delta, 0.562903 - 1},
		{"gamma", ComputeGreeks(models.KindCall, S, K, T, r, sigma).Gamma, 0.026265},
		{"vega per 1%", ComputeGreeks(models.KindCall, S, K, T, r, sigma).Vega, 0.196986},
		{"call theta per day", ComputeGreeks(models.KindCall, S, K, T, r, sigma).Theta, -0.039191},
		{"call rho per 1%", ComputeGreeks(models.KindCall, S, K, T, r, sigma).Rho, 0.124268},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !approxEqual(tt.got, tt.want, tolerance) {
				t.Errorf("got %.6f, want %.6f", tt.got, tt.want)
			}
		})
	}
}

func TestExpiredOptionsPayIntrinsic(t *testing.T) {
	tests := []struct {
		name string
		kind models.Kind
		S, K float64
		want float64
	}{
		{"itm call", models.KindCall, 110, 100, 10},
		{"otm call", models.KindCall, 90, 100, 0},
		{"itm put", models.KindPut, 90, 100, 10},
		{"otm put", models.KindPut, 110, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, T := range []float64{0, -0.5} {
				if got := Price(tt.kind, tt.S, tt.K, T, 0.05, 0.3); got != tt.want {
					t.Errorf("Price(T=%v) = %v, want %v", T, got, tt.want)
				}
				if g := ComputeGreeks(tt.kind, tt.S, tt.K, T, 0.05, 0.3); g != (models.Greeks{}) {
					t.Errorf("Greeks(T=%v) = %+v, want zero", T, g)
				}
			}
		})
	}
}

func TestZeroVolatilityIsDiscountedIntrinsic(t *testing.T) {
	S, K, T, r := 100.0, 95.0, 1.0, 0.05
	want := S - K*math.Exp(-r*T)
	if got := CallPrice(S, K, T, r, 0); !approxEqual(got, want, 1e-12) {
		t.Errorf("CallPrice(σ=0) = %v, want %v", got, want)
	}
	if got := PutPrice(S, K, T, r, 0); got != 0 {
		t.Errorf("PutPrice(σ=0) = %v, want 0", got)
	}
}

func TestStockLegPricing(t *testing.T) {
	if got := Price(models.KindStock, 123, 0, 1, 0.05, 0.2); got != 123 {
		t.Errorf("stock price = %v, want spot", got)
	}
	if g := ComputeGreeks(models.KindStock, 123, 0, 1, 0.05, 0.2); g.Delta != 1 || g.Gamma != 0 {
		t.Errorf("stock greeks = %+v", g)
	}
}

func TestComputeProbabilities(t *testing.T) {
	p := ComputeProbabilities(100, 100, 0.25, 0.05, 0.3)
	if !approxEqual(p.ITMCall, 0.503324, tolerance) {
		t.Errorf("ITMCall = %v", p.ITMCall)
	}
	if !approxEqual(p.ITMCall+p.ITMPut, 1, 1e-12) {
		t.Errorf("ITM probabilities should sum to 1, got %v", p.ITMCall+p.ITMPut)
	}
	if p.Touch != 1 {
		t.Errorf("ATM touch probability should be capped at 1, got %v", p.Touch)
	}

	otm := ComputeProbabilities(100, 110, 0.25, 0.05, 0.3)
	if !approxEqual(otm.Touch, 0.525167, tolerance) {
		t.Errorf("Touch = %v, want 0.525167", otm.Touch)
	}

	expired := ComputeProbabilities(105, 100, 0, 0.05, 0.3)
	if expired != (Probabilities{ITMCall: 1}) {
		t.Errorf("expired probabilities = %+v", expired)
	}
}

func TestClassifyMoneyness(t *testing.T) {
	tests := []struct {
		kind models.Kind
		S    float64
		want string
	}{
		{models.KindCall, 103, models.MoneynessITM},
		{models.KindCall, 101, models.MoneynessATM},
		{models.KindCall, 97, models.MoneynessOTM},
		{models.KindPut, 97, models.MoneynessITM},
		{models.KindPut, 99, models.MoneynessATM},
		{models.KindPut, 103, models.MoneynessOTM},
	}
	for _, tt := range tests {
		if got := ClassifyMoneyness(tt.kind, tt.S, 100); got != tt.want {
			t.Errorf("ClassifyMoneyness(%s, %v) = %s, want %s", tt.kind, tt.S, got, tt.want)
		}
	}
}

func TestTimeToExpiration(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := TimeToExpiration(now.AddDate(0, 0, 365), now); !approxEqual(got, 365/365.25, 1e-9) {
		t.Errorf("TimeToExpiration = %v", got)
	}
	if got := TimeToExpiration(now.AddDate(0, 0, -3), now); got != 0 {
		t.Errorf("past expiry should floor at 0, got %v", got)
	}
	if _, err := ParseExpiration("2026/01/01"); err == nil {
		t.Error("expected error for malformed expiration")
	}
}

func TestInterpolateVolatility(t *testing.T) {
	smile := []VolPoint{{110, 0.25}, {90, 0.35}, {100, 0.30}}
	tests := []struct {
		strike, want float64
	}{
		{95, 0.325},
		{100, 0.30},
		{80, 0.35},
		{120, 0.25},
	}
	for _, tt := range tests {
		if got := InterpolateVolatility(smile, tt.strike, 0.3); !approxEqual(got, tt.want, 1e-12) {
			t.Errorf("InterpolateVolatility(%v) = %v, want %v", tt.strike, got, tt.want)
		}
	}
	if got := InterpolateVolatility(nil, 100, 0.3); got != 0.3 {
		t.Errorf("empty smile = %v, want fallback", got)
	}
}

func TestPortfolioGreeks(t *testing.T) {
	g := PortfolioGreeks([]WeightedGreeks{
		{Quantity: 2, Greeks: models.Greeks{Delta: 0.5, Gamma: 0.02}},
		{Quantity: -1, Greeks: models.Greeks{Delta: -0.4, Vega: 0.1}},
	})
	if !approxEqual(g.Delta, 1.4, 1e-12) || !approxEqual(g.Gamma, 0.04, 1e-12) || !approxEqual(g.Vega, -0.1, 1e-12) {
		t.Errorf("PortfolioGreeks = %+v", g)
	}
}
