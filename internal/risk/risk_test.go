package risk

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/pricing"
	"options-lab/internal/strategy"
)

var testMarket = strategy.Market{Spot: 100, Years: 0.25, Rate: 0.05, Volatility: 0.30}

func newTestSimulator(t *testing.T, workers int, seed uint64) *Simulator {
	t.Helper()
	sim, err := NewSimulator(Config{Workers: workers, Seed: seed, ChunkSize: 64}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	t.Cleanup(sim.Close)
	return sim
}

type recordingMetrics struct {
	paths int
	ops   []string
}

func (m *recordingMetrics) RecordPaths(n int) { m.paths += n }
func (m *recordingMetrics) RecordLatency(op string, _ float64) { m.ops = append(m.ops, op) }

func TestSimulatePathsMeanMatchesForward(t *testing.T) {
	sim := newTestSimulator(t, 4, 7)
	S0, r, sigma, T := 100.0, 0.05, 0.3, 1.0

	final, err := sim.SimulatePaths(context.Background(), S0, r, sigma, T, 10000, 50)
	if err != nil {
		t.Fatalf("SimulatePaths: %v", err)
	}
	var sum float64
	for _, p := range final {
		if !(p > 0) {
			t.Fatalf("non-positive terminal price %v", p)
		}
		sum += p
	}
	mean := sum / float64(len(final))
	want := S0 * math.Exp(r*T)
	// Standard error is about 0.31 for these inputs.
	if math.Abs(mean-want) > 1.5 {
		t.Errorf("mean terminal price %.3f, want about %.3f", mean, want)
	}
}

func TestSimulatePathsDeterministicAcrossWorkers(t *testing.T) {
	ctx := context.Background()
	one, err := newTestSimulator(t, 1, 42).SimulatePaths(ctx, 100, 0.05, 0.25, 0.5, 1000, 20)
	if err != nil {
		t.Fatalf("SimulatePaths: %v", err)
	}
	many, err := newTestSimulator(t, 8, 42).SimulatePaths(ctx, 100, 0.05, 0.25, 0.5, 1000, 20)
	if err != nil {
		t.Fatalf("SimulatePaths: %v", err)
	}
	for i := range one {
		if one[i] != many[i] {
			t.Fatalf("path %d differs: %v vs %v", i, one[i], many[i])
		}
	}

	other, _ := newTestSimulator(t, 8, 43).SimulatePaths(ctx, 100, 0.05, 0.25, 0.5, 1000, 20)
	if other[0] == one[0] && other[1] == one[1] {
		t.Error("different seeds produced the same paths")
	}
}

func TestSimulatePathsExpiredIsPointMass(t *testing.T) {
	sim := newTestSimulator(t, 2, 1)
	final, err := sim.SimulatePaths(context.Background(), 123, 0.05, 0.3, 0, 100, 10)
	if err != nil {
		t.Fatalf("SimulatePaths: %v", err)
	}
	for _, p := range final {
		if p != 123 {
			t.Fatalf("terminal price %v, want 123", p)
		}
	}
}

func TestSimulatePathsValidation(t *testing.T) {
	sim := newTestSimulator(t, 2, 1)
	ctx := context.Background()

	tests := []struct {
		name        string
		S0, sigma   float64
		paths, step int
	}{
		{"zero paths", 100, 0.3, 0, 10},
		{"negative steps", 100, 0.3, 10, -1},
		{"zero spot", 0, 0.3, 10, 10},
		{"negative vol", 100, -0.1, 10, 10},
		{"over maximum", 100, 0.3, 20000, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.SimulatePaths(ctx, tt.S0, 0.05, tt.sigma, 1, tt.paths, tt.step)
			if !errors.Is(err, apperrors.ErrInputValidation) {
				t.Errorf("err = %v, want a validation error", err)
			}
		})
	}
}

func TestSimulatePathsCancelled(t *testing.T) {
	sim := newTestSimulator(t, 2, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.SimulatePaths(ctx, 100, 0.05, 0.3, 1, 5000, 252); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestAnalyzeStraddle(t *testing.T) {
	metrics := &recordingMetrics{}
	sim, err := NewSimulator(Config{Seed: 11, Steps: 20}, zerolog.Nop(), metrics)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	defer sim.Close()

	s, err := strategy.LongStraddle(testMarket, 100)
	if err != nil {
		t.Fatalf("LongStraddle: %v", err)
	}
	res, err := sim.Analyze(context.Background(), s, 100, 0.05, 0.3, 0.25, 4000)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.Paths != 4000 || len(res.Payoffs) != 4000 || len(res.FinalPrices) != 4000 {
		t.Fatalf("sizes: paths=%d payoffs=%d finals=%d", res.Paths, len(res.Payoffs), len(res.FinalPrices))
	}
	if res.Seed != 11 || res.Steps != 20 {
		t.Errorf("seed/steps = %d/%d", res.Seed, res.Steps)
	}
	if !(res.CVaR95 <= res.VaR95 && res.VaR99 <= res.VaR95 && res.VaR95 <= res.Percentiles.P50) {
		t.Errorf("tail ordering violated: cvar=%v var99=%v var95=%v p50=%v", res.CVaR95, res.VaR99, res.VaR95, res.Percentiles.P50)
	}
	premium := s.MaxLoss.Value
	if res.VaR99 < -premium-1e-9 {
		t.Errorf("VaR99 %v below the maximum loss %v", res.VaR99, -premium)
	}
	if sum := res.ProbProfit + res.ProbLoss + res.ProbBreakeven; math.Abs(sum-1) > 1e-12 {
		t.Errorf("probabilities sum to %v", sum)
	}
	// A fairly priced straddle has a discounted expected payoff near zero.
	if math.Abs(res.Mean) > 1.5 {
		t.Errorf("mean payoff %v", res.Mean)
	}
	if metrics.paths != 4000 || len(metrics.ops) != 1 || metrics.ops[0] != "simulate" {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestAnalyzeRejectsEmptyStrategy(t *testing.T) {
	sim := newTestSimulator(t, 1, 1)
	if _, err := sim.Analyze(context.Background(), &models.Strategy{}, 100, 0.05, 0.3, 1, 100); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("err = %v", err)
	}
}

func TestValueAtRiskHelpers(t *testing.T) {
	payoffs := make([]float64, 100)
	for i := range payoffs {
		payoffs[i] = float64(i + 1)
	}
	if got := ValueAtRisk(payoffs, 0.05); got != 5 {
		t.Errorf("VaR = %v, want 5", got)
	}
	if got := ConditionalValueAtRisk(payoffs, 0.05); got != 3 {
		t.Errorf("CVaR = %v, want 3", got)
	}
	if ValueAtRisk(nil, 0.05) != 0 || ConditionalValueAtRisk(nil, 0.05) != 0 {
		t.Error("empty sample should give 0")
	}
}

func TestConditionalValueAtRiskPlateau(t *testing.T) {
	// the mean of a long plateau can round above the plateau value
	plateau := make([]float64, 500)
	for i := range plateau {
		plateau[i] = -6.9813425913416047
	}
	payoffs := append(plateau, 10, 20, 30)
	for _, level := range []float64{0.01, 0.05, 0.5} {
		v, cv := ValueAtRisk(payoffs, level), ConditionalValueAtRisk(payoffs, level)
		if cv > v {
			t.Errorf("level %v: CVaR %v above VaR %v", level, cv, v)
		}
	}
}

func TestStressTestCoveredCall(t *testing.T) {
	s, err := strategy.CoveredCall(testMarket, 100, 100)
	if err != nil {
		t.Fatalf("CoveredCall: %v", err)
	}
	c := pricing.CallPrice(100, 100, 0.25, 0.05, 0.3)

	res, err := StressTest(s, 100, nil)
	if err != nil {
		t.Fatalf("StressTest: %v", err)
	}
	if len(res) != 5 {
		t.Fatalf("got %d scenarios", len(res))
	}

	bear := res["bear_market"]
	if math.Abs(bear.ScenarioPrice-80) > 1e-9 {
		t.Errorf("bear price = %v", bear.ScenarioPrice)
	}
	wantPnL := -2000 + 100*c
	if math.Abs(bear.TotalPnL-wantPnL) > 1e-9 {
		t.Errorf("bear pnl = %v, want %v", bear.TotalPnL, wantPnL)
	}
	wantPct := wantPnL / (10000 - 100*c) * 100
	if math.Abs(bear.ReturnPct-wantPct) > 1e-9 {
		t.Errorf("bear return = %v, want %v", bear.ReturnPct, wantPct)
	}

	// Gains are capped at the call strike.
	if rally := res["rally"]; math.Abs(rally.TotalPnL-100*c) > 1e-9 {
		t.Errorf("rally pnl = %v, want %v", rally.TotalPnL, 100*c)
	}
}

func TestStressTestValidation(t *testing.T) {
	s, _ := strategy.LongStraddle(testMarket, 100)
	tests := []struct {
		name      string
		scenarios []models.StressScenario
	}{
		{"duplicate", []models.StressScenario{{Name: "a"}, {Name: "a"}}},
		{"unnamed", []models.StressScenario{{PriceChange: 0.1}}},
		{"below zero", []models.StressScenario{{Name: "wipeout", PriceChange: -1.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := StressTest(s, 100, tt.scenarios); !errors.Is(err, apperrors.ErrInputValidation) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestParseScenarios(t *testing.T) {
	list := []byte(`
- name: gap_down
  price_change: -0.15
  vol_change: 0.4
- name: drift
  price_change: 0.02
  time_decay_days: 7
`)
	got, err := ParseScenarios(list)
	if err != nil {
		t.Fatalf("ParseScenarios(list): %v", err)
	}
	if len(got) != 2 || got[0].Name != "gap_down" || got[0].PriceChange != -0.15 || got[1].TimeDecayDays != 7 {
		t.Errorf("scenarios = %+v", got)
	}

	doc := []byte("scenarios:\n  - name: flat\n    price_change: 0\n")
	got, err = ParseScenarios(doc)
	if err != nil || len(got) != 1 || got[0].Name != "flat" {
		t.Errorf("ParseScenarios(doc) = %+v, %v", got, err)
	}

	if _, err := ParseScenarios([]byte("scenarios: []\n")); err == nil {
		t.Error("expected an error for an empty file")
	}

	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	if err := os.WriteFile(path, list, 0o600); err != nil {
		t.Fatal(err)
	}
	if got, err := LoadScenarios(path); err != nil || len(got) != 2 {
		t.Errorf("LoadScenarios = %+v, %v", got, err)
	}
}

func TestParsePositions(t *testing.T) {
	doc := []byte(`
positions:
  - symbol: XYZ
    kind: stock
    quantity: 100
  - symbol: XYZ
    kind: C
    quantity: -100
    strike: 105
    expiration: "2025-04-01"
`)
	got, err := ParsePositions(doc)
	if err != nil {
		t.Fatalf("ParsePositions: %v", err)
	}
	if len(got) != 2 || got[1].Kind != models.KindCall || got[1].Strike != 105 || got[1].Expiration != "2025-04-01" {
		t.Errorf("positions = %+v", got)
	}

	asJSON := []byte(`[{"symbol":"XYZ","kind":"put","quantity":100,"strike":95,"expiration":"2025-04-01"}]`)
	if got, err := ParsePositions(asJSON); err != nil || len(got) != 1 || got[0].Kind != models.KindPut {
		t.Errorf("ParsePositions(json) = %+v, %v", got, err)
	}

	if _, err := ParsePositions([]byte("- kind: future\n  quantity: 1\n")); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("unknown kind error = %v", err)
	}
	if _, err := ParsePositions([]byte("positions: []\n")); err == nil {
		t.Error("expected an error for an empty file")
	}
}

func TestPortfolioRiskCoveredPosition(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	market := models.MarketConditions{Spot: 100, Rate: 0.05, HistoricalVolatility: 0.25}
	positions := []models.Position{
		{Symbol: "XYZ", Kind: models.KindStock, Quantity: 100},
		{Symbol: "XYZ", Kind: models.KindCall, Quantity: -100, Strike: 105, Expiration: "2025-04-01"},
		{Symbol: "XYZ", Kind: models.KindPut, Quantity: 100, Strike: 95, Expiration: "2025-04-01", ImpliedVol: 0.4},
		{Symbol: "XYZ", Kind: models.KindPut, Quantity: 100, Strike: 95, Expiration: "2024-12-20"},
	}

	got, err := PortfolioRisk(positions, market, now, 0.3)
	if err != nil {
		t.Fatalf("PortfolioRisk: %v", err)
	}

	T := pricing.TimeToExpiration(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), now)
	call := pricing.ComputeGreeks(models.KindCall, 100, 105, T, 0.05, 0.25)
	put := pricing.ComputeGreeks(models.KindPut, 100, 95, T, 0.05, 0.4)
	wantDelta := 100 - 100*call.Delta + 100*put.Delta
	wantValue := 100*100 - 100*pricing.CallPrice(100, 105, T, 0.05, 0.25) + 100*pricing.PutPrice(100, 95, T, 0.05, 0.4)

	if math.Abs(got.Net.Delta-wantDelta) > 1e-9 {
		t.Errorf("delta = %v, want %v", got.Net.Delta, wantDelta)
	}
	if math.Abs(got.Value-wantValue) > 1e-9 {
		t.Errorf("value = %v, want %v", got.Value, wantValue)
	}
	if got.HedgeShares != -got.Net.Delta || math.Abs(got.HedgeCost-got.HedgeShares*100) > 1e-9 {
		t.Errorf("hedge = %v shares, %v cost", got.HedgeShares, got.HedgeCost)
	}
	if math.Abs(got.GammaRisk1Pct-0.5*got.Net.Gamma) > 1e-12 {
		t.Errorf("gamma risk = %v, net gamma %v", got.GammaRisk1Pct, got.Net.Gamma)
	}
	if got.VegaRisk1Pct != got.Net.Vega || got.DailyTheta != got.Net.Theta {
		t.Errorf("vega/theta risk = %v/%v", got.VegaRisk1Pct, got.DailyTheta)
	}
	if got.Expired != 1 {
		t.Errorf("expired = %d, want 1", got.Expired)
	}
}

func TestPortfolioRiskNeutralFlags(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := PortfolioRisk(nil, models.MarketConditions{Spot: 50}, now, 0.3)
	if err != nil {
		t.Fatalf("PortfolioRisk: %v", err)
	}
	if !got.DeltaNeutral || !got.GammaNeutral || got.Value != 0 {
		t.Errorf("empty portfolio = %+v", got)
	}

	bad := []models.Position{{Kind: models.KindCall, Quantity: 1, Strike: 100}}
	if _, err := PortfolioRisk(bad, models.MarketConditions{Spot: 50}, now, 0.3); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("missing expiration err = %v", err)
	}
	if _, err := PortfolioRisk(nil, models.MarketConditions{}, now, 0.3); err == nil {
		t.Error("expected an error for a zero spot")
	}
}

func TestGenerateReport(t *testing.T) {
	s, _ := strategy.ProtectivePut(testMarket, 95, 100)
	market := models.MarketConditions{Symbol: "XYZ", Spot: 100, Rate: 0.05, HistoricalVolatility: 0.3}
	sim := &models.SimulationResult{Mean: 12, StdDev: 30, VaR95: -800, CVaR95: -900, ProbProfit: 0.4}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	report, err := GenerateReport(s, market, sim, nil, nil, now)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if report.ID == "" || report.StrategyName != strategy.ProtectivePutName || !report.GeneratedAt.Equal(now) {
		t.Errorf("header = %+v", report)
	}
	if !report.Basic.MaxProfit.Unbounded {
		t.Errorf("max profit = %v, want unbounded", report.Basic.MaxProfit)
	}
	if report.Risk == nil || report.Risk.VaR95 != -800 {
		t.Errorf("risk metrics = %+v", report.Risk)
	}
	if len(report.Risk.Tail) != 0 {
		t.Errorf("tail without payoffs = %+v", report.Risk.Tail)
	}
	if len(report.StressTests) != len(DefaultScenarios()) {
		t.Errorf("stress tests = %d", len(report.StressTests))
	}

	again, _ := GenerateReport(s, market, nil, nil, nil, now)
	if again.Risk != nil || again.ID == report.ID {
		t.Errorf("second report = %+v", again)
	}
}

func TestGenerateReportTailLevels(t *testing.T) {
	s, _ := strategy.LongStraddle(testMarket, 100)
	market := models.MarketConditions{Spot: 100, Rate: 0.05, HistoricalVolatility: 0.3}
	payoffs := make([]float64, 100)
	for i := range payoffs {
		payoffs[i] = float64(i - 50)
	}
	sim := &models.SimulationResult{Payoffs: payoffs}

	report, err := GenerateReport(s, market, sim, nil, []float64{0.02, 0.10}, time.Now())
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	tail := report.Risk.Tail
	if len(tail) != 2 || tail[0].Level != 0.02 || tail[1].Confidence != 0.9 {
		t.Fatalf("tail = %+v", tail)
	}
	for _, tr := range tail {
		if tr.VaR != ValueAtRisk(payoffs, tr.Level) || tr.CVaR > tr.VaR {
			t.Errorf("tail row = %+v", tr)
		}
	}
	if tail[0].VaR >= tail[1].VaR {
		t.Errorf("deeper tail VaR %v not below %v", tail[0].VaR, tail[1].VaR)
	}

	defaults, _ := GenerateReport(s, market, sim, nil, nil, time.Now())
	if len(defaults.Risk.Tail) != len(DefaultTailLevels()) {
		t.Errorf("default tail = %+v", defaults.Risk.Tail)
	}
}

func TestAssessLiquidity(t *testing.T) {
	rows := []models.ChainRow{
		{Volume: 500, OpenInterest: 1000, SpreadPct: 2},
		{Volume: 50, OpenInterest: 200, SpreadPct: 8},
		{Volume: 500, OpenInterest: 1000, SpreadPct: 12},
		{Volume: 1, OpenInterest: 5, SpreadPct: 1},
	}
	got := AssessLiquidity(rows)
	if got.Distribution[models.LiquidityHigh] != 1 || got.Distribution[models.LiquidityMedium] != 1 || got.Distribution[models.LiquidityLow] != 2 {
		t.Errorf("distribution = %v", got.Distribution)
	}
	if got.HighLiquidityPct != 25 || got.AvgVolume != 262.75 || got.AvgSpreadPct != 5.75 {
		t.Errorf("assessment = %+v", got)
	}
	if empty := AssessLiquidity(nil); empty.Rows != 0 || len(empty.Distribution) != 0 {
		t.Errorf("empty = %+v", empty)
	}
}

func TestCorrelate(t *testing.T) {
	a := []float64{0.01, -0.02, 0.015, 0.003, -0.007, 0.02}
	b := make([]float64, len(a))
	c := make([]float64, len(a))
	for i, v := range a {
		b[i] = 2*v + 0.001
		c[i] = -v
	}

	got, err := Correlate([]string{"a", "b", "c"}, [][]float64{a, b, c})
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if math.Abs(got.Matrix[0][1]-1) > 1e-9 || math.Abs(got.Matrix[0][2]+1) > 1e-9 {
		t.Errorf("matrix = %v", got.Matrix)
	}
	if math.Abs(got.MaxCorrelation-1) > 1e-9 || math.Abs(got.MinCorrelation+1) > 1e-9 {
		t.Errorf("extremes = %v/%v", got.MaxCorrelation, got.MinCorrelation)
	}
	var trace float64
	for i, e := range got.Eigenvalues {
		trace += e
		if i > 0 && e > got.Eigenvalues[i-1]+1e-12 {
			t.Errorf("eigenvalues not descending: %v", got.Eigenvalues)
		}
	}
	if math.Abs(trace-3) > 1e-9 {
		t.Errorf("eigenvalues sum to %v, want 3", trace)
	}

	if _, err := Correlate([]string{"a"}, [][]float64{a}); err == nil {
		t.Error("expected an error for a single series")
	}
	if _, err := Correlate([]string{"a", "flat"}, [][]float64{a, make([]float64, len(a))}); err == nil {
		t.Error("expected an error for a constant series")
	}
}
