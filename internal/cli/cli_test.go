package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/pricing"
)

// runCLI executes the root command against a private config directory.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func runJSON(t *testing.T, dir string, v interface{}, args ...string) {
	t.Helper()
	out, err := runCLI(t, dir, append(args, "--json")...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
}

func writeTestSnapshot(t *testing.T, dir string) {
	t.Helper()
	snapDir := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{
  "symbol": "GGAL",
  "spot": 100,
  "risk_free_rate": 0.04,
  "as_of": "2025-06-02T20:00:00Z",
  "chains": {
    "2025-07-18": [
      {"contract_symbol": "GGALC100JUL", "strike": 100, "last_price": 4.5, "bid": 4.4, "ask": 4.6, "volume": 900, "open_interest": 4000},
      {"contract_symbol": "GGALP95JUL", "strike": 95, "last_price": 1.8, "bid": 1.7, "ask": 1.9, "volume": 40, "open_interest": 300}
    ]
  }
}`
	if err := os.WriteFile(filepath.Join(snapDir, "GGAL.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestVersionJSON(t *testing.T) {
	var got map[string]string
	runJSON(t, t.TempDir(), &got, "version")
	if got["version"] != Version {
		t.Errorf("version = %v", got)
	}
}

func TestCommandsListsEveryGroup(t *testing.T) {
	var entries []commandEntry
	runJSON(t, t.TempDir(), &entries, "commands")

	groups := map[string]bool{}
	for _, e := range entries {
		groups[e.Group] = true
		if e.Command == "risk simulate <strategy>" && e.Summary == "" {
			t.Error("risk simulate has no summary")
		}
	}
	for _, g := range []string{"general", "options", "strategy", "risk", "data", "config"} {
		if !groups[g] {
			t.Errorf("group %q missing from %v", g, groups)
		}
	}
}

func TestConfigValidateAndPath(t *testing.T) {
	dir := t.TempDir()
	var valid map[string]bool
	runJSON(t, dir, &valid, "config", "validate")
	if !valid["valid"] {
		t.Errorf("default config invalid: %v", valid)
	}

	var path map[string]string
	runJSON(t, dir, &path, "config", "path")
	if path["dir"] != dir {
		t.Errorf("config dir = %q, want %q", path["dir"], dir)
	}
}

func TestOptionsPrice(t *testing.T) {
	var res priceResult
	runJSON(t, t.TempDir(), &res, "options", "price", "--spot", "100", "--strike", "100", "--days", "91", "--vol", "0.3", "--rate", "0.05")

	years := 91 / pricing.DaysPerYear
	if math.Abs(res.Call-pricing.CallPrice(100, 100, years, 0.05, 0.3)) > 1e-9 {
		t.Errorf("call = %v", res.Call)
	}
	if math.Abs(res.Put-pricing.PutPrice(100, 100, years, 0.05, 0.3)) > 1e-9 {
		t.Errorf("put = %v", res.Put)
	}
	if res.CallValue.Intrinsic != 0 || math.Abs(res.CallValue.Time-res.Call) > 1e-12 {
		t.Errorf("call split = %+v", res.CallValue)
	}
}

func TestOptionsPriceNeedsSpot(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "options", "price", "--strike", "100")
	if !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestOptionsDaysOutOfRange(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "options", "price", "--spot", "100", "--days", "900")
	if !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestOptionsPriceTable(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "options", "price", "--spot", "100", "--strike", "90", "--days", "30")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	for _, want := range []string{"Call", "Put", "Intrinsic", "ITM", "OTM"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestChainFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeTestSnapshot(t, dir)

	var res struct {
		Rows      []models.ChainRow          `json:"rows"`
		Liquidity models.LiquidityAssessment `json:"liquidity"`
	}
	runJSON(t, dir, &res, "options", "chain", "GGAL")
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d", len(res.Rows))
	}
	kinds := map[models.Kind]bool{}
	for _, r := range res.Rows {
		kinds[r.Kind] = true
	}
	if !kinds[models.KindCall] || !kinds[models.KindPut] {
		t.Errorf("kinds = %v", kinds)
	}
	if res.Liquidity.Rows != 2 {
		t.Errorf("liquidity = %+v", res.Liquidity)
	}
}

func TestStrategyBuildUsesSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeTestSnapshot(t, dir)

	var s models.Strategy
	runJSON(t, dir, &s, "strategy", "build", "covered_call", "--symbol", "GGAL", "--strikes", "105", "--vol", "0.3")
	if len(s.Legs) != 2 || !s.MaxProfit.IsFinite() {
		t.Fatalf("covered call = %+v", s)
	}
	if s.Legs[0].Kind != models.KindStock || s.Legs[0].Premium != 100 {
		t.Errorf("stock leg = %+v", s.Legs[0])
	}
}

func TestStrategyBuildUnknown(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "strategy", "build", "jade_lizard", "--spot", "100")
	if !errors.Is(err, apperrors.ErrUnknownStrategy) {
		t.Errorf("err = %v, want ErrUnknownStrategy", err)
	}
}

func TestStrategyAnalyzeRanks(t *testing.T) {
	var res rankedResult
	runJSON(t, t.TempDir(), &res, "strategy", "analyze", "--spot", "100", "--days", "60", "--rank", "max_profit", "--top", "4")
	if res.Criterion != "max_profit" || len(res.Ranked) != 4 {
		t.Fatalf("ranked = %+v", res)
	}
	for i := 1; i < len(res.Ranked); i++ {
		if res.Ranked[i-1].Score.Less(res.Ranked[i].Score) {
			t.Errorf("rank %d scores below rank %d", i-1, i)
		}
	}
}

func TestStrategyPayoffCurve(t *testing.T) {
	var res struct {
		Strategy string        `json:"strategy"`
		Curve    []payoffPoint `json:"curve"`
	}
	runJSON(t, t.TempDir(), &res, "strategy", "payoff", "long_straddle", "--spot", "100", "--points", "5", "--low", "80", "--high", "120")
	if len(res.Curve) != 5 || res.Curve[0].Price != 80 || res.Curve[4].Price != 120 {
		t.Fatalf("curve = %+v", res.Curve)
	}
	if res.Curve[2].Payoff >= 0 || res.Curve[0].Payoff <= res.Curve[2].Payoff {
		t.Errorf("straddle curve is not V shaped: %+v", res.Curve)
	}
}

func TestRiskSimulateSeeded(t *testing.T) {
	dir := t.TempDir()
	args := []string{"risk", "simulate", "long_straddle", "--spot", "100", "--days", "91", "--vol", "0.3", "--paths", "1000", "--seed", "42"}

	var a, b models.SimulationResult
	runJSON(t, dir, &a, args...)
	runJSON(t, dir, &b, args...)
	if a.Seed != 42 || a.Paths != 1000 {
		t.Fatalf("result = %+v", a)
	}
	if a.Mean != b.Mean || a.Percentiles != b.Percentiles {
		t.Errorf("seeded runs differ: %v vs %v", a.Mean, b.Mean)
	}
	if len(a.Payoffs) != 0 {
		t.Errorf("payoffs included without --raw")
	}
}

func TestRiskStressCustomScenarios(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	yaml := "scenarios:\n  - name: gap_up\n    price_change: 0.25\n  - name: gap_down\n    price_change: -0.25\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	var res map[string]models.StressResult
	runJSON(t, dir, &res, "risk", "stress", "long_straddle", "--spot", "100", "--scenarios", path)
	if len(res) != 2 {
		t.Fatalf("results = %+v", res)
	}
	if res["gap_up"].TotalPnL <= 0 || res["gap_down"].TotalPnL <= 0 {
		t.Errorf("straddle should profit on 25%% moves: %+v", res)
	}
}

func TestRiskPortfolioFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.yaml")
	yaml := `positions:
  - symbol: GGAL
    kind: stock
    quantity: 100
  - symbol: GGAL
    kind: put
    quantity: 100
    strike: 95
    expiration: "2099-12-17"
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	var res models.PortfolioRisk
	runJSON(t, dir, &res, "risk", "portfolio", path, "--spot", "100")
	if res.Net.Delta <= 0 || res.Net.Delta >= 100 {
		t.Errorf("protective put delta = %v", res.Net.Delta)
	}
	if res.Net.Gamma <= 0 {
		t.Errorf("long put gamma = %v", res.Net.Gamma)
	}
}

func TestRiskReportJournal(t *testing.T) {
	dir := t.TempDir()

	var report models.RiskReport
	runJSON(t, dir, &report, "risk", "report", "iron_condor", "--spot", "100", "--paths", "1000", "--seed", "3")
	if report.ID == "" || report.Risk == nil || len(report.StressTests) == 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Risk.Tail) != 3 {
		t.Errorf("tail rows = %+v", report.Risk.Tail)
	}

	var stored models.RiskReport
	runJSON(t, dir, &stored, "risk", "reports", report.ID)
	if stored.ID != report.ID || stored.StrategyName != report.StrategyName {
		t.Errorf("stored = %+v", stored)
	}

	var rows []struct {
		ID string `json:"id"`
	}
	runJSON(t, dir, &rows, "risk", "reports")
	if len(rows) != 1 || rows[0].ID != report.ID {
		t.Errorf("journal = %+v", rows)
	}
}

func TestDataImportAndFreshness(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ggal.csv")
	csv := "Date,Open,High,Low,Close,Volume\n2025-05-29,98,101,97,100,1200\n2025-05-30,100,103,99,102,1500\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	var imported map[string]interface{}
	runJSON(t, dir, &imported, "data", "import", "ggal", path)
	if imported["symbol"] != "GGAL" || imported["imported"] != float64(2) {
		t.Fatalf("import = %v", imported)
	}

	var fresh map[string]interface{}
	runJSON(t, dir, &fresh, "data", "freshness", "GGAL")
	if latest, _ := fresh["latest"].(string); !strings.HasPrefix(latest, "2025-05-30") {
		t.Errorf("freshness = %v", fresh)
	}
}

func TestParseCandleCSV(t *testing.T) {
	candles, err := parseCandleCSV(strings.NewReader("timestamp, close, open, high, low\n2025-01-02T00:00:00Z, 10.5, 10, 11, 9.5\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(candles) != 1 || candles[0].Close != 10.5 || candles[0].Volume != 0 {
		t.Errorf("candles = %+v", candles)
	}

	tests := []struct {
		name string
		in   string
	}{
		{"missing column", "date,open,high,low\n2025-01-02,1,1,1\n"},
		{"bad number", "date,open,high,low,close\n2025-01-02,1,1,1,abc\n"},
		{"bad date", "date,open,high,low,close\n02/01/2025,1,1,1,1\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseCandleCSV(strings.NewReader(tt.in)); !errors.Is(err, apperrors.ErrInputValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}
