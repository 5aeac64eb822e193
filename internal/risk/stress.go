package risk

import (
	"bytes"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
)

// DefaultScenarios returns the built-in stress scenarios.
func DefaultScenarios() []models.StressScenario {
	return []models.StressScenario{
		{Name: "bear_market", PriceChange: -0.20, VolChange: 0.5},
		{Name: "bull_market", PriceChange: 0.20, VolChange: -0.2},
		{Name: "high_volatility", PriceChange: 0, VolChange: 1.0},
		{Name: "crash", PriceChange: -0.40, VolChange: 2.0},
		{Name: "rally", PriceChange: 0.30, VolChange: -0.1},
	}
}

// StressTest revalues every leg at intrinsic value after each scenario's
// price shock. VolChange and TimeDecayDays do not move the result. ReturnPct
// is relative to |NetCost|, or to 1 when the strategy is costless. A nil
// scenario list uses DefaultScenarios.
func StressTest(s *models.Strategy, S0 float64, scenarios []models.StressScenario) (map[string]models.StressResult, error) {
	if s == nil || len(s.Legs) == 0 {
		return nil, apperrors.NewValidationError("strategy", nil, "must have at least one leg")
	}
	if !(S0 > 0) || math.IsInf(S0, 0) {
		return nil, apperrors.NewValidationError("spot", S0, "must be a positive finite number")
	}
	if scenarios == nil {
		scenarios = DefaultScenarios()
	}
	if err := ValidateScenarios(scenarios); err != nil {
		return nil, err
	}

	base := math.Abs(s.NetCost)
	if base == 0 {
		base = 1
	}

	out := make(map[string]models.StressResult, len(scenarios))
	for _, sc := range scenarios {
		price := S0 * (1 + sc.PriceChange)
		pnl := s.PayoffAt(price)
		out[sc.Name] = models.StressResult{
			Scenario:      sc,
			ScenarioPrice: price,
			TotalPnL:      pnl,
			ReturnPct:     pnl / base * 100,
		}
	}
	return out, nil
}

// ValidateScenarios checks names are present and unique and price shocks
// are finite and no worse than -100%.
func ValidateScenarios(scenarios []models.StressScenario) error {
	seen := make(map[string]bool, len(scenarios))
	for _, sc := range scenarios {
		if sc.Name == "" {
			return apperrors.NewValidationError("scenario.name", sc.Name, "is required")
		}
		if seen[sc.Name] {
			return apperrors.NewValidationError("scenario.name", sc.Name, "is duplicated")
		}
		seen[sc.Name] = true
		if sc.PriceChange < -1 || math.IsNaN(sc.PriceChange) || math.IsInf(sc.PriceChange, 0) {
			return apperrors.NewValidationError("scenario.price_change", sc.PriceChange, "must be a finite number >= -1")
		}
	}
	return nil
}

// LoadScenarios reads stress scenarios from a YAML file holding either a
// list or a mapping with a "scenarios" key.
func LoadScenarios(path string) ([]models.StressScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "reading scenarios %s", path)
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes YAML scenario definitions.
func ParseScenarios(data []byte) ([]models.StressScenario, error) {
	var list []models.StressScenario
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc struct {
			Scenarios []models.StressScenario `yaml:"scenarios"`
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err2 := dec.Decode(&doc); err2 != nil {
			return nil, apperrors.Wrap(apperrors.ErrInputValidation, "decoding scenarios: "+err2.Error())
		}
		list = doc.Scenarios
	}
	if len(list) == 0 {
		return nil, apperrors.NewValidationError("scenarios", nil, "file defines no scenarios")
	}
	if err := ValidateScenarios(list); err != nil {
		return nil, err
	}
	return list, nil
}
