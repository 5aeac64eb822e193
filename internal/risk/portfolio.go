package risk

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/pricing"
	"options-lab/internal/validation"
)

// Neutrality thresholds for the portfolio flags.
const (
	DeltaNeutralBand = 0.1
	GammaNeutralBand = 0.01
)

// PortfolioRisk aggregates Greeks and value over positions. Quantities are in
// units of the underlying, so one 100-share contract is quantity 100. Option
// volatility is the position's implied vol, else the market's historical
// volatility, else defaultVol. Expired options are counted and left out.
func PortfolioRisk(positions []models.Position, market models.MarketConditions, now time.Time, defaultVol float64) (*models.PortfolioRisk, error) {
	S, r := market.Spot, market.Rate
	if !(S > 0) || math.IsInf(S, 0) {
		return nil, apperrors.NewValidationError("spot", S, "must be a positive finite number")
	}

	out := &models.PortfolioRisk{}
	for i, pos := range positions {
		if err := validation.Struct(pos); err != nil {
			return nil, apperrors.Wrapf(err, "position %d", i)
		}

		if pos.Kind == models.KindStock {
			out.Net.Delta += pos.Quantity
			out.Value += pos.Quantity * S
			continue
		}

		if !(pos.Strike > 0) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("positions[%d].strike", i), pos.Strike, "must be positive for options")
		}
		expiry, err := pricing.ParseExpiration(pos.Expiration)
		if err != nil {
			return nil, apperrors.Wrapf(err, "position %d", i)
		}
		T := pricing.TimeToExpiration(expiry, now)
		if T <= 0 {
			out.Expired++
			continue
		}

		sigma := pos.ImpliedVol
		if sigma <= 0 {
			sigma = market.HistoricalVolatility
		}
		if sigma <= 0 {
			sigma = defaultVol
		}

		g := pricing.ComputeGreeks(pos.Kind, S, pos.Strike, T, r, sigma)
		out.Net = out.Net.Add(g.Scale(pos.Quantity))
		out.Value += pos.Quantity * pricing.Price(pos.Kind, S, pos.Strike, T, r, sigma)
	}

	out.HedgeShares = -out.Net.Delta
	out.HedgeCost = out.HedgeShares * S
	out.GammaRisk1Pct = 0.5 * out.Net.Gamma * math.Pow(0.01*S, 2)
	out.DailyTheta = out.Net.Theta
	out.VegaRisk1Pct = out.Net.Vega
	out.DeltaNeutral = math.Abs(out.Net.Delta) < DeltaNeutralBand
	out.GammaNeutral = math.Abs(out.Net.Gamma) < GammaNeutralBand
	return out, nil
}

// LoadPositions reads positions from a YAML or JSON file holding either a
// list or a mapping with a "positions" key.
func LoadPositions(path string) ([]models.Position, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "reading positions %s", path)
	}
	return ParsePositions(data)
}

// ParsePositions decodes position definitions. Kinds are normalised with
// models.ParseKind so "C" and "PUT" are accepted.
func ParsePositions(data []byte) ([]models.Position, error) {
	var list []models.Position
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc struct {
			Positions []models.Position `yaml:"positions"`
		}
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, apperrors.Wrap(apperrors.ErrInputValidation, "decoding positions: "+err2.Error())
		}
		list = doc.Positions
	}
	if len(list) == 0 {
		return nil, apperrors.NewValidationError("positions", nil, "file defines no positions")
	}
	for i := range list {
		kind, err := models.ParseKind(string(list[i].Kind))
		if err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("positions[%d].kind", i), list[i].Kind, "must be call, put or stock")
		}
		list[i].Kind = kind
	}
	return list, nil
}
