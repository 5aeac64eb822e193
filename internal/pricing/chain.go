package pricing

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
)

// occSymbol matches OCC option symbols such as AAPL240119C00150000.
var occSymbol = regexp.MustCompile(`^[A-Z0-9.]{1,6}\s*\d{6}([CP])\d{8}$`)

// bymaSymbol matches BYMA-style tickers such as GFGC3550AG or GGALV95JUL:
// underlying letters, the kind letter (C call, V or P put), the strike and
// an expiry month code.
var bymaSymbol = regexp.MustCompile(`^[A-Z]{2,5}([CVP])\d+(?:\.\d+)?[A-Z]{1,3}$`)

// InferKind resolves a chain row's option kind. An explicit kind wins, then
// the OCC symbol layout, then the BYMA layout, then a C/P marker in the last two characters or a
// CALL/PUT substring. Anything else is a call. inferred is false only when the
// explicit kind was used.
func InferKind(explicit models.Kind, contractSymbol string) (kind models.Kind, inferred bool) {
	if explicit.IsOption() {
		return explicit, false
	}

	sym := strings.ToUpper(strings.TrimSpace(contractSymbol))
	if sym == "" {
		return models.KindCall, true
	}
	if m := occSymbol.FindStringSubmatch(sym); m != nil {
		if m[1] == "P" {
			return models.KindPut, true
		}
		return models.KindCall, true
	}
	if m := bymaSymbol.FindStringSubmatch(sym); m != nil {
		if m[1] == "C" {
			return models.KindCall, true
		}
		return models.KindPut, true
	}

	tail := sym
	if len(tail) > 2 {
		tail = tail[len(tail)-2:]
	}
	switch {
	case strings.Contains(tail, "C") || strings.Contains(sym, "CALL"):
		return models.KindCall, true
	case strings.Contains(tail, "P") || strings.Contains(sym, "PUT"):
		return models.KindPut, true
	default:
		return models.KindCall, true
	}
}

// AnalyzeChain enriches every usable quote with implied volatility, model
// price, Greeks and moneyness. Rows with a non-positive strike or market price,
// or whose analysis fails, are skipped and listed in the result; the batch
// itself only fails on invalid market inputs or an expired chain.
func (e *Engine) AnalyzeChain(quotes []models.ChainQuote, S, r float64, expiration, now time.Time) (*models.ChainAnalysis, error) {
	if S <= 0 || math.IsNaN(S) || math.IsInf(S, 0) {
		return nil, apperrors.NewValidationError("spot", S, "must be a positive finite number")
	}
	T := TimeToExpiration(expiration, now)
	if T <= 0 {
		return nil, apperrors.Wrapf(apperrors.ErrExpired, "chain expiring %s", expiration.Format(ExpirationLayout))
	}

	result := &models.ChainAnalysis{
		Spot:       S,
		Rate:       r,
		Expiration: expiration,
		Years:      T,
		Rows:       make([]models.ChainRow, 0, len(quotes)),
	}

	for i, q := range quotes {
		row, err := e.analyzeQuote(q, S, T, r)
		if err != nil {
			e.logger.Debug().
				Int("row", i).
				Str("contract", q.ContractSymbol).
				Err(err).
				Msg("Skipping chain row")
			e.metrics.RecordChainRow("skipped")
			result.Skipped = append(result.Skipped, models.SkippedRow{
				Index:          i,
				ContractSymbol: q.ContractSymbol,
				Reason:         err.Error(),
			})
			continue
		}
		e.metrics.RecordChainRow("analysed")
		result.Rows = append(result.Rows, row)
	}

	if n := len(result.Skipped); n > 0 {
		e.logger.Info().
			Int("analysed", len(result.Rows)).
			Int("skipped", n).
			Msg("Chain analysis skipped rows")
	}
	return result, nil
}

func (e *Engine) analyzeQuote(q models.ChainQuote, S, T, r float64) (models.ChainRow, error) {
	if q.Strike <= 0 || math.IsNaN(q.Strike) {
		return models.ChainRow{}, fmt.Errorf("non-positive strike %v", q.Strike)
	}
	marketPrice := q.LastPrice
	if marketPrice <= 0 {
		marketPrice = q.Bid
	}
	if marketPrice <= 0 || math.IsNaN(marketPrice) {
		return models.ChainRow{}, fmt.Errorf("no positive market price")
	}

	kind, inferred := InferKind(q.Kind, q.ContractSymbol)

	iv, err := e.ImpliedVolatility(marketPrice, S, q.Strike, T, r, kind)
	if err != nil {
		return models.ChainRow{}, err
	}
	sigma := iv.Volatility

	spread := 0.0
	midpoint := marketPrice
	if q.Ask > q.Bid {
		spread = q.Ask - q.Bid
		midpoint = (q.Bid + q.Ask) / 2
	}
	spreadPct := 0.0
	if midpoint > 0 {
		spreadPct = spread / midpoint * 100
	}

	intrinsic := Intrinsic(kind, S, q.Strike)
	probs := ComputeProbabilities(S, q.Strike, T, r, sigma)
	probITM := probs.ITMCall
	if kind == models.KindPut {
		probITM = probs.ITMPut
	}

	row := models.ChainRow{
		ContractSymbol:   q.ContractSymbol,
		Kind:             kind,
		KindInferred:     inferred,
		Strike:           q.Strike,
		LastPrice:        q.LastPrice,
		Bid:              q.Bid,
		Ask:              q.Ask,
		MarketPrice:      marketPrice,
		Midpoint:         midpoint,
		Spread:           spread,
		SpreadPct:        spreadPct,
		Volume:           q.Volume,
		OpenInterest:     q.OpenInterest,
		VolatilityUsed:   sigma,
		IVFallback:       iv.Fallback,
		TheoreticalPrice: Price(kind, S, q.Strike, T, r, sigma),
		Greeks:           ComputeGreeks(kind, S, q.Strike, T, r, sigma),
		ProbITM:          probITM,
		Moneyness:        S / q.Strike,
		MoneynessClass:   ClassifyMoneyness(kind, S, q.Strike),
		IntrinsicValue:   intrinsic,
		TimeValue:        marketPrice - intrinsic,
	}
	if !iv.Fallback {
		v := iv.Volatility
		row.ImpliedVol = &v
	}
	if math.IsNaN(row.TheoreticalPrice) || math.IsNaN(row.Greeks.Delta) {
		return models.ChainRow{}, fmt.Errorf("non-finite analytics")
	}
	return row, nil
}
