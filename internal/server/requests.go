package server

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/marketdata"
	"options-lab/internal/models"
	"options-lab/internal/pricing"
	"options-lab/internal/strategy"
)

// MarketRequest carries the market inputs shared by most endpoints. When
// Symbol is set the snapshot supplies spot, rate and volatility; explicit
// fields override it, and unset rate and volatility fall back to defaults.
type MarketRequest struct {
	Symbol     string   `json:"symbol" validate:"omitempty,max=32"`
	Spot       float64  `json:"spot" validate:"omitempty,gt=0,finite"`
	Rate       *float64 `json:"rate" validate:"omitempty,gte=-1,lte=1"`
	Volatility *float64 `json:"volatility" validate:"omitempty,gt=0,lte=10"`
	Days       *int     `json:"days" validate:"omitempty,gte=0"`
	Expiration string   `json:"expiration" validate:"omitempty,datetime=2006-01-02"`
}

// OptionRequest prices a single option.
type OptionRequest struct {
	MarketRequest
	Strike float64 `json:"strike" validate:"required,gt=0,finite"`
	Kind   string  `json:"kind" default:"call"`
}

// IVRequest solves for the volatility implied by a market price.
type IVRequest struct {
	OptionRequest
	MarketPrice float64 `json:"market_price" validate:"required,gt=0,finite"`
}

// ChainRequest analyses either inline quotes or the chain of a symbol's
// snapshot.
type ChainRequest struct {
	Symbol     string              `json:"symbol" validate:"omitempty,max=32"`
	Spot       float64             `json:"spot" validate:"omitempty,gt=0,finite"`
	Rate       *float64            `json:"rate" validate:"omitempty,gte=-1,lte=1"`
	Expiration string              `json:"expiration" validate:"omitempty,datetime=2006-01-02"`
	Quotes     []models.ChainQuote `json:"quotes" validate:"omitempty,max=5000"`
}

// StrategyRequest builds one named strategy. Missing strikes are taken from
// a ladder around spot.
type StrategyRequest struct {
	MarketRequest
	Name       string    `json:"name" validate:"required"`
	Strikes    []float64 `json:"strikes" validate:"omitempty,dive,gt=0,finite"`
	Shares     int       `json:"shares" validate:"omitempty,gte=100"`
	OptionKind string    `json:"option_kind" default:"call"`
}

// RankRequest builds the standard strategy set and ranks it.
type RankRequest struct {
	MarketRequest
	Strikes   []float64 `json:"strikes" validate:"omitempty,dive,gt=0,finite"`
	Criterion string    `json:"criterion" default:"risk_reward"`
	Top       int       `json:"top" validate:"gte=0"`
}

// SimulateRequest runs the Monte Carlo simulator over a strategy.
type SimulateRequest struct {
	StrategyRequest
	Paths          int     `json:"paths" validate:"gte=0"`
	Seed           *uint64 `json:"seed"`
	IncludePayoffs bool    `json:"include_payoffs"`
}

// StressRequest applies scenarios to a strategy. Without scenarios the
// configured set is used.
type StressRequest struct {
	StrategyRequest
	Scenarios []models.StressScenario `json:"scenarios" validate:"omitempty,dive"`
}

// PortfolioRequest aggregates the Greeks of a set of positions.
type PortfolioRequest struct {
	MarketRequest
	Positions []models.Position `json:"positions" validate:"required,min=1,max=1000,dive"`
}

// ReportRequest generates, and optionally stores, a risk report.
type ReportRequest struct {
	SimulateRequest
	SkipSimulation bool                    `json:"skip_simulation"`
	Scenarios      []models.StressScenario `json:"scenarios" validate:"omitempty,dive"`
	Save           bool                    `json:"save"`
}

// ReportQuery filters the report journal.
type ReportQuery struct {
	Symbol   string `query:"symbol"`
	Strategy string `query:"strategy"`
	Days     int    `query:"days" validate:"gte=0"`
	Limit    int    `query:"limit" default:"20" validate:"gte=1,lte=500"`
}

// resolvedMarket is a MarketRequest with every input filled in.
type resolvedMarket struct {
	Symbol     string
	Spot       float64
	Rate       float64
	Volatility float64
	Days       int
	Years      float64
	Expiration time.Time
	AsOf       time.Time
	Snapshot   *marketdata.Snapshot
}

func (m *resolvedMarket) strategyMarket() strategy.Market {
	return strategy.Market{Spot: m.Spot, Years: m.Years, Rate: m.Rate, Volatility: m.Volatility}
}

func (m *resolvedMarket) conditions() models.MarketConditions {
	return models.MarketConditions{
		Symbol:               m.Symbol,
		Spot:                 m.Spot,
		Rate:                 m.Rate,
		HistoricalVolatility: m.Volatility,
		AsOf:                 m.AsOf,
	}
}

func (m *resolvedMarket) params(strike float64) pricing.Params {
	return pricing.Params{Spot: m.Spot, Strike: strike, Years: m.Years, Rate: m.Rate, Volatility: m.Volatility}
}

func (s *Server) snapshot(ctx context.Context, symbol string) (*marketdata.Snapshot, error) {
	if s.deps.Market == nil {
		return nil, apperrors.Wrap(errUnavailable, "market data source not configured")
	}
	return s.deps.Market.Snapshot(ctx, symbol)
}

func (s *Server) resolveMarket(ctx context.Context, req MarketRequest) (*resolvedMarket, error) {
	d := s.deps.Defaults
	m := &resolvedMarket{
		Rate:       d.Rate,
		Volatility: d.Volatility,
		AsOf:       s.now().UTC(),
	}

	if req.Symbol != "" {
		snap, err := s.snapshot(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		m.Symbol = snap.Symbol
		m.Snapshot = snap
		m.Spot = snap.Spot
		m.Rate = snap.Rate
		m.Volatility = snap.HistoricalVolatility
		m.AsOf = snap.AsOf
	}
	if req.Spot > 0 {
		m.Spot = req.Spot
	}
	if req.Rate != nil {
		m.Rate = *req.Rate
	}
	if req.Volatility != nil {
		m.Volatility = *req.Volatility
	}
	if !(m.Spot > 0) {
		return nil, apperrors.NewValidationError("spot", m.Spot, "is required unless symbol is given")
	}

	if req.Expiration != "" {
		exp, err := pricing.ParseExpiration(req.Expiration)
		if err != nil {
			return nil, err
		}
		m.Expiration = exp
		m.Years = pricing.TimeToExpiration(exp, m.AsOf)
		m.Days = int(math.Ceil(exp.Sub(m.AsOf).Hours() / 24))
	} else {
		m.Days = d.Days
		if req.Days != nil {
			m.Days = *req.Days
		}
		m.Expiration = m.AsOf.AddDate(0, 0, m.Days)
		m.Years = float64(m.Days) / pricing.DaysPerYear
	}

	if d.MaxDays > 0 && (m.Days < d.MinDays || m.Days > d.MaxDays) {
		return nil, apperrors.NewValidationError("days", m.Days,
			fmt.Sprintf("must be between %d and %d", d.MinDays, d.MaxDays))
	}
	return m, nil
}

func optionKind(field, raw string) (models.Kind, error) {
	kind, err := models.ParseKind(raw)
	if err != nil || !kind.IsOption() {
		return "", apperrors.NewValidationError(field, raw, "must be call or put")
	}
	return kind, nil
}

// composeStrategy resolves the market of req and builds the strategy it names.
func (s *Server) composeStrategy(ctx context.Context, req StrategyRequest) (*models.Strategy, *resolvedMarket, error) {
	info, ok := strategy.Lookup(req.Name)
	if !ok {
		return nil, nil, apperrors.Wrapf(apperrors.ErrUnknownStrategy, "%q", req.Name)
	}
	kind, err := optionKind("option_kind", req.OptionKind)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.resolveMarket(ctx, req.MarketRequest)
	if err != nil {
		return nil, nil, err
	}

	strikes := req.Strikes
	if len(strikes) == 0 {
		if info.Strikes == 1 {
			strikes = []float64{math.Round(m.Spot*100) / 100}
		} else if strikes, err = strategy.StrikeLadder(m.Spot, info.Strikes, s.deps.Defaults.StrikeRange); err != nil {
			return nil, nil, err
		}
	}

	strat, err := s.deps.Composer.Build(strategy.Request{
		Name:       req.Name,
		Market:     m.strategyMarket(),
		Strikes:    strikes,
		Shares:     req.Shares,
		OptionKind: kind,
	})
	if err != nil {
		return nil, nil, err
	}
	return strat, m, nil
}
