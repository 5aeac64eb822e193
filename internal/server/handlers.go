package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/pricing"
	"options-lab/internal/risk"
	"options-lab/internal/store"
	"options-lab/internal/strategy"
	"options-lab/internal/validation"
)

type priceResponse struct {
	Kind      models.Kind    `json:"kind"`
	Params    pricing.Params `json:"params"`
	Price     float64        `json:"price"`
	Intrinsic float64        `json:"intrinsic"`
	TimeValue float64        `json:"time_value"`
	Moneyness string         `json:"moneyness"`
}

func (s *Server) price(c echo.Context) error {
	var req OptionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	kind, err := optionKind("kind", req.Kind)
	if err != nil {
		return err
	}
	m, err := s.resolveMarket(c.Request().Context(), req.MarketRequest)
	if err != nil {
		return err
	}

	p := m.params(req.Strike)
	price, err := s.deps.Pricing.Price(kind, p)
	if err != nil {
		return err
	}
	intrinsic := pricing.Intrinsic(kind, p.Spot, p.Strike)
	return dataResponse(c, http.StatusOK, priceResponse{
		Kind:      kind,
		Params:    p,
		Price:     price,
		Intrinsic: intrinsic,
		TimeValue: price - intrinsic,
		Moneyness: pricing.ClassifyMoneyness(kind, p.Spot, p.Strike),
	})
}

type greeksResponse struct {
	Kind          models.Kind           `json:"kind"`
	Params        pricing.Params        `json:"params"`
	Greeks        models.Greeks         `json:"greeks"`
	Probabilities pricing.Probabilities `json:"probabilities"`
}

func (s *Server) greeks(c echo.Context) error {
	var req OptionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	kind, err := optionKind("kind", req.Kind)
	if err != nil {
		return err
	}
	m, err := s.resolveMarket(c.Request().Context(), req.MarketRequest)
	if err != nil {
		return err
	}

	p := m.params(req.Strike)
	g, err := s.deps.Pricing.Greeks(kind, p)
	if err != nil {
		return err
	}
	probs, err := s.deps.Pricing.Probabilities(p)
	if err != nil {
		return err
	}
	return dataResponse(c, http.StatusOK, greeksResponse{Kind: kind, Params: p, Greeks: g, Probabilities: probs})
}

func (s *Server) impliedVolatility(c echo.Context) error {
	var req IVRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	kind, err := optionKind("kind", req.Kind)
	if err != nil {
		return err
	}
	m, err := s.resolveMarket(c.Request().Context(), req.MarketRequest)
	if err != nil {
		return err
	}

	est, err := s.deps.Pricing.ImpliedVolatility(req.MarketPrice, m.Spot, req.Strike, m.Years, m.Rate, kind)
	if err != nil {
		return err
	}
	return dataResponse(c, http.StatusOK, est)
}

type chainResponse struct {
	*models.ChainAnalysis
	Liquidity models.LiquidityAssessment `json:"liquidity"`
}

func (s *Server) analyzeChain(c echo.Context) error {
	var req ChainRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	var (
		quotes     = req.Quotes
		spot, rate = req.Spot, s.deps.Defaults.Rate
		now        = s.now().UTC()
		expiration time.Time
		err        error
	)
	if len(quotes) == 0 {
		if req.Symbol == "" {
			return apperrors.NewValidationError("quotes", nil, "quotes or symbol is required")
		}
		snap, err := s.snapshot(ctx, req.Symbol)
		if err != nil {
			return err
		}
		if quotes, expiration, err = snap.Chain(req.Expiration); err != nil {
			return err
		}
		if spot == 0 {
			spot = snap.Spot
		}
		rate, now = snap.Rate, snap.AsOf
	} else {
		if spot == 0 {
			return apperrors.NewValidationError("spot", nil, "is required with inline quotes")
		}
		if req.Expiration == "" {
			return apperrors.NewValidationError("expiration", nil, "is required with inline quotes")
		}
		if expiration, err = pricing.ParseExpiration(req.Expiration); err != nil {
			return err
		}
	}
	if req.Rate != nil {
		rate = *req.Rate
	}

	analysis, err := s.deps.Pricing.AnalyzeChain(quotes, spot, rate, expiration, now)
	if err != nil {
		return err
	}
	return dataResponse(c, http.StatusOK, chainResponse{
		ChainAnalysis: analysis,
		Liquidity:     risk.AssessLiquidity(analysis.Rows),
	})
}

func (s *Server) listStrategies(c echo.Context) error {
	return dataResponse(c, http.StatusOK, map[string]interface{}{
		"strategies": strategy.Catalog(),
		"criteria":   strategy.Criteria(),
	})
}

func (s *Server) buildStrategy(c echo.Context) error {
	var req StrategyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	strat, _, err := s.composeStrategy(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return dataResponse(c, http.StatusOK, strat)
}

type rankResponse struct {
	Criterion string            `json:"criterion"`
	Strikes   []float64         `json:"strikes"`
	Ranked    []strategy.Ranked `json:"ranked"`
}

func (s *Server) rankStrategies(c echo.Context) error {
	var req RankRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	m, err := s.resolveMarket(c.Request().Context(), req.MarketRequest)
	if err != nil {
		return err
	}

	strikes := req.Strikes
	if len(strikes) == 0 {
		if strikes, err = strategy.StrikeLadder(m.Spot, s.deps.Defaults.NumStrikes, s.deps.Defaults.StrikeRange); err != nil {
			return err
		}
	}
	all, err := s.deps.Composer.AnalyzeAll(m.strategyMarket(), strikes)
	if err != nil {
		return err
	}
	ranked, err := strategy.Rank(all, req.Criterion)
	if err != nil {
		return err
	}
	if req.Top > 0 && req.Top < len(ranked) {
		ranked = ranked[:req.Top]
	}
	return dataResponse(c, http.StatusOK, rankResponse{Criterion: req.Criterion, Strikes: strikes, Ranked: ranked})
}

func (s *Server) runSimulation(c echo.Context, req SimulateRequest, strat *models.Strategy, m *resolvedMarket) (*models.SimulationResult, error) {
	sim := s.deps.Simulator
	if req.Seed != nil {
		sim = sim.WithSeed(*req.Seed)
	}
	res, err := sim.Analyze(c.Request().Context(), strat, m.Spot, m.Rate, m.Volatility, m.Years, req.Paths)
	if err != nil {
		return nil, err
	}
	if !req.IncludePayoffs {
		res.Payoffs, res.FinalPrices = nil, nil
	}
	return res, nil
}

type simulateResponse struct {
	Strategy   *models.Strategy         `json:"strategy"`
	Simulation *models.SimulationResult `json:"simulation"`
}

func (s *Server) simulate(c echo.Context) error {
	var req SimulateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	strat, m, err := s.composeStrategy(c.Request().Context(), req.StrategyRequest)
	if err != nil {
		return err
	}
	res, err := s.runSimulation(c, req, strat, m)
	if err != nil {
		return err
	}
	return dataResponse(c, http.StatusOK, simulateResponse{Strategy: strat, Simulation: res})
}

func (s *Server) scenariosOr(custom []models.StressScenario) ([]models.StressScenario, error) {
	if len(custom) == 0 {
		return s.deps.Defaults.Scenarios, nil
	}
	if err := risk.ValidateScenarios(custom); err != nil {
		return nil, err
	}
	return custom, nil
}

type stressResponse struct {
	Strategy string                         `json:"strategy"`
	Spot     float64                        `json:"spot"`
	Results  map[string]models.StressResult `json:"results"`
}

func (s *Server) stress(c echo.Context) error {
	var req StressRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	scenarios, err := s.scenariosOr(req.Scenarios)
	if err != nil {
		return err
	}
	strat, m, err := s.composeStrategy(c.Request().Context(), req.StrategyRequest)
	if err != nil {
		return err
	}
	results, err := risk.StressTest(strat, m.Spot, scenarios)
	if err != nil {
		return err
	}
	return dataResponse(c, http.StatusOK, stressResponse{Strategy: strat.Name, Spot: m.Spot, Results: results})
}

func (s *Server) portfolio(c echo.Context) error {
	var req PortfolioRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Wrap(apperrors.ErrInputValidation, "malformed request body")
	}
	for i := range req.Positions {
		kind, err := models.ParseKind(string(req.Positions[i].Kind))
		if err != nil {
			return apperrors.NewValidationError("kind", req.Positions[i].Kind, "must be call, put or stock")
		}
		req.Positions[i].Kind = kind
	}
	if err := validation.DefaultsAndStruct(c.Request().Context(), &req); err != nil {
		return err
	}

	m, err := s.resolveMarket(c.Request().Context(), req.MarketRequest)
	if err != nil {
		return err
	}
	market := m.conditions()
	if m.Snapshot == nil && req.Volatility == nil {
		market.HistoricalVolatility = 0
	}
	res, err := risk.PortfolioRisk(req.Positions, market, m.AsOf, s.deps.Defaults.PortfolioVolatility)
	if err != nil {
		return err
	}
	return dataResponse(c, http.StatusOK, res)
}

func (s *Server) report(c echo.Context) error {
	var req ReportRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Save && s.deps.Store == nil {
		return apperrors.Wrap(errUnavailable, "report store not configured")
	}
	scenarios, err := s.scenariosOr(req.Scenarios)
	if err != nil {
		return err
	}
	strat, m, err := s.composeStrategy(c.Request().Context(), req.StrategyRequest)
	if err != nil {
		return err
	}

	var sim *models.SimulationResult
	if !req.SkipSimulation {
		// the tail table is computed from the payoffs
		simReq := req.SimulateRequest
		simReq.IncludePayoffs = true
		if sim, err = s.runSimulation(c, simReq, strat, m); err != nil {
			return err
		}
	}
	report, err := risk.GenerateReport(strat, m.conditions(), sim, scenarios, s.deps.Defaults.TailLevels, s.now().UTC())
	if err != nil {
		return err
	}

	status := http.StatusOK
	if req.Save {
		if err := s.deps.Store.SaveReport(c.Request().Context(), m.Symbol, report); err != nil {
			return err
		}
		status = http.StatusCreated
	}
	return dataResponse(c, status, report)
}

func (s *Server) listReports(c echo.Context) error {
	if s.deps.Store == nil {
		return apperrors.Wrap(errUnavailable, "report store not configured")
	}
	var q ReportQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	filter := store.ReportFilter{Symbol: q.Symbol, Strategy: q.Strategy, Limit: q.Limit}
	if q.Days > 0 {
		filter.StartDate = s.now().UTC().AddDate(0, 0, -q.Days)
	}
	reports, err := s.deps.Store.ListReports(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return dataResponse(c, http.StatusOK, reports)
}

func (s *Server) getReport(c echo.Context) error {
	if s.deps.Store == nil {
		return apperrors.Wrap(errUnavailable, "report store not configured")
	}
	id := c.Param("id")
	if err := validation.Var("id", id, "uuid"); err != nil {
		return err
	}
	report, err := s.deps.Store.GetReport(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return dataResponse(c, http.StatusOK, report)
}
