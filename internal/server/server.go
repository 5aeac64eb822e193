// Package server exposes the pricing, strategy and risk engines over an
// HTTP JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"options-lab/internal/marketdata"
	"options-lab/internal/models"
	"options-lab/internal/performance"
	"options-lab/internal/pricing"
	"options-lab/internal/risk"
	"options-lab/internal/store"
	"options-lab/internal/strategy"
)

// Metrics records requests and serves the scrape endpoint.
type Metrics interface {
	RecordRequest(route, method, status string)
	Handler() http.Handler
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string, string, string) {}
func (nopMetrics) Handler() http.Handler                { return http.NotFoundHandler() }

// Defaults fill inputs a request leaves out.
type Defaults struct {
	Rate                float64
	Volatility          float64
	Days                int
	MinDays             int
	MaxDays             int
	StrikeRange         float64
	NumStrikes          int
	PortfolioVolatility float64
	Scenarios           []models.StressScenario
	TailLevels          []float64
}

// Config holds listener settings.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64
	Burst           int
}

// Deps are the components the API serves. Market and Store may be nil; the
// endpoints that need them then answer 503.
type Deps struct {
	Pricing   *pricing.Engine
	Composer  *strategy.Composer
	Simulator *risk.Simulator
	Market    marketdata.Source
	Store     store.DataStore
	Metrics   Metrics
	Logger    zerolog.Logger
	Defaults  Defaults
}

// Server wraps the Echo HTTP server.
type Server struct {
	echo    *echo.Echo
	config  Config
	deps    Deps
	limiter *performance.RateLimiter
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a server with every route registered.
func New(cfg Config, deps Deps) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if len(deps.Defaults.Scenarios) == 0 {
		deps.Defaults.Scenarios = risk.DefaultScenarios()
	}
	if deps.Defaults.NumStrikes < 2 {
		deps.Defaults.NumStrikes = 5
	}
	if deps.Defaults.StrikeRange <= 0 {
		deps.Defaults.StrikeRange = 0.2
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	s := &Server{
		echo:   e,
		config: cfg,
		deps:   deps,
		logger: deps.Logger.With().Str("component", "server").Logger(),
		now:    time.Now,
	}
	if cfg.RateLimit > 0 {
		s.limiter = performance.NewRateLimiter(cfg.RateLimit, max(cfg.Burst, 1))
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(s.recoverer())
	e.Use(s.requestLogging())

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes registers the API routes.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/v1")
	if s.limiter != nil {
		api.Use(s.rateLimit())
	}

	api.POST("/price", s.price)
	api.POST("/greeks", s.greeks)
	api.POST("/iv", s.impliedVolatility)
	api.POST("/chain/analyze", s.analyzeChain)

	api.GET("/strategies", s.listStrategies)
	api.POST("/strategies/build", s.buildStrategy)
	api.POST("/strategies/rank", s.rankStrategies)

	api.POST("/risk/simulate", s.simulate)
	api.POST("/risk/stress", s.stress)
	api.POST("/risk/portfolio", s.portfolio)
	api.POST("/risk/report", s.report)

	api.GET("/reports", s.listReports)
	api.GET("/reports/:id", s.getReport)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr()).Msg("HTTP server listening")
		if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped gracefully")
	return nil
}

type healthResponse struct {
	Healthy bool                    `json:"healthy"`
	Store   bool                    `json:"store"`
	Market  bool                    `json:"market"`
	Cache   marketdata.BreakerState `json:"cache,omitempty"`
	Time    time.Time               `json:"time"`
}

func (s *Server) health(c echo.Context) error {
	res := healthResponse{
		Healthy: true,
		Store:   s.deps.Store != nil,
		Market:  s.deps.Market != nil,
		Time:    s.now().UTC(),
	}
	if cached, ok := s.deps.Market.(interface{ CacheState() marketdata.BreakerState }); ok {
		res.Cache = cached.CacheState()
	}
	return dataResponse(c, http.StatusOK, res)
}
