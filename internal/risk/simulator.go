// Package risk simulates terminal price distributions for strategies and
// derives Monte Carlo, stress and portfolio risk figures.
package risk

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/logging"
	"options-lab/internal/models"
	"options-lab/internal/performance"
	"options-lab/internal/validation"
)

// Config controls path generation.
type Config struct {
	DefaultPaths int    `mapstructure:"default_paths" default:"5000" validate:"gte=1"`
	MaxPaths     int    `mapstructure:"max_paths" default:"10000" validate:"gtefield=DefaultPaths"`
	Steps        int    `mapstructure:"steps" default:"252" validate:"gte=1,lte=100000"`
	Seed         uint64 `mapstructure:"seed"`
	Workers      int    `mapstructure:"workers" validate:"gte=0"`
	ChunkSize    int    `mapstructure:"chunk_size" default:"250" validate:"gte=1"`
}

// DefaultConfig returns the default simulation configuration.
func DefaultConfig() Config {
	return Config{
		DefaultPaths: 5000,
		MaxPaths:     10000,
		Steps:        252,
		ChunkSize:    250,
	}
}

// Metrics receives simulation events.
type Metrics interface {
	RecordPaths(n int)
	RecordLatency(op string, seconds float64)
}

type nopMetrics struct{}

func (nopMetrics) RecordPaths(int) {}
func (nopMetrics) RecordLatency(string, float64) {}

// Simulator generates geometric Brownian motion paths on a worker pool.
// Path i always draws from PCG(seed, i), so a run is reproducible from its
// seed regardless of worker count or scheduling.
type Simulator struct {
	cfg     Config
	seed    uint64
	pool    *performance.WorkerPool
	logger  zerolog.Logger
	metrics Metrics
}

// NewSimulator validates cfg and starts the worker pool. Call Close to stop it.
func NewSimulator(cfg Config, logger zerolog.Logger, metrics Metrics) (*Simulator, error) {
	if err := validation.DefaultsAndStruct(context.Background(), &cfg); err != nil {
		return nil, apperrors.Wrap(err, "simulation config")
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	pool := performance.NewWorkerPool(cfg.Workers)
	pool.Start()
	return &Simulator{
		cfg:     cfg,
		seed:    cfg.Seed,
		pool:    pool,
		logger:  logger.With().Str("component", "risk").Logger(),
		metrics: metrics,
	}, nil
}

// Config returns the effective configuration.
func (s *Simulator) Config() Config {
	return s.cfg
}

// WithSeed returns a simulator sharing the same pool that uses seed for
// every run. A zero seed draws a fresh one per run.
func (s *Simulator) WithSeed(seed uint64) *Simulator {
	cp := *s
	cp.seed = seed
	return &cp
}

// Close stops the worker pool.
func (s *Simulator) Close() {
	s.pool.Stop()
}

func (s *Simulator) runSeed() uint64 {
	if s.seed != 0 {
		return s.seed
	}
	return rand.Uint64()
}

func (s *Simulator) checkInputs(S0, r, sigma float64, paths, steps int) error {
	if !(S0 > 0) || math.IsInf(S0, 0) {
		return apperrors.NewValidationError("spot", S0, "must be a positive finite number")
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return apperrors.NewValidationError("rate", r, "must be finite")
	}
	if !(sigma >= 0) || math.IsInf(sigma, 0) {
		return apperrors.NewValidationError("volatility", sigma, "must be a non-negative finite number")
	}
	if paths <= 0 {
		return apperrors.NewValidationError("paths", paths, "must be positive")
	}
	if paths > s.cfg.MaxPaths {
		return apperrors.NewValidationError("paths", paths, "exceeds the configured maximum")
	}
	if steps <= 0 {
		return apperrors.NewValidationError("steps", steps, "must be positive")
	}
	return nil
}

// SimulatePaths returns n terminal prices of S0 under GBM with drift r and
// volatility sigma over T years, stepping m times per path. T <= 0 returns a
// point mass at S0.
func (s *Simulator) SimulatePaths(ctx context.Context, S0, r, sigma, T float64, n, m int) ([]float64, error) {
	final, _, err := s.simulate(ctx, S0, r, sigma, T, n, m)
	return final, err
}

func (s *Simulator) simulate(ctx context.Context, S0, r, sigma, T float64, n, m int) ([]float64, uint64, error) {
	if err := s.checkInputs(S0, r, sigma, n, m); err != nil {
		return nil, 0, err
	}
	seed := s.runSeed()
	final := make([]float64, n)
	if T <= 0 {
		for i := range final {
			final[i] = S0
		}
		return final, seed, nil
	}

	dt := T / float64(m)
	drift := (r - 0.5*sigma*sigma) * dt
	diffusion := sigma * math.Sqrt(dt)

	chunk := s.cfg.ChunkSize
	chunks := (n + chunk - 1) / chunk
	err := s.pool.ForEach(ctx, chunks, func(c int) {
		if ctx.Err() != nil {
			return
		}
		lo := c * chunk
		hi := min(lo+chunk, n)
		for i := lo; i < hi; i++ {
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			logS := 0.0
			for step := 0; step < m; step++ {
				logS += drift + diffusion*rng.NormFloat64()
			}
			final[i] = S0 * math.Exp(logS)
		}
	})
	if err != nil {
		return nil, seed, apperrors.Wrap(err, "simulation cancelled")
	}
	return final, seed, nil
}

// Analyze simulates n terminal prices with the configured step count and
// summarises the strategy's payoff distribution.
func (s *Simulator) Analyze(ctx context.Context, strat *models.Strategy, S0, r, sigma, T float64, n int) (*models.SimulationResult, error) {
	if strat == nil || len(strat.Legs) == 0 {
		return nil, apperrors.NewValidationError("strategy", nil, "must have at least one leg")
	}
	if n == 0 {
		n = s.cfg.DefaultPaths
	}

	start := time.Now()
	final, seed, err := s.simulate(ctx, S0, r, sigma, T, n, s.cfg.Steps)
	if err != nil {
		return nil, err
	}

	payoffs := make([]float64, len(final))
	for i, p := range final {
		payoffs[i] = strat.PayoffAt(p)
	}

	res := summarize(payoffs)
	res.Seed = seed
	res.Paths = n
	res.Steps = s.cfg.Steps
	res.FinalPrices = final

	elapsed := time.Since(start)
	s.metrics.RecordPaths(n)
	s.metrics.RecordLatency("simulate", elapsed.Seconds())
	logging.LogSimulation(logging.WithOperation(s.logger, strat.Name), res, elapsed)
	return res, nil
}
