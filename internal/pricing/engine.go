package pricing

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/validation"
)

// Config holds the pricing engine's tunable constants.
type Config struct {
	// FallbackVolatility is returned when the implied volatility search fails.
	FallbackVolatility float64 `mapstructure:"fallback_volatility" default:"0.30" validate:"gt=0"`
	VolLowerBound      float64 `mapstructure:"vol_lower_bound" default:"0.001" validate:"gt=0"`
	VolUpperBound      float64 `mapstructure:"vol_upper_bound" default:"5.0" validate:"gtfield=VolLowerBound"`
	// Tolerance is the absolute tolerance on σ.
	Tolerance     float64 `mapstructure:"tolerance" default:"1e-5" validate:"gt=0"`
	MaxIterations int     `mapstructure:"max_iterations" default:"500" validate:"gte=10"`
	// MaxResidual is the largest accepted pricing error of a solution,
	// relative to max(market price, 1).
	MaxResidual float64 `mapstructure:"max_residual" default:"1e-3" validate:"gt=0"`
}

// DefaultConfig returns the configuration with all defaults applied.
func DefaultConfig() Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	return cfg
}

// Metrics receives pricing events.
type Metrics interface {
	RecordIVFallback(kind string)
	RecordChainRow(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) RecordIVFallback(string) {}
func (nopMetrics) RecordChainRow(string)   {}

// Engine prices options using a fixed configuration. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	cfg     Config
	logger  zerolog.Logger
	metrics Metrics
}

// NewEngine validates cfg, filling zero fields with defaults. A nil metrics
// disables instrumentation.
func NewEngine(cfg Config, logger zerolog.Logger, metrics Metrics) (*Engine, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("applying pricing defaults: %w", err)
	}
	if err := validation.Struct(cfg); err != nil {
		return nil, apperrors.Wrap(err, "pricing config")
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger.With().Str("component", "pricing").Logger(),
		metrics: metrics,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}
