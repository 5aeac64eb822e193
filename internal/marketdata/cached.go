package marketdata

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/logging"
	"options-lab/pkg/utils"
)

// Metrics receives cache lookups.
type Metrics interface {
	RecordCacheLookup(result string)
}

type nopMetrics struct{}

func (nopMetrics) RecordCacheLookup(string) {}

// Cache lookup outcomes.
const (
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupError  = "error"
	// LookupBypass means the breaker skipped a failing cache.
	LookupBypass = "bypass"
)

// CachedSource serves snapshots from a cache and loads misses from the
// wrapped source with retries. Cache failures degrade to a direct load, and
// repeated failures open a breaker that bypasses the cache for a while.
type CachedSource struct {
	inner   Source
	cache   Cache
	ttl     time.Duration
	retry   utils.RetryConfig
	breaker *breaker
	logger  zerolog.Logger
	metrics Metrics
}

// NewCachedSource wraps inner. A zero ttl disables caching; metrics may be nil.
func NewCachedSource(inner Source, cache Cache, ttl time.Duration, retry utils.RetryConfig, logger zerolog.Logger, metrics Metrics) *CachedSource {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &CachedSource{
		inner:   inner,
		cache:   cache,
		ttl:     ttl,
		retry:   retry,
		breaker: newBreaker(DefaultBreakerConfig()),
		logger:  logger.With().Str("component", "marketdata.cache").Logger(),
		metrics: metrics,
	}
}

// WithBreaker replaces the cache breaker configuration.
func (c *CachedSource) WithBreaker(cfg BreakerConfig) *CachedSource {
	c.breaker = newBreaker(cfg)
	return c
}

// CacheState reports whether the cache is in use or bypassed.
func (c *CachedSource) CacheState() BreakerState {
	return c.breaker.current()
}

// Snapshot returns the cached snapshot of symbol or loads it.
func (c *CachedSource) Snapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	logger := logging.WithSymbol(c.logger, key)
	caching := c.cache != nil && c.ttl > 0

	if caching && !c.breaker.allow() {
		c.metrics.RecordCacheLookup(LookupBypass)
		logger.Debug().Msg("Cache breaker open, loading directly")
		caching = false
	}
	if caching {
		snap, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			c.breaker.success()
			c.metrics.RecordCacheLookup(LookupHit)
			return snap, nil
		case errors.Is(err, apperrors.ErrCacheMiss):
			c.breaker.success()
			c.metrics.RecordCacheLookup(LookupMiss)
		default:
			c.breaker.failure()
			c.metrics.RecordCacheLookup(LookupError)
			logger.Warn().Err(err).Msg("Cache read failed, loading directly")
			caching = false
		}
	}

	snap, err := utils.RetryWithResult(ctx, c.retry, func() (*Snapshot, error) {
		s, err := c.inner.Snapshot(ctx, key)
		if errors.Is(err, apperrors.ErrDataNotFound) || errors.Is(err, apperrors.ErrInputValidation) {
			return nil, utils.Permanent(err)
		}
		return s, err
	})
	if err != nil {
		return nil, err
	}

	if caching {
		if err := c.cache.Set(ctx, key, snap, c.ttl); err != nil {
			c.breaker.failure()
			logger.Warn().Err(err).Msg("Cache write failed")
		}
	}
	return snap, nil
}
