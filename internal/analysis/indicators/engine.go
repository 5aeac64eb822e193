// Package indicators computes technical indicators and historical volatility
// over daily candles.
package indicators

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"options-lab/internal/models"
	"options-lab/internal/performance"
)

// Indicator defines the interface for single-value technical indicators.
type Indicator interface {
	Name() string
	Calculate(candles []models.Candle) ([]float64, error)
	Period() int
}

// MultiValueIndicator defines the interface for indicators that return multiple values.
type MultiValueIndicator interface {
	Name() string
	Calculate(candles []models.Candle) (map[string][]float64, error)
	Period() int
}

// Engine calculates registered indicators in parallel on a worker pool.
type Engine struct {
	pool        *performance.WorkerPool
	indicators  map[string]Indicator
	multiIndics map[string]MultiValueIndicator
	mu          sync.RWMutex
}

// NewEngine creates an engine backed by pool.
func NewEngine(pool *performance.WorkerPool) *Engine {
	return &Engine{
		pool:        pool,
		indicators:  make(map[string]Indicator),
		multiIndics: make(map[string]MultiValueIndicator),
	}
}

// NewDefaultEngine registers the indicators reported in a market snapshot.
func NewDefaultEngine(pool *performance.WorkerPool) *Engine {
	e := NewEngine(pool)
	e.RegisterIndicator(NewRSI(14))
	e.RegisterIndicator(NewSMA(20))
	e.RegisterIndicator(NewSMA(50))
	e.RegisterIndicator(NewATR(14))
	e.RegisterMultiIndicator(NewBollingerBands(20, 2))
	return e
}

// RegisterIndicator registers a single-value indicator.
func (e *Engine) RegisterIndicator(ind Indicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indicators[ind.Name()] = ind
}

// RegisterMultiIndicator registers a multi-value indicator.
func (e *Engine) RegisterMultiIndicator(ind MultiValueIndicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiIndics[ind.Name()] = ind
}

// CalculateAll calculates every registered indicator. Indicators without
// enough history are left out of the results.
func (e *Engine) CalculateAll(ctx context.Context, candles []models.Candle) (map[string][]float64, map[string]map[string][]float64, error) {
	e.mu.RLock()
	single := make([]Indicator, 0, len(e.indicators))
	for _, ind := range e.indicators {
		single = append(single, ind)
	}
	multi := make([]MultiValueIndicator, 0, len(e.multiIndics))
	for _, ind := range e.multiIndics {
		multi = append(multi, ind)
	}
	e.mu.RUnlock()

	singleResults := make(map[string][]float64, len(single))
	multiResults := make(map[string]map[string][]float64, len(multi))
	var mu sync.Mutex

	err := e.pool.ForEach(ctx, len(single)+len(multi), func(i int) {
		if i < len(single) {
			ind := single[i]
			values, err := ind.Calculate(candles)
			if err == nil {
				mu.Lock()
				singleResults[ind.Name()] = values
				mu.Unlock()
			}
			return
		}
		ind := multi[i-len(single)]
		values, err := ind.Calculate(candles)
		if err == nil {
			mu.Lock()
			multiResults[ind.Name()] = values
			mu.Unlock()
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return singleResults, multiResults, nil
}

// Calculate calculates a specific indicator by name.
func (e *Engine) Calculate(ctx context.Context, name string, candles []models.Candle) ([]float64, error) {
	e.mu.RLock()
	ind, ok := e.indicators[name]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("indicator %s not found", name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ind.Calculate(candles)
}

// ListIndicators returns the sorted names of all registered indicators.
func (e *Engine) ListIndicators() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indicators)+len(e.multiIndics))
	for name := range e.indicators {
		names = append(names, name)
	}
	for name := range e.multiIndics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Technicals computes the latest snapshot readings. Fields without enough
// history are nil.
func (e *Engine) Technicals(ctx context.Context, candles []models.Candle) (models.Technicals, error) {
	single, multi, err := e.CalculateAll(ctx, candles)
	if err != nil {
		return models.Technicals{}, err
	}
	t := models.Technicals{
		RSI14: last(single["RSI_14"]),
		SMA20: last(single["SMA_20"]),
		SMA50: last(single["SMA_50"]),
		ATR14: last(single["ATR_14"]),
	}
	if bb, ok := multi[NewBollingerBands(20, 2).Name()]; ok {
		t.BollingerUpper = last(bb["upper"])
		t.BollingerLower = last(bb["lower"])
	}
	return t, nil
}
