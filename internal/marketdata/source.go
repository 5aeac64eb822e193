// Package marketdata loads market snapshots of an underlying: spot, rate,
// price history and option chains, enriched with historical volatility and
// technical indicators.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"options-lab/internal/analysis/indicators"
	apperrors "options-lab/internal/errors"
	"options-lab/internal/logging"
	"options-lab/internal/models"
	"options-lab/internal/pricing"
)

// Snapshot is the market state of one underlying at AsOf.
type Snapshot struct {
	Symbol               string                         `json:"symbol"`
	Spot                 float64                        `json:"spot"`
	Rate                 float64                        `json:"risk_free_rate"`
	AsOf                 time.Time                      `json:"as_of"`
	Candles              []models.Candle                `json:"candles,omitempty"`
	Chains               map[string][]models.ChainQuote `json:"chains,omitempty"`
	HistoricalVolatility float64                        `json:"historical_volatility"`
	VolatilityFromData   bool                           `json:"volatility_from_data"`
	Technicals           models.Technicals              `json:"technicals"`
}

// Market returns the conditions strategies are evaluated against.
func (s *Snapshot) Market() models.MarketConditions {
	return models.MarketConditions{
		Symbol:               s.Symbol,
		Spot:                 s.Spot,
		Rate:                 s.Rate,
		HistoricalVolatility: s.HistoricalVolatility,
		AsOf:                 s.AsOf,
	}
}

// Expirations returns the chain expirations in date order.
func (s *Snapshot) Expirations() []string {
	out := make([]string, 0, len(s.Chains))
	for exp := range s.Chains {
		out = append(out, exp)
	}
	sort.Strings(out)
	return out
}

// Chain returns the quotes and parsed date of one expiration. An empty
// expiration selects the nearest one.
func (s *Snapshot) Chain(expiration string) ([]models.ChainQuote, time.Time, error) {
	if expiration == "" {
		exps := s.Expirations()
		if len(exps) == 0 {
			return nil, time.Time{}, apperrors.NewDataError("chain", s.Symbol, "snapshot has no option chains", apperrors.ErrDataNotFound)
		}
		expiration = exps[0]
	}
	quotes, ok := s.Chains[expiration]
	if !ok {
		return nil, time.Time{}, apperrors.NewDataError("chain", s.Symbol, "no chain for "+expiration, apperrors.ErrDataNotFound)
	}
	exp, err := pricing.ParseExpiration(expiration)
	if err != nil {
		return nil, time.Time{}, err
	}
	return quotes, exp, nil
}

// Source supplies snapshots by symbol.
type Source interface {
	Snapshot(ctx context.Context, symbol string) (*Snapshot, error)
}

// CandleReader reads stored price history.
type CandleReader interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)
}

// FileConfig configures a FileSource.
type FileConfig struct {
	Dir         string
	DefaultRate float64
	HistoryDays int
	HVWindow    int
	HVFallback  float64
}

// FileSource reads <Dir>/<SYMBOL>.json snapshot files. Candles missing from
// a file are read from the candle store when one is configured.
type FileSource struct {
	cfg     FileConfig
	candles CandleReader
	engine  *indicators.Engine
	hv      *indicators.HistoricalVolatility
	logger  zerolog.Logger
	now     func() time.Time
}

// NewFileSource creates a file-backed source. candles may be nil.
func NewFileSource(cfg FileConfig, candles CandleReader, engine *indicators.Engine, logger zerolog.Logger) *FileSource {
	if cfg.HVWindow <= 0 {
		cfg.HVWindow = indicators.TradingDaysPerYear
	}
	if cfg.HVFallback <= 0 {
		cfg.HVFallback = 0.2
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 365
	}
	return &FileSource{
		cfg:     cfg,
		candles: candles,
		engine:  engine,
		hv:      indicators.NewHistoricalVolatility(cfg.HVWindow, cfg.HVFallback),
		logger:  logger.With().Str("component", "marketdata").Logger(),
		now:     time.Now,
	}
}

// snapshotFile is the on-disk layout. Rate is optional.
type snapshotFile struct {
	Symbol  string                         `json:"symbol"`
	Spot    float64                        `json:"spot"`
	Rate    *float64                       `json:"risk_free_rate"`
	AsOf    time.Time                      `json:"as_of"`
	Candles []models.Candle                `json:"candles"`
	Chains  map[string][]models.ChainQuote `json:"chains"`
}

// Path returns the snapshot file of symbol.
func (f *FileSource) Path(symbol string) string {
	return filepath.Join(f.cfg.Dir, strings.ToUpper(symbol)+".json")
}

// Snapshot loads and enriches the snapshot of symbol.
func (f *FileSource) Snapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, apperrors.NewValidationError("symbol", symbol, "is required")
	}

	data, err := os.ReadFile(f.Path(symbol))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NewDataError("snapshot", symbol, "no snapshot file", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, apperrors.NewDataError("snapshot", symbol, "read failed", err)
	}

	var raw snapshotFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.NewDataError("snapshot", symbol, "invalid JSON", fmt.Errorf("%w: %w", apperrors.ErrInputValidation, err))
	}
	if !(raw.Spot > 0) || math.IsInf(raw.Spot, 0) {
		return nil, apperrors.NewDataError("snapshot", symbol, "spot must be positive",
			apperrors.NewValidationError("spot", raw.Spot, "must be a positive finite number"))
	}

	snap := &Snapshot{
		Symbol:  symbol,
		Spot:    raw.Spot,
		Rate:    f.cfg.DefaultRate,
		AsOf:    raw.AsOf,
		Candles: raw.Candles,
		Chains:  raw.Chains,
	}
	if raw.Rate != nil {
		snap.Rate = *raw.Rate
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = f.now().UTC()
	}

	if len(snap.Candles) == 0 && f.candles != nil {
		from := snap.AsOf.AddDate(0, 0, -f.cfg.HistoryDays)
		stored, err := f.candles.GetCandles(ctx, symbol, from, snap.AsOf)
		if err != nil {
			return nil, apperrors.NewDataError("candles", symbol, "store lookup failed", err)
		}
		snap.Candles = stored
	}

	if err := f.enrich(ctx, snap); err != nil {
		return nil, err
	}
	logger := logging.WithSymbol(f.logger, symbol)
	if !snap.VolatilityFromData {
		logger.Debug().Int("candles", len(snap.Candles)).Msg("Too little history, using fallback volatility")
	}
	logger.Debug().
		Int("candles", len(snap.Candles)).
		Int("expirations", len(snap.Chains)).
		Float64("hv", snap.HistoricalVolatility).
		Msg("Snapshot loaded")
	return snap, nil
}

func (f *FileSource) enrich(ctx context.Context, snap *Snapshot) error {
	snap.HistoricalVolatility, snap.VolatilityFromData = f.hv.Estimate(snap.Candles)
	if f.engine == nil || len(snap.Candles) == 0 {
		return nil
	}
	tech, err := f.engine.Technicals(ctx, snap.Candles)
	if err != nil {
		return apperrors.Wrap(err, "computing technicals")
	}
	snap.Technicals = tech
	return nil
}
