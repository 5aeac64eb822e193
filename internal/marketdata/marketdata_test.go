package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"options-lab/internal/analysis/indicators"
	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/performance"
	"options-lab/pkg/utils"
)

var asOf = time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)

func dailyCandles(n int, start float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := start * math.Pow(1.01, float64(i))
		if i%2 == 1 {
			c *= 0.99
		}
		out[i] = models.Candle{
			Timestamp: asOf.AddDate(0, 0, i-n),
			Open:      c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 1000,
		}
	}
	return out
}

func writeSnapshot(t *testing.T, dir, symbol string, body map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, symbol+".json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newEngine(t *testing.T) *indicators.Engine {
	t.Helper()
	pool := performance.NewWorkerPool(2)
	pool.Start()
	t.Cleanup(pool.Stop)
	return indicators.NewDefaultEngine(pool)
}

func TestFileSourceSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "GGAL", map[string]interface{}{
		"spot":    100.0,
		"as_of":   asOf,
		"candles": dailyCandles(60, 90),
		"chains": map[string][]models.ChainQuote{
			"2025-07-18": {{Strike: 100, LastPrice: 4, Bid: 3.9, Ask: 4.1, Kind: models.KindCall}},
			"2025-06-20": {{Strike: 100, LastPrice: 2, Bid: 1.9, Ask: 2.1, Kind: models.KindPut}},
		},
	})

	src := NewFileSource(FileConfig{Dir: dir, DefaultRate: 0.05}, nil, newEngine(t), zerolog.Nop())
	snap, err := src.Snapshot(context.Background(), "ggal")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.Symbol != "GGAL" || snap.Spot != 100 || snap.Rate != 0.05 {
		t.Errorf("snapshot header = %+v", snap.Market())
	}
	if !snap.VolatilityFromData || snap.HistoricalVolatility <= 0 {
		t.Errorf("hv = %v (from data %v)", snap.HistoricalVolatility, snap.VolatilityFromData)
	}
	if snap.Technicals.SMA50 == nil || snap.Technicals.RSI14 == nil {
		t.Errorf("technicals = %+v", snap.Technicals)
	}

	if exps := snap.Expirations(); len(exps) != 2 || exps[0] != "2025-06-20" {
		t.Errorf("expirations = %v", exps)
	}
	quotes, exp, err := snap.Chain("")
	if err != nil || len(quotes) != 1 || quotes[0].Kind != models.KindPut || exp.Day() != 20 {
		t.Errorf("nearest chain = %+v %v %v", quotes, exp, err)
	}
	if _, _, err := snap.Chain("2030-01-01"); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("unknown expiration error = %v", err)
	}
}

func TestFileSourceRateAndFallbacks(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "XYZ", map[string]interface{}{"spot": 50.0, "risk_free_rate": 0.02})

	src := NewFileSource(FileConfig{Dir: dir, DefaultRate: 0.05, HVFallback: 0.2}, nil, newEngine(t), zerolog.Nop())
	src.now = func() time.Time { return asOf }
	snap, err := src.Snapshot(context.Background(), "XYZ")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Rate != 0.02 {
		t.Errorf("rate = %v, want file value 0.02", snap.Rate)
	}
	if snap.HistoricalVolatility != 0.2 || snap.VolatilityFromData {
		t.Errorf("hv = %v, want fallback 0.2", snap.HistoricalVolatility)
	}
	if !snap.AsOf.Equal(asOf) {
		t.Errorf("as_of = %v, want clock time", snap.AsOf)
	}
	if _, _, err := snap.Chain(""); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("chain on empty snapshot = %v", err)
	}
}

type fakeCandles struct {
	candles []models.Candle
	calls   int
}

func (f *fakeCandles) GetCandles(_ context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	f.calls++
	return f.candles, nil
}

func TestFileSourceReadsStoredCandles(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "ABC", map[string]interface{}{"spot": 10.0, "as_of": asOf})
	store := &fakeCandles{candles: dailyCandles(30, 10)}

	src := NewFileSource(FileConfig{Dir: dir}, store, nil, zerolog.Nop())
	snap, err := src.Snapshot(context.Background(), "ABC")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if store.calls != 1 || len(snap.Candles) != 30 || !snap.VolatilityFromData {
		t.Errorf("store calls %d, candles %d, hv from data %v", store.calls, len(snap.Candles), snap.VolatilityFromData)
	}
}

func TestFileSourceErrors(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "BAD", map[string]interface{}{"spot": -1.0})
	if err := os.WriteFile(filepath.Join(dir, "JUNK.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := NewFileSource(FileConfig{Dir: dir}, nil, nil, zerolog.Nop())
	ctx := context.Background()

	if _, err := src.Snapshot(ctx, "NONE"); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("missing file error = %v", err)
	}
	if _, err := src.Snapshot(ctx, "BAD"); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("negative spot error = %v", err)
	}
	if _, err := src.Snapshot(ctx, "JUNK"); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("invalid json error = %v", err)
	}
	if _, err := src.Snapshot(ctx, " "); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("blank symbol error = %v", err)
	}
}

type countingSource struct {
	calls atomic.Int32
	fail  int32
	err   error
}

func (c *countingSource) Snapshot(_ context.Context, symbol string) (*Snapshot, error) {
	n := c.calls.Add(1)
	if n <= c.fail {
		return nil, c.err
	}
	return &Snapshot{Symbol: symbol, Spot: 100}, nil
}

type lookups struct{ hit, miss, err int }

func (l *lookups) RecordCacheLookup(result string) {
	switch result {
	case LookupHit:
		l.hit++
	case LookupMiss:
		l.miss++
	default:
		l.err++
	}
}

func fastRetry() utils.RetryConfig {
	return utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
}

func TestCachedSourceHitsAndExpiry(t *testing.T) {
	inner := &countingSource{}
	cache := NewMemoryCache()
	now := asOf
	cache.now = func() time.Time { return now }
	m := &lookups{}

	src := NewCachedSource(inner, cache, time.Minute, fastRetry(), zerolog.Nop(), m)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := src.Snapshot(ctx, "ggal"); err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
	}
	if inner.calls.Load() != 1 || m.hit != 2 || m.miss != 1 {
		t.Errorf("calls %d, lookups %+v", inner.calls.Load(), m)
	}

	now = now.Add(2 * time.Minute)
	if _, err := src.Snapshot(ctx, "GGAL"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("expired entry not reloaded: %d calls", inner.calls.Load())
	}
}

func TestCachedSourceRetries(t *testing.T) {
	flaky := &countingSource{fail: 2, err: errors.New("temporarily unavailable")}
	src := NewCachedSource(flaky, nil, 0, fastRetry(), zerolog.Nop(), nil)
	if _, err := src.Snapshot(context.Background(), "GGAL"); err != nil {
		t.Fatalf("Snapshot after transient failures: %v", err)
	}
	if flaky.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", flaky.calls.Load())
	}

	missing := &countingSource{fail: 10, err: apperrors.NewDataError("snapshot", "X", "gone", apperrors.ErrDataNotFound)}
	src = NewCachedSource(missing, nil, 0, fastRetry(), zerolog.Nop(), nil)
	if _, err := src.Snapshot(context.Background(), "X"); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("err = %v", err)
	}
	if missing.calls.Load() != 1 {
		t.Errorf("not-found retried %d times", missing.calls.Load())
	}
}

func TestCachedSourceSurvivesBrokenRedis(t *testing.T) {
	cache := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1", Prefix: "test:", DialTimeout: 100 * time.Millisecond})
	defer cache.Close()
	if err := cache.Ping(context.Background()); err == nil {
		t.Skip("something is listening on 127.0.0.1:1")
	}

	inner := &countingSource{}
	m := &lookups{}
	src := NewCachedSource(inner, cache, time.Minute, fastRetry(), zerolog.Nop(), m)
	snap, err := src.Snapshot(context.Background(), "GGAL")
	if err != nil || snap.Spot != 100 {
		t.Fatalf("Snapshot = %+v, %v", snap, err)
	}
	if m.err != 1 {
		t.Errorf("lookups = %+v, want one error", m)
	}
}

func TestRedisKeyPrefix(t *testing.T) {
	c := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1", Prefix: "optlab:"})
	defer c.Close()
	if got := c.wrapKey("GGAL"); got != "optlab:GGAL" {
		t.Errorf("wrapKey = %q", got)
	}
	if got := c.wrapKey("optlab:GGAL"); got != "optlab:GGAL" {
		t.Errorf("wrapKey twice = %q", got)
	}
}

type failingCache struct{ gets atomic.Int32 }

func (f *failingCache) Get(context.Context, string) (*Snapshot, error) {
	f.gets.Add(1)
	return nil, errors.New("connection refused")
}

func (f *failingCache) Set(context.Context, string, *Snapshot, time.Duration) error {
	return errors.New("connection refused")
}

func (f *failingCache) Close() error { return nil }

func TestCachedSourceBypassesFailingCache(t *testing.T) {
	cache := &failingCache{}
	m := &lookups{}
	var logs bytes.Buffer
	src := NewCachedSource(&countingSource{}, cache, time.Minute, fastRetry(), zerolog.New(&logs), m).
		WithBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	for i := 0; i < 5; i++ {
		if _, err := src.Snapshot(context.Background(), "GGAL"); err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
	}
	if cache.gets.Load() != 2 {
		t.Errorf("cache called %d times after opening, want 2", cache.gets.Load())
	}
	if src.CacheState() != BreakerOpen {
		t.Errorf("state = %s, want open", src.CacheState())
	}
	if m.err != 5 {
		t.Errorf("lookups = %+v, want 2 errors and 3 bypasses", m)
	}

	dec := json.NewDecoder(&logs)
	warnings := 0
	for dec.More() {
		var line map[string]interface{}
		if err := dec.Decode(&line); err != nil {
			t.Fatalf("decoding log line: %v", err)
		}
		if line["level"] == "warn" {
			warnings++
			if line["symbol"] != "GGAL" {
				t.Errorf("warning without symbol: %v", line)
			}
		}
	}
	if warnings != 2 {
		t.Errorf("got %d cache warnings, want 2", warnings)
	}
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	now := asOf
	b.now = func() time.Time { return now }

	b.failure()
	if b.allow() {
		t.Fatal("open breaker allowed a call")
	}

	now = now.Add(2 * time.Minute)
	if !b.allow() {
		t.Fatal("cooldown elapsed but trial refused")
	}
	if b.allow() {
		t.Error("second concurrent trial allowed")
	}
	b.failure()
	if b.current() != BreakerOpen || b.allow() {
		t.Errorf("failed trial left state %s", b.current())
	}

	now = now.Add(2 * time.Minute)
	if !b.allow() {
		t.Fatal("second trial refused")
	}
	b.success()
	if b.current() != BreakerClosed || !b.allow() {
		t.Errorf("successful trial left state %s", b.current())
	}
}
