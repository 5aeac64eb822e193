package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
	"options-lab/internal/performance"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily OHLCV history of underlyings
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timestamp)
	);

	-- Generated risk reports
	CREATE TABLE IF NOT EXISTS risk_reports (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		generated_at DATETIME NOT NULL,
		net_cost REAL NOT NULL,
		prob_profit REAL NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_candles_symbol_ts ON candles(symbol, timestamp);
	CREATE INDEX IF NOT EXISTS idx_reports_symbol ON risk_reports(symbol, generated_at);
	CREATE INDEX IF NOT EXISTS idx_reports_strategy ON risk_reports(strategy, generated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func dbError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrDatabaseError, err)
}

// SaveCandles upserts candles for symbol in one transaction.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	symbol = strings.ToUpper(symbol)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("prepare statement", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return dbError("insert candle", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("commit transaction", err)
	}
	return nil
}

// ImportCandles saves candles in transactions of batchSize rows and returns
// the number of rows written before the first failure.
func (s *SQLiteStore) ImportCandles(ctx context.Context, symbol string, candles []models.Candle, batchSize int) (int, error) {
	written := 0
	batches := performance.NewBatchProcessor(batchSize, func(batch []models.Candle) error {
		if err := s.SaveCandles(ctx, symbol, batch); err != nil {
			return err
		}
		written += len(batch)
		return nil
	})
	for _, c := range candles {
		if err := batches.Add(c); err != nil {
			return written, err
		}
	}
	if err := batches.Flush(); err != nil {
		return written, err
	}
	return written, nil
}

// GetCandles returns the candles of symbol within [from, to] in time order.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, strings.ToUpper(symbol), from.UTC(), to.UTC())
	if err != nil {
		return nil, dbError("query candles", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, dbError("scan candle", err)
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("iterate candles", err)
	}

	return candles, nil
}

// GetCandlesFreshness returns the timestamp of the newest candle, or the zero
// time when symbol has none.
func (s *SQLiteStore) GetCandlesFreshness(ctx context.Context, symbol string) (time.Time, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM candles WHERE symbol = ?
	`, strings.ToUpper(symbol)).Scan(&latest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, dbError("candles freshness", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return parseTimestamp(latest.String)
}

// SQLite returns aggregates over DATETIME columns as text.
func parseTimestamp(v string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05Z",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, dbError("parse timestamp", fmt.Errorf("unrecognised format %q", v))
}

// SaveReport journals report under symbol, replacing any report with the same ID.
func (s *SQLiteStore) SaveReport(ctx context.Context, symbol string, report *models.RiskReport) error {
	if report == nil || report.ID == "" {
		return apperrors.NewValidationError("report", nil, "must have an id")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO risk_reports (id, symbol, strategy, generated_at, net_cost, prob_profit, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, report.ID, strings.ToUpper(symbol), report.StrategyName, report.GeneratedAt.UTC(),
		report.Basic.NetCost, report.Basic.ProbabilityOfProfit, string(payload))
	if err != nil {
		return dbError("save report", err)
	}
	return nil
}

// GetReport loads a journaled report by ID.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*models.RiskReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM risk_reports WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewDataError("report", id, "not found", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, dbError("get report", err)
	}

	var report models.RiskReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, apperrors.NewDataError("report", id, "corrupt payload", err)
	}
	return &report, nil
}

// ListReports returns journal rows, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]ReportSummary, error) {
	query := `SELECT id, symbol, strategy, generated_at, net_cost, prob_profit FROM risk_reports WHERE 1=1`
	var args []interface{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, strings.ToUpper(filter.Symbol))
	}
	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}
	if !filter.StartDate.IsZero() {
		query += " AND generated_at >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND generated_at <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY generated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query reports", err)
	}
	defer rows.Close()

	var out []ReportSummary
	for rows.Next() {
		var r ReportSummary
		if err := rows.Scan(&r.ID, &r.Symbol, &r.StrategyName, &r.GeneratedAt, &r.NetCost, &r.ProbProfit); err != nil {
			return nil, dbError("scan report", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate reports", err)
	}
	return out, nil
}
