// Package store persists daily candles and generated risk reports.
package store

import (
	"context"
	"time"

	"options-lab/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Candles
	SaveCandles(ctx context.Context, symbol string, candles []models.Candle) error
	ImportCandles(ctx context.Context, symbol string, candles []models.Candle, batchSize int) (int, error)
	GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)
	GetCandlesFreshness(ctx context.Context, symbol string) (time.Time, error)

	// Risk reports
	SaveReport(ctx context.Context, symbol string, report *models.RiskReport) error
	GetReport(ctx context.Context, id string) (*models.RiskReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]ReportSummary, error)

	// Lifecycle
	Close() error
}

// ReportFilter represents filters for querying stored reports.
type ReportFilter struct {
	Symbol    string
	Strategy  string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// ReportSummary is one row of the report journal.
type ReportSummary struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	StrategyName string    `json:"strategy_name"`
	GeneratedAt  time.Time `json:"generated_at"`
	NetCost      float64   `json:"net_cost"`
	ProbProfit   float64   `json:"probability_of_profit"`
}
