// Package models provides domain models for the options analytics toolkit.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the instrument behind a strategy leg.
type Kind string

const (
	KindCall  Kind = "call"
	KindPut   Kind = "put"
	KindStock Kind = "stock"
)

// ParseKind converts user input ("call", "C", "PUT", ...) into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c", "calls":
		return KindCall, nil
	case "put", "p", "puts":
		return KindPut, nil
	case "stock", "s", "shares", "equity":
		return KindStock, nil
	default:
		return "", fmt.Errorf("unknown instrument kind %q", s)
	}
}

// IsOption reports whether the kind is a call or a put.
func (k Kind) IsOption() bool {
	return k == KindCall || k == KindPut
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// MarketConditions is the resolved market snapshot a strategy is evaluated against.
type MarketConditions struct {
	Symbol               string    `json:"symbol"`
	Spot                 float64   `json:"spot"`
	Rate                 float64   `json:"risk_free_rate"`
	HistoricalVolatility float64   `json:"historical_volatility"`
	AsOf                 time.Time `json:"as_of"`
}

// Technicals are the latest technical indicator readings of an underlying.
// A nil field means there was not enough history to compute it.
type Technicals struct {
	RSI14          *float64 `json:"rsi_14,omitempty"`
	SMA20          *float64 `json:"sma_20,omitempty"`
	SMA50          *float64 `json:"sma_50,omitempty"`
	BollingerUpper *float64 `json:"bb_upper,omitempty"`
	BollingerLower *float64 `json:"bb_lower,omitempty"`
	ATR14          *float64 `json:"atr_14,omitempty"`
}
