package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
)

// addDataCommands adds market data commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage price history and inspect market snapshots",
	}
	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataFreshnessCmd(app))
	cmd.AddCommand(newDataSnapshotCmd(app))
	rootCmd.AddCommand(cmd)
}

func newDataImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <symbol> <file>",
		Short: "Import daily candles from a CSV or JSON file",
		Long: `Import daily OHLCV candles into the local store. CSV files need a header
row with date, open, high, low, close and volume columns; JSON files hold an
array of {timestamp, open, high, low, close, volume} objects. Existing
candles for the same dates are replaced.`,
		Example: `  optlab data import GGAL ggal.csv`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			if app.Store == nil {
				return apperrors.Wrap(apperrors.ErrDatabaseError, "store unavailable")
			}
			symbol := strings.ToUpper(args[0])
			candles, err := readCandleFile(args[1])
			if err != nil {
				return err
			}
			batch, _ := cmd.Flags().GetInt("batch")
			n, err := app.Store.ImportCandles(ctx, symbol, candles, batch)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "imported": n})
			}
			output.Success("✓ Imported %d candles for %s", n, symbol)
			return nil
		},
	}
	cmd.Flags().Int("batch", 500, "rows per transaction")
	return cmd
}

// readCandleFile decodes candles by file extension.
func readCandleFile(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var candles []models.Candle
		if err := json.NewDecoder(f).Decode(&candles); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInputValidation, "decoding candles: "+err.Error())
		}
		return candles, nil
	}
	return parseCandleCSV(f)
}

func parseCandleCSV(r io.Reader) ([]models.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInputValidation, "reading CSV header: "+err.Error())
	}

	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["date"]; !ok {
		if i, ok := col["timestamp"]; ok {
			col["date"] = i
		}
	}
	for _, name := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := col[name]; !ok {
			return nil, apperrors.NewValidationError("csv", name, "missing column")
		}
	}

	var candles []models.Candle
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInputValidation, err.Error())
		}
		c, err := candleFromRecord(rec, col)
		if err != nil {
			return nil, apperrors.Wrapf(err, "line %d", line)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func candleFromRecord(rec []string, col map[string]int) (models.Candle, error) {
	var c models.Candle
	ts, err := parseCandleTime(rec[col["date"]])
	if err != nil {
		return c, err
	}
	c.Timestamp = ts

	fields := []struct {
		name string
		dst  *float64
	}{{"open", &c.Open}, {"high", &c.High}, {"low", &c.Low}, {"close", &c.Close}}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[f.name]]), 64)
		if err != nil {
			return c, apperrors.NewValidationError(f.name, rec[col[f.name]], "must be a number")
		}
		*f.dst = v
	}
	if i, ok := col["volume"]; ok && strings.TrimSpace(rec[i]) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return c, apperrors.NewValidationError("volume", rec[i], "must be a number")
		}
		c.Volume = int64(v)
	}
	return c, nil
}

func parseCandleTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperrors.NewValidationError("date", s, "must be YYYY-MM-DD or RFC 3339")
}

func newDataFreshnessCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "freshness <symbol>",
		Short: "Show the latest stored candle of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			if app.Store == nil {
				return apperrors.Wrap(apperrors.ErrDatabaseError, "store unavailable")
			}
			symbol := strings.ToUpper(args[0])
			latest, err := app.Store.GetCandlesFreshness(ctx, symbol)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				var ts *time.Time
				if !latest.IsZero() {
					ts = &latest
				}
				return output.JSON(map[string]interface{}{"symbol": symbol, "latest": ts})
			}
			if latest.IsZero() {
				output.Warning("No candles stored for %s", symbol)
				return nil
			}
			age := app.now().Sub(latest)
			output.Printf("%s: latest candle %s (%.0f days old)\n", symbol, FormatDate(latest), age.Hours()/24)
			return nil
		},
	}
}

func newDataSnapshotCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [symbol]",
		Short: "Show a market snapshot with volatility and technicals",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			symbol := app.Config.Market.Symbol
			if len(args) == 1 {
				symbol = args[0]
			}
			snap, err := app.Market.Snapshot(ctx, symbol)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				view := *snap
				view.Candles = nil
				return output.JSON(view)
			}

			output.Bold("%s  %s", snap.Symbol, FormatPrice(snap.Spot))
			output.Dim("As of %s", FormatDateTime(snap.AsOf))
			output.Printf("  Risk-free rate:  %s\n", FormatRate(snap.Rate))
			hv := FormatRate(snap.HistoricalVolatility)
			if !snap.VolatilityFromData {
				hv = output.Yellow(hv + " (fallback)")
			}
			output.Printf("  Historical vol:  %s\n", hv)
			output.Printf("  Candles:         %d\n", len(snap.Candles))
			output.Println()

			t := snap.Technicals
			output.Bold("Technicals")
			output.Printf("  RSI 14:          %s\n", FormatOptional(t.RSI14))
			output.Printf("  SMA 20 / 50:     %s / %s\n", FormatOptional(t.SMA20), FormatOptional(t.SMA50))
			output.Printf("  Bollinger 20:    %s .. %s\n", FormatOptional(t.BollingerLower), FormatOptional(t.BollingerUpper))
			output.Printf("  ATR 14:          %s\n", FormatOptional(t.ATR14))
			output.Println()

			exps := snap.Expirations()
			if len(exps) == 0 {
				output.Dim("No option chains")
				return nil
			}
			output.Bold("Expirations")
			for _, exp := range exps {
				output.Printf("  %s  %s\n", exp, fmt.Sprintf("%d quotes", len(snap.Chains[exp])))
			}
			return nil
		},
	}
}
