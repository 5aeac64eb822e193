package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"options-lab/internal/models"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		" WARN ":   zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"off":      zerolog.Disabled,
		"trace":    zerolog.TraceLevel,
		"nonsense": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]interface{}
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decoding log line: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func TestJSONConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LogConfig{Level: "warn", Console: true, JSON: true}, &buf)

	logger.Info().Msg("hidden")
	tagged := WithSymbol(logger, "GGAL")
	tagged.Warn().Msg("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["symbol"] != "GGAL" || lines[0]["message"] != "shown" {
		t.Errorf("line = %v", lines[0])
	}
}

func TestFileOutputRotatesIntoConfiguredPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "optlab.log")
	logger := newLogger(LogConfig{Level: "info", File: true, FilePath: path, MaxSize: 1}, &bytes.Buffer{})

	logger.Info().Msg("to file")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !bytes.Contains(data, []byte("to file")) {
		t.Errorf("log file = %q", data)
	}
}

func TestNoWritersDiscards(t *testing.T) {
	logger := newLogger(LogConfig{Level: "debug"}, &bytes.Buffer{})
	logger.Info().Msg("nowhere")
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), logger)
	scoped := FromContext(ctx)
	scoped.Info().Msg("from context")
	missing := FromContext(context.Background())
	missing.Info().Msg("dropped")

	if lines := decodeLines(t, &buf); len(lines) != 1 {
		t.Errorf("got %d lines, want 1", len(lines))
	}
}

func TestEventHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	LogStrategy(logger, &models.Strategy{
		Name:       "long_straddle",
		Legs:       make([]models.OptionLeg, 2),
		MaxProfit:  models.Unlimited(1),
		MaxLoss:    models.Finite(1200),
		Breakevens: []float64{88, 112},
	})
	LogSimulation(logger, &models.SimulationResult{Seed: 7, Paths: 1000, Steps: 252}, time.Second)
	LogAPICall(WithOperation(logger, "http"), "POST", "/api/v1/price", 400, time.Millisecond, errors.New("bad strike"))

	lines := decodeLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0]["max_profit"] != "Unlimited" || lines[0]["legs"] != float64(2) {
		t.Errorf("strategy line = %v", lines[0])
	}
	if lines[1]["seed"] != float64(7) || lines[1]["event"] != "simulation" {
		t.Errorf("simulation line = %v", lines[1])
	}
	if lines[2]["operation"] != "http" || lines[2]["error"] != "bad strike" || lines[2]["status"] != float64(400) {
		t.Errorf("api line = %v", lines[2])
	}
}
