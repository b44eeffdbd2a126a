package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger(Config{Level: "debug", Format: "json"}, &buf), "series_merger")
	logger.Debug().Int("live_points", 3).Msg("committed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line: %v (%s)", err, buf.String())
	}
	if entry["component"] != "series_merger" || entry["live_points"] != float64(3) {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLoggerLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "nonsense"}, &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("expected info level fallback, got %q", out)
	}
}
