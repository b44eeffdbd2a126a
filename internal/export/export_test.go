package export

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"balance-telemetry/internal/model"
	"balance-telemetry/internal/pnl"
)

func TestWriteHistoryCSV(t *testing.T) {
	price := 0.125
	points := []model.HistoryPoint{
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), TotalUSD: 10.5, TotalUSDUSDT: 4, TotalRLB: 100, RLBPriceUSD: &price},
		{Timestamp: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), TotalUSD: 11},
	}

	var buf bytes.Buffer
	if err := WriteHistoryCSV(&buf, points); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "2024-01-01T00:00:00Z" || rows[1][1] != "10.5" || rows[1][4] != "0.125" {
		t.Fatalf("unexpected row %v", rows[1])
	}
	if rows[2][4] != "" {
		t.Fatalf("missing price must be blank, got %q", rows[2][4])
	}
}

func TestWritePnLCSV(t *testing.T) {
	res := pnl.Result{
		Net: []pnl.Point{{Time: time.Unix(0, 0), Value: decimal.NewFromInt(8)}},
		Raw: []pnl.Point{{Time: time.Unix(0, 0), Value: decimal.NewFromInt(10)}},
	}
	var buf bytes.Buffer
	if err := WritePnLCSV(&buf, res); err != nil {
		t.Fatal(err)
	}
	rows, _ := csv.NewReader(&buf).ReadAll()
	if rows[1][1] != "8" || rows[1][2] != "10" {
		t.Fatalf("unexpected row %v", rows[1])
	}
}

func TestRenderHistoryPNG(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]model.HistoryPoint, 10)
	for i := range points {
		points[i] = model.HistoryPoint{Timestamp: start.Add(time.Duration(i) * time.Minute), TotalUSD: float64(100 + i), TotalUSDUSDT: 50, TotalRLB: float64(1000 - i)}
	}

	path := filepath.Join(t.TempDir(), "charts", "history.png")
	err := ToFile(path, func(w io.Writer) error {
		return RenderHistoryPNG(w, points, ChartSize{Width: 320, Height: 200})
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatal("expected PNG output")
	}
}
