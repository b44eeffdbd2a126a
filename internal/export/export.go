// Package export renders series as CSV files and PNG charts.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"balance-telemetry/internal/model"
	"balance-telemetry/internal/pnl"
)

// ChartSize is the PNG canvas size.
type ChartSize struct {
	Width  int
	Height int
}

// WriteHistoryCSV writes balance points with one row per point.
func WriteHistoryCSV(w io.Writer, points []model.HistoryPoint) error {
	writer := csv.NewWriter(w)

	header := []string{"timestamp", "total_usd", "total_usd_usdt", "total_rlb", "rlb_price_usd"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		price := ""
		if p.RLBPriceUSD != nil {
			price = formatFloat(*p.RLBPriceUSD)
		}
		record := []string{
			p.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(p.TotalUSD),
			formatFloat(p.TotalUSDUSDT),
			formatFloat(p.TotalRLB),
			price,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WritePnLCSV writes the net and raw cumulative tracks side by side.
func WritePnLCSV(w io.Writer, res pnl.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"timestamp", "cumulative_net_usd", "cumulative_raw_usd"}); err != nil {
		return err
	}
	for i, p := range res.Net {
		raw := ""
		if i < len(res.Raw) {
			raw = res.Raw[i].Value.String()
		}
		if err := writer.Write([]string{p.Time.UTC().Format(time.RFC3339), p.Value.String(), raw}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// RenderHistoryPNG charts total and stablecoin USD, with RLB on the secondary axis.
func RenderHistoryPNG(w io.Writer, points []model.HistoryPoint, size ChartSize) error {
	x := make([]time.Time, len(points))
	total := make([]float64, len(points))
	stable := make([]float64, len(points))
	rlb := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Timestamp
		total[i] = p.TotalUSD
		stable[i] = p.TotalUSDUSDT
		rlb[i] = p.TotalRLB
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := newChart(size)
	graph.YAxis = chart.YAxis{Name: "USD", ValueFormatter: usdFormatter}
	graph.YAxisSecondary = chart.YAxis{Name: "RLB", ValueFormatter: usdFormatter}
	graph.Series = []chart.Series{
		chart.TimeSeries{Name: "Total USD", XValues: x, YValues: total},
		chart.TimeSeries{Name: "Stablecoin USD", XValues: x, YValues: stable},
		chart.TimeSeries{Name: "RLB", XValues: x, YValues: rlb, YAxis: chart.YAxisSecondary},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// RenderPnLPNG charts cumulative net and raw profit.
func RenderPnLPNG(w io.Writer, res pnl.Result, size ChartSize) error {
	x := make([]time.Time, len(res.Net))
	net := make([]float64, len(res.Net))
	raw := make([]float64, len(res.Raw))
	for i, p := range res.Net {
		x[i] = p.Time
		net[i] = p.Value.InexactFloat64()
	}
	for i, p := range res.Raw {
		raw[i] = p.Value.InexactFloat64()
	}

	graph := newChart(size)
	graph.YAxis = chart.YAxis{
		Name: "Cumulative profit (USD)",
		ValueFormatter: func(v interface{}) string {
			return chart.FloatValueFormatterWithFormat(v, "%.2f")
		},
	}
	graph.Series = []chart.Series{
		chart.TimeSeries{Name: "Net (after gas)", XValues: x, YValues: net},
		chart.TimeSeries{Name: "Raw", XValues: x[:len(raw)], YValues: raw},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

func newChart(size ChartSize) chart.Chart {
	if size.Width <= 0 {
		size.Width = 1280
	}
	if size.Height <= 0 {
		size.Height = 720
	}
	return chart.Chart{
		Width:  size.Width,
		Height: size.Height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
	}
}

// ToFile creates path (and its directory) and passes the file to write.
func ToFile(path string, write func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
