// Command report renders an offline report from a tracker journal: an HTML
// path chart, a score-distribution plot and a text summary. It reads the
// spool the agent writes; no backend access is needed.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/geo"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/journal"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/units"
)

var (
	journalPath = flag.String("journal", "tracker-journal.db", "Path to the tracker journal")
	deviceID    = flag.String("device", "", "Device ID to report on")
	outDir      = flag.String("out", "report", "Output directory")
	limit       = flag.Int("limit", 500, "Maximum samples to include")
	speedUnits  = flag.String("units", units.MPS, "Display units for speeds (mps, mph, kmph)")
)

func main() {
	flag.Parse()

	if *deviceID == "" {
		log.Fatal("a device ID is required (-device)")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("unknown units %q (valid: %v)", *speedUnits, units.ValidUnits)
	}

	j, err := journal.Open(*journalPath)
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	samples, err := j.RecentSamples(*deviceID, *limit)
	if err != nil {
		log.Fatalf("failed to read samples: %v", err)
	}
	if len(samples) == 0 {
		log.Fatalf("no samples recorded for device %s", *deviceID)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	stats := geo.ComputeStats(samples)

	pathFile := filepath.Join(*outDir, "path.html")
	if err := renderPathChart(samples, *deviceID, pathFile); err != nil {
		log.Fatalf("failed to render path chart: %v", err)
	}

	scoreFile := filepath.Join(*outDir, "scores.png")
	scored := scoreValues(samples)
	if len(scored) > 0 {
		if err := renderScoreHistogram(scored, *deviceID, scoreFile); err != nil {
			log.Fatalf("failed to render score plot: %v", err)
		}
	}

	fmt.Printf("device:      %s\n", *deviceID)
	fmt.Printf("samples:     %d (%d positioned, %d anomalous)\n", stats.Samples, stats.Positioned, stats.Anomalies)
	fmt.Printf("distance:    %.1f m over %.0f s\n", stats.DistanceM, stats.DurationSecs)
	label := units.Label(*speedUnits)
	fmt.Printf("speed:       mean %.2f %s, max %.2f %s\n",
		units.ConvertSpeed(stats.MeanSpeed, *speedUnits), label,
		units.ConvertSpeed(stats.MaxSpeed, *speedUnits), label)
	if len(scored) > 0 {
		fmt.Printf("score:       p50 %.3f, p85 %.3f, p98 %.3f\n", stats.ScoreP50, stats.ScoreP85, stats.ScoreP98)
		fmt.Printf("score plot:  %s\n", scoreFile)
	}
	fmt.Printf("path chart:  %s\n", pathFile)
}

func scoreValues(samples []sample.Sample) plotter.Values {
	var vals plotter.Values
	for _, s := range samples {
		if s.AnomalyScore != nil {
			vals = append(vals, *s.AnomalyScore)
		}
	}
	return vals
}

// renderPathChart writes the path as a standalone HTML scatter, colour
// keyed to anomaly score.
func renderPathChart(samples []sample.Sample, device, path string) error {
	data := make([]opts.ScatterData, 0, len(samples))
	for _, s := range samples {
		if !s.HasPosition() {
			continue
		}
		lat, lng := s.Position()
		score := 0.0
		if s.AnomalyScore != nil {
			score = *s.AnomalyScore
		}
		data = append(data, opts.ScatterData{Value: []interface{}{lng, lat, score}})
	}
	if len(data) == 0 {
		return fmt.Errorf("no positioned samples for device %s", device)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Path report", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Device path",
			Subtitle: fmt.Sprintf("device=%s points=%d", device, len(data)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Longitude", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Latitude", NameLocation: "middle", NameGap: 30, Scale: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#35b779", "#fde725", "#ff7f0e", "#d62728"}},
		}),
	)
	scatter.AddSeries("path", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return scatter.Render(f)
}

// renderScoreHistogram writes the anomaly score distribution as a PNG.
func renderScoreHistogram(vals plotter.Values, device, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Anomaly score distribution (%s)", device)
	p.X.Label.Text = "Score"
	p.Y.Label.Text = "Samples"
	p.X.Min = 0
	p.X.Max = 1

	hist, err := plotter.NewHist(vals, 20)
	if err != nil {
		return err
	}
	p.Add(hist)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
