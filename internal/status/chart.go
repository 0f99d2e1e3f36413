package status

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/httputil"
)

// renderChart draws the current path as an XY scatter (lng on X, lat on Y)
// with the anomaly score driving point colour. A quick visual check without
// the full dashboard; tooling only, no auth.
func (s *Server) renderChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	samples := s.view.Samples()
	data := make([]opts.ScatterData, 0, len(samples))
	minLat, maxLat := 0.0, 0.0
	minLng, maxLng := 0.0, 0.0
	first := true
	for _, smp := range samples {
		if !smp.HasPosition() {
			continue
		}
		lat, lng := smp.Position()
		if first {
			minLat, maxLat, minLng, maxLng = lat, lat, lng, lng
			first = false
		}
		minLat, maxLat = min(minLat, lat), max(maxLat, lat)
		minLng, maxLng = min(minLng, lng), max(maxLng, lng)

		score := 0.0
		if smp.AnomalyScore != nil {
			score = *smp.AnomalyScore
		}
		data = append(data, opts.ScatterData{Value: []interface{}{lng, lat, score}})
	}

	if len(data) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no positioned samples to chart")
		return
	}

	latPad := (maxLat - minLat) * 0.1
	lngPad := (maxLng - minLng) * 0.1
	if latPad == 0 {
		latPad = 0.001
	}
	if lngPad == 0 {
		lngPad = 0.001
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Device path", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Device path",
			Subtitle: fmt.Sprintf("device=%s points=%d", s.view.Device(), len(data)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minLng - lngPad, Max: maxLng + lngPad, Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minLat - latPad, Max: maxLat + latPad, Name: "Latitude", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#35b779", "#fde725", "#b5de2b", "#ff7f0e", "#d62728"}},
		}),
	)
	scatter.AddSeries("path", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, "chart render failed: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
