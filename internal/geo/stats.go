package geo

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
)

// PathStats summarises a sample sequence for the status API and reports.
// Speeds are in m/s and distances in metres.
type PathStats struct {
	Samples      int     `json:"samples"`
	Positioned   int     `json:"positioned"`
	Anomalies    int     `json:"anomalies"`
	DistanceM    float64 `json:"distanceM"`
	DurationSecs float64 `json:"durationSecs"`
	MeanSpeed    float64 `json:"meanSpeed"`
	MaxSpeed     float64 `json:"maxSpeed"`

	// Score quantiles over scored samples only. Zero when nothing is scored.
	ScoreP50 float64 `json:"scoreP50"`
	ScoreP85 float64 `json:"scoreP85"`
	ScoreP98 float64 `json:"scoreP98"`
}

// ComputeStats walks the sequence once and derives the path summary. Distance
// accumulates over consecutive positioned samples; unpositioned samples break
// neither ordering nor the walk, they are simply skipped.
func ComputeStats(samples []sample.Sample) PathStats {
	st := PathStats{Samples: len(samples)}

	var speeds, scores []float64
	var prev *LatLng
	var first, last time.Time

	for _, s := range samples {
		if s.SpeedMPS != nil {
			speeds = append(speeds, *s.SpeedMPS)
		}
		if s.AnomalyScore != nil {
			scores = append(scores, *s.AnomalyScore)
		}
		if s.IsAnomalous() {
			st.Anomalies++
		}
		if !s.HasPosition() {
			continue
		}
		st.Positioned++
		lat, lng := s.Position()
		p := LatLng{Lat: lat, Lng: lng}
		if prev != nil {
			st.DistanceM += HaversineM(*prev, p)
		}
		prev = &p
		if first.IsZero() {
			first = s.Timestamp
		}
		last = s.Timestamp
	}

	if !first.IsZero() && last.After(first) {
		st.DurationSecs = last.Sub(first).Seconds()
	}
	if len(speeds) > 0 {
		st.MeanSpeed = stat.Mean(speeds, nil)
		for _, v := range speeds {
			if v > st.MaxSpeed {
				st.MaxSpeed = v
			}
		}
	}
	if len(scores) > 0 {
		sort.Float64s(scores)
		st.ScoreP50 = stat.Quantile(0.50, stat.Empirical, scores, nil)
		st.ScoreP85 = stat.Quantile(0.85, stat.Empirical, scores, nil)
		st.ScoreP98 = stat.Quantile(0.98, stat.Empirical, scores, nil)
	}
	return st
}
