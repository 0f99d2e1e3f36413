// Package pathview maintains the ordered sample sequence for the selected
// device and derives everything the map needs from it: normal/anomaly
// segments, anomaly point markers, and the viewport fit.
//
// The sequence is seeded wholesale by a history load and extended one sample
// at a time by live pushes. Derived values are recomputed from scratch on
// every change; the sequence is bounded (history limit plus live trickle) so
// there is no need for incremental diffing.
package pathview

import (
	"context"
	"sort"
	"sync"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/apiclient"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/geo"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/metrics"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/timeutil"
)

// LoadState is the per-device history load state.
type LoadState string

const (
	Unloaded LoadState = "unloaded"
	Loading  LoadState = "loading"
	Loaded   LoadState = "loaded"
)

// SegmentKind classifies one path segment.
type SegmentKind string

const (
	SegmentNormal  SegmentKind = "normal"
	SegmentAnomaly SegmentKind = "anomaly"
)

// Segment connects two consecutive positioned samples. Kind is derived from
// the destination sample's anomaly score.
type Segment struct {
	From geo.LatLng  `json:"from"`
	To   geo.LatLng  `json:"to"`
	Kind SegmentKind `json:"kind"`
}

// HistoryLoader fetches a device's recent samples; *apiclient.Client
// satisfies it.
type HistoryLoader interface {
	History(ctx context.Context, deviceID string, limit int) ([]sample.Sample, error)
}

// AnomalyFunc receives each newly notified anomaly exactly once per sample
// ID for the lifetime of the View.
type AnomalyFunc func(sample.AnomalyAlert)

// View is the path state for one selected device at a time.
type View struct {
	loader    HistoryLoader
	fit       geo.FitConfig
	onAnomaly AnomalyFunc
	clock     timeutil.Clock

	mu       sync.Mutex
	deviceID string
	state    LoadState
	loadGen  int
	samples  []sample.Sample

	// notified is never pruned while the View lives; it is what makes
	// anomaly notification idempotent across history refreshes and live
	// pushes of the same sample.
	notified map[string]bool

	segments  []Segment
	anomalies []sample.Sample
	positions []geo.LatLng
	viewport  geo.Viewport
}

// New creates an empty view. The anomaly callback may be nil; a nil clock
// uses the real clock.
func New(loader HistoryLoader, fit geo.FitConfig, onAnomaly AnomalyFunc, clock timeutil.Clock) *View {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	v := &View{
		loader:    loader,
		fit:       fit,
		onAnomaly: onAnomaly,
		clock:     clock,
		state:     Unloaded,
		notified:  make(map[string]bool),
	}
	v.viewport = geo.Fit(nil, fit)
	return v
}

// Device returns the currently selected device ID.
func (v *View) Device() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deviceID
}

// State returns the history load state.
func (v *View) State() LoadState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SetDevice selects a device, discarding the previous device's sequence and
// invalidating any in-flight history load for it. The notified-ID set is
// per View, not per device, and survives the switch.
func (v *View) SetDevice(deviceID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.deviceID == deviceID {
		return
	}
	v.deviceID = deviceID
	v.state = Unloaded
	v.loadGen++
	v.samples = nil
	v.recomputeLocked()
}

// LoadHistory fetches the selected device's recent samples, filters them to
// the given recency window, sorts ascending by timestamp, and replaces the
// sequence wholesale. A result that arrives after the device has changed (or
// after a newer load started) is discarded.
func (v *View) LoadHistory(ctx context.Context, window sample.Window) error {
	v.mu.Lock()
	deviceID := v.deviceID
	if deviceID == "" {
		v.mu.Unlock()
		return nil
	}
	v.state = Loading
	v.loadGen++
	gen := v.loadGen
	v.mu.Unlock()

	fetched, err := v.loader.History(ctx, deviceID, apiclient.HistoryLimit)

	v.mu.Lock()
	if v.loadGen != gen || v.deviceID != deviceID {
		// stale result for a superseded load or a different device
		v.mu.Unlock()
		return nil
	}
	if err != nil {
		v.state = Unloaded
		v.mu.Unlock()
		monitoring.Logf("history load for %s failed: %v", deviceID, err)
		return err
	}

	cutoff := v.clock.Now().Add(-window.Duration())
	kept := make([]sample.Sample, 0, len(fetched))
	for _, s := range fetched {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})

	v.samples = kept
	v.state = Loaded
	alerts := v.collectAlertsLocked(kept)
	v.recomputeLocked()
	v.mu.Unlock()

	v.dispatch(alerts)
	return nil
}

// AppendLive appends one pushed sample to the tail of the sequence.
// Positionless samples are ignored. The sequence is not re-sorted: pushes
// are expected in timestamp order, and an out-of-order push renders an
// out-of-order path rather than being corrected.
func (v *View) AppendLive(s sample.Sample) {
	if !s.HasPosition() {
		return
	}

	v.mu.Lock()
	if v.deviceID == "" || (s.DeviceID != "" && s.DeviceID != v.deviceID) {
		v.mu.Unlock()
		return
	}
	v.samples = append(v.samples, s)
	alerts := v.collectAlertsLocked([]sample.Sample{s})
	v.recomputeLocked()
	v.mu.Unlock()

	v.dispatch(alerts)
}

// collectAlertsLocked returns alerts for samples that cross the anomaly
// threshold and have not been notified before, marking them notified.
func (v *View) collectAlertsLocked(batch []sample.Sample) []sample.AnomalyAlert {
	var alerts []sample.AnomalyAlert
	for _, s := range batch {
		if !s.IsAnomalous() || !s.HasPosition() {
			continue
		}
		if s.ID == "" || v.notified[s.ID] {
			continue
		}
		v.notified[s.ID] = true
		lat, lng := s.Position()
		alerts = append(alerts, sample.AnomalyAlert{
			SampleID:  s.ID,
			Score:     *s.AnomalyScore,
			Lat:       lat,
			Lng:       lng,
			Timestamp: s.Timestamp,
		})
	}
	return alerts
}

func (v *View) dispatch(alerts []sample.AnomalyAlert) {
	if v.onAnomaly == nil {
		return
	}
	for _, a := range alerts {
		metrics.AnomaliesNotified.Inc()
		v.onAnomaly(a)
	}
}

// recomputeLocked rebuilds segments, anomaly markers, and the positioned
// point list from the current sequence, and refits the viewport when the
// positioned list changed.
func (v *View) recomputeLocked() {
	positions := make([]geo.LatLng, 0, len(v.samples))
	segments := make([]Segment, 0, len(v.samples))
	anomalies := make([]sample.Sample, 0)

	var prev *geo.LatLng
	for i := range v.samples {
		s := &v.samples[i]
		if !s.HasPosition() {
			continue
		}
		lat, lng := s.Position()
		p := geo.LatLng{Lat: lat, Lng: lng}
		positions = append(positions, p)

		if s.IsAnomalous() {
			anomalies = append(anomalies, *s)
		}
		if prev != nil {
			kind := SegmentNormal
			if s.IsAnomalous() {
				kind = SegmentAnomaly
			}
			segments = append(segments, Segment{From: *prev, To: p, Kind: kind})
		}
		prev = &p
	}

	refit := len(positions) != len(v.positions)
	if !refit {
		for i := range positions {
			if positions[i] != v.positions[i] {
				refit = true
				break
			}
		}
	}

	v.segments = segments
	v.anomalies = anomalies
	if refit {
		v.positions = positions
		v.viewport = geo.Fit(positions, v.fit)
	}
	metrics.PathSamples.Set(float64(len(v.samples)))
}

// Samples returns a copy of the current sequence.
func (v *View) Samples() []sample.Sample {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]sample.Sample, len(v.samples))
	copy(out, v.samples)
	return out
}

// Segments returns the current path segmentation.
func (v *View) Segments() []Segment {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Segment, len(v.segments))
	copy(out, v.segments)
	return out
}

// AnomalyPoints returns the samples exposed as standalone anomaly markers.
func (v *View) AnomalyPoints() []sample.Sample {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]sample.Sample, len(v.anomalies))
	copy(out, v.anomalies)
	return out
}

// Viewport returns the current viewport fit.
func (v *View) Viewport() geo.Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewport
}

// Stats summarises the current sequence.
func (v *View) Stats() geo.PathStats {
	v.mu.Lock()
	samples := make([]sample.Sample, len(v.samples))
	copy(samples, v.samples)
	v.mu.Unlock()
	return geo.ComputeStats(samples)
}
