// Package sample defines the location sample model shared by the ingestion
// pipeline, the path view, and the local journal.
package sample

import (
	"time"
)

// AnomalyThreshold is the score at or above which a sample is treated as
// anomalous. The threshold is inclusive: a score of exactly 0.5 is an anomaly.
const AnomalyThreshold = 0.5

// ZoneRef is a lookup-only reference to a campus zone. Samples reference
// zones but never own them.
type ZoneRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Sample is one observed position of a tracked device. The ID is assigned by
// the backend once the sample is persisted; samples produced locally carry an
// empty ID until their ping_saved echo arrives.
type Sample struct {
	ID        string    `json:"id,omitempty"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`

	// Lat/Lng are pointers so that a record with missing position fields can
	// be distinguished from a record at (0, 0).
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	AccuracyM *float64 `json:"accuracy,omitempty"` // metres
	SpeedMPS  *float64 `json:"speed,omitempty"`    // metres per second

	// AnomalyScore is in [0, 1] and absent for samples the backend has not
	// scored yet.
	AnomalyScore *float64 `json:"anomalyScore,omitempty"`

	Zone *ZoneRef `json:"zone,omitempty"`
}

// HasPosition reports whether the sample carries a usable position. Samples
// without one are excluded from path and segment computation.
func (s Sample) HasPosition() bool {
	return s.Lat != nil && s.Lng != nil
}

// IsAnomalous reports whether the sample has been scored at or above
// AnomalyThreshold.
func (s Sample) IsAnomalous() bool {
	return s.AnomalyScore != nil && *s.AnomalyScore >= AnomalyThreshold
}

// Position returns the sample's coordinates. Callers must check HasPosition
// first; a positionless sample returns zeros.
func (s Sample) Position() (lat, lng float64) {
	if !s.HasPosition() {
		return 0, 0
	}
	return *s.Lat, *s.Lng
}

// Fix is a raw position reading from a fix source, before it becomes a
// Sample. Accuracy and speed are optional.
type Fix struct {
	Lat       float64
	Lng       float64
	AccuracyM *float64
	SpeedMPS  *float64
	Timestamp time.Time
}

// AnomalyAlert is the ephemeral event handed to the caller-supplied anomaly
// callback. It is emitted at most once per distinct sample ID.
type AnomalyAlert struct {
	SampleID  string    `json:"id"`
	Score     float64   `json:"score"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// Window is a caller-selectable recency window for history loads.
type Window time.Duration

// The windows offered by the path view. History loads filter out samples
// older than the selected window.
const (
	Window1h  = Window(1 * time.Hour)
	Window6h  = Window(6 * time.Hour)
	Window24h = Window(24 * time.Hour)
	Window7d  = Window(7 * 24 * time.Hour)
)

// Duration returns the window as a time.Duration.
func (w Window) Duration() time.Duration { return time.Duration(w) }

// ValidWindows lists the supported history windows.
var ValidWindows = []Window{Window1h, Window6h, Window24h, Window7d}

// ParseWindow maps a short label ("1h", "6h", "24h", "7d") to a Window.
func ParseWindow(label string) (Window, bool) {
	switch label {
	case "1h":
		return Window1h, true
	case "6h":
		return Window6h, true
	case "24h":
		return Window24h, true
	case "7d":
		return Window7d, true
	}
	return 0, false
}

// Float64 returns a pointer to v. Convenience for building samples.
func Float64(v float64) *float64 { return &v }
