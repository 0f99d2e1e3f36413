// Package geo provides the small amount of spherical geometry the path view
// needs: distance between samples, bounds accumulation, and viewport fitting.
package geo

import (
	"math"
)

// EarthRadiusM is the mean Earth radius in metres.
const EarthRadiusM = 6371000.0

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineM returns the great-circle distance between two points in metres.
func HaversineM(a, b LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}

// Bounds is a latitude/longitude bounding box built up point by point.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
	count          int
}

// Extend grows the bounds to include p.
func (b *Bounds) Extend(p LatLng) {
	if b.count == 0 {
		b.MinLat, b.MaxLat = p.Lat, p.Lat
		b.MinLng, b.MaxLng = p.Lng, p.Lng
		b.count = 1
		return
	}
	b.MinLat = math.Min(b.MinLat, p.Lat)
	b.MaxLat = math.Max(b.MaxLat, p.Lat)
	b.MinLng = math.Min(b.MinLng, p.Lng)
	b.MaxLng = math.Max(b.MaxLng, p.Lng)
	b.count++
}

// Count returns the number of points the bounds have been extended with.
func (b *Bounds) Count() int { return b.count }

// Center returns the midpoint of the bounds.
func (b *Bounds) Center() LatLng {
	return LatLng{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// Pad returns a copy of the bounds expanded by the given fraction of each
// axis span, so that points on the edge are not rendered flush against the
// viewport border.
func (b Bounds) Pad(fraction float64) Bounds {
	latPad := (b.MaxLat - b.MinLat) * fraction
	lngPad := (b.MaxLng - b.MinLng) * fraction
	return Bounds{
		MinLat: b.MinLat - latPad,
		MaxLat: b.MaxLat + latPad,
		MinLng: b.MinLng - lngPad,
		MaxLng: b.MaxLng + lngPad,
		count:  b.count,
	}
}

// Viewport describes how a map should frame the current path.
type Viewport struct {
	// Center and Zoom are always set.
	Center LatLng  `json:"center"`
	Zoom   float64 `json:"zoom"`

	// Bounds is set only when the viewport frames two or more points; the
	// renderer fits the bounds and ignores Zoom in that case.
	Bounds *Bounds `json:"bounds,omitempty"`
}

// FitConfig carries the fixed viewport parameters.
type FitConfig struct {
	DefaultCenter LatLng
	DefaultZoom   float64
	SingleZoom    float64 // zoom used when exactly one point is visible
	PadFraction   float64 // bounds padding for multi-point fits
}

// Fit computes the viewport for the given positioned points: zero points
// falls back to the configured default, one point centers at SingleZoom, and
// two or more frame the padded bounds.
func Fit(points []LatLng, cfg FitConfig) Viewport {
	switch len(points) {
	case 0:
		return Viewport{Center: cfg.DefaultCenter, Zoom: cfg.DefaultZoom}
	case 1:
		return Viewport{Center: points[0], Zoom: cfg.SingleZoom}
	}
	var b Bounds
	for _, p := range points {
		b.Extend(p)
	}
	padded := b.Pad(cfg.PadFraction)
	return Viewport{
		Center: padded.Center(),
		Zoom:   cfg.SingleZoom,
		Bounds: &padded,
	}
}
