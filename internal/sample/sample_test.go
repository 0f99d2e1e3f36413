package sample

import (
	"testing"
	"time"
)

func TestHasPosition(t *testing.T) {
	cases := []struct {
		name string
		s    Sample
		want bool
	}{
		{"both coordinates", Sample{Lat: Float64(6.9), Lng: Float64(79.8)}, true},
		{"missing lng", Sample{Lat: Float64(6.9)}, false},
		{"missing lat", Sample{Lng: Float64(79.8)}, false},
		{"neither", Sample{}, false},
		{"explicit zero is a position", Sample{Lat: Float64(0), Lng: Float64(0)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.HasPosition(); got != tc.want {
				t.Errorf("HasPosition() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsAnomalous(t *testing.T) {
	cases := []struct {
		name  string
		score *float64
		want  bool
	}{
		{"unscored", nil, false},
		{"below threshold", Float64(0.49), false},
		{"exactly at threshold", Float64(0.5), true},
		{"above threshold", Float64(0.93), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Sample{AnomalyScore: tc.score}
			if got := s.IsAnomalous(); got != tc.want {
				t.Errorf("IsAnomalous() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPositionWithoutCoordinates(t *testing.T) {
	lat, lng := (Sample{}).Position()
	if lat != 0 || lng != 0 {
		t.Errorf("Position() on positionless sample = (%v, %v), want (0, 0)", lat, lng)
	}
}

func TestParseWindow(t *testing.T) {
	cases := []struct {
		label string
		want  Window
		ok    bool
	}{
		{"1h", Window1h, true},
		{"6h", Window6h, true},
		{"24h", Window24h, true},
		{"7d", Window7d, true},
		{"30m", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseWindow(tc.label)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseWindow(%q) = (%v, %v), want (%v, %v)", tc.label, got, ok, tc.want, tc.ok)
		}
	}
}

func TestWindowDuration(t *testing.T) {
	if got := Window7d.Duration(); got != 7*24*time.Hour {
		t.Errorf("Window7d.Duration() = %v, want %v", got, 7*24*time.Hour)
	}
}
