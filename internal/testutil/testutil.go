// Package testutil provides shared test helpers used across package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertStatusCode checks that a response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// PositionedSample builds a scored, positioned sample for tests.
func PositionedSample(id string, ts time.Time, lat, lng, score float64) sample.Sample {
	return sample.Sample{
		ID:           id,
		DeviceID:     "dev1",
		Timestamp:    ts,
		Lat:          sample.Float64(lat),
		Lng:          sample.Float64(lng),
		AnomalyScore: sample.Float64(score),
	}
}

// UnscoredSample builds a positioned sample without an anomaly score.
func UnscoredSample(id string, ts time.Time, lat, lng float64) sample.Sample {
	return sample.Sample{
		ID:        id,
		DeviceID:  "dev1",
		Timestamp: ts,
		Lat:       sample.Float64(lat),
		Lng:       sample.Float64(lng),
	}
}
