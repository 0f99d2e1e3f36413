package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		unit string
		want float64
	}{
		{MPS, 10},
		{MPH, 22.369362920544},
		{KMPH, 36},
		{KPH, 36},
		{"furlongs", 10}, // unknown units pass through
	}
	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			if got := ConvertSpeed(10, tt.unit); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ConvertSpeed(10, %q) = %v, want %v", tt.unit, got, tt.want)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, unit := range ValidUnits {
		if !IsValid(unit) {
			t.Errorf("IsValid(%q) = false", unit)
		}
	}
	if IsValid("knots") {
		t.Error("IsValid(knots) = true")
	}
}

func TestLabel(t *testing.T) {
	if got := Label(KPH); got != "km/h" {
		t.Errorf("Label(kph) = %q", got)
	}
	if got := Label(MPS); got != "m/s" {
		t.Errorf("Label(mps) = %q", got)
	}
}
