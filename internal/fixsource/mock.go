package fixsource

import (
	"fmt"
	"io"
	"math"
	"time"
)

// MockPort implements Porter over an in-process pipe. Writes from the
// consumer side are discarded; GPS receivers ignore inbound traffic anyway.
type MockPort struct {
	io.Reader
	closer io.Closer
}

func (m *MockPort) Write(p []byte) (int, error) { return len(p), nil }
func (m *MockPort) Close() error                { return m.closer.Close() }

// NewMockSource returns a Source fed by synthetic NMEA sentences walking a
// small loop around the given origin at roughly walking pace. Used by dev
// mode so the full pipeline runs without receiver hardware.
func NewMockSource(originLat, originLng float64, interval time.Duration) *Source[*MockPort] {
	r, w := io.Pipe()

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		step := 0
		for range ticker.C {
			// a slow circle about 100m across
			angle := float64(step) * 0.05
			lat := originLat + 0.0009*math.Sin(angle)
			lng := originLng + 0.0009*math.Cos(angle)
			line := mockRMC(lat, lng, 1.4, time.Now().UTC())
			if _, err := w.Write([]byte(line + "\r\n")); err != nil {
				return
			}
			step++
		}
	}()

	return NewSource(&MockPort{Reader: r, closer: r})
}

// mockRMC renders a valid RMC sentence, checksum included, for the given
// position, speed in m/s and time.
func mockRMC(lat, lng, speedMPS float64, t time.Time) string {
	latRaw, latHemi := encodeCoord(lat, "N", "S", 2)
	lngRaw, lngHemi := encodeCoord(lng, "E", "W", 3)
	knots := speedMPS / 0.514444
	payload := fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,%.2f,0.0,%s,,,A",
		t.Format("150405.00"), latRaw, latHemi, lngRaw, lngHemi, knots, t.Format("020106"))
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, sum)
}

// encodeCoord renders decimal degrees as NMEA ddmm.mmmm with a hemisphere
// letter. degWidth is 2 for latitude and 3 for longitude.
func encodeCoord(v float64, pos, neg string, degWidth int) (string, string) {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	min := (v - deg) * 60
	return fmt.Sprintf("%0*d%07.4f", degWidth, int(deg), min), hemi
}
