package fixsource

import (
	"context"
	"io"
	"math"
	"testing"
	"time"
)

// pipePort feeds the monitor loop from an in-process writer.
type pipePort struct {
	io.Reader
	closer io.Closer
}

func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *pipePort) Close() error                { return p.closer.Close() }

func newPipeSource() (*Source[*pipePort], *io.PipeWriter) {
	r, w := io.Pipe()
	return NewSource(&pipePort{Reader: r, closer: r}), w
}

func TestMonitorPublishesFixes(t *testing.T) {
	src, w := newPipeSource()
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Monitor(ctx)

	_, ch := src.Subscribe()

	line := mockRMC(6.9271, 79.8612, 1.4, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	if _, err := w.Write([]byte(line + "\r\n")); err != nil {
		t.Fatal(err)
	}

	select {
	case fix := <-ch:
		if math.Abs(fix.Lat-6.9271) > 1e-4 || math.Abs(fix.Lng-79.8612) > 1e-4 {
			t.Errorf("fix position = %v,%v", fix.Lat, fix.Lng)
		}
		if fix.SpeedMPS == nil || math.Abs(*fix.SpeedMPS-1.4) > 0.01 {
			t.Errorf("fix speed = %v", fix.SpeedMPS)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no fix published")
	}

	if _, ok := src.LastFix(); !ok {
		t.Error("LastFix not recorded")
	}
}

func TestMonitorMergesGGAAccuracy(t *testing.T) {
	src, w := newPipeSource()
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Monitor(ctx)

	_, ch := src.Subscribe()

	gga := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	rmc := mockRMC(48.1173, 11.5167, 0, time.Now().UTC())
	if _, err := w.Write([]byte(gga + "\r\n" + rmc + "\r\n")); err != nil {
		t.Fatal(err)
	}

	select {
	case fix := <-ch:
		if fix.AccuracyM == nil {
			t.Fatal("accuracy not carried over from GGA")
		}
		if want := 0.9 * hdopBaseM; math.Abs(*fix.AccuracyM-want) > 1e-9 {
			t.Errorf("accuracy = %v, want %v", *fix.AccuracyM, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no fix published")
	}
}

func TestMonitorDropsGarbage(t *testing.T) {
	src, w := newPipeSource()
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- src.Monitor(ctx) }()

	_, ch := src.Subscribe()

	good := mockRMC(6.9271, 79.8612, 0, time.Now().UTC())
	if _, err := w.Write([]byte("not nmea at all\r\n$GPRMC,corrupt*FF\r\n" + good + "\r\n")); err != nil {
		t.Fatal(err)
	}

	// only the good sentence comes through, and the loop survives
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("good fix lost behind garbage")
	}
	select {
	case err := <-done:
		t.Fatalf("monitor exited: %v", err)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	src, _ := newPipeSource()
	defer src.Close()

	id, ch := src.Subscribe()
	src.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestStale(t *testing.T) {
	src, w := newPipeSource()
	defer src.Close()

	now := time.Now().UTC()
	if src.Stale(now) {
		t.Error("source with no fixes reported stale")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Monitor(ctx)

	_, ch := src.Subscribe()
	if _, err := w.Write([]byte(mockRMC(6.9271, 79.8612, 0, now) + "\r\n")); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no fix published")
	}

	fix, _ := src.LastFix()
	if src.Stale(fix.Timestamp.Add(StaleAfter)) {
		t.Error("fresh fix reported stale")
	}
	if !src.Stale(fix.Timestamp.Add(StaleAfter + time.Second)) {
		t.Error("old fix not reported stale")
	}
}

func TestMonitorStopsOnCancel(t *testing.T) {
	src, _ := newPipeSource()
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Monitor(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop on cancel")
	}
}
