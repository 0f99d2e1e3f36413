package fixsource

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/timeutil"
)

func newWatchdogSource() *Source[*pipePort] {
	src, _ := newPipeSource()
	return src
}

func setFix(src *Source[*pipePort], at time.Time) {
	src.mu.Lock()
	src.lastFix = sample.Fix{Lat: 6.9, Lng: 79.8, Timestamp: at}
	src.hasFix = true
	src.mu.Unlock()
}

func TestWatchdogSilentReceiverTimesOut(t *testing.T) {
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	src := newWatchdogSource()
	w := NewWatchdog(src, clock)

	// silence is tolerated until FixTimeout
	clock.Advance(FixTimeout - time.Second)
	if err := w.Check(context.Background()); err != nil {
		t.Fatalf("Check() before timeout = %v, want nil", err)
	}
	if w.LastError() != "" {
		t.Errorf("LastError() = %q, want empty", w.LastError())
	}

	clock.Advance(time.Second)
	err := w.Check(context.Background())
	if err == nil {
		t.Fatal("Check() at timeout = nil, want error")
	}
	if !strings.Contains(err.Error(), "no fix") {
		t.Errorf("Check() error = %q, want a no-fix report", err)
	}
	if w.LastError() == "" {
		t.Error("LastError() empty after a failed check")
	}
}

func TestWatchdogStaleFix(t *testing.T) {
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	src := newWatchdogSource()
	w := NewWatchdog(src, clock)

	setFix(src, start)
	clock.Advance(StaleAfter)
	if err := w.Check(context.Background()); err != nil {
		t.Fatalf("Check() at staleness boundary = %v, want nil", err)
	}

	clock.Advance(time.Second)
	err := w.Check(context.Background())
	if err == nil {
		t.Fatal("Check() past staleness = nil, want error")
	}
	if !strings.Contains(err.Error(), "stale") {
		t.Errorf("Check() error = %q, want a staleness report", err)
	}
}

func TestWatchdogRecoversOnFreshFix(t *testing.T) {
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	src := newWatchdogSource()
	w := NewWatchdog(src, clock)

	clock.Advance(FixTimeout)
	if err := w.Check(context.Background()); err == nil {
		t.Fatal("Check() on silent receiver = nil, want error")
	}

	setFix(src, clock.Now())
	if err := w.Check(context.Background()); err != nil {
		t.Fatalf("Check() after fresh fix = %v, want nil", err)
	}
	if w.LastError() != "" {
		t.Errorf("LastError() = %q, want cleared", w.LastError())
	}
}
