package fixsource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/timeutil"
)

// Watchdog watches a fix source for signal loss: no first fix within
// FixTimeout of construction, or a newest fix older than StaleAfter. Check
// is shaped to run as a scheduled task; the most recent verdict is kept so
// the status server can report receiver health.
type Watchdog struct {
	src   Sourcer
	clock timeutil.Clock
	start time.Time

	mu      sync.Mutex
	lastErr string
}

// NewWatchdog starts the FixTimeout window at the current clock time, which
// should coincide with the port opening.
func NewWatchdog(src Sourcer, clock timeutil.Clock) *Watchdog {
	return &Watchdog{src: src, clock: clock, start: clock.Now()}
}

// Check inspects the source and returns an error while the receiver is
// silent or stale. A fresh fix clears the condition on the next check.
func (w *Watchdog) Check(context.Context) error {
	now := w.clock.Now()
	fix, ok := w.src.LastFix()

	var err error
	switch {
	case !ok && now.Sub(w.start) >= FixTimeout:
		err = fmt.Errorf("no fix within %s of receiver start", FixTimeout)
	case ok && now.Sub(fix.Timestamp) > StaleAfter:
		err = fmt.Errorf("receiver stale: newest fix is %s old", now.Sub(fix.Timestamp).Round(time.Second))
	}

	w.mu.Lock()
	if err != nil {
		w.lastErr = err.Error()
	} else {
		w.lastErr = ""
	}
	w.mu.Unlock()
	return err
}

// LastError returns the verdict of the most recent Check, empty when the
// receiver was healthy.
func (w *Watchdog) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}
