// Package tracker wires the pipeline together: fixes in from the fix
// source, pings out through the transport, echoes and alerts back in over
// the persistent channel and into the path view and journal.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/apiclient"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/channel"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/fixsource"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/geo"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/journal"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/pathview"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/pingwire"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/timeutil"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/transport"
)

// DefaultWindow is the history window loaded when a device is selected.
const DefaultWindow = sample.Window24h

// AlertFunc receives anomaly alerts, at most once per sample ID.
type AlertFunc func(sample.AnomalyAlert)

// Config carries the tracker's collaborators and tuning.
type Config struct {
	API      *apiclient.Client
	Journal  *journal.Journal
	WSURL    string
	Dialer   channel.Dialer
	Interval time.Duration
	Fit      geo.FitConfig
	Clock    timeutil.Clock
}

// Tracker conducts one device's pipeline at a time. Switching devices tears
// the old channel and transport down and builds fresh ones.
type Tracker struct {
	api     *apiclient.Client
	journal *journal.Journal
	wsURL   string
	dialer  channel.Dialer
	clock   timeutil.Clock

	interval time.Duration
	view     *pathview.View

	mu       sync.Mutex
	deviceID string
	ch       *channel.Channel
	tr       *transport.Transport
	msgSub   string

	alertFns []AlertFunc
	notified map[string]bool
}

// New builds a tracker with no device selected.
func New(cfg Config) *Tracker {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	t := &Tracker{
		api:      cfg.API,
		journal:  cfg.Journal,
		wsURL:    cfg.WSURL,
		dialer:   cfg.Dialer,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		notified: make(map[string]bool),
	}
	t.view = pathview.New(cfg.API, cfg.Fit, t.emitAlert, cfg.Clock)
	return t
}

// View returns the path view the tracker maintains.
func (t *Tracker) View() *pathview.View { return t.view }

// Transport returns the active device's transport, or nil when no device is
// selected.
func (t *Tracker) Transport() *transport.Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tr
}

// Status reports the active transport's delivery state. With no device
// selected it reports a disconnected channel and zero counters.
func (t *Tracker) Status() transport.Status {
	t.mu.Lock()
	tr := t.tr
	t.mu.Unlock()
	if tr == nil {
		return transport.Status{ChannelState: channel.Disconnected}
	}
	return tr.Status()
}

// OnAlert registers an alert observer. Must be called before SetDevice.
func (t *Tracker) OnAlert(fn AlertFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alertFns = append(t.alertFns, fn)
}

// SetDevice switches the pipeline to deviceID: the old channel and
// transport are torn down, the path view is reset, history is reloaded and
// a fresh channel subscription is opened. Selecting the current device is a
// no-op.
func (t *Tracker) SetDevice(ctx context.Context, deviceID string) error {
	t.mu.Lock()
	if t.deviceID == deviceID {
		t.mu.Unlock()
		return nil
	}
	t.teardownLocked()
	t.deviceID = deviceID

	ch := channel.New(t.wsURL, deviceID, t.dialer)
	tr := transport.New(t.api, ch, deviceID, t.interval, t.clock)
	tr.OnResult = t.handlePingResult
	tr.OnFailure = t.handleSendFailure
	t.ch = ch
	t.tr = tr

	sub, msgs := ch.SubscribeMessages()
	t.msgSub = sub
	t.mu.Unlock()

	go t.pump(msgs)

	t.view.SetDevice(deviceID)
	ch.Connect(ctx)
	return t.view.LoadHistory(ctx, DefaultWindow)
}

// LoadWindow reloads history for the active device with a caller-selected
// recency window.
func (t *Tracker) LoadWindow(ctx context.Context, w sample.Window) error {
	return t.view.LoadHistory(ctx, w)
}

// HandleFix offers one fix to the transport. Throttled fixes are dropped
// silently.
func (t *Tracker) HandleFix(ctx context.Context, fix sample.Fix) {
	t.mu.Lock()
	tr := t.tr
	t.mu.Unlock()
	if tr == nil {
		return
	}
	tr.Send(ctx, fix)
}

// Run consumes the fix source until the context is cancelled.
func (t *Tracker) Run(ctx context.Context, src fixsource.Sourcer) {
	id, fixes := src.Subscribe()
	defer src.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			t.HandleFix(ctx, fix)
		}
	}
}

// pump forwards channel pushes into the view and journal until the
// subscription closes.
func (t *Tracker) pump(msgs <-chan *pingwire.Envelope) {
	for env := range msgs {
		switch env.Type {
		case pingwire.TypePingSaved:
			saved, err := pingwire.DecodePingSaved(env)
			if err != nil {
				monitoring.Logf("bad ping_saved push: %v", err)
				continue
			}
			t.absorb(saved.Ping, saved.ZoneName)

		case pingwire.TypeAnomalyAlert:
			alert, err := pingwire.DecodeAnomalyAlert(env)
			if err != nil {
				monitoring.Logf("bad anomaly_alert push: %v", err)
				continue
			}
			t.emitAlert(sample.AnomalyAlert{
				SampleID:  alert.SampleID,
				Score:     alert.Score,
				Lat:       alert.Lat,
				Lng:       alert.Lng,
				Timestamp: alert.Timestamp,
			})
		}
	}
}

// handlePingResult absorbs the backend's echo of a fallback ping.
func (t *Tracker) handlePingResult(res *apiclient.PingResult) {
	if res == nil || res.Ping == nil {
		return
	}
	t.absorb(*res.Ping, res.ZoneName)
}

func (t *Tracker) handleSendFailure(fix sample.Fix, reason string) {
	t.mu.Lock()
	deviceID := t.deviceID
	t.mu.Unlock()
	if deviceID == "" || t.journal == nil {
		return
	}
	if err := t.journal.Enqueue(deviceID, fix); err != nil {
		monitoring.Logf("spool ping after %q failed: %v", reason, err)
	}
}

// absorb routes one echoed sample into the view and the journal.
func (t *Tracker) absorb(s sample.Sample, zoneName string) {
	if s.Zone == nil && zoneName != "" {
		s.Zone = &sample.ZoneRef{Name: zoneName}
	}
	t.view.AppendLive(s)
	if t.journal != nil && s.ID != "" {
		if err := t.journal.RecordSample(s); err != nil {
			monitoring.Logf("journal sample %s: %v", s.ID, err)
		}
	}
}

// emitAlert delivers one alert to every observer, deduplicated by sample ID
// across both alert paths (locally detected and server pushed).
func (t *Tracker) emitAlert(a sample.AnomalyAlert) {
	if a.SampleID == "" {
		return
	}
	t.mu.Lock()
	if t.notified[a.SampleID] {
		t.mu.Unlock()
		return
	}
	t.notified[a.SampleID] = true
	fns := make([]AlertFunc, len(t.alertFns))
	copy(fns, t.alertFns)
	t.mu.Unlock()

	if t.journal != nil {
		if err := t.journal.RecordAlert(a); err != nil {
			monitoring.Logf("journal alert %s: %v", a.SampleID, err)
		}
	}
	for _, fn := range fns {
		fn(a)
	}
}

// FlushPending attempts redelivery of spooled pings, oldest first. One
// failure stops the pass; the rest stay queued for the next run.
func (t *Tracker) FlushPending(ctx context.Context, limit int) error {
	if t.journal == nil {
		return nil
	}
	pending, err := t.journal.Pending(limit)
	if err != nil {
		return err
	}
	for _, p := range pending {
		result, err := t.api.PingFallback(ctx, apiclient.PingRequest{
			DeviceID:  p.DeviceID,
			Lat:       p.Fix.Lat,
			Lng:       p.Fix.Lng,
			Accuracy:  p.Fix.AccuracyM,
			Speed:     p.Fix.SpeedMPS,
			Timestamp: p.Fix.Timestamp,
		})
		if err != nil {
			return err
		}
		if err := t.journal.MarkFlushed(p.OutboxID); err != nil {
			return err
		}
		if result != nil && result.Ping != nil {
			t.absorb(*result.Ping, result.ZoneName)
		}
	}
	return nil
}

// teardownLocked closes the current channel and transport. The pump drains
// on its own once Unsubscribe closes its channel; stray pushes for the old
// device are rejected by the view's device check.
func (t *Tracker) teardownLocked() {
	if t.ch != nil {
		t.ch.Unsubscribe(t.msgSub)
		t.ch.Close()
	}
	if t.tr != nil {
		t.tr.Close()
	}
	t.ch = nil
	t.tr = nil
	t.msgSub = ""
}

// Close tears down the active pipeline.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked()
	t.deviceID = ""
}
