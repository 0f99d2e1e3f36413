// Package transport implements ping delivery: a hard per-instance throttle
// in front of a channel-selection policy that prefers the persistent
// channel and falls back to the request/response path.
//
// Delivery errors are absorbed into observable state, never returned to the
// fix loop; the next accepted fix is the only retry trigger.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/apiclient"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/channel"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/metrics"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/pingwire"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/timeutil"
)

// DefaultInterval is the minimum gap between accepted sends.
const DefaultInterval = 5 * time.Second

// Kind names the delivery path used for a send.
type Kind string

const (
	KindWebSocket Kind = "websocket"
	KindHTTP      Kind = "http"
)

// Status is the transport's externally visible state.
type Status struct {
	ChannelState  channel.State `json:"channelState"`
	LastTransport Kind          `json:"lastTransport,omitempty"`
	LastSentAt    *time.Time    `json:"lastSentAt,omitempty"`
	LastError     string        `json:"lastError,omitempty"`

	Accepted  uint64 `json:"accepted"`
	Throttled uint64 `json:"throttled"`
	Failed    uint64 `json:"failed"`
}

// Transport delivers one device's pings. One instance per tracked device;
// throttle state and error state are per instance and unshared.
type Transport struct {
	deviceID string
	interval time.Duration
	clock    timeutil.Clock
	api      *apiclient.Client
	ch       *channel.Channel

	// OnResult, when set, receives the backend's echo of a successfully
	// delivered fallback ping. Channel echoes arrive via the channel's own
	// push stream instead.
	OnResult func(*apiclient.PingResult)

	// OnFailure, when set, receives every fix whose delivery attempt
	// failed, on either path. Failed fixes are never retried by the
	// transport itself.
	OnFailure func(fix sample.Fix, reason string)

	mu           sync.Mutex
	closed       bool
	lastAccepted time.Time
	hasAccepted  bool
	lastSentAt   *time.Time
	lastKind     Kind
	lastError    string
	accepted     uint64
	throttled    uint64
	failed       uint64
}

// New creates a transport for deviceID. A nil clock uses the real clock; a
// zero interval uses DefaultInterval.
func New(api *apiclient.Client, ch *channel.Channel, deviceID string, interval time.Duration, clock timeutil.Clock) *Transport {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Transport{
		deviceID: deviceID,
		interval: interval,
		clock:    clock,
		api:      api,
		ch:       ch,
	}
}

// Send delivers one fix, subject to the throttle. It reports whether a
// delivery attempt was initiated; a false return means the fix was dropped
// by the gate (or the transport is torn down), not that delivery failed.
// Fixes are dropped, never queued or delayed.
func (t *Transport) Send(ctx context.Context, fix sample.Fix) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if t.hasAccepted && t.clock.Since(t.lastAccepted) < t.interval {
		t.throttled++
		t.mu.Unlock()
		metrics.PingsThrottled.Inc()
		return false
	}
	t.hasAccepted = true
	t.lastAccepted = t.clock.Now()
	t.accepted++
	useChannel := t.ch != nil && t.ch.State() == channel.Connected
	t.mu.Unlock()

	if useChannel {
		t.sendChannel(fix)
		return true
	}

	// Kick off an opportunistic connect for next time; this send goes over
	// the fallback path without waiting.
	if t.ch != nil {
		t.ch.Connect(ctx)
	}
	go t.sendFallback(ctx, fix)
	return true
}

func (t *Transport) sendChannel(fix sample.Fix) {
	frame, _, err := pingwire.EncodePing(pingwire.PingPayload{
		DeviceID:  t.deviceID,
		Lat:       fix.Lat,
		Lng:       fix.Lng,
		Accuracy:  fix.AccuracyM,
		Speed:     fix.SpeedMPS,
		Ts:        fix.Timestamp.UnixMilli(),
		IngestKey: t.api.Session().IngestKey,
	})
	if err == nil {
		metrics.PingsSent.WithLabelValues(string(KindWebSocket)).Inc()
		err = t.ch.Send(frame)
	}

	if err != nil {
		metrics.PingFailures.WithLabelValues(string(KindWebSocket)).Inc()
		t.recordFailure(err.Error())
		monitoring.Logf("channel ping failed: %v", err)
		if t.OnFailure != nil {
			t.OnFailure(fix, err.Error())
		}
		return
	}
	t.recordSuccess(KindWebSocket)
}

func (t *Transport) sendFallback(ctx context.Context, fix sample.Fix) {
	result, err := t.api.PingFallback(ctx, apiclient.PingRequest{
		DeviceID:  t.deviceID,
		Lat:       fix.Lat,
		Lng:       fix.Lng,
		Accuracy:  fix.AccuracyM,
		Speed:     fix.SpeedMPS,
		Timestamp: fix.Timestamp,
	})

	t.mu.Lock()
	tornDown := t.closed
	t.mu.Unlock()
	if tornDown {
		// late response after teardown is ignored
		return
	}

	metrics.PingsSent.WithLabelValues(string(KindHTTP)).Inc()
	if err != nil {
		metrics.PingFailures.WithLabelValues(string(KindHTTP)).Inc()
		t.recordFailure(err.Error())
		monitoring.Logf("fallback ping failed: %v", err)
		if t.OnFailure != nil {
			t.OnFailure(fix, err.Error())
		}
		return
	}
	t.recordSuccess(KindHTTP)
	if t.OnResult != nil {
		t.OnResult(result)
	}
}

// recordSuccess and recordFailure apply results in arrival order;
// last-write-wins on transport and error state.
func (t *Transport) recordSuccess(kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.lastSentAt = &now
	t.lastKind = kind
	t.lastError = ""
}

func (t *Transport) recordFailure(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
	t.lastError = msg
}

// Status returns a snapshot of the transport state.
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Status{
		LastTransport: t.lastKind,
		LastError:     t.lastError,
		Accepted:      t.accepted,
		Throttled:     t.throttled,
		Failed:        t.failed,
	}
	if t.lastSentAt != nil {
		sent := *t.lastSentAt
		st.LastSentAt = &sent
	}
	if t.ch != nil {
		st.ChannelState = t.ch.State()
	} else {
		st.ChannelState = channel.Disconnected
	}
	return st
}

// Close tears the transport down. Further sends are refused and any
// in-flight fallback response is discarded on arrival. The channel itself
// is owned by the caller and closed there.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}
