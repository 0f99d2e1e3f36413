package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/apiclient"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/channel"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/geo"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/httputil"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/journal"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/testutil"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// fakeConn scripts the server side of the persistent channel.
type fakeConn struct {
	mu      sync.Mutex
	inbound chan []byte
	writes  [][]byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, data, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) push(t *testing.T, frame string) {
	t.Helper()
	select {
	case c.inbound <- []byte(frame):
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked")
	}
}

var testFit = geo.FitConfig{
	DefaultCenter: geo.LatLng{Lat: 6.9271, Lng: 79.8612},
	DefaultZoom:   13,
	SingleZoom:    17,
	PadFraction:   0.1,
}

func newTestTracker(t *testing.T, mock *httputil.MockClient, conn *fakeConn) *Tracker {
	t.Helper()
	if mock == nil {
		mock = httputil.NewMockClient()
	}

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { j.Close() })

	dialer := func(context.Context, string) (channel.Conn, error) {
		if conn == nil {
			return nil, errors.New("no socket in this test")
		}
		return conn, nil
	}

	tr := New(Config{
		API:     apiclient.New("http://backend.test", apiclient.Session{IngestKey: "k1"}, mock),
		Journal: j,
		WSURL:   "ws://backend.test/ws",
		Dialer:  dialer,
		Fit:     testFit,
		Clock:   timeutil.NewMockClock(time.Now()),
	})
	t.Cleanup(tr.Close)
	return tr
}

func historyJSON(t *testing.T, samples ...sample.Sample) string {
	t.Helper()
	b, err := json.Marshal(samples)
	testutil.AssertNoError(t, err)
	return string(b)
}

func waitConnected(t *testing.T, conn *fakeConn) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn.writeCount() > 0 { // subscribe frame sent
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("channel never subscribed")
}

func TestSetDeviceLoadsHistory(t *testing.T) {
	mock := httputil.NewMockClient()
	mock.AddResponse(200, historyJSON(t,
		testutil.PositionedSample("s1", time.Now().Add(-time.Hour), 6.91, 79.86, 0.2),
		testutil.UnscoredSample("s2", time.Now().Add(-time.Minute), 6.92, 79.87),
	))
	tr := newTestTracker(t, mock, nil)

	testutil.AssertNoError(t, tr.SetDevice(context.Background(), "dev1"))

	if tr.View().Device() != "dev1" {
		t.Errorf("device = %q", tr.View().Device())
	}
	if got := len(tr.View().Samples()); got != 2 {
		t.Errorf("samples = %d, want 2", got)
	}
	if tr.Transport() == nil {
		t.Error("no transport after SetDevice")
	}
}

func TestSetDeviceSameDeviceNoop(t *testing.T) {
	mock := httputil.NewMockClient()
	mock.AddResponse(200, historyJSON(t))
	tr := newTestTracker(t, mock, nil)

	testutil.AssertNoError(t, tr.SetDevice(context.Background(), "dev1"))
	first := tr.Transport()
	testutil.AssertNoError(t, tr.SetDevice(context.Background(), "dev1"))
	if tr.Transport() != first {
		t.Error("reselecting the active device rebuilt the pipeline")
	}
}

func TestChannelPushAppendsAndJournals(t *testing.T) {
	mock := httputil.NewMockClient()
	mock.AddResponse(200, historyJSON(t))
	conn := newFakeConn()
	tr := newTestTracker(t, mock, conn)

	testutil.AssertNoError(t, tr.SetDevice(context.Background(), "dev1"))
	waitConnected(t, conn)

	push := fmt.Sprintf(`{"type":"ping_saved","payload":{"ping":{"id":"p1","deviceId":"dev1","timestamp":%q,"lat":6.93,"lng":79.88,"anomalyScore":0.1},"zoneName":"Library"}}`,
		time.Now().UTC().Format(time.RFC3339))
	conn.push(t, push)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(tr.View().Samples()) == 0 {
		time.Sleep(time.Millisecond)
	}
	samples := tr.View().Samples()
	if len(samples) != 1 || samples[0].ID != "p1" {
		t.Fatalf("samples = %+v", samples)
	}
	if samples[0].Zone == nil || samples[0].Zone.Name != "Library" {
		t.Errorf("zone = %+v", samples[0].Zone)
	}

	journaled, err := tr.journal.RecentSamples("dev1", 10)
	testutil.AssertNoError(t, err)
	if len(journaled) != 1 || journaled[0].ID != "p1" {
		t.Errorf("journal = %+v", journaled)
	}
}

func TestAnomalyPushNotifiesOnce(t *testing.T) {
	mock := httputil.NewMockClient()
	mock.AddResponse(200, historyJSON(t))
	conn := newFakeConn()
	tr := newTestTracker(t, mock, conn)

	var mu sync.Mutex
	var got []sample.AnomalyAlert
	tr.OnAlert(func(a sample.AnomalyAlert) {
		mu.Lock()
		got = append(got, a)
		mu.Unlock()
	})

	testutil.AssertNoError(t, tr.SetDevice(context.Background(), "dev1"))
	waitConnected(t, conn)

	alert := fmt.Sprintf(`{"type":"anomaly_alert","payload":{"id":"a1","deviceId":"dev1","score":0.9,"lat":6.91,"lng":79.86,"timestamp":%q}}`,
		time.Now().UTC().Format(time.RFC3339))
	conn.push(t, alert)
	conn.push(t, alert)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond) // give a duplicate time to arrive

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].SampleID != "a1" || got[0].Score != 0.9 {
		t.Errorf("alerts = %+v, want exactly one", got)
	}

	journaled, err := tr.journal.RecentAlerts(10)
	testutil.AssertNoError(t, err)
	if len(journaled) != 1 {
		t.Errorf("journaled alerts = %d, want 1", len(journaled))
	}
}

func TestSendFailureSpoolsAndFlushes(t *testing.T) {
	mock := httputil.NewMockClient()
	mock.AddResponse(200, historyJSON(t))          // history load
	mock.AddError(errors.New("backend down"))      // the ping attempt
	tr := newTestTracker(t, mock, nil)

	testutil.AssertNoError(t, tr.SetDevice(context.Background(), "dev1"))

	fix := sample.Fix{Lat: 6.91, Lng: 79.86, Timestamp: time.Now().UTC()}
	tr.HandleFix(context.Background(), fix)

	deadline := time.Now().Add(2 * time.Second)
	var pending int
	for time.Now().Before(deadline) {
		n, err := tr.journal.PendingCount()
		testutil.AssertNoError(t, err)
		if n == 1 {
			pending = n
			break
		}
		time.Sleep(time.Millisecond)
	}
	if pending != 1 {
		t.Fatal("failed ping not spooled")
	}

	// backend recovers; the flush drains the outbox and absorbs the echo
	mock.AddResponse(200, fmt.Sprintf(`{"ping":{"id":"p9","deviceId":"dev1","timestamp":%q,"lat":6.91,"lng":79.86}}`,
		time.Now().UTC().Format(time.RFC3339)))
	testutil.AssertNoError(t, tr.FlushPending(context.Background(), 10))

	n, err := tr.journal.PendingCount()
	testutil.AssertNoError(t, err)
	if n != 0 {
		t.Errorf("pending after flush = %d, want 0", n)
	}
	samples := tr.View().Samples()
	if len(samples) != 1 || samples[0].ID != "p9" {
		t.Errorf("echo not absorbed: %+v", samples)
	}
}

func TestDeviceSwitchRebuildsPipeline(t *testing.T) {
	mock := httputil.NewMockClient()
	mock.AddResponse(200, historyJSON(t,
		testutil.UnscoredSample("a1", time.Now().Add(-time.Minute), 6.91, 79.86)))
	conn := newFakeConn()
	tr := newTestTracker(t, mock, conn)

	testutil.AssertNoError(t, tr.SetDevice(context.Background(), "devA"))
	waitConnected(t, conn)
	if len(tr.View().Samples()) != 1 {
		t.Fatal("devA history missing")
	}

	other := testutil.UnscoredSample("b1", time.Now().Add(-time.Minute), 6.95, 79.90)
	other.DeviceID = "devB"
	mock.AddResponse(200, historyJSON(t, other))
	testutil.AssertNoError(t, tr.SetDevice(context.Background(), "devB"))

	if tr.View().Device() != "devB" {
		t.Errorf("device = %q", tr.View().Device())
	}
	samples := tr.View().Samples()
	if len(samples) != 1 || samples[0].ID != "b1" {
		t.Errorf("samples after switch = %+v", samples)
	}
	if !conn.isClosed() {
		t.Error("old channel connection left open")
	}
}
