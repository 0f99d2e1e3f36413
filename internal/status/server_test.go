package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/apiclient"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/channel"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/fixsource"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/geo"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/httputil"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/journal"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/pathview"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/testutil"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/timeutil"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/transport"
)

func init() {
	monitoring.SetLogger(nil)
}

type histFunc func(ctx context.Context, deviceID string, limit int) ([]sample.Sample, error)

func (f histFunc) History(ctx context.Context, deviceID string, limit int) ([]sample.Sample, error) {
	return f(ctx, deviceID, limit)
}

func newTestServer(t *testing.T, mock *httputil.MockClient, loader pathview.HistoryLoader) (*Server, *pathview.View) {
	t.Helper()

	clock := timeutil.NewMockClock(time.Now())
	if mock == nil {
		mock = httputil.NewMockClient()
	}
	if loader == nil {
		loader = histFunc(func(context.Context, string, int) ([]sample.Sample, error) { return nil, nil })
	}

	api := apiclient.New("http://backend.test", apiclient.Session{}, mock)
	view := pathview.New(loader, geo.FitConfig{
		DefaultCenter: geo.LatLng{Lat: 6.9271, Lng: 79.8612},
		DefaultZoom:   13, SingleZoom: 17, PadFraction: 0.1,
	}, nil, clock)
	view.SetDevice("dev1")

	ch := channel.New("ws://backend.test/ws", "dev1", func(context.Context, string) (channel.Conn, error) {
		return nil, errors.New("no socket in tests")
	})
	tr := transport.New(api, ch, "dev1", 0, clock)
	t.Cleanup(tr.Close)

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { j.Close() })

	return NewServer(view, tr, j, api), view
}

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestShowPath(t *testing.T) {
	srv, view := newTestServer(t, nil, nil)
	view.AppendLive(testutil.PositionedSample("s1", time.Now(), 6.91, 79.86, 0.7))

	rr := get(t, srv.ServeMux(), "/api/path")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var body struct {
		Device    string          `json:"device"`
		Samples   []sample.Sample `json:"samples"`
		Anomalies []sample.Sample `json:"anomalies"`
	}
	testutil.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	if body.Device != "dev1" || len(body.Samples) != 1 || len(body.Anomalies) != 1 {
		t.Errorf("path response = %+v", body)
	}
}

func TestShowPathWindowReload(t *testing.T) {
	now := time.Now()
	loader := histFunc(func(_ context.Context, deviceID string, _ int) ([]sample.Sample, error) {
		return []sample.Sample{testutil.UnscoredSample("h1", now.Add(-time.Minute), 6.91, 79.86)}, nil
	})
	srv, _ := newTestServer(t, nil, loader)

	rr := get(t, srv.ServeMux(), "/api/path?window=6h")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var body struct {
		State   pathview.LoadState `json:"state"`
		Samples []sample.Sample    `json:"samples"`
	}
	testutil.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	if body.State != pathview.Loaded || len(body.Samples) != 1 {
		t.Errorf("reload response = %+v", body)
	}
}

func TestShowPathBadWindow(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := get(t, srv.ServeMux(), "/api/path?window=3h")
	testutil.AssertStatusCode(t, rr.Code, http.StatusBadRequest)
}

func TestShowTransport(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := get(t, srv.ServeMux(), "/api/transport")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var st transport.Status
	testutil.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	if st.ChannelState != channel.Disconnected {
		t.Errorf("channel state = %v", st.ChannelState)
	}
}

func TestListAlertsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := get(t, srv.ServeMux(), "/api/alerts")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	if got := rr.Body.String(); got != "[]\n" && got != "[]" {
		t.Errorf("alerts body = %q, want empty array", got)
	}
}

func TestShowStats(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := get(t, srv.ServeMux(), "/api/stats")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var body map[string]json.RawMessage
	testutil.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	for _, key := range []string{"path", "pendingPings", "transportState"} {
		if _, ok := body[key]; !ok {
			t.Errorf("stats response missing %q", key)
		}
	}
}

func TestShowStatsReportsReceiverHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	clock := timeutil.NewMockClock(time.Now())
	src := fixsource.NewMockSource(6.92, 79.86, time.Second)
	t.Cleanup(func() { src.Close() })
	srv.FixWatch = fixsource.NewWatchdog(src, clock)

	// a silent receiver past the fix timeout surfaces through stats
	clock.Advance(fixsource.FixTimeout)
	if err := srv.FixWatch.Check(context.Background()); err == nil {
		t.Fatal("watchdog accepted a silent receiver")
	}

	rr := get(t, srv.ServeMux(), "/api/stats")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var body struct {
		ReceiverError string `json:"receiverError"`
	}
	testutil.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	if body.ReceiverError == "" {
		t.Error("receiverError missing from stats response")
	}
}

func TestShowDashboardDegradesToEmpty(t *testing.T) {
	// every backend fetch fails; the dashboard must still render
	mock := httputil.NewMockClient()
	mock.DefaultError = errors.New("backend unreachable")
	srv, _ := newTestServer(t, mock, nil)

	rr := get(t, srv.ServeMux(), "/api/dashboard")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var body struct {
		Heatmap   json.RawMessage `json:"heatmap"`
		RiskZones json.RawMessage `json:"riskZones"`
	}
	testutil.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	if string(body.Heatmap) != "[]" {
		t.Errorf("heatmap = %s, want []", body.Heatmap)
	}
}

func TestChartNoSamples(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := get(t, srv.ServeMux(), "/chart")
	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)
}

func TestChartRenders(t *testing.T) {
	srv, view := newTestServer(t, nil, nil)
	view.AppendLive(testutil.PositionedSample("s1", time.Now(), 6.91, 79.86, 0.2))
	view.AppendLive(testutil.PositionedSample("s2", time.Now(), 6.92, 79.87, 0.8))

	rr := get(t, srv.ServeMux(), "/chart")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/path", nil)
	rr := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rr, req)
	testutil.AssertStatusCode(t, rr.Code, http.StatusMethodNotAllowed)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := get(t, srv.ServeMux(), "/metrics")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
}
