// Package status serves the agent's local HTTP surface: JSON state for the
// device owner's dashboard, a rendered path chart, prometheus metrics and
// the journal debug routes. It binds to localhost; it is not the backend
// API and carries no auth of its own.
package status

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/apiclient"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/fixsource"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/httputil"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/journal"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/pathview"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/transport"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// TransportStatuser reports delivery state. Satisfied by the transport
// itself and by the tracker, which delegates to whichever transport is
// currently active.
type TransportStatuser interface {
	Status() transport.Status
}

// Server exposes the tracker's state over localhost HTTP.
type Server struct {
	view    *pathview.View
	tr      TransportStatuser
	journal *journal.Journal
	api     *apiclient.Client

	// FixWatch, when set, contributes receiver health to /api/stats.
	FixWatch *fixsource.Watchdog
}

func NewServer(view *pathview.View, tr TransportStatuser, j *journal.Journal, api *apiclient.Client) *Server {
	return &Server{view: view, tr: tr, journal: j, api: api}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux builds the full route table, debug routes included.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/path", s.showPath)
	mux.HandleFunc("/api/transport", s.showTransport)
	mux.HandleFunc("/api/alerts", s.listAlerts)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/dashboard", s.showDashboard)
	mux.HandleFunc("/chart", s.renderChart)
	mux.Handle("/metrics", promhttp.Handler())
	if s.journal != nil {
		s.journal.AttachAdminRoutes(mux)
	}
	return mux
}

type pathResponse struct {
	Device    string              `json:"device"`
	State     pathview.LoadState  `json:"state"`
	Samples   []sample.Sample     `json:"samples"`
	Segments  []pathview.Segment  `json:"segments"`
	Anomalies []sample.Sample     `json:"anomalies"`
	Viewport  interface{}         `json:"viewport"`
	Stats     interface{}         `json:"stats"`
}

// showPath returns the current path view. An optional window query param
// ("1h", "6h", "24h", "7d") reloads history for that window first.
func (s *Server) showPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if label := r.URL.Query().Get("window"); label != "" {
		win, ok := sample.ParseWindow(label)
		if !ok {
			httputil.BadRequest(w, "unknown window "+label)
			return
		}
		if err := s.view.LoadHistory(r.Context(), win); err != nil {
			httputil.InternalServerError(w, "history load failed: "+err.Error())
			return
		}
	}

	httputil.WriteJSONOK(w, pathResponse{
		Device:    s.view.Device(),
		State:     s.view.State(),
		Samples:   s.view.Samples(),
		Segments:  s.view.Segments(),
		Anomalies: s.view.AnomalyPoints(),
		Viewport:  s.view.Viewport(),
		Stats:     s.view.Stats(),
	})
}

func (s *Server) showTransport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.tr.Status())
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	alerts, err := s.journal.RecentAlerts(50)
	if err != nil {
		httputil.InternalServerError(w, "alert query failed: "+err.Error())
		return
	}
	if alerts == nil {
		alerts = []sample.AnomalyAlert{}
	}
	httputil.WriteJSONOK(w, alerts)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	pending, err := s.journal.PendingCount()
	if err != nil {
		httputil.InternalServerError(w, "pending count failed: "+err.Error())
		return
	}
	body := map[string]interface{}{
		"path":           s.view.Stats(),
		"pendingPings":   pending,
		"transportState": s.tr.Status(),
	}
	if s.FixWatch != nil {
		body["receiverError"] = s.FixWatch.LastError()
	}
	httputil.WriteJSONOK(w, body)
}

// showDashboard aggregates the backend's read-only dashboard feeds. Each
// feed degrades independently; a backend outage yields empty data, not an
// error page.
func (s *Server) showDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ctx := r.Context()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"heatmap":       s.api.Heatmap(ctx),
		"riskZones":     s.api.RiskZones(ctx),
		"trainingStats": s.api.TrainingStats(ctx),
	})
}
