// Package apiclient is the REST client for the Lost & Found backend. A
// Client is built from an explicit Session rather than ambient global
// credentials; the session is attached per request through the httputil
// interceptor chain.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/httputil"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
)

// IngestKeyHeader carries the pre-shared device key on fallback pings.
const IngestKeyHeader = "X-Ingest-Key"

// HistoryLimit bounds how many past samples a history load may request.
const HistoryLimit = 500

// Session holds the per-instance credentials the client attaches to
// requests. Zero values mean "not configured" and nothing is attached.
type Session struct {
	// AuthToken is sent as a bearer token on every request when set.
	AuthToken string

	// IngestKey is the pre-shared device key. The fallback ping carries it
	// as a header; the persistent channel carries it inline in the payload.
	IngestKey string
}

// Interceptor returns the request interceptor that applies the session.
func (s Session) Interceptor() httputil.Interceptor {
	return func(req *http.Request) {
		if s.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+s.AuthToken)
		}
	}
}

// Client issues requests against one API base URL.
type Client struct {
	base    string
	session Session
	doer    httputil.Doer
}

// New creates a client for the given base URL. A nil doer uses a standard
// HTTP client with the session interceptor installed.
func New(base string, session Session, doer httputil.Doer) *Client {
	base = strings.TrimRight(base, "/")
	if doer == nil {
		doer = httputil.NewStandardClient(nil, session.Interceptor())
	}
	return &Client{base: base, session: session, doer: doer}
}

// Session returns the session the client was built with.
func (c *Client) Session() Session { return c.session }

// PingRequest is one fallback position delivery.
type PingRequest struct {
	DeviceID  string
	Lat       float64
	Lng       float64
	Accuracy  *float64
	Speed     *float64
	Timestamp time.Time
}

type pingBody struct {
	DeviceID string   `json:"deviceId"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Ts       int64    `json:"ts"`
	Source   string   `json:"source"`
}

// PingResult is the backend's response to a saved ping.
type PingResult struct {
	Ping         *sample.Sample `json:"ping,omitempty"`
	DeviceStatus string         `json:"deviceStatus,omitempty"`
	ZoneName     string         `json:"zoneName,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// PingFallback delivers one sample over the request/response path. The
// ingest key, when configured, travels as a header.
func (c *Client) PingFallback(ctx context.Context, p PingRequest) (*PingResult, error) {
	body, err := json.Marshal(pingBody{
		DeviceID: p.DeviceID,
		Lat:      p.Lat,
		Lng:      p.Lng,
		Accuracy: p.Accuracy,
		Speed:    p.Speed,
		Ts:       p.Timestamp.UnixMilli(),
		Source:   "http",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/location/ping", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.session.IngestKey != "" {
		req.Header.Set(IngestKeyHeader, c.session.IngestKey)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ping delivery failed: %w", err)
	}
	defer resp.Body.Close()

	var result PingResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && err != io.EOF {
		return nil, fmt.Errorf("malformed ping response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := result.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("ping rejected: %s", msg)
	}
	return &result, nil
}

// History fetches up to limit recent samples for a device. The backend
// returns most-recent-N in any order; the path view re-sorts. A limit
// outside (0, HistoryLimit] is clamped to HistoryLimit.
func (c *Client) History(ctx context.Context, deviceID string, limit int) ([]sample.Sample, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	u := fmt.Sprintf("%s/location/history/%s?limit=%d", c.base, url.PathEscape(deviceID), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history fetch rejected: %s", resp.Status)
	}

	var samples []sample.Sample
	if err := json.NewDecoder(resp.Body).Decode(&samples); err != nil {
		return nil, fmt.Errorf("malformed history response: %w", err)
	}
	return samples, nil
}

// getJSONWithFallback fetches an opaque JSON document: primary endpoint,
// then secondary, then the supplied empty value. One fallback hop, never
// more, and neither endpoint is retried.
func (c *Client) getJSONWithFallback(ctx context.Context, primary, secondary string, empty json.RawMessage) json.RawMessage {
	for _, path := range []string{primary, secondary} {
		if path == "" {
			continue
		}
		raw, err := c.getJSON(ctx, path)
		if err != nil {
			monitoring.Logf("dashboard fetch %s failed: %v", path, err)
			continue
		}
		return raw
	}
	return empty
}

func (c *Client) getJSON(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid json body")
	}
	return json.RawMessage(raw), nil
}

// Heatmap returns the ML training heatmap, falling back to the risk zone
// list when the primary endpoint is unavailable.
func (c *Client) Heatmap(ctx context.Context) json.RawMessage {
	return c.getJSONWithFallback(ctx, "/ml-training/heatmap", "/risk/zones", json.RawMessage("[]"))
}

// RiskZones returns the scored zone list.
func (c *Client) RiskZones(ctx context.Context) json.RawMessage {
	return c.getJSONWithFallback(ctx, "/risk/zones", "", json.RawMessage("[]"))
}

// TrainingStats returns the ML training statistics document.
func (c *Client) TrainingStats(ctx context.Context) json.RawMessage {
	return c.getJSONWithFallback(ctx, "/ml-training/stats", "", json.RawMessage("{}"))
}
