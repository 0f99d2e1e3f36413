// Package httputil provides the HTTP client abstraction shared by the API
// client and the dashboard fetchers, plus JSON response helpers for the
// status server.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// Doer abstracts HTTP execution for testability. Production code uses
// StandardClient; tests use MockClient.
type Doer interface {
	// Do sends an HTTP request and returns the response.
	Do(req *http.Request) (*http.Response, error)
}

// Interceptor inspects or mutates an outgoing request before it is sent.
// The API client uses an interceptor to attach per-session credentials
// instead of keeping them in package-level state.
type Interceptor func(req *http.Request)

// StandardClient wraps *http.Client with an interceptor chain.
type StandardClient struct {
	client       *http.Client
	interceptors []Interceptor
}

// NewStandardClient wraps c, applying the given interceptors to every
// request in order. A nil c uses http.DefaultClient.
func NewStandardClient(c *http.Client, interceptors ...Interceptor) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{client: c, interceptors: interceptors}
}

// Do applies the interceptor chain and sends the request.
func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	for _, ic := range c.interceptors {
		ic(req)
	}
	return c.client.Do(req)
}

// MockClient is a canned-response Doer for tests. Responses are returned in
// the order they were queued; once exhausted, requests get an empty 200.
type MockClient struct {
	mu           sync.Mutex
	DoFunc       func(req *http.Request) (*http.Response, error)
	Requests     []*http.Request
	Bodies       []string // request bodies captured at Do time
	responses    []*MockResponse
	responseIdx  int
	DefaultError error
}

// MockResponse is one canned HTTP response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    http.Header
	Err        error
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// AddResponse queues a response with the given status and body.
func (m *MockClient) AddResponse(statusCode int, body string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, &MockResponse{
		StatusCode: statusCode,
		Body:       body,
		Headers:    make(http.Header),
	})
	return m
}

// AddError queues a transport-level error.
func (m *MockClient) AddError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, &MockResponse{Err: err})
	return m
}

// Do records the request and returns the next queued response.
func (m *MockClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	var body string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		req.Body.Close()
		body = string(b)
	}
	m.Bodies = append(m.Bodies, body)

	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}

	if m.responseIdx < len(m.responses) {
		resp := m.responses[m.responseIdx]
		m.responseIdx++
		if resp.Err != nil {
			return nil, resp.Err
		}
		return &http.Response{
			StatusCode: resp.StatusCode,
			Body:       io.NopCloser(bytes.NewBufferString(resp.Body)),
			Header:     resp.Headers,
			Request:    req,
		}, nil
	}

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Request returns the nth recorded request, or nil.
func (m *MockClient) Request(n int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.Requests) {
		return nil
	}
	return m.Requests[n]
}

// RequestCount returns the number of recorded requests.
func (m *MockClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
