// Package testutil provides testing utilities for the search client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// SearchPath is the path the mock serves, mirroring the real endpoint.
const SearchPath = "/svc/search/v2/articlesearch.json"

// MockResponse defines a canned response for one page.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSearch is a configurable mock article search server for testing.
type MockSearch struct {
	server *httptest.Server
	mu     sync.RWMutex

	hits      int
	pages     map[int][]json.RawMessage
	overrides map[int]MockResponse
	apiKey    string

	// Tracking
	requests []url.Values
	rawURIs  []string
}

// NewMockSearch creates a new mock search server with no documents.
func NewMockSearch() *MockSearch {
	mock := &MockSearch{
		pages:     make(map[int][]json.RawMessage),
		overrides: make(map[int]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the full search endpoint URL of the mock.
func (m *MockSearch) URL() string {
	return m.server.URL + SearchPath
}

// Close shuts down the mock server.
func (m *MockSearch) Close() {
	m.server.Close()
}

// Reset clears all tracking state.
func (m *MockSearch) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.rawURIs = nil
}

// RequireAPIKey makes the mock answer 401 unless api-key matches key.
func (m *MockSearch) RequireAPIKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKey = key
}

// SetHeadlines loads documents with the given headlines, split into pages
// of ten, and sets the hit count to their number.
func (m *MockSearch) SetHeadlines(headlines ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pages = make(map[int][]json.RawMessage)
	for i, h := range headlines {
		page := i / 10
		m.pages[page] = append(m.pages[page], NewDocument(i, h))
	}
	m.hits = len(headlines)
}

// SetHits overrides the reported hit count.
func (m *MockSearch) SetHits(hits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits = hits
}

// SetPage replaces the documents of one page.
func (m *MockSearch) SetPage(page int, docs ...json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = docs
}

// SetPageResponse makes the given page return resp instead of documents.
func (m *MockSearch) SetPageResponse(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[page] = resp
}

// RequestCount returns the number of requests received.
func (m *MockSearch) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Requests returns the parsed query of each request, in arrival order.
func (m *MockSearch) Requests() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]url.Values, len(m.requests))
	copy(out, m.requests)
	return out
}

// RawRequestURIs returns the request URIs exactly as received.
func (m *MockSearch) RawRequestURIs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.rawURIs))
	copy(out, m.rawURIs)
	return out
}

func (m *MockSearch) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	m.mu.Lock()
	m.requests = append(m.requests, q)
	m.rawURIs = append(m.rawURIs, r.RequestURI)
	apiKey := m.apiKey
	m.mu.Unlock()

	if r.URL.Path != SearchPath {
		http.NotFound(w, r)
		return
	}

	if apiKey != "" && q.Get("api-key") != apiKey {
		writeJSON(w, http.StatusUnauthorized, `{"fault":{"faultstring":"Invalid ApiKey"}}`)
		return
	}

	page := 0
	if p := q.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, `{"status":"ERROR","errors":["invalid page"]}`)
			return
		}
		page = n
	}

	m.mu.RLock()
	override, hasOverride := m.overrides[page]
	docs := m.pages[page]
	hits := m.hits
	m.mu.RUnlock()

	if hasOverride {
		if override.Delay > 0 {
			time.Sleep(override.Delay)
		}
		for key, value := range override.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(override.StatusCode)
		if override.Body != "" {
			w.Write([]byte(override.Body))
		}
		return
	}

	if docs == nil {
		docs = []json.RawMessage{}
	}

	body, err := json.Marshal(map[string]any{
		"status":    "OK",
		"copyright": "Copyright (c) Test",
		"response": map[string]any{
			"docs": docs,
			"meta": map[string]any{
				"hits":   hits,
				"offset": page * 10,
				"time":   7,
			},
		},
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, string(body))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// NewDocument builds an article document with the given headline.
func NewDocument(n int, headline string) json.RawMessage {
	doc, _ := json.Marshal(map[string]any{
		"_id":      fmt.Sprintf("nyt://article/%04d", n),
		"web_url":  fmt.Sprintf("https://www.example.com/article/%d.html", n),
		"headline": map[string]any{"main": headline, "kicker": nil},
		"keywords": []map[string]any{{"name": "subject", "value": "Weather"}},
	})
	return doc
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"fault":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"fault":{"faultstring":"Rate limit quota violation"}}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewMalformedResponse creates a 200 response whose body is not valid JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"response": {"docs": [`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
