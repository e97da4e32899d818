package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/nyt-search-client/internal/testutil"
	"github.com/Sternrassler/nyt-search-client/pkg/diagnostics"
	"github.com/Sternrassler/nyt-search-client/pkg/document"
	"github.com/Sternrassler/nyt-search-client/pkg/query"
)

const testAPIKey = "k3y-th4t-must-n0t-leak"

// newTestClient creates a client pointed at the mock server.
func newTestClient(t *testing.T, mock *testutil.MockSearch, recorder diagnostics.Recorder) *Client {
	t.Helper()

	cfg := DefaultConfig(testAPIKey)
	cfg.BaseURL = mock.URL()
	cfg.Recorder = recorder

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("key"),
		},
		{
			name:        "missing api key",
			config:      DefaultConfig(""),
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name:        "missing base url",
			config:      Config{APIKey: "key"},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "base url with query",
			config:      Config{APIKey: "key", BaseURL: "https://example.com/s.json?x=1"},
			expectError: true,
			errorMsg:    "base url must not contain a query string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("key")

	if cfg.BaseURL != ArticleSearchURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, ArticleSearchURL)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("Timeout = %v, should be > 0", cfg.Timeout)
	}
	if cfg.UserAgent == "" {
		t.Error("UserAgent should have a default")
	}
}

func TestFetch_DecodesPage(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()
	mock.SetHeadlines("Storm Hits City", "Flood Warning Issued", "Power Restored")

	c := newTestClient(t, mock, nil)

	params := query.MustParams(query.Param{Name: query.ParamQuery, Value: query.String("storm")})
	page, err := c.Fetch(context.Background(), params)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if page.Hits != 3 {
		t.Errorf("Hits = %d, want 3", page.Hits)
	}
	if len(page.Documents) != 3 {
		t.Fatalf("len(Documents) = %d, want 3", len(page.Documents))
	}
	if h, _ := document.Headline(page.Documents[0]); h != "Storm Hits City" {
		t.Errorf("first headline = %q, want %q", h, "Storm Hits City")
	}
}

func TestFetch_QueryString(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()
	mock.RequireAPIKey(testAPIKey)

	c := newTestClient(t, mock, nil)

	params := query.MustParams(
		query.Param{Name: query.ParamQuery, Value: query.String("new york")},
		query.Param{Name: query.ParamFilter, Value: query.Filter(query.MustFilterMap(
			query.Field("source", "New York Times", "AP"),
			query.Field("type_of_material", "News"),
		))},
		query.Param{Name: query.ParamFacet, Value: query.Bool(true)},
	)

	if _, err := c.Fetch(context.Background(), params); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("RequestCount = %d, want 1", len(reqs))
	}

	got := reqs[0]
	if got.Get("q") != "new york" {
		t.Errorf("q = %q, want %q", got.Get("q"), "new york")
	}
	wantFQ := `source:("New York Times" "AP") AND type_of_material:("News")`
	if got.Get("fq") != wantFQ {
		t.Errorf("fq = %q, want %q", got.Get("fq"), wantFQ)
	}
	if got.Get("facet") != "true" {
		t.Errorf("facet = %q, want true", got.Get("facet"))
	}

	// api-key is always the last parameter
	raw := mock.RawRequestURIs()[0]
	if !strings.HasSuffix(raw, "&api-key="+testAPIKey) {
		t.Errorf("request URI %q should end with api-key", raw)
	}
	if strings.Contains(raw, " ") {
		t.Errorf("request URI %q contains unescaped space", raw)
	}
}

func TestFetch_RecordsRedactedDiagnostics(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()
	mock.SetHeadlines("Storm Hits City")

	recorder := diagnostics.NewMemoryRecorder()
	c := newTestClient(t, mock, recorder)

	params := query.MustParams(query.Param{Name: query.ParamQuery, Value: query.String("storm")})
	page, err := c.Fetch(context.Background(), params)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	last, err := recorder.Last(context.Background())
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}

	for name, value := range map[string]string{
		"recorder url":   last.URL,
		"recorder query": last.Query,
		"page url":       page.Diagnostics.URL,
		"page query":     page.Diagnostics.Query,
	} {
		if strings.Contains(value, testAPIKey) {
			t.Errorf("%s %q contains API key", name, value)
		}
	}

	if last.Query != `q=storm&api-key="API-KEY"` {
		t.Errorf("Query = %q", last.Query)
	}
	if !strings.HasPrefix(last.URL, mock.URL()+"?q=storm&api-key=") {
		t.Errorf("URL = %q", last.URL)
	}
	if last.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", last.StatusCode)
	}
}

func TestFetch_ShortAPIKeyLeavesURLIntact(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()
	mock.SetHeadlines("Storm Hits City")

	cfg := DefaultConfig("e")
	cfg.BaseURL = mock.URL()
	cfg.Recorder = diagnostics.NewMemoryRecorder()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	params := query.MustParams(query.Param{Name: query.ParamQuery, Value: query.String("news")})
	page, err := c.Fetch(context.Background(), params)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if page.Diagnostics.Query != `q=news&api-key="API-KEY"` {
		t.Errorf("Query = %q", page.Diagnostics.Query)
	}
	want := mock.URL() + `?q=news&api-key="API-KEY"`
	if page.Diagnostics.URL != want {
		t.Errorf("URL = %q, want %q", page.Diagnostics.URL, want)
	}
}

func TestFetch_TransportErrors(t *testing.T) {
	tests := []struct {
		name      string
		response  testutil.MockResponse
		wantClass ErrorClass
		wantCode  int
	}{
		{
			name:      "server error",
			response:  testutil.NewServerErrorResponse(),
			wantClass: ErrorClassServer,
			wantCode:  500,
		},
		{
			name:      "rate limited",
			response:  testutil.NewRateLimitResponse(),
			wantClass: ErrorClassRateLimit,
			wantCode:  429,
		},
		{
			name:      "forbidden",
			response:  testutil.MockResponse{StatusCode: http.StatusForbidden},
			wantClass: ErrorClassClient,
			wantCode:  403,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockSearch()
			defer mock.Close()
			mock.SetPageResponse(0, tt.response)

			recorder := diagnostics.NewMemoryRecorder()
			c := newTestClient(t, mock, recorder)

			_, err := c.Fetch(context.Background(), query.Params{})
			var te *TransportError
			if !errors.As(err, &te) {
				t.Fatalf("Fetch() error = %v, want *TransportError", err)
			}
			if te.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", te.ErrorClass, tt.wantClass)
			}
			if te.StatusCode != tt.wantCode {
				t.Errorf("StatusCode = %d, want %d", te.StatusCode, tt.wantCode)
			}
			if strings.Contains(err.Error(), testAPIKey) || strings.Contains(te.URL, testAPIKey) {
				t.Errorf("error leaks API key: %v (url %q)", err, te.URL)
			}
			if mock.RequestCount() != 1 {
				t.Errorf("RequestCount = %d, want 1 (no retry)", mock.RequestCount())
			}
			if _, err := recorder.Last(context.Background()); !errors.Is(err, diagnostics.ErrNoRecord) {
				t.Errorf("failed request should not be recorded, got %v", err)
			}
		})
	}
}

func TestFetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL + testutil.SearchPath
	server.Close()

	cfg := DefaultConfig(testAPIKey)
	cfg.BaseURL = baseURL
	cfg.Timeout = 2 * time.Second
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = c.Fetch(context.Background(), query.Params{})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Fetch() error = %v, want *TransportError", err)
	}
	if te.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %q, want %q", te.ErrorClass, ErrorClassNetwork)
	}
	if strings.Contains(err.Error(), testAPIKey) {
		t.Errorf("network error leaks API key: %v", err)
	}
}

func TestFetch_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: testutil.NewMalformedResponse().Body},
		{name: "missing response", body: `{"status":"OK"}`},
		{name: "missing hits", body: `{"response":{"docs":[],"meta":{}}}`},
		{name: "negative hits", body: `{"response":{"docs":[],"meta":{"hits":-1}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockSearch()
			defer mock.Close()
			mock.SetPageResponse(0, testutil.MockResponse{StatusCode: http.StatusOK, Body: tt.body})

			c := newTestClient(t, mock, nil)

			_, err := c.Fetch(context.Background(), query.Params{})
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("Fetch() error = %v, want *DecodeError", err)
			}
		})
	}
}

func TestFetch_DecodeErrorStillRecorded(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()
	mock.SetPageResponse(0, testutil.MockResponse{StatusCode: http.StatusOK, Body: "not json"})

	recorder := diagnostics.NewMemoryRecorder()
	c := newTestClient(t, mock, recorder)

	params := query.MustParams(query.Param{Name: query.ParamQuery, Value: query.String("storm")})
	_, err := c.Fetch(context.Background(), params)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Fetch() error = %v, want *DecodeError", err)
	}

	last, err := recorder.Last(context.Background())
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	if last.Query != `q=storm&api-key="API-KEY"` {
		t.Errorf("Query = %q", last.Query)
	}
	if last.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", last.StatusCode)
	}
}

func TestFetch_EmptyDocs(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()

	c := newTestClient(t, mock, nil)

	page, err := c.Fetch(context.Background(), query.Params{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if page.Hits != 0 || len(page.Documents) != 0 {
		t.Errorf("page = %+v, want empty", page)
	}
	if page.Documents == nil {
		t.Error("Documents should be empty, not nil")
	}
}

func TestFetch_UserAgentSet(t *testing.T) {
	userAgentReceived := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgentReceived = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"response":{"docs":[],"meta":{"hits":0}}}`))
	}))
	defer server.Close()

	cfg := DefaultConfig(testAPIKey)
	cfg.BaseURL = server.URL
	cfg.UserAgent = "TestApp/1.0.0 (test@example.com)"
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if _, err := client.Fetch(context.Background(), query.Params{}); err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	if userAgentReceived != cfg.UserAgent {
		t.Errorf("User-Agent = %q, want %q", userAgentReceived, cfg.UserAgent)
	}
}

func TestConfig_HidesAPIKey(t *testing.T) {
	c, err := New(DefaultConfig(testAPIKey))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if c.Config().APIKey != "" {
		t.Error("Config() should not expose the API key")
	}
}

func TestEscapeURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "no query",
			raw:      "https://example.com/s.json",
			expected: "https://example.com/s.json",
		},
		{
			name:     "reserved characters",
			raw:      `https://example.com/s.json?fq=source:("New York Times")&q=a b&api-key=k`,
			expected: "https://example.com/s.json?fq=source%3A%28%22New%20York%20Times%22%29&q=a%20b&api-key=k",
		},
		{
			name:     "plus is escaped",
			raw:      "https://example.com/s.json?q=c++",
			expected: "https://example.com/s.json?q=c%2B%2B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeURL(tt.raw); got != tt.expected {
				t.Errorf("escapeURL() = %q, want %q", got, tt.expected)
			}
		})
	}
}
