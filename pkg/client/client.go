// Package client provides the article search HTTP client: one request per
// page, redacted request diagnostics, and typed transport/decode errors.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/nyt-search-client/pkg/diagnostics"
	"github.com/Sternrassler/nyt-search-client/pkg/document"
	"github.com/Sternrassler/nyt-search-client/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ArticleSearchURL is the default search endpoint.
const ArticleSearchURL = "https://api.nytimes.com/svc/search/v2/articlesearch.json"

// Prometheus metrics for search client operations.
var (
	searchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nyt_requests_total",
		Help: "Total search requests by status",
	}, []string{"status"})

	searchRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nyt_request_duration_seconds",
		Help:    "Search request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	searchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nyt_errors_total",
		Help: "Total search errors by class",
	}, []string{"class"})
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

// Client issues single-page search requests.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// APIKey is appended to every request (REQUIRED).
	APIKey string

	// BaseURL is the search endpoint, without query string.
	BaseURL string

	// UserAgent header sent with each request.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration

	// Recorder receives the redacted record of each successful request.
	// Optional.
	Recorder diagnostics.Recorder
}

// DefaultConfig returns a configuration for the public article search endpoint.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:    apiKey,
		BaseURL:   ArticleSearchURL,
		UserAgent: "nyt-search-client/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// New creates a new search client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.RawQuery != "" {
		return nil, fmt.Errorf("base url must not contain a query string")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "search-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Page is one decoded result page.
type Page struct {
	// Hits is the total number of matches reported by the service.
	Hits int

	// Documents are the results on this page, in service order.
	Documents []document.Document

	// Diagnostics is the redacted record of the request that produced the page.
	Diagnostics diagnostics.Record
}

// searchResponse is the subset of the response body the client reads.
type searchResponse struct {
	Response *struct {
		Meta *struct {
			Hits *int `json:"hits"`
		} `json:"meta"`
		Docs []document.Document `json:"docs"`
	} `json:"response"`
}

// Fetch performs one search request for params. Parameters are encoded in
// order; the API key is appended last.
func (c *Client) Fetch(ctx context.Context, params query.Params) (*Page, error) {
	startTime := time.Now()
	defer func() {
		searchRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	encoded := query.Encode(params)
	constructed := encoded + "&api-key=" + c.config.APIKey
	rawURL := c.config.BaseURL + "?" + constructed
	wireURL := escapeURL(rawURL)
	redactedURL := diagnostics.RedactURL(wireURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wireURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %s", diagnostics.Redact(err.Error(), c.config.APIKey))
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("url", redactedURL).
		Msg("Executing search request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redactedURL
		}
		searchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		searchRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Msg("Search request failed")
		return nil, &TransportError{
			ErrorClass: ErrorClassNetwork,
			Status:     "request failed",
			URL:        redactedURL,
			Err:        err,
		}
	}
	defer resp.Body.Close()

	searchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		searchErrorsTotal.WithLabelValues(string(class)).Inc()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Str("url", redactedURL).
			Msg("Search request error")

		var bodyErr error
		if len(body) > 0 {
			bodyErr = errors.New(diagnostics.Redact(string(body), c.config.APIKey))
		}
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Status:     resp.Status,
			URL:        redactedURL,
			Err:        bodyErr,
		}
	}

	record := diagnostics.NewRecord(wireURL, constructed, resp.StatusCode, startTime)
	if c.config.Recorder != nil {
		if err := c.config.Recorder.Record(ctx, record); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record request diagnostics")
		}
	}

	page, err := decodePage(resp.Body)
	if err != nil {
		searchErrorsTotal.WithLabelValues("decode").Inc()
		return nil, err
	}
	page.Diagnostics = record

	c.logger.Debug().
		Int("hits", page.Hits).
		Int("docs", len(page.Documents)).
		Dur("duration", time.Since(startTime)).
		Msg("Search request complete")

	return page, nil
}

// decodePage reads and validates a response body.
func decodePage(body io.Reader) (*Page, error) {
	var sr searchResponse
	if err := json.NewDecoder(body).Decode(&sr); err != nil {
		return nil, &DecodeError{Err: err}
	}

	if sr.Response == nil {
		return nil, &DecodeError{Err: errors.New("missing response object")}
	}
	if sr.Response.Meta == nil || sr.Response.Meta.Hits == nil {
		return nil, &DecodeError{Err: errors.New("missing response.meta.hits")}
	}
	if *sr.Response.Meta.Hits < 0 {
		return nil, &DecodeError{Err: fmt.Errorf("negative hit count %d", *sr.Response.Meta.Hits)}
	}

	docs := sr.Response.Docs
	if docs == nil {
		docs = []document.Document{}
	}

	return &Page{
		Hits:      *sr.Response.Meta.Hits,
		Documents: docs,
	}, nil
}

// Config returns the client configuration with the API key removed.
func (c *Client) Config() Config {
	cfg := c.config
	cfg.APIKey = ""
	return cfg
}

// Recorder returns the configured diagnostics recorder, or nil.
func (c *Client) Recorder() diagnostics.Recorder {
	return c.config.Recorder
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
