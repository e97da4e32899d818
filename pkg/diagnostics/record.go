// Package diagnostics stores the last request issued by the search client
// with the API key redacted, so it is always safe to log or display.
package diagnostics

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Placeholder replaces the API key wherever it appears in a diagnostic string.
const Placeholder = `"API-KEY"`

// Record describes one issued request.
type Record struct {
	// URL is the request URL as sent on the wire.
	URL string `json:"url"`

	// Query is the query string built by the encoder, before transport escaping.
	Query string `json:"query"`

	// StatusCode is the HTTP status of the response (0 if none was received).
	StatusCode int `json:"status_code"`

	// IssuedAt is when the request was sent.
	IssuedAt time.Time `json:"issued_at"`
}

var apiKeyParam = regexp.MustCompile(`api-key=[^&]*`)

// RedactURL replaces the value of the api-key parameter with Placeholder.
// The rest of the URL or query string is left untouched.
func RedactURL(s string) string {
	return apiKeyParam.ReplaceAllLiteralString(s, "api-key="+Placeholder)
}

// Redact is for free text such as error bodies. On top of RedactURL it
// replaces any other occurrence of key, plain or escaped, with Placeholder.
func Redact(s, key string) string {
	s = RedactURL(s)
	if key == "" {
		return s
	}
	s = strings.ReplaceAll(s, key, Placeholder)
	if escaped := url.QueryEscape(key); escaped != key {
		s = strings.ReplaceAll(s, escaped, Placeholder)
	}
	return s
}

// NewRecord builds a record with the api-key parameter redacted.
func NewRecord(rawURL, query string, status int, at time.Time) Record {
	return Record{
		URL:        RedactURL(rawURL),
		Query:      RedactURL(query),
		StatusCode: status,
		IssuedAt:   at,
	}
}
