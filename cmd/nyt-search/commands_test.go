package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Sternrassler/nyt-search-client/internal/testutil"
	"github.com/Sternrassler/nyt-search-client/pkg/diagnostics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "cli-test-key"

func run(t *testing.T, mock *testutil.MockSearch, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("NYT_API_KEY", testAPIKey)
	t.Setenv("NYT_CONFIG", "")

	var stdout, stderr bytes.Buffer
	app := newApp(&stdout, &stderr)

	argv := append([]string{"nyt-search", "--base-url", mock.URL(), "--pacing", "none"}, args...)
	err := app.Run(context.Background(), argv)
	return stdout.String(), stderr.String(), err
}

func TestSearch(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()
	mock.SetHeadlines("Storm Hits City", "Flood Warning Issued")

	stdout, _, err := run(t, mock, "search", "-q", "storm",
		"--fq", "source=New York Times", "--fq", "type_of_material=News", "--fq", "source=AP",
		"--sort", "newest", "--facet",
		"--select", ".headline.main")
	require.NoError(t, err)

	assert.Equal(t, "\"Storm Hits City\"\n\"Flood Warning Issued\"\n", stdout)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "storm", reqs[0].Get("q"))
	assert.Equal(t, `source:("New York Times" "AP") AND type_of_material:("News")`, reqs[0].Get("fq"))
	assert.Equal(t, "newest", reqs[0].Get("sort"))
	assert.Equal(t, "true", reqs[0].Get("facet"))
	assert.Empty(t, reqs[0].Get("page"))
}

func TestSearch_Page(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()

	_, _, err := run(t, mock, "search", "-q", "storm", "--page", "3")
	require.NoError(t, err)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "3", reqs[0].Get("page"))
}

func TestSearch_Diagnostics(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()

	_, stderr, err := run(t, mock, "search", "-q", "storm", "--diagnostics")
	require.NoError(t, err)

	assert.Contains(t, stderr, `query:   q=storm&api-key="API-KEY"`)
	assert.NotContains(t, stderr, testAPIKey)
}

func TestSearchAll(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()

	headlines := make([]string, 21)
	for i := range headlines {
		headlines[i] = "Unique " + string(rune('A'+i))
	}
	headlines[15] = "Unique A"
	mock.SetHeadlines(headlines...)

	stdout, _, err := run(t, mock, "search-all", "-q", "storm", "--select", ".headline.main")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	assert.Len(t, lines, 20)
	assert.Equal(t, `"Unique A"`, lines[0])
	assert.Equal(t, 3, mock.RequestCount())
}

func TestSearchAll_UpstreamFailure(t *testing.T) {
	mock := testutil.NewMockSearch()
	defer mock.Close()
	mock.SetHeadlines(make([]string, 15)...)
	mock.SetPageResponse(1, testutil.NewServerErrorResponse())

	stdout, _, err := run(t, mock, "search-all", "-q", "storm")
	require.Error(t, err)
	assert.Empty(t, stdout)
	assert.NotContains(t, err.Error(), testAPIKey)
}

func TestSearch_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "malformed fq", args: []string{"search", "--fq", "no-separator"}},
		{name: "negative page", args: []string{"search", "--page=-1"}},
		{name: "invalid select", args: []string{"search", "--select", ".["}},
		{name: "page on search-all", args: []string{"search-all", "--page", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockSearch()
			defer mock.Close()

			_, _, err := run(t, mock, tt.args...)
			assert.Error(t, err)
			assert.Equal(t, 0, mock.RequestCount())
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestPrintRecord(t *testing.T) {
	rec := diagnostics.Record{
		URL:        `https://api.example.com/s.json?q=storm&api-key="API-KEY"`,
		Query:      `q=storm&api-key="API-KEY"`,
		StatusCode: 200,
	}

	var buf bytes.Buffer
	require.NoError(t, printRecord(&buf, rec))
	assert.Equal(t,
		"request: https://api.example.com/s.json?q=storm&api-key=\"API-KEY\"\n"+
			"query:   q=storm&api-key=\"API-KEY\"\n"+
			"status:  200\n",
		buf.String())

	err := printRecord(failingWriter{}, rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
