package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/nyt-search-client/pkg/client"
	"github.com/Sternrassler/nyt-search-client/pkg/document"
	"github.com/Sternrassler/nyt-search-client/pkg/pacing"
	"github.com/Sternrassler/nyt-search-client/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// PageSize is the number of documents the search API returns per page.
// It is not reported by the service.
const PageSize = 10

// Prometheus metrics for paginated fetches.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nyt_pages_fetched_total",
		Help: "Total number of result pages fetched",
	})

	fetchAllTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nyt_fetch_all_total",
		Help: "Total paginated fetches by outcome",
	}, []string{"outcome"})

	duplicatesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nyt_duplicates_removed_total",
		Help: "Total number of documents dropped as duplicate headlines",
	})
)

// Config holds fetcher configuration.
type Config struct {
	// PaceAfterLast also waits after the final page request.
	PaceAfterLast bool
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		PaceAfterLast: true,
	}
}

// PageFetcher issues a single page request. *client.Client implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, params query.Params) (*client.Page, error)
}

// Result is the outcome of a complete paginated fetch.
type Result struct {
	// Documents are the accumulated documents, duplicates removed.
	Documents []document.Document

	// Hits is the hit count reported by page 0.
	Hits int

	// Pages is the number of page requests issued.
	Pages int

	// DuplicatesRemoved is the number of documents dropped.
	DuplicatesRemoved int
}

// Fetcher walks every page of a search sequentially.
type Fetcher struct {
	pages  PageFetcher
	pacer  pacing.Pacer
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a fetcher. A nil pacer never waits.
func NewFetcher(pages PageFetcher, pacer pacing.Pacer, cfg Config, logger zerolog.Logger) *Fetcher {
	if pages == nil {
		panic("pagination: page fetcher must not be nil")
	}
	if pacer == nil {
		pacer = pacing.NopPacer{}
	}

	return &Fetcher{
		pages:  pages,
		pacer:  pacer,
		config: cfg,
		logger: logger.With().Str("component", "pagination").Logger(),
	}
}

// MaxPage returns the index of the last page for the given hit count, or -1
// when there are no hits.
func MaxPage(hits, pageSize int) int {
	if hits <= 0 || pageSize <= 0 {
		return -1
	}
	return (hits+pageSize-1)/pageSize - 1
}

// FetchAll fetches every page for params and returns the concatenated
// documents with duplicate headlines removed. params must not contain a page
// parameter. Any failed page aborts the fetch and no documents are returned.
func (f *Fetcher) FetchAll(ctx context.Context, params query.Params) (*Result, error) {
	if params.Has(query.ParamPage) {
		fetchAllTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %s must not be set when fetching all pages",
			client.ErrInvalidArgument, query.ParamPage)
	}

	start := time.Now()

	first, err := f.pages.Fetch(ctx, params)
	if err != nil {
		fetchAllTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch page 0: %w", err)
	}
	pagesFetchedTotal.Inc()

	maxPage := MaxPage(first.Hits, PageSize)

	f.logger.Info().
		Int("hits", first.Hits).
		Int("pages", maxPage+1).
		Msg("Starting paginated fetch")

	if err := f.pace(ctx, 0, maxPage); err != nil {
		fetchAllTotal.WithLabelValues("cancelled").Inc()
		return nil, err
	}

	docs := make([]document.Document, 0, max(maxPage+1, 1)*PageSize)
	docs = append(docs, first.Documents...)
	requests := 1

	for page := 1; page <= maxPage; page++ {
		result, err := f.pages.Fetch(ctx, params.WithPage(page))
		if err != nil {
			f.logger.Warn().
				Err(err).
				Int("page", page).
				Int("max_page", maxPage).
				Msg("Page fetch failed, discarding results")
			fetchAllTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		pagesFetchedTotal.Inc()
		requests++
		docs = append(docs, result.Documents...)

		f.logger.Debug().
			Int("page", page).
			Int("docs", len(result.Documents)).
			Msg("Page fetched")

		if err := f.pace(ctx, page, maxPage); err != nil {
			fetchAllTotal.WithLabelValues("cancelled").Inc()
			return nil, err
		}
	}

	cleaned, removed := Deduplicate(docs, document.Headline)
	if removed > 0 {
		f.logger.Info().
			Int("duplicates", removed).
			Msg("Removing duplicate entries")
		duplicatesRemovedTotal.Add(float64(removed))
	}

	fetchAllTotal.WithLabelValues("success").Inc()
	f.logger.Info().
		Int("pages", requests).
		Int("docs", len(cleaned)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return &Result{
		Documents:         cleaned,
		Hits:              first.Hits,
		Pages:             requests,
		DuplicatesRemoved: removed,
	}, nil
}

// pace waits for the next turn after the request for page.
func (f *Fetcher) pace(ctx context.Context, page, maxPage int) error {
	if page >= maxPage && !f.config.PaceAfterLast {
		return nil
	}
	return f.pacer.WaitTurn(ctx)
}

// Deduplicate drops every document whose key equals the key of an earlier
// document, preserving order. Documents without a key are always kept. When
// nothing is dropped, docs is returned unchanged.
func Deduplicate(docs []document.Document, key func(document.Document) (string, bool)) ([]document.Document, int) {
	seen := make(map[string]struct{}, len(docs))
	firstDup := -1
	for i, d := range docs {
		k, ok := key(d)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			firstDup = i
			break
		}
		seen[k] = struct{}{}
	}
	if firstDup < 0 {
		return docs, 0
	}

	cleaned := make([]document.Document, firstDup, len(docs)-1)
	copy(cleaned, docs[:firstDup])
	for _, d := range docs[firstDup:] {
		k, ok := key(d)
		if ok {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		cleaned = append(cleaned, d)
	}
	return cleaned, len(docs) - len(cleaned)
}
