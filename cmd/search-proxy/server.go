package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/nyt-search-client/pkg/client"
	"github.com/Sternrassler/nyt-search-client/pkg/diagnostics"
	"github.com/Sternrassler/nyt-search-client/pkg/document"
	"github.com/Sternrassler/nyt-search-client/pkg/metrics"
	"github.com/Sternrassler/nyt-search-client/pkg/pacing"
	"github.com/Sternrassler/nyt-search-client/pkg/pagination"
	"github.com/Sternrassler/nyt-search-client/pkg/query"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// allFetcher runs a complete paginated search.
type allFetcher interface {
	FetchAll(ctx context.Context, params query.Params) (*pagination.Result, error)
}

// server forwards searches to the upstream service one at a time. The
// fetcher must pace after its last page; single-page searches and failed
// paginated searches are paced here.
type server struct {
	pages    pagination.PageFetcher
	fetcher  allFetcher
	pacer    pacing.Pacer
	recorder diagnostics.Recorder
	redis    *redis.Client // nil when diagnostics live in memory
	logger   zerolog.Logger

	// upstream is held for every call to the search service, including the
	// pause that follows it.
	upstream sync.Mutex
}

type searchResponse struct {
	Hits        int                 `json:"hits"`
	Documents   []document.Document `json:"documents"`
	Diagnostics diagnostics.Record  `json:"diagnostics"`
}

type searchAllResponse struct {
	Hits              int                 `json:"hits"`
	Pages             int                 `json:"pages"`
	DuplicatesRemoved int                 `json:"duplicates_removed"`
	Documents         []document.Document `json:"documents"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", healthHandler)
	r.Get("/ready", s.readyHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/search", s.searchHandler)
	r.Get("/search/all", s.searchAllHandler)
	r.Get("/diagnostics/last", s.lastRequestHandler)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// searchHandler fetches a single page; page may be given.
func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	params, err := query.FromValues(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	s.upstream.Lock()
	defer s.upstream.Unlock()

	page, err := s.pages.Fetch(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
	} else {
		writeJSON(w, http.StatusOK, searchResponse{
			Hits:        page.Hits,
			Documents:   page.Documents,
			Diagnostics: page.Diagnostics,
		})
	}

	s.paceAfter(w, r)
}

// searchAllHandler fetches every page. This blocks for the full pacing
// schedule of the search.
func (s *server) searchAllHandler(w http.ResponseWriter, r *http.Request) {
	params, err := query.FromValues(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	s.upstream.Lock()
	defer s.upstream.Unlock()

	result, err := s.fetcher.FetchAll(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		if !errors.Is(err, client.ErrInvalidArgument) {
			s.paceAfter(w, r)
		}
		return
	}

	writeJSON(w, http.StatusOK, searchAllResponse{
		Hits:              result.Hits,
		Pages:             result.Pages,
		DuplicatesRemoved: result.DuplicatesRemoved,
		Documents:         result.Documents,
	})
}

// paceAfter flushes the response and then waits for the pacer, so the caller
// is answered before the pause. The wait outlives a disconnected caller.
func (s *server) paceAfter(w http.ResponseWriter, r *http.Request) {
	if s.pacer == nil {
		return
	}
	_ = http.NewResponseController(w).Flush()

	if err := s.pacer.WaitTurn(context.WithoutCancel(r.Context())); err != nil {
		s.logger.Warn().Err(err).Msg("Pacing after upstream request failed")
	}
}

func (s *server) lastRequestHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recorder.Last(r.Context())
	if errors.Is(err, diagnostics.ErrNoRecord) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no request recorded"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read last request")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "diagnostics unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeError maps search errors to HTTP statuses. Error messages never carry
// the API key.
func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		transportErr *client.TransportError
		decodeErr    *client.DecodeError
	)
	switch {
	case errors.Is(err, client.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.As(err, &transportErr):
		status = http.StatusBadGateway
		if transportErr.ErrorClass == client.ErrorClassRateLimit {
			status = http.StatusTooManyRequests
		}
	case errors.As(err, &decodeErr):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away
		return
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("Search failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
