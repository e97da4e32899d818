package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/nyt-search-client/internal/config"
	"github.com/Sternrassler/nyt-search-client/pkg/client"
	"github.com/Sternrassler/nyt-search-client/pkg/diagnostics"
	"github.com/Sternrassler/nyt-search-client/pkg/document"
	"github.com/Sternrassler/nyt-search-client/pkg/logging"
	"github.com/Sternrassler/nyt-search-client/pkg/pagination"
	"github.com/Sternrassler/nyt-search-client/pkg/query"
	"github.com/Sternrassler/nyt-search-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "nyt-search",
		Usage:     "Search the article archive",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Configuration file (.yaml, .yml or .toml)",
				Sources: cli.EnvVars("NYT_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "Override the search endpoint",
			},
			&cli.StringFlag{
				Name:  "pacing",
				Usage: "Override the pacing mode (delay, limiter, shared, none)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			searchCommand(),
			searchAllCommand(),
		},
	}
}

// queryFlags are shared by both search commands.
func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Free-text search terms"},
		&cli.StringSliceFlag{Name: "fq", Usage: "Filter clause field=value (repeatable)"},
		&cli.StringFlag{Name: "begin-date", Usage: "Earliest publication date (YYYYMMDD)"},
		&cli.StringFlag{Name: "end-date", Usage: "Latest publication date (YYYYMMDD)"},
		&cli.StringFlag{Name: "sort", Usage: "newest, oldest or relevance"},
		&cli.StringFlag{Name: "fl", Usage: "Comma-separated fields to return"},
		&cli.BoolFlag{Name: "facet", Usage: "Request facet counts"},
		&cli.StringFlag{Name: "facet-fields", Usage: "Comma-separated facet fields"},
		&cli.BoolFlag{Name: "facet-filter", Usage: "Apply filters to facet counts"},
		&cli.StringFlag{Name: "select", Usage: "jq expression applied to each document"},
		&cli.BoolFlag{Name: "diagnostics", Usage: "Print the redacted request record to stderr"},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Fetch a single result page",
		Flags: append(queryFlags(),
			&cli.IntFlag{Name: "page", Usage: "Result page (0-based)"},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			return runSearch(ctx, c)
		},
	}
}

func searchAllCommand() *cli.Command {
	return &cli.Command{
		Name:  "search-all",
		Usage: "Fetch every result page, pacing requests and dropping duplicate headlines",
		Flags: queryFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			return runSearchAll(ctx, c)
		},
	}
}

// session bundles what one command invocation needs.
type session struct {
	cfg      config.Config
	client   *client.Client
	recorder diagnostics.Recorder
	redis    *redis.Client // nil without redis.addr
	logger   zerolog.Logger
	cleanup  []func() error
}

func (s *session) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		_ = s.cleanup[i]()
	}
}

func newSession(ctx context.Context, c *cli.Command) (*session, error) {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if u := c.String("base-url"); u != "" {
		cfg.BaseURL = u
	}
	if m := c.String("pacing"); m != "" {
		cfg.Pacing.Mode = m
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = c.Root().ErrWriter
	if c.Bool("debug") {
		logCfg.Level = logging.LevelDebug
	}
	logger, closeLog, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}

	s := &session{cfg: cfg, logger: logger, cleanup: []func() error{closeLog}}

	s.recorder = diagnostics.NewMemoryRecorder()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.cleanup = append(s.cleanup, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("connecting to redis %s: %w", cfg.Redis.Addr, err)
		}
		s.redis = redisClient
		s.recorder = diagnostics.NewRedisRecorder(redisClient, cfg.RedisTTL())
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Recorder = s.recorder
	s.client, err = client.New(clientCfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating client: %w", err)
	}
	s.cleanup = append(s.cleanup, s.client.Close)

	return s, nil
}

// paramsFromFlags builds Params in the order the flags are declared.
func paramsFromFlags(c *cli.Command) (query.Params, error) {
	var params []query.Param

	addString := func(flag, name string) {
		if c.IsSet(flag) {
			params = append(params, query.Param{Name: name, Value: query.String(c.String(flag))})
		}
	}
	addBool := func(flag, name string) {
		if c.IsSet(flag) {
			params = append(params, query.Param{Name: name, Value: query.Bool(c.Bool(flag))})
		}
	}

	addString("query", query.ParamQuery)
	if fq := c.StringSlice("fq"); len(fq) > 0 {
		filter, err := query.ParseFilterArgs(fq)
		if err != nil {
			return query.Params{}, fmt.Errorf("parsing --fq: %w", err)
		}
		params = append(params, query.Param{Name: query.ParamFilter, Value: query.Filter(filter)})
	}
	addString("begin-date", query.ParamBeginDate)
	addString("end-date", query.ParamEndDate)
	addString("sort", query.ParamSort)
	addString("fl", query.ParamFields)
	addBool("facet", query.ParamFacet)
	addString("facet-fields", query.ParamFacetFields)
	addBool("facet-filter", query.ParamFacetFilter)
	if c.IsSet("page") {
		params = append(params, query.Param{Name: query.ParamPage, Value: query.Int(c.Int("page"))})
	}

	return query.NewParams(params...)
}

func runSearch(ctx context.Context, c *cli.Command) error {
	params, err := paramsFromFlags(c)
	if err != nil {
		return err
	}
	extractor, err := selectExtractor(c)
	if err != nil {
		return err
	}

	s, err := newSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()

	page, err := s.client.Fetch(ctx, params)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if c.Bool("diagnostics") {
		if err := printRecord(c.Root().ErrWriter, page.Diagnostics); err != nil {
			return err
		}
	}

	s.logger.Info().Int("hits", page.Hits).Int("docs", len(page.Documents)).Msg("Search complete")
	return printDocuments(c.Root().Writer, page.Documents, extractor)
}

func runSearchAll(ctx context.Context, c *cli.Command) error {
	params, err := paramsFromFlags(c)
	if err != nil {
		return err
	}
	extractor, err := selectExtractor(c)
	if err != nil {
		return err
	}

	s, err := newSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()

	pacer, err := ratelimit.NewPacer(s.cfg.PacingConfig(), s.redis, s.logger)
	if err != nil {
		return fmt.Errorf("creating pacer: %w", err)
	}
	fetcher := pagination.NewFetcher(s.client, pacer, s.cfg.PaginationConfig(), s.logger)

	result, err := fetcher.FetchAll(ctx, params)
	if err != nil {
		return fmt.Errorf("search-all: %w", err)
	}

	if c.Bool("diagnostics") {
		rec, err := s.recorder.Last(ctx)
		if err != nil {
			return fmt.Errorf("reading diagnostics: %w", err)
		}
		if err := printRecord(c.Root().ErrWriter, rec); err != nil {
			return err
		}
	}

	return printDocuments(c.Root().Writer, result.Documents, extractor)
}

func selectExtractor(c *cli.Command) (*document.Extractor, error) {
	expr := c.String("select")
	if expr == "" {
		return nil, nil
	}
	return document.NewExtractor(expr)
}

// printDocuments writes one JSON value per line: the document itself, or each
// result of the extractor.
func printDocuments(w io.Writer, docs []document.Document, extractor *document.Extractor) error {
	enc := json.NewEncoder(w)
	for _, d := range docs {
		if extractor == nil {
			if err := enc.Encode(d); err != nil {
				return fmt.Errorf("writing document: %w", err)
			}
			continue
		}

		values, err := extractor.Values(d)
		if err != nil {
			return err
		}
		for _, v := range values {
			if err := enc.Encode(v); err != nil {
				return fmt.Errorf("writing value: %w", err)
			}
		}
	}
	return nil
}

func printRecord(w io.Writer, rec diagnostics.Record) error {
	if _, err := fmt.Fprintf(w, "request: %s\nquery:   %s\nstatus:  %d\n",
		rec.URL, rec.Query, rec.StatusCode); err != nil {
		return fmt.Errorf("writing diagnostics: %w", err)
	}
	return nil
}
