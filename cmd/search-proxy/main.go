// Command search-proxy exposes the article search client over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/nyt-search-client/internal/config"
	"github.com/Sternrassler/nyt-search-client/pkg/client"
	"github.com/Sternrassler/nyt-search-client/pkg/diagnostics"
	"github.com/Sternrassler/nyt-search-client/pkg/logging"
	"github.com/Sternrassler/nyt-search-client/pkg/pagination"
	"github.com/Sternrassler/nyt-search-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadOrDefault(os.Getenv("NYT_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger, closeLog, err := logging.Setup(cfg.LoggingConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer closeLog()

	// Diagnostics: Redis when configured, memory otherwise
	var (
		redisClient *redis.Client
		recorder    diagnostics.Recorder = diagnostics.NewMemoryRecorder()
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		recorder = diagnostics.NewRedisRecorder(redisClient, cfg.RedisTTL())
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Recorder = recorder
	searchClient, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create search client")
	}
	defer searchClient.Close()

	pacer, err := ratelimit.NewPacer(cfg.PacingConfig(), redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create pacer")
	}
	// Consecutive proxy requests share one pacing schedule.
	paginationCfg := cfg.PaginationConfig()
	paginationCfg.PaceAfterLast = true
	fetcher := pagination.NewFetcher(searchClient, pacer, paginationCfg, logger)

	srv := &server{
		pages:    searchClient,
		fetcher:  fetcher,
		pacer:    pacer,
		recorder: recorder,
		redis:    redisClient,
		logger:   logging.NewLogger("search-proxy"),
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info().
			Str("addr", addr).
			Str("base_url", cfg.BaseURL).
			Str("pacing", cfg.Pacing.Mode).
			Msg("Starting search proxy")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-quit
	logger.Info().Msg("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSec)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}

	logger.Info().Msg("Server stopped")
}
