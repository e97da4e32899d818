// Package pacing spaces out requests to stay under the search API's
// per-window request cap.
package pacing

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for pacing.
var (
	pacingWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nyt_pacing_wait_seconds",
		Help:    "Time spent waiting between search requests",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 6, 12, 30},
	}, []string{"pacer"})

	pacingCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nyt_pacing_cancelled_total",
		Help: "Total number of pacing waits interrupted by context cancellation",
	}, []string{"pacer"})
)

// DefaultDelay is the pause between consecutive requests. The article search
// API allows 10 requests per minute.
const DefaultDelay = 6 * time.Second

// Pacer blocks until the next request may be issued.
type Pacer interface {
	WaitTurn(ctx context.Context) error
}

// PacerFunc adapts a function to the Pacer interface.
type PacerFunc func(ctx context.Context) error

// WaitTurn calls f.
func (f PacerFunc) WaitTurn(ctx context.Context) error { return f(ctx) }

// NopPacer never waits.
type NopPacer struct{}

// WaitTurn returns immediately.
func (NopPacer) WaitTurn(context.Context) error { return nil }

// DelayPacer pauses for a fixed delay on every call.
type DelayPacer struct {
	delay  time.Duration
	logger zerolog.Logger
}

// NewDelayPacer creates a fixed-delay pacer.
func NewDelayPacer(delay time.Duration, logger zerolog.Logger) *DelayPacer {
	return &DelayPacer{
		delay:  delay,
		logger: logger,
	}
}

// Delay returns the configured pause.
func (p *DelayPacer) Delay() time.Duration { return p.delay }

// WaitTurn sleeps for the configured delay or until ctx is done.
func (p *DelayPacer) WaitTurn(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}

	p.logger.Debug().Dur("delay", p.delay).Msg("Pacing before next request")

	start := time.Now()
	timer := time.NewTimer(p.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		pacingCancelledTotal.WithLabelValues("delay").Inc()
		return fmt.Errorf("pacing wait: %w", ctx.Err())
	case <-timer.C:
	}

	pacingWaitSeconds.WithLabelValues("delay").Observe(time.Since(start).Seconds())
	return nil
}

// LimiterPacer admits requests at a steady rate with an optional burst,
// using a token bucket. The request that precedes the first WaitTurn is
// charged when the pacer is created.
type LimiterPacer struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewLimiterPacer creates a token-bucket pacer allowing requestsPerMinute
// requests per minute and up to burst back-to-back requests.
func NewLimiterPacer(requestsPerMinute, burst int, logger zerolog.Logger) (*LimiterPacer, error) {
	if requestsPerMinute <= 0 {
		return nil, fmt.Errorf("requests_per_minute must be > 0 (got %d)", requestsPerMinute)
	}
	if burst <= 0 {
		burst = 1
	}

	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	limiter.Allow()

	logger.Debug().
		Float64("limit_per_second", float64(limiter.Limit())).
		Int("burst", burst).
		Msg("Limiter pacer configured")

	return &LimiterPacer{
		limiter: limiter,
		logger:  logger,
	}, nil
}

// WaitTurn blocks until the token bucket admits another request.
func (p *LimiterPacer) WaitTurn(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		pacingCancelledTotal.WithLabelValues("limiter").Inc()
		return fmt.Errorf("pacing wait: %w", err)
	}

	waited := time.Since(start)
	pacingWaitSeconds.WithLabelValues("limiter").Observe(waited.Seconds())
	p.logger.Debug().Dur("waited", waited).Msg("Limiter admitted next request")
	return nil
}
