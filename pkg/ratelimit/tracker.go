package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/nyt-search-client/pkg/pacing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for shared quota tracking.
var (
	reservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nyt_ratelimit_reservations_total",
		Help: "Total number of request slots reserved in the shared quota",
	})

	reservationWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nyt_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a reserved request slot",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 6, 12, 30, 60},
	})

	reservationErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nyt_ratelimit_errors_total",
		Help: "Total number of failed slot reservations",
	})
)

// reserveScript atomically takes the next slot.
// KEYS[1] next slot key; ARGV[1] now (ms); ARGV[2] delay (ms). Returns the slot (ms).
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local delay = tonumber(ARGV[2])
local prev = tonumber(redis.call('GET', KEYS[1]) or '0')
local slot = now + delay
if prev + delay > slot then
	slot = prev + delay
end
redis.call('SET', KEYS[1], slot, 'PX', slot - now + delay)
return slot
`)

// Tracker spaces requests across processes. It implements pacing.Pacer.
type Tracker struct {
	redis  *redis.Client
	key    string
	delay  time.Duration
	logger zerolog.Logger
}

// NewTracker creates a shared quota tracker. Panics if redisClient is nil.
func NewTracker(redisClient *redis.Client, delay time.Duration, logger zerolog.Logger) *Tracker {
	if redisClient == nil {
		panic("ratelimit: redis client must not be nil")
	}
	return &Tracker{
		redis:  redisClient,
		key:    RedisKeyNextSlot,
		delay:  delay,
		logger: logger.With().Str("component", "ratelimit").Logger(),
	}
}

// Delay returns the spacing between consecutive requests.
func (t *Tracker) Delay() time.Duration { return t.delay }

// GetState retrieves the current quota state from Redis.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	state := &QuotaState{Delay: t.delay}

	ms, err := t.redis.Get(ctx, t.key).Int64()
	if errors.Is(err, redis.Nil) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get next slot: %w", err)
	}

	state.NextSlot = time.UnixMilli(ms)
	return state, nil
}

// Reserve claims the next request slot and returns when it begins.
func (t *Tracker) Reserve(ctx context.Context) (time.Time, error) {
	now := time.Now()
	ms, err := reserveScript.Run(ctx, t.redis, []string{t.key},
		now.UnixMilli(), t.delay.Milliseconds()).Int64()
	if err != nil {
		reservationErrorsTotal.Inc()
		return time.Time{}, fmt.Errorf("reserve request slot: %w", err)
	}
	reservationsTotal.Inc()
	return time.UnixMilli(ms), nil
}

// WaitTurn reserves a slot and blocks until it begins or ctx is done.
func (t *Tracker) WaitTurn(ctx context.Context) error {
	slot, err := t.Reserve(ctx)
	if err != nil {
		return err
	}

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}

	t.logger.Debug().
		Dur("wait", wait).
		Time("slot", slot).
		Msg("Waiting for shared request slot")

	start := time.Now()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		reservationWaitSeconds.Observe(time.Since(start).Seconds())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shared pacing wait: %w", ctx.Err())
	}
}

// NewPacer builds the Pacer for cfg. ModeShared uses redisClient; every
// other mode is delegated to pacing.New.
func NewPacer(cfg pacing.Config, redisClient *redis.Client, logger zerolog.Logger) (pacing.Pacer, error) {
	if cfg.Mode != pacing.ModeShared {
		return pacing.New(cfg, logger)
	}
	if redisClient == nil {
		return nil, fmt.Errorf("pacing mode %q requires redis", cfg.Mode)
	}
	if cfg.Delay <= 0 {
		return nil, fmt.Errorf("shared pacing delay must be > 0 (got %s)", cfg.Delay)
	}
	return NewTracker(redisClient, cfg.Delay, logger), nil
}

var _ pacing.Pacer = (*Tracker)(nil)
