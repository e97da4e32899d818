package pacing

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Mode selects the pacing strategy.
type Mode string

const (
	// ModeDelay sleeps a fixed delay after every request.
	ModeDelay Mode = "delay"

	// ModeLimiter uses a token bucket sized to the service's request cap.
	ModeLimiter Mode = "limiter"

	// ModeNone disables pacing. Only for tests and mock servers.
	ModeNone Mode = "none"

	// ModeShared spaces requests across every process using the same Redis.
	// It is built by ratelimit.NewPacer, which owns the Redis client.
	ModeShared Mode = "shared"
)

// Config holds the pacing policy.
type Config struct {
	Mode Mode

	// Delay is used by ModeDelay and ModeShared.
	Delay time.Duration

	// RequestsPerMinute and Burst are used by ModeLimiter.
	RequestsPerMinute int
	Burst             int
}

// DefaultConfig returns the policy matching the service's published limit.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeDelay,
		Delay:             DefaultDelay,
		RequestsPerMinute: 10,
		Burst:             1,
	}
}

// New builds the Pacer described by cfg.
func New(cfg Config, logger zerolog.Logger) (Pacer, error) {
	switch cfg.Mode {
	case ModeDelay, "":
		if cfg.Delay < 0 {
			return nil, fmt.Errorf("delay must be >= 0 (got %s)", cfg.Delay)
		}
		return NewDelayPacer(cfg.Delay, logger), nil
	case ModeLimiter:
		return NewLimiterPacer(cfg.RequestsPerMinute, cfg.Burst, logger)
	case ModeNone:
		return NopPacer{}, nil
	case ModeShared:
		return nil, fmt.Errorf("pacing mode %q requires a redis client", cfg.Mode)
	default:
		return nil, fmt.Errorf("unknown pacing mode %q", cfg.Mode)
	}
}
