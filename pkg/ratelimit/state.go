// Package ratelimit shares the article search request quota between every
// process that uses the same API key. The next free request slot is kept in
// Redis, so a CLI run and a running proxy never exceed the quota together.
package ratelimit

import (
	"time"
)

// Redis keys for quota state storage.
const (
	RedisKeyNextSlot = "nyt:ratelimit:next_slot"
)

// QuotaState is the shared view of the request quota.
type QuotaState struct {
	// NextSlot is the earliest time any process may issue its next request.
	// Zero when no request has been made recently.
	NextSlot time.Time `json:"next_slot"`

	// Delay is the spacing each reservation adds.
	Delay time.Duration `json:"delay"`
}

// IsIdle reports whether a request may be issued immediately.
func (s *QuotaState) IsIdle(now time.Time) bool {
	return !s.NextSlot.After(now)
}

// TimeUntilNextSlot returns how long a caller would wait for the next slot.
func (s *QuotaState) TimeUntilNextSlot(now time.Time) time.Duration {
	if s.IsIdle(now) {
		return 0
	}
	return s.NextSlot.Sub(now)
}
