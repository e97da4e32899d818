package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyLast is the Redis key holding the last request record.
const RedisKeyLast = "nyt:diagnostics:last"

var (
	// ErrNoRecord indicates no request has been recorded yet.
	ErrNoRecord = errors.New("no request recorded")

	// ErrInvalidRecord indicates the stored record could not be decoded.
	ErrInvalidRecord = errors.New("invalid diagnostics record")
)

// Recorder keeps the most recent request record. Each call to Record
// overwrites the previous one.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Last(ctx context.Context) (Record, error)
}

// MemoryRecorder keeps the last record in process memory.
type MemoryRecorder struct {
	mu   sync.RWMutex
	last *Record
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record stores rec as the last request.
func (m *MemoryRecorder) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &rec
	RecordsTotal.WithLabelValues("memory").Inc()
	return nil
}

// Last returns the last request or ErrNoRecord.
func (m *MemoryRecorder) Last(_ context.Context) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Record{}, ErrNoRecord
	}
	return *m.last, nil
}

// RedisRecorder keeps the last record in Redis so it is visible to other
// processes sharing the same API key, e.g. a proxy and a CLI.
type RedisRecorder struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisRecorder creates a Redis-backed recorder. A ttl of 0 keeps the
// record until it is overwritten.
func NewRedisRecorder(redisClient *redis.Client, ttl time.Duration) *RedisRecorder {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisRecorder{
		redis: redisClient,
		key:   RedisKeyLast,
		ttl:   ttl,
	}
}

// Record stores rec as the last request.
func (r *RedisRecorder) Record(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		RecordErrors.WithLabelValues("redis", "record").Inc()
		return fmt.Errorf("marshal diagnostics record: %w", err)
	}

	if err := r.redis.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		RecordErrors.WithLabelValues("redis", "record").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	RecordsTotal.WithLabelValues("redis").Inc()
	return nil
}

// Last returns the last request or ErrNoRecord.
func (r *RedisRecorder) Last(ctx context.Context) (Record, error) {
	data, err := r.redis.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Record{}, ErrNoRecord
		}
		RecordErrors.WithLabelValues("redis", "last").Inc()
		return Record{}, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		RecordErrors.WithLabelValues("redis", "last").Inc()
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	return rec, nil
}

// Clear removes the stored record.
func (r *RedisRecorder) Clear(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key).Err(); err != nil {
		RecordErrors.WithLabelValues("redis", "clear").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
