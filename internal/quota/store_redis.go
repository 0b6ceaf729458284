package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var opDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "hangar_quota_store_op_duration_ms",
	Help:    "Latency of daily quota store operations in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
}, []string{"op"})

// dayKeyTTL keeps spent days around long enough for timezone stragglers and
// post-hoc inspection, then lets them expire on their own.
const dayKeyTTL = 48 * time.Hour

// RedisStore shares the daily issuance count across engine instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client; its lifecycle stays with the caller.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(day string) string {
	return "quota:issued:" + day
}

func (s *RedisStore) IssuedOn(ctx context.Context, day string) (int, error) {
	start := time.Now()
	defer func() {
		opDurationMs.WithLabelValues("issued_on").Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	raw, err := s.client.Get(ctx, key(day)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read issued count for %s: %w", day, err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse issued count for %s: %w", day, err)
	}
	return n, nil
}

func (s *RedisStore) AddIssued(ctx context.Context, day string, n int) (int, error) {
	start := time.Now()
	defer func() {
		opDurationMs.WithLabelValues("add_issued").Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key(day), int64(n))
	pipe.Expire(ctx, key(day), dayKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("add issued count for %s: %w", day, err)
	}
	return int(incr.Val()), nil
}
