package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"hangar/internal/hosting"
	"hangar/pkg/domain"
	"hangar/pkg/platform/sentinel"
)

var loadDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "hangar_registry_store_load_duration_ms",
	Help:    "Latency of registry snapshot loads in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	sitesKey  = "registry:sites"
	countsKey = "registry:counts"
)

// RedisStore shares one snapshot across engine instances. Counts live in a
// hash so optimistic post-allocation bumps are atomic increments instead of
// read-modify-write races.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client; its lifecycle stays with the caller.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type sitesDoc struct {
	Sites     []hosting.Site `json:"sites"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	defer func() {
		loadDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	raw, err := s.client.Get(ctx, sitesKey).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load registry snapshot: %w", err)
	}

	var doc sitesDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode registry snapshot: %w", err)
	}

	fields, err := s.client.HGetAll(ctx, countsKey).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("load registry counts: %w", err)
	}
	counts := make(map[domain.SiteID]int, len(fields))
	for field, value := range fields {
		count, err := strconv.Atoi(value)
		if err != nil {
			count = CountUnknown
		}
		counts[domain.SiteID(field)] = count
	}

	return Snapshot{Sites: doc.Sites, Counts: counts, FetchedAt: doc.FetchedAt}, nil
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(sitesDoc{Sites: snap.Sites, FetchedAt: snap.FetchedAt})
	if err != nil {
		return fmt.Errorf("encode registry snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sitesKey, raw, 0)
	pipe.Del(ctx, countsKey)
	if len(snap.Counts) > 0 {
		fields := make(map[string]any, len(snap.Counts))
		for id, count := range snap.Counts {
			fields[id.String()] = count
		}
		pipe.HSet(ctx, countsKey, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save registry snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Increment(ctx context.Context, id domain.SiteID) error {
	value, err := s.client.HGet(ctx, countsKey, id.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry count: %w", err)
	}
	if count, convErr := strconv.Atoi(value); convErr != nil || count == CountUnknown {
		return nil
	}
	if err := s.client.HIncrBy(ctx, countsKey, id.String(), 1).Err(); err != nil {
		return fmt.Errorf("bump registry count: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, sitesKey, countsKey).Err(); err != nil {
		return fmt.Errorf("clear registry snapshot: %w", err)
	}
	return nil
}
