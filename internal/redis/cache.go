package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/points-economy/internal/config"
	"github.com/points-economy/internal/domain"
	"github.com/redis/go-redis/v9"
)

// previousTTL bounds how long a superseded snapshot is kept for the
// rank-change computation.
const previousTTL = 48 * time.Hour

// Cache provides Redis-based caching for leaderboard snapshots and user
// display names. Everything here is eventually consistent by design and
// never participates in the heist critical section.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// snapshotKey returns the Redis key for the current snapshot of a scope
// and period.
func (c *Cache) snapshotKey(scope domain.Scope, period domain.Period) string {
	return fmt.Sprintf("ranking:%s:%s", scope.Key(), period)
}

// previousKey returns the Redis key for the superseded snapshot.
func (c *Cache) previousKey(scope domain.Scope, period domain.Period) string {
	return c.snapshotKey(scope, period) + ":prev"
}

// nameKey returns the Redis key for a user's cached display name.
func (c *Cache) nameKey(userID string) string {
	return fmt.Sprintf("user:%s:name", userID)
}

// GetSnapshot returns the cached snapshot or nil on a miss.
func (c *Cache) GetSnapshot(ctx context.Context, scope domain.Scope, period domain.Period) (*domain.LeaderboardSnapshot, error) {
	return c.getSnapshot(ctx, c.snapshotKey(scope, period))
}

// PreviousSnapshot returns the most recently stored snapshot regardless
// of the current slot's TTL; it is the baseline for rank-change deltas.
func (c *Cache) PreviousSnapshot(ctx context.Context, scope domain.Scope, period domain.Period) (*domain.LeaderboardSnapshot, error) {
	return c.getSnapshot(ctx, c.previousKey(scope, period))
}

func (c *Cache) getSnapshot(ctx context.Context, key string) (*domain.LeaderboardSnapshot, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}

	var snapshot domain.LeaderboardSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snapshot, nil
}

// SetSnapshot stores a freshly computed snapshot under the current slot
// with the given TTL, and under the longer-lived previous slot so the
// next computation has a baseline even after the current slot expires.
func (c *Cache) SetSnapshot(ctx context.Context, snapshot *domain.LeaderboardSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.snapshotKey(snapshot.Scope, snapshot.Period), data, ttl)
	pipe.Set(ctx, c.previousKey(snapshot.Scope, snapshot.Period), data, previousTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting snapshot: %w", err)
	}
	return nil
}

// InvalidateSnapshot drops the cached snapshot for a scope and period.
func (c *Cache) InvalidateSnapshot(ctx context.Context, scope domain.Scope, period domain.Period) error {
	if err := c.client.Del(ctx, c.snapshotKey(scope, period)).Err(); err != nil {
		return fmt.Errorf("invalidating snapshot: %w", err)
	}
	return nil
}

// SetUserName caches a user's display name for leaderboard rows.
func (c *Cache) SetUserName(ctx context.Context, userID, name string) error {
	if err := c.client.Set(ctx, c.nameKey(userID), name, 0).Err(); err != nil {
		return fmt.Errorf("setting user name: %w", err)
	}
	return nil
}

// UserNames resolves cached display names for a set of users. Users with
// no cached name are absent from the result.
func (c *Cache) UserNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	if len(userIDs) == 0 {
		return map[string]string{}, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.nameKey(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("getting user names: %w", err)
	}

	names := make(map[string]string, len(userIDs))
	for i, v := range values {
		if s, ok := v.(string); ok && s != "" {
			names[userIDs[i]] = s
		}
	}
	return names, nil
}
