package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/timchenkailiang/bilibili-live-bot/pkg/log"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Redis key pattern:
// dedup:{event_key}   STRING "1"   PX=window  - set if the event was dispatched
type RedisWindow struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisWindow creates a Redis-backed dedup window, for running
// redundant monitor processes against the same room.
func NewRedisWindow(cfg RedisConfig, ttl time.Duration) (*RedisWindow, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisWindow{client: client, ttl: ttl}, nil
}

func (w *RedisWindow) Seen(ctx context.Context, key string) bool {
	fresh, err := w.client.SetNX(ctx, dedupKey(key), 1, w.ttl).Result()
	if err != nil {
		log.L().Warn().Err(err).Msg("dedup store unavailable, treating event as new")
		return false
	}
	return !fresh
}

// Close closes the Redis connection.
func (w *RedisWindow) Close() error {
	return w.client.Close()
}

func dedupKey(key string) string {
	return fmt.Sprintf("dedup:%s", key)
}
