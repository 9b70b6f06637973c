package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pitchwire:webhook_url:"

// RedisCache stores webhook URLs in Redis so multiple API replicas share one
// populated cache.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis at addr and verifies the connection. A zero
// ttl keeps entries until the next Populate overwrites them.
func NewRedisCache(ctx context.Context, logger *slog.Logger, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "url_cache"),
	}, nil
}

func (c *RedisCache) Populate(ctx context.Context, urls map[string]string) error {
	pipe := c.client.Pipeline()

	for workflowID, url := range urls {
		pipe.Set(ctx, redisKeyPrefix+workflowID, url, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to populate webhook url cache: %w", err)
	}

	c.logger.InfoContext(ctx, "Webhook URL cache populated", "count", len(urls))

	return nil
}

func (c *RedisCache) Resolve(ctx context.Context, workflowID string) (string, error) {
	url, err := c.client.Get(ctx, redisKeyPrefix+workflowID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", &URLError{WorkflowID: workflowID, Err: ErrURLNotFound}
		}

		return "", &URLError{WorkflowID: workflowID, Err: err}
	}

	return url, nil
}

func (c *RedisCache) Set(ctx context.Context, workflowID, url string) error {
	if err := c.client.Set(ctx, redisKeyPrefix+workflowID, url, c.ttl).Err(); err != nil {
		return &URLError{WorkflowID: workflowID, Err: err}
	}

	return nil
}

func (c *RedisCache) Close(_ context.Context) error {
	return c.client.Close()
}

var _ WebhookURLCache = (*RedisCache)(nil)
