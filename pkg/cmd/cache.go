package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchwire/pitchwire/pkg/cache"
	"github.com/redis/go-redis/v9"
)

const defaultURLCacheTTL = 24 * time.Hour

// NewURLCache creates a webhook URL cache. An empty URL yields the in-memory
// cache; a redis:// URL connects to Redis.
func NewURLCache(ctx context.Context, logger *slog.Logger, redisURL string) (cache.WebhookURLCache, error) {
	if redisURL == "" {
		return cache.NewMemoryCache(), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return cache.NewRedisCache(ctx, logger, opts.Addr, opts.Password, opts.DB, defaultURLCacheTTL)
}
