package cache

import (
	"context"
	"os"
	"strings"
	"sync"
)

const envPrefix = "PITCHWIRE_WEBHOOK_URL_"

// MemoryCache is an in-process WebhookURLCache. Lookups that miss the map
// fall back to PITCHWIRE_WEBHOOK_URL_<ID> environment variables, with the
// workflow ID upper-cased and dashes replaced by underscores.
type MemoryCache struct {
	mu   sync.RWMutex
	urls map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		urls: make(map[string]string),
	}
}

func (c *MemoryCache) Populate(_ context.Context, urls map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for workflowID, url := range urls {
		c.urls[workflowID] = url
	}

	return nil
}

func (c *MemoryCache) Resolve(_ context.Context, workflowID string) (string, error) {
	c.mu.RLock()
	url, ok := c.urls[workflowID]
	c.mu.RUnlock()

	if ok && url != "" {
		return url, nil
	}

	if fromEnv := os.Getenv(envKey(workflowID)); fromEnv != "" {
		return fromEnv, nil
	}

	return "", &URLError{WorkflowID: workflowID, Err: ErrURLNotFound}
}

func (c *MemoryCache) Set(_ context.Context, workflowID, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.urls[workflowID] = url

	return nil
}

func (c *MemoryCache) Close(_ context.Context) error {
	return nil
}

func envKey(workflowID string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(workflowID, "-", "_"))

	return envPrefix + normalized
}

var _ WebhookURLCache = (*MemoryCache)(nil)
