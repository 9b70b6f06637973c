package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_PopulateThenResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Populate(ctx, map[string]string{
		"daily-digest":  "https://engine.example.com/webhook/daily-digest",
		"match-preview": "https://engine.example.com/webhook/match-preview",
	}))

	url, err := c.Resolve(ctx, "daily-digest")
	require.NoError(t, err)
	assert.Equal(t, "https://engine.example.com/webhook/daily-digest", url)
}

func TestMemoryCache_MissReturnsNotFound(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()

	_, err := c.Resolve(context.Background(), "unknown-workflow")
	require.Error(t, err)
	assert.True(t, IsURLNotFound(err))

	var urlErr *URLError
	require.ErrorAs(t, err, &urlErr)
	assert.Equal(t, "unknown-workflow", urlErr.WorkflowID)
}

func TestMemoryCache_EnvFallback(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	t.Setenv("PITCHWIRE_WEBHOOK_URL_DAILY_DIGEST", "https://engine.example.com/env-webhook")

	url, err := c.Resolve(ctx, "daily-digest")
	require.NoError(t, err)
	assert.Equal(t, "https://engine.example.com/env-webhook", url)
}

func TestMemoryCache_PopulateWinsOverEnv(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	t.Setenv("PITCHWIRE_WEBHOOK_URL_DAILY_DIGEST", "https://engine.example.com/env-webhook")
	require.NoError(t, c.Populate(ctx, map[string]string{
		"daily-digest": "https://engine.example.com/populated",
	}))

	url, err := c.Resolve(ctx, "daily-digest")
	require.NoError(t, err)
	assert.Equal(t, "https://engine.example.com/populated", url)
}

func TestMemoryCache_SetOverwrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, "daily-digest", "https://engine.example.com/v1"))
	require.NoError(t, c.Set(ctx, "daily-digest", "https://engine.example.com/v2"))

	url, err := c.Resolve(ctx, "daily-digest")
	require.NoError(t, err)
	assert.Equal(t, "https://engine.example.com/v2", url)
}

func TestEnvKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "PITCHWIRE_WEBHOOK_URL_DAILY_DIGEST", envKey("daily-digest"))
	assert.Equal(t, "PITCHWIRE_WEBHOOK_URL_MATCH_PREVIEW", envKey("match-preview"))
}
