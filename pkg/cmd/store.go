// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pitchwire/pitchwire/pkg/store"
	"github.com/pitchwire/pitchwire/pkg/store/file"
	"github.com/pitchwire/pitchwire/pkg/store/postgresql"
)

var supportedStoreProviders = []string{"file", "postgres", "postgresql"}

// NewStore creates a store instance based on the database URL scheme.
// Unknown schemes fall back to the file store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (store.Store, error) {
	provider := parseStoreProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewStore(ctx, logger, databaseURL)
	default:
		return file.NewStore(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parseStoreProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedStoreProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
