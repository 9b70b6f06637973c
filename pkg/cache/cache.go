// Package cache provides webhook URL resolution for compiled workflows. The
// router looks up the engine webhook URL for a workflow here instead of
// re-reading manifests on every trigger.
package cache

import (
	"context"
	"errors"
	"fmt"
)

// ErrURLNotFound is returned when no webhook URL is known for a workflow.
var ErrURLNotFound = errors.New("webhook url not found")

// URLError wraps a cache failure with the workflow it concerns.
type URLError struct {
	WorkflowID string
	Err        error
}

func (e *URLError) Error() string {
	return fmt.Sprintf("webhook url cache: workflow %s: %v", e.WorkflowID, e.Err)
}

func (e *URLError) Unwrap() error {
	return e.Err
}

// WebhookURLCache maps workflow IDs to the engine webhook URLs that trigger
// them. Populate is called once at startup from the loaded manifests; Resolve
// serves reads afterwards.
type WebhookURLCache interface {
	Populate(ctx context.Context, urls map[string]string) error
	Resolve(ctx context.Context, workflowID string) (string, error)
	Set(ctx context.Context, workflowID, url string) error
	Close(ctx context.Context) error
}

// IsURLNotFound reports whether err indicates a missing webhook URL.
func IsURLNotFound(err error) bool {
	return errors.Is(err, ErrURLNotFound)
}
