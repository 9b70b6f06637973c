// Package dedup tracks recently used headlines so consecutive newsletter
// runs do not repeat the same stories.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/store"
)

const (
	// DefaultFreshness bounds how far back RecentHeadlines looks.
	DefaultFreshness = 24 * time.Hour
	// DefaultRetention bounds how long recorded topics are kept at all.
	DefaultRetention = 48 * time.Hour
)

// Ledger is the used-topic bookkeeping around a TopicRepository. Hashing and
// normalization live in the models package; the ledger adds windowing.
type Ledger struct {
	topics    store.TopicRepository
	freshness time.Duration
	retention time.Duration
	logger    *slog.Logger
}

func NewLedger(logger *slog.Logger, topics store.TopicRepository) *Ledger {
	return &Ledger{
		topics:    topics,
		freshness: DefaultFreshness,
		retention: DefaultRetention,
		logger:    logger.With("module", "dedup"),
	}
}

// Record stores one used headline for a workflow.
func (l *Ledger) Record(ctx context.Context, workflowID, headline string, metadata map[string]any) error {
	topic := &models.UsedTopic{
		WorkflowID: workflowID,
		Headline:   headline,
		Metadata:   metadata,
	}

	if err := l.topics.CreateUsedTopic(ctx, topic); err != nil {
		return fmt.Errorf("failed to record used topic: %w", err)
	}

	return nil
}

// RecordAll stores every headline, continuing past individual failures. A
// missed record means one possible repeat, not a broken run.
func (l *Ledger) RecordAll(ctx context.Context, workflowID string, headlines []string) {
	for _, headline := range headlines {
		if headline == "" {
			continue
		}

		if err := l.Record(ctx, workflowID, headline, nil); err != nil {
			l.logger.WarnContext(ctx, "Failed to record used topic",
				"workflow_id", workflowID,
				"headline_hash", models.HeadlineHash(headline),
				"error", err)
		}
	}
}

// RecentHeadlines returns the headlines used inside the freshness window,
// newest first. The router injects these into trigger payloads so generation
// steps can avoid them.
func (l *Ledger) RecentHeadlines(ctx context.Context, workflowID string) ([]string, error) {
	since := time.Now().UTC().Add(-l.freshness)

	topics, err := l.topics.RecentTopics(ctx, workflowID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent topics: %w", err)
	}

	headlines := make([]string, 0, len(topics))
	for _, topic := range topics {
		headlines = append(headlines, topic.Headline)
	}

	return headlines, nil
}

// Cleanup deletes topics older than the retention window and returns how many
// rows were removed.
func (l *Ledger) Cleanup(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-l.retention)

	deleted, err := l.topics.DeleteTopicsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up used topics: %w", err)
	}

	if deleted > 0 {
		l.logger.InfoContext(ctx, "Cleaned up used topics", "deleted", deleted, "cutoff", cutoff)
	}

	return deleted, nil
}

// WithWindows overrides the freshness and retention windows. Zero values keep
// the defaults.
func (l *Ledger) WithWindows(freshness, retention time.Duration) *Ledger {
	if freshness > 0 {
		l.freshness = freshness
	}

	if retention > 0 {
		l.retention = retention
	}

	return l
}
