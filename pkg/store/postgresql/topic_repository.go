package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/store"
)

// TopicRepository handles used-topic ledger database operations.
type TopicRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTopicRepository creates a new topic repository.
func NewTopicRepository(db *sql.DB, logger *slog.Logger) *TopicRepository {
	return &TopicRepository{db: db, logger: logger}
}

// Create appends a ledger row.
func (r *TopicRepository) Create(ctx context.Context, topic *models.UsedTopic) error {
	if topic.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return &store.TopicError{Op: "Create", WorkflowID: topic.WorkflowID, Err: err}
		}

		topic.ID = id.String()
	}

	if topic.HeadlineHash == "" {
		topic.HeadlineHash = models.HeadlineHash(topic.Headline)
	}

	if topic.UsedAt.IsZero() {
		topic.UsedAt = time.Now().UTC()
	}

	metadataJSON, err := json.Marshal(topic.Metadata)
	if err != nil {
		return &store.TopicError{Op: "Create", WorkflowID: topic.WorkflowID, Err: fmt.Errorf("failed to marshal metadata: %w", err)}
	}

	query := `
		INSERT INTO used_topics (id, workflow_id, headline, headline_hash, used_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		topic.ID,
		topic.WorkflowID,
		topic.Headline,
		topic.HeadlineHash,
		topic.UsedAt,
		metadataJSON,
	)
	if err != nil {
		return &store.TopicError{Op: "Create", WorkflowID: topic.WorkflowID, Err: err}
	}

	return nil
}

// Recent returns a workflow's ledger rows used since the given time, newest
// first.
func (r *TopicRepository) Recent(ctx context.Context, workflowID string, since time.Time) ([]*models.UsedTopic, error) {
	query := `
		SELECT id, workflow_id, headline, headline_hash, used_at, metadata
		FROM used_topics
		WHERE workflow_id = $1 AND used_at > $2
		ORDER BY used_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, since)
	if err != nil {
		return nil, &store.TopicError{Op: "Recent", WorkflowID: workflowID, Err: err}
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	topics := make([]*models.UsedTopic, 0)

	for rows.Next() {
		var (
			topic        models.UsedTopic
			metadataJSON []byte
		)

		err = rows.Scan(&topic.ID, &topic.WorkflowID, &topic.Headline, &topic.HeadlineHash, &topic.UsedAt, &metadataJSON)
		if err != nil {
			return nil, &store.TopicError{Op: "Recent", WorkflowID: workflowID, Err: err}
		}

		if len(metadataJSON) > 0 {
			err = json.Unmarshal(metadataJSON, &topic.Metadata)
			if err != nil {
				return nil, &store.TopicError{Op: "Recent", WorkflowID: workflowID, Err: fmt.Errorf("failed to unmarshal metadata: %w", err)}
			}
		}

		topics = append(topics, &topic)
	}

	err = rows.Err()
	if err != nil {
		return nil, &store.TopicError{Op: "Recent", WorkflowID: workflowID, Err: err}
	}

	return topics, nil
}

// DeleteBefore removes ledger rows older than the cutoff.
func (r *TopicRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM used_topics WHERE used_at < $1`, cutoff)
	if err != nil {
		return 0, &store.TopicError{Op: "DeleteBefore", Err: err}
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, &store.TopicError{Op: "DeleteBefore", Err: err}
	}

	return int(deleted), nil
}
