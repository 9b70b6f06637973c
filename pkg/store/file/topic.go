package file

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/store"
)

// CreateUsedTopic appends a ledger row, hashing the headline when the caller
// did not.
func (s *Store) CreateUsedTopic(_ context.Context, topic *models.UsedTopic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if topic.ID == "" {
		id, err := newID()
		if err != nil {
			return &store.TopicError{Op: "Create", WorkflowID: topic.WorkflowID, Err: err}
		}

		topic.ID = id
	}

	if topic.HeadlineHash == "" {
		topic.HeadlineHash = models.HeadlineHash(topic.Headline)
	}

	if topic.UsedAt.IsZero() {
		topic.UsedAt = time.Now().UTC()
	}

	err := s.writeRecord(topicsDir, topic.ID, topic)
	if err != nil {
		return &store.TopicError{Op: "Create", WorkflowID: topic.WorkflowID, Err: err}
	}

	return nil
}

// RecentTopics returns a workflow's ledger rows used since the given time,
// newest first.
func (s *Store) RecentTopics(_ context.Context, workflowID string, since time.Time) ([]*models.UsedTopic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]*models.UsedTopic, 0)

	err := s.eachRecord(topicsDir,
		func() any { return &models.UsedTopic{} },
		func(record any) error {
			topic, ok := record.(*models.UsedTopic)
			if !ok {
				return fmt.Errorf("unexpected record type %T", record)
			}

			if topic.WorkflowID == workflowID && topic.UsedAt.After(since) {
				topics = append(topics, topic)
			}

			return nil
		})
	if err != nil {
		return nil, &store.TopicError{Op: "Recent", WorkflowID: workflowID, Err: err}
	}

	sort.Slice(topics, func(i, j int) bool {
		return topics[i].UsedAt.After(topics[j].UsedAt)
	})

	return topics, nil
}

// DeleteTopicsBefore removes ledger rows older than the cutoff and returns
// how many were deleted.
func (s *Store) DeleteTopicsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]string, 0)

	err := s.eachRecord(topicsDir,
		func() any { return &models.UsedTopic{} },
		func(record any) error {
			topic, ok := record.(*models.UsedTopic)
			if !ok {
				return fmt.Errorf("unexpected record type %T", record)
			}

			if topic.UsedAt.Before(cutoff) {
				expired = append(expired, topic.ID)
			}

			return nil
		})
	if err != nil {
		return 0, &store.TopicError{Op: "DeleteBefore", Err: err}
	}

	for _, id := range expired {
		err = os.Remove(s.path(topicsDir, id))
		if err != nil {
			return 0, &store.TopicError{Op: "DeleteBefore", Err: err}
		}
	}

	return len(expired), nil
}
