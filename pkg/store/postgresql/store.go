package postgresql

import (
	"context"
	"time"

	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/store"
)

// CreateTrace appends a trace row.
func (s *Store) CreateTrace(ctx context.Context, trace *models.Trace) error {
	return s.traceRepo.Create(ctx, trace)
}

// FinalizeTriggerTrace applies the single allowed trace mutation.
func (s *Store) FinalizeTriggerTrace(ctx context.Context, id string, status models.TraceStatus, respondedAt time.Time) error {
	return s.traceRepo.FinalizeTrigger(ctx, id, status, respondedAt)
}

// TraceByID returns a single trace row.
func (s *Store) TraceByID(ctx context.Context, id string) (*models.Trace, error) {
	return s.traceRepo.GetByID(ctx, id)
}

// TracesByTraceID returns every row of one logical run.
func (s *Store) TracesByTraceID(ctx context.Context, traceID string) ([]*models.Trace, error) {
	return s.traceRepo.GetByTraceID(ctx, traceID)
}

// ListTraces filters and paginates all trace rows.
func (s *Store) ListTraces(ctx context.Context, req store.ListTracesRequest) (*store.TracePage, error) {
	return s.traceRepo.List(ctx, req)
}

// CreateExecution persists a new execution aggregate.
func (s *Store) CreateExecution(ctx context.Context, execution *models.Execution) error {
	return s.executionRepo.Create(ctx, execution)
}

// ExecutionByID returns one execution.
func (s *Store) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	return s.executionRepo.GetByID(ctx, id)
}

// ExecutionByTraceID resolves the execution opened for a logical run.
func (s *Store) ExecutionByTraceID(ctx context.Context, traceID string) (*models.Execution, error) {
	return s.executionRepo.GetByTraceID(ctx, traceID)
}

// UpdateExecutionStatus merges a status transition monotonically.
func (s *Store) UpdateExecutionStatus(ctx context.Context, id string, update store.ExecutionUpdate) (*models.Execution, error) {
	return s.executionRepo.UpdateStatus(ctx, id, update)
}

// ExecutionsByWorkflow lists a workflow's executions.
func (s *Store) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return s.executionRepo.ListByWorkflow(ctx, workflowID)
}

// CreateUsedTopic appends a dedup ledger row.
func (s *Store) CreateUsedTopic(ctx context.Context, topic *models.UsedTopic) error {
	return s.topicRepo.Create(ctx, topic)
}

// RecentTopics returns fresh ledger rows for a workflow.
func (s *Store) RecentTopics(ctx context.Context, workflowID string, since time.Time) ([]*models.UsedTopic, error) {
	return s.topicRepo.Recent(ctx, workflowID, since)
}

// DeleteTopicsBefore removes ledger rows older than the cutoff.
func (s *Store) DeleteTopicsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return s.topicRepo.DeleteBefore(ctx, cutoff)
}
