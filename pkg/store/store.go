// Package store provides the data storage abstraction for traces, executions
// and the used-topic ledger.
package store

import (
	"context"
	"time"

	"github.com/pitchwire/pitchwire/pkg/models"
)

// ListTracesRequest filters and paginates the admin trace listing.
type ListTracesRequest struct {
	WorkflowID string
	Status     models.TraceStatus
	Limit      int
	Offset     int
}

// TracePage is one page of trace rows.
type TracePage struct {
	Traces      []*models.Trace `json:"traces"`
	TotalCount  int             `json:"total_count"`
	HasNextPage bool            `json:"has_next_page"`
}

// ExecutionUpdate carries one status transition plus the optional fields that
// arrive with it. Implementations must apply the status-priority merge: a
// running write never replaces a persisted terminal status, whatever the
// interleaving of callbacks and pollers.
type ExecutionUpdate struct {
	Status              models.ExecutionStatus
	FinalOutput         map[string]any
	ExternalExecutionID string
	At                  time.Time
}

// TraceRepository persists the append-only trace history. Rows are never
// deleted; only the trigger row receives its one finalization update.
type TraceRepository interface {
	CreateTrace(ctx context.Context, trace *models.Trace) error
	FinalizeTriggerTrace(ctx context.Context, id string, status models.TraceStatus, respondedAt time.Time) error
	TraceByID(ctx context.Context, id string) (*models.Trace, error)
	TracesByTraceID(ctx context.Context, traceID string) ([]*models.Trace, error)
	ListTraces(ctx context.Context, req ListTracesRequest) (*TracePage, error)
}

// ExecutionRepository persists the mutable per-run aggregate.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ExecutionByTraceID(ctx context.Context, traceID string) (*models.Execution, error)
	UpdateExecutionStatus(ctx context.Context, id string, update ExecutionUpdate) (*models.Execution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
}

// TopicRepository persists the content-deduplication ledger.
type TopicRepository interface {
	CreateUsedTopic(ctx context.Context, topic *models.UsedTopic) error
	RecentTopics(ctx context.Context, workflowID string, since time.Time) ([]*models.UsedTopic, error)
	DeleteTopicsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Store is the single source of truth for everything the orchestration core
// persists.
type Store interface {
	TraceRepository
	ExecutionRepository
	TopicRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
