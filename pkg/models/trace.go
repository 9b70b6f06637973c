package models

import "time"

// TraceStatus represents the overall status carried by a trace row.
type TraceStatus string

const (
	TraceStatusInProgress TraceStatus = "in_progress"
	TraceStatusSuccess    TraceStatus = "success"
	TraceStatusFailed     TraceStatus = "failed"
)

// Trace is one immutable record of a single step or lifecycle event in a
// workflow run's history. Rows are append-only: the single exception is the
// row representing the triggering request, which receives one finalization
// update with duration and final status.
//
// TraceID groups every row of one logical run. AttemptNumber is the step or
// callback ordinal and is only unique within a TraceID.
type Trace struct {
	ID                  string         `json:"id"`
	TraceID             string         `json:"trace_id"              validate:"required"`
	ExecutionID         *string        `json:"execution_id,omitempty"`
	AttemptNumber       int            `json:"attempt_number"`
	SourceService       string         `json:"source_service"`
	DestinationService  string         `json:"destination_service"`
	WorkflowID          string         `json:"workflow_id"           validate:"required"`
	Action              string         `json:"action"`
	UserID              string         `json:"user_id"`
	RequestedAt         time.Time      `json:"requested_at"`
	RespondedAt         *time.Time     `json:"responded_at,omitempty"`
	DurationMs          *int64         `json:"duration_ms,omitempty"`
	RequestPayload      map[string]any `json:"request_payload,omitempty"`
	ResponsePayload     map[string]any `json:"response_payload,omitempty"`
	OverallStatus       TraceStatus    `json:"overall_status"`
	ErrorCode           string         `json:"error_code,omitempty"`
	ErrorDetail         string         `json:"error_detail,omitempty"`
	ExternalExecutionID string         `json:"external_execution_id,omitempty"`
}

// Finalize fills the one-shot completion fields of a trigger trace row.
func (t *Trace) Finalize(status TraceStatus, respondedAt time.Time) {
	t.OverallStatus = status
	t.RespondedAt = &respondedAt
	duration := respondedAt.Sub(t.RequestedAt).Milliseconds()
	t.DurationMs = &duration
}
