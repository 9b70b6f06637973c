package models

import "time"

// ExecutionStatus represents the aggregate state of one end-to-end run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// Merge applies the status-priority rule: a terminal status is never replaced,
// in particular not downgraded back to running by a late or out-of-order
// write. The merge is commutative across callback/poller races.
func (s ExecutionStatus) Merge(incoming ExecutionStatus) ExecutionStatus {
	if s.Terminal() {
		return s
	}

	return incoming
}

// Execution is the mutable aggregate state of one workflow run. It is created
// at trigger time, or lazily at first callback when the trigger's own
// bookkeeping has not landed yet, and is never deleted.
type Execution struct {
	ID                  string          `json:"id"`
	WorkflowID          string          `json:"workflow_id"    validate:"required"`
	TriggerTraceID      string          `json:"trigger_trace_id"`
	ExternalExecutionID string          `json:"external_execution_id,omitempty"`
	Status              ExecutionStatus `json:"status"`
	StartedAt           time.Time       `json:"started_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	FinalOutput         map[string]any  `json:"final_output,omitempty"`
	UserID              string          `json:"user_id"`
}

// ApplyStatus merges a status transition into the execution, stamping
// CompletedAt on the first terminal transition. It returns false when the
// incoming status was ignored under the monotonicity rule.
func (e *Execution) ApplyStatus(incoming ExecutionStatus, at time.Time) bool {
	merged := e.Status.Merge(incoming)
	if merged == e.Status {
		return false
	}

	e.Status = merged
	if merged.Terminal() && e.CompletedAt == nil {
		e.CompletedAt = &at
	}

	return true
}
