// Package events defines event types and structures for workflow run
// lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the event stream all run lifecycle events are published to.
const Topic = "pitchwire.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	StepCompletedEvent      EventType = "execution.step.completed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionTimeoutEvent   EventType = "execution.timeout"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	TraceID    string         `json:"trace_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates the shared envelope for a run lifecycle event.
func NewBaseEvent(eventType EventType, workflowID, traceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		TraceID:    traceID,
	}
}

// ExecutionStarted is published when the router hands a run to the engine.
type ExecutionStarted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Action      string         `json:"action"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// StepCompleted is published for every milestone callback the ingestor
// accepts, terminal or not.
type StepCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Step        string         `json:"step"`
	StepIndex   int            `json:"step_index"`
	Status      string         `json:"status"`
	Fields      map[string]any `json:"fields,omitempty"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	FinalOutput map[string]any `json:"final_output,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Step        string `json:"step,omitempty"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// ExecutionTimeout is published when the poller exhausts its attempts
// without the engine reporting a terminal state.
type ExecutionTimeout struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Attempts    int    `json:"attempts"`
	WaitedMs    int64  `json:"waited_ms"`
}

func (e ExecutionTimeout) GetType() EventType {
	return ExecutionTimeoutEvent
}
