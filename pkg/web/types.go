package web

// TriggerWorkflowRequest is the inbound body of POST /api/workflows/:workflowId/trigger.
type TriggerWorkflowRequest struct {
	Action              string         `json:"action"`
	Payload             map[string]any `json:"payload"`
	UserID              string         `json:"userId"`
	SourceService       string         `json:"sourceService"`
	CallbackURLOverride string         `json:"callbackUrlOverride"`
}

// RecordTopicRequest registers a used headline by hand, outside the callback
// flow.
type RecordTopicRequest struct {
	Headline string         `json:"headline" validate:"required,min=1"`
	Metadata map[string]any `json:"metadata"`
}

// ExecutionTimelineResponse pairs an execution with its full trace history.
type ExecutionTimelineResponse struct {
	Execution any `json:"execution"`
	Traces    any `json:"traces"`
}
