package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	t.Parallel()

	base := NewBaseEvent(ExecutionStartedEvent, "daily-digest", "trace-1")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, ExecutionStartedEvent, base.Type)
	assert.Equal(t, "daily-digest", base.WorkflowID)
	assert.Equal(t, "trace-1", base.TraceID)
	assert.False(t, base.Timestamp.IsZero())
}

func TestEventTypes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExecutionStartedEvent, ExecutionStarted{}.GetType())
	assert.Equal(t, StepCompletedEvent, StepCompleted{}.GetType())
	assert.Equal(t, ExecutionCompletedEvent, ExecutionCompleted{}.GetType())
	assert.Equal(t, ExecutionFailedEvent, ExecutionFailed{}.GetType())
	assert.Equal(t, ExecutionTimeoutEvent, ExecutionTimeout{}.GetType())
}

func TestStepCompletedRoundTrip(t *testing.T) {
	t.Parallel()

	event := StepCompleted{
		BaseEvent:   NewBaseEvent(StepCompletedEvent, "daily-digest", "trace-1"),
		ExecutionID: "exec-1",
		Step:        "summarize",
		StepIndex:   2,
		Status:      "success",
		Fields:      map[string]any{"summary": "Late winner at the Etihad"},
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded StepCompleted
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, event.Step, decoded.Step)
	assert.Equal(t, event.StepIndex, decoded.StepIndex)
	assert.Equal(t, "Late winner at the Etihad", decoded.Fields["summary"])
}
