package models_test

import (
	"testing"
	"time"

	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionStatus_Merge_Monotonic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  models.ExecutionStatus
		incoming models.ExecutionStatus
		expected models.ExecutionStatus
	}{
		{"running then completed", models.ExecutionStatusRunning, models.ExecutionStatusCompleted, models.ExecutionStatusCompleted},
		{"completed then running", models.ExecutionStatusCompleted, models.ExecutionStatusRunning, models.ExecutionStatusCompleted},
		{"running then failed", models.ExecutionStatusRunning, models.ExecutionStatusFailed, models.ExecutionStatusFailed},
		{"failed then running", models.ExecutionStatusFailed, models.ExecutionStatusRunning, models.ExecutionStatusFailed},
		{"failed stays failed on completed", models.ExecutionStatusFailed, models.ExecutionStatusCompleted, models.ExecutionStatusFailed},
		{"running stays running", models.ExecutionStatusRunning, models.ExecutionStatusRunning, models.ExecutionStatusRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.current.Merge(tt.incoming))
		})
	}
}

func TestExecution_ApplyStatus_CommutativeUnderReorder(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	// success then in-flight, in either order, always ends completed
	a := &models.Execution{Status: models.ExecutionStatusRunning}
	a.ApplyStatus(models.ExecutionStatusRunning, now)
	a.ApplyStatus(models.ExecutionStatusCompleted, now)

	b := &models.Execution{Status: models.ExecutionStatusRunning}
	b.ApplyStatus(models.ExecutionStatusCompleted, now)
	changed := b.ApplyStatus(models.ExecutionStatusRunning, now)

	assert.False(t, changed)
	assert.Equal(t, models.ExecutionStatusCompleted, a.Status)
	assert.Equal(t, models.ExecutionStatusCompleted, b.Status)
	require.NotNil(t, b.CompletedAt)
}

func TestHeadlineHash_CaseAndWhitespaceInsensitive(t *testing.T) {
	t.Parallel()

	first := models.HeadlineHash("Team X Wins 3-0")
	second := models.HeadlineHash(" team x wins 3-0 ")

	assert.Equal(t, first, second)
	assert.Len(t, first, 16)
	assert.NotEqual(t, first, models.HeadlineHash("Team Y Wins 3-0"))
}

func TestTrace_Finalize(t *testing.T) {
	t.Parallel()

	requestedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	trace := &models.Trace{
		TraceID:       "trace_abc",
		WorkflowID:    "daily-digest",
		RequestedAt:   requestedAt,
		OverallStatus: models.TraceStatusInProgress,
	}

	trace.Finalize(models.TraceStatusSuccess, requestedAt.Add(1500*time.Millisecond))

	assert.Equal(t, models.TraceStatusSuccess, trace.OverallStatus)
	require.NotNil(t, trace.DurationMs)
	assert.Equal(t, int64(1500), *trace.DurationMs)
}

func TestWorkflowManifest_StepByID(t *testing.T) {
	t.Parallel()

	manifest := &models.WorkflowManifest{
		Steps: []models.ManifestStep{
			{ID: "research", Name: "Research"},
			{ID: "write", Name: "Write"},
		},
	}

	step := manifest.StepByID("write")
	require.NotNil(t, step)
	assert.Equal(t, "Write", step.Name)

	assert.Nil(t, manifest.StepByID("missing"))
}
