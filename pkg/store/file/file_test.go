package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/store"
	"github.com/pitchwire/pitchwire/pkg/store/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *file.Store {
	t.Helper()

	s, err := file.NewStore(t.TempDir())
	require.NoError(t, err)

	return s
}

func TestStore_TraceAppendAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		err := s.CreateTrace(ctx, &models.Trace{
			TraceID:       "trace_abc",
			WorkflowID:    "daily-digest",
			AttemptNumber: i,
			RequestedAt:   base.Add(time.Duration(i) * time.Minute),
			OverallStatus: models.TraceStatusInProgress,
		})
		require.NoError(t, err)
	}

	rows, err := s.TracesByTraceID(ctx, "trace_abc")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].AttemptNumber)
	assert.Equal(t, 3, rows[2].AttemptNumber)

	page, err := s.ListTraces(ctx, store.ListTracesRequest{WorkflowID: "daily-digest", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Traces, 2)
	assert.True(t, page.HasNextPage)
	// newest first
	assert.Equal(t, 3, page.Traces[0].AttemptNumber)
}

func TestStore_FinalizeTriggerTrace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	trace := &models.Trace{
		TraceID:       "trace_abc",
		WorkflowID:    "daily-digest",
		RequestedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		OverallStatus: models.TraceStatusInProgress,
	}
	require.NoError(t, s.CreateTrace(ctx, trace))

	err := s.FinalizeTriggerTrace(ctx, trace.ID, models.TraceStatusSuccess, trace.RequestedAt.Add(2*time.Second))
	require.NoError(t, err)

	reloaded, err := s.TraceByID(ctx, trace.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TraceStatusSuccess, reloaded.OverallStatus)
	require.NotNil(t, reloaded.DurationMs)
	assert.Equal(t, int64(2000), *reloaded.DurationMs)

	err = s.FinalizeTriggerTrace(ctx, "nope", models.TraceStatusFailed, time.Now())
	assert.True(t, store.IsTraceNotFound(err))
}

func TestStore_ExecutionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	execution := &models.Execution{
		WorkflowID:     "daily-digest",
		TriggerTraceID: "trace_abc",
		UserID:         "user-1",
	}
	require.NoError(t, s.CreateExecution(ctx, execution))
	require.NotEmpty(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)

	byTrace, err := s.ExecutionByTraceID(ctx, "trace_abc")
	require.NoError(t, err)
	assert.Equal(t, execution.ID, byTrace.ID)

	updated, err := s.UpdateExecutionStatus(ctx, execution.ID, store.ExecutionUpdate{
		Status:      models.ExecutionStatusCompleted,
		FinalOutput: map[string]any{"digest": "Matchday 12"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	// late running write must not downgrade
	downgraded, err := s.UpdateExecutionStatus(ctx, execution.ID, store.ExecutionUpdate{
		Status: models.ExecutionStatusRunning,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, downgraded.Status)
	assert.Equal(t, map[string]any{"digest": "Matchday 12"}, downgraded.FinalOutput)

	_, err = s.ExecutionByID(ctx, "missing")
	assert.True(t, store.IsExecutionNotFound(err))
}

func TestStore_ExecutionStatusMergeIsCommutative(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	orders := [][]models.ExecutionStatus{
		{models.ExecutionStatusRunning, models.ExecutionStatusCompleted},
		{models.ExecutionStatusCompleted, models.ExecutionStatusRunning},
	}

	for _, order := range orders {
		execution := &models.Execution{WorkflowID: "daily-digest"}
		require.NoError(t, s.CreateExecution(ctx, execution))

		for _, status := range order {
			_, err := s.UpdateExecutionStatus(ctx, execution.ID, store.ExecutionUpdate{Status: status})
			require.NoError(t, err)
		}

		final, err := s.ExecutionByID(ctx, execution.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, final.Status, "order %v", order)
	}
}

func TestStore_UsedTopics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	fresh := &models.UsedTopic{
		WorkflowID: "daily-digest",
		Headline:   "Team X wins 3-0",
		UsedAt:     now.Add(-2 * time.Hour),
	}
	stale := &models.UsedTopic{
		WorkflowID: "daily-digest",
		Headline:   "Old cup upset",
		UsedAt:     now.Add(-72 * time.Hour),
	}
	require.NoError(t, s.CreateUsedTopic(ctx, fresh))
	require.NoError(t, s.CreateUsedTopic(ctx, stale))

	assert.Equal(t, models.HeadlineHash("Team X wins 3-0"), fresh.HeadlineHash)

	recent, err := s.RecentTopics(ctx, "daily-digest", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Team X wins 3-0", recent[0].Headline)

	deleted, err := s.DeleteTopicsBefore(ctx, now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remaining, err := s.RecentTopics(ctx, "daily-digest", now.Add(-100*time.Hour))
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
