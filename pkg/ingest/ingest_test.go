package ingest

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/pitchwire/pitchwire/pkg/dedup"
	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/store/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type ingestFixture struct {
	ingestor *Ingestor
	store    *file.Store
	ledger   *dedup.Ledger
}

func newFixture(t *testing.T) *ingestFixture {
	t.Helper()

	fileStore, err := file.NewStore(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = fileStore.Close(context.Background())
	})

	ledger := dedup.NewLedger(testLogger(), fileStore)

	return &ingestFixture{
		ingestor: NewIngestor(testLogger(), fileStore, ledger, nil),
		store:    fileStore,
		ledger:   ledger,
	}
}

func progressCallback() map[string]any {
	return map[string]any{
		"workflowId": "daily-digest",
		"step":       "research-complete",
		"stepIndex":  1,
		"traceId":    "trace_abc",
		"status":     "in_progress",
		"output":     map[string]any{"topicCount": 3},
	}
}

func TestIngest_ProgressCallback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t)

	resp, err := fx.ingestor.Ingest(ctx, progressCallback())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "trace_abc", resp.TraceID)
	require.NotEmpty(t, resp.ExecutionID)
	require.NotEmpty(t, resp.TraceRecordID)

	traces, err := fx.store.TracesByTraceID(ctx, "trace_abc")
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, 1, traces[0].AttemptNumber)
	assert.Equal(t, models.TraceStatusInProgress, traces[0].OverallStatus)

	execution, err := fx.store.ExecutionByID(ctx, resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
}

func TestIngest_FinalCallbackCompletesAndRecordsHeadline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t)

	resp, err := fx.ingestor.Ingest(ctx, map[string]any{
		"workflowId": "daily-digest",
		"step":       "final-output",
		"stepIndex":  2,
		"traceId":    "trace_abc",
		"status":     "success",
		"output": map[string]any{
			"selectedTopic": map[string]any{"sourceHeadline": "Team X wins 3-0"},
		},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	execution, err := fx.store.ExecutionByID(ctx, resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.NotNil(t, execution.CompletedAt)
	assert.Equal(t, "Team X wins 3-0", execution.FinalOutput["selectedTopic"].(map[string]any)["sourceHeadline"])

	headlines, err := fx.ledger.RecentHeadlines(ctx, "daily-digest")
	require.NoError(t, err)
	require.Len(t, headlines, 1)
	assert.Equal(t, models.HeadlineHash("team x wins 3-0"), models.HeadlineHash(headlines[0]))
}

func TestIngest_FinalFailureMarksExecutionFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t)

	resp, err := fx.ingestor.Ingest(ctx, map[string]any{
		"workflowId":   "daily-digest",
		"step":         "final-output",
		"stepIndex":    2,
		"traceId":      "trace_fail",
		"status":       "failed",
		"errorMessage": "provider quota exceeded",
	})
	require.NoError(t, err)

	execution, err := fx.store.ExecutionByID(ctx, resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)

	headlines, err := fx.ledger.RecentHeadlines(ctx, "daily-digest")
	require.NoError(t, err)
	assert.Empty(t, headlines)
}

func TestIngest_MissingHeadlineStillSucceeds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t)

	resp, err := fx.ingestor.Ingest(ctx, map[string]any{
		"workflowId": "daily-digest",
		"step":       "final-output",
		"stepIndex":  2,
		"traceId":    "trace_nohead",
		"output":     map[string]any{"digest": "rendered newsletter"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	execution, err := fx.store.ExecutionByID(ctx, resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
}

func TestIngest_SchemaViolationPersistsNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.ingestor.Ingest(ctx, map[string]any{
		"workflowId": "daily-digest",
		// step missing, stepIndex below minimum
		"stepIndex": 0,
		"traceId":   "trace_bad",
	})
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.NotEmpty(t, validationErr.Violations)

	traces, storeErr := fx.store.TracesByTraceID(ctx, "trace_bad")
	require.NoError(t, storeErr)
	assert.Empty(t, traces)

	_, storeErr = fx.store.ExecutionByTraceID(ctx, "trace_bad")
	require.Error(t, storeErr)
}

func TestIngest_ReusesExecutionAcrossSteps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t)

	first, err := fx.ingestor.Ingest(ctx, progressCallback())
	require.NoError(t, err)

	second := progressCallback()
	second["step"] = "summarize-complete"
	second["stepIndex"] = 2

	resp, err := fx.ingestor.Ingest(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, first.ExecutionID, resp.ExecutionID)

	traces, err := fx.store.TracesByTraceID(ctx, "trace_abc")
	require.NoError(t, err)
	assert.Len(t, traces, 2)
}

func TestIngest_DuplicateCallbacksAppendRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.ingestor.Ingest(ctx, progressCallback())
	require.NoError(t, err)
	_, err = fx.ingestor.Ingest(ctx, progressCallback())
	require.NoError(t, err)

	traces, err := fx.store.TracesByTraceID(ctx, "trace_abc")
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, traces[0].AttemptNumber, traces[1].AttemptNumber)
}

func TestIngest_LateProgressAfterTerminalKeepsHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.ingestor.Ingest(ctx, map[string]any{
		"workflowId": "daily-digest",
		"step":       "final-output",
		"stepIndex":  3,
		"traceId":    "trace_late",
		"status":     "success",
		"output":     map[string]any{"headline": "Derby ends goalless"},
	})
	require.NoError(t, err)

	late := map[string]any{
		"workflowId": "daily-digest",
		"step":       "summarize-complete",
		"stepIndex":  2,
		"traceId":    "trace_late",
		"status":     "in_progress",
	}

	resp, err := fx.ingestor.Ingest(ctx, late)
	require.NoError(t, err)

	// The late row is kept as history but the terminal status is untouched.
	traces, err := fx.store.TracesByTraceID(ctx, "trace_late")
	require.NoError(t, err)
	assert.Len(t, traces, 2)

	execution, err := fx.store.ExecutionByID(ctx, resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
}

func TestIngest_DefaultStatusIsSuccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t)

	resp, err := fx.ingestor.Ingest(ctx, map[string]any{
		"workflowId": "daily-digest",
		"step":       "research-complete",
		"stepIndex":  1,
		"traceId":    "trace_default",
	})
	require.NoError(t, err)

	trace, err := fx.store.TraceByID(ctx, resp.TraceRecordID)
	require.NoError(t, err)
	assert.Equal(t, models.TraceStatusSuccess, trace.OverallStatus)
}

func TestExtractHeadline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output map[string]any
		want   string
	}{
		{
			name:   "nested selected topic",
			output: map[string]any{"selectedTopic": map[string]any{"sourceHeadline": "A"}},
			want:   "A",
		},
		{
			name:   "nested headline key",
			output: map[string]any{"selectedTopic": map[string]any{"headline": "B"}},
			want:   "B",
		},
		{
			name:   "top level headline",
			output: map[string]any{"headline": "C"},
			want:   "C",
		},
		{
			name:   "no headline",
			output: map[string]any{"digest": "text"},
			want:   "",
		},
		{
			name: "nil output",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, extractHeadline(tt.output))
		})
	}
}

func TestIsFinalStep(t *testing.T) {
	t.Parallel()

	assert.True(t, isFinalStep("final"))
	assert.True(t, isFinalStep("final-output"))
	assert.True(t, isFinalStep("FINAL-OUTPUT"))
	assert.False(t, isFinalStep("research-complete"))
	assert.False(t, isFinalStep("semifinal"))
}
