// Package ingest turns inbound workflow callbacks into trace history and
// execution state transitions.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pitchwire/pitchwire/pkg/dedup"
	"github.com/pitchwire/pitchwire/pkg/eventbus"
	"github.com/pitchwire/pitchwire/pkg/events"
	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/store"
)

// Callback is the decoded body of one POST /api/workflows/callback request.
type Callback struct {
	WorkflowID   string         `json:"workflowId"`
	Step         string         `json:"step"`
	StepIndex    int            `json:"stepIndex"`
	TraceID      string         `json:"traceId"`
	Output       map[string]any `json:"output,omitempty"`
	ExecutionID  string         `json:"executionId,omitempty"`
	Status       string         `json:"status,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// Response acknowledges an accepted callback.
type Response struct {
	Success       bool   `json:"success"`
	TraceID       string `json:"traceId"`
	ExecutionID   string `json:"executionId"`
	TraceRecordID string `json:"traceRecordId"`
}

const (
	callbackStatusSuccess    = "success"
	callbackStatusFailed     = "failed"
	callbackStatusInProgress = "in_progress"
)

// Ingestor processes workflow callbacks. Trace history is append-only, so
// retried or duplicate callbacks add rows instead of overwriting anything.
type Ingestor struct {
	store       store.Store
	ledger      *dedup.Ledger
	bus         eventbus.EventPublisher
	serviceName string
	logger      *slog.Logger
}

func NewIngestor(logger *slog.Logger, persistence store.Store, ledger *dedup.Ledger, bus eventbus.EventPublisher) *Ingestor {
	return &Ingestor{
		store:       persistence,
		ledger:      ledger,
		bus:         bus,
		serviceName: "pitchwire-api",
		logger:      logger.With("module", "ingest"),
	}
}

// Ingest validates and processes one raw callback body. Schema violations
// return a *ValidationError and persist nothing.
func (i *Ingestor) Ingest(ctx context.Context, raw map[string]any) (*Response, error) {
	if err := validateCallback(raw); err != nil {
		return nil, err
	}

	callback, err := decodeCallback(raw)
	if err != nil {
		return nil, err
	}

	if callback.Status == "" {
		callback.Status = callbackStatusSuccess
	}

	logger := i.logger.With(
		"workflow_id", callback.WorkflowID,
		"trace_id", callback.TraceID,
		"step", callback.Step,
		"step_index", callback.StepIndex,
	)

	execution, err := i.resolveExecution(ctx, callback)
	if err != nil {
		return nil, err
	}

	traceRow, err := i.appendTrace(ctx, callback, execution.ID)
	if err != nil {
		return nil, err
	}

	i.publish(ctx, callback.WorkflowID, events.StepCompleted{
		BaseEvent:   events.NewBaseEvent(events.StepCompletedEvent, callback.WorkflowID, callback.TraceID),
		ExecutionID: execution.ID,
		Step:        callback.Step,
		StepIndex:   callback.StepIndex,
		Status:      callback.Status,
		Fields:      callback.Output,
	})

	if isFinalStep(callback.Step) {
		execution, err = i.finishExecution(ctx, logger, callback, execution)
		if err != nil {
			return nil, err
		}
	}

	logger.InfoContext(ctx, "Callback ingested", "trace_record_id", traceRow.ID, "status", callback.Status)

	return &Response{
		Success:       true,
		TraceID:       callback.TraceID,
		ExecutionID:   execution.ID,
		TraceRecordID: traceRow.ID,
	}, nil
}

func decodeCallback(raw map[string]any) (*Callback, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode callback: %w", err)
	}

	var callback Callback
	if err := json.Unmarshal(encoded, &callback); err != nil {
		return nil, fmt.Errorf("failed to decode callback: %w", err)
	}

	return &callback, nil
}

// resolveExecution finds the run this callback belongs to, creating it when
// the callback raced ahead of the trigger's own bookkeeping.
func (i *Ingestor) resolveExecution(ctx context.Context, callback *Callback) (*models.Execution, error) {
	execution, err := i.store.ExecutionByTraceID(ctx, callback.TraceID)
	if err == nil {
		return execution, nil
	}

	if !store.IsExecutionNotFound(err) {
		return nil, fmt.Errorf("failed to resolve execution: %w", err)
	}

	execution = &models.Execution{
		WorkflowID:          callback.WorkflowID,
		TriggerTraceID:      callback.TraceID,
		ExternalExecutionID: callback.ExecutionID,
		Status:              models.ExecutionStatusRunning,
	}

	if err := i.store.CreateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution for callback: %w", err)
	}

	return execution, nil
}

func (i *Ingestor) appendTrace(ctx context.Context, callback *Callback, executionID string) (*models.Trace, error) {
	now := time.Now().UTC()

	traceRow := &models.Trace{
		TraceID:             callback.TraceID,
		ExecutionID:         &executionID,
		AttemptNumber:       callback.StepIndex,
		SourceService:       "automation-engine",
		DestinationService:  i.serviceName,
		WorkflowID:          callback.WorkflowID,
		Action:              callback.Step,
		RequestedAt:         now,
		RespondedAt:         &now,
		RequestPayload:      callback.Details,
		ResponsePayload:     callback.Output,
		OverallStatus:       traceStatus(callback.Status),
		ErrorDetail:         callback.ErrorMessage,
		ExternalExecutionID: callback.ExecutionID,
	}

	if err := i.store.CreateTrace(ctx, traceRow); err != nil {
		return nil, fmt.Errorf("failed to append callback trace: %w", err)
	}

	return traceRow, nil
}

// finishExecution applies the terminal transition for a final-step callback.
// An in_progress final callback changes nothing; the run stays running.
func (i *Ingestor) finishExecution(ctx context.Context, logger *slog.Logger, callback *Callback, execution *models.Execution) (*models.Execution, error) {
	var terminal models.ExecutionStatus

	switch callback.Status {
	case callbackStatusSuccess:
		terminal = models.ExecutionStatusCompleted
	case callbackStatusFailed:
		terminal = models.ExecutionStatusFailed
	default:
		return execution, nil
	}

	updated, err := i.store.UpdateExecutionStatus(ctx, execution.ID, store.ExecutionUpdate{
		Status:              terminal,
		FinalOutput:         callback.Output,
		ExternalExecutionID: callback.ExecutionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finish execution: %w", err)
	}

	if terminal == models.ExecutionStatusCompleted {
		i.recordHeadline(ctx, logger, callback)

		var durationMs int64
		if updated.CompletedAt != nil {
			durationMs = updated.CompletedAt.Sub(updated.StartedAt).Milliseconds()
		}

		i.publish(ctx, callback.WorkflowID, events.ExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, callback.WorkflowID, callback.TraceID),
			ExecutionID: updated.ID,
			FinalOutput: callback.Output,
			DurationMs:  durationMs,
		})
	} else {
		i.publish(ctx, callback.WorkflowID, events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, callback.WorkflowID, callback.TraceID),
			ExecutionID: updated.ID,
			Step:        callback.Step,
			Error:       callback.ErrorMessage,
		})
	}

	return updated, nil
}

// recordHeadline extracts the chosen headline from the final output and adds
// it to the dedup ledger. Neither a missing headline nor a ledger write
// failure fails the callback.
func (i *Ingestor) recordHeadline(ctx context.Context, logger *slog.Logger, callback *Callback) {
	if i.ledger == nil {
		return
	}

	headline := extractHeadline(callback.Output)
	if headline == "" {
		logger.WarnContext(ctx, "Final output carries no recognizable headline, skipping dedup record")

		return
	}

	err := i.ledger.Record(ctx, callback.WorkflowID, headline, map[string]any{
		"trace_id": callback.TraceID,
		"step":     callback.Step,
	})
	if err != nil {
		logger.WarnContext(ctx, "Failed to record used topic, callback still accepted", "error", err)
	}
}

// extractHeadline probes the output shapes the generation workflows produce.
func extractHeadline(output map[string]any) string {
	if output == nil {
		return ""
	}

	if selected, ok := output["selectedTopic"].(map[string]any); ok {
		for _, key := range []string{"sourceHeadline", "headline"} {
			if headline, ok := selected[key].(string); ok && headline != "" {
				return headline
			}
		}
	}

	for _, key := range []string{"sourceHeadline", "headline"} {
		if headline, ok := output[key].(string); ok && headline != "" {
			return headline
		}
	}

	return ""
}

func isFinalStep(step string) bool {
	return strings.HasPrefix(strings.ToLower(step), "final")
}

func traceStatus(callbackStatus string) models.TraceStatus {
	switch callbackStatus {
	case callbackStatusFailed:
		return models.TraceStatusFailed
	case callbackStatusInProgress:
		return models.TraceStatusInProgress
	default:
		return models.TraceStatusSuccess
	}
}

func (i *Ingestor) publish(ctx context.Context, key string, event eventbus.Event) {
	if i.bus == nil {
		return
	}

	if err := i.bus.Publish(ctx, key, event); err != nil {
		i.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
