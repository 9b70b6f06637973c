// Package router decides how a workflow trigger request is executed: by a
// local in-process handler or by handing it to the external automation engine.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pitchwire/pitchwire/pkg/cache"
	"github.com/pitchwire/pitchwire/pkg/dedup"
	"github.com/pitchwire/pitchwire/pkg/engine"
	"github.com/pitchwire/pitchwire/pkg/eventbus"
	"github.com/pitchwire/pitchwire/pkg/events"
	"github.com/pitchwire/pitchwire/pkg/log"
	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/otelhelper"
	"github.com/pitchwire/pitchwire/pkg/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const callbackPath = "/api/workflows/callback"

// Triggerer is the slice of the engine client the router needs.
type Triggerer interface {
	Trigger(ctx context.Context, webhookURL, traceID string, payload map[string]any) (*engine.TriggerResult, error)
}

// RouteError is a routing failure with retryability carried through from the
// engine call.
type RouteError struct {
	WorkflowID string
	TraceID    string
	Message    string
	Retryable  bool
	Err        error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("routing workflow %s: %s", e.WorkflowID, e.Message)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// Request is one trigger request entering the router.
type Request struct {
	WorkflowID    string
	Action        string
	Payload       map[string]any
	SourceService string
	UserID        string
	// DetectedHost is the externally visible host of the receiving API, used
	// to build the callback URL when no override is configured.
	DetectedHost string
	// CallbackURLOverride wins over any detected or configured callback URL.
	CallbackURLOverride string
}

// Result is the router's answer. Local handlers fill Output; external routes
// report the running execution instead.
type Result struct {
	Status      string         `json:"status"`
	TraceID     string         `json:"traceId"`
	ExecutionID string         `json:"executionId,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
}

// Config carries the router's static wiring.
type Config struct {
	// ServiceName labels trace rows this router writes.
	ServiceName string
	// EngineName labels the destination side of trigger trace rows.
	EngineName string
	// CallbackURLFallback is used when a request carries neither an override
	// nor a detected host.
	CallbackURLFallback string
	// Secrets are forwarded verbatim inside every external trigger payload.
	Secrets map[string]any
}

// Router routes trigger requests and keeps the trace/execution bookkeeping
// consistent on both the success and failure paths.
type Router struct {
	config   Config
	store    store.Store
	urls     cache.WebhookURLCache
	engine   Triggerer
	ledger   *dedup.Ledger
	registry *Registry
	bus      eventbus.EventPublisher
	tracer   trace.Tracer
	logger   *slog.Logger
}

func NewRouter(
	logger *slog.Logger,
	config Config,
	persistence store.Store,
	urls cache.WebhookURLCache,
	triggerer Triggerer,
	ledger *dedup.Ledger,
	bus eventbus.EventPublisher,
	tracer trace.Tracer,
) *Router {
	if config.ServiceName == "" {
		config.ServiceName = "pitchwire-api"
	}

	if config.EngineName == "" {
		config.EngineName = "automation-engine"
	}

	return &Router{
		config:   config,
		store:    persistence,
		urls:     urls,
		engine:   triggerer,
		ledger:   ledger,
		registry: NewRegistry(),
		bus:      bus,
		tracer:   tracer,
		logger:   logger.With("module", "router"),
	}
}

// Registry exposes the local handler registry for startup registration.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Route executes one trigger request. The execution and trigger trace rows are
// persisted before any outbound call, so a crashed or failed trigger still
// leaves a queryable record.
func (r *Router) Route(ctx context.Context, req Request) (*Result, error) {
	traceID := uuid.Must(uuid.NewV7()).String()

	logger := log.WithRun(r.logger, req.WorkflowID, traceID).With("action", req.Action)

	if handler, ok := r.registry.Lookup(req.WorkflowID, req.Action); ok {
		return r.routeLocal(ctx, logger, req, traceID, handler)
	}

	return r.routeExternal(ctx, logger, req, traceID)
}

func (r *Router) routeLocal(ctx context.Context, logger *slog.Logger, req Request, traceID string, handler LocalHandler) (*Result, error) {
	logger.InfoContext(ctx, "Routing to local handler")

	traceRow := r.newTriggerTrace(req, traceID, r.config.ServiceName)
	if err := r.store.CreateTrace(ctx, traceRow); err != nil {
		return nil, &RouteError{WorkflowID: req.WorkflowID, TraceID: traceID, Message: "failed to record trigger", Err: err}
	}

	output, err := handler(ctx, req.Payload)
	if err != nil {
		r.finalizeTrace(ctx, logger, traceRow.ID, models.TraceStatusFailed)

		return nil, &RouteError{WorkflowID: req.WorkflowID, TraceID: traceID, Message: err.Error(), Err: err}
	}

	r.finalizeTrace(ctx, logger, traceRow.ID, models.TraceStatusSuccess)

	return &Result{Status: "completed", TraceID: traceID, Output: output}, nil
}

func (r *Router) routeExternal(ctx context.Context, logger *slog.Logger, req Request, traceID string) (*Result, error) {
	webhookURL, err := r.urls.Resolve(ctx, req.WorkflowID)
	if err != nil {
		if cache.IsURLNotFound(err) {
			return nil, &RouteError{WorkflowID: req.WorkflowID, TraceID: traceID, Message: "no webhook url configured", Err: err}
		}

		return nil, &RouteError{WorkflowID: req.WorkflowID, TraceID: traceID, Message: "webhook url lookup failed", Retryable: true, Err: err}
	}

	execution := &models.Execution{
		WorkflowID:     req.WorkflowID,
		TriggerTraceID: traceID,
		UserID:         req.UserID,
	}
	if err := r.store.CreateExecution(ctx, execution); err != nil {
		return nil, &RouteError{WorkflowID: req.WorkflowID, TraceID: traceID, Message: "failed to create execution", Err: err}
	}

	traceRow := r.newTriggerTrace(req, traceID, r.config.EngineName)
	traceRow.ExecutionID = &execution.ID

	if err := r.store.CreateTrace(ctx, traceRow); err != nil {
		return nil, &RouteError{WorkflowID: req.WorkflowID, TraceID: traceID, Message: "failed to record trigger", Err: err}
	}

	payload := r.buildPayload(ctx, logger, req, traceID)

	spanCtx, span := r.startSpan(ctx, req, traceID, execution.ID)
	result, err := r.engine.Trigger(spanCtx, webhookURL, traceID, payload)

	if err != nil {
		if span != nil {
			otelhelper.SetError(span, err)
			span.End()
		}

		return nil, r.failRoute(ctx, logger, req, traceID, traceRow.ID, execution.ID, err)
	}

	if span != nil {
		span.End()
	}

	// The trigger row covers the hand-off call only; it closes as soon as the
	// engine acknowledges, with the run's own progress tracked by later rows.
	r.finalizeTrace(ctx, logger, traceRow.ID, models.TraceStatusSuccess)

	if result.ExecutionID != "" {
		_, err = r.store.UpdateExecutionStatus(ctx, execution.ID, store.ExecutionUpdate{
			Status:              models.ExecutionStatusRunning,
			ExternalExecutionID: result.ExecutionID,
		})
		if err != nil {
			logger.WarnContext(ctx, "Failed to attach engine execution id", "error", err)
		}
	}

	r.publish(ctx, req.WorkflowID, events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, req.WorkflowID, traceID),
		ExecutionID: execution.ID,
		Action:      req.Action,
		Payload:     req.Payload,
	})

	logger.InfoContext(ctx, "Workflow handed to engine", "execution_id", execution.ID, "engine_execution_id", result.ExecutionID)

	return &Result{Status: "running", TraceID: traceID, ExecutionID: execution.ID}, nil
}

func (r *Router) failRoute(ctx context.Context, logger *slog.Logger, req Request, traceID, traceRowID, executionID string, cause error) error {
	logger.ErrorContext(ctx, "Engine trigger failed", "error", cause)

	if _, err := r.store.UpdateExecutionStatus(ctx, executionID, store.ExecutionUpdate{
		Status: models.ExecutionStatusFailed,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to mark execution failed", "error", err)
	}

	r.publish(ctx, req.WorkflowID, events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, req.WorkflowID, traceID),
		ExecutionID: executionID,
		Error:       cause.Error(),
	})

	retryable := false

	var triggerErr *engine.TriggerError
	if errors.As(cause, &triggerErr) {
		retryable = triggerErr.Retryable
	}

	r.finalizeTrace(ctx, logger, traceRowID, models.TraceStatusFailed)

	return &RouteError{
		WorkflowID: req.WorkflowID,
		TraceID:    traceID,
		Message:    "engine trigger failed",
		Retryable:  retryable,
		Err:        cause,
	}
}

// buildPayload assembles the outbound trigger body: the caller's input plus
// the orchestration envelope the workflow steps depend on.
func (r *Router) buildPayload(ctx context.Context, logger *slog.Logger, req Request, traceID string) map[string]any {
	payload := make(map[string]any, len(req.Payload)+6)
	for k, v := range req.Payload {
		payload[k] = v
	}

	payload["action"] = req.Action
	payload["context"] = map[string]any{
		"userId":        req.UserID,
		"traceId":       traceID,
		"requestedAt":   time.Now().UTC().Format(time.RFC3339),
		"sourceService": req.SourceService,
		"attempt":       1,
	}

	if len(r.config.Secrets) > 0 {
		payload["secrets"] = r.config.Secrets
	}

	payload["traceId"] = traceID
	payload["callbackUrl"] = r.callbackURL(req)

	if r.ledger != nil {
		recent, err := r.ledger.RecentHeadlines(ctx, req.WorkflowID)
		if err != nil {
			logger.WarnContext(ctx, "Failed to load recent topics, continuing without", "error", err)
		} else if len(recent) > 0 {
			payload["recentTopics"] = recent
		}
	}

	return payload
}

// callbackURL picks the callback endpoint: explicit override, then the host
// the request arrived on, then the configured fallback.
func (r *Router) callbackURL(req Request) string {
	if req.CallbackURLOverride != "" {
		return req.CallbackURLOverride
	}

	if req.DetectedHost != "" {
		return "https://" + req.DetectedHost + callbackPath
	}

	return r.config.CallbackURLFallback
}

func (r *Router) newTriggerTrace(req Request, traceID, destination string) *models.Trace {
	return &models.Trace{
		TraceID:            traceID,
		AttemptNumber:      0,
		SourceService:      req.SourceService,
		DestinationService: destination,
		WorkflowID:         req.WorkflowID,
		Action:             req.Action,
		UserID:             req.UserID,
		RequestedAt:        time.Now().UTC(),
		RequestPayload:     req.Payload,
		OverallStatus:      models.TraceStatusInProgress,
	}
}

func (r *Router) finalizeTrace(ctx context.Context, logger *slog.Logger, rowID string, status models.TraceStatus) {
	err := r.store.FinalizeTriggerTrace(ctx, rowID, status, time.Now().UTC())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to finalize trigger trace", "trace_row_id", rowID, "error", err)
	}
}

func (r *Router) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.bus == nil {
		return
	}

	if err := r.bus.Publish(ctx, key, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (r *Router) startSpan(ctx context.Context, req Request, traceID, executionID string) (context.Context, trace.Span) {
	if r.tracer == nil {
		return ctx, nil
	}

	return otelhelper.StartSpan(ctx, r.tracer, "router.trigger",
		attribute.String(otelhelper.ServiceIDKey, r.config.ServiceName),
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.ActionKey, req.Action),
		attribute.String(otelhelper.TraceIDKey, traceID),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
}
