// Package poller reconciles execution state directly against the external
// engine when callbacks go missing. It is a bounded, best-effort fallback;
// callbacks remain the primary delivery path.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

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

const listLimit = 20

// Lister is the slice of the engine client the poller needs.
type Lister interface {
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]engine.EngineExecution, error)
}

// Request identifies the run to reconcile.
type Request struct {
	WorkflowID          string
	TraceID             string
	ExecutionID         string
	ExternalExecutionID string
	TriggeredAt         time.Time
}

// Options bounds the polling loop. The loop stops at whichever of MaxAttempts
// or Timeout is hit first.
type Options struct {
	MaxAttempts int
	Interval    time.Duration
	Timeout     time.Duration
}

// DefaultOptions returns the production polling budget.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 10,
		Interval:    3 * time.Second,
		Timeout:     60 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()

	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaults.MaxAttempts
	}

	if o.Interval <= 0 {
		o.Interval = defaults.Interval
	}

	if o.Timeout <= 0 {
		o.Timeout = defaults.Timeout
	}

	return o
}

// Report statuses. "running" means a live candidate was seen but never
// finished inside the budget; "timeout" means no candidate was ever seen.
const (
	ReportSuccess = "success"
	ReportError   = "error"
	ReportRunning = "running"
	ReportTimeout = "timeout"
)

// Report is the poller's terminal answer for one reconciliation.
type Report struct {
	Status              string `json:"status"`
	Attempts            int    `json:"attempts"`
	ExternalExecutionID string `json:"externalExecutionId,omitempty"`
	ErrorMessage        string `json:"errorMessage,omitempty"`
}

// Poller drives the reconciliation loop.
type Poller struct {
	engine  Lister
	store   store.Store
	matcher Matcher
	bus     eventbus.EventPublisher
	tracer  trace.Tracer
	logger  *slog.Logger
}

func NewPoller(logger *slog.Logger, lister Lister, persistence store.Store, matcher Matcher, bus eventbus.EventPublisher, tracer trace.Tracer) *Poller {
	if matcher == nil {
		matcher = NewTimeWindowMatcher(0)
	}

	return &Poller{
		engine:  lister,
		store:   persistence,
		matcher: matcher,
		bus:     bus,
		tracer:  tracer,
		logger:  logger.With("module", "poller"),
	}
}

// Poll watches the engine's execution list until the run finishes or the
// budget runs out. The store is reconciled on a finished match; on "running"
// or "timeout" the execution is left as-is for a later callback to resolve.
func (p *Poller) Poll(ctx context.Context, req Request, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	logger := log.WithRun(p.logger, req.WorkflowID, req.TraceID).With("execution_id", req.ExecutionID)

	ctx, span := p.startSpan(ctx, req)
	if span != nil {
		defer span.End()
	}

	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	sawRunning := false

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return p.giveUp(ctx, logger, req, attempt-1, sawRunning)
		case <-time.After(opts.Interval):
		}

		if span != nil {
			span.SetAttributes(attribute.Int(otelhelper.AttemptKey, attempt))
		}

		candidates, err := p.engine.ListExecutions(ctx, req.WorkflowID, listLimit)
		if err != nil {
			logger.WarnContext(ctx, "Failed to list engine executions", "attempt", attempt, "error", err)

			continue
		}

		match := p.matcher.Match(candidates, req)
		if match == nil {
			continue
		}

		if !match.Finished {
			sawRunning = true

			continue
		}

		if span != nil && match.ErrorNode != "" {
			span.SetAttributes(attribute.String(otelhelper.StepKey, match.ErrorNode))
		}

		return p.reconcile(ctx, logger, req, match, attempt)
	}

	return p.giveUp(ctx, logger, req, opts.MaxAttempts, sawRunning)
}

func (p *Poller) reconcile(ctx context.Context, logger *slog.Logger, req Request, match *engine.EngineExecution, attempts int) (*Report, error) {
	succeeded := isEngineSuccess(match.Status)

	status := models.ExecutionStatusCompleted
	if !succeeded {
		status = models.ExecutionStatusFailed
	}

	_, err := p.store.UpdateExecutionStatus(ctx, req.ExecutionID, store.ExecutionUpdate{
		Status:              status,
		ExternalExecutionID: match.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile execution: %w", err)
	}

	logger.InfoContext(ctx, "Execution reconciled from engine",
		"engine_execution_id", match.ID,
		"engine_status", match.Status,
		"attempts", attempts)

	if succeeded {
		return &Report{
			Status:              ReportSuccess,
			Attempts:            attempts,
			ExternalExecutionID: match.ID,
		}, nil
	}

	p.publish(ctx, req.WorkflowID, events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, req.WorkflowID, req.TraceID),
		ExecutionID: req.ExecutionID,
		Step:        match.ErrorNode,
		Error:       match.ErrorMessage,
	})

	return &Report{
		Status:              ReportError,
		Attempts:            attempts,
		ExternalExecutionID: match.ID,
		ErrorMessage:        match.ErrorMessage,
	}, nil
}

func (p *Poller) giveUp(ctx context.Context, logger *slog.Logger, req Request, attempts int, sawRunning bool) (*Report, error) {
	if sawRunning {
		logger.InfoContext(ctx, "Run still live at poll budget end, leaving it running", "attempts", attempts)

		return &Report{Status: ReportRunning, Attempts: attempts}, nil
	}

	logger.WarnContext(ctx, "No engine execution ever matched, giving up", "attempts", attempts)

	p.publish(ctx, req.WorkflowID, events.ExecutionTimeout{
		BaseEvent:   events.NewBaseEvent(events.ExecutionTimeoutEvent, req.WorkflowID, req.TraceID),
		ExecutionID: req.ExecutionID,
		Attempts:    attempts,
		WaitedMs:    time.Since(req.TriggeredAt).Milliseconds(),
	})

	return &Report{Status: ReportTimeout, Attempts: attempts}, nil
}

func isEngineSuccess(status string) bool {
	switch strings.ToLower(status) {
	case "success", "succeeded", "completed":
		return true
	default:
		return false
	}
}

func (p *Poller) publish(ctx context.Context, key string, event eventbus.Event) {
	if p.bus == nil {
		return
	}

	if err := p.bus.Publish(ctx, key, event); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (p *Poller) startSpan(ctx context.Context, req Request) (context.Context, trace.Span) {
	if p.tracer == nil {
		return ctx, nil
	}

	return otelhelper.StartSpan(ctx, p.tracer, "poller.poll",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.TraceIDKey, req.TraceID),
		attribute.String(otelhelper.ExecutionIDKey, req.ExecutionID),
	)
}
