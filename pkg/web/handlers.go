// Package web provides the HTTP surface of the orchestration core: the
// callback receiver plus trace, execution and topic query endpoints.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pitchwire/pitchwire/pkg/dedup"
	"github.com/pitchwire/pitchwire/pkg/ingest"
	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/router"
	"github.com/pitchwire/pitchwire/pkg/store"
)

type APIHandlers struct {
	store     store.Store
	router    *router.Router
	ingestor  *ingest.Ingestor
	ledger    *dedup.Ledger
	validator *validator.Validate
}

func NewAPIHandlers(
	persistence store.Store,
	workflowRouter *router.Router,
	ingestor *ingest.Ingestor,
	ledger *dedup.Ledger,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		store:     persistence,
		router:    workflowRouter,
		ingestor:  ingestor,
		ledger:    ledger,
		validator: validate,
	}
}

func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req TriggerWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.router.Route(c.Context(), router.Request{
		WorkflowID:          workflowID,
		Action:              req.Action,
		Payload:             req.Payload,
		SourceService:       req.SourceService,
		UserID:              req.UserID,
		DetectedHost:        c.Hostname(),
		CallbackURLOverride: req.CallbackURLOverride,
	})
	if err != nil {
		return handleRouteError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *APIHandlers) Callback(c fiber.Ctx) error {
	var raw map[string]any
	if err := c.Bind().JSON(&raw); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	resp, err := h.ingestor.Ingest(c.Context(), raw)
	if err != nil {
		return handleIngestError(c, err)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) ListTraces(c fiber.Ctx) error {
	req, err := h.parseListTracesRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	page, err := h.store.ListTraces(c.Context(), *req)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"traces":        page.Traces,
		"total_count":   page.TotalCount,
		"has_next_page": page.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) parseListTracesRequest(c fiber.Ctx) (*store.ListTracesRequest, error) {
	req := &store.ListTracesRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.WorkflowID = c.Query("workflowId")

	if statusStr := c.Query("status"); statusStr != "" {
		req.Status = models.TraceStatus(statusStr)
	}

	return req, nil
}

func (h *APIHandlers) GetTrace(c fiber.Ctx) error {
	traceID := c.Params("traceId")
	if traceID == "" {
		return badRequest(c, "Trace ID is required")
	}

	traces, err := h.store.TracesByTraceID(c.Context(), traceID)
	if err != nil {
		return handleStoreError(c, err)
	}

	if len(traces) == 0 {
		return notFound(c, "trace not found")
	}

	return c.JSON(fiber.Map{"trace_id": traceID, "traces": traces})
}

func (h *APIHandlers) ListWorkflowExecutions(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	executions, err := h.store.ExecutionsByWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.store.ExecutionByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	traces, err := h.store.TracesByTraceID(c.Context(), execution.TriggerTraceID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(ExecutionTimelineResponse{Execution: execution, Traces: traces})
}

func (h *APIHandlers) ListTopics(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	hoursBack := dedup.DefaultFreshness
	if hoursStr := c.Query("hours"); hoursStr != "" {
		hours, err := strconv.Atoi(hoursStr)
		if err != nil || hours <= 0 {
			return badRequest(c, "Invalid hours parameter")
		}

		hoursBack = time.Duration(hours) * time.Hour
	}

	topics, err := h.store.RecentTopics(c.Context(), workflowID, time.Now().UTC().Add(-hoursBack))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"topics": topics})
}

func (h *APIHandlers) RecordTopic(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req RecordTopicRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.ledger.Record(c.Context(), workflowID, req.Headline, req.Metadata); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":       true,
		"headline_hash": models.HeadlineHash(req.Headline),
	})
}

func (h *APIHandlers) CleanupTopics(c fiber.Ctx) error {
	if hoursStr := c.Query("hours"); hoursStr != "" {
		hours, err := strconv.Atoi(hoursStr)
		if err != nil || hours <= 0 {
			return badRequest(c, "Invalid hours parameter")
		}

		cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

		deleted, err := h.store.DeleteTopicsBefore(c.Context(), cutoff)
		if err != nil {
			return handleStoreError(c, err)
		}

		return c.JSON(fiber.Map{"deleted": deleted})
	}

	deleted, err := h.ledger.Cleanup(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"deleted": deleted})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeErr := h.store.HealthCheck(c.Context())

	status := "healthy"
	message := "Pitchwire API is healthy"
	httpStatus := http.StatusOK
	storeCheck := "ok"

	if storeErr != nil {
		status = "unhealthy"
		message = "Pitchwire API is unhealthy"
		httpStatus = http.StatusInternalServerError
		storeCheck = storeErr.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
