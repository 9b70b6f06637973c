package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/pitchwire/pitchwire/pkg/ingest"
	"github.com/pitchwire/pitchwire/pkg/router"
	"github.com/pitchwire/pitchwire/pkg/store"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleIngestError maps ingestion failures: schema violations are the
// caller's fault, everything else is ours.
func handleIngestError(c fiber.Ctx, err error) error {
	var validationErr *ingest.ValidationError
	if errors.As(err, &validationErr) {
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("callback_validation_error").
			WithDetail(validationErr.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)
	}

	return internalError(c, err)
}

// handleRouteError distinguishes retryable engine trouble (502) from
// configuration problems (422).
func handleRouteError(c fiber.Ctx, err error) error {
	var routeErr *router.RouteError
	if !errors.As(err, &routeErr) {
		return internalError(c, err)
	}

	if routeErr.Retryable {
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("engine_unavailable").
			WithDetail(routeErr.Message)

		return c.Status(fiber.StatusBadGateway).JSON(problem)
	}

	problem := problems.NewStatusProblem(422).
		WithInstance(c.Path()).
		WithType("routing_error").
		WithDetail(routeErr.Message)

	return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)
}

func handleStoreError(c fiber.Ctx, err error) error {
	switch {
	case store.IsTraceNotFound(err):
		return notFound(c, "trace not found")
	case store.IsExecutionNotFound(err):
		return notFound(c, "execution not found")
	default:
		return internalError(c, err)
	}
}
