package web

import "github.com/gofiber/fiber/v3"

// RegisterRoutes mounts the API surface on a fiber app.
func RegisterRoutes(app *fiber.App, handlers *APIHandlers) {
	api := app.Group("/api")

	workflows := api.Group("/workflows")
	workflows.Post("/callback", handlers.Callback)
	workflows.Post("/:workflowId/trigger", handlers.TriggerWorkflow)
	workflows.Get("/:workflowId/executions", handlers.ListWorkflowExecutions)
	workflows.Get("/:workflowId/topics", handlers.ListTopics)
	workflows.Post("/:workflowId/topics", handlers.RecordTopic)

	api.Get("/traces", handlers.ListTraces)
	api.Get("/traces/:traceId", handlers.GetTrace)
	api.Get("/executions/:id", handlers.GetExecution)
	api.Delete("/topics/cleanup", handlers.CleanupTopics)

	app.Get("/health", handlers.HealthCheck)
}
