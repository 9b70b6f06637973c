// Package main provides the Pitchwire API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/pitchwire/pitchwire/pkg/dedup"
	"github.com/pitchwire/pitchwire/pkg/ingest"
	"github.com/pitchwire/pitchwire/pkg/router"
	"github.com/pitchwire/pitchwire/pkg/store"
	"github.com/pitchwire/pitchwire/pkg/web"
)

type API struct {
	logger   *slog.Logger
	store    store.Store
	router   *router.Router
	ingestor *ingest.Ingestor
	ledger   *dedup.Ledger
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence store.Store,
	workflowRouter *router.Router,
	ingestor *ingest.Ingestor,
	ledger *dedup.Ledger,
) *API {
	return &API{
		logger:   logger,
		store:    persistence,
		router:   workflowRouter,
		ingestor: ingestor,
		ledger:   ledger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.store, a.router, a.ingestor, a.ledger, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Pitchwire API")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
