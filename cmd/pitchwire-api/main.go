package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/pitchwire/pitchwire/pkg/cmd"
	"github.com/pitchwire/pitchwire/pkg/dedup"
	"github.com/pitchwire/pitchwire/pkg/engine"
	"github.com/pitchwire/pitchwire/pkg/events"
	"github.com/pitchwire/pitchwire/pkg/ingest"
	"github.com/pitchwire/pitchwire/pkg/log"
	"github.com/pitchwire/pitchwire/pkg/manifest"
	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/otelhelper"
	"github.com/pitchwire/pitchwire/pkg/poller"
	"github.com/pitchwire/pitchwire/pkg/router"
	"github.com/pitchwire/pitchwire/pkg/schedule"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9090

const serviceName = "pitchwire-api"

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "pitchwire-api",
		Usage:                 "Route, ingest and reconcile newsletter workflow runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for the trace and execution store",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the webhook URL cache (in-memory cache when unset)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "manifests-path",
				Usage:   "Path to the directory containing workflow manifests",
				Value:   "./manifests",
				Sources: cli.EnvVars("MANIFESTS_PATH"),
			},
			&cli.StringFlag{
				Name:     "engine-url",
				Usage:    "Base URL of the automation engine",
				Required: true,
				Sources:  cli.EnvVars("ENGINE_URL"),
			},
			&cli.StringFlag{
				Name:    "engine-api-key",
				Usage:   "API key for the automation engine admin API",
				Sources: cli.EnvVars("ENGINE_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "callback-url",
				Usage:   "Fallback callback URL sent to the engine when host detection fails",
				Sources: cli.EnvVars("CALLBACK_URL"),
			},
			&cli.StringFlag{
				Name:    "secrets-file",
				Usage:   "Path to a JSON file of secrets forwarded in trigger payloads",
				Sources: cli.EnvVars("SECRETS_FILE"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Pitchwire API")

			persistence, err := cmd.NewStore(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close store", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), serviceName, logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			urls, err := cmd.NewURLCache(ctx, logger, command.String("redis-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := urls.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close URL cache", "error", err)
				}
			}()

			manifests, err := manifest.NewLoader().LoadDir(command.String("manifests-path"))
			if err != nil {
				return err
			}

			engineURL := command.String("engine-url")

			err = urls.Populate(ctx, webhookURLs(engineURL, manifests))
			if err != nil {
				return err
			}

			secrets, err := loadSecrets(command.String("secrets-file"))
			if err != nil {
				return err
			}

			var tracer trace.Tracer
			if command.Bool("otel") {
				tracer, err = otelhelper.NewTracer(ctx, serviceName)
				if err != nil {
					return err
				}
			}

			ledger := dedup.NewLedger(logger, persistence)

			sweeper, err := dedup.NewSweeper(logger, ledger, dedup.DefaultSweepSchedule)
			if err != nil {
				return err
			}

			if err := sweeper.Start(ctx); err != nil {
				return err
			}

			defer func() {
				if err := sweeper.Stop(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to stop topic sweeper", "error", err)
				}
			}()

			engineClient := engine.NewClient(logger, engineURL, command.String("engine-api-key"))

			workflowRouter := router.NewRouter(
				logger,
				router.Config{
					ServiceName:         serviceName,
					CallbackURLFallback: command.String("callback-url"),
					Secrets:             secrets,
				},
				persistence,
				urls,
				engineClient,
				ledger,
				eventBus,
				tracer,
			)

			scheduler := schedule.NewScheduler(logger, workflowRouter)
			if err := scheduler.Start(ctx, manifestList(manifests)); err != nil {
				return err
			}

			defer func() {
				if err := scheduler.Stop(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
				}
			}()

			ingestor := ingest.NewIngestor(logger, persistence, ledger, eventBus)

			reconciler := poller.NewPoller(logger, engineClient, persistence, nil, eventBus, tracer)

			err = eventBus.Handle(events.ExecutionStartedEvent, func(ctx context.Context, event any) error {
				started, ok := event.(*events.ExecutionStarted)
				if !ok {
					return fmt.Errorf("unexpected event payload %T", event)
				}

				go func() {
					report, err := reconciler.Poll(ctx, poller.Request{
						WorkflowID:  started.WorkflowID,
						TraceID:     started.TraceID,
						ExecutionID: started.ExecutionID,
						TriggeredAt: started.Timestamp,
					}, poller.DefaultOptions())
					if err != nil {
						logger.ErrorContext(ctx, "Reconciliation failed", "execution_id", started.ExecutionID, "error", err)

						return
					}

					logger.InfoContext(ctx, "Reconciliation finished", "execution_id", started.ExecutionID, "status", report.Status, "attempts", report.Attempts)
				}()

				return nil
			})
			if err != nil {
				return err
			}

			if err := eventBus.Subscribe(ctx); err != nil {
				return err
			}

			api := NewAPI(logger, persistence, workflowRouter, ingestor, ledger)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

// webhookURLs derives each manifest's engine webhook URL from the engine base
// URL and the manifest's webhook path. Manifests without a webhook trigger are
// skipped; their workflows are only reachable by schedule or local handler.
func webhookURLs(engineURL string, manifests map[string]*models.WorkflowManifest) map[string]string {
	urls := make(map[string]string, len(manifests))

	for id, m := range manifests {
		if !m.Triggers.Webhook || m.WebhookPath == "" {
			continue
		}

		urls[id] = strings.TrimRight(engineURL, "/") + "/" + strings.TrimLeft(m.WebhookPath, "/")
	}

	return urls
}

func manifestList(manifests map[string]*models.WorkflowManifest) []*models.WorkflowManifest {
	list := make([]*models.WorkflowManifest, 0, len(manifests))
	for _, m := range manifests {
		list = append(list, m)
	}

	return list
}

func loadSecrets(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var secrets map[string]any
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, err
	}

	return secrets, nil
}
