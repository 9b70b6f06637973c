package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pitchwire/pitchwire/pkg/cmd"
	"github.com/pitchwire/pitchwire/pkg/dedup"
	"github.com/pitchwire/pitchwire/pkg/engine"
	"github.com/pitchwire/pitchwire/pkg/log"
	"github.com/pitchwire/pitchwire/pkg/router"
	cli "github.com/urfave/cli/v3"
)

func TriggerCommand() *cli.Command {
	return &cli.Command{
		Name:    "trigger",
		Aliases: []string{"t"},
		Usage:   "Trigger a workflow run through the automation engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "workflow-id",
				Aliases:  []string{"w"},
				Usage:    "Workflow to trigger",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "action",
				Aliases: []string{"a"},
				Usage:   "Action routed to the workflow",
				Value:   "generate",
			},
			&cli.StringFlag{
				Name:    "payload",
				Aliases: []string{"p"},
				Usage:   "Path to a JSON file with the trigger payload",
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for the trace and execution store",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
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
				Name:    "webhook-url",
				Usage:   "Engine webhook URL for the workflow (overrides cache lookup)",
				Sources: cli.EnvVars("WEBHOOK_URL"),
			},
			&cli.StringFlag{
				Name:    "callback-url",
				Usage:   "Callback URL the engine reports step completions to",
				Sources: cli.EnvVars("CALLBACK_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("cli")

			persistence, err := cmd.NewStore(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close store", "error", err)
				}
			}()

			payload, err := loadPayload(command.String("payload"))
			if err != nil {
				return err
			}

			urls, err := cmd.NewURLCache(ctx, logger, "")
			if err != nil {
				return err
			}

			workflowID := command.String("workflow-id")

			if webhookURL := command.String("webhook-url"); webhookURL != "" {
				if err := urls.Set(ctx, workflowID, webhookURL); err != nil {
					return err
				}
			}

			engineClient := engine.NewClient(logger, command.String("engine-url"), command.String("engine-api-key"))
			ledger := dedup.NewLedger(logger, persistence)

			workflowRouter := router.NewRouter(
				logger,
				router.Config{CallbackURLFallback: command.String("callback-url")},
				persistence,
				urls,
				engineClient,
				ledger,
				nil,
				nil,
			)

			result, err := workflowRouter.Route(ctx, router.Request{
				WorkflowID:    workflowID,
				Action:        command.String("action"),
				Payload:       payload,
				SourceService: "pitchwire-cli",
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(command.Writer, string(out))

			return err
		},
	}
}

func loadPayload(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload file: %w", err)
	}

	return payload, nil
}
