package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pitchwire/pitchwire/pkg/cmd"
	"github.com/pitchwire/pitchwire/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultCleanupHours = 48

func TopicsCommand() *cli.Command {
	return &cli.Command{
		Name:  "topics",
		Usage: "Manage the used-topic ledger",
		Commands: []*cli.Command{
			{
				Name:  "cleanup",
				Usage: "Delete ledger entries older than the retention window",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "database-url",
						Usage:    "Database connection URL for the trace and execution store",
						Required: true,
						Sources:  cli.EnvVars("DATABASE_URL"),
					},
					&cli.IntFlag{
						Name:  "hours",
						Usage: "Retention window in hours",
						Value: defaultCleanupHours,
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					logger := log.WithModule("cli")

					hours := command.Int("hours")
					if hours <= 0 {
						return fmt.Errorf("hours must be positive, got %d", hours)
					}

					persistence, err := cmd.NewStore(ctx, logger, command.String("database-url"))
					if err != nil {
						return err
					}

					defer func() {
						if err := persistence.Close(ctx); err != nil {
							logger.Error("Failed to close store", "error", err)
						}
					}()

					cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

					deleted, err := persistence.DeleteTopicsBefore(ctx, cutoff)
					if err != nil {
						return err
					}

					logger.Info("Deleted stale topic entries", "deleted", deleted, "hours", hours)

					return nil
				},
			},
		},
	}
}
