// Package main provides the pitchwire operator CLI.
package main

import (
	"context"
	"os"

	"github.com/pitchwire/pitchwire/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "pitchwire",
		Usage:                 "Compile, trigger and maintain newsletter workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			CompileCommand(),
			TriggerCommand(),
			TopicsCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("cli").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
