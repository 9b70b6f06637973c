package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pitchwire/pitchwire/pkg/compiler"
	"github.com/pitchwire/pitchwire/pkg/log"
	"github.com/pitchwire/pitchwire/pkg/manifest"
	cli "github.com/urfave/cli/v3"
)

func CompileCommand() *cli.Command {
	return &cli.Command{
		Name:    "compile",
		Aliases: []string{"c"},
		Usage:   "Compile a workflow manifest into an engine node graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "manifest",
				Aliases:  []string{"m"},
				Usage:    "Path to the workflow manifest file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "up-to-step",
				Usage: "Truncate the manifest after the named step before compiling",
			},
			&cli.BoolFlag{
				Name:  "troubleshoot",
				Usage: "Fork a diagnostic callback from every compiled sub-node",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the compiled graph to a file instead of stdout",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("cli")

			m, err := manifest.NewLoader().Load(command.String("manifest"))
			if err != nil {
				return err
			}

			compiled, err := compiler.New(logger).Compile(m, compiler.Options{
				UpToStep:     command.String("up-to-step"),
				Troubleshoot: command.Bool("troubleshoot"),
			})
			if err != nil {
				return err
			}

			data, err := compiled.MarshalEngine()
			if err != nil {
				return err
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, data, "", "  "); err != nil {
				return err
			}

			if out := command.String("output"); out != "" {
				return os.WriteFile(out, pretty.Bytes(), 0o644)
			}

			_, err = fmt.Fprintln(command.Writer, pretty.String())

			return err
		},
	}
}
