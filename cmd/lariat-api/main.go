package main

import (
	"context"
	"os"

	"github.com/lariat-run/lariat/pkg/cmd"
	"github.com/lariat-run/lariat/pkg/engine"
	"github.com/lariat-run/lariat/pkg/log"
	"github.com/lariat-run/lariat/pkg/queue"
	"github.com/lariat-run/lariat/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "lariat-api",
		Usage:                 "Execute node-based flows over HTTP",
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
				Name:    "queue",
				Usage:   "Offload node execution to queue consumers (kafka, gochannel); empty runs nodes in-process",
				Value:   "",
				Sources: cli.EnvVars("QUEUE_PROVIDER"),
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

			logger.InfoContext(ctx, "Initializing Lariat API")

			registry := cmd.NewRegistry(logger)
			store := web.NewRunStore()

			opts := []engine.Option{
				engine.WithReportFunc(store.Report),
			}

			if provider := command.String("queue"); provider != "" {
				publisher, subscriber, err := cmd.NewChannel(provider, logger, "lariat-api")
				if err != nil {
					return err
				}

				dispatcher := queue.NewDispatcher(logger, queue.NewTaskPublisher(publisher), subscriber)
				if err := dispatcher.Start(ctx); err != nil {
					return err
				}

				opts = append(opts, engine.WithDispatcher(dispatcher))
			}

			orchestrator := engine.New(logger, registry, opts...)

			api := NewAPI(logger, orchestrator, registry, store)

			err := api.Start(command.Int("port"))
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
