package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/lariat-run/lariat/pkg/cmd"
	"github.com/lariat-run/lariat/pkg/log"
	"github.com/lariat-run/lariat/pkg/queue"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "lariat-worker",
		EnableShellCompletion: true,
		Usage:                 "Start consumers that execute queued flow nodes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "queue",
				Usage:    "Queue provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("QUEUE_PROVIDER"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces for task execution",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("lariat-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Lariat Worker")

			registry := cmd.NewRegistry(logger)

			publisher, subscriber, err := cmd.NewChannel(command.String("queue"), logger, "lariat-worker")
			if err != nil {
				return err
			}

			tracer, err := newTracer(ctx, command.Bool("tracing"))
			if err != nil {
				return err
			}

			consumer := queue.NewConsumer(
				workerID,
				logger,
				registry,
				subscriber,
				queue.NewTaskPublisher(publisher),
				tracer,
			)

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			go func() {
				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
				<-sigChan

				logger.Info("Shutting down worker")
				cancel()
			}()

			if err := consumer.Run(runCtx); err != nil {
				logger.ErrorContext(ctx, "Consumer stopped with error", "error", err)

				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
