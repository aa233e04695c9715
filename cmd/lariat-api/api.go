package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/lariat-run/lariat/pkg/engine"
	"github.com/lariat-run/lariat/pkg/registry"
	"github.com/lariat-run/lariat/pkg/web"
)

type API struct {
	logger       *slog.Logger
	orchestrator *engine.Orchestrator
	registry     *registry.Registry
	store        *web.RunStore
}

func NewAPI(
	logger *slog.Logger,
	orchestrator *engine.Orchestrator,
	registry *registry.Registry,
	store *web.RunStore,
) *API {
	return &API{
		logger:       logger,
		orchestrator: orchestrator,
		registry:     registry,
		store:        store,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.logger, a.orchestrator, a.registry, a.store)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Lariat Execution API")
	})

	e := app.Group("/executions")
	e.Post("/", handlers.ExecuteFlow)
	e.Get("/:id", handlers.GetExecution)
	e.Delete("/:id", handlers.CancelExecution)

	app.Get("/workers", handlers.ListWorkers)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
