// Package web provides the HTTP surface of the execution engine.
package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/lariat-run/lariat/pkg/engine"
	"github.com/lariat-run/lariat/pkg/models"
	"github.com/lariat-run/lariat/pkg/registry"
)

type APIHandlers struct {
	logger       *slog.Logger
	orchestrator *engine.Orchestrator
	registry     *registry.Registry
	store        *RunStore
}

func NewAPIHandlers(
	logger *slog.Logger,
	orchestrator *engine.Orchestrator,
	registry *registry.Registry,
	store *RunStore,
) *APIHandlers {
	return &APIHandlers{
		logger:       logger,
		orchestrator: orchestrator,
		registry:     registry,
		store:        store,
	}
}

// ExecuteFlow starts a run for the flow in the request body. By default the
// run proceeds in the background and the response carries its run id; with
// "wait": true the call blocks until the run is terminal.
func (h *APIHandlers) ExecuteFlow(c fiber.Ctx) error {
	var req ExecuteFlowRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if req.Flow == nil {
		return badRequest(c, "Missing flow definition")
	}

	if req.Wait {
		state, err := h.orchestrator.Run(c.Context(), req.Flow, req.Inputs)
		if err != nil {
			h.logger.Warn("Flow rejected", "flow_id", req.Flow.ID, "error", err)

			return badRequest(c, err.Error())
		}

		return c.JSON(TransformStateResponse(state))
	}

	runID := h.orchestrator.RunAsync(c.Context(), req.Flow, req.Inputs)

	return c.Status(fiber.StatusAccepted).JSON(ExecutionResponse{
		RunID:  runID,
		FlowID: req.Flow.ID,
		Status: models.RunStatusPending,
	})
}

// GetExecution returns the state of a run, live while it executes and from
// the terminal store afterwards.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	runID := c.Params("id")

	if state, ok := h.orchestrator.State(runID); ok {
		return c.JSON(TransformStateResponse(state))
	}

	if record, ok := h.store.Get(runID); ok {
		return c.JSON(record)
	}

	return notFound(c, "execution not found")
}

// CancelExecution requests cooperative cancellation of a running flow.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	runID := c.Params("id")

	if !h.orchestrator.Cancel(runID) {
		return notFound(c, "execution not found or already finished")
	}

	h.logger.Info("Execution cancellation requested", "run_id", runID)

	return c.JSON(fiber.Map{"run_id": runID, "status": models.RunStatusCancelled})
}

// ListWorkers returns the registered worker types with their config schemas.
func (h *APIHandlers) ListWorkers(c fiber.Ctx) error {
	factories := h.registry.AvailableWorkers()
	workers := make([]WorkerResponse, 0, len(factories))

	for _, factory := range factories {
		workers = append(workers, WorkerResponse{
			Type:        factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return c.JSON(fiber.Map{"workers": workers})
}

// HealthCheck reports service liveness.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
