package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/lariat-run/lariat/pkg/engine"
	"github.com/lariat-run/lariat/pkg/models"
	"github.com/lariat-run/lariat/pkg/registry"
	"github.com/lariat-run/lariat/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp() *fiber.App {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := registry.New(logger)
	reg.RegisterDefaultWorkers()

	store := web.NewRunStore()
	orchestrator := engine.New(logger, reg, engine.WithReportFunc(store.Report))

	app := NewAPI(logger, orchestrator, reg, store)

	return app.App()
}

func executeBody(t *testing.T, wait bool) *bytes.Reader {
	t.Helper()

	body, err := json.Marshal(web.ExecuteFlowRequest{
		Flow: &models.Flow{
			ID: "flow-api",
			Nodes: []*models.Node{
				{ID: "a", Type: "passthrough"},
			},
		},
		Inputs: map[string]any{"main": "hello"},
		Wait:   wait,
	})
	require.NoError(t, err)

	return bytes.NewReader(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Lariat Execution API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_ExecuteFlow_Sync(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodPost, "/executions/", executeBody(t, true))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result web.ExecutionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "flow-api", result.FlowID)
	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.Equal(t, "hello", result.Outputs["a"]["main"])
}

func TestAPI_ExecuteFlow_Async(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodPost, "/executions/", executeBody(t, false))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted web.ExecutionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	require.NotEmpty(t, accepted.RunID)
	assert.Equal(t, models.RunStatusPending, accepted.Status)

	// The run finishes in the background; its terminal record stays queryable.
	assert.Eventually(t, func() bool {
		statusReq := httptest.NewRequest(http.MethodGet, "/executions/"+accepted.RunID, nil)

		statusResp, err := app.Test(statusReq)
		if err != nil {
			return false
		}
		defer statusResp.Body.Close()

		if statusResp.StatusCode != http.StatusOK {
			return false
		}

		var state web.ExecutionResponse
		if err := json.NewDecoder(statusResp.Body).Decode(&state); err != nil {
			return false
		}

		return state.Status == models.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAPI_ExecuteFlow_MissingFlow(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodPost, "/executions/", bytes.NewReader([]byte(`{"wait": true}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Missing flow definition")
}

func TestAPI_ExecuteFlow_InvalidFlow(t *testing.T) {
	app := setupTestApp()

	body, err := json.Marshal(web.ExecuteFlowRequest{
		Flow: &models.Flow{ID: "flow-bad"},
		Wait: true,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/executions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetExecution_NotFound(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodGet, "/executions/run-missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CancelExecution_NotFound(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodDelete, "/executions/run-missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListWorkers(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodGet, "/workers", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Workers []web.WorkerResponse `json:"workers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	types := make([]string, 0, len(payload.Workers))
	for _, w := range payload.Workers {
		types = append(types, w.Type)
	}

	assert.Contains(t, types, "passthrough")
	assert.Contains(t, types, "conditional")
	assert.Contains(t, types, "llm:openai")
}
