package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zheng/gpuswitch/internal/engine"
	"github.com/zheng/gpuswitch/internal/gateway"
	"github.com/zheng/gpuswitch/internal/metrics"
	"github.com/zheng/gpuswitch/internal/orchestrator"
	"github.com/zheng/gpuswitch/internal/state"
	"github.com/zheng/gpuswitch/pkg/models"
)

func newTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func setupTestHandler(t *testing.T) (*Handler, *orchestrator.FakePort) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat := &models.Catalog{
		ComfyContainer:   "comfyui",
		GatewayContainer: "litellm",
		Models: []models.CatalogEntry{
			{ID: "qwen-fast", ContainerName: "vllm-qwen-fast", Template: "qwen-fast.yaml", GatewayModel: "qwen-fast"},
		},
	}

	configDir := t.TempDir()
	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "qwen-fast.yaml"), []byte("model: qwen-fast\n"), 0o644))
	store := state.New(configDir, templateDir)

	port := orchestrator.NewFakePort()
	port.SetContainer("vllm-qwen-fast", orchestrator.ContainerInfo{Exists: true, Status: "exited"})
	port.SetContainer("comfyui", orchestrator.ContainerInfo{Exists: true, Status: "exited"})
	port.SetContainer("litellm", orchestrator.ContainerInfo{Exists: true, Status: "exited"})

	probe := gateway.NewFakeProbe()
	probe.SetAvailable("qwen-fast")

	cfg := engine.Config{
		HealthTimeout:        time.Second,
		PollInterval:         time.Millisecond,
		LiteLLMVerifyTimeout: time.Second,
		ComfyDefaultTTL:      45 * time.Minute,
		ComfyMaxTTL:          90 * time.Minute,
		DefaultModel:         "qwen-fast",
	}

	e := engine.New(cat, store, port, probe, cfg, zerolog.Nop())
	h := New(e, metrics.New(newTestRegistry()))
	return h, port
}

func TestHealth(t *testing.T) {
	h, _ := setupTestHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health", nil)

	h.Health(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
}

func TestModels(t *testing.T) {
	h, _ := setupTestHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/models", nil)

	h.Models(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ModelsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 1)
}

func TestSwitchMode_Success(t *testing.T) {
	h, _ := setupTestHandler(t)

	body, _ := json.Marshal(models.SwitchRequest{Mode: models.ModeLLM, Model: "qwen-fast", WaitForReady: true})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/mode/switch", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.SwitchMode(c)

	require.Equal(t, http.StatusOK, w.Code)
	var job models.SwitchJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	require.Equal(t, models.JobSuccess, job.State)
}

func TestSwitchMode_InvalidJSON(t *testing.T) {
	h, _ := setupTestHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/mode/switch", bytes.NewBufferString("not json"))
	c.Request.Header.Set("Content-Type", "application/json")

	h.SwitchMode(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwitchMode_UnknownModelIsBadRequest(t *testing.T) {
	h, _ := setupTestHandler(t)

	body, _ := json.Marshal(models.SwitchRequest{Mode: models.ModeLLM, Model: "nope", WaitForReady: true})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/mode/switch", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.SwitchMode(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp["error"], "unknown model")
}

func TestSwitchMode_AsyncReturnsAccepted(t *testing.T) {
	h, _ := setupTestHandler(t)

	body, _ := json.Marshal(models.SwitchRequest{Mode: models.ModeLLM, Model: "qwen-fast", WaitForReady: false})

	w1 := httptest.NewRecorder()
	c1, _ := gin.CreateTestContext(w1)
	c1.Request = httptest.NewRequest("POST", "/mode/switch", bytes.NewReader(body))
	c1.Request.Header.Set("Content-Type", "application/json")
	h.SwitchMode(c1)
	require.Equal(t, http.StatusAccepted, w1.Code)

	var resp1 models.SwitchAcceptedResponse
	require.NoError(t, json.Unmarshal(w1.Body.Bytes(), &resp1))
	require.Equal(t, "accepted", resp1.Status)
}

func TestReady_ReportsServiceUnavailableWhenNoActiveModel(t *testing.T) {
	h, _ := setupTestHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/healthz/ready", nil)

	h.Ready(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestKindStatus_MapsAllKinds(t *testing.T) {
	cases := map[engine.Kind]int{
		engine.KindBadRequest:   http.StatusBadRequest,
		engine.KindPrecondition: http.StatusPreconditionFailed,
		engine.KindConflict:     http.StatusConflict,
		engine.KindTransport:    http.StatusBadGateway,
		engine.KindTimeout:      http.StatusGatewayTimeout,
		engine.KindUnhealthy:    http.StatusBadGateway,
		engine.KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, kindStatus(kind))
	}
}
