// Package httpapi is the HTTP surface: the gin router, middleware
// chain, and one handler per endpoint in spec §6's table. It holds no
// business logic of its own — every handler delegates to
// *engine.Engine and translates the result into the documented wire
// shape and status code.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zheng/gpuswitch/internal/engine"
	"github.com/zheng/gpuswitch/internal/metrics"
	"github.com/zheng/gpuswitch/pkg/models"
)

// Handler holds the collaborators every HTTP endpoint needs. Generalized
// from the teacher's handlers.Handler (internal/handlers/handlers.go),
// which held a single *switcher.Switcher; this one adds metrics and the
// requester-identity label the audit trail records.
type Handler struct {
	engine  *engine.Engine
	metrics *metrics.Metrics
}

// New builds a Handler.
func New(e *engine.Engine, m *metrics.Metrics) *Handler {
	return &Handler{engine: e, metrics: m}
}

// Health implements GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
}

// Ready implements GET /healthz/ready.
func (h *Handler) Ready(c *gin.Context) {
	resp, ready, reason := h.engine.Ready(c.Request.Context())
	if !ready {
		loggerFrom(c).Warn().Str("reason", reason).Msg("readiness check failed")
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Models implements GET /models.
func (h *Handler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Models())
}

// Status implements GET /status.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status(c.Request.Context()))
}

// Mode implements GET /mode.
func (h *Handler) Mode(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.ModeInfo())
}

// SwitchMode implements POST /mode/switch.
func (h *Handler) SwitchMode(c *gin.Context) {
	var req models.SwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.doSwitch(c, req)
}

// Switch implements POST /switch, the legacy LLM-only alias: the
// request carries only {model, wait_for_ready}, mode is always llm.
func (h *Handler) Switch(c *gin.Context) {
	var legacy struct {
		Model        string `json:"model"`
		WaitForReady bool   `json:"wait_for_ready"`
	}
	if err := c.ShouldBindJSON(&legacy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.doSwitch(c, models.SwitchRequest{
		Mode:         models.ModeLLM,
		Model:        legacy.Model,
		WaitForReady: legacy.WaitForReady,
	})
}

// Release implements POST /mode/release: a forced, synchronous return
// to the default LLM, always available to preempt ComfyUI mode.
func (h *Handler) Release(c *gin.Context) {
	job, err := h.engine.Release(c.Request.Context(), "api")
	if err != nil {
		h.writeEngineError(c, err)
		return
	}
	h.observeTerminal(job)
	c.JSON(http.StatusOK, job)
}

// Stop implements POST /stop.
func (h *Handler) Stop(c *gin.Context) {
	job := h.engine.Stop(c.Request.Context(), "api")
	if job == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "switch_in_progress"})
		return
	}
	h.observeTerminal(job)
	c.JSON(http.StatusOK, job)
}

// doSwitch is the shared body of SwitchMode and Switch: call the
// engine, then map the three possible shapes (terminal *Error, async
// acceptance, synchronous terminal job) to the documented responses.
func (h *Handler) doSwitch(c *gin.Context, req models.SwitchRequest) {
	job, accepted, err := h.engine.Switch(c.Request.Context(), req, "api")
	if err != nil {
		h.writeEngineError(c, err)
		return
	}

	if !req.WaitForReady {
		status := "in_progress"
		if accepted {
			status = "accepted"
		}
		c.JSON(http.StatusAccepted, models.SwitchAcceptedResponse{
			Status:       status,
			SwitchID:     job.ID,
			ToModel:      job.ToModel,
			StateText:    job.StateText,
			PollEndpoint: "/status",
		})
		return
	}

	h.observeTerminal(job)
	c.JSON(http.StatusOK, job)
}

// writeEngineError maps an *engine.Error to its documented HTTP status
// (§7's Kind table), in one lookup rather than scattered if-chains.
func (h *Handler) writeEngineError(c *gin.Context, err *engine.Error) {
	c.JSON(kindStatus(err.Kind), gin.H{"error": err.Error()})
}

// observeTerminal records the Prometheus outcome for a job that reached
// a terminal state synchronously.
func (h *Handler) observeTerminal(job *models.SwitchJob) {
	if job == nil || h.metrics == nil || !job.State.Terminal() {
		return
	}
	h.metrics.Observe(string(job.State), float64(job.DurationMS)/1000.0, job.State == models.JobRolledBack)
}

var kindStatusTable = map[engine.Kind]int{
	engine.KindBadRequest:  http.StatusBadRequest,
	engine.KindPrecondition: http.StatusPreconditionFailed,
	engine.KindConflict:    http.StatusConflict,
	engine.KindTransport:   http.StatusBadGateway,
	engine.KindTimeout:     http.StatusGatewayTimeout,
	engine.KindUnhealthy:   http.StatusBadGateway,
	engine.KindInternal:    http.StatusInternalServerError,
}

func kindStatus(k engine.Kind) int {
	if status, ok := kindStatusTable[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}
