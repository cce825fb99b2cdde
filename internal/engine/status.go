package engine

import (
	"context"
	"time"

	"github.com/zheng/gpuswitch/pkg/models"
)

// ModeInfo returns the mode-scoped subset of the status payload (GET
// /mode).
func (e *Engine) ModeInfo() models.ModeInfo {
	mode := e.store.ReadMode()
	info := models.ModeInfo{Active: mode, Default: e.cfg.DefaultModel}

	expiresAt, ok := e.store.ReadLease()
	if !ok {
		return info
	}

	remaining := time.Until(expiresAt)
	info.Lease = models.LeaseInfo{
		ExpiresAt:       &expiresAt,
		RemainingSecond: int64(remaining.Seconds()),
		Expired:         remaining <= 0,
	}
	return info
}

// Models returns the static model catalogue (GET /models).
func (e *Engine) Models() models.ModelsResponse {
	return models.ModelsResponse{Models: e.catalog.Models}
}

// Status assembles the full status payload (GET /status). Container
// reads happen without holding any engine lock; the job snapshot and
// last-error slot are read under their own locks — callers must tolerate
// a marginally stale composite view, per Design Notes.
func (e *Engine) Status(ctx context.Context) models.StatusPayload {
	mode := e.store.ReadMode()
	activeModel := e.store.ReadActiveModel()

	running, _ := e.runningBackends(ctx)

	containers := make(map[string]models.ContainerSnapshot, len(e.catalog.Models)+1)
	for _, m := range e.catalog.Models {
		containers[m.ID] = e.snapshotContainer(ctx, m.ContainerName)
	}
	containers["comfy"] = e.snapshotContainer(ctx, e.catalog.ComfyContainer)
	containers["gateway"] = e.snapshotContainer(ctx, e.catalog.GatewayContainer)

	lastError, lastSwitchAt := e.lastErrorAndSwitch()

	var ramGB float64
	if e.ram != nil {
		if gb, err := e.ram.AvailableGB(); err == nil {
			ramGB = gb
		}
	}

	return models.StatusPayload{
		RunningModels:    running,
		ActiveModel:      activeModel,
		ActiveMode:       mode,
		Mode:             e.ModeInfo(),
		Containers:       containers,
		SwitchInProgress: e.SwitchInProgress(),
		LastError:        lastError,
		LastSwitchAt:     lastSwitchAt,
		Switch:           e.CurrentSwitch(),
		HostRAMGB:        ramGB,
	}
}

func (e *Engine) snapshotContainer(ctx context.Context, name string) models.ContainerSnapshot {
	info, err := e.port.Inspect(ctx, name)
	if err != nil {
		return models.ContainerSnapshot{Error: err.Error()}
	}
	if !info.Exists {
		return models.ContainerSnapshot{Exists: false}
	}
	status := info.Status
	health := info.Health
	return models.ContainerSnapshot{Exists: true, Status: &status, Health: &health}
}

// Ready implements GET /healthz/ready: ready iff mode=llm, exactly one
// backend is running, an active model is recorded, and that running
// backend matches it. reason names which of those conditions failed,
// for a distinct log message per 503 cause.
func (e *Engine) Ready(ctx context.Context) (resp models.ReadyResponse, ready bool, reason string) {
	mode := e.store.ReadMode()
	activeModel := e.store.ReadActiveModel()
	resp = models.ReadyResponse{ActiveModel: activeModel}

	if mode != models.ModeLLM {
		return resp, false, "mode is not llm"
	}
	if activeModel == "" {
		return resp, false, "no active model recorded"
	}

	running, err := e.runningBackends(ctx)
	if err != nil {
		return resp, false, "failed to inspect backends"
	}
	if len(running) != 1 {
		return resp, false, "expected exactly one running backend"
	}
	if running[0] != activeModel {
		return resp, false, "running backend does not match active model"
	}

	resp.Status = "ready"
	return resp, true, ""
}
