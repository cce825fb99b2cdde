// Package engine is the switch engine: the pipeline state machine, its
// concurrency and locking discipline, the rollback protocol, and the
// switch-job tracking data model. It is the single writer of the
// Active-State Store and the sole owner of the global switch lock.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zheng/gpuswitch/internal/catalog"
	"github.com/zheng/gpuswitch/internal/gateway"
	"github.com/zheng/gpuswitch/internal/hostinfo"
	"github.com/zheng/gpuswitch/internal/orchestrator"
	"github.com/zheng/gpuswitch/internal/state"
	"github.com/zheng/gpuswitch/pkg/models"
)

// Config is the subset of operational settings the engine consults
// directly (the rest — admin token, directories, listen address — are
// consumed by the HTTP surface and the store/catalog constructors).
type Config struct {
	HealthTimeout        time.Duration
	PollInterval         time.Duration
	LiteLLMVerifyTimeout time.Duration
	ComfyDefaultTTL      time.Duration
	ComfyMaxTTL          time.Duration
	DefaultModel         string
}

// Engine is the switch engine. Tests construct a fresh Engine per case
// rather than relying on process-wide globals.
type Engine struct {
	catalog *models.Catalog
	store   *state.Store
	port    orchestrator.Port
	probe   gateway.Prober
	ram     hostinfo.RAMFetcher
	cfg     Config
	log     zerolog.Logger

	switchMu sync.Mutex // SWITCH_LOCK: global, non-reentrant, acquired non-blocking
	jobs     *jobTracker

	stateMu      sync.Mutex // STATE_LOCK
	lastError    string
	lastSwitchAt *time.Time
}

// New builds an Engine. catalog, store, port, probe, and cfg are all
// required; log may be the zero value (a disabled logger).
func New(cat *models.Catalog, store *state.Store, port orchestrator.Port, probe gateway.Prober, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		catalog: cat,
		store:   store,
		port:    port,
		probe:   probe,
		cfg:     cfg,
		log:     log,
		jobs:    newJobTracker(),
	}
}

// WithRAMFetcher attaches a host-RAM reading source, populating
// StatusPayload.HostRAMGB. Optional: a nil/unset fetcher simply leaves
// that field at its zero value.
func (e *Engine) WithRAMFetcher(f hostinfo.RAMFetcher) *Engine {
	e.ram = f
	return e
}

// Reconcile runs the startup-reconciliation pass against the
// Active-State Store (a supplemented feature resolving the spec's first
// open question) and logs if it healed a crash-mid-pair inconsistency.
func (e *Engine) Reconcile() {
	healed, err := e.store.Reconcile()
	if err != nil {
		e.log.Warn().Err(err).Msg("startup reconciliation failed")
		return
	}
	if healed {
		e.log.Warn().Msg("startup reconciliation: cleared inconsistent active_config/active_model pair")
	}
}

// Switch validates and runs (or enqueues) a mode/model transition.
// requestedBy identifies the caller for the audit log (e.g. "api" for
// HTTP callers, "lease_monitor" for the autonomous lease monitor).
// accepted is only meaningful for an async (wait_for_ready=false) call:
// true means this call just started a brand-new job ("accepted" per
// §6's table), false means it instead observed an already in-flight
// job from an earlier overlapping call ("in_progress", per S6).
func (e *Engine) Switch(ctx context.Context, req models.SwitchRequest, requestedBy string) (job *models.SwitchJob, accepted bool, err *Error) {
	mode, model, ttl, verr := e.validate(req)
	if verr != nil {
		return nil, false, verr
	}

	if req.WaitForReady {
		if !e.switchMu.TryLock() {
			return nil, false, conflict("switch_in_progress")
		}
		j := e.newPipelineJob(mode, model)
		preErr := e.runPipeline(ctx, j, mode, model, ttl, requestedBy)
		e.switchMu.Unlock()
		if preErr != nil {
			return e.jobs.snapshot(j), true, preErr
		}
		return e.jobs.snapshot(j), true, nil
	}

	if !e.switchMu.TryLock() {
		if cur := e.jobs.currentSnapshot(); cur != nil {
			return cur, false, nil
		}
		return nil, false, conflict("switch_in_progress")
	}

	j := e.newPipelineJob(mode, model)
	snap := e.jobs.snapshot(j)
	go func() {
		defer e.switchMu.Unlock()
		_ = e.runPipeline(context.Background(), j, mode, model, ttl, requestedBy)
	}()
	return snap, true, nil
}

// Release forces a synchronous return to the default LLM, preempting
// ComfyUI mode. It fails with Conflict if a switch is already running.
func (e *Engine) Release(ctx context.Context, requestedBy string) (*models.SwitchJob, *Error) {
	job, _, err := e.Switch(ctx, models.SwitchRequest{
		Mode:         models.ModeLLM,
		Model:        e.cfg.DefaultModel,
		WaitForReady: true,
	}, requestedBy)
	return job, err
}

// Stop stops every backend and ComfyUI, sets mode to llm, and clears the
// lease, regardless of which model was previously active.
func (e *Engine) Stop(ctx context.Context, requestedBy string) *models.SwitchJob {
	if !e.switchMu.TryLock() {
		return nil
	}
	defer e.switchMu.Unlock()

	job := e.jobs.start(e.store.ReadActiveModel(), "mode:stopped")
	e.jobs.setStateText(job, "stop_all")

	allOK := true
	for _, m := range e.catalog.Models {
		if err := e.port.Stop(ctx, m.ContainerName); err != nil {
			allOK = false
		}
	}
	e.jobs.step(job, "stop_models", allOK, "")

	litellmErr := e.port.Stop(ctx, e.catalog.GatewayContainer)
	e.jobs.step(job, "stop_litellm", litellmErr == nil, errString(litellmErr))

	comfyErr := e.port.Stop(ctx, e.catalog.ComfyContainer)
	e.jobs.step(job, "stop_comfy", comfyErr == nil, errString(comfyErr))

	if err := e.store.WriteMode(models.ModeLLM); err != nil {
		e.jobs.finish(job, models.JobFailed, err.Error())
		e.recordOutcome(models.JobFailed, err.Error(), job, requestedBy)
		return e.jobs.snapshot(job)
	}

	e.jobs.finish(job, models.JobSuccess, "")
	e.recordOutcome(models.JobSuccess, "", job, requestedBy)
	return e.jobs.snapshot(job)
}

// DriveLeaseExpiry attempts one lease-monitor-triggered return to the
// default LLM. It never blocks: if the switch lock is busy it returns
// nil, and the lease monitor simply tries again next tick.
func (e *Engine) DriveLeaseExpiry(ctx context.Context) *models.SwitchJob {
	if !e.switchMu.TryLock() {
		return nil
	}
	defer e.switchMu.Unlock()

	job := e.newPipelineJob(models.ModeLLM, e.cfg.DefaultModel)
	e.jobs.setStateText(job, "lease_expired")
	_ = e.runPipeline(ctx, job, models.ModeLLM, e.cfg.DefaultModel, 0, "lease_monitor")
	return e.jobs.snapshot(job)
}

// CurrentSwitch returns a deep-copy snapshot of the ongoing or
// most-recent job, or nil if no switch has ever run.
func (e *Engine) CurrentSwitch() *models.SwitchJob {
	return e.jobs.currentSnapshot()
}

// SwitchInProgress reports whether the switch lock is currently held.
func (e *Engine) SwitchInProgress() bool {
	if e.switchMu.TryLock() {
		e.switchMu.Unlock()
		return false
	}
	return true
}

func (e *Engine) newPipelineJob(mode models.Mode, model string) *models.SwitchJob {
	from := e.store.ReadActiveModel()
	return e.jobs.start(from, targetLabel(mode, model))
}

// runPipeline drives one transition to completion and records its
// terminal outcome. The returned *Error is non-nil only when the
// pipeline failed before its disruptive boundary (e.g. a Precondition
// from preflight, or a transport error from a pre-boundary step) — a
// synchronous caller surfaces that directly instead
// of the generic "job failed" shape, per spec §7's status-code table.
func (e *Engine) runPipeline(ctx context.Context, job *models.SwitchJob, mode models.Mode, model string, ttl time.Duration, requestedBy string) *Error {
	pc := &pipelineCtx{
		job:            job,
		ttl:            ttl,
		previousMode:   e.store.ReadMode(),
		previousModel:  job.FromModel,
		previousConfig: e.store.ReadConfig(),
	}

	var finalState models.JobState
	var errMsg string
	var preErr *Error
	if mode == models.ModeComfy {
		pc.toComfy = true
		finalState, errMsg, preErr = e.runComfy(ctx, pc)
	} else {
		finalState, errMsg, preErr = e.runLLM(ctx, pc, model)
	}

	e.jobs.finish(job, finalState, errMsg)
	e.recordOutcome(finalState, errMsg, job, requestedBy)
	return preErr
}

func (e *Engine) validate(req models.SwitchRequest) (models.Mode, string, time.Duration, *Error) {
	if !req.Mode.Valid() {
		return "", "", 0, badRequest("unknown mode %q", req.Mode)
	}

	switch req.Mode {
	case models.ModeLLM:
		if req.TTLMinutes != 0 {
			return "", "", 0, badRequest("ttl_minutes must be absent for mode=llm")
		}
		model := req.Model
		if model == "" {
			if active := e.store.ReadActiveModel(); active != "" {
				model = active
			} else {
				model = e.cfg.DefaultModel
			}
		}
		if !catalog.Known(e.catalog, model) {
			return "", "", 0, badRequest("unknown model %q", model)
		}
		return models.ModeLLM, model, 0, nil

	case models.ModeComfy:
		if req.Model != "" {
			return "", "", 0, badRequest("model must be absent for mode=comfy")
		}
		minutes := req.TTLMinutes
		if minutes == 0 {
			minutes = int(e.cfg.ComfyDefaultTTL / time.Minute)
		}
		ttl := time.Duration(minutes) * time.Minute
		if minutes <= 0 || ttl > e.cfg.ComfyMaxTTL {
			return "", "", 0, badRequest("ttl_minutes must be in (0, %d]", int(e.cfg.ComfyMaxTTL/time.Minute))
		}
		return models.ModeComfy, "", ttl, nil
	}

	return "", "", 0, badRequest("unknown mode %q", req.Mode)
}

func (e *Engine) recordOutcome(state models.JobState, errMsg string, job *models.SwitchJob, requestedBy string) {
	e.stateMu.Lock()
	now := time.Now()
	e.lastSwitchAt = &now
	if state == models.JobSuccess {
		e.lastError = ""
	} else {
		e.lastError = errMsg
	}
	e.stateMu.Unlock()

	// Audit trail (supplemented feature): one structured log line per
	// terminal job state, in place of the original's JSON-lines file.
	e.log.Info().
		Str("component", "switch_engine").
		Int64("switch_id", job.ID).
		Str("from_model", job.FromModel).
		Str("to_model", job.ToModel).
		Str("state", string(state)).
		Str("requested_by", requestedBy).
		Msg("switch job terminal")
}

func (e *Engine) lastErrorAndSwitch() (string, *time.Time) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	var at *time.Time
	if e.lastSwitchAt != nil {
		t := *e.lastSwitchAt
		at = &t
	}
	return e.lastError, at
}

func targetLabel(mode models.Mode, model string) string {
	if mode == models.ModeComfy {
		return "mode:comfy"
	}
	return model
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
