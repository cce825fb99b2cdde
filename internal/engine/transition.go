package engine

import (
	"context"

	"github.com/zheng/gpuswitch/pkg/models"
)

// runLLM executes the LLM pipeline (spec §4.1) for modelID against pc,
// including the noop short-circuit and the post-pipeline state commit.
// The returned *Error is non-nil only for a failure before the
// disruptive boundary (BadRequest/Precondition, or an error from preflight
// or stop_comfy such as a transport failure) — those propagate to a
// synchronous caller as a terminal HTTP response distinct from the
// pipeline's own success/failed/rolled_back status.
func (e *Engine) runLLM(ctx context.Context, pc *pipelineCtx, modelID string) (models.JobState, string, *Error) {
	entry, ok := e.catalog.ByID(modelID)
	if !ok {
		err := badRequest("unknown model %s", modelID)
		e.jobs.step(pc.job, "preflight", false, err.Error())
		return models.JobFailed, err.Error(), err
	}
	pc.targetModel = entry

	// preflight and stop_comfy (steps 1-2) always run and get recorded
	// before the noop check, matching the original's step ordering: a
	// repeat switch to the already-active model must still fail the
	// precondition check if its backend container has disappeared.
	pipeline := e.llmPipeline(entry)
	if err := e.runSteps(ctx, pc, pipeline[:2]); err != nil {
		return models.JobFailed, err.Error(), err
	}

	if pc.previousMode == models.ModeLLM && pc.previousModel == modelID {
		if running, rerr := e.runningBackends(ctx); rerr == nil && len(running) == 1 && running[0] == modelID {
			e.jobs.step(pc.job, "noop", true, "target already sole active backend")
			return models.JobSuccess, "", nil
		}
	}

	if err := e.runSteps(ctx, pc, pipeline[2:]); err != nil {
		if !pc.disruptiveStarted {
			return models.JobFailed, err.Error(), err
		}
		state, msg := e.rollback(ctx, pc, err)
		return state, msg, nil
	}

	if werr := e.store.WriteMode(models.ModeLLM); werr != nil {
		wrapped := wrap(werr)
		e.jobs.step(pc.job, "commit_active_state", false, wrapped.Error())
		state, msg := e.rollback(ctx, pc, wrapped)
		return state, msg, nil
	}
	e.jobs.step(pc.job, "commit_active_state", true, "")

	return models.JobSuccess, "", nil
}

// runComfy executes the Comfy pipeline (spec §4.1's comfy variant),
// including the lease-renewal short-circuit. See runLLM for the *Error
// return's meaning. The pipeline's own "preflight" step (comfyPipeline's
// first, non-disruptive entry) is what surfaces a missing-container
// Precondition here — runSteps returns it before disruptiveStarted
// latches, so it flows out through the same branch as runLLM's.
func (e *Engine) runComfy(ctx context.Context, pc *pipelineCtx) (models.JobState, string, *Error) {
	if pc.previousMode == models.ModeComfy {
		if comfyInfo, err := e.port.Inspect(ctx, e.catalog.ComfyContainer); err == nil && comfyInfo.Exists && comfyInfo.Status == "running" {
			if running, rerr := e.runningBackends(ctx); rerr == nil && len(running) == 0 {
				if _, serr := e.store.SetLease(pc.ttl); serr != nil {
					wrapped := wrap(serr)
					e.jobs.step(pc.job, "renew_lease", false, wrapped.Error())
					return models.JobFailed, wrapped.Error(), nil
				}
				e.jobs.step(pc.job, "renew_lease", true, "")
				return models.JobSuccess, "", nil
			}
		}
	}

	if err := e.runSteps(ctx, pc, e.comfyPipeline()); err != nil {
		if !pc.disruptiveStarted {
			return models.JobFailed, err.Error(), err
		}
		state, msg := e.rollback(ctx, pc, err)
		return state, msg, nil
	}

	if _, serr := e.store.SetLease(pc.ttl); serr != nil {
		wrapped := wrap(serr)
		e.jobs.step(pc.job, "commit_lease", false, wrapped.Error())
		state, msg := e.rollback(ctx, pc, wrapped)
		return state, msg, nil
	}
	e.jobs.step(pc.job, "commit_lease", true, "")

	if werr := e.store.WriteMode(models.ModeComfy); werr != nil {
		wrapped := wrap(werr)
		e.jobs.step(pc.job, "commit_active_state", false, wrapped.Error())
		state, msg := e.rollback(ctx, pc, wrapped)
		return state, msg, nil
	}
	// No LLM backend is running in comfy mode, so active_model/active_config
	// must be absent (spec §3's invariant for mode=comfy).
	if werr := e.store.Restore(nil, ""); werr != nil {
		wrapped := wrap(werr)
		e.jobs.step(pc.job, "commit_active_state", false, wrapped.Error())
		state, msg := e.rollback(ctx, pc, wrapped)
		return state, msg, nil
	}
	e.jobs.step(pc.job, "commit_active_state", true, "")

	return models.JobSuccess, "", nil
}
