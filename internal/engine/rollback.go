package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zheng/gpuswitch/internal/orchestrator"
	"github.com/zheng/gpuswitch/pkg/models"
)

// rollback runs once a disruptive step has failed. It chooses between a
// full rollback to the previous LLM (when one is safely known) and a
// best-effort restore, and returns the job's final terminal state plus
// the composite error message for the last-error slot.
func (e *Engine) rollback(ctx context.Context, pc *pipelineCtx, primary *Error) (models.JobState, string) {
	if pc.previousMode == models.ModeLLM && pc.previousModel != "" && pc.previousModel != pc.targetModel.ID {
		if rbErr := e.fullRollback(ctx, pc); rbErr != nil {
			return models.JobFailed, fmt.Sprintf("%s; rollback failed: %v", primary.Error(), rbErr)
		}
		return models.JobRolledBack, primary.Error()
	}

	if rbErr := e.bestEffortRestore(ctx, pc); rbErr != nil {
		return models.JobFailed, fmt.Sprintf("%s; rollback failed: %v", primary.Error(), rbErr)
	}
	return models.JobRolledBack, primary.Error()
}

// fullRollback restores the previously-staged config and model, stops
// every backend, starts the previous backend, waits for health, starts
// the gateway, and verifies the previous model via the gateway probe.
// The first substep failure aborts the remaining ones.
func (e *Engine) fullRollback(ctx context.Context, pc *pipelineCtx) error {
	prevEntry, ok := findByID(e.catalog.Models, pc.previousModel)
	if !ok {
		return fmt.Errorf("previous model %q no longer in catalogue", pc.previousModel)
	}

	steps := []run{
		{name: "rollback_restore_config", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.store.Restore(pc.previousConfig, pc.previousModel)
		}},
		{name: "rollback_stop_all", fn: func(ctx context.Context, pc *pipelineCtx) error {
			if err := e.port.Stop(ctx, e.catalog.ComfyContainer); err != nil {
				return err
			}
			for _, m := range e.catalog.Models {
				if err := e.port.Stop(ctx, m.ContainerName); err != nil {
					return err
				}
			}
			return nil
		}},
		{name: "rollback_start_previous", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.port.Start(ctx, prevEntry.ContainerName)
		}},
		{name: "rollback_wait_previous_healthy", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return orchestrator.WaitReady(ctx, e.port, prevEntry.ContainerName, e.cfg.HealthTimeout, e.cfg.PollInterval)
		}},
		{name: "rollback_start_gateway", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.port.Start(ctx, e.catalog.GatewayContainer)
		}},
		{name: "rollback_verify_previous_model", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.probe.WaitModel(ctx, prevEntry.GatewayModel, e.cfg.LiteLLMVerifyTimeout)
		}},
	}

	for _, s := range steps {
		if err := s.fn(ctx, pc); err != nil {
			e.jobs.step(pc.job, s.name, false, err.Error())
			return err
		}
		e.jobs.step(pc.job, s.name, true, "")
	}
	return nil
}

// bestEffortRestore is used when no previous LLM state is safely known
// (e.g. the previous mode was comfy, or this was the host's first-ever
// switch). It attempts every substep regardless of earlier failures,
// recording each with its own ok flag, and returns a combined error only
// if at least one substep failed.
func (e *Engine) bestEffortRestore(ctx context.Context, pc *pipelineCtx) error {
	var failures []string

	attempt := func(name string, fn func() error) {
		if err := fn(); err != nil {
			e.jobs.step(pc.job, name, false, err.Error())
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			return
		}
		e.jobs.step(pc.job, name, true, "")
	}

	attempt("rollback_restore_config_best_effort", func() error {
		return e.store.Restore(pc.previousConfig, pc.previousModel)
	})
	attempt("rollback_restart_gateway_best_effort", func() error {
		return e.port.Start(ctx, e.catalog.GatewayContainer)
	})
	attempt("rollback_set_mode_llm_best_effort", func() error {
		return e.store.WriteMode(models.ModeLLM)
	})

	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "; "))
	}
	return nil
}

func findByID(entries []models.CatalogEntry, id string) (models.CatalogEntry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return models.CatalogEntry{}, false
}
