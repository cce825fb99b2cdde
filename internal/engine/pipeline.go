package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/zheng/gpuswitch/internal/orchestrator"
	"github.com/zheng/gpuswitch/pkg/models"
)

// run is one named phase of a switch pipeline. Pipelines are expressed
// as an ordered slice of these values rather than as repeated inline
// branching, so the LLM and Comfy pipelines share the same execution
// loop (runSteps) and the same rollback wiring.
type run struct {
	name       string
	disruptive bool
	fn         func(ctx context.Context, pc *pipelineCtx) error
}

// pipelineCtx carries everything a step needs beyond the job record
// itself: the target of the transition, the previous state captured up
// front (so rollback never has to re-derive it after containers have
// already been stopped), and the disruptive-boundary flag the rollback
// protocol consults.
type pipelineCtx struct {
	job *models.SwitchJob

	targetModel models.CatalogEntry // only for LLM transitions
	toComfy     bool
	ttl         time.Duration

	previousMode   models.Mode
	previousModel  string
	previousConfig []byte

	disruptiveStarted bool
}

// runSteps executes steps in order, recording a step entry for each,
// and returns the first error encountered (wrapped into *Error). Once a
// disruptive step begins, pc.disruptiveStarted latches true so the
// caller knows rollback applies to any later failure.
func (e *Engine) runSteps(ctx context.Context, pc *pipelineCtx, steps []run) *Error {
	for _, s := range steps {
		if s.disruptive {
			pc.disruptiveStarted = true
		}

		if err := s.fn(ctx, pc); err != nil {
			wrapped := wrap(err)
			e.jobs.step(pc.job, s.name, false, wrapped.Error())
			return wrapped
		}
		e.jobs.step(pc.job, s.name, true, "")
	}
	return nil
}

func (e *Engine) llmPipeline(target models.CatalogEntry) []run {
	return []run{
		{name: "preflight", fn: func(ctx context.Context, pc *pipelineCtx) error {
			info, err := e.port.Inspect(ctx, target.ContainerName)
			if err != nil {
				return err
			}
			if !info.Exists {
				return precondition("backend container %s for model %s does not exist", target.ContainerName, target.ID)
			}
			return nil
		}},
		{name: "stop_comfy", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.port.Stop(ctx, e.catalog.ComfyContainer)
		}},
		{name: "stop_litellm", disruptive: true, fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.port.Stop(ctx, e.catalog.GatewayContainer)
		}},
		{name: "stop_models", fn: func(ctx context.Context, pc *pipelineCtx) error {
			for _, m := range e.catalog.Models {
				if err := e.port.Stop(ctx, m.ContainerName); err != nil {
					return err
				}
			}
			return nil
		}},
		{name: "start_target", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.port.Start(ctx, target.ContainerName)
		}},
		{name: "wait_target", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return orchestrator.WaitReady(ctx, e.port, target.ContainerName, e.cfg.HealthTimeout, e.cfg.PollInterval)
		}},
		{name: "activate_config", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.store.StageConfig(target.Template, target.ID)
		}},
		{name: "start_litellm", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.port.Start(ctx, e.catalog.GatewayContainer)
		}},
		{name: "verify_litellm", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.probe.WaitModel(ctx, target.GatewayModel, e.cfg.LiteLLMVerifyTimeout)
		}},
	}
}

func (e *Engine) comfyPipeline() []run {
	return []run{
		{name: "preflight", fn: func(ctx context.Context, pc *pipelineCtx) error {
			info, err := e.port.Inspect(ctx, e.catalog.ComfyContainer)
			if err != nil {
				return err
			}
			if !info.Exists {
				return precondition("comfy container %s does not exist", e.catalog.ComfyContainer)
			}
			return nil
		}},
		{name: "stop_litellm", disruptive: true, fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.port.Stop(ctx, e.catalog.GatewayContainer)
		}},
		{name: "stop_models", fn: func(ctx context.Context, pc *pipelineCtx) error {
			for _, m := range e.catalog.Models {
				if err := e.port.Stop(ctx, m.ContainerName); err != nil {
					return err
				}
			}
			return nil
		}},
		{name: "start_comfy", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return e.port.Start(ctx, e.catalog.ComfyContainer)
		}},
		{name: "wait_comfy", fn: func(ctx context.Context, pc *pipelineCtx) error {
			return orchestrator.WaitReady(ctx, e.port, e.catalog.ComfyContainer, e.cfg.HealthTimeout, e.cfg.PollInterval)
		}},
	}
}

// runningBackends returns the ids of every catalogue backend the
// orchestration port currently reports as running.
func (e *Engine) runningBackends(ctx context.Context) ([]string, error) {
	var running []string
	for _, m := range e.catalog.Models {
		info, err := e.port.Inspect(ctx, m.ContainerName)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", m.ContainerName, err)
		}
		if info.Exists && info.Status == "running" {
			running = append(running, m.ID)
		}
	}
	return running, nil
}
