// Package orchestrator is the abstract capability set the switch engine
// requires from the host container orchestration surface: inspect,
// start, and stop a container by name, plus a wait_ready helper built on
// top of inspect. The engine depends only on the Port interface; HTTPPort
// is the production adapter (a Docker Engine API reached through a
// socket-proxy URL) and FakePort is the test double.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zheng/gpuswitch/internal/retry"
)

// Sentinel errors the switch engine classifies into its own error kinds.
var (
	ErrNotFound  = errors.New("orchestrator: container not found")
	ErrTransport = errors.New("orchestrator: transport error")
	ErrUnhealthy = errors.New("orchestrator: container reported unhealthy")
	ErrTimeout   = errors.New("orchestrator: timed out waiting for container")
)

// ContainerInfo is the inspect result: existence, lifecycle status, and
// health-probe state, matching spec §4.2's status∈{running,exited,dead,
// created,…} and health∈{healthy,unhealthy,starting,null}.
type ContainerInfo struct {
	Exists bool
	Status string
	Health string
}

// Port is the abstract orchestration surface the engine drives.
type Port interface {
	Inspect(ctx context.Context, container string) (ContainerInfo, error)
	Start(ctx context.Context, container string) error
	// Stop stops container. Stopping an already-stopped or nonexistent
	// container is idempotent success, never an error.
	Stop(ctx context.Context, container string) error
}

// WaitReady polls Inspect at interval until health=healthy (or, absent a
// health probe, status=running), failing immediately on a terminal-bad
// report or the container's disappearance, and on deadline with a message
// naming the last observed status/health.
func WaitReady(ctx context.Context, port Port, container string, timeout, interval time.Duration) error {
	var last ContainerInfo
	deadline := time.Now().Add(timeout)

	err := retry.Deadline(ctx, deadline, interval, func() (bool, error) {
		info, err := port.Inspect(ctx, container)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		last = info

		if !info.Exists {
			return false, fmt.Errorf("%w: %s disappeared while waiting", ErrUnhealthy, container)
		}
		// Terminal-bad lifecycle status fails immediately regardless of
		// what the health probe currently reports (it may still read
		// "starting" while the container has already exited).
		if info.Status == "exited" || info.Status == "dead" {
			return false, fmt.Errorf("%w: %s is %s", ErrUnhealthy, container, info.Status)
		}
		switch info.Health {
		case "healthy":
			return true, nil
		case "unhealthy":
			return false, fmt.Errorf("%w: %s reported unhealthy", ErrUnhealthy, container)
		}
		if info.Health == "" && info.Status == "running" {
			return true, nil
		}
		return false, nil
	})

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s last observed status=%q health=%q", ErrTimeout, container, last.Status, last.Health)
	}
	return err
}
