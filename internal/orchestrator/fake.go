package orchestrator

import (
	"context"
	"sync"
)

// FakePort is a test double for Port, in the same shape as the teacher's
// vllm.MockClient: per-method override funcs plus call-tracking slices,
// all guarded by a single mutex so tests can safely inject failures from
// a background goroutine (e.g. "fail the Nth start_comfy call").
type FakePort struct {
	mu sync.Mutex

	InspectFunc func(ctx context.Context, container string) (ContainerInfo, error)
	StartFunc   func(ctx context.Context, container string) error
	StopFunc    func(ctx context.Context, container string) error

	// state is the default backing store InspectFunc/StartFunc/StopFunc
	// fall back to when not overridden: Start marks a container running
	// and healthy (creating it if unknown), and Stop marks a known
	// container exited while leaving it in place; stopping an unknown
	// container is a no-op success.
	state map[string]ContainerInfo

	InspectCalls []string
	StartCalls   []string
	StopCalls    []string
}

// NewFakePort returns a FakePort with no containers running.
func NewFakePort() *FakePort {
	return &FakePort{state: make(map[string]ContainerInfo)}
}

// SetContainer seeds the fake's backing store for container with the
// given existence, status, and health.
func (f *FakePort) SetContainer(container string, info ContainerInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[container] = info
}

func (f *FakePort) Inspect(ctx context.Context, container string) (ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InspectCalls = append(f.InspectCalls, container)

	if f.InspectFunc != nil {
		return f.InspectFunc(ctx, container)
	}
	if info, ok := f.state[container]; ok {
		return info, nil
	}
	return ContainerInfo{Exists: false}, nil
}

func (f *FakePort) Start(ctx context.Context, container string) error {
	f.mu.Lock()
	f.StartCalls = append(f.StartCalls, container)
	fn := f.StartFunc
	if fn == nil {
		f.state[container] = ContainerInfo{Exists: true, Status: "running", Health: "healthy"}
	}
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, container)
	}
	return nil
}

func (f *FakePort) Stop(ctx context.Context, container string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls = append(f.StopCalls, container)

	if f.StopFunc != nil {
		return f.StopFunc(ctx, container)
	}
	if info, ok := f.state[container]; ok {
		info.Status = "exited"
		info.Health = ""
		f.state[container] = info
	}
	return nil
}

// Running reports the names of containers the fake currently considers
// running (status=="running"), for test assertions against spec
// invariant 1 (at most one of {LLM backend, comfy} running at a time).
func (f *FakePort) Running() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for name, info := range f.state {
		if info.Exists && info.Status == "running" {
			out = append(out, name)
		}
	}
	return out
}
