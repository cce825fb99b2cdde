package gateway

import (
	"context"
	"sync"
	"time"
)

// FakeProbe is a test double for Prober, grounded in the same per-method
// override pattern as orchestrator.FakePort and the teacher's
// vllm.MockClient.
type FakeProbe struct {
	mu sync.Mutex

	WaitModelFunc func(ctx context.Context, modelName string, timeout time.Duration) error
	WaitModelCalls []string

	// Available, when non-nil and WaitModelFunc is unset, is consulted
	// directly: WaitModel succeeds iff modelName is in the set.
	Available map[string]bool
}

// NewFakeProbe returns a FakeProbe reporting no models available.
func NewFakeProbe() *FakeProbe {
	return &FakeProbe{Available: make(map[string]bool)}
}

func (f *FakeProbe) WaitModel(ctx context.Context, modelName string, timeout time.Duration) error {
	f.mu.Lock()
	f.WaitModelCalls = append(f.WaitModelCalls, modelName)
	fn := f.WaitModelFunc
	available := f.Available[modelName]
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, modelName, timeout)
	}
	if available {
		return nil
	}
	return ErrTimeout
}

// SetAvailable marks modelName as present in the fake's inventory.
func (f *FakeProbe) SetAvailable(modelName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Available[modelName] = true
}
