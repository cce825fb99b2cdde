// Package leasemonitor implements the ComfyUI lease (TTL) monitor: a
// single long-running task, started at process initialisation, that
// polls the Active-State Store and enqueues a switch back to the
// default LLM once the lease expires. Generalizes the teacher's
// periodic-resync ticker goroutine into a type with an explicit
// context.Context-based Shutdown, per Design Notes' structured-
// concurrency requirement (the engine must not rely on daemon-thread
// semantics to get torn down at process exit).
package leasemonitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zheng/gpuswitch/pkg/models"
)

// StateReader is the minimal Active-State Store surface the monitor
// needs: just enough to decide whether a poll should act.
type StateReader interface {
	ReadMode() models.Mode
	ReadLease() (time.Time, bool)
}

// Driver is the engine surface the monitor calls into when a lease has
// expired.
type Driver interface {
	DriveLeaseExpiry(ctx context.Context) *models.SwitchJob
}

// Monitor is the single-instance lease monitor (MONITOR_LOCK in the
// spec guards Start against being called twice).
type Monitor struct {
	store        StateReader
	driver       Driver
	pollInterval time.Duration
	log          zerolog.Logger

	startOnce sync.Once
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a Monitor polling every pollInterval.
func New(store StateReader, driver Driver, pollInterval time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		store:        store,
		driver:       driver,
		pollInterval: pollInterval,
		log:          log,
		done:         make(chan struct{}),
	}
}

// Start launches the poll loop in a background goroutine. Calling Start
// more than once is a no-op: only the first call takes effect.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		m.started = true
		go m.run(ctx)
	})
}

// Shutdown cancels the poll loop and waits for it to exit. Safe to call
// even if Start was never called.
func (m *Monitor) Shutdown() {
	if !m.started {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if m.store.ReadMode() != models.ModeComfy {
		return
	}

	expiry, ok := m.store.ReadLease()
	if !ok || time.Now().Before(expiry) {
		return
	}

	job := m.driver.DriveLeaseExpiry(ctx)
	if job == nil {
		// Switch lock was busy; try again next tick.
		return
	}
	if job.State != models.JobSuccess {
		m.log.Warn().Int64("switch_id", job.ID).Str("error", job.Error).Msg("lease-expiry auto-switch did not succeed")
	}
}
