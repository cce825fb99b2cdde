// Package retry implements the fixed-interval polling helper shared by
// the orchestration port and the gateway probe when they wait for a
// container or the LLM gateway to report a new state.
package retry

import (
	"context"
	"time"
)

// Deadline polls condition at a fixed interval until it returns true, the
// deadline elapses, or the context is cancelled. The interval does not
// grow — this matches the fixed-interval polling the orchestration port
// and gateway probe require (spec §5: "fixed interval ... no exponential
// backoff").
func Deadline(ctx context.Context, deadline time.Time, interval time.Duration, condition func() (bool, error)) error {
	for {
		ok, err := condition()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return context.DeadlineExceeded
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
