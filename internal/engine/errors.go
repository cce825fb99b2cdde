package engine

import (
	"errors"
	"fmt"

	"github.com/zheng/gpuswitch/internal/gateway"
	"github.com/zheng/gpuswitch/internal/orchestrator"
)

// Kind classifies why a switch pipeline failed, per the error-handling
// design: BadRequest/Precondition propagate before the disruptive
// boundary without rollback; everything else after the boundary triggers
// the rollback protocol.
type Kind string

const (
	KindBadRequest  Kind = "bad_request"
	KindPrecondition Kind = "precondition"
	KindConflict    Kind = "conflict"
	KindTransport   Kind = "transport"
	KindTimeout     Kind = "timeout"
	KindUnhealthy   Kind = "unhealthy"
	KindInternal    Kind = "internal"
)

// Error wraps an underlying cause with the Kind the HTTP layer and the
// rollback protocol need to act on.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func badRequest(format string, args ...any) *Error  { return newErr(KindBadRequest, format, args...) }
func precondition(format string, args ...any) *Error { return newErr(KindPrecondition, format, args...) }
func conflict(format string, args ...any) *Error    { return newErr(KindConflict, format, args...) }
func internalErr(format string, args ...any) *Error { return newErr(KindInternal, format, args...) }

// wrap classifies an arbitrary lower-level error (from the orchestrator
// or gateway packages) into an *Error, preserving the original as the
// wrapped cause. BadRequest/Precondition/Conflict are never produced
// here — those are raised directly by the engine's own validation.
func wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	switch {
	case errors.Is(err, orchestrator.ErrTimeout), errors.Is(err, gateway.ErrTimeout):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.Is(err, orchestrator.ErrUnhealthy):
		return &Error{Kind: KindUnhealthy, Err: err}
	case errors.Is(err, orchestrator.ErrTransport), errors.Is(err, orchestrator.ErrNotFound), errors.Is(err, gateway.ErrAuth):
		return &Error{Kind: KindTransport, Err: err}
	default:
		return &Error{Kind: KindInternal, Err: err}
	}
}
