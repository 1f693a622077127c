// Package errs defines the error kinds the runtime distinguishes, per
// the error handling design in the specification.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap these with fmt.Errorf("...: %w", Err...) to add
// context; callers match with errors.Is.
var (
	ErrNormalization = errors.New("normalization")
	ErrFlowNotFound  = errors.New("flow not found")
	ErrMaxFlowDepth  = errors.New("max flow depth exceeded")
	ErrParameter     = errors.New("flow parameter error")
	ErrExpression    = errors.New("expression error")
	ErrConstraint    = errors.New("constraint violation")
	ErrBackend       = errors.New("backend error")
	ErrReadyTimeout  = errors.New("readiness timeout")
	ErrActionFailed  = errors.New("action failed")
)

// Aborted is raised by the flow-control `abort` verb. It carries an
// optional human-readable reason and is attached to the flow result
// that short-circuited, rather than propagated as a Go panic.
type Aborted struct {
	Reason string
}

func (e *Aborted) Error() string {
	if e.Reason == "" {
		return "flow aborted"
	}
	return fmt.Sprintf("flow aborted: %s", e.Reason)
}

// NewAborted builds an Aborted error with the given reason (may be empty).
func NewAborted(reason string) error {
	return &Aborted{Reason: reason}
}

// AsAborted reports whether err is (or wraps) an *Aborted, returning it.
func AsAborted(err error) (*Aborted, bool) {
	var a *Aborted
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}
