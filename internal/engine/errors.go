package engine

import (
	"fmt"
	"strings"
)

// LoadError reports that the engine could not be initialized. The engine
// stays unloaded; callers must not assume partial readiness.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("engine load failed: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InvocationError reports a failed engine run. Detail carries the tail of
// the captured diagnostic output for display and classification.
type InvocationError struct {
	Args   []string
	Detail string
	Err    error
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("engine invocation failed (%s): %v", strings.Join(e.Args, " "), e.Err)
	if e.Detail != "" {
		msg += "\n" + e.Detail
	}
	return msg
}

func (e *InvocationError) Unwrap() error { return e.Err }
