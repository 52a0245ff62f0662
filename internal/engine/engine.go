// Package engine wraps the transcoding capability behind a small contract:
// a lazily loaded process-wide instance, a private scratch filesystem for
// temporary media files, argument-list invocations, and subscribable log
// and progress event streams.
package engine

import "context"

// Progress is one raw progress signal emitted during an invocation.
// Fraction is the completed share of the invocation when the engine can
// report one directly; Elapsed is the seconds of media processed so far.
// A negative value means the field was not reported.
type Progress struct {
	Fraction float64
	Elapsed  float64
}

// LogFunc receives one diagnostic line from the engine.
type LogFunc func(line string)

// ProgressFunc receives one raw progress signal from the engine.
type ProgressFunc func(p Progress)

// Engine is the boundary contract the orchestration core depends on.
// Implementations must tolerate DeleteScratchFile on names that do not
// exist, so cleanup paths can stay idempotent.
type Engine interface {
	// EnsureLoaded performs the one-time engine initialization. It is
	// idempotent and single-flight: concurrent callers share one attempt.
	EnsureLoaded(ctx context.Context) error
	IsLoaded() bool

	WriteScratchFile(name string, data []byte) error
	ReadScratchFile(name string) ([]byte, error)
	DeleteScratchFile(name string) error

	// Invoke runs the engine with the given argument list. Scratch file
	// names in args are resolved inside the engine's scratch space. A
	// failed run returns a *InvocationError.
	Invoke(ctx context.Context, args []string) error

	// SubscribeLog and SubscribeProgress register event handlers and
	// return the matching unsubscribe function. Callers are expected to
	// release the subscription before attaching the next stage's handler.
	SubscribeLog(fn LogFunc) (unsubscribe func())
	SubscribeProgress(fn ProgressFunc) (unsubscribe func())
}
