package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// ExecEngine drives a locally installed ffmpeg binary. Loading resolves
// the binary and creates a private scratch directory; invocations run with
// that directory as their working directory so argument lists can refer to
// scratch files by bare name.
type ExecEngine struct {
	log hclog.Logger

	// locate is swapped out in tests so loading does not depend on a
	// real ffmpeg install.
	locate func() (string, error)

	mu      sync.Mutex
	loaded  bool
	loading chan struct{}
	loadErr error
	binPath string
	scratch string

	subMu    sync.Mutex
	nextSub  int
	logSubs  map[int]LogFunc
	progSubs map[int]ProgressFunc
}

// New returns an unloaded engine. Nothing touches the filesystem until
// EnsureLoaded is called.
func New(log hclog.Logger) *ExecEngine {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &ExecEngine{
		log:      log,
		locate:   func() (string, error) { return exec.LookPath("ffmpeg") },
		logSubs:  make(map[int]LogFunc),
		progSubs: make(map[int]ProgressFunc),
	}
}

// EnsureLoaded resolves the ffmpeg binary and prepares the scratch
// directory. Concurrent callers share a single load attempt; every waiter
// on a failed attempt receives the same *LoadError and the engine stays
// unloaded, so a later call starts a fresh attempt.
func (e *ExecEngine) EnsureLoaded(ctx context.Context) error {
	e.mu.Lock()
	if e.loaded {
		e.mu.Unlock()
		return nil
	}
	if e.loading != nil {
		done := e.loading
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.loaded {
			return nil
		}
		return e.loadErr
	}
	done := make(chan struct{})
	e.loading = done
	e.mu.Unlock()

	binPath, err := e.locate()
	var scratch string
	if err == nil {
		scratch, err = os.MkdirTemp("", "clipsqueeze-scratch-")
	}

	e.mu.Lock()
	e.loading = nil
	if err != nil {
		e.loadErr = &LoadError{Err: err}
		loadErr := e.loadErr
		e.mu.Unlock()
		close(done)
		e.log.Error("engine load failed", "error", err)
		return loadErr
	}
	e.binPath = binPath
	e.scratch = scratch
	e.loaded = true
	e.loadErr = nil
	e.mu.Unlock()
	close(done)

	e.log.Debug("engine loaded", "binary", binPath, "scratch", scratch)
	return nil
}

func (e *ExecEngine) IsLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Dispose removes the scratch directory and returns the engine to the
// unloaded state. Safe to call on an engine that never loaded.
func (e *ExecEngine) Dispose() error {
	e.mu.Lock()
	scratch := e.scratch
	e.loaded = false
	e.binPath = ""
	e.scratch = ""
	e.mu.Unlock()

	if scratch == "" {
		return nil
	}
	if err := os.RemoveAll(scratch); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	return nil
}

func (e *ExecEngine) SubscribeLog(fn LogFunc) func() {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.logSubs[id] = fn
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		delete(e.logSubs, id)
		e.subMu.Unlock()
	}
}

func (e *ExecEngine) SubscribeProgress(fn ProgressFunc) func() {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.progSubs[id] = fn
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		delete(e.progSubs, id)
		e.subMu.Unlock()
	}
}

func (e *ExecEngine) emitLog(line string) {
	e.subMu.Lock()
	fns := make([]LogFunc, 0, len(e.logSubs))
	for _, fn := range e.logSubs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()
	for _, fn := range fns {
		fn(line)
	}
}

func (e *ExecEngine) emitProgress(p Progress) {
	e.subMu.Lock()
	fns := make([]ProgressFunc, 0, len(e.progSubs))
	for _, fn := range e.progSubs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}
