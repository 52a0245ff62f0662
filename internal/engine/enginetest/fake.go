// Package enginetest provides a scripted in-memory engine for exercising
// the probe and orchestration layers without a real transcoder.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"clipsqueeze/internal/engine"
)

// Invocation scripts the behavior of one Invoke call: diagnostic lines and
// progress signals emitted while it "runs", scratch files it produces, and
// the error it returns.
type Invocation struct {
	LogLines []string
	Progress []engine.Progress
	Creates  map[string][]byte
	Err      error
}

// FakeEngine records every call so tests can assert on scratch hygiene and
// listener lifecycles. Invoke consumes the Script in order; once the script
// is exhausted further invocations succeed silently.
type FakeEngine struct {
	mu sync.Mutex

	LoadErr error
	loaded  bool

	Script []Invocation

	Files       map[string][]byte
	Writes      []string
	Reads       []string
	Deletes     []string
	Invocations [][]string

	nextSub  int
	logSubs  map[int]engine.LogFunc
	progSubs map[int]engine.ProgressFunc
}

func New() *FakeEngine {
	return &FakeEngine{
		Files:    make(map[string][]byte),
		logSubs:  make(map[int]engine.LogFunc),
		progSubs: make(map[int]engine.ProgressFunc),
	}
}

func (f *FakeEngine) EnsureLoaded(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadErr != nil {
		return &engine.LoadError{Err: f.LoadErr}
	}
	f.loaded = true
	return nil
}

func (f *FakeEngine) IsLoaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

func (f *FakeEngine) WriteScratchFile(name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = append(f.Writes, name)
	f.Files[name] = data
	return nil
}

func (f *FakeEngine) ReadScratchFile(name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads = append(f.Reads, name)
	data, ok := f.Files[name]
	if !ok {
		return nil, fmt.Errorf("scratch file %q not found", name)
	}
	return data, nil
}

func (f *FakeEngine) DeleteScratchFile(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes = append(f.Deletes, name)
	delete(f.Files, name)
	return nil
}

func (f *FakeEngine) Invoke(ctx context.Context, args []string) error {
	f.mu.Lock()
	f.Invocations = append(f.Invocations, args)
	var inv Invocation
	if len(f.Script) > 0 {
		inv = f.Script[0]
		f.Script = f.Script[1:]
	}
	for name, data := range inv.Creates {
		f.Files[name] = data
	}
	f.mu.Unlock()

	for _, line := range inv.LogLines {
		for _, fn := range f.logHandlers() {
			fn(line)
		}
	}
	for _, p := range inv.Progress {
		for _, fn := range f.progressHandlers() {
			fn(p)
		}
	}
	return inv.Err
}

func (f *FakeEngine) SubscribeLog(fn engine.LogFunc) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.logSubs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.logSubs, id)
		f.mu.Unlock()
	}
}

func (f *FakeEngine) SubscribeProgress(fn engine.ProgressFunc) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.progSubs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.progSubs, id)
		f.mu.Unlock()
	}
}

// ActiveSubscribers reports how many log and progress handlers are still
// attached, for leak assertions.
func (f *FakeEngine) ActiveSubscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logSubs) + len(f.progSubs)
}

// ScratchNames returns the names still present in the fake scratch space.
func (f *FakeEngine) ScratchNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.Files))
	for name := range f.Files {
		names = append(names, name)
	}
	return names
}

func (f *FakeEngine) logHandlers() []engine.LogFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	fns := make([]engine.LogFunc, 0, len(f.logSubs))
	for _, fn := range f.logSubs {
		fns = append(fns, fn)
	}
	return fns
}

func (f *FakeEngine) progressHandlers() []engine.ProgressFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	fns := make([]engine.ProgressFunc, 0, len(f.progSubs))
	for _, fn := range f.progSubs {
		fns = append(fns, fn)
	}
	return fns
}
