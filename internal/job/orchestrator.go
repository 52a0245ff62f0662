package job

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"clipsqueeze/internal/engine"
	"clipsqueeze/internal/planner"
	"clipsqueeze/internal/probe"
	"clipsqueeze/internal/progress"
)

// ErrJobActive is returned when StartJob is called while another job has
// not been reset. The engine is single-instance and invocations must not
// interleave.
var ErrJobActive = errors.New("a job is already active; reset it before starting another")

type phase int

const (
	phaseIdle phase = iota
	phaseRunning
	phaseTerminal
)

// Orchestrator owns the single live job. The engine is injected so tests
// run against a recorded fake.
type Orchestrator struct {
	eng engine.Engine
	log hclog.Logger

	mu     sync.Mutex
	phase  phase
	cancel context.CancelFunc
}

func New(eng engine.Engine, log hclog.Logger) *Orchestrator {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Orchestrator{eng: eng, log: log}
}

// jobState carries everything one run accumulates: the frozen config, the
// scratch names written so far, and the monotonic progress gate.
type jobState struct {
	id      string
	cfg     Config
	events  chan Event
	tracker progress.Tracker
	scratch []string
	effDur  float64
	output  string
}

func (j *jobState) track(name string) {
	j.scratch = append(j.scratch, name)
}

// emit delivers an event. Progress events are dropped when the consumer
// lags; stage and terminal events always block so none are lost.
func (j *jobState) emit(ev Event) {
	ev.JobID = j.id
	if ev.Kind == EventProgress {
		select {
		case j.events <- ev:
		default:
		}
		return
	}
	j.events <- ev
}

func (j *jobState) setStage(s Stage) {
	j.emit(Event{Kind: EventStageChanged, Stage: s})
}

// StartJob freezes cfg, spawns the job flow, and returns its event
// stream. The channel is closed after the terminal Completed or Failed
// event. A second call before Reset fails with ErrJobActive.
func (o *Orchestrator) StartJob(ctx context.Context, path string, cfg Config) (<-chan Event, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.phase != phaseIdle {
		o.mu.Unlock()
		return nil, ErrJobActive
	}
	ctx, cancel := context.WithCancel(ctx)
	o.phase = phaseRunning
	o.cancel = cancel
	o.mu.Unlock()

	j := &jobState{
		id:     uuid.NewString(),
		cfg:    cfg,
		events: make(chan Event, 64),
	}
	go o.run(ctx, j, path)
	return j.events, nil
}

// Reset discards the active or terminal job. An in-flight engine
// invocation is signalled through context cancellation but is not
// guaranteed to halt immediately; its own cleanup still runs.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.phase = phaseIdle
}

func (o *Orchestrator) run(ctx context.Context, j *jobState, path string) {
	defer close(j.events)
	defer func() {
		o.mu.Lock()
		if o.phase == phaseRunning {
			o.phase = phaseTerminal
		}
		o.mu.Unlock()
	}()

	artifact, err := o.execute(ctx, j, path)

	// Scratch entries must be released on every exit path. Failures here
	// are logged, never re-thrown, so they cannot mask the job's outcome.
	o.cleanup(j)

	if err != nil {
		j.setStage(StageFailed)
		j.emit(Event{Kind: EventFailed, ErrorKind: classify(err), Message: err.Error()})
		return
	}

	// The final progress value is always exactly 100 and is never dropped.
	j.tracker.Update(100)
	j.events <- Event{Kind: EventProgress, JobID: j.id, Percent: 100}
	j.setStage(StageDone)
	j.emit(Event{Kind: EventCompleted, Artifact: artifact})
}

func (o *Orchestrator) execute(ctx context.Context, j *jobState, path string) (*Artifact, error) {
	if err := o.eng.EnsureLoaded(ctx); err != nil {
		return nil, err
	}

	// --- Probe ---
	j.setStage(StageProbing)
	src, err := probe.Probe(ctx, o.eng, path)
	if err != nil {
		return nil, err
	}
	o.log.Debug("probed source",
		"duration", src.Duration, "width", src.Width, "height", src.Height, "fps", src.FrameRate)

	// --- Plan ---
	j.setStage(StagePlanning)
	j.effDur = j.cfg.Trim.EffectiveDuration(src.Duration)
	var plan planner.BitratePlan
	if j.cfg.Format == FormatMP4 {
		plan, err = planner.Plan(j.cfg.TargetSizeMB, j.effDur, j.cfg.RemoveAudio)
		if err != nil {
			return nil, err
		}
		o.log.Debug("bitrate plan",
			"video_kbps", plan.VideoKbps, "audio_kbps", plan.AudioKbps,
			"maxrate_kbps", plan.MaxrateKbps, "bufsize_kbps", plan.BufsizeKbps)
	}

	// --- Stage input ---
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	j.track(inputSlot)
	if err := o.eng.WriteScratchFile(inputSlot, data); err != nil {
		return nil, err
	}

	// --- Encode ---
	switch {
	case j.cfg.Format == FormatGIF:
		err = o.runGIF(ctx, j)
	case j.cfg.TwoPass:
		err = o.runTwoPass(ctx, j, plan)
	default:
		err = o.runSinglePass(ctx, j, plan)
	}
	if err != nil {
		return nil, err
	}

	// --- Finalize ---
	j.setStage(StageFinalizing)
	out, err := o.eng.ReadScratchFile(j.output)
	if err != nil {
		return nil, &ArtifactReadError{Name: j.output, Err: err}
	}
	return &Artifact{
		Data:      out,
		MimeType:  mimeTypes[j.cfg.Format],
		SizeBytes: int64(len(out)),
	}, nil
}

func (o *Orchestrator) runSinglePass(ctx context.Context, j *jobState, plan planner.BitratePlan) error {
	j.setStage(StageEncoding)
	j.track(outputMP4)
	j.output = outputMP4
	return o.invokeStage(ctx, j, progress.SinglePass, singlePassArgs(j.cfg, plan))
}

func (o *Orchestrator) runTwoPass(ctx context.Context, j *jobState, plan planner.BitratePlan) error {
	j.setStage(StagePass1)
	for _, name := range passLogArtifacts {
		j.track(name)
	}
	if err := o.invokeStage(ctx, j, progress.Pass1, passOneArgs(j.cfg, plan)); err != nil {
		return err
	}

	j.setStage(StagePass2)
	j.track(outputMP4)
	j.output = outputMP4
	return o.invokeStage(ctx, j, progress.Pass2, passTwoArgs(j.cfg, plan))
}

func (o *Orchestrator) runGIF(ctx context.Context, j *jobState) error {
	j.setStage(StagePaletteGen)
	j.track(paletteSlot)
	if err := o.invokeStage(ctx, j, progress.Palette, paletteArgs(j.cfg)); err != nil {
		return err
	}

	j.setStage(StagePaintGif)
	j.track(outputGIF)
	j.output = outputGIF
	return o.invokeStage(ctx, j, progress.Paint, paintArgs(j.cfg))
}

// invokeStage runs one engine invocation with a progress listener scoped
// to the call, so events from one pass can never bleed into the next.
// When the stage finishes cleanly its band is snapped to completion even
// if the engine never reported a final signal.
func (o *Orchestrator) invokeStage(ctx context.Context, j *jobState, band progress.Band, args []string) error {
	unsubscribe := o.eng.SubscribeProgress(func(p engine.Progress) {
		frac := p.Fraction
		if frac < 0 {
			frac = progress.FractionFromElapsed(p.Elapsed, j.effDur)
		}
		if pct, ok := j.tracker.Update(band.Percent(frac)); ok {
			j.emit(Event{Kind: EventProgress, Percent: pct})
		}
	})
	defer unsubscribe()

	if err := o.eng.Invoke(ctx, args); err != nil {
		return err
	}
	if pct, ok := j.tracker.Update(band.Percent(1)); ok {
		j.emit(Event{Kind: EventProgress, Percent: pct})
	}
	return nil
}

// cleanup best-effort deletes every scratch entry the job created.
func (o *Orchestrator) cleanup(j *jobState) {
	for _, name := range j.scratch {
		if err := o.eng.DeleteScratchFile(name); err != nil {
			o.log.Warn("scratch cleanup failed", "name", name, "error", err)
		}
	}
	j.scratch = nil
}
