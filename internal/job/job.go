// Package job sequences one compression job: probe, plan, one or more
// engine passes, artifact read-out, and scratch cleanup. It owns the only
// state machine in the system and is the sole writer to the engine's
// scratch space while a job is live.
package job

import (
	"errors"
	"fmt"

	"clipsqueeze/internal/engine"
	"clipsqueeze/internal/planner"
	"clipsqueeze/internal/probe"
)

// Format selects the output pipeline.
type Format string

const (
	FormatMP4 Format = "mp4"
	FormatGIF Format = "gif"
)

// DefaultGIFFrameRate is used when the config leaves the GIF frame rate
// unset.
const DefaultGIFFrameRate = 15

// Config is the user's declarative intent for one job. It is copied at
// job start; later mutation by the caller has no effect on a running job.
type Config struct {
	TargetSizeMB     float64
	ResolutionHeight int // 480, 720 or 1080
	RemoveAudio      bool
	Trim             planner.TrimRange
	Format           Format
	TwoPass          bool
	GIFFrameRate     int
}

var validHeights = map[int]bool{480: true, 720: true, 1080: true}

func (c Config) validate() error {
	if c.Format != FormatMP4 && c.Format != FormatGIF {
		return fmt.Errorf("unknown output format %q", c.Format)
	}
	if !validHeights[c.ResolutionHeight] {
		return fmt.Errorf("resolution height must be 480, 720 or 1080, got %d", c.ResolutionHeight)
	}
	if c.Format == FormatMP4 && c.TargetSizeMB <= 0 {
		return fmt.Errorf("target size must be positive, got %.2f MB", c.TargetSizeMB)
	}
	return nil
}

func (c Config) gifFrameRate() int {
	if c.GIFFrameRate > 0 {
		return c.GIFFrameRate
	}
	return DefaultGIFFrameRate
}

// Stage identifies where a job is in its lifecycle. Encoding sub-stages
// (the two bitrate passes and the two GIF stages) are distinct values so
// event consumers can label them.
type Stage string

const (
	StageProbing    Stage = "probing"
	StagePlanning   Stage = "planning"
	StageEncoding   Stage = "encoding"
	StagePass1      Stage = "encoding-pass1"
	StagePass2      Stage = "encoding-pass2"
	StagePaletteGen Stage = "palette-gen"
	StagePaintGif   Stage = "paint-gif"
	StageFinalizing Stage = "finalizing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ErrorKind tags a job failure for the presentation layer.
type ErrorKind string

const (
	ErrorEngineLoad       ErrorKind = "engine-load"
	ErrorMetadataParse    ErrorKind = "metadata-parse"
	ErrorInfeasibleTarget ErrorKind = "infeasible-target"
	ErrorEngineInvocation ErrorKind = "engine-invocation"
	ErrorArtifactRead     ErrorKind = "artifact-read"
	ErrorInternal         ErrorKind = "internal"
)

// ArtifactReadError means the output could not be retrieved after an
// apparently successful invocation.
type ArtifactReadError struct {
	Name string
	Err  error
}

func (e *ArtifactReadError) Error() string {
	return fmt.Sprintf("read output artifact %q: %v", e.Name, e.Err)
}

func (e *ArtifactReadError) Unwrap() error { return e.Err }

// classify maps an error from any stage onto the failure taxonomy.
func classify(err error) ErrorKind {
	var loadErr *engine.LoadError
	var parseErr *probe.ParseError
	var infeasibleErr *planner.InfeasibleError
	var invocationErr *engine.InvocationError
	var artifactErr *ArtifactReadError
	switch {
	case errors.As(err, &loadErr):
		return ErrorEngineLoad
	case errors.As(err, &parseErr):
		return ErrorMetadataParse
	case errors.As(err, &infeasibleErr):
		return ErrorInfeasibleTarget
	case errors.As(err, &invocationErr):
		return ErrorEngineInvocation
	case errors.As(err, &artifactErr):
		return ErrorArtifactRead
	default:
		return ErrorInternal
	}
}

// EventKind discriminates the events on a job's stream.
type EventKind string

const (
	EventStageChanged EventKind = "stage-changed"
	EventProgress     EventKind = "progress"
	EventCompleted    EventKind = "completed"
	EventFailed       EventKind = "failed"
)

// Artifact is the finished output, held in memory until the presentation
// layer stores it.
type Artifact struct {
	Data      []byte
	MimeType  string
	SizeBytes int64
}

// Event is one update on a job's stream. Kind selects which fields are
// meaningful.
type Event struct {
	Kind      EventKind
	JobID     string
	Stage     Stage     // EventStageChanged
	Percent   int       // EventProgress
	Artifact  *Artifact // EventCompleted
	ErrorKind ErrorKind // EventFailed
	Message   string    // EventFailed
}

var mimeTypes = map[Format]string{
	FormatMP4: "video/mp4",
	FormatGIF: "image/gif",
}
