package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipsqueeze/internal/engine"
	"clipsqueeze/internal/engine/enginetest"
	"clipsqueeze/internal/planner"
)

func writeTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("fake mp4 payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// probeInvocation scripts the decode-only metadata run for a 60 second
// 1280x720 source.
func probeInvocation() enginetest.Invocation {
	return enginetest.Invocation{
		LogLines: []string{
			"  Duration: 00:01:00.00, start: 0.000000, bitrate: 1205 kb/s",
			"  Stream #0:0: Video: h264 (High), yuv420p, 1280x720, 30 fps",
		},
		Err: &engine.InvocationError{Err: errors.New("exit status 1")},
	}
}

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var all []Event
	for ev := range events {
		all = append(all, ev)
	}
	return all
}

func stagesOf(events []Event) []Stage {
	var stages []Stage
	for _, ev := range events {
		if ev.Kind == EventStageChanged {
			stages = append(stages, ev.Stage)
		}
	}
	return stages
}

func assertScratchReleased(t *testing.T, fake *enginetest.FakeEngine) {
	t.Helper()
	deleted := make(map[string]bool)
	for _, name := range fake.Deletes {
		deleted[name] = true
	}
	for _, name := range fake.Writes {
		if !deleted[name] {
			t.Errorf("scratch file %q was written but never deleted", name)
		}
	}
	if names := fake.ScratchNames(); len(names) != 0 {
		t.Errorf("scratch space not empty after job: %v", names)
	}
	if n := fake.ActiveSubscribers(); n != 0 {
		t.Errorf("%d listeners still attached after job", n)
	}
}

func TestTwoPassJobSucceeds(t *testing.T) {
	fake := enginetest.New()
	fake.Script = []enginetest.Invocation{
		probeInvocation(),
		{ // pass 1: progress arrives as elapsed media time
			Progress: []engine.Progress{
				{Fraction: -1, Elapsed: 15},
				{Fraction: -1, Elapsed: 45},
			},
		},
		{ // pass 2 produces the real output
			Progress: []engine.Progress{
				{Fraction: -1, Elapsed: 30},
			},
			Creates: map[string][]byte{"output.mp4": []byte("encoded video")},
		},
	}

	orch := New(fake, nil)
	cfg := Config{TargetSizeMB: 8, ResolutionHeight: 720, Format: FormatMP4, TwoPass: true}
	events, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	all := collectEvents(t, events)

	wantStages := []Stage{StageProbing, StagePlanning, StagePass1, StagePass2, StageFinalizing, StageDone}
	gotStages := stagesOf(all)
	if len(gotStages) != len(wantStages) {
		t.Fatalf("stages = %v, want %v", gotStages, wantStages)
	}
	for i := range wantStages {
		if gotStages[i] != wantStages[i] {
			t.Fatalf("stages = %v, want %v", gotStages, wantStages)
		}
	}

	// Progress is monotonic and ends at exactly 100 before Completed.
	last := -1
	lastProgressIdx := -1
	completedIdx := -1
	for i, ev := range all {
		switch ev.Kind {
		case EventProgress:
			if ev.Percent < last {
				t.Errorf("progress went backwards: %d after %d", ev.Percent, last)
			}
			last = ev.Percent
			lastProgressIdx = i
		case EventCompleted:
			completedIdx = i
		}
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
	if completedIdx < lastProgressIdx {
		t.Error("Completed was emitted before the final progress event")
	}

	final := all[len(all)-1]
	if final.Kind != EventCompleted {
		t.Fatalf("last event = %s, want completed", final.Kind)
	}
	if string(final.Artifact.Data) != "encoded video" {
		t.Errorf("artifact data = %q", final.Artifact.Data)
	}
	if final.Artifact.MimeType != "video/mp4" {
		t.Errorf("mime type = %q, want video/mp4", final.Artifact.MimeType)
	}
	if final.Artifact.SizeBytes != int64(len("encoded video")) {
		t.Errorf("size = %d", final.Artifact.SizeBytes)
	}

	// Three invocations: probe, pass 1, pass 2.
	if len(fake.Invocations) != 3 {
		t.Fatalf("got %d invocations, want 3", len(fake.Invocations))
	}
	pass1 := strings.Join(fake.Invocations[1], " ")
	if !strings.Contains(pass1, "-pass 1") || !strings.Contains(pass1, "-an") || !strings.Contains(pass1, "-f null") {
		t.Errorf("pass 1 args missing analysis markers: %s", pass1)
	}
	if strings.Contains(pass1, "-maxrate") {
		t.Errorf("two-pass encode must not carry maxrate caps: %s", pass1)
	}
	pass2 := strings.Join(fake.Invocations[2], " ")
	if !strings.Contains(pass2, "-pass 2") || !strings.Contains(pass2, "-b:v 964k") {
		t.Errorf("pass 2 args wrong: %s", pass2)
	}
	if !strings.Contains(pass2, "-c:a aac -b:a 128k") {
		t.Errorf("pass 2 should re-encode audio at 128k: %s", pass2)
	}

	assertScratchReleased(t, fake)
}

func TestSinglePassArgsCarryRateCaps(t *testing.T) {
	fake := enginetest.New()
	fake.Script = []enginetest.Invocation{
		probeInvocation(),
		{Creates: map[string][]byte{"output.mp4": []byte("x")}},
	}

	orch := New(fake, nil)
	cfg := Config{TargetSizeMB: 8, ResolutionHeight: 480, Format: FormatMP4, TwoPass: false, RemoveAudio: true}
	events, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	collectEvents(t, events)

	if len(fake.Invocations) != 2 {
		t.Fatalf("got %d invocations, want 2", len(fake.Invocations))
	}
	args := strings.Join(fake.Invocations[1], " ")
	// 8*1024*8/60 = 1092.27 with no audio share: video 1092 kbps.
	if !strings.Contains(args, "-b:v 1092k") {
		t.Errorf("video bitrate wrong: %s", args)
	}
	if !strings.Contains(args, "-maxrate 1310k") || !strings.Contains(args, "-bufsize 1638k") {
		t.Errorf("rate caps missing or wrong: %s", args)
	}
	if !strings.Contains(args, "-an") {
		t.Errorf("audio should be stripped: %s", args)
	}
	if !strings.Contains(args, "scale=-2:480") {
		t.Errorf("scale filter wrong: %s", args)
	}
	assertScratchReleased(t, fake)
}

func TestGIFPipeline(t *testing.T) {
	fake := enginetest.New()
	fake.Script = []enginetest.Invocation{
		probeInvocation(),
		{ // palette generation reports a direct fraction
			Progress: []engine.Progress{{Fraction: 0.8, Elapsed: -1}},
			Creates:  map[string][]byte{"palette.png": []byte("palette")},
		},
		{
			Progress: []engine.Progress{{Fraction: 1.0, Elapsed: -1}},
			Creates:  map[string][]byte{"output.gif": []byte("gif data")},
		},
	}

	orch := New(fake, nil)
	cfg := Config{ResolutionHeight: 480, Format: FormatGIF, GIFFrameRate: 12}
	events, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	all := collectEvents(t, events)

	gotStages := stagesOf(all)
	var sawPalette, sawPaint bool
	for _, s := range gotStages {
		if s == StagePaletteGen {
			sawPalette = true
		}
		if s == StagePaintGif {
			sawPaint = true
		}
	}
	if !sawPalette || !sawPaint {
		t.Errorf("missing GIF sub-stages in %v", gotStages)
	}

	palette := strings.Join(fake.Invocations[1], " ")
	if !strings.Contains(palette, "palettegen") || !strings.Contains(palette, "fps=12") {
		t.Errorf("palette args wrong: %s", palette)
	}
	paint := strings.Join(fake.Invocations[2], " ")
	if !strings.Contains(paint, "paletteuse") {
		t.Errorf("paint args wrong: %s", paint)
	}

	// Palette fraction 0.8 lands in the first half of the range.
	var sawPaletteBand bool
	for _, ev := range all {
		if ev.Kind == EventProgress && ev.Percent == 40 {
			sawPaletteBand = true
		}
	}
	if !sawPaletteBand {
		t.Error("palette progress 0.8 should map to overall 40")
	}

	final := all[len(all)-1]
	if final.Kind != EventCompleted || final.Artifact.MimeType != "image/gif" {
		t.Fatalf("unexpected final event %+v", final)
	}
	assertScratchReleased(t, fake)
}

func TestTrimAppliedToInvocations(t *testing.T) {
	fake := enginetest.New()
	fake.Script = []enginetest.Invocation{
		probeInvocation(),
		{},
		{Creates: map[string][]byte{"output.mp4": []byte("x")}},
	}

	orch := New(fake, nil)
	cfg := Config{
		TargetSizeMB:     8,
		ResolutionHeight: 720,
		Format:           FormatMP4,
		TwoPass:          true,
		Trim:             planner.TrimRange{Start: 10, End: 20},
	}
	events, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	collectEvents(t, events)

	for _, idx := range []int{1, 2} {
		args := strings.Join(fake.Invocations[idx], " ")
		if !strings.Contains(args, "-ss 10.000 -to 20.000") {
			t.Errorf("invocation %d missing trim args: %s", idx, args)
		}
	}
	// Effective duration is 10s, so the bitrate budget is computed
	// against the trimmed range: floor(8*1024*8/10 - 128) = 6425.
	args := strings.Join(fake.Invocations[2], " ")
	if !strings.Contains(args, "-b:v 6425k") {
		t.Errorf("bitrate not computed from trimmed duration: %s", args)
	}
}

func TestInfeasibleTargetFailsBeforeEncoding(t *testing.T) {
	fake := enginetest.New()
	fake.Script = []enginetest.Invocation{
		{
			LogLines: []string{
				"  Duration: 00:05:00.00, start: 0.000000",
				"  Stream #0:0: Video: h264, 1280x720, 30 fps",
			},
			Err: &engine.InvocationError{Err: errors.New("exit status 1")},
		},
	}

	orch := New(fake, nil)
	cfg := Config{TargetSizeMB: 1, ResolutionHeight: 720, Format: FormatMP4, TwoPass: true}
	events, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	all := collectEvents(t, events)

	final := all[len(all)-1]
	if final.Kind != EventFailed || final.ErrorKind != ErrorInfeasibleTarget {
		t.Fatalf("want infeasible-target failure, got %+v", final)
	}
	// Only the probe ran; no encoding work was wasted.
	if len(fake.Invocations) != 1 {
		t.Errorf("got %d invocations, want only the probe", len(fake.Invocations))
	}
	assertScratchReleased(t, fake)
}

func TestEncodingFailureCleansUp(t *testing.T) {
	fake := enginetest.New()
	fake.Script = []enginetest.Invocation{
		probeInvocation(),
		{}, // pass 1 fine
		{Err: &engine.InvocationError{Err: errors.New("encoder crashed")}},
	}

	orch := New(fake, nil)
	cfg := Config{TargetSizeMB: 8, ResolutionHeight: 720, Format: FormatMP4, TwoPass: true}
	events, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	all := collectEvents(t, events)

	final := all[len(all)-1]
	if final.Kind != EventFailed {
		t.Fatalf("want failure, got %+v", final)
	}
	if final.ErrorKind != ErrorEngineInvocation {
		t.Errorf("error kind = %s, want %s", final.ErrorKind, ErrorEngineInvocation)
	}
	if !strings.Contains(final.Message, "encoder crashed") {
		t.Errorf("failure message lost the cause: %q", final.Message)
	}
	assertScratchReleased(t, fake)
}

func TestMetadataFailureKind(t *testing.T) {
	fake := enginetest.New()
	fake.Script = []enginetest.Invocation{
		{LogLines: []string{"garbage output"}},
	}

	orch := New(fake, nil)
	cfg := Config{TargetSizeMB: 8, ResolutionHeight: 720, Format: FormatMP4}
	events, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	all := collectEvents(t, events)

	final := all[len(all)-1]
	if final.Kind != EventFailed || final.ErrorKind != ErrorMetadataParse {
		t.Fatalf("want metadata-parse failure, got %+v", final)
	}
}

func TestEngineLoadFailureKind(t *testing.T) {
	fake := enginetest.New()
	fake.LoadErr = errors.New("binary not found")

	orch := New(fake, nil)
	cfg := Config{TargetSizeMB: 8, ResolutionHeight: 720, Format: FormatMP4}
	events, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	all := collectEvents(t, events)

	final := all[len(all)-1]
	if final.Kind != EventFailed || final.ErrorKind != ErrorEngineLoad {
		t.Fatalf("want engine-load failure, got %+v", final)
	}
}

func TestArtifactReadFailureKind(t *testing.T) {
	fake := enginetest.New()
	fake.Script = []enginetest.Invocation{
		probeInvocation(),
		{},
		{}, // pass 2 "succeeds" but never creates the output
	}

	orch := New(fake, nil)
	cfg := Config{TargetSizeMB: 8, ResolutionHeight: 720, Format: FormatMP4, TwoPass: true}
	events, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	all := collectEvents(t, events)

	final := all[len(all)-1]
	if final.Kind != EventFailed || final.ErrorKind != ErrorArtifactRead {
		t.Fatalf("want artifact-read failure, got %+v", final)
	}
	assertScratchReleased(t, fake)
}

func TestSecondJobRequiresReset(t *testing.T) {
	fake := enginetest.New()
	fake.Script = []enginetest.Invocation{
		probeInvocation(),
		{Creates: map[string][]byte{"output.mp4": []byte("x")}},
	}

	orch := New(fake, nil)
	cfg := Config{TargetSizeMB: 8, ResolutionHeight: 720, Format: FormatMP4}
	events, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	collectEvents(t, events)

	// The finished job stays terminal until reset.
	if _, err := orch.StartJob(context.Background(), writeTestVideo(t), cfg); !errors.Is(err, ErrJobActive) {
		t.Fatalf("expected ErrJobActive, got %v", err)
	}

	orch.Reset()
	fake.Script = []enginetest.Invocation{
		probeInvocation(),
		{Creates: map[string][]byte{"output.mp4": []byte("y")}},
	}
	events, err = orch.StartJob(context.Background(), writeTestVideo(t), cfg)
	if err != nil {
		t.Fatalf("StartJob after Reset failed: %v", err)
	}
	all := collectEvents(t, events)
	if all[len(all)-1].Kind != EventCompleted {
		t.Errorf("second job did not complete: %+v", all[len(all)-1])
	}
}

func TestStartJobValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad resolution", Config{TargetSizeMB: 8, ResolutionHeight: 600, Format: FormatMP4}},
		{"bad format", Config{TargetSizeMB: 8, ResolutionHeight: 720, Format: "webm"}},
		{"zero target for mp4", Config{TargetSizeMB: 0, ResolutionHeight: 720, Format: FormatMP4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := New(enginetest.New(), nil)
			if _, err := orch.StartJob(context.Background(), "whatever.mp4", tt.cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
