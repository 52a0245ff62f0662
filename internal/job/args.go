package job

import (
	"fmt"

	"clipsqueeze/internal/planner"
)

// Scratch names used by the encoding stages. The probe stage uses its own
// uniquely named slot; these are fixed because only one job runs at a time
// and stale entries are overwritten with -y.
const (
	inputSlot   = "input.bin"
	paletteSlot = "palette.png"
	passLogSlot = "passlog"
	outputMP4   = "output.mp4"
	outputGIF   = "output.gif"
)

// Side files ffmpeg derives from the -passlogfile base name.
var passLogArtifacts = []string{passLogSlot + "-0.log", passLogSlot + "-0.log.mbtree"}

func kbps(v int) string {
	return fmt.Sprintf("%dk", v)
}

// trimArgs yields the seek window, placed before the input so the whole
// pipeline only ever decodes the selected range.
func trimArgs(t planner.TrimRange) []string {
	if !t.IsSet() {
		return nil
	}
	return []string{
		"-ss", fmt.Sprintf("%.3f", t.Start),
		"-to", fmt.Sprintf("%.3f", t.End),
	}
}

// scaleFilter pins the requested height and lets the width follow the
// aspect ratio. -2 keeps the computed width even, which the codecs
// require.
func scaleFilter(height int) string {
	return fmt.Sprintf("scale=-2:%d", height)
}

func audioArgs(removeAudio bool) []string {
	if removeAudio {
		return []string{"-an"}
	}
	return []string{"-c:a", "aac", "-b:a", kbps(planner.AudioBitrateKbps)}
}

// singlePassArgs builds one capped-bitrate encode producing the output
// directly. maxrate/bufsize smooth the rate control since there is no
// analysis pass to lean on.
func singlePassArgs(cfg Config, plan planner.BitratePlan) []string {
	args := []string{"-y"}
	args = append(args, trimArgs(cfg.Trim)...)
	args = append(args,
		"-i", inputSlot,
		"-c:v", "libx264",
		"-b:v", kbps(plan.VideoKbps),
		"-maxrate", kbps(plan.MaxrateKbps),
		"-bufsize", kbps(plan.BufsizeKbps),
		"-vf", scaleFilter(cfg.ResolutionHeight),
		"-pix_fmt", "yuv420p",
		"-preset", "medium",
	)
	args = append(args, audioArgs(cfg.RemoveAudio)...)
	args = append(args, "-movflags", "+faststart", outputMP4)
	return args
}

// passOneArgs builds the analysis pass: statistics only, audio stripped,
// output discarded.
func passOneArgs(cfg Config, plan planner.BitratePlan) []string {
	args := []string{"-y"}
	args = append(args, trimArgs(cfg.Trim)...)
	args = append(args,
		"-i", inputSlot,
		"-c:v", "libx264",
		"-b:v", kbps(plan.VideoKbps),
		"-pass", "1",
		"-passlogfile", passLogSlot,
		"-vf", scaleFilter(cfg.ResolutionHeight),
		"-pix_fmt", "yuv420p",
		"-preset", "medium",
		"-an",
		"-f", "null", "-",
	)
	return args
}

// passTwoArgs builds the encode pass that consumes the pass-one
// statistics and produces the real output.
func passTwoArgs(cfg Config, plan planner.BitratePlan) []string {
	args := []string{"-y"}
	args = append(args, trimArgs(cfg.Trim)...)
	args = append(args,
		"-i", inputSlot,
		"-c:v", "libx264",
		"-b:v", kbps(plan.VideoKbps),
		"-pass", "2",
		"-passlogfile", passLogSlot,
		"-vf", scaleFilter(cfg.ResolutionHeight),
		"-pix_fmt", "yuv420p",
		"-preset", "medium",
	)
	args = append(args, audioArgs(cfg.RemoveAudio)...)
	args = append(args, "-movflags", "+faststart", outputMP4)
	return args
}

// gifFilter is the shared frame-rate and scale chain for both GIF stages.
func gifFilter(cfg Config) string {
	return fmt.Sprintf("fps=%d,%s:flags=lanczos", cfg.gifFrameRate(), scaleFilter(cfg.ResolutionHeight))
}

// paletteArgs derives the reduced color palette from the selected range.
func paletteArgs(cfg Config) []string {
	args := []string{"-y"}
	args = append(args, trimArgs(cfg.Trim)...)
	args = append(args,
		"-i", inputSlot,
		"-vf", gifFilter(cfg)+",palettegen",
		paletteSlot,
	)
	return args
}

// paintArgs renders the frames against the generated palette.
func paintArgs(cfg Config) []string {
	args := []string{"-y"}
	args = append(args, trimArgs(cfg.Trim)...)
	args = append(args,
		"-i", inputSlot,
		"-i", paletteSlot,
		"-lavfi", fmt.Sprintf("[0:v]%s[x];[x][1:v]paletteuse", gifFilter(cfg)),
		outputGIF,
	)
	return args
}
