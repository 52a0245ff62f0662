// Package planner turns a target output size into per-stream bitrate
// budgets. It is pure: no I/O, no engine calls, so infeasible targets are
// rejected before any transcoding work starts.
package planner

import (
	"fmt"
	"math"
)

// AudioBitrateKbps is the fixed budget reserved for the audio stream when
// audio is kept. Every encoding profile observed uses this floor.
const AudioBitrateKbps = 128

// TrimRange selects the portion of the source to process. The zero value
// means the full clip.
type TrimRange struct {
	Start float64
	End   float64
}

// IsSet reports whether the range selects a valid sub-clip.
func (t TrimRange) IsSet() bool {
	return t.Start >= 0 && t.End > t.Start
}

// EffectiveDuration resolves the seconds of media actually processed. A
// malformed range (end at or before start, or unset) falls back to the
// full source duration rather than producing a zero or negative budget.
func (t TrimRange) EffectiveDuration(sourceDuration float64) float64 {
	if t.IsSet() {
		return t.End - t.Start
	}
	return sourceDuration
}

// BitratePlan is the per-stream budget for one encode. MaxrateKbps and
// BufsizeKbps constrain single-pass encodes only; two-pass encodes hit the
// average via the analysis pass instead.
type BitratePlan struct {
	VideoKbps   int
	AudioKbps   int
	MaxrateKbps int
	BufsizeKbps int
}

// InfeasibleError means the target size cannot fit the clip at any
// positive video bitrate. The user must raise the target size, shorten
// the trim, or drop audio.
type InfeasibleError struct {
	TargetSizeMB float64
	Duration     float64
	VideoKbps    int
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf(
		"target size %.1f MB is too small for %.1fs of video (computed video bitrate %d kbps); raise the target size, shorten the trim, or remove audio",
		e.TargetSizeMB, e.Duration, e.VideoKbps)
}

// Plan computes the bitrate budget for a target size and effective
// duration. The total budget in kilobits per second is
// targetSizeMB*1024*8/duration; audio takes its fixed share first and
// video gets the floor of the remainder.
func Plan(targetSizeMB, effectiveDuration float64, removeAudio bool) (BitratePlan, error) {
	if effectiveDuration <= 0 {
		return BitratePlan{}, fmt.Errorf("effective duration must be positive, got %.2f", effectiveDuration)
	}
	if targetSizeMB <= 0 {
		return BitratePlan{}, fmt.Errorf("target size must be positive, got %.2f MB", targetSizeMB)
	}

	totalKbps := targetSizeMB * 1024 * 8 / effectiveDuration
	audioKbps := 0
	if !removeAudio {
		audioKbps = AudioBitrateKbps
	}
	videoKbps := int(math.Floor(totalKbps - float64(audioKbps)))
	if videoKbps <= 0 {
		return BitratePlan{}, &InfeasibleError{
			TargetSizeMB: targetSizeMB,
			Duration:     effectiveDuration,
			VideoKbps:    videoKbps,
		}
	}

	return BitratePlan{
		VideoKbps:   videoKbps,
		AudioKbps:   audioKbps,
		MaxrateKbps: videoKbps * 12 / 10,
		BufsizeKbps: videoKbps * 3 / 2,
	}, nil
}
