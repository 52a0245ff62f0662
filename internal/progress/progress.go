// Package progress maps per-stage fractional progress onto a single
// monotonic 0-100 percentage. Each pipeline stage owns a fixed band of the
// overall range so multi-pass jobs report one continuous number.
package progress

import "math"

// Band is a stage's slice of the overall 0-100 range.
type Band struct {
	Start int
	Width int
}

// Stage bands per pipeline kind. A single-pass encode maps its one
// invocation directly onto the whole range; the analysis pass of a
// two-pass encode is cheaper than the encode pass and weighs 30%.
var (
	SinglePass = Band{Start: 0, Width: 100}
	Pass1      = Band{Start: 0, Width: 30}
	Pass2      = Band{Start: 30, Width: 70}
	Palette    = Band{Start: 0, Width: 50}
	Paint      = Band{Start: 50, Width: 50}
)

// Percent places a raw fraction inside the band. Raw values are clamped
// to [0,1] first; the engine's progress signal is not guaranteed to stay
// in range.
func (b Band) Percent(raw float64) int {
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}
	return b.Start + int(math.Round(raw*float64(b.Width)))
}

// FractionFromElapsed converts an elapsed-media-time signal into a
// fraction of the effective duration, capped at 1.
func FractionFromElapsed(elapsedSeconds, effectiveDuration float64) float64 {
	if effectiveDuration <= 0 || elapsedSeconds <= 0 {
		return 0
	}
	f := elapsedSeconds / effectiveDuration
	if f > 1 {
		return 1
	}
	return f
}

// Tracker gates emitted percentages so they never decrease within a job.
type Tracker struct {
	last int
}

// Update records pct if it advances the job. The second return value
// reports whether the caller should emit a progress event.
func (t *Tracker) Update(pct int) (int, bool) {
	if pct <= t.last {
		return t.last, false
	}
	t.last = pct
	return pct, true
}

// Last returns the highest percentage seen so far.
func (t *Tracker) Last() int { return t.last }
