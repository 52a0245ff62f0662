// Package probe extracts source metadata by running a decode-only engine
// invocation and scanning its diagnostic log stream. The invocation itself
// is expected to fail (no output file is requested); only the absence of
// parseable fields afterwards counts as a probe failure.
package probe

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"clipsqueeze/internal/engine"
)

// SourceMedia describes a probed input file. Immutable once returned.
type SourceMedia struct {
	Path      string
	SizeBytes int64
	Duration  float64 // seconds
	Width     int
	Height    int
	FrameRate float64
}

// ParseError marks a file whose metadata could not be determined. This is
// the terminal condition for an unsupported or corrupt input.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot read metadata from %s: %s", e.Path, e.Reason)
}

var (
	// "Duration: 00:01:05.50, start: 0.000000, bitrate: 1205 kb/s"
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	// "Stream #0:0: Video: h264 (High), yuv420p, 1280x720 [...], 29.97 fps, ..."
	dimensionsRe  = regexp.MustCompile(`(\d{2,5})x(\d{2,5})`)
	frameRateRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*fps`)
	videoStreamRe = regexp.MustCompile(`Stream\s+#.*Video`)
)

// slotSeq disambiguates scratch slots when probes overlap in the same
// nanosecond.
var slotSeq atomic.Uint64

// Probe writes the file into a uniquely named scratch slot, runs a
// decode-only invocation, and derives metadata from the captured log
// lines. The slot and the log subscription are always released, whether
// or not the invocation failed.
func Probe(ctx context.Context, eng engine.Engine, path string) (*SourceMedia, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}

	slot := fmt.Sprintf("probe-%d-%d.bin", time.Now().UnixNano(), slotSeq.Add(1))
	if err := eng.WriteScratchFile(slot, data); err != nil {
		return nil, fmt.Errorf("stage probe input: %w", err)
	}
	defer eng.DeleteScratchFile(slot)

	var mu sync.Mutex
	var lines []string
	unsubscribe := eng.SubscribeLog(func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})
	defer unsubscribe()

	// Decode-only run with no output file. The engine always exits with
	// an error here; the metadata rides on the log stream.
	_ = eng.Invoke(ctx, []string{"-hide_banner", "-i", slot})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	mu.Lock()
	captured := make([]string, len(lines))
	copy(captured, lines)
	mu.Unlock()

	media := parseLog(captured)
	media.Path = path
	media.SizeBytes = int64(len(data))

	if media.Duration == 0 {
		return nil, &ParseError{Path: path, Reason: "duration not found in decoder output"}
	}
	if media.Width == 0 {
		return nil, &ParseError{Path: path, Reason: "video dimensions not found in decoder output"}
	}
	return media, nil
}

func parseLog(lines []string) *SourceMedia {
	media := &SourceMedia{}
	for _, line := range lines {
		if media.Duration == 0 {
			if m := durationRe.FindStringSubmatch(line); m != nil {
				hours, _ := strconv.ParseFloat(m[1], 64)
				minutes, _ := strconv.ParseFloat(m[2], 64)
				seconds, _ := strconv.ParseFloat(m[3], 64)
				media.Duration = hours*3600 + minutes*60 + seconds
			}
		}
		if media.Width == 0 && isVideoStreamLine(line) {
			if m := dimensionsRe.FindStringSubmatch(line); m != nil {
				media.Width, _ = strconv.Atoi(m[1])
				media.Height, _ = strconv.Atoi(m[2])
			}
			if m := frameRateRe.FindStringSubmatch(line); m != nil {
				media.FrameRate, _ = strconv.ParseFloat(m[1], 64)
			}
		}
	}
	return media
}

func isVideoStreamLine(line string) bool {
	return videoStreamRe.MatchString(line)
}
